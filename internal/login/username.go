package login

import (
	"regexp"
	"strings"
)

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

// Username derives a local username from a display name: lowercased, runs
// of non-word characters collapsed to one dot, no leading/trailing dots.
// "Bill W. Gates 3rd" -> "bill.w.gates.3rd".
func Username(name string) string {
	s := nonWord.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), ".")
	return strings.Trim(s, ".")
}
