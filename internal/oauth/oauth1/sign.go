package oauth1

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// SignatureMethod is the only method supported.
const SignatureMethod = "HMAC-SHA1"

// Encode percent-encodes s per RFC 3986: spaces become %20 and '~' stays literal.
func Encode(s string) string {
	e := url.QueryEscape(s)
	e = strings.ReplaceAll(e, "+", "%20")
	return strings.ReplaceAll(e, "%7E", "~")
}

// Nonce returns 32 hex chars: the md5 of a high resolution timestamp followed by
// 16 random bytes.
func Nonce() string {
	var rb [16]byte
	_, _ = rand.Read(rb[:])
	h := md5.New()
	h.Write([]byte(strconv.FormatInt(time.Now().UnixNano(), 10)))
	h.Write(rb[:])
	return hex.EncodeToString(h.Sum(nil))
}

// normalizeURL lowercases scheme and host, drops default ports, query and fragment.
func normalizeURL(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" {
		if !(scheme == "http" && port == "80") && !(scheme == "https" && port == "443") {
			host += ":" + port
		}
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return scheme + "://" + host + path
}

// normalizeParams encodes every pair, sorts by key then value and joins with '&'.
func normalizeParams(params url.Values) string {
	pairs := make([]string, 0, len(params))
	for k, vs := range params {
		ek := Encode(k)
		for _, v := range vs {
			pairs = append(pairs, ek+"="+Encode(v))
		}
	}
	sort.Strings(pairs)
	return strings.Join(pairs, "&")
}

// BaseString builds METHOD&enc(url)&enc(params). Query parameters present on
// rawURL are part of the signed parameter set.
func BaseString(method, rawURL string, params url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	all := url.Values{}
	for k, vs := range u.Query() {
		all[k] = append(all[k], vs...)
	}
	for k, vs := range params {
		if k == "oauth_signature" {
			continue
		}
		all[k] = append(all[k], vs...)
	}
	return strings.ToUpper(method) + "&" + Encode(normalizeURL(u)) + "&" + Encode(normalizeParams(all)), nil
}

// Sign computes the base64 HMAC-SHA1 signature with key enc(consumerSecret)&enc(tokenSecret).
func Sign(method, rawURL string, params url.Values, consumerSecret, tokenSecret string) (string, error) {
	base, err := BaseString(method, rawURL, params)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha1.New, []byte(Encode(consumerSecret)+"&"+Encode(tokenSecret)))
	mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// AuthorizationHeader renders the oauth_* entries of params as
// `OAuth k1="v1", k2="v2"` with sorted keys. Other parameters are ignored.
func AuthorizationHeader(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if strings.HasPrefix(k, "oauth_") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("OAuth ")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(Encode(k))
		b.WriteString(`="`)
		b.WriteString(Encode(params.Get(k)))
		b.WriteByte('"')
	}
	return b.String()
}
