package login

import (
	"errors"

	"github.com/dropDatabas3/socialauth/internal/oauth"
	"github.com/dropDatabas3/socialauth/internal/oauth/apple"
	"github.com/dropDatabas3/socialauth/internal/oauth/jwks"
	"github.com/dropDatabas3/socialauth/internal/oauth/oauth1"
	"github.com/dropDatabas3/socialauth/internal/oauth/oauth2"
	"github.com/dropDatabas3/socialauth/internal/providers"
)

type Level int

const (
	SeverityInfo Level = iota
	SeverityWarn
	SeverityError
)

// Classify maps a provider-side error to its rejection code.
func Classify(err error) ErrorCode {
	switch {
	case errors.Is(err, providers.ErrAccessDenied), errors.Is(err, oauth1.ErrAccessDenied):
		return CodeAccessDenied
	case errors.Is(err, providers.ErrUnknownProvider), errors.Is(err, providers.ErrConfig):
		return CodeProviderNotConfigured
	default:
		return CodeProviderError
	}
}

// Severity: tampering signals and bad signatures are errors, transport
// failures warnings, user cancellations info.
func Severity(err error) Level {
	switch {
	case oauth1.IsProtocol(err),
		errors.Is(err, oauth1.ErrInvalidTokenResponse),
		errors.Is(err, oauth2.ErrInvalidTokenResponse),
		errors.Is(err, apple.ErrBadSignature),
		errors.Is(err, apple.ErrBadIssuer),
		errors.Is(err, apple.ErrBadAudience),
		errors.Is(err, apple.ErrBadNonce),
		errors.Is(err, apple.ErrMalformed),
		errors.Is(err, jwks.ErrNoMatchingKey):
		return SeverityError
	case oauth.IsTransport(err), errors.Is(err, jwks.ErrFetch), errors.Is(err, providers.ErrProfile):
		return SeverityWarn
	default:
		return SeverityInfo
	}
}
