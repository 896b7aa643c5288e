package login

import "fmt"

// Kind discriminates Outcome.
type Kind string

const (
	KindLoggedIn          Kind = "logged_in"
	KindLinked            Kind = "linked"
	KindPendingActivation Kind = "pending_activation"
	KindRejected          Kind = "rejected"
)

// ErrorCode names the branch that rejected a login. Codes are stable; the
// HTTP layer returns them verbatim.
type ErrorCode string

const (
	CodeLocalNotFound         ErrorCode = "LOCAL_NOT_FOUND"
	CodeUsernameConflict      ErrorCode = "LOCAL_USERNAME_CONFLICT"
	CodeCreateDisabled        ErrorCode = "LOCAL_CREATE_DISABLED"
	CodeRegistrationClosed    ErrorCode = "LOCAL_REGISTRATION_CLOSED"
	CodeCreateFailed          ErrorCode = "LOCAL_CREATE_FAILED"
	CodeLoginFailed           ErrorCode = "LOCAL_LOGIN_FAILED"
	CodeLinkFailed            ErrorCode = "LOCAL_LINK_FAILED"
	CodeInvalidIdentity       ErrorCode = "INVALID_IDENTITY"
	CodeProviderError         ErrorCode = "PROVIDER_ERROR"
	CodeAccessDenied          ErrorCode = "ACCESS_DENIED"
	CodeProviderNotConfigured ErrorCode = "PROVIDER_NOT_CONFIGURED"
)

// Outcome is the result of one login attempt. Exactly one of the kinds
// applies; Code and Err are set only for KindRejected, Message only for
// KindPendingActivation.
type Outcome struct {
	Kind    Kind
	UserID  string
	Code    ErrorCode
	Message string
	Err     error
}

func LoggedIn(userID string) Outcome { return Outcome{Kind: KindLoggedIn, UserID: userID} }

func Linked(userID string) Outcome { return Outcome{Kind: KindLinked, UserID: userID} }

func PendingActivation(userID, message string) Outcome {
	return Outcome{Kind: KindPendingActivation, UserID: userID, Message: message}
}

func Rejected(code ErrorCode, err error) Outcome {
	return Outcome{Kind: KindRejected, Code: code, Err: err}
}

// Failed reports whether the outcome must go through failed-login handling.
// PendingActivation is a notice, not a failure.
func (o Outcome) Failed() bool { return o.Kind == KindRejected }

// Authenticated reports whether the caller now holds a session for UserID.
func (o Outcome) Authenticated() bool { return o.Kind == KindLoggedIn || o.Kind == KindLinked }

func (o Outcome) String() string {
	switch o.Kind {
	case KindRejected:
		if o.Err != nil {
			return fmt.Sprintf("rejected(%s): %v", o.Code, o.Err)
		}
		return fmt.Sprintf("rejected(%s)", o.Code)
	case KindPendingActivation:
		return "pending_activation: " + o.Message
	default:
		return string(o.Kind) + " " + o.UserID
	}
}
