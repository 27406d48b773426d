package apperrors

import "fmt"

// Machine-readable reason codes shared across the engine, the registration
// pipeline and the HTTP layer. Callers match on error type with errors.As
// and on Code for the specific reason.
const (
	// Relationship transition conflicts.
	CodeAlreadyRequested = "ALREADY_REQUESTED"
	CodeAlreadyFriends   = "ALREADY_FRIENDS"
	CodeAlreadyBlocked   = "ALREADY_BLOCKED"
	CodeUnblockRequired  = "UNBLOCK_REQUIRED"
	CodeBlockedByTarget  = "BLOCKED_BY_TARGET"
	CodeSelfAction       = "SELF_ACTION"

	// Not-found reasons.
	CodeNotRelated  = "NOT_RELATED"
	CodeUnknownUser = "UNKNOWN_USER"

	// Limits.
	CodeFriendLimitReached = "FRIEND_LIMIT_REACHED"

	// Registration policy gates.
	CodeRegistrationDisabled = "REGISTRATION_DISABLED"
	CodeRegistrationClosed   = "REGISTRATION_CLOSED"
	CodeGuestsDisabled       = "GUESTS_DISABLED"

	// Registration field errors.
	CodeConsentRequired     = "CONSENT_REQUIRED"
	CodeMultipleAccounts    = "MULTIPLE_ACCOUNTS_DETECTED"
	CodeProxyBlocked        = "PROXY_BLOCKED"
	CodeEmailRegistered     = "EMAIL_ALREADY_REGISTERED"
	CodeEmailRequired       = "EMAIL_REQUIRED"
	CodeDOBRequired         = "DATE_OF_BIRTH_REQUIRED"
	CodeDOBInvalid          = "DATE_OF_BIRTH_INVALID"
	CodeDOBUnderage         = "DATE_OF_BIRTH_UNDERAGE"
	CodePasswordRequired    = "PASSWORD_REQUIRED"
	CodeInviteRequired      = "INVITE_REQUIRED"
	CodeInviteInvalid       = "INVITE_INVALID"
	CodeInviteExpired       = "INVITE_EXPIRED"
	CodeInviteExhausted     = "INVITE_EXHAUSTED"
	CodeUsernameTaken       = "USERNAME_TAKEN"
	CodeCaptchaFailed       = "CAPTCHA_FAILED"
)

// ConflictError signals a relationship transition that is not allowed in
// the current state. Caller-visible; never retried.
type ConflictError struct {
	Code string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s", e.Code)
}

// NotFoundError signals a missing user or relationship (404-class).
type NotFoundError struct {
	Code string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.Code)
}

// LimitExceeded signals a configured cap being hit, e.g. the friend limit.
type LimitExceeded struct {
	Code  string
	Limit int
}

func (e *LimitExceeded) Error() string {
	return fmt.Sprintf("limit exceeded: %s (limit %d)", e.Code, e.Limit)
}

// PolicyDisabledError signals an operation gated off by instance policy
// (registration closed, guests disabled, ...).
type PolicyDisabledError struct {
	Code string
}

func (e *PolicyDisabledError) Error() string {
	return fmt.Sprintf("disabled by policy: %s", e.Code)
}

// ExternalServiceError wraps a hard failure from an external provider
// (captcha verifier, IP reputation). Never silently bypassed.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("external service %s failed: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// FieldError is a single field-scoped registration error.
type FieldError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// FieldErrors maps field names to their first validation failure.
// The registration pipeline stops at the first failing check, so in
// practice the map holds exactly one entry.
type FieldErrors struct {
	Errors map[string]FieldError `json:"errors"`
}

func (e *FieldErrors) Error() string {
	for field, fe := range e.Errors {
		return fmt.Sprintf("invalid field %s: %s", field, fe.Code)
	}
	return "invalid fields"
}

// NewFieldError builds a FieldErrors carrying a single field failure.
func NewFieldError(field, code, message string) *FieldErrors {
	return &FieldErrors{Errors: map[string]FieldError{
		field: {Code: code, Message: message},
	}}
}

// CaptchaChallenge is returned when captcha verification is missing or
// failed. It is a distinct payload (not a generic field error) carrying
// the site key and service so the caller can re-challenge the client.
type CaptchaChallenge struct {
	Sitekey string `json:"captcha_sitekey"`
	Service string `json:"captcha_service"`
}

func (e *CaptchaChallenge) Error() string {
	return fmt.Sprintf("captcha required (service %s)", e.Service)
}
