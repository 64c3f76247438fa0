package session

import (
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

const (
	// TextCodeValidation marks pre-flight payload validation failures.
	TextCodeValidation = "EXCHANGE_VALIDATION"
	// TextCodeAuthRejected marks server credential rejections.
	TextCodeAuthRejected = "EXCHANGE_AUTH_REJECTED"
	// TextCodeNetwork marks transport-level failures.
	TextCodeNetwork = "EXCHANGE_NETWORK"
	// TextCodeSessionAbsent marks a protected route visited without a refresh cookie.
	TextCodeSessionAbsent = "SESSION_ABSENT"

	fieldErrorsMetadataKey = "field_errors"
)

// GenericAuthMessage is the single message surfaced for rejected
// credentials. It must not distinguish unknown users from wrong passwords.
const GenericAuthMessage = "Invalid email or password"

// GenericNetworkMessage is surfaced for transport failures; raw transport
// errors stay in the logs.
const GenericNetworkMessage = "Network error, please retry"

// ErrAuthRejected is returned when the credential service rejects a login
// or register attempt.
var ErrAuthRejected = goerrors.New(GenericAuthMessage, goerrors.CategoryAuth).
	WithTextCode(TextCodeAuthRejected).
	WithCode(goerrors.CodeUnauthorized)

// ErrSessionAbsent is returned when a protected route has no refresh cookie.
var ErrSessionAbsent = goerrors.New("no refresh token cookie on request", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionAbsent).
	WithCode(goerrors.CodeUnauthorized)

// ErrStoreMiss is returned by credential stores when no token is persisted.
var ErrStoreMiss = goerrors.New("no access token in credential store", goerrors.CategoryNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrorKind classifies an exchange error so callers can pattern-match
// instead of inspecting error shapes.
type ErrorKind string

const (
	// KindValidation field-scoped, resolved at the form boundary
	KindValidation ErrorKind = "validation"
	// KindAuth credential rejection, single generic message
	KindAuth ErrorKind = "auth"
	// KindNetwork transport failure, generic retry prompt
	KindNetwork ErrorKind = "network"
	// KindUnknown anything else
	KindUnknown ErrorKind = "unknown"
)

// KindOf maps an error to its ErrorKind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return KindUnknown
	}

	switch richErr.Category {
	case goerrors.CategoryValidation:
		return KindValidation
	case goerrors.CategoryAuth:
		return KindAuth
	case goerrors.CategoryOperation:
		return KindNetwork
	}
	return KindUnknown
}

// NewValidationError builds a field-scoped validation error.
func NewValidationError(fields map[string]string) error {
	return goerrors.New("payload validation failed", goerrors.CategoryValidation).
		WithTextCode(TextCodeValidation).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(map[string]any{
			fieldErrorsMetadataKey: fields,
		})
}

// NewNetworkError wraps a transport failure behind the generic retry prompt.
func NewNetworkError(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryOperation, GenericNetworkMessage).
		WithTextCode(TextCodeNetwork).
		WithCode(goerrors.CodeInternal)
}

// FieldErrors extracts the field error map from a validation error. Returns
// nil for any other error.
func FieldErrors(err error) map[string]string {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return nil
	}

	raw, ok := richErr.Metadata[fieldErrorsMetadataKey]
	if !ok {
		return nil
	}

	switch fields := raw.(type) {
	case map[string]string:
		return fields
	case map[string]any:
		out := make(map[string]string, len(fields))
		for k, v := range fields {
			if s, ok := v.(string); ok {
				out[k] = s
			}
		}
		return out
	}
	return nil
}

// UserMessage returns the message safe to show to the user for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.Message
	}
	return GenericNetworkMessage
}

// IsStoreMiss reports whether err means "nothing persisted", which is part
// of the expected restoration flow and not an application error.
func IsStoreMiss(err error) bool {
	return errors.Is(err, ErrStoreMiss) || goerrors.IsNotFound(err)
}
