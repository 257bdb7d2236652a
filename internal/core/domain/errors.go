package domain

import "errors"

// ErrorClass groups domain errors by how a caller should react to them.
type ErrorClass int

const (
	// ClassClient errors are correctable by the caller.
	ClassClient ErrorClass = iota
	// ClassUnauthorized errors require a fresh login.
	ClassUnauthorized
	// ClassThrottled errors clear after a cooldown.
	ClassThrottled
)

// Error is a failure with a stable machine-readable code.
type Error struct {
	Code    string
	Message string
	Class   ErrorClass
}

func (e *Error) Error() string { return e.Message }

var (
	ErrUnknownAccount       = &Error{Code: "UNKNOWN_ACCOUNT", Message: "unknown account"}
	ErrUnjoinedAccount      = &Error{Code: "UNJOINED_ACCOUNT", Message: "account has not joined"}
	ErrAlreadyJoinedAccount = &Error{Code: "ALREADY_JOINED_ACCOUNT", Message: "login id is already in use"}
	ErrInvalidPassword      = &Error{Code: "INVALID_PASSWORD", Message: "invalid password"}
	ErrChangeToSamePassword = &Error{Code: "CHANGE_TO_SAME_PASSWORD", Message: "new password must differ from the current one"}
	ErrCannotUpdateYourself = &Error{Code: "CANNOT_UPDATE_YOURSELF", Message: "cannot revoke your own manager flag"}
	ErrCannotRemoveYourself = &Error{Code: "CANNOT_REMOVE_YOURSELF", Message: "cannot remove your own account"}
	ErrUnknownNotice        = &Error{Code: "UNKNOWN_NOTICE", Message: "unknown notice"}

	ErrUnauthorized = &Error{Code: "UNAUTHORIZED", Message: "unauthorized", Class: ClassUnauthorized}

	ErrTooManyLoginAttempts = &Error{Code: "TOO_MANY_LOGIN_ATTEMPTS", Message: "too many failed login attempts", Class: ClassThrottled}
)

// Repository-level errors. Services translate them into the client errors above.
var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrDuplicateLoginID = errors.New("duplicate login id")
)
