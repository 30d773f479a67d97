// Package apperr defines the user-facing error taxonomy of the engine.
//
// Every authorization, lifecycle and concurrency failure is reported as an
// *Error carrying a stable machine-readable Code and a human message. Errors
// that are not *Error are infrastructure failures and map to 500.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Code is a stable machine-readable error code
type Code string

const (
	CodeNotAuthenticated      Code = "NOT_AUTHENTICATED"
	CodeNotOrgMember          Code = "NOT_ORG_MEMBER"
	CodeInsufficientOrgRole   Code = "INSUFFICIENT_ORG_ROLE"
	CodeForbidden             Code = "FORBIDDEN"
	CodeCannotModifyOwner     Code = "CANNOT_MODIFY_OWNER"
	CodeCannotModifyAdmin     Code = "CANNOT_MODIFY_ADMIN"
	CodeMustTransferOwnership Code = "MUST_TRANSFER_OWNERSHIP"
	CodeTargetMustBeAdmin     Code = "TARGET_MUST_BE_ADMIN"
	CodeAlreadyOrgMember      Code = "ALREADY_ORG_MEMBER"
	CodeJoinRequestExists     Code = "JOIN_REQUEST_EXISTS"
	CodeInviteExpired         Code = "INVITE_EXPIRED"
	CodeInvalidInvite         Code = "INVALID_INVITE"
	CodeOrgSlugTaken          Code = "ORG_SLUG_TAKEN"
	CodeRateLimited           Code = "RATE_LIMITED"
	CodeConflict              Code = "CONFLICT"
	CodeValidationFailed      Code = "VALIDATION_FAILED"
	CodeNotFound              Code = "NOT_FOUND"

	// CodeInternal is never constructed by the engine; CodeOf returns it for
	// errors that are not *Error.
	CodeInternal Code = "INTERNAL"
)

var defaultMessages = map[Code]string{
	CodeNotAuthenticated:      "authentication required",
	CodeNotOrgMember:          "not a member of this organization",
	CodeInsufficientOrgRole:   "insufficient organization role",
	CodeForbidden:             "forbidden",
	CodeCannotModifyOwner:     "the organization owner cannot be modified",
	CodeCannotModifyAdmin:     "only the owner can modify an admin",
	CodeMustTransferOwnership: "transfer ownership before leaving",
	CodeTargetMustBeAdmin:     "new owner must be an admin",
	CodeAlreadyOrgMember:      "already a member of this organization",
	CodeJoinRequestExists:     "a pending join request already exists",
	CodeInviteExpired:         "invite has expired",
	CodeInvalidInvite:         "invalid invite",
	CodeOrgSlugTaken:          "organization slug is already taken",
	CodeRateLimited:           "rate limit exceeded",
	CodeConflict:              "record was modified by another request",
	CodeValidationFailed:      "validation failed",
	CodeNotFound:              "not found",
	CodeInternal:              "internal error",
}

// Error is a recoverable, user-facing engine error
type Error struct {
	Code    Code
	Message string

	// Rate limit metadata, set only for CodeRateLimited
	RetryAfter time.Duration
	Limit      int
	Remaining  int

	// Per-field messages, set only for CodeValidationFailed
	Fields map[string]string

	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+e.Fields[k])
		}
		b.WriteString(" (")
		b.WriteString(strings.Join(parts, "; "))
		b.WriteString(")")
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error with the default message for code
func New(code Code) *Error {
	return &Error{Code: code, Message: defaultMessages[code]}
}

// Newf creates an error with a formatted message
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a new error of the given code
func Wrap(code Code, err error) *Error {
	return &Error{Code: code, Message: defaultMessages[code], Err: err}
}

// RateLimited creates a RATE_LIMITED error with quota metadata
func RateLimited(retryAfter time.Duration, limit, remaining int) *Error {
	return &Error{
		Code:       CodeRateLimited,
		Message:    fmt.Sprintf("rate limit exceeded, retry after %s", retryAfter.Round(time.Millisecond)),
		RetryAfter: retryAfter,
		Limit:      limit,
		Remaining:  remaining,
	}
}

// Validation creates a VALIDATION_FAILED error with per-field messages
func Validation(fields map[string]string) *Error {
	return &Error{
		Code:    CodeValidationFailed,
		Message: defaultMessages[CodeValidationFailed],
		Fields:  fields,
	}
}

// NotFound creates a NOT_FOUND error naming the missing entity
func NotFound(what string) *Error {
	return Newf(CodeNotFound, "%s not found", what)
}

// As extracts an *Error from err
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the code of err, or CodeInternal if err is not an *Error
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeInternal
}

// Is reports whether err is an *Error with the given code
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// HTTPStatus maps a code to its HTTP status
func HTTPStatus(code Code) int {
	switch code {
	case CodeNotAuthenticated:
		return http.StatusUnauthorized
	case CodeNotOrgMember, CodeInsufficientOrgRole, CodeForbidden,
		CodeCannotModifyOwner, CodeCannotModifyAdmin, CodeMustTransferOwnership:
		return http.StatusForbidden
	case CodeNotFound, CodeInvalidInvite:
		return http.StatusNotFound
	case CodeAlreadyOrgMember, CodeJoinRequestExists, CodeOrgSlugTaken, CodeConflict:
		return http.StatusConflict
	case CodeInviteExpired:
		return http.StatusGone
	case CodeTargetMustBeAdmin, CodeValidationFailed:
		return http.StatusUnprocessableEntity
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
