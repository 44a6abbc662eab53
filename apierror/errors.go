// Package apierror defines the closed set of failures the RecallrAI client
// reports and the mapping from HTTP responses onto it.
//
// Every failure is an *Error carrying a Kind. Each Kind belongs to exactly one
// Category, so callers can match either precisely or by family:
//
//	if errors.Is(err, apierror.ErrUserNotFound) { ... }   // one kind
//	if errors.Is(err, apierror.ErrNetwork) { ... }        // timeout or connection
//
//	var apiErr *apierror.Error
//	if errors.As(err, &apiErr) && apiErr.Kind == apierror.KindRateLimit {
//		time.Sleep(apiErr.RetryAfterDuration())
//	}
//
// The client never retries; RetryAfter is a hint for the caller's own policy.
package apierror

import (
	"errors"
	"fmt"
	"time"
)

// Category groups related kinds.
type Category string

const (
	CategoryAuthentication Category = "authentication"
	CategoryNetwork        Category = "network"
	CategoryServer         Category = "server"
	CategoryUser           Category = "user"
	CategorySession        Category = "session"
	CategoryMergeConflict  Category = "merge_conflict"
	CategoryValidation     Category = "validation"
	// CategoryClient holds 4xx responses that no specific kind describes.
	CategoryClient Category = "client"
)

// Kind identifies a single failure variant. The string value doubles as the
// server error code that selects it.
type Kind string

const (
	KindAuthentication Kind = "authentication_failed"

	KindTimeout    Kind = "timeout"
	KindConnection Kind = "connection_failed"

	KindInternalServer Kind = "internal_server_error"
	KindRateLimit      Kind = "rate_limit_exceeded"

	KindUserNotFound      Kind = "user_not_found"
	KindUserAlreadyExists Kind = "user_already_exists"

	KindSessionNotFound     Kind = "session_not_found"
	KindInvalidSessionState Kind = "invalid_session_state"

	KindMergeConflictNotFound        Kind = "merge_conflict_not_found"
	KindMergeConflictAlreadyResolved Kind = "merge_conflict_already_resolved"
	KindInvalidQuestions             Kind = "invalid_questions"
	KindMissingAnswers               Kind = "missing_answers"
	KindInvalidAnswer                Kind = "invalid_answer"

	KindValidation        Kind = "validation_error"
	KindInvalidCategories Kind = "invalid_categories"

	KindNotFound   Kind = "not_found"
	KindBadRequest Kind = "bad_request"
	KindUnexpected Kind = "unexpected_response"
)

var kindCategories = map[Kind]Category{
	KindAuthentication:               CategoryAuthentication,
	KindTimeout:                      CategoryNetwork,
	KindConnection:                   CategoryNetwork,
	KindInternalServer:               CategoryServer,
	KindRateLimit:                    CategoryServer,
	KindUserNotFound:                 CategoryUser,
	KindUserAlreadyExists:            CategoryUser,
	KindSessionNotFound:              CategorySession,
	KindInvalidSessionState:          CategorySession,
	KindMergeConflictNotFound:        CategoryMergeConflict,
	KindMergeConflictAlreadyResolved: CategoryMergeConflict,
	KindInvalidQuestions:             CategoryMergeConflict,
	KindMissingAnswers:               CategoryMergeConflict,
	KindInvalidAnswer:                CategoryMergeConflict,
	KindValidation:                   CategoryValidation,
	KindInvalidCategories:            CategoryValidation,
	KindNotFound:                     CategoryClient,
	KindBadRequest:                   CategoryClient,
	KindUnexpected:                   CategoryClient,
}

// Category returns the family k belongs to. Unknown kinds report CategoryClient.
func (k Kind) Category() Category {
	if c, ok := kindCategories[k]; ok {
		return c
	}
	return CategoryClient
}

// Known reports whether k is one of the declared kinds.
func (k Kind) Known() bool {
	_, ok := kindCategories[k]
	return ok
}

// Error is the single error type returned for API and network failures.
// Only the fields relevant to Kind are populated.
type Error struct {
	Kind    Kind
	Message string

	// HTTPStatus is 0 for failures raised locally (network, client-side
	// validation).
	HTTPStatus int

	// Code is the raw error code the server supplied, if any.
	Code string

	// RetryAfter is the server's retry hint in seconds (KindRateLimit).
	// Zero means no hint was given.
	RetryAfter int

	// InvalidCategories lists rejected category names (KindInvalidCategories).
	InvalidCategories []string

	// InvalidQuestions lists answered questions the conflict does not ask
	// (KindInvalidQuestions).
	InvalidQuestions []string

	// MissingQuestions lists clarifying questions left unanswered
	// (KindMissingAnswers).
	MissingQuestions []string

	// Question and ValidOptions describe a rejected answer (KindInvalidAnswer).
	Question     string
	ValidOptions []string

	// Err is the underlying cause for locally raised failures.
	Err error

	// category is set only on category sentinels.
	category Category
}

// New returns an Error of the given kind raised without a server response.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap returns an Error of the given kind caused by err.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("recallrai: %s: %s (HTTP %d)", e.Kind, msg, e.HTTPStatus)
	}
	return fmt.Sprintf("recallrai: %s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches kind sentinels by Kind and category sentinels by Category.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.category != "" {
		return e.Kind.Category() == t.category
	}
	return t.Kind != "" && e.Kind == t.Kind
}

// Category returns the family of e.Kind.
func (e *Error) Category() Category {
	return e.Kind.Category()
}

// RetryAfterDuration converts RetryAfter to a time.Duration.
func (e *Error) RetryAfterDuration() time.Duration {
	return time.Duration(e.RetryAfter) * time.Second
}

// KindOf returns the Kind of the *Error in err's tree, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Kind sentinels for errors.Is.
var (
	ErrAuthenticationFailed         = &Error{Kind: KindAuthentication}
	ErrTimeout                      = &Error{Kind: KindTimeout}
	ErrConnection                   = &Error{Kind: KindConnection}
	ErrInternalServer               = &Error{Kind: KindInternalServer}
	ErrRateLimit                    = &Error{Kind: KindRateLimit}
	ErrUserNotFound                 = &Error{Kind: KindUserNotFound}
	ErrUserAlreadyExists            = &Error{Kind: KindUserAlreadyExists}
	ErrSessionNotFound              = &Error{Kind: KindSessionNotFound}
	ErrInvalidSessionState          = &Error{Kind: KindInvalidSessionState}
	ErrMergeConflictNotFound        = &Error{Kind: KindMergeConflictNotFound}
	ErrMergeConflictAlreadyResolved = &Error{Kind: KindMergeConflictAlreadyResolved}
	ErrInvalidQuestions             = &Error{Kind: KindInvalidQuestions}
	ErrMissingAnswers               = &Error{Kind: KindMissingAnswers}
	ErrInvalidAnswer                = &Error{Kind: KindInvalidAnswer}
	ErrInvalidCategories            = &Error{Kind: KindInvalidCategories}
	ErrNotFound                     = &Error{Kind: KindNotFound}
	ErrBadRequest                   = &Error{Kind: KindBadRequest}
)

// Category sentinels for errors.Is.
var (
	ErrAuthentication = &Error{category: CategoryAuthentication}
	ErrNetwork        = &Error{category: CategoryNetwork}
	ErrServer         = &Error{category: CategoryServer}
	ErrUser           = &Error{category: CategoryUser}
	ErrSession        = &Error{category: CategorySession}
	ErrMergeConflict  = &Error{category: CategoryMergeConflict}
	ErrValidation     = &Error{category: CategoryValidation}
	ErrClient         = &Error{category: CategoryClient}
)
