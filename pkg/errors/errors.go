package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError provides a structured error that can be rendered to API consumers.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}

	return e.Message
}

// Unwrap exposes the internal error for errors.Is / errors.As compatibility.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// WithInternal returns a copy of the AppError with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Internal = err
	return &cpy
}

// WithMessage returns a copy of the AppError carrying a more specific message.
func (e *AppError) WithMessage(message string) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Message = message
	return &cpy
}

// Validation errors returned inline to the acting connection. These are part
// of normal play and are never logged above debug level.
var (
	ErrNotYourTurn = &AppError{
		Code:       "game.not_your_turn",
		Message:    "It is not your turn",
		StatusCode: http.StatusConflict,
	}

	ErrWrongPhase = &AppError{
		Code:       "game.wrong_phase",
		Message:    "Action is not valid in the current turn phase",
		StatusCode: http.StatusConflict,
	}

	ErrIllegalMove = &AppError{
		Code:       "game.illegal_move",
		Message:    "Move is not legal",
		StatusCode: http.StatusConflict,
	}

	ErrDoubleNotAllowed = &AppError{
		Code:       "game.double_not_allowed",
		Message:    "You may not offer a double now",
		StatusCode: http.StatusConflict,
	}

	ErrDoublePending = &AppError{
		Code:       "game.double_pending",
		Message:    "A double offer is awaiting a response",
		StatusCode: http.StatusConflict,
	}

	ErrGameNotStarted = &AppError{
		Code:       "game.not_started",
		Message:    "The game has not started yet",
		StatusCode: http.StatusConflict,
	}

	ErrGameFinished = &AppError{
		Code:       "game.finished",
		Message:    "The game is already over",
		StatusCode: http.StatusConflict,
	}

	ErrSessionSuspended = &AppError{
		Code:       "game.session_suspended",
		Message:    "This match is suspended pending operator review",
		StatusCode: http.StatusConflict,
	}

	ErrSessionNotFound = &AppError{
		Code:       "game.session_not_found",
		Message:    "Match not found",
		StatusCode: http.StatusNotFound,
	}

	ErrSessionFull = &AppError{
		Code:       "game.session_full",
		Message:    "Both seats are already taken",
		StatusCode: http.StatusConflict,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	ErrInternalServer = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}
)

// IsValidation reports whether the error belongs to the user-recoverable
// validation category. Integrity and background failures are excluded.
func IsValidation(err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.StatusCode == http.StatusConflict || appErr.StatusCode == http.StatusBadRequest || appErr.StatusCode == http.StatusNotFound
}

// NewIntegrity builds a fatal integrity error. Integrity violations abort the
// enclosing operation and are expected to trigger alerting.
func NewIntegrity(message string, internal error) *AppError {
	e := New("game.integrity_violation", message, http.StatusInternalServerError)
	e.Internal = internal
	return e
}

// IsIntegrity reports whether the error is a fatal integrity violation.
func IsIntegrity(err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Code == "game.integrity_violation"
}

// New builds a new application error with the provided metadata.
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap turns any error into an AppError while keeping the original error for logging.
func Wrap(err error, message string) *AppError {
	e := New(ErrInternalServer.Code, message, http.StatusInternalServerError)
	e.Internal = err
	return e
}

// FromError converts a generic error into an AppError, defaulting to ErrInternalServer.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return ErrInternalServer.WithInternal(err)
}

// NewBadRequest wraps validation errors with a helpful message.
func NewBadRequest(message string) *AppError {
	return New(ErrBadRequest.Code, message, ErrBadRequest.StatusCode)
}
