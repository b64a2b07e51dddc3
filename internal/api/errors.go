package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/lingo-ladders/internal/board"
	"github.com/MJE43/lingo-ladders/internal/logging"
	"github.com/MJE43/lingo-ladders/internal/session"
	"github.com/MJE43/lingo-ladders/internal/simulate"
	"github.com/MJE43/lingo-ladders/internal/store"
)

// EngineError is the JSON body of every error response.
type EngineError struct {
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

func (e EngineError) Error() string { return e.Message }

const (
	ErrTypeInvalidParams = "invalid_params"
	ErrTypeValidation    = "validation_error"
	ErrTypeUnauthorized  = "unauthorized"

	ErrTypeNotFound          = "not_found"
	ErrTypeInvalidTransition = "invalid_transition"
	ErrTypeEmptyPool         = "empty_pool"

	ErrTypeTimeout  = "timeout"
	ErrTypeInternal = "internal_error"
)

// ErrorCategory groups error types for logs and the X-Error-Category header.
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryGame       ErrorCategory = "game"
	CategorySystem     ErrorCategory = "system"
	CategoryTimeout    ErrorCategory = "timeout"
)

func GetErrorCategory(errType string) ErrorCategory {
	switch errType {
	case ErrTypeInvalidParams, ErrTypeValidation, ErrTypeUnauthorized:
		return CategoryValidation
	case ErrTypeNotFound, ErrTypeInvalidTransition, ErrTypeEmptyPool:
		return CategoryGame
	case ErrTypeTimeout:
		return CategoryTimeout
	}
	return CategorySystem
}

// ErrorBuilder assembles an EngineError.
type ErrorBuilder struct {
	errType   string
	message   string
	context   map[string]any
	requestID string
}

func NewError(errType, message string) *ErrorBuilder {
	return &ErrorBuilder{errType: errType, message: message, context: map[string]any{}}
}

func (eb *ErrorBuilder) WithContext(key string, value any) *ErrorBuilder {
	eb.context[key] = value
	return eb
}

func (eb *ErrorBuilder) WithRequestID(id string) *ErrorBuilder {
	eb.requestID = id
	return eb
}

func (eb *ErrorBuilder) WithCause(err error) *ErrorBuilder {
	if err != nil {
		eb.context["cause"] = err.Error()
	}
	return eb
}

func (eb *ErrorBuilder) Build() EngineError {
	ctx := eb.context
	if len(ctx) == 0 {
		ctx = nil
	}
	return EngineError{
		Type:      eb.errType,
		Message:   eb.message,
		Context:   ctx,
		RequestID: eb.requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// classify maps domain errors to an HTTP status and error type.
func classify(err error) (int, string) {
	var ee EngineError
	switch {
	case errors.As(err, &ee):
		return statusForType(ee.Type), ee.Type
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, ErrTypeNotFound
	case errors.Is(err, session.ErrEmptyPool):
		return http.StatusConflict, ErrTypeEmptyPool
	case errors.Is(err, session.ErrRollPending),
		errors.Is(err, session.ErrNoPendingRoll),
		errors.Is(err, session.ErrGameOver),
		errors.Is(err, session.ErrNoPlayers),
		errors.Is(err, session.ErrMoveInFlight),
		errors.Is(err, session.ErrMoveCancelled):
		return http.StatusConflict, ErrTypeInvalidTransition
	case errors.Is(err, board.ErrBoardSize),
		errors.Is(err, session.ErrPlayerCount),
		errors.Is(err, simulate.ErrNoGames),
		errors.Is(err, simulate.ErrTooMany),
		errors.Is(err, simulate.ErrNoDecider):
		return http.StatusBadRequest, ErrTypeValidation
	case errors.Is(err, errTimeout):
		return http.StatusRequestTimeout, ErrTypeTimeout
	}
	return http.StatusInternalServerError, ErrTypeInternal
}

var errTimeout = errors.New("operation timed out")

func statusForType(t string) int {
	switch t {
	case ErrTypeInvalidParams, ErrTypeValidation:
		return http.StatusBadRequest
	case ErrTypeUnauthorized:
		return http.StatusUnauthorized
	case ErrTypeNotFound:
		return http.StatusNotFound
	case ErrTypeInvalidTransition, ErrTypeEmptyPool:
		return http.StatusConflict
	case ErrTypeTimeout:
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}

// ErrorHandler writes error responses and logs them.
type ErrorHandler struct {
	logger *logging.Logger
}

func NewErrorHandler(logger *logging.Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleError classifies err and writes it.
func (eh *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	status, typ := classify(err)

	var ee EngineError
	if !errors.As(err, &ee) {
		msg := err.Error()
		if status == http.StatusInternalServerError {
			msg = "internal server error"
		}
		ee = NewError(typ, msg).
			WithRequestID(middleware.GetReqID(r.Context())).
			WithContext("path", r.URL.Path).
			Build()
	} else if ee.RequestID == "" {
		ee.RequestID = middleware.GetReqID(r.Context())
	}
	eh.logError(r, ee, status, err)
	eh.write(w, status, ee)
}

// HandleValidationError reports a bad request field.
func (eh *ErrorHandler) HandleValidationError(w http.ResponseWriter, r *http.Request, field, message string) {
	ee := NewError(ErrTypeValidation, fmt.Sprintf("validation failed: %s", message)).
		WithRequestID(middleware.GetReqID(r.Context())).
		WithContext("field", field).
		WithContext("path", r.URL.Path).
		Build()
	eh.logError(r, ee, http.StatusBadRequest, nil)
	eh.write(w, http.StatusBadRequest, ee)
}

func (eh *ErrorHandler) logError(r *http.Request, ee EngineError, status int, cause error) {
	args := []any{
		"type", ee.Type,
		"category", GetErrorCategory(ee.Type),
		"status", status,
		"request_id", ee.RequestID,
		"method", r.Method,
		"path", r.URL.Path,
		"message", ee.Message,
	}
	if cause != nil {
		args = append(args, "error", cause.Error())
	}
	if status >= http.StatusInternalServerError {
		eh.logger.Error("request failed", args...)
		return
	}
	eh.logger.Warn("request rejected", args...)
}

func (eh *ErrorHandler) write(w http.ResponseWriter, status int, ee EngineError) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.Header().Set("X-Error-Type", ee.Type)
	w.Header().Set("X-Error-Category", string(GetErrorCategory(ee.Type)))
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ee)
}

// RecoveryHandler turns panics into 500 responses.
func (eh *ErrorHandler) RecoveryHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				reqID := middleware.GetReqID(r.Context())
				eh.logger.Error("panic recovered", "request_id", reqID, "path", r.URL.Path, "panic", fmt.Sprint(rvr))
				ee := NewError(ErrTypeInternal, "internal server error").
					WithRequestID(reqID).
					WithContext("path", r.URL.Path).
					Build()
				eh.write(w, http.StatusInternalServerError, ee)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
