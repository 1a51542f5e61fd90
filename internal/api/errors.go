package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/MJE43/wheel8/internal/wheel"
)

// ErrorBuilder helps construct structured errors with context
type ErrorBuilder struct {
	errType   string
	message   string
	context   map[string]interface{}
	requestID string
}

// NewError creates a new error builder
func NewError(errType, message string) *ErrorBuilder {
	return &ErrorBuilder{
		errType: errType,
		message: message,
		context: make(map[string]interface{}),
	}
}

// WithContext adds context information to the error
func (eb *ErrorBuilder) WithContext(key string, value interface{}) *ErrorBuilder {
	eb.context[key] = value
	return eb
}

// WithRequestID adds request ID to the error
func (eb *ErrorBuilder) WithRequestID(requestID string) *ErrorBuilder {
	eb.requestID = requestID
	return eb
}

// Build creates the final EngineError
func (eb *ErrorBuilder) Build() EngineError {
	return EngineError{
		Type:      eb.errType,
		Message:   eb.message,
		Context:   eb.context,
		RequestID: eb.requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// classify maps an error onto its response type and status.
func classify(err error) (string, int) {
	switch wheel.KindOf(err) {
	case wheel.KindUninitialized:
		return ErrTypeUninitialized, http.StatusConflict
	case wheel.KindAlreadyInitialized:
		return ErrTypeAlreadyInitialized, http.StatusConflict
	case wheel.KindInvalidMultiplierCount:
		return ErrTypeInvalidMultiplierCount, http.StatusBadRequest
	case wheel.KindInvalidMultiplier:
		return ErrTypeInvalidMultiplier, http.StatusBadRequest
	case wheel.KindEntropySourceUnavailable:
		return ErrTypeEntropySourceUnavailable, http.StatusServiceUnavailable
	case wheel.KindVerificationMismatch:
		return ErrTypeVerificationMismatch, http.StatusUnprocessableEntity
	case wheel.KindInvalidWheelID:
		return ErrTypeInvalidWheelID, http.StatusBadRequest
	case wheel.KindNotFound:
		return ErrTypeNotFound, http.StatusNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTypeTimeout, http.StatusGatewayTimeout
	}
	return ErrTypeInternal, http.StatusInternalServerError
}

// ErrorHandler provides centralized error handling with logging
type ErrorHandler struct {
	log *zap.Logger
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(log *zap.Logger) *ErrorHandler {
	return &ErrorHandler{log: log}
}

// HandleError writes err with the type and status of its wheel kind.
// Internal errors are reported without their message.
func (eh *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	errType, status := classify(err)

	message := err.Error()
	var werr *wheel.Error
	if errors.As(err, &werr) {
		message = werr.Message
	}
	if errType == ErrTypeInternal {
		message = "Internal server error"
	}

	engineErr := NewError(errType, message).
		WithRequestID(middleware.GetReqID(r.Context())).
		WithContext("path", r.URL.Path).
		WithContext("method", r.Method)
	if wheelID := wheelIDParam(r); wheelID != "" {
		engineErr.WithContext("wheel_id", wheelID)
	}

	built := engineErr.Build()
	eh.logError(r, built, status, err)
	eh.writeErrorResponse(w, status, built)
}

// HandleValidationError handles validation-specific errors
func (eh *ErrorHandler) HandleValidationError(w http.ResponseWriter, r *http.Request, field, message string) {
	engineErr := NewError(ErrTypeValidation, fmt.Sprintf("Validation failed: %s", message)).
		WithRequestID(middleware.GetReqID(r.Context())).
		WithContext("field", field).
		WithContext("path", r.URL.Path).
		WithContext("method", r.Method).
		Build()

	eh.logError(r, engineErr, http.StatusBadRequest, nil)
	eh.writeErrorResponse(w, http.StatusBadRequest, engineErr)
}

// HandleAuthError writes an unauthorized or forbidden response.
func (eh *ErrorHandler) HandleAuthError(w http.ResponseWriter, r *http.Request, status int, message string) {
	errType := ErrTypeUnauthorized
	if status == http.StatusForbidden {
		errType = ErrTypeForbidden
	}
	engineErr := NewError(errType, message).
		WithRequestID(middleware.GetReqID(r.Context())).
		WithContext("path", r.URL.Path).
		Build()

	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="wheel8"`)
	}
	eh.logError(r, engineErr, status, nil)
	eh.writeErrorResponse(w, status, engineErr)
}

// logError logs the error with appropriate level and context
func (eh *ErrorHandler) logError(r *http.Request, engineErr EngineError, status int, cause error) {
	category := GetErrorCategory(engineErr.Type)
	fields := []zap.Field{
		zap.String("type", engineErr.Type),
		zap.String("category", string(category)),
		zap.Int("status", status),
		zap.String("request_id", engineErr.RequestID),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("remote_ip", r.RemoteAddr),
	}
	if cause != nil {
		fields = append(fields, zap.Error(cause))
	}

	switch {
	case status >= 500:
		eh.log.Error(engineErr.Message, fields...)
	case category == CategoryValidation || category == CategoryAuth:
		eh.log.Debug(engineErr.Message, fields...)
	default:
		eh.log.Warn(engineErr.Message, fields...)
	}
}

// writeErrorResponse writes the error response as JSON
func (eh *ErrorHandler) writeErrorResponse(w http.ResponseWriter, status int, engineErr EngineError) {
	w.Header().Set("X-Error-Type", engineErr.Type)
	w.Header().Set("X-Error-Category", string(GetErrorCategory(engineErr.Type)))
	writeJSON(w, status, engineErr)
}

// RecoveryHandler provides panic recovery with structured error logging
func (eh *ErrorHandler) RecoveryHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				requestID := middleware.GetReqID(r.Context())
				eh.log.Error("panic recovered",
					zap.String("request_id", requestID),
					zap.String("path", r.URL.Path),
					zap.String("method", r.Method),
					zap.Any("panic", rvr),
					zap.Stack("stack"),
				)

				engineErr := NewError(ErrTypeInternal, "Internal server error").
					WithRequestID(requestID).
					WithContext("path", r.URL.Path).
					WithContext("method", r.Method).
					Build()
				eh.writeErrorResponse(w, http.StatusInternalServerError, engineErr)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
