package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/gin-gonic/gin"
)

// ErrorCategory classifies an error for HTTP mapping and logging.
type ErrorCategory string

const (
	CategorySchema        ErrorCategory = "schema"
	CategoryInference     ErrorCategory = "inference"
	CategoryExplanation   ErrorCategory = "explanation"
	CategoryRateLimit     ErrorCategory = "rate_limit"
	CategoryUpstream      ErrorCategory = "upstream"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryInternal      ErrorCategory = "internal"
)

// AppError wraps an errbuilder error with the category and HTTP status the
// request boundary needs. Every internal failure is translated into one of
// these before it reaches a response.
type AppError struct {
	*errbuilder.ErrBuilder
	Category   ErrorCategory
	HTTPStatus int
	Timestamp  time.Time
	RequestID  string
	StackTrace string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s", strings.ToUpper(string(e.Category)), e.ErrBuilder.Msg)
}

// Unwrap returns the underlying cause.
func (e *AppError) Unwrap() error {
	return e.ErrBuilder.Unwrap()
}

// MarshalJSON shapes the wire body: the caller-facing message always travels
// in "detail".
func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Detail    string        `json:"detail"`
		Category  ErrorCategory `json:"category"`
		RequestID string        `json:"request_id,omitempty"`
	}{
		Detail:    e.ErrBuilder.Msg,
		Category:  e.Category,
		RequestID: e.RequestID,
	})
}

func newAppError(builder *errbuilder.ErrBuilder, category ErrorCategory, httpStatus int) *AppError {
	return &AppError{
		ErrBuilder: builder,
		Category:   category,
		HTTPStatus: httpStatus,
		Timestamp:  time.Now(),
	}
}

// NewSchemaMismatchError reports caller input that does not match the declared
// feature count or order. Maps to HTTP 400.
func NewSchemaMismatchError(message string) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(message)
	return newAppError(builder, CategorySchema, http.StatusBadRequest)
}

// NewInferenceError reports a transform or classifier rejection of the merged
// feature vector. The original cause stays attached; maps to HTTP 500.
func NewInferenceError(message string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg(message)
	if cause != nil {
		builder = builder.WithCause(cause)
	}
	return newAppError(builder, CategoryInference, http.StatusInternalServerError)
}

// NewExplanationError reports an attribution failure after a successful score.
// The request boundary treats it as non-fatal; the status here only applies if
// one ever escapes.
func NewExplanationError(message string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg(message)
	if cause != nil {
		builder = builder.WithCause(cause)
	}
	return newAppError(builder, CategoryExplanation, http.StatusInternalServerError)
}

// NewRateLimitError maps to HTTP 429 with a retry hint.
func NewRateLimitError(retryAfter string) *AppError {
	errMap := errbuilder.ErrorMap{}
	errMap.Set("retry_after", errors.New(retryAfter))
	builder := errbuilder.New().
		WithCode(errbuilder.CodeResourceExhausted).
		WithMsg("rate limit exceeded").
		WithDetails(errbuilder.NewErrDetails(errMap))
	return newAppError(builder, CategoryRateLimit, http.StatusTooManyRequests)
}

// NewUpstreamError reports an unreachable or failing prediction service. Used
// on the client side only.
func NewUpstreamError(message string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeUnavailable).
		WithMsg(message)
	if cause != nil {
		builder = builder.WithCause(cause)
	}
	return newAppError(builder, CategoryUpstream, http.StatusBadGateway)
}

// NewConfigurationError reports invalid boot-time configuration or artifacts.
func NewConfigurationError(message string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg(message)
	if cause != nil {
		builder = builder.WithCause(cause)
	}
	return newAppError(builder, CategoryConfiguration, http.StatusInternalServerError)
}

// NewInternalError reports an unexpected failure.
func NewInternalError(message string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg(message)
	if cause != nil {
		builder = builder.WithCause(cause)
	}
	appErr := newAppError(builder, CategoryInternal, http.StatusInternalServerError)
	if gin.Mode() == gin.DebugMode || gin.Mode() == gin.TestMode {
		appErr.StackTrace = captureStackTrace()
	}
	return appErr
}

func captureStackTrace() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// ToAppError converts any error into an AppError, preserving one that already
// is.
func ToAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewInternalError("request cancelled", err)
	}
	return NewInternalError(err.Error(), err)
}

// IsCategory reports whether err carries the given category.
func IsCategory(err error, category ErrorCategory) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Category == category
}

// ErrorHandler is a gin middleware translating handler errors pushed onto the
// context into structured responses.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 {
			return
		}
		appErr := ToAppError(c.Errors.Last().Err)
		appErr.RequestID = c.GetString("request_id")
		LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
	}
}

// RecoveryHandler turns panics into structured 500 responses.
func RecoveryHandler() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		appErr := NewInternalError(fmt.Sprintf("panic recovered: %v", recovered), fmt.Errorf("%v", recovered))
		appErr.StackTrace = captureStackTrace()
		appErr.RequestID = c.GetString("request_id")
		LogError(c, appErr)
		c.AbortWithStatusJSON(appErr.HTTPStatus, appErr)
	})
}

// LogError logs an error with request context at a level matching its
// category.
func LogError(c *gin.Context, err *AppError) {
	entry := slog.With(
		"error_category", err.Category,
		"http_status", err.HTTPStatus,
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"ip", c.ClientIP(),
		"request_id", err.RequestID,
	)
	msg := err.ErrBuilder.Msg
	cause := err.Unwrap()

	switch err.Category {
	case CategorySchema, CategoryRateLimit:
		entry.Warn(msg)
	case CategoryExplanation, CategoryUpstream:
		if cause != nil {
			entry.Warn(msg, "cause", cause)
		} else {
			entry.Warn(msg)
		}
	default:
		if cause != nil {
			entry.Error(msg, "cause", cause)
		} else {
			entry.Error(msg)
		}
	}

	if err.StackTrace != "" && (gin.Mode() == gin.DebugMode || gin.Mode() == gin.TestMode) {
		entry.Debug("stack trace", "trace", err.StackTrace)
	}
}
