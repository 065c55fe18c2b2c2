package monitoring

import (
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog with domain log helpers so request handlers stay terse.
type Logger struct {
	*slog.Logger
}

// NewLogger creates the JSON logger the service runs with.
func NewLogger() *Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{
					Key:   "timestamp",
					Value: slog.StringValue(a.Value.Time().Format(time.RFC3339)),
				}
			}
			return a
		},
	})
	return &Logger{Logger: slog.New(handler)}
}

// RequestLogger logs one handled HTTP request.
func (l *Logger) RequestLogger(method, path, ip, requestID string, statusCode int, duration time.Duration) {
	l.Info("http request",
		"method", method,
		"path", path,
		"ip", ip,
		"request_id", requestID,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
	)
}

// PredictionLogger logs one completed scoring round trip.
func (l *Logger) PredictionLogger(requestID string, proba, threshold float64, label int, explained bool, duration time.Duration) {
	l.Info("prediction completed",
		"request_id", requestID,
		"proba", proba,
		"threshold", threshold,
		"prediction", label,
		"explained", explained,
		"duration_ms", duration.Milliseconds(),
	)
}

// ExplanationFailureLogger logs a degraded (score without attribution)
// response.
func (l *Logger) ExplanationFailureLogger(requestID string, err error) {
	l.Warn("explanation failed, returning score without attributions",
		"request_id", requestID,
		"cause", err,
	)
}

// StartupLogger logs one loaded boot-time artifact.
func (l *Logger) StartupLogger(artifact, detail string) {
	l.Info("artifact loaded", "artifact", artifact, "detail", detail)
}
