// Package logging provides the structured logger used by every Lambda and the
// local server.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type ctxKey int

const (
	traceIDKey ctxKey = iota
	userIDKey
)

// Logger wraps a logrus logger tagged with the service name.
type Logger struct {
	*logrus.Logger
	service string
}

// New builds a logger. level is a logrus level name; format is "json" or
// "text". Unknown levels fall back to info.
func New(service, level, format string) *Logger {
	return NewWithOutput(service, level, format, os.Stdout)
}

// NewWithOutput is New writing to out.
func NewWithOutput(service, level, format string, out io.Writer) *Logger {
	l := logrus.New()
	l.SetOutput(out)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if strings.EqualFold(format, "text") {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	}

	return &Logger{Logger: l, service: service}
}

// WithContext returns an entry carrying the request and user ids found in ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	fields := logrus.Fields{"service": l.service}
	if id := TraceID(ctx); id != "" {
		fields["request_id"] = id
	}
	if id := UserID(ctx); id != "" {
		fields["user_id"] = id
	}
	return l.Logger.WithContext(ctx).WithFields(fields)
}

// LogRequest records one handled request.
func (l *Logger) LogRequest(ctx context.Context, method, path string, status int, d time.Duration) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"status":      status,
		"duration_ms": d.Milliseconds(),
	})
	switch {
	case status >= 500:
		entry.Error("request failed")
	case status >= 400:
		entry.Warn("request rejected")
	default:
		entry.Info("request handled")
	}
}

// NewTraceID returns a fresh id for requests that arrive without one.
func NewTraceID() string {
	return uuid.NewString()
}

// WithTraceID stores a request id on ctx.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey, id)
}

// TraceID returns the request id on ctx, falling back to the Lambda request
// id when running inside the Lambda runtime.
func TraceID(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey).(string); ok && id != "" {
		return id
	}
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		return lc.AwsRequestID
	}
	return ""
}

// WithUserID stores the authenticated user id on ctx.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}
