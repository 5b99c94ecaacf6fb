package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for structured logging.
// Use these constants instead of raw strings to keep log queries stable.
const (
	FieldRequestID  = "request_id"
	FieldConnection = "connection"
	FieldComponent  = "component"
	FieldMethod     = "method"
	FieldURI        = "uri"
	FieldTerm       = "term"
	FieldTechnique  = "technique"
	FieldMode       = "mode"
	FieldFormat     = "format"
	FieldCount      = "count"
	FieldDurationMS = "duration_ms"
	FieldError      = "error"
	FieldAddress    = "address"
	FieldTransport  = "transport"
	FieldFile       = "file"
	FieldRemote     = "remote"
)

type contextKey string

const (
	requestIDKey  contextKey = "logger_request_id"
	connectionKey contextKey = "logger_connection"
)

// WithRequestID adds a request ID to the context for logging
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithConnection adds a connection ID to the context for logging
func WithConnection(ctx context.Context, connID string) context.Context {
	return context.WithValue(ctx, connectionKey, connID)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if id, ok := ctx.Value(connectionKey).(string); ok && id != "" {
		fields = append(fields, FieldConnection, id)
	}
	if id, ok := ctx.Value(requestIDKey).(string); ok && id != "" {
		fields = append(fields, FieldRequestID, id)
	}

	return fields
}

// LoggerFromContext returns a logger with fields extracted from context.
func LoggerFromContext(ctx context.Context) *zap.SugaredLogger {
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return Logger
	}
	return Logger.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
//
//	svc := &Service{logger: logger.ComponentLogger("lsp")}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
