// Package clientlog forwards server log entries to connected editors as
// window/logMessage notifications.
package clientlog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/teranos/attackls/logger"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"go.uber.org/zap/zapcore"
)

// MessageType maps a zap level onto the LSP message severity
func MessageType(level zapcore.Level) protocol.MessageType {
	switch {
	case level >= zapcore.ErrorLevel:
		return protocol.MessageTypeError
	case level == zapcore.WarnLevel:
		return protocol.MessageTypeWarning
	case level == zapcore.InfoLevel:
		return protocol.MessageTypeInfo
	default:
		return protocol.MessageTypeLog
	}
}

// FromZapEntry renders entry as a log message line:
//
//	[glsp] Ignoring invalid settings error=... uri=...
//
// The connection field only routes the message and is left out of the text.
func FromZapEntry(entry zapcore.Entry, fields []zapcore.Field) protocol.LogMessageParams {
	var b strings.Builder
	if entry.LoggerName != "" {
		fmt.Fprintf(&b, "[%s] ", entry.LoggerName)
	}
	b.WriteString(entry.Message)

	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		if f.Key == logger.FieldConnection {
			continue
		}
		f.AddTo(enc)
	}

	keys := make([]string, 0, len(enc.Fields))
	for k := range enc.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, enc.Fields[k])
	}

	return protocol.LogMessageParams{
		Type:    MessageType(entry.Level),
		Message: b.String(),
	}
}

// connectionOf returns the value of the connection field, if any
func connectionOf(fields []zapcore.Field) string {
	for _, f := range fields {
		if f.Key == logger.FieldConnection && f.Type == zapcore.StringType {
			return f.String
		}
	}
	return ""
}
