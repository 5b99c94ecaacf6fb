package clientlog

import (
	"go.uber.org/zap/zapcore"
)

// Core is a zap core that hands entries to a Hub.
// Tee it next to the console core with logger.AddCore.
type Core struct {
	zapcore.LevelEnabler
	hub    *Hub
	fields []zapcore.Field
}

// NewCore creates a core forwarding entries enabled by level to hub
func NewCore(level zapcore.LevelEnabler, hub *Hub) *Core {
	return &Core{
		LevelEnabler: level,
		hub:          hub,
	}
}

// With keeps fields so the connection set by a session's logger survives to Write
func (c *Core) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &Core{
		LevelEnabler: c.LevelEnabler,
		hub:          c.hub,
		fields:       merged,
	}
}

func (c *Core) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

// Write routes entries carrying a connection field to that session and
// broadcasts the rest.
func (c *Core) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	if !c.Enabled(entry.Level) || c.hub == nil {
		return nil
	}

	all := fields
	if len(c.fields) > 0 {
		all = make([]zapcore.Field, 0, len(c.fields)+len(fields))
		all = append(all, c.fields...)
		all = append(all, fields...)
	}

	c.hub.Send(connectionOf(all), FromZapEntry(entry, all))
	return nil
}

// Sync is a no-op; delivery is asynchronous per session
func (c *Core) Sync() error {
	return nil
}
