package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global logger instance
	Logger *zap.SugaredLogger
	// Flag to track if JSON output is enabled
	JSONOutput bool

	// level backs every core built by Initialize so SetDebug can adjust it at runtime
	level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	// baseLevel is the level chosen from verbosity, restored when debug is switched off
	baseLevel = zapcore.WarnLevel

	coresMu sync.Mutex
	// console is the core built by Initialize; extra cores are teed next to it
	console zapcore.Core = zapcore.NewNopCore()
	extra   []zapcore.Core
)

func init() {
	// Nop until Initialize so package-level use before startup never panics
	Logger = zap.NewNop().Sugar()
}

// Initialize sets up the global logger.
//
// Output always goes to stderr: in stdio mode stdout carries the JSON-RPC
// stream and a single stray log line corrupts the client's framing.
func Initialize(jsonOutput bool, verbosity int) error {
	return InitializeWithSink(jsonOutput, verbosity, zapcore.Lock(os.Stderr))
}

// InitializeWithSink is Initialize with an explicit destination.
func InitializeWithSink(jsonOutput bool, verbosity int, sink zapcore.WriteSyncer) error {
	JSONOutput = jsonOutput
	baseLevel = VerbosityToLevel(verbosity)
	level.SetLevel(baseLevel)

	var encoder zapcore.Encoder
	if jsonOutput {
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(cfg)
	} else {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		cfg.EncodeCaller = nil
		cfg.CallerKey = ""
		encoder = zapcore.NewConsoleEncoder(cfg)
	}

	coresMu.Lock()
	defer coresMu.Unlock()
	console = zapcore.NewCore(encoder, sink, level)
	rebuild()
	return nil
}

// AddCore tees core next to the console output. The returned func removes it.
// Component loggers created before the call do not see the new core.
func AddCore(core zapcore.Core) (remove func()) {
	coresMu.Lock()
	defer coresMu.Unlock()
	extra = append(extra, core)
	rebuild()

	return func() {
		coresMu.Lock()
		defer coresMu.Unlock()
		for i, c := range extra {
			if c == core {
				extra = append(extra[:i:i], extra[i+1:]...)
				break
			}
		}
		rebuild()
	}
}

// rebuild replaces Logger; callers hold coresMu
func rebuild() {
	if len(extra) == 0 {
		Logger = zap.New(console).Sugar()
		return
	}
	cores := append([]zapcore.Core{console}, extra...)
	Logger = zap.New(zapcore.NewTee(cores...)).Sugar()
}

// Enabler returns the runtime level shared by every core, for cores added with AddCore
func Enabler() zapcore.LevelEnabler {
	return level
}

// SetDebug forces debug level on, or restores the verbosity-derived level.
// Driven by the attack.debug setting, which editors may flip mid-session.
func SetDebug(enabled bool) {
	if enabled {
		level.SetLevel(zapcore.DebugLevel)
		return
	}
	level.SetLevel(baseLevel)
}

// Level returns the currently active level.
func Level() zapcore.Level {
	return level.Level()
}

// Cleanup flushes any buffered log entries
func Cleanup() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}

// Infow logs an info message with structured fields
func Infow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Infow(msg, keysAndValues...)
	}
}

// Errorw logs an error message with structured fields
func Errorw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Errorw(msg, keysAndValues...)
	}
}

// Warnw logs a warning message with structured fields
func Warnw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Warnw(msg, keysAndValues...)
	}
}

// Debugw logs a debug message with structured fields
func Debugw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Debugw(msg, keysAndValues...)
	}
}
