package system

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Masked replaces sensitive values in log output.
const Masked = "***MASKED***"

// LogFilePrefix is the file name prefix of per-session log files.
const LogFilePrefix = "flow_cleanup_"

var sensitiveKeys = map[string]struct{}{
	"access_token":  {},
	"accesstoken":   {},
	"authorization": {},
	"client_secret": {},
	"clientsecret":  {},
	"code":          {},
	"code_verifier": {},
	"refresh_token": {},
	"password":      {},
}

// LoggerOptions configures the session logger.
type LoggerOptions struct {
	// Debug lowers the level to debug and switches the console encoder to development mode.
	Debug bool
	// Verbose tees log entries to Console in addition to the session file.
	Verbose bool
	// Dir is where the session log file is created. Empty disables the file.
	Dir string
	// SessionID names the log file: flow_cleanup_<SessionID>.log.
	SessionID string
	// Console receives console output when Verbose is set. Defaults to os.Stderr.
	Console io.Writer
}

// SessionLog is a logger bound to a per-session log file.
type SessionLog struct {
	Logger *zap.SugaredLogger
	// Path is the log file path, empty when file logging is disabled.
	Path  string
	close func()
}

// Close flushes the logger and releases the log file.
func (s *SessionLog) Close() {
	if s == nil {
		return
	}
	if s.Logger != nil {
		_ = s.Logger.Sync()
	}
	if s.close != nil {
		s.close()
	}
}

// NewLogger builds the run logger. All cores are wrapped with NewRedactingCore.
func NewLogger(opts LoggerOptions) (*SessionLog, error) {
	level := zapcore.InfoLevel
	if opts.Debug {
		level = zapcore.DebugLevel
	}

	var cores []zapcore.Core
	session := &SessionLog{}

	if opts.Dir != "" {
		if opts.SessionID == "" {
			return nil, fmt.Errorf("session id is required for file logging")
		}
		if err := os.MkdirAll(opts.Dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create log dir: %w", err)
		}
		path := filepath.Join(opts.Dir, LogFilePrefix+opts.SessionID+".log")
		sink, closeFn, err := zap.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), sink, level))
		session.Path = path
		session.close = closeFn
	}

	if opts.Verbose {
		console := opts.Console
		if console == nil {
			console = os.Stderr
		}
		encCfg := zap.NewDevelopmentEncoderConfig()
		if !opts.Debug {
			encCfg = zap.NewProductionEncoderConfig()
			encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(console), level))
	}

	if len(cores) == 0 {
		session.Logger = zap.NewNop().Sugar()
		return session, nil
	}
	session.Logger = zap.New(NewRedactingCore(zapcore.NewTee(cores...))).Sugar()
	return session, nil
}

type redactingCore struct {
	zapcore.Core
}

// NewRedactingCore wraps core so that values of sensitive field keys (tokens, secrets,
// authorization codes) and key=value pairs inside messages are masked.
func NewRedactingCore(core zapcore.Core) zapcore.Core {
	return redactingCore{Core: core}
}

func (c redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return redactingCore{Core: c.Core.With(redactFields(fields))}
}

func (c redactingCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c redactingCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	ent.Message = MaskSensitive(ent.Message)
	return c.Core.Write(ent, redactFields(fields))
}

func redactFields(fields []zapcore.Field) []zapcore.Field {
	var out []zapcore.Field
	for i, f := range fields {
		if !IsSensitiveKey(f.Key) {
			if out != nil {
				out = append(out, f)
			}
			continue
		}
		if out == nil {
			out = make([]zapcore.Field, i, len(fields))
			copy(out, fields[:i])
		}
		out = append(out, zap.String(f.Key, Masked))
	}
	if out == nil {
		return fields
	}
	return out
}

// IsSensitiveKey reports whether values logged under key must be masked.
func IsSensitiveKey(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(key)]
	return ok
}
