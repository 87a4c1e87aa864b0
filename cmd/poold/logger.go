// logger.go - Structured logging and audit trail for the daemons
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger is the process logger. Audit events go to a separate append-only file.
type Logger struct {
	zerolog.Logger

	file      *os.File
	auditFile *os.File
	audit     *zerolog.Logger
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger instance
func NewLogger(level string, logFile string, auditFile string) (*Logger, error) {
	return newLogger(os.Stdout, level, logFile, auditFile)
}

func newLogger(console io.Writer, level string, logFile string, auditFile string) (*Logger, error) {
	l := &Logger{}
	writers := []io.Writer{zerolog.ConsoleWriter{Out: console, TimeFormat: "2006-01-02 15:04:05"}}

	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		l.file = file
		writers = append(writers, file)
	}

	if auditFile != "" {
		file, err := os.OpenFile(auditFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("failed to open audit file: %w", err)
		}
		l.auditFile = file
		audit := zerolog.New(file).With().Timestamp().Str("type", "audit").Logger()
		l.audit = &audit
	}

	l.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(parseLevel(level)).
		With().Timestamp().Logger()
	return l, nil
}

// Close closes the logger and its files
func (l *Logger) Close() error {
	var first error
	for _, f := range []*os.File{l.file, l.auditFile} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Audit logs an audit event
func (l *Logger) Audit(event string, details map[string]interface{}) {
	l.Debug().Str("event", event).Msg("audit")
	if l.audit == nil {
		return
	}
	l.audit.Log().
		Str("event", event).
		Fields(details).
		Msg("")
}
