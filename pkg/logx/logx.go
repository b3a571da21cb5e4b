// Package logx provides structured, leveled logging for the ticket-reconciliation agent.
package logx

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level identifies the severity of a log record.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "trace"
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// ParseLevel converts a config string (spec §6 log_level) to a Level.
// Unrecognized values fall back to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// globalLevel is the process-wide minimum level; set once at startup from
// configuration, read thereafter. DEBUG=1 in the environment forces debug,
// mirroring the teacher's debugConfig env-var bootstrap.
//
//nolint:gochecknoglobals // intentional singleton, mirrors teacher's debugConfig
var (
	globalLevel = LevelInfo
	levelMu     sync.RWMutex
)

func init() { //nolint:gochecknoinits // env-var bootstrap, same idiom as teacher's logx
	if v := os.Getenv("DEBUG"); v == "1" || strings.EqualFold(v, "true") {
		globalLevel = LevelDebug
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		globalLevel = ParseLevel(v)
	}
}

// SetLevel sets the process-wide minimum log level. Called once from
// configuration loading (config.log_level) or --verbose on the CLI.
func SetLevel(l Level) {
	levelMu.Lock()
	defer levelMu.Unlock()
	globalLevel = l
}

func currentLevel() Level {
	levelMu.RLock()
	defer levelMu.RUnlock()
	return globalLevel
}

// Logger emits one structured key=value record per event to stderr, tagged
// with a component name and, for ticket-scoped events, a ticket key.
type Logger struct {
	component string
	ticketKey string
	std       *log.Logger
	fields    []field
}

type field struct {
	key, value string
}

// New creates a component-scoped logger, e.g. logx.New("orchestrator").
func New(component string) *Logger {
	return &Logger{
		component: component,
		std:       log.New(os.Stderr, "", 0),
	}
}

// With returns a child logger that always includes ticket_key in its records,
// per §7's "mandatory ticket_key when applicable".
func (l *Logger) With(ticketKey string) *Logger {
	return &Logger{
		component: l.component,
		ticketKey: ticketKey,
		std:       l.std,
		fields:    l.fields,
	}
}

// WithField returns a child logger carrying one extra structured field.
func (l *Logger) WithField(key, value string) *Logger {
	fields := make([]field, len(l.fields), len(l.fields)+1)
	copy(fields, l.fields)
	fields = append(fields, field{key, value})
	return &Logger{
		component: l.component,
		ticketKey: l.ticketKey,
		std:       l.std,
		fields:    fields,
	}
}

func (l *Logger) emit(level Level, msg string) {
	if level < currentLevel() {
		return
	}

	parts := make([]string, 0, len(l.fields)+4)
	parts = append(parts,
		"time="+time.Now().UTC().Format(time.RFC3339Nano),
		"level="+level.String(),
		"component="+l.component,
	)
	if l.ticketKey != "" {
		parts = append(parts, "ticket_key="+l.ticketKey)
	}
	fs := append([]field(nil), l.fields...)
	sort.Slice(fs, func(i, j int) bool { return fs[i].key < fs[j].key })
	for _, f := range fs {
		parts = append(parts, f.key+"="+quoteIfNeeded(f.value))
	}
	parts = append(parts, "msg="+quoteIfNeeded(msg))

	l.std.Println(strings.Join(parts, " "))
}

func quoteIfNeeded(s string) string {
	if strings.ContainsAny(s, " \t\"=") {
		return fmt.Sprintf("%q", s)
	}
	return s
}

func (l *Logger) Trace(format string, args ...any) { l.emit(LevelTrace, fmt.Sprintf(format, args...)) }
func (l *Logger) Debug(format string, args ...any) { l.emit(LevelDebug, fmt.Sprintf(format, args...)) }
func (l *Logger) Info(format string, args ...any)  { l.emit(LevelInfo, fmt.Sprintf(format, args...)) }
func (l *Logger) Warn(format string, args ...any)  { l.emit(LevelWarn, fmt.Sprintf(format, args...)) }
func (l *Logger) Error(format string, args ...any) { l.emit(LevelError, fmt.Sprintf(format, args...)) }
