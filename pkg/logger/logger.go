package logger

import (
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"
)

var (
	defaultLogger   *Logger
	defaultLoggerMu sync.RWMutex
)

func init() {
	defaultLogger = NewLogger(false)
}

// Logger provides leveled logging functionality.
//
// Progress and warning lines go to stdout so that a migration run reads as one
// transcript; only errors go to stderr.
type Logger struct {
	debug   *log.Logger
	info    *log.Logger
	warning *log.Logger
	err     *log.Logger
	verbose bool
	prefix  string
	warns   *atomic.Int64
	mu      sync.RWMutex
}

// NewLogger creates a new Logger instance.
func NewLogger(verbose bool) *Logger {
	return &Logger{
		debug:   log.New(os.Stdout, "", 0),
		info:    log.New(os.Stdout, "", 0),
		warning: log.New(os.Stdout, "", 0),
		err:     log.New(os.Stderr, "", 0),
		verbose: verbose,
		prefix:  "",
		warns:   new(atomic.Int64),
	}
}

// SetVerbose enables or disables verbose logging.
func (l *Logger) SetVerbose(verbose bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.verbose = verbose
}

// SetPrefix sets the prefix for all log messages.
func (l *Logger) SetPrefix(prefix string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prefix = prefix
}

// Prefix returns the current message prefix.
func (l *Logger) Prefix() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.prefix
}

// Clone creates a copy of the logger that can be independently configured.
// The clone shares the warning counter of its parent.
func (l *Logger) Clone() *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return &Logger{
		debug:   log.New(l.debug.Writer(), l.debug.Prefix(), l.debug.Flags()),
		info:    log.New(l.info.Writer(), l.info.Prefix(), l.info.Flags()),
		warning: log.New(l.warning.Writer(), l.warning.Prefix(), l.warning.Flags()),
		err:     log.New(l.err.Writer(), l.err.Prefix(), l.err.Flags()),
		verbose: l.verbose,
		prefix:  l.prefix,
		warns:   l.warns,
	}
}

// WithPrefix returns a clone whose prefix is the current prefix followed by prefix.
func (l *Logger) WithPrefix(prefix string) *Logger {
	c := l.Clone()
	c.prefix = c.prefix + prefix
	return c
}

// SetOutput sets the output destination for all log levels.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debug.SetOutput(w)
	l.info.SetOutput(w)
	l.warning.SetOutput(w)
	l.err.SetOutput(w)
}

// SetInfoOutput sets the output destination for info, warning, and debug messages.
func (l *Logger) SetInfoOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debug.SetOutput(w)
	l.info.SetOutput(w)
	l.warning.SetOutput(w)
}

// SetErrorOutput sets the output destination for error messages.
func (l *Logger) SetErrorOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err.SetOutput(w)
}

// Debug logs a debug message (only if verbose is enabled).
func (l *Logger) Debug(format string, args ...interface{}) {
	l.mu.RLock()
	verbose := l.verbose
	prefix := l.prefix
	l.mu.RUnlock()
	if verbose {
		l.debug.Printf("[DEBUG] "+prefix+format, args...)
	}
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	l.mu.RLock()
	prefix := l.prefix
	l.mu.RUnlock()
	l.info.Printf(prefix+format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.mu.RLock()
	prefix := l.prefix
	l.mu.RUnlock()
	l.warns.Add(1)
	l.warning.Printf("Warning: "+prefix+format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...interface{}) {
	l.mu.RLock()
	prefix := l.prefix
	l.mu.RUnlock()
	l.err.Printf("Error: "+prefix+format, args...)
}

// WarnCount returns the number of warnings logged by this logger and its clones.
func (l *Logger) WarnCount() int64 {
	return l.warns.Load()
}

// Default returns the default logger instance.
func Default() *Logger {
	defaultLoggerMu.RLock()
	defer defaultLoggerMu.RUnlock()
	return defaultLogger
}

// SetDefault sets the default logger instance.
func SetDefault(l *Logger) {
	defaultLoggerMu.Lock()
	defer defaultLoggerMu.Unlock()
	defaultLogger = l
}

// SetVerbose enables or disables verbose logging on the default logger.
func SetVerbose(verbose bool) {
	Default().SetVerbose(verbose)
}

// SetOutput sets the output destination for all log levels on the default logger.
func SetOutput(w io.Writer) {
	Default().SetOutput(w)
}

// Debug logs a debug message using the default logger.
func Debug(format string, args ...interface{}) {
	Default().Debug(format, args...)
}

// Info logs an informational message using the default logger.
func Info(format string, args ...interface{}) {
	Default().Info(format, args...)
}

// Warn logs a warning message using the default logger.
func Warn(format string, args ...interface{}) {
	Default().Warn(format, args...)
}

// Errorf logs an error message using the default logger.
func Errorf(format string, args ...interface{}) {
	Default().Error(format, args...)
}
