// Package logger provides leveled logging for sercha-docs.
//
// Debug, Info and Warn messages are printed only in verbose mode (the
// --verbose flag). Error messages are always printed because ingestion
// failures must stay visible in long-running serve processes.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

var (
	mu         sync.RWMutex
	verbose    bool
	timestamps bool
	output     io.Writer = os.Stderr
	now                  = time.Now
)

// SetVerbose enables or disables verbose logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetTimestamps prefixes every line with an RFC3339 timestamp.
// The serve command turns this on; one-shot commands leave it off.
func SetTimestamps(v bool) {
	mu.Lock()
	defer mu.Unlock()
	timestamps = v
}

// SetOutput sets the output writer for logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// Debug prints a message if verbose mode is enabled.
func Debug(format string, args ...any) {
	write(false, "DEBUG", "", format, args...)
}

// Info prints an informational message if verbose mode is enabled.
func Info(format string, args ...any) {
	write(false, "INFO", "", format, args...)
}

// Warn prints a warning message if verbose mode is enabled.
func Warn(format string, args ...any) {
	write(false, "WARN", "", format, args...)
}

// Error prints an error message regardless of verbose mode.
func Error(format string, args ...any) {
	write(true, "ERROR", "", format, args...)
}

// Section prints a section header if verbose mode is enabled.
func Section(name string) {
	mu.RLock()
	defer mu.RUnlock()
	if verbose {
		fmt.Fprintf(output, "\n=== %s ===\n", name)
	}
}

// Logger is a component-scoped logger. Every line carries the component
// name so that interleaved output from concurrent sources stays readable.
type Logger struct {
	component string
}

// With returns a logger that prefixes messages with the component name.
func With(component string) *Logger {
	return &Logger{component: component}
}

// Debug prints a component message if verbose mode is enabled.
func (l *Logger) Debug(format string, args ...any) {
	write(false, "DEBUG", l.component, format, args...)
}

// Info prints a component message if verbose mode is enabled.
func (l *Logger) Info(format string, args ...any) {
	write(false, "INFO", l.component, format, args...)
}

// Warn prints a component warning if verbose mode is enabled.
func (l *Logger) Warn(format string, args ...any) {
	write(false, "WARN", l.component, format, args...)
}

// Error prints a component error regardless of verbose mode.
func (l *Logger) Error(format string, args ...any) {
	write(true, "ERROR", l.component, format, args...)
}

func write(always bool, level, component, format string, args ...any) {
	// Full lock: concurrent sources share one writer.
	mu.Lock()
	defer mu.Unlock()
	if !always && !verbose {
		return
	}

	prefix := "[" + level + "] "
	if component != "" {
		prefix += component + ": "
	}
	if timestamps {
		prefix = now().UTC().Format(time.RFC3339) + " " + prefix
	}
	fmt.Fprintf(output, prefix+format+"\n", args...)
}
