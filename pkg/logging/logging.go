// Package logging provides the debug-gated logger used across the
// scheduling pipeline, matching ProductionScheduler.debug_print: plain
// stdlib log output, silent unless a run has debug enabled.
package logging

import "log"

// Logger wraps the standard library logger with a debug gate so that verbose
// per-instance tracing can be toggled per run without a structured logging
// dependency the rest of the stack never reaches for either.
type Logger struct {
	debug bool
}

// New returns a Logger with the given debug gate.
func New(debug bool) *Logger {
	return &Logger{debug: debug}
}

// Debugf logs only when the logger was constructed with debug=true.
func (l *Logger) Debugf(format string, args ...interface{}) {
	if l == nil || !l.debug {
		return
	}
	log.Printf("[DEBUG] "+format, args...)
}

// Warnf always logs, matching the source's unconditional [WARNING] prints.
func (l *Logger) Warnf(format string, args ...interface{}) {
	log.Printf("[WARNING] "+format, args...)
}

// Errorf always logs, matching the source's unconditional [ERROR] prints.
func (l *Logger) Errorf(format string, args ...interface{}) {
	log.Printf("[ERROR] "+format, args...)
}

// Infof always logs.
func (l *Logger) Infof(format string, args ...interface{}) {
	log.Printf(format, args...)
}
