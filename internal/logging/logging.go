// Package logging defines the small structured-logging interface every
// component accepts, grounded on the teacher's internal/sync.Logger
// (a single Printf(format string, v ...interface{}) method, optional
// on sync.Config, defaulting to a no-op). SPEC_FULL.md promotes
// go.uber.org/zap — already present transitively as libp2p's own
// logging backend — to a direct dependency and widens the interface to
// leveled Debugf/Infof/Warnf/Errorf, but keeps the same "optional,
// defaults to silence" plumbing shape.
package logging

// Logger is the leveled logging interface components accept. The zero
// value of any field holding one should never be dereferenced
// directly — Nop() or NewZap() always return a non-nil Logger.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// nopLogger discards everything, matching the teacher's noopLogger
// default.
type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}

// Nop returns a Logger that discards every call — the default a
// component falls back to when no Logger option is supplied.
func Nop() Logger { return nopLogger{} }
