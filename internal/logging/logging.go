// Package logging defines a narrow structured-logging interface so
// that handlers and coordinators depend on this package instead of
// importing go.uber.org/zap directly. Adapted from
// gostratum-storagex/logger_adapter.go's wrap-and-decouple shape, with
// zap's own Sugared key/value method names (Debugw/Infow/Warnw/Errorw)
// instead of that file's plain Debug/Info/Warn/Error, since this
// module's ambient logger is zap rather than gostratum's core logger.
package logging

import "go.uber.org/zap"

// Logger is the structured logger every handler and coordinator takes
// a dependency on. Implementations accept variadic key/value pairs,
// the same convention zap's SugaredLogger uses.
type Logger interface {
	Debugw(msg string, kv ...interface{})
	Infow(msg string, kv ...interface{})
	Warnw(msg string, kv ...interface{})
	Errorw(msg string, kv ...interface{})

	// With returns a Logger with kv attached to every subsequent
	// entry, for request-scoped fields (request id, file id).
	With(kv ...interface{}) Logger
}

// NewZap wraps a *zap.Logger as a Logger.
func NewZap(l *zap.Logger) Logger {
	return zapLogger{l.Sugar()}
}

// NewNop returns a Logger that discards everything, for tests.
func NewNop() Logger {
	return zapLogger{zap.NewNop().Sugar()}
}

type zapLogger struct {
	s *zap.SugaredLogger
}

func (z zapLogger) Debugw(msg string, kv ...interface{}) { z.s.Debugw(msg, kv...) }
func (z zapLogger) Infow(msg string, kv ...interface{})  { z.s.Infow(msg, kv...) }
func (z zapLogger) Warnw(msg string, kv ...interface{})  { z.s.Warnw(msg, kv...) }
func (z zapLogger) Errorw(msg string, kv ...interface{}) { z.s.Errorw(msg, kv...) }

func (z zapLogger) With(kv ...interface{}) Logger {
	return zapLogger{z.s.With(kv...)}
}
