package logging

import "go.uber.org/zap"

// zapLogger adapts a *zap.SugaredLogger to Logger.
type zapLogger struct {
	s *zap.SugaredLogger
}

// NewZap builds a production zap.Logger (JSON encoding, ISO8601
// timestamps) and wraps it as a Logger. Call the returned Sync method
// before process exit to flush any buffered entries.
func NewZap() (Logger, func(), error) {
	base, err := zap.NewProduction()
	if err != nil {
		return nil, func() {}, err
	}
	return &zapLogger{s: base.Sugar()}, func() { _ = base.Sync() }, nil
}

func (z *zapLogger) Debugf(format string, args ...interface{}) { z.s.Debugf(format, args...) }
func (z *zapLogger) Infof(format string, args ...interface{})  { z.s.Infof(format, args...) }
func (z *zapLogger) Warnf(format string, args ...interface{})  { z.s.Warnf(format, args...) }
func (z *zapLogger) Errorf(format string, args ...interface{}) { z.s.Errorf(format, args...) }
