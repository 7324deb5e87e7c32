package bincodec

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// logger is set in its declaration so that Default, built during package
// variable initialization, can log.
var logger = func() (p atomic.Pointer[zap.Logger]) {
	p.Store(zap.NewNop())
	return
}()

// Logger returns the package logger. It is a no-op logger by default.
func Logger() *zap.Logger {
	return logger.Load()
}

// SetLogger replaces the package logger used by registries created without
// their own. A nil logger restores the no-op logger.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger.Store(l.Named("bincodec"))
}
