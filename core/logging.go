package core

import (
	"sync"

	"go.uber.org/zap"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the package-wide structured logger, defaulting to a
// no-op logger until SetLogger is called.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger installs l as the package-wide structured logger. Call this
// before Lower if step-by-step diagnostics are wanted; the default is
// silent.
func SetLogger(l *zap.Logger) {
	loggerOnce.Do(func() {})
	logger = l
}
