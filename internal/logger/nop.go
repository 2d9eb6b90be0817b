package logger

import "go.uber.org/zap"

// NewNop returns a Logger that discards all log entries. Intended for tests
// and for components constructed before configuration is loaded.
func NewNop() Logger {
	return &zapLogger{logger: zap.NewNop()}
}
