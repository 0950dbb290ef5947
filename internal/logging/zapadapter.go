package logging

import (
	"go.uber.org/zap"
)

// KVAdapter exposes a zap logger through the loosely typed
// msg plus key/value pairs interface some third-party libraries expect.
type KVAdapter struct {
	sugar *zap.SugaredLogger
}

// NewKVAdapter creates an adapter writing to z.
func NewKVAdapter(z *zap.Logger) *KVAdapter {
	if z == nil {
		z = zap.NewNop()
	}
	return &KVAdapter{sugar: z.Sugar()}
}

// Debug logs at debug level.
func (a *KVAdapter) Debug(msg string, fields ...interface{}) {
	a.sugar.Debugw(msg, fields...)
}

// Info logs at info level.
func (a *KVAdapter) Info(msg string, fields ...interface{}) {
	a.sugar.Infow(msg, fields...)
}

// Warn logs at warn level.
func (a *KVAdapter) Warn(msg string, fields ...interface{}) {
	a.sugar.Warnw(msg, fields...)
}

// Error logs at error level.
func (a *KVAdapter) Error(msg string, fields ...interface{}) {
	a.sugar.Errorw(msg, fields...)
}
