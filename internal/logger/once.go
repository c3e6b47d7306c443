package logger

import (
	"sync"

	"go.uber.org/zap"
)

// Once logs each key at most once until the key is reset. The rig uses it
// for per-tick conditions such as queued writes to undeclared parameters.
type Once struct {
	log  *zap.Logger
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewOnce wraps log. A nil logger discards.
func NewOnce(log *zap.Logger) *Once {
	if log == nil {
		log = zap.NewNop()
	}
	return &Once{log: log, seen: make(map[string]struct{})}
}

// Warn logs msg at warn level the first time key is seen. It reports whether
// the message was written.
func (o *Once) Warn(key, msg string, fields ...zap.Field) bool {
	if !o.first(key) {
		return false
	}
	o.log.Warn(msg, fields...)
	return true
}

// Error is Warn at error level.
func (o *Once) Error(key, msg string, fields ...zap.Field) bool {
	if !o.first(key) {
		return false
	}
	o.log.Error(msg, fields...)
	return true
}

// Reset re-arms key. It reports whether the key had fired.
func (o *Once) Reset(key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.seen[key]
	delete(o.seen, key)
	return ok
}

func (o *Once) first(key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.seen[key]; ok {
		return false
	}
	o.seen[key] = struct{}{}
	return true
}
