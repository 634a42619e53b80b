package logger

import (
	"sync"

	"go.uber.org/zap"
)

// Once deduplicates warnings by key. A zero Once is ready to use; its
// lifetime is that of whoever owns it, typically a single run.
type Once struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// Warn logs msg at warn level the first time key is seen and reports
// whether it did.
func (o *Once) Warn(log *zap.Logger, key, msg string, fields ...zap.Field) bool {
	o.mu.Lock()
	if o.seen == nil {
		o.seen = make(map[string]struct{})
	}
	_, dup := o.seen[key]
	o.seen[key] = struct{}{}
	o.mu.Unlock()

	if dup {
		return false
	}
	log.Warn(msg, fields...)
	return true
}
