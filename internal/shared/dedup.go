package shared

import (
	"errors"
	"sync"
	"time"
)

// DedupWindow rejects re-submission of an identical create within a short
// time window. It guards against rapid double-clicks in the UI layer; it is
// not a true idempotency key and makes no guarantee across process restarts.
type DedupWindow struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]time.Time
	now    func() time.Time
}

// NewDedupWindow constructs the window store.
func NewDedupWindow(window time.Duration) *DedupWindow {
	return &DedupWindow{
		window: window,
		seen:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// CheckAndInsert records key, returning ErrDuplicateSubmission when the same
// key was recorded within the window.
func (d *DedupWindow) CheckAndInsert(key string) error {
	if d == nil {
		return errors.New("dedup window not initialised")
	}
	if key == "" {
		return errors.New("dedup key required")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if at, ok := d.seen[key]; ok && now.Sub(at) < d.window {
		return ErrDuplicateSubmission
	}
	d.seen[key] = now
	d.sweepLocked(now)
	return nil
}

// Delete removes a key, typically used to roll back failed processing.
func (d *DedupWindow) Delete(key string) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
}

func (d *DedupWindow) sweepLocked(now time.Time) {
	for k, at := range d.seen {
		if now.Sub(at) >= d.window {
			delete(d.seen, k)
		}
	}
}
