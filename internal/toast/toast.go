// Package toast holds transient user notifications that expire on their own.
package toast

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultTTL is how long a toast stays visible.
const DefaultTTL = 3 * time.Second

// Kind classifies a toast.
type Kind string

const (
	Success Kind = "success"
	Error   Kind = "error"
	Info    Kind = "info"
)

// Toast is a single notification.
type Toast struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`

	seq uint64
}

// Emitter keeps the toasts that have not expired or been dismissed.
type Emitter struct {
	ttl time.Duration
	now func() time.Time

	mu     sync.Mutex
	seq    uint64
	toasts map[string]Toast
}

// NewEmitter creates an Emitter. A non-positive ttl selects DefaultTTL.
func NewEmitter(ttl time.Duration) *Emitter {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Emitter{ttl: ttl, now: time.Now, toasts: make(map[string]Toast)}
}

// Emit shows msg and returns the new toast.
func (e *Emitter) Emit(kind Kind, msg string) Toast {
	now := e.now()
	t := Toast{
		ID:        uuid.NewString(),
		Kind:      kind,
		Message:   msg,
		CreatedAt: now,
		ExpiresAt: now.Add(e.ttl),
	}
	e.mu.Lock()
	e.seq++
	t.seq = e.seq
	e.toasts[t.ID] = t
	e.mu.Unlock()
	return t
}

// Active returns the unexpired toasts in emission order.
func (e *Emitter) Active() []Toast {
	now := e.now()
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Toast, 0, len(e.toasts))
	for _, t := range e.toasts {
		if now.Before(t.ExpiresAt) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Dismiss removes the toast with id. It reports whether one was removed.
func (e *Emitter) Dismiss(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.toasts[id]; !ok {
		return false
	}
	delete(e.toasts, id)
	return true
}

// Sweep drops expired toasts and returns how many were removed.
func (e *Emitter) Sweep() int {
	now := e.now()
	e.mu.Lock()
	defer e.mu.Unlock()
	removed := 0
	for id, t := range e.toasts {
		if !now.Before(t.ExpiresAt) {
			delete(e.toasts, id)
			removed++
		}
	}
	return removed
}

// StartSweeper sweeps e every interval until ctx is done.
func StartSweeper(ctx context.Context, e *Emitter, interval time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := e.Sweep(); n > 0 {
					log.Debug("expired toasts removed", zap.Int("removed", n))
				}
			}
		}
	}()
}
