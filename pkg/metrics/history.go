// Package metrics keeps the history of broker statistics samples for charts:
// the most recent samples in a ring buffer and, optionally, all samples
// within the retention window in sqlite.
package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/kenliao94/amqconsole/pkg/domain"
)

// DefaultSize is the number of samples retained in memory
const DefaultSize = 100

// Params configure the history
type Params struct {
	Size      int
	DSN       string        // sqlite dsn, memory only if empty
	Retention time.Duration // persisted samples older than this are pruned, kept forever if zero
}

// History is a thread-safe statistics history
type History struct {
	mu   sync.RWMutex
	ring ring

	db        *sqlStore
	retention time.Duration
}

// New makes a history. With a DSN the database is opened and its schema initialized.
func New(ctx context.Context, p Params) (*History, error) {
	if p.Size <= 0 {
		p.Size = DefaultSize
	}
	h := &History{ring: newRing(p.Size), retention: p.Retention}
	if p.DSN == "" {
		return h, nil
	}
	db, err := openSQL(ctx, p.DSN)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	h.db = db

	// warm the ring from persisted samples so charts survive restarts
	recent, err := db.recent(ctx, p.Size)
	if err != nil {
		_ = db.close()
		return nil, fmt.Errorf("load recent samples: %w", err)
	}
	for _, s := range recent {
		h.ring.push(s)
	}
	lgr.Printf("[DEBUG] statistics history loaded %d samples from %s", len(recent), p.DSN)
	return h, nil
}

// Add appends a sample. The in-memory ring is always updated; a failed persist is returned.
func (h *History) Add(ctx context.Context, s domain.BrokerStatistics) error {
	if s.SampledAt.IsZero() {
		s.SampledAt = time.Now()
	}
	h.mu.Lock()
	h.ring.push(s)
	h.mu.Unlock()

	if h.db == nil {
		return nil
	}
	if err := h.db.insert(ctx, s); err != nil {
		return fmt.Errorf("persist sample: %w", err)
	}
	if h.retention > 0 {
		if _, err := h.db.prune(ctx, s.SampledAt.Add(-h.retention)); err != nil {
			return fmt.Errorf("prune samples: %w", err)
		}
	}
	return nil
}

// Recent returns up to n latest samples, oldest first. n <= 0 returns everything in memory.
func (h *History) Recent(n int) []domain.BrokerStatistics {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ring.last(n)
}

// Since returns samples taken at or after t, oldest first.
// Without a database only the in-memory samples are searched.
func (h *History) Since(ctx context.Context, t time.Time) ([]domain.BrokerStatistics, error) {
	if h.db != nil {
		return h.db.since(ctx, t)
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	res := []domain.BrokerStatistics{}
	for _, s := range h.ring.last(0) {
		if !s.SampledAt.Before(t) {
			res = append(res, s)
		}
	}
	return res, nil
}

// Len returns the number of samples in memory
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ring.count
}

// Close closes the database if any
func (h *History) Close() error {
	if h.db == nil {
		return nil
	}
	return h.db.close()
}

// ring is a fixed-size circular buffer of samples
type ring struct {
	data  []domain.BrokerStatistics
	head  int // next write position
	count int
}

func newRing(size int) ring {
	return ring{data: make([]domain.BrokerStatistics, size)}
}

func (r *ring) push(s domain.BrokerStatistics) {
	r.data[r.head] = s
	r.head = (r.head + 1) % len(r.data)
	if r.count < len(r.data) {
		r.count++
	}
}

// last returns up to n latest samples in chronological order
func (r *ring) last(n int) []domain.BrokerStatistics {
	if n <= 0 || n > r.count {
		n = r.count
	}
	res := make([]domain.BrokerStatistics, n)
	start := (r.head - n + len(r.data)) % len(r.data)
	for i := 0; i < n; i++ {
		res[i] = r.data[(start+i)%len(r.data)]
	}
	return res
}
