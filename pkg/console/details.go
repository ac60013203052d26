package console

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/kenliao94/amqconsole/pkg/domain"
	"github.com/kenliao94/amqconsole/pkg/refresh"
	"github.com/kenliao94/amqconsole/pkg/remote"
	"github.com/kenliao94/amqconsole/pkg/scheduler"
	"github.com/kenliao94/amqconsole/pkg/store"
)

// feature name prefixes of detail features
const (
	FeatureQueuePrefix      = "queue:"
	FeatureTopicPrefix      = "topic:"
	FeatureConnectionPrefix = "connection:"
	FeatureSubscriberPrefix = "subscriber:"
	FeatureMessagePrefix    = "message:"
)

// DetailOptions configure detail features
type DetailOptions struct {
	Interval time.Duration
}

// MessageKey is the detail key of a message in a queue
func MessageKey(queue, id string) string { return queue + "/" + id }

// splitMessageKey reverses MessageKey, message ids never contain a slash
func splitMessageKey(key string) (queue, id string, ok bool) {
	i := strings.LastIndex(key, "/")
	if i <= 0 || i == len(key)-1 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}

// Detail polls a single target: one queue, topic, connection, subscriber or message
type Detail[T any] struct {
	feature
	key   string
	store *store.Store[T]
}

// Key returns the polled target key
func (d *Detail[T]) Key() string { return d.key }

// Store returns the target's store
func (d *Detail[T]) Store() *store.Store[T] { return d.store }

// Details manages the open detail features of one target type.
// A detail whose target is gone (remote 404) pauses its own polling.
type Details[T any] struct {
	prefix      string
	stores      *store.Keyed[T]
	fetch       func(ctx context.Context, key string) (T, error)
	check       func(key string) error // optional key validation
	sched       *scheduler.Scheduler
	orch        *refresh.Orchestrator
	interval    time.Duration
	autoRefresh func() bool

	mu   sync.Mutex
	open map[string]*Detail[T]
}

func newDetailSet[T any](p Params, prefix string, stores *store.Keyed[T], autoRefresh func() bool,
	fetch func(ctx context.Context, key string) (T, error)) *Details[T] {
	return &Details[T]{prefix: prefix, stores: stores, fetch: fetch, sched: p.Scheduler, orch: p.Orchestrator,
		interval: p.Details.Interval, autoRefresh: autoRefresh, open: map[string]*Detail[T]{}}
}

// Open returns the detail of key, subscribing it on first use
func (d *Details[T]) Open(key string) (*Detail[T], error) {
	if strings.TrimSpace(key) == "" {
		return nil, errors.New("detail key is required")
	}
	if d.check != nil {
		if err := d.check(key); err != nil {
			return nil, err
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if det, ok := d.open[key]; ok {
		return det, nil
	}

	det := &Detail[T]{feature: feature{name: d.prefix + key}, key: key, store: d.stores.Get(key)}
	fetch := func(ctx context.Context) (T, error) {
		v, err := d.fetch(ctx, key)
		if remote.IsNotFound(err) && det.handle.IsActive() {
			det.Pause()
			lgr.Printf("[INFO] %s not found, polling paused", det.name)
		}
		return v, err
	}
	det.subscribe(d.sched, d.orch, d.interval, d.autoRefresh(), func() []refresh.Op {
		return []refresh.Op{refresh.Bind(det.store.Name(), det.store, fetch)}
	})
	d.open[key] = det
	lgr.Printf("[DEBUG] detail %s opened", det.name)
	return det, nil
}

// Get returns an open detail
func (d *Details[T]) Get(key string) (*Detail[T], bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	det, ok := d.open[key]
	return det, ok
}

// List returns open details sorted by key
func (d *Details[T]) List() []*Detail[T] {
	d.mu.Lock()
	res := make([]*Detail[T], 0, len(d.open))
	for _, det := range d.open {
		res = append(res, det)
	}
	d.mu.Unlock()
	sort.Slice(res, func(i, j int) bool { return res[i].key < res[j].key })
	return res
}

// Close unsubscribes a detail and drops its store. Returns false if it was not open.
func (d *Details[T]) Close(key string) bool {
	d.mu.Lock()
	det, ok := d.open[key]
	delete(d.open, key)
	d.mu.Unlock()
	if !ok {
		return false
	}
	det.handle.Unsubscribe()
	d.stores.Drop(key)
	lgr.Printf("[DEBUG] detail %s closed", det.name)
	return true
}

// keyedFeature is a feature polling one target
type keyedFeature interface {
	Feature
	Key() string
}

// detailSet is the type-erased part of Details
type detailSet interface {
	byName(name string) (keyedFeature, bool)
	features() []Feature
	closeKey(key string) bool
}

func (d *Details[T]) byName(name string) (keyedFeature, bool) {
	key, ok := strings.CutPrefix(name, d.prefix)
	if !ok {
		return nil, false
	}
	det, ok := d.Get(key)
	if !ok {
		return nil, false
	}
	return det, true
}

func (d *Details[T]) features() []Feature {
	list := d.List()
	res := make([]Feature, 0, len(list))
	for _, det := range list {
		res = append(res, det)
	}
	return res
}

func (d *Details[T]) closeKey(key string) bool { return d.Close(key) }

// newDetails makes the detail sets of all target types
func (c *Console) newDetails(p Params) {
	r := p.Remote
	c.QueueDetails = newDetailSet(p, FeatureQueuePrefix, p.Stores.QueueDetails, c.IsAutoRefresh, r.Queue)
	c.TopicDetails = newDetailSet(p, FeatureTopicPrefix, p.Stores.TopicDetails, c.IsAutoRefresh, r.Topic)
	c.ConnectionDetails = newDetailSet(p, FeatureConnectionPrefix, p.Stores.ConnectionDetails, c.IsAutoRefresh, r.Connection)
	c.SubscriberDetails = newDetailSet(p, FeatureSubscriberPrefix, p.Stores.SubscriberDetails, c.IsAutoRefresh, r.Subscriber)
	c.MessageDetails = newDetailSet(p, FeatureMessagePrefix, p.Stores.MessageDetails, c.IsAutoRefresh,
		func(ctx context.Context, key string) (domain.Message, error) {
			queue, id, ok := splitMessageKey(key)
			if !ok {
				return domain.Message{}, fmt.Errorf("invalid message key %q", key)
			}
			m, err := r.Message(ctx, queue, id)
			if err != nil {
				return m, err
			}
			m.BodyPreview = BodyPreview(m.Body)
			return m, nil
		})
	c.MessageDetails.check = func(key string) error {
		if _, _, ok := splitMessageKey(key); !ok {
			return fmt.Errorf("invalid message key %q, want queue/id", key)
		}
		return nil
	}
}

func (c *Console) details() []detailSet {
	return []detailSet{c.QueueDetails, c.TopicDetails, c.ConnectionDetails, c.SubscriberDetails, c.MessageDetails}
}
