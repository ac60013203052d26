package console

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kenliao94/amqconsole/pkg/domain"
	"github.com/kenliao94/amqconsole/pkg/refresh"
	"github.com/kenliao94/amqconsole/pkg/store"
	"github.com/kenliao94/amqconsole/pkg/view"
)

// DestinationOptions configure the destinations feature
type DestinationOptions struct {
	Interval time.Duration
	Type     string // queue, topic or both
	PageSize int    // remote page size
}

// Destinations polls queue and topic lists
type Destinations struct {
	feature
	remote   Remote
	stores   *store.Registry
	viewSize int

	mu       sync.Mutex
	kinds    []domain.DestinationKind
	page     int
	pageSize int
}

func newDestinations(p Params) *Destinations {
	kinds, err := parseKinds(p.Destinations.Type)
	if err != nil {
		kinds = []domain.DestinationKind{domain.KindQueue, domain.KindTopic}
	}
	pageSize := p.Destinations.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	d := &Destinations{feature: feature{name: FeatureDestinations}, remote: p.Remote, stores: p.Stores,
		viewSize: p.PageSize, kinds: kinds, pageSize: pageSize}
	d.subscribe(p.Scheduler, p.Orchestrator, p.Destinations.Interval, p.AutoRefresh, d.ops)
	return d
}

// parseKinds converts queue|topic|both to destination kinds
func parseKinds(s string) ([]domain.DestinationKind, error) {
	if s == "" || strings.EqualFold(s, "both") {
		return []domain.DestinationKind{domain.KindQueue, domain.KindTopic}, nil
	}
	k, err := domain.ParseDestinationKind(s)
	if err != nil {
		return nil, fmt.Errorf("destination type: %w", err)
	}
	return []domain.DestinationKind{k}, nil
}

// SetType changes the polled destination kinds: queue, topic or both.
// Returns true if the kinds changed.
func (d *Destinations) SetType(s string) (bool, error) {
	kinds, err := parseKinds(s)
	if err != nil {
		return false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if slices.Equal(kinds, d.kinds) {
		return false, nil
	}
	d.kinds = kinds
	return true, nil
}

// Type returns the polled kinds as queue, topic or both
func (d *Destinations) Type() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.kinds) == 1 {
		return string(d.kinds[0])
	}
	return "both"
}

// SetRemotePage changes the page requested from the remote list endpoints.
// Returns true if the page changed.
func (d *Destinations) SetRemotePage(page, pageSize int) (bool, error) {
	if page < 0 || pageSize <= 0 {
		return false, fmt.Errorf("%w: page %d, page size %d", view.ErrInvalidFilter, page, pageSize)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if page == d.page && pageSize == d.pageSize {
		return false, nil
	}
	d.page, d.pageSize = page, pageSize
	return true, nil
}

// RemotePage returns the page requested from the remote list endpoints
func (d *Destinations) RemotePage() (page, pageSize int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.page, d.pageSize
}

func (d *Destinations) ops() []refresh.Op {
	d.mu.Lock()
	kinds, page, pageSize := d.kinds, d.page, d.pageSize
	d.mu.Unlock()

	res := make([]refresh.Op, 0, len(kinds))
	for _, k := range kinds {
		switch k {
		case domain.KindQueue:
			res = append(res, refresh.Bind(store.DomainQueues, d.stores.Queues, pageFetch(d.remote.Queues, page, pageSize)))
		case domain.KindTopic:
			res = append(res, refresh.Bind(store.DomainTopics, d.stores.Topics, pageFetch(d.remote.Topics, page, pageSize)))
		}
	}
	return res
}

// QueueView makes a derived view over the queues store
func (d *Destinations) QueueView() *view.View[domain.Page[domain.Queue], domain.Queue] {
	filters := view.NewFilterSet(
		view.Contains("name", func(q domain.Queue) string { return q.Name }),
		view.Bool("paused", func(q domain.Queue) bool { return q.Paused }),
		view.AtLeast("minSize", func(q domain.Queue) float64 { return float64(q.QueueSize) }),
	)
	v := view.New(d.stores.Queues, func(p domain.Page[domain.Queue]) []domain.Queue { return p.Content }, filters,
		view.SortKey[domain.Queue]{Name: "name", Less: func(a, b domain.Queue) bool { return a.Name < b.Name }},
		view.SortKey[domain.Queue]{Name: "queueSize", Less: func(a, b domain.Queue) bool { return a.QueueSize < b.QueueSize }},
		view.SortKey[domain.Queue]{Name: "consumerCount", Less: func(a, b domain.Queue) bool { return a.ConsumerCount < b.ConsumerCount }},
		view.SortKey[domain.Queue]{Name: "enqueueCount", Less: func(a, b domain.Queue) bool { return a.EnqueueCount < b.EnqueueCount }},
		view.SortKey[domain.Queue]{Name: "dequeueCount", Less: func(a, b domain.Queue) bool { return a.DequeueCount < b.DequeueCount }},
	)
	_ = v.SetPageSize(d.viewSize)
	return v
}

// TopicView makes a derived view over the topics store
func (d *Destinations) TopicView() *view.View[domain.Page[domain.Topic], domain.Topic] {
	filters := view.NewFilterSet(
		view.Contains("name", func(t domain.Topic) string { return t.Name }),
	)
	v := view.New(d.stores.Topics, func(p domain.Page[domain.Topic]) []domain.Topic { return p.Content }, filters,
		view.SortKey[domain.Topic]{Name: "name", Less: func(a, b domain.Topic) bool { return a.Name < b.Name }},
		view.SortKey[domain.Topic]{Name: "consumerCount", Less: func(a, b domain.Topic) bool { return a.ConsumerCount < b.ConsumerCount }},
		view.SortKey[domain.Topic]{Name: "enqueueCount", Less: func(a, b domain.Topic) bool { return a.EnqueueCount < b.EnqueueCount }},
		view.SortKey[domain.Topic]{Name: "subscriptionCount", Less: func(a, b domain.Topic) bool { return a.SubscriptionCount < b.SubscriptionCount }},
	)
	_ = v.SetPageSize(d.viewSize)
	return v
}
