package console

import (
	"context"
	"time"

	"github.com/kenliao94/amqconsole/pkg/domain"
	"github.com/kenliao94/amqconsole/pkg/refresh"
	"github.com/kenliao94/amqconsole/pkg/store"
	"github.com/kenliao94/amqconsole/pkg/view"
)

// ConnectionOptions configure the connections feature
type ConnectionOptions struct {
	Interval time.Duration
}

// Connections polls client connections and subscribers
type Connections struct {
	feature
	remote   Remote
	stores   *store.Registry
	viewSize int
}

func newConnections(p Params) *Connections {
	c := &Connections{feature: feature{name: FeatureConnections}, remote: p.Remote, stores: p.Stores, viewSize: p.PageSize}
	c.subscribe(p.Scheduler, p.Orchestrator, p.Connections.Interval, p.AutoRefresh, c.ops)
	return c
}

func (c *Connections) ops() []refresh.Op {
	return []refresh.Op{
		refresh.Bind(store.DomainConnections, c.stores.Connections, c.remote.Connections),
		refresh.Bind(store.DomainSubscribers, c.stores.Subscribers, c.remote.Subscribers),
	}
}

// ConnectionView makes a derived view over the connections store
func (c *Connections) ConnectionView() *view.View[[]domain.Connection, domain.Connection] {
	filters := view.NewFilterSet(
		view.Contains("search",
			func(x domain.Connection) string { return x.ConnectionID },
			func(x domain.Connection) string { return x.RemoteAddress },
			func(x domain.Connection) string { return x.UserName },
			func(x domain.Connection) string { return x.ClientID },
		),
		view.Equals("connector", func(x domain.Connection) string { return x.ConnectorName }),
		view.Bool("slow", func(x domain.Connection) bool { return x.Slow }),
		view.Bool("blocked", func(x domain.Connection) bool { return x.Blocked }),
		view.Bool("active", func(x domain.Connection) bool { return x.Active }),
	)
	v := view.New(c.stores.Connections, identity[domain.Connection], filters,
		view.SortKey[domain.Connection]{Name: "connectionId", Less: func(a, b domain.Connection) bool { return a.ConnectionID < b.ConnectionID }},
		view.SortKey[domain.Connection]{Name: "remoteAddress", Less: func(a, b domain.Connection) bool { return a.RemoteAddress < b.RemoteAddress }},
		view.SortKey[domain.Connection]{Name: "userName", Less: func(a, b domain.Connection) bool { return a.UserName < b.UserName }},
		view.SortKey[domain.Connection]{Name: "dispatchQueueSize", Less: func(a, b domain.Connection) bool { return a.DispatchQueueSize < b.DispatchQueueSize }},
	)
	_ = v.SetPageSize(c.viewSize)
	return v
}

// SubscriberView makes a derived view over the subscribers store
func (c *Connections) SubscriberView() *view.View[[]domain.Subscriber, domain.Subscriber] {
	filters := view.NewFilterSet(
		view.Contains("search",
			func(s domain.Subscriber) string { return s.ConsumerID },
			func(s domain.Subscriber) string { return s.ConnectionID },
			func(s domain.Subscriber) string { return s.Destination },
			func(s domain.Subscriber) string { return s.SubscriptionName },
		),
		view.Contains("destination", func(s domain.Subscriber) string { return s.Destination }),
		view.Bool("exclusive", func(s domain.Subscriber) bool { return s.Exclusive }),
	)
	v := view.New(c.stores.Subscribers, identity[domain.Subscriber], filters,
		view.SortKey[domain.Subscriber]{Name: "consumerId", Less: func(a, b domain.Subscriber) bool { return a.ConsumerID < b.ConsumerID }},
		view.SortKey[domain.Subscriber]{Name: "destination", Less: func(a, b domain.Subscriber) bool { return a.Destination < b.Destination }},
		view.SortKey[domain.Subscriber]{Name: "dispatchedQueueSize", Less: func(a, b domain.Subscriber) bool { return a.DispatchedQueueSize < b.DispatchedQueueSize }},
		view.SortKey[domain.Subscriber]{Name: "enqueueCounter", Less: func(a, b domain.Subscriber) bool { return a.EnqueueCounter < b.EnqueueCounter }},
	)
	_ = v.SetPageSize(c.viewSize)
	return v
}

func identity[T any](rows []T) []T { return rows }

// pageFetch binds paging arguments to a remote list call
func pageFetch[T any](list func(ctx context.Context, page, pageSize int) (domain.Page[T], error), page, pageSize int) func(ctx context.Context) (domain.Page[T], error) {
	return func(ctx context.Context) (domain.Page[T], error) {
		return list(ctx, page, pageSize)
	}
}
