package server

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kenliao94/amqconsole/pkg/console"
	"github.com/kenliao94/amqconsole/pkg/domain"
	"github.com/kenliao94/amqconsole/pkg/refresh"
	"github.com/kenliao94/amqconsole/pkg/remote"
	"github.com/kenliao94/amqconsole/pkg/scheduler"
	"github.com/kenliao94/amqconsole/pkg/store"
	"github.com/kenliao94/amqconsole/server/mocks"
)

// brokerStub is a static broker admin API
type brokerStub struct{}

func (brokerStub) BrokerInfo(context.Context) (domain.BrokerInfo, error) {
	return domain.BrokerInfo{Name: "localhost", Version: "6.1.0"}, nil
}

func (brokerStub) BrokerStatistics(context.Context) (domain.BrokerStatistics, error) {
	return domain.BrokerStatistics{MemoryUsage: 12, SampledAt: time.Now()}, nil
}

func (brokerStub) BrokerHealth(context.Context) (domain.BrokerHealth, error) {
	return domain.BrokerHealth{Status: domain.HealthHealthy}, nil
}

func (brokerStub) Queues(_ context.Context, page, pageSize int) (domain.Page[domain.Queue], error) {
	qs := []domain.Queue{
		{DestinationStats: domain.DestinationStats{Name: "orders", QueueSize: 10}},
		{DestinationStats: domain.DestinationStats{Name: "billing", QueueSize: 2}, Paused: true},
		{DestinationStats: domain.DestinationStats{Name: "orders.dlq", QueueSize: 5}},
	}
	return domain.Page[domain.Queue]{Content: qs, Page: page, PageSize: pageSize, TotalElements: len(qs), TotalPages: 1}, nil
}

func (brokerStub) Topics(_ context.Context, page, pageSize int) (domain.Page[domain.Topic], error) {
	ts := []domain.Topic{{DestinationStats: domain.DestinationStats{Name: "events"}}}
	return domain.Page[domain.Topic]{Content: ts, Page: page, PageSize: pageSize, TotalElements: 1, TotalPages: 1}, nil
}

func (brokerStub) Connections(context.Context) ([]domain.Connection, error) {
	return []domain.Connection{
		{ConnectionID: "ID:app-1", RemoteAddress: "tcp://10.0.0.1:5000", UserName: "app"},
		{ConnectionID: "ID:app-2", RemoteAddress: "tcp://10.0.0.2:5000", UserName: "admin", Slow: true},
	}, nil
}

func (brokerStub) Subscribers(context.Context) ([]domain.Subscriber, error) {
	return []domain.Subscriber{{ConsumerID: "s1", Destination: "queue://orders"}}, nil
}

func (brokerStub) BrowseMessages(_ context.Context, queue string, page, pageSize int) (domain.Page[domain.Message], error) {
	msgs := []domain.Message{
		{ID: "1", MessageID: "ID:m1", Destination: queue, Priority: 4, Body: "<i>first</i>"},
		{ID: "2", MessageID: "ID:m2", Destination: queue, Priority: 9, Body: "second"},
	}
	return domain.Page[domain.Message]{Content: msgs, Page: page, PageSize: pageSize, TotalElements: 2, TotalPages: 1}, nil
}

var errStubNotFound = &remote.Error{Kind: remote.KindClient, Status: http.StatusNotFound, Message: "not found"}

func (b brokerStub) Queue(ctx context.Context, name string) (domain.Queue, error) {
	p, _ := b.Queues(ctx, 0, 20)
	for _, q := range p.Content {
		if q.Name == name {
			return q, nil
		}
	}
	return domain.Queue{}, errStubNotFound
}

func (brokerStub) Topic(_ context.Context, name string) (domain.Topic, error) {
	if name != "events" {
		return domain.Topic{}, errStubNotFound
	}
	return domain.Topic{DestinationStats: domain.DestinationStats{Name: "events"}}, nil
}

func (b brokerStub) Connection(ctx context.Context, id string) (domain.Connection, error) {
	conns, _ := b.Connections(ctx)
	for _, c := range conns {
		if c.ConnectionID == id {
			return c, nil
		}
	}
	return domain.Connection{}, errStubNotFound
}

func (brokerStub) Subscriber(_ context.Context, id string) (domain.Subscriber, error) {
	if id != "s1" {
		return domain.Subscriber{}, errStubNotFound
	}
	return domain.Subscriber{ConsumerID: "s1", Destination: "queue://orders"}, nil
}

func (b brokerStub) Message(ctx context.Context, queue, id string) (domain.Message, error) {
	p, _ := b.BrowseMessages(ctx, queue, 0, 50)
	for _, m := range p.Content {
		if m.MessageID == id {
			return m, nil
		}
	}
	return domain.Message{}, errStubNotFound
}

func (brokerStub) CreateQueue(context.Context, string) error      { return nil }
func (brokerStub) DeleteQueue(context.Context, string) error      { return nil }
func (brokerStub) PurgeQueue(context.Context, string) error       { return nil }
func (brokerStub) PauseQueue(context.Context, string) error       { return nil }
func (brokerStub) ResumeQueue(context.Context, string) error      { return nil }
func (brokerStub) CreateTopic(context.Context, string) error      { return nil }
func (brokerStub) DeleteTopic(context.Context, string) error      { return nil }
func (brokerStub) CloseConnection(context.Context, string) error  { return nil }
func (brokerStub) DeleteSubscriber(context.Context, string) error { return nil }

func (brokerStub) DeleteMessage(context.Context, string, string) (domain.MessageOperation, error) {
	return domain.MessageOperation{Status: "success"}, nil
}

func (brokerStub) MoveMessage(context.Context, string, string, string) (domain.MessageOperation, error) {
	return domain.MessageOperation{Status: "success"}, nil
}

func (brokerStub) CopyMessage(context.Context, string, string, string) (domain.MessageOperation, error) {
	return domain.MessageOperation{Status: "success"}, nil
}

func (brokerStub) SendMessage(context.Context, domain.SendMessageRequest) (domain.MessageOperation, error) {
	return domain.MessageOperation{Status: "success"}, nil
}

func testConfig() *mocks.ConfigProviderMock {
	return &mocks.ConfigProviderMock{
		GetServerConfigFunc: func() (string, time.Duration, time.Duration) {
			return ":8080", 30 * time.Second, time.Second
		},
	}
}

// testConsole makes a console over brokerStub with polling off and all stores loaded
func testConsole(t *testing.T) *console.Console {
	t.Helper()
	sched := scheduler.NewScheduler(scheduler.Params{DefaultInterval: time.Hour})
	t.Cleanup(sched.Close)
	c := console.New(console.Params{
		Remote:       brokerStub{},
		Stores:       store.NewRegistry(),
		Scheduler:    sched,
		Orchestrator: refresh.New(time.Second),
		PageSize:     25,
		Broker:       console.BrokerOptions{Interval: time.Hour, Statistics: true, Health: true},
		Destinations: console.DestinationOptions{Interval: time.Hour, Type: "both", PageSize: 20},
		Connections:  console.ConnectionOptions{Interval: time.Hour},
		Messages:     console.MessageOptions{Interval: time.Hour, PageSize: 50},
		Details:      console.DetailOptions{Interval: time.Hour},
	})
	ctx := context.Background()
	require.NoError(t, c.Broker.Refresh(ctx))
	require.NoError(t, c.Destinations.Refresh(ctx))
	require.NoError(t, c.Connections.Refresh(ctx))
	return c
}
