package console

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/kenliao94/amqconsole/pkg/domain"
	"github.com/kenliao94/amqconsole/pkg/remote"
)

// fakeRemote is an in-memory broker counting calls per method
type fakeRemote struct {
	mu     sync.Mutex
	calls  map[string]int
	fail   map[string]error
	gates  map[string]chan struct{}
	queues []domain.Queue
	topics []domain.Topic
	conns  []domain.Connection
	subs   []domain.Subscriber
	msgs   map[string][]domain.Message
	stats  domain.BrokerStatistics
	sent   []domain.SendMessageRequest
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		calls: map[string]int{},
		fail:  map[string]error{},
		gates: map[string]chan struct{}{},
		queues: []domain.Queue{
			{DestinationStats: domain.DestinationStats{Name: "orders", QueueSize: 10, ConsumerCount: 2}},
			{DestinationStats: domain.DestinationStats{Name: "billing", QueueSize: 0}, Paused: true},
			{DestinationStats: domain.DestinationStats{Name: "orders.dlq", QueueSize: 3}},
		},
		topics: []domain.Topic{{DestinationStats: domain.DestinationStats{Name: "events"}, SubscriptionCount: 4}},
		conns: []domain.Connection{
			{ConnectionID: "ID:app-1", RemoteAddress: "tcp://10.0.0.1:5000", UserName: "app", ClientID: "c1", Active: true},
			{ConnectionID: "ID:app-2", RemoteAddress: "tcp://10.0.0.2:5000", UserName: "admin", ClientID: "c2", Slow: true},
		},
		subs: []domain.Subscriber{{ConsumerID: "s1", ConnectionID: "ID:app-1", Destination: "queue://orders"}},
		msgs: map[string][]domain.Message{
			"orders": {
				{ID: "1", MessageID: "ID:m1", Priority: 4, Body: "<b>hello</b> world", Properties: map[string]any{"region": "eu"}},
				{ID: "2", MessageID: "ID:m2", Priority: 9, Redelivered: true, Body: "plain"},
			},
		},
		stats: domain.BrokerStatistics{MemoryUsage: 10, EnqueueCount: 5},
	}
}

var errBoom = errors.New("boom")

func (f *fakeRemote) hit(name string) error {
	f.mu.Lock()
	f.calls[name]++
	err, gate := f.fail[name], f.gates[name]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return err
}

// hold blocks calls of name until the returned func is called
func (f *fakeRemote) hold(name string) (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gates[name] = gate
	f.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.gates, name)
			f.mu.Unlock()
			close(gate)
		})
	}
}

var errNotFound = &remote.Error{Kind: remote.KindClient, Status: http.StatusNotFound, Message: "not found"}

func (f *fakeRemote) Queue(_ context.Context, name string) (domain.Queue, error) {
	if err := f.hit("Queue"); err != nil {
		return domain.Queue{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, q := range f.queues {
		if q.Name == name {
			return q, nil
		}
	}
	return domain.Queue{}, errNotFound
}

func (f *fakeRemote) Topic(_ context.Context, name string) (domain.Topic, error) {
	if err := f.hit("Topic"); err != nil {
		return domain.Topic{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tp := range f.topics {
		if tp.Name == name {
			return tp, nil
		}
	}
	return domain.Topic{}, errNotFound
}

func (f *fakeRemote) Connection(_ context.Context, id string) (domain.Connection, error) {
	if err := f.hit("Connection"); err != nil {
		return domain.Connection{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conns {
		if c.ConnectionID == id {
			return c, nil
		}
	}
	return domain.Connection{}, errNotFound
}

func (f *fakeRemote) Subscriber(_ context.Context, id string) (domain.Subscriber, error) {
	if err := f.hit("Subscriber"); err != nil {
		return domain.Subscriber{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subs {
		if s.ConsumerID == id {
			return s, nil
		}
	}
	return domain.Subscriber{}, errNotFound
}

func (f *fakeRemote) Message(_ context.Context, queue, id string) (domain.Message, error) {
	if err := f.hit("Message"); err != nil {
		return domain.Message{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.msgs[queue] {
		if m.MessageID == id {
			return m, nil
		}
	}
	return domain.Message{}, errNotFound
}

func (f *fakeRemote) removeQueue(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, q := range f.queues {
		if q.Name == name {
			f.queues = append(f.queues[:i], f.queues[i+1:]...)
			return
		}
	}
}

func (f *fakeRemote) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeRemote) setFail(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[name] = err
}

func (f *fakeRemote) BrokerInfo(context.Context) (domain.BrokerInfo, error) {
	return domain.BrokerInfo{Name: "localhost", Version: "6.1.0"}, f.hit("BrokerInfo")
}

func (f *fakeRemote) BrokerStatistics(context.Context) (domain.BrokerStatistics, error) {
	if err := f.hit("BrokerStatistics"); err != nil {
		return domain.BrokerStatistics{}, err
	}
	return f.stats, nil
}

func (f *fakeRemote) BrokerHealth(context.Context) (domain.BrokerHealth, error) {
	return domain.BrokerHealth{Status: domain.HealthHealthy}, f.hit("BrokerHealth")
}

func (f *fakeRemote) Queues(_ context.Context, page, pageSize int) (domain.Page[domain.Queue], error) {
	if err := f.hit("Queues"); err != nil {
		return domain.Page[domain.Queue]{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.Page[domain.Queue]{Content: append([]domain.Queue(nil), f.queues...), Page: page, PageSize: pageSize,
		TotalElements: len(f.queues), TotalPages: 1}, nil
}

func (f *fakeRemote) CreateQueue(_ context.Context, name string) error {
	if err := f.hit("CreateQueue"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queues = append(f.queues, domain.Queue{DestinationStats: domain.DestinationStats{Name: name}})
	return nil
}

func (f *fakeRemote) DeleteQueue(context.Context, string) error { return f.hit("DeleteQueue") }
func (f *fakeRemote) PurgeQueue(context.Context, string) error  { return f.hit("PurgeQueue") }
func (f *fakeRemote) PauseQueue(context.Context, string) error  { return f.hit("PauseQueue") }
func (f *fakeRemote) ResumeQueue(context.Context, string) error { return f.hit("ResumeQueue") }

func (f *fakeRemote) Topics(_ context.Context, page, pageSize int) (domain.Page[domain.Topic], error) {
	if err := f.hit("Topics"); err != nil {
		return domain.Page[domain.Topic]{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.Page[domain.Topic]{Content: append([]domain.Topic(nil), f.topics...), Page: page, PageSize: pageSize,
		TotalElements: len(f.topics), TotalPages: 1}, nil
}

func (f *fakeRemote) CreateTopic(context.Context, string) error { return f.hit("CreateTopic") }
func (f *fakeRemote) DeleteTopic(context.Context, string) error { return f.hit("DeleteTopic") }

func (f *fakeRemote) Connections(context.Context) ([]domain.Connection, error) {
	if err := f.hit("Connections"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Connection(nil), f.conns...), nil
}

func (f *fakeRemote) CloseConnection(context.Context, string) error { return f.hit("CloseConnection") }

func (f *fakeRemote) Subscribers(context.Context) ([]domain.Subscriber, error) {
	if err := f.hit("Subscribers"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Subscriber(nil), f.subs...), nil
}

func (f *fakeRemote) DeleteSubscriber(context.Context, string) error {
	return f.hit("DeleteSubscriber")
}

func (f *fakeRemote) BrowseMessages(_ context.Context, queue string, page, pageSize int) (domain.Page[domain.Message], error) {
	if err := f.hit("BrowseMessages"); err != nil {
		return domain.Page[domain.Message]{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := append([]domain.Message(nil), f.msgs[queue]...)
	return domain.Page[domain.Message]{Content: msgs, Page: page, PageSize: pageSize, TotalElements: len(msgs), TotalPages: 1}, nil
}

func (f *fakeRemote) DeleteMessage(context.Context, string, string) (domain.MessageOperation, error) {
	return domain.MessageOperation{Status: "success"}, f.hit("DeleteMessage")
}

func (f *fakeRemote) MoveMessage(context.Context, string, string, string) (domain.MessageOperation, error) {
	return domain.MessageOperation{Status: "success"}, f.hit("MoveMessage")
}

func (f *fakeRemote) CopyMessage(context.Context, string, string, string) (domain.MessageOperation, error) {
	return domain.MessageOperation{Status: "success"}, f.hit("CopyMessage")
}

func (f *fakeRemote) SendMessage(_ context.Context, req domain.SendMessageRequest) (domain.MessageOperation, error) {
	if err := f.hit("SendMessage"); err != nil {
		return domain.MessageOperation{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
	return domain.MessageOperation{Status: "success"}, nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	samples []domain.BrokerStatistics
	err     error
}

func (r *fakeRecorder) Add(_ context.Context, s domain.BrokerStatistics) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s)
	return r.err
}

func (r *fakeRecorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}
