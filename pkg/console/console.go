// Package console implements the console features on top of the scheduler, the
// fetch orchestrator and the domain stores. Each feature owns one subscription
// whose job refreshes the feature's stores; mutations go through Mutator.
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
	"github.com/kenliao94/amqconsole/pkg/scheduler"
	"github.com/kenliao94/amqconsole/pkg/store"
)

// Remote is the broker admin API used by the console
type Remote interface {
	BrokerInfo(ctx context.Context) (domain.BrokerInfo, error)
	BrokerStatistics(ctx context.Context) (domain.BrokerStatistics, error)
	BrokerHealth(ctx context.Context) (domain.BrokerHealth, error)

	Queues(ctx context.Context, page, pageSize int) (domain.Page[domain.Queue], error)
	Queue(ctx context.Context, name string) (domain.Queue, error)
	CreateQueue(ctx context.Context, name string) error
	DeleteQueue(ctx context.Context, name string) error
	PurgeQueue(ctx context.Context, name string) error
	PauseQueue(ctx context.Context, name string) error
	ResumeQueue(ctx context.Context, name string) error

	Topics(ctx context.Context, page, pageSize int) (domain.Page[domain.Topic], error)
	Topic(ctx context.Context, name string) (domain.Topic, error)
	CreateTopic(ctx context.Context, name string) error
	DeleteTopic(ctx context.Context, name string) error

	Connections(ctx context.Context) ([]domain.Connection, error)
	Connection(ctx context.Context, id string) (domain.Connection, error)
	CloseConnection(ctx context.Context, id string) error
	Subscribers(ctx context.Context) ([]domain.Subscriber, error)
	Subscriber(ctx context.Context, id string) (domain.Subscriber, error)
	DeleteSubscriber(ctx context.Context, id string) error

	BrowseMessages(ctx context.Context, queue string, page, pageSize int) (domain.Page[domain.Message], error)
	Message(ctx context.Context, queue, id string) (domain.Message, error)
	DeleteMessage(ctx context.Context, queue, id string) (domain.MessageOperation, error)
	MoveMessage(ctx context.Context, queue, id, target string) (domain.MessageOperation, error)
	CopyMessage(ctx context.Context, queue, id, target string) (domain.MessageOperation, error)
	SendMessage(ctx context.Context, req domain.SendMessageRequest) (domain.MessageOperation, error)
}

// Recorder receives broker statistics samples
type Recorder interface {
	Add(ctx context.Context, s domain.BrokerStatistics) error
}

// feature names
const (
	FeatureBroker         = "broker"
	FeatureDestinations   = "destinations"
	FeatureConnections    = "connections"
	featureMessagesPrefix = "messages:"
)

// ErrNotClosable is returned when closing one of the always-on features
var ErrNotClosable = errors.New("feature can't be closed")

// MessagesFeature returns the feature name of a queue browser
func MessagesFeature(queue string) string { return featureMessagesPrefix + queue }

// Feature is a polled part of the console
type Feature interface {
	Name() string
	Refresh(ctx context.Context) error
	Pause()
	Resume()
	Toggle()
	SetInterval(d time.Duration)
	Status() scheduler.Status
}

// Params configure the console
type Params struct {
	Remote       Remote
	Stores       *store.Registry
	Scheduler    *scheduler.Scheduler
	Orchestrator *refresh.Orchestrator
	History      Recorder // optional

	AutoRefresh  bool // start polling right away
	PageSize     int  // default page size of derived views
	Broker       BrokerOptions
	Destinations DestinationOptions
	Connections  ConnectionOptions
	Messages     MessageOptions
	Details      DetailOptions
}

// Console holds all features
type Console struct {
	Broker       *BrokerMonitor
	Destinations *Destinations
	Connections  *Connections
	Messages     *Messages
	Mutator      *Mutator

	QueueDetails      *Details[domain.Queue]
	TopicDetails      *Details[domain.Topic]
	ConnectionDetails *Details[domain.Connection]
	SubscriberDetails *Details[domain.Subscriber]
	MessageDetails    *Details[domain.Message]

	stores *store.Registry

	mu          sync.Mutex
	autoRefresh bool
}

// New makes the console and subscribes its features
func New(p Params) *Console {
	if p.Orchestrator == nil {
		p.Orchestrator = refresh.New(0)
	}
	if p.PageSize <= 0 {
		p.PageSize = 25
	}
	c := &Console{stores: p.Stores, autoRefresh: p.AutoRefresh}
	c.Broker = newBrokerMonitor(p)
	c.Destinations = newDestinations(p)
	c.Connections = newConnections(p)
	c.Messages = newMessages(p, c.IsAutoRefresh)
	c.newDetails(p)
	c.Mutator = &Mutator{remote: p.Remote, stores: p.Stores, console: c}
	lgr.Printf("[INFO] console started, auto-refresh %v", p.AutoRefresh)
	return c
}

// Feature finds a feature by name
func (c *Console) Feature(name string) (Feature, bool) {
	switch name {
	case FeatureBroker:
		return c.Broker, true
	case FeatureDestinations:
		return c.Destinations, true
	case FeatureConnections:
		return c.Connections, true
	}
	if queue, ok := strings.CutPrefix(name, featureMessagesPrefix); ok {
		if b, ok := c.Messages.Get(queue); ok {
			return b, true
		}
	}
	for _, d := range c.details() {
		if f, ok := d.byName(name); ok {
			return f, true
		}
	}
	return nil, false
}

// Features lists all features sorted by name
func (c *Console) Features() []Feature {
	res := []Feature{c.Broker, c.Destinations, c.Connections}
	for _, b := range c.Messages.List() {
		res = append(res, b)
	}
	for _, d := range c.details() {
		res = append(res, d.features()...)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name() < res[j].Name() })
	return res
}

// CloseFeature closes a queue browser or a detail feature by name.
// Returns false if no such feature is open, ErrNotClosable for the always-on ones.
func (c *Console) CloseFeature(name string) (bool, error) {
	switch name {
	case FeatureBroker, FeatureDestinations, FeatureConnections:
		return false, fmt.Errorf("%w: %s", ErrNotClosable, name)
	}
	if queue, ok := strings.CutPrefix(name, featureMessagesPrefix); ok {
		return c.Messages.Close(queue), nil
	}
	for _, d := range c.details() {
		if f, ok := d.byName(name); ok {
			return d.closeKey(f.Key()), nil
		}
	}
	return false, nil
}

// SetAutoRefresh pauses or resumes polling of all features
func (c *Console) SetAutoRefresh(enabled bool) {
	c.mu.Lock()
	c.autoRefresh = enabled
	c.mu.Unlock()
	for _, f := range c.Features() {
		if enabled {
			f.Resume()
			continue
		}
		f.Pause()
	}
	lgr.Printf("[INFO] auto-refresh set to %v", enabled)
}

// IsAutoRefresh reports the global auto-refresh setting
func (c *Console) IsAutoRefresh() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoRefresh
}

// Stores returns the domain stores
func (c *Console) Stores() *store.Registry { return c.stores }

// feature is the subscription part shared by all features
type feature struct {
	name   string
	handle *scheduler.Handle
}

func (f *feature) subscribe(sched *scheduler.Scheduler, orch *refresh.Orchestrator, interval time.Duration,
	enabled bool, ops func() []refresh.Op) {
	job := func(ctx context.Context) error {
		if err := orch.Run(ctx, ops()...); err != nil {
			return fmt.Errorf("refresh %s: %w", f.name, err)
		}
		return nil
	}
	// armed only after the handle is set, jobs may use it
	f.handle = sched.Subscribe(f.name, job, scheduler.Options{Interval: interval, ExecuteImmediately: true})
	if enabled {
		f.handle.Resume()
	}
}

// Name returns the feature name
func (f *feature) Name() string { return f.name }

// Refresh runs the feature's fetch once and returns its failures
func (f *feature) Refresh(ctx context.Context) error { return f.handle.Trigger(ctx) }

// Pause stops polling
func (f *feature) Pause() { f.handle.Pause() }

// Resume starts polling
func (f *feature) Resume() { f.handle.Resume() }

// Toggle flips polling
func (f *feature) Toggle() { f.handle.Toggle() }

// SetInterval changes the polling interval
func (f *feature) SetInterval(d time.Duration) { f.handle.SetInterval(d) }

// Status returns the subscription status
func (f *feature) Status() scheduler.Status { return f.handle.Status() }
