package store

import (
	"sort"

	"github.com/kenliao94/amqconsole/pkg/domain"
)

// domain names used by stores and change events
const (
	DomainBrokerInfo       = "broker.info"
	DomainBrokerStatistics = "broker.statistics"
	DomainBrokerHealth     = "broker.health"
	DomainQueues           = "queues"
	DomainTopics           = "topics"
	DomainConnections      = "connections"
	DomainSubscribers      = "subscribers"
)

// name prefixes of stores created on demand
const (
	PrefixMessages   = "messages/"
	PrefixQueue      = "queue/"
	PrefixTopic      = "topic/"
	PrefixConnection = "connection/"
	PrefixSubscriber = "subscriber/"
	PrefixMessage    = "message/"
)

// MessagesDomain returns the domain name of a queue's message store
func MessagesDomain(queue string) string { return PrefixMessages + queue }

// Watchable is the type-erased part of a store, used for change fan-out
type Watchable interface {
	Name() string
	Version() uint64
	Current() Change
	Watch() (<-chan Change, func()) // the channel is closed when the store is dropped
}

// Registry holds one store per domain. It is built once by the caller and
// passed to everything that reads or writes broker state.
type Registry struct {
	BrokerInfo       *Store[domain.BrokerInfo]
	BrokerStatistics *Store[domain.BrokerStatistics]
	BrokerHealth     *Store[domain.BrokerHealth]
	Queues           *Store[domain.Page[domain.Queue]]
	Topics           *Store[domain.Page[domain.Topic]]
	Connections      *Store[[]domain.Connection]
	Subscribers      *Store[[]domain.Subscriber]

	// single targets polled by detail features, keyed by name or id
	QueueDetails      *Keyed[domain.Queue]
	TopicDetails      *Keyed[domain.Topic]
	ConnectionDetails *Keyed[domain.Connection]
	SubscriberDetails *Keyed[domain.Subscriber]
	MessageDetails    *Keyed[domain.Message]

	messages *Keyed[domain.Page[domain.Message]]
}

// NewRegistry makes a registry with empty stores
func NewRegistry() *Registry {
	return &Registry{
		BrokerInfo:        New[domain.BrokerInfo](DomainBrokerInfo),
		BrokerStatistics:  New[domain.BrokerStatistics](DomainBrokerStatistics),
		BrokerHealth:      New[domain.BrokerHealth](DomainBrokerHealth),
		Queues:            New[domain.Page[domain.Queue]](DomainQueues),
		Topics:            New[domain.Page[domain.Topic]](DomainTopics),
		Connections:       New[[]domain.Connection](DomainConnections),
		Subscribers:       New[[]domain.Subscriber](DomainSubscribers),
		QueueDetails:      NewKeyed[domain.Queue](PrefixQueue),
		TopicDetails:      NewKeyed[domain.Topic](PrefixTopic),
		ConnectionDetails: NewKeyed[domain.Connection](PrefixConnection),
		SubscriberDetails: NewKeyed[domain.Subscriber](PrefixSubscriber),
		MessageDetails:    NewKeyed[domain.Message](PrefixMessage),
		messages:          NewKeyed[domain.Page[domain.Message]](PrefixMessages),
	}
}

// Messages returns the message store of a queue, creating it on first use
func (r *Registry) Messages(queue string) *Store[domain.Page[domain.Message]] {
	return r.messages.Get(queue)
}

// DropMessages forgets the message store of a queue and closes its watchers.
// A later Messages call for the same queue makes a new store.
func (r *Registry) DropMessages(queue string) {
	r.messages.Drop(queue)
}

// Lookup finds a store by domain name
func (r *Registry) Lookup(name string) (Watchable, bool) {
	for _, s := range r.fixed() {
		if s.Name() == name {
			return s, true
		}
	}
	for _, k := range r.keyed() {
		if s, ok := k.lookup(name); ok {
			return s, true
		}
	}
	return nil, false
}

// Domains lists all known domain names, sorted
func (r *Registry) Domains() []string {
	res := []string{}
	for _, s := range r.fixed() {
		res = append(res, s.Name())
	}
	for _, k := range r.keyed() {
		res = append(res, k.names()...)
	}
	sort.Strings(res)
	return res
}

func (r *Registry) fixed() []Watchable {
	return []Watchable{r.BrokerInfo, r.BrokerStatistics, r.BrokerHealth, r.Queues, r.Topics, r.Connections, r.Subscribers}
}

// keyedSet is the type-erased part of Keyed
type keyedSet interface {
	lookup(name string) (Watchable, bool)
	names() []string
}

func (r *Registry) keyed() []keyedSet {
	return []keyedSet{r.messages, r.QueueDetails, r.TopicDetails, r.ConnectionDetails, r.SubscriberDetails, r.MessageDetails}
}
