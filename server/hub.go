package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/kenliao94/amqconsole/pkg/store"
)

// Stores finds a domain store to watch
type Stores interface {
	Lookup(name string) (store.Watchable, bool)
}

// Hub fans store changes out to websocket clients subscribed to their domains.
// One store watcher runs per domain with at least one subscribed client.
type Hub struct {
	stores     Stores
	pingPeriod time.Duration

	requests chan request // single channel keeps register/subscribe order per client
	changes  chan event
	done     chan struct{}
	clients  map[string]*client
	watchers map[string]*domainWatch
}

type requestKind int

const (
	reqRegister requestKind = iota
	reqUnregister
	reqSubscribe
	reqUnsubscribe
)

type request struct {
	kind   requestKind
	client *client
	domain string
}

type domainWatch struct {
	name   string
	cancel func()
	subs   map[string]*client
}

// event is a change delivered by one domain watch
type event struct {
	watch  *domainWatch
	change store.Change
}

// NewHub makes a hub over the given stores. Call Run to start it.
func NewHub(stores Stores, pingPeriod time.Duration) *Hub {
	if pingPeriod <= 0 {
		pingPeriod = 30 * time.Second
	}
	return &Hub{
		stores:     stores,
		pingPeriod: pingPeriod,
		requests:   make(chan request, 64),
		changes:    make(chan event, 256),
		done:       make(chan struct{}),
		clients:    map[string]*client{},
		watchers:   map[string]*domainWatch{},
	}
}

// Run is the hub's event loop, it returns when ctx is done
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-h.requests:
			h.handle(ctx, req)
		case ev := <-h.changes:
			h.broadcast(ev)
		}
	}
}

// request delivers a request to the event loop unless the hub is stopped
func (h *Hub) request(req request) bool {
	select {
	case h.requests <- req:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) handle(ctx context.Context, req request) {
	c := req.client
	if req.kind == reqRegister {
		h.clients[c.id] = c
		lgr.Printf("[DEBUG] ws client %s registered", c.id)
		return
	}
	if _, ok := h.clients[c.id]; !ok {
		return
	}

	switch req.kind {
	case reqUnregister:
		delete(h.clients, c.id)
		for name := range h.watchers {
			h.drop(name, c)
		}
		close(c.send)
		lgr.Printf("[DEBUG] ws client %s unregistered", c.id)
	case reqSubscribe:
		h.add(ctx, req.domain, c)
	case reqUnsubscribe:
		h.drop(req.domain, c)
	}
}

// broadcast pushes a change to the subscribers of its watch.
// Events of a watch already replaced or dropped are ignored.
func (h *Hub) broadcast(ev event) {
	w := ev.watch
	if h.watchers[w.name] != w {
		return
	}
	data, err := json.Marshal(ev.change)
	if err != nil {
		lgr.Printf("[WARN] can't marshal change of %s: %v", w.name, err)
		return
	}
	for _, c := range w.subs {
		c.push(data)
	}
	if ev.change.Closed {
		// subscribers have to subscribe again to a store made later under the same name
		delete(h.watchers, w.name)
		lgr.Printf("[DEBUG] store %s closed, %d subscribers dropped", w.name, len(w.subs))
	}
}

// add subscribes a client to a domain and sends it the current state
func (h *Hub) add(ctx context.Context, name string, c *client) {
	src, ok := h.stores.Lookup(name)
	if !ok {
		c.pushJSON(store.Change{Domain: name, Error: "unknown domain"})
		return
	}
	w, ok := h.watchers[name]
	if !ok {
		ch, cancel := src.Watch()
		w = &domainWatch{name: name, cancel: cancel, subs: map[string]*client{}}
		h.watchers[name] = w
		go h.forward(ctx, w, ch)
	}
	w.subs[c.id] = c
	c.pushJSON(src.Current())
	lgr.Printf("[DEBUG] ws client %s subscribed to %s", c.id, name)
}

// drop unsubscribes a client from a domain, stopping the watcher nobody listens to
func (h *Hub) drop(name string, c *client) {
	w, ok := h.watchers[name]
	if !ok {
		return
	}
	delete(w.subs, c.id)
	if len(w.subs) == 0 {
		w.cancel()
		delete(h.watchers, name)
	}
}

// forward relays a watch channel to the event loop. A channel closed by the store,
// not by drop, ends with a closed change.
func (h *Hub) forward(ctx context.Context, w *domainWatch, ch <-chan store.Change) {
	for change := range ch {
		select {
		case h.changes <- event{watch: w, change: change}:
		case <-ctx.Done():
			return
		}
	}
	select {
	case h.changes <- event{watch: w, change: store.Change{Domain: w.name, Closed: true}}:
	case <-ctx.Done():
	}
}

func (h *Hub) shutdown() {
	close(h.done)
	for name, w := range h.watchers {
		w.cancel()
		delete(h.watchers, name)
	}
	for id, c := range h.clients {
		close(c.send)
		delete(h.clients, id)
	}
}
