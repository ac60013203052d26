package console

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-pkgz/lgr"
	"github.com/microcosm-cc/bluemonday"

	"github.com/kenliao94/amqconsole/pkg/domain"
	"github.com/kenliao94/amqconsole/pkg/refresh"
	"github.com/kenliao94/amqconsole/pkg/scheduler"
	"github.com/kenliao94/amqconsole/pkg/store"
	"github.com/kenliao94/amqconsole/pkg/view"
)

// PreviewLength is the maximum number of characters in a message body preview
const PreviewLength = 200

var previewPolicy = bluemonday.StrictPolicy()

// BodyPreview makes a short plain-text preview of a message body: markup is stripped,
// whitespace collapsed and the result truncated to PreviewLength characters.
func BodyPreview(body string) string {
	text := html.UnescapeString(previewPolicy.Sanitize(body))
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= PreviewLength {
		return text
	}
	return string([]rune(text)[:PreviewLength]) + "…"
}

// MessageOptions configure queue browsers
type MessageOptions struct {
	Interval time.Duration
	PageSize int // remote browse page size
}

// Messages manages per-queue browsers, each one a feature with its own subscription
type Messages struct {
	remote      Remote
	stores      *store.Registry
	sched       *scheduler.Scheduler
	orch        *refresh.Orchestrator
	opts        MessageOptions
	viewSize    int
	autoRefresh func() bool

	mu       sync.Mutex
	browsers map[string]*QueueBrowser
}

func newMessages(p Params, autoRefresh func() bool) *Messages {
	if p.Messages.PageSize <= 0 {
		p.Messages.PageSize = 50
	}
	return &Messages{remote: p.Remote, stores: p.Stores, sched: p.Scheduler, orch: p.Orchestrator, opts: p.Messages,
		viewSize: p.PageSize, autoRefresh: autoRefresh, browsers: map[string]*QueueBrowser{}}
}

// Open returns the browser of a queue, subscribing it on first use
func (m *Messages) Open(queue string) (*QueueBrowser, error) {
	if strings.TrimSpace(queue) == "" {
		return nil, errors.New("queue name is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.browsers[queue]; ok {
		return b, nil
	}
	b := &QueueBrowser{feature: feature{name: MessagesFeature(queue)}, queue: queue, remote: m.remote,
		store: m.stores.Messages(queue), viewSize: m.viewSize, pageSize: m.opts.PageSize}
	b.subscribe(m.sched, m.orch, m.opts.Interval, m.autoRefresh(), b.ops)
	m.browsers[queue] = b
	lgr.Printf("[DEBUG] message browser for %s opened", queue)
	return b, nil
}

// Get returns an open browser
func (m *Messages) Get(queue string) (*QueueBrowser, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.browsers[queue]
	return b, ok
}

// List returns open browsers sorted by queue
func (m *Messages) List() []*QueueBrowser {
	m.mu.Lock()
	res := make([]*QueueBrowser, 0, len(m.browsers))
	for _, b := range m.browsers {
		res = append(res, b)
	}
	m.mu.Unlock()
	sort.Slice(res, func(i, j int) bool { return res[i].queue < res[j].queue })
	return res
}

// Close unsubscribes a browser and drops its store. Returns false if it was not open.
func (m *Messages) Close(queue string) bool {
	m.mu.Lock()
	b, ok := m.browsers[queue]
	delete(m.browsers, queue)
	m.mu.Unlock()
	if !ok {
		return false
	}
	b.handle.Unsubscribe()
	m.stores.DropMessages(queue)
	lgr.Printf("[DEBUG] message browser for %s closed", queue)
	return true
}

// QueueBrowser polls one page of messages of a queue
type QueueBrowser struct {
	feature
	queue    string
	remote   Remote
	store    *store.Store[domain.Page[domain.Message]]
	viewSize int

	mu       sync.Mutex
	page     int
	pageSize int
}

// Queue returns the browsed queue name
func (b *QueueBrowser) Queue() string { return b.queue }

// Store returns the message store of the queue
func (b *QueueBrowser) Store() *store.Store[domain.Page[domain.Message]] { return b.store }

// SetRemotePage changes the page requested from the broker. Returns true if the page changed.
func (b *QueueBrowser) SetRemotePage(page, pageSize int) (bool, error) {
	if page < 0 || pageSize <= 0 {
		return false, fmt.Errorf("%w: page %d, page size %d", view.ErrInvalidFilter, page, pageSize)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if page == b.page && pageSize == b.pageSize {
		return false, nil
	}
	b.page, b.pageSize = page, pageSize
	return true, nil
}

// RemotePage returns the page requested from the broker
func (b *QueueBrowser) RemotePage() (page, pageSize int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.page, b.pageSize
}

func (b *QueueBrowser) ops() []refresh.Op {
	b.mu.Lock()
	page, pageSize := b.page, b.pageSize
	b.mu.Unlock()
	return []refresh.Op{refresh.Bind(store.MessagesDomain(b.queue), b.store, func(ctx context.Context) (domain.Page[domain.Message], error) {
		res, err := b.remote.BrowseMessages(ctx, b.queue, page, pageSize)
		if err != nil {
			return res, err
		}
		for i := range res.Content {
			res.Content[i].BodyPreview = BodyPreview(res.Content[i].Body)
		}
		return res, nil
	})}
}

// View makes a derived view over the browsed messages
func (b *QueueBrowser) View() *view.View[domain.Page[domain.Message], domain.Message] {
	filters := view.NewFilterSet(
		view.Contains("search",
			func(m domain.Message) string { return m.MessageID },
			func(m domain.Message) string { return m.BodyPreview },
		),
		view.Contains("property", func(m domain.Message) string { return attributes(m.Properties) + attributes(m.Headers) }),
		view.EqualsInt("priority", func(m domain.Message) int64 { return int64(m.Priority) }),
		view.Bool("redelivered", func(m domain.Message) bool { return m.Redelivered }),
		view.Equals("type", func(m domain.Message) string { return m.Type }),
	)
	v := view.New(b.store, func(p domain.Page[domain.Message]) []domain.Message { return p.Content }, filters,
		view.SortKey[domain.Message]{Name: "timestamp", Less: func(a, c domain.Message) bool { return a.Timestamp < c.Timestamp }},
		view.SortKey[domain.Message]{Name: "priority", Less: func(a, c domain.Message) bool { return a.Priority < c.Priority }},
		view.SortKey[domain.Message]{Name: "size", Less: func(a, c domain.Message) bool { return a.Size < c.Size }},
		view.SortKey[domain.Message]{Name: "messageId", Less: func(a, c domain.Message) bool { return a.MessageID < c.MessageID }},
	)
	_ = v.SetPageSize(b.viewSize)
	return v
}

// attributes renders a property map as sorted "key=value" lines for substring search
func attributes(m map[string]any) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s=%v\n", k, m[k])
	}
	return sb.String()
}
