package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kenliao94/amqconsole/pkg/console"
	"github.com/kenliao94/amqconsole/pkg/domain"
	"github.com/kenliao94/amqconsole/pkg/remote"
	"github.com/kenliao94/amqconsole/pkg/scheduler"
	"github.com/kenliao94/amqconsole/server/mocks"
)

// envelope decodes a reply with typed data
type envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Message string `json:"message"`
}

type page[T any] struct {
	Rows       []T    `json:"rows"`
	Total      int    `json:"total"`
	PageIndex  int    `json:"pageIndex"`
	PageSize   int    `json:"pageSize"`
	TotalPages int    `json:"totalPages"`
	Loading    bool   `json:"loading"`
	Error      string `json:"error"`
}

func do[T any](t *testing.T, srv *Server, method, target, body string) (int, envelope[T]) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	var res envelope[T]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res), w.Body.String())
	return w.Code, res
}

func TestServer_statusHandler(t *testing.T) {
	srv := New(testConfig(), testConsole(t), nil, nil, "1.2.3", false)

	code, res := do[map[string]any](t, srv, "GET", "/api/v1/status", "")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, res.Success)
	assert.Equal(t, "ok", res.Data["status"])
	assert.Equal(t, "1.2.3", res.Data["version"])
	assert.Equal(t, false, res.Data["autoRefresh"])
	assert.Contains(t, res.Data["domains"], "queues")
}

func TestServer_queuesHandler(t *testing.T) {
	srv := New(testConfig(), testConsole(t), nil, nil, "test", false)

	tbl := []struct {
		name  string
		query string
		code  int
		names []string
		total int
	}{
		{"all", "", http.StatusOK, []string{"orders", "billing", "orders.dlq"}, 3},
		{"name filter", "?name=ORD", http.StatusOK, []string{"orders", "orders.dlq"}, 2},
		{"sorted desc", "?sort=queueSize&desc=true", http.StatusOK, []string{"orders", "orders.dlq", "billing"}, 3},
		{"paused", "?paused=true", http.StatusOK, []string{"billing"}, 1},
		{"second page", "?sort=name&pageSize=2&page=1", http.StatusOK, []string{"orders.dlq"}, 3},
		{"out of range page", "?pageSize=2&page=7", http.StatusOK, []string{}, 3},
		{"huge page size", "?pageSize=4611686018427387904&page=3", http.StatusOK, []string{}, 3},
		{"huge page index", "?pageSize=4&page=4611686018427387904", http.StatusOK, []string{}, 3},
		{"unknown filter", "?color=red", http.StatusBadRequest, nil, 0},
		{"bad filter value", "?minSize=lots", http.StatusBadRequest, nil, 0},
		{"unknown sort", "?sort=color", http.StatusBadRequest, nil, 0},
		{"bad desc", "?sort=name&desc=maybe", http.StatusBadRequest, nil, 0},
		{"bad page size", "?pageSize=0", http.StatusBadRequest, nil, 0},
		{"bad page", "?page=-1", http.StatusBadRequest, nil, 0},
	}

	for _, tt := range tbl {
		t.Run(tt.name, func(t *testing.T) {
			code, res := do[page[domain.Queue]](t, srv, "GET", "/api/v1/queues"+tt.query, "")
			require.Equal(t, tt.code, code)
			if tt.code != http.StatusOK {
				assert.False(t, res.Success)
				assert.NotEmpty(t, res.Message)
				return
			}
			names := []string{}
			for _, q := range res.Data.Rows {
				names = append(names, q.Name)
			}
			assert.Equal(t, tt.names, names)
			assert.Equal(t, tt.total, res.Data.Total)
		})
	}
}

func TestServer_listHandlers(t *testing.T) {
	srv := New(testConfig(), testConsole(t), nil, nil, "test", false)

	code, topics := do[page[domain.Topic]](t, srv, "GET", "/api/v1/topics", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, topics.Data.Total)

	code, conns := do[page[domain.Connection]](t, srv, "GET", "/api/v1/connections?search=admin", "")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, conns.Data.Rows, 1)
	assert.Equal(t, "ID:app-2", conns.Data.Rows[0].ConnectionID)

	code, subs := do[page[domain.Subscriber]](t, srv, "GET", "/api/v1/subscribers?destination=orders", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, subs.Data.Total)
}

func TestServer_messagesHandler(t *testing.T) {
	c := testConsole(t)
	srv := New(testConfig(), c, nil, nil, "test", false)

	code, res := do[page[domain.Message]](t, srv, "GET", "/api/v1/messages/orders?sort=priority&desc=true", "")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, res.Data.Rows, 2)
	assert.Equal(t, "ID:m2", res.Data.Rows[0].MessageID)
	assert.Equal(t, "first", res.Data.Rows[1].BodyPreview)

	_, ok := c.Feature(console.MessagesFeature("orders"))
	assert.True(t, ok, "browser opened on demand")

	code, _ = do[any](t, srv, "DELETE", "/api/v1/browsers/orders", "")
	assert.Equal(t, http.StatusOK, code)
	code, _ = do[any](t, srv, "DELETE", "/api/v1/browsers/orders", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestServer_remotePaging(t *testing.T) {
	c := testConsole(t)
	srv := New(testConfig(), c, nil, nil, "test", false)

	code, _ := do[page[domain.Queue]](t, srv, "GET", "/api/v1/queues?remotePage=2&remotePageSize=10", "")
	require.Equal(t, http.StatusOK, code)
	rp, rps := c.Destinations.RemotePage()
	assert.Equal(t, 2, rp)
	assert.Equal(t, 10, rps)
	queues := c.Stores().Queues.Read()
	require.NotNil(t, queues.Value)
	assert.Equal(t, 2, queues.Value.Page, "refetched with the new page")
	assert.Equal(t, 10, queues.Value.PageSize)

	code, _ = do[page[domain.Topic]](t, srv, "GET", "/api/v1/topics?remotePage=0", "")
	require.Equal(t, http.StatusOK, code)
	rp, rps = c.Destinations.RemotePage()
	assert.Equal(t, 0, rp)
	assert.Equal(t, 10, rps, "missing size keeps the current one")

	code, _ = do[page[domain.Message]](t, srv, "GET", "/api/v1/messages/orders?remotePage=1&remotePageSize=5", "")
	require.Equal(t, http.StatusOK, code)
	b, ok := c.Messages.Get("orders")
	require.True(t, ok)
	rp, rps = b.RemotePage()
	assert.Equal(t, 1, rp)
	assert.Equal(t, 5, rps)
	require.NotNil(t, b.Store().Read().Value)
	assert.Equal(t, 5, b.Store().Read().Value.PageSize)

	for _, q := range []string{"?remotePage=first", "?remotePageSize=big", "?remotePage=-1", "?remotePageSize=0"} {
		code, res := do[any](t, srv, "GET", "/api/v1/queues"+q, "")
		assert.Equal(t, http.StatusBadRequest, code, q)
		assert.NotEmpty(t, res.Message, q)
	}
}

func TestServer_destinationTypeHandler(t *testing.T) {
	c := testConsole(t)
	srv := New(testConfig(), c, nil, nil, "test", false)

	code, res := do[map[string]any](t, srv, "PUT", "/api/v1/destinations/type?type=topic", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "topic", res.Data["type"])
	assert.Equal(t, "topic", c.Destinations.Type())
	assert.InDelta(t, 20, res.Data["remotePageSize"], 0)

	code, _ = do[any](t, srv, "PUT", "/api/v1/destinations/type?type=both", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "both", c.Destinations.Type())

	code, _ = do[any](t, srv, "PUT", "/api/v1/destinations/type?type=exchange", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "both", c.Destinations.Type())
}

func TestServer_detailHandlers(t *testing.T) {
	c := testConsole(t)
	srv := New(testConfig(), c, nil, nil, "test", false)

	code, q := do[struct{ Value *domain.Queue }](t, srv, "GET", "/api/v1/queues/billing", "")
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, q.Data.Value)
	assert.True(t, q.Data.Value.Paused)
	_, ok := c.Feature(console.FeatureQueuePrefix + "billing")
	assert.True(t, ok, "detail opened on demand")

	code, tp := do[struct{ Value *domain.Topic }](t, srv, "GET", "/api/v1/topics/events", "")
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, tp.Data.Value)
	assert.Equal(t, "events", tp.Data.Value.Name)

	code, conn := do[struct{ Value *domain.Connection }](t, srv, "GET", "/api/v1/connections/ID:app-2", "")
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, conn.Data.Value)
	assert.True(t, conn.Data.Value.Slow)

	code, sub := do[struct{ Value *domain.Subscriber }](t, srv, "GET", "/api/v1/subscribers/s1", "")
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, sub.Data.Value)
	assert.Equal(t, "queue://orders", sub.Data.Value.Destination)

	code, msg := do[struct{ Value *domain.Message }](t, srv, "GET", "/api/v1/messages/orders/ID:m1", "")
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, msg.Data.Value)
	assert.Equal(t, "first", msg.Data.Value.BodyPreview)
	_, ok = c.Feature(console.FeatureMessagePrefix + console.MessageKey("orders", "ID:m1"))
	assert.True(t, ok)

	t.Run("unknown target", func(t *testing.T) {
		for _, target := range []string{"/api/v1/queues/nope", "/api/v1/topics/nope", "/api/v1/connections/nope",
			"/api/v1/subscribers/nope", "/api/v1/messages/orders/ID:nope"} {
			code, res := do[any](t, srv, "GET", target, "")
			assert.Equal(t, http.StatusNotFound, code, target)
			assert.False(t, res.Success, target)
		}
		_, ok := c.Feature(console.FeatureQueuePrefix + "nope")
		assert.False(t, ok, "detail of a missing target is closed again")
		assert.NotContains(t, c.Stores().Domains(), "queue/nope")
	})

	t.Run("close", func(t *testing.T) {
		code, _ := do[any](t, srv, "DELETE", "/api/v1/subscriptions/"+console.FeatureQueuePrefix+"billing", "")
		assert.Equal(t, http.StatusOK, code)
		_, ok := c.Feature(console.FeatureQueuePrefix + "billing")
		assert.False(t, ok)

		code, _ = do[any](t, srv, "DELETE", "/api/v1/subscriptions/"+console.FeatureQueuePrefix+"billing", "")
		assert.Equal(t, http.StatusNotFound, code)
		code, _ = do[any](t, srv, "DELETE", "/api/v1/subscriptions/"+console.FeatureDestinations, "")
		assert.Equal(t, http.StatusBadRequest, code, "fixed features can't be closed")
	})
}

func TestServer_subscriptions(t *testing.T) {
	c := testConsole(t)
	srv := New(testConfig(), c, nil, nil, "test", false)

	code, list := do[[]scheduler.Status](t, srv, "GET", "/api/v1/subscriptions", "")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, list.Data, 3)
	assert.Equal(t, "broker", list.Data[0].Name)
	assert.False(t, list.Data[0].Active)

	code, st := do[scheduler.Status](t, srv, "POST", "/api/v1/subscriptions/connections/resume", "")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, st.Data.Active)

	code, st = do[scheduler.Status](t, srv, "POST", "/api/v1/subscriptions/connections/toggle", "")
	require.Equal(t, http.StatusOK, code)
	assert.False(t, st.Data.Active)

	code, _ = do[scheduler.Status](t, srv, "POST", "/api/v1/subscriptions/broker/refresh", "")
	assert.Equal(t, http.StatusOK, code)

	code, _ = do[any](t, srv, "POST", "/api/v1/subscriptions/broker/explode", "")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = do[any](t, srv, "POST", "/api/v1/subscriptions/nope/pause", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, st = do[scheduler.Status](t, srv, "PUT", "/api/v1/subscriptions/destinations/interval?ms=2500", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2500*time.Millisecond, st.Data.Interval)
	code, _ = do[any](t, srv, "PUT", "/api/v1/subscriptions/destinations/interval?ms=5", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do[map[string]bool](t, srv, "PUT", "/api/v1/auto-refresh?enabled=true", "")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, c.IsAutoRefresh())
	assert.True(t, c.Broker.Status().Active)
	code, _ = do[any](t, srv, "PUT", "/api/v1/auto-refresh?enabled=sometimes", "")
	assert.Equal(t, http.StatusBadRequest, code)
	c.SetAutoRefresh(false)
}

func TestServer_brokerHandler(t *testing.T) {
	srv := New(testConfig(), testConsole(t), nil, nil, "test", false)

	code, res := do[console.BrokerSnapshot](t, srv, "GET", "/api/v1/broker", "")
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, res.Data.Info.Value)
	assert.Equal(t, "localhost", res.Data.Info.Value.Name)
	require.NotNil(t, res.Data.Statistics.Value)
	assert.Equal(t, domain.HealthHealthy, res.Data.Health.Value.Status)
}

func TestServer_historyHandler(t *testing.T) {
	samples := []domain.BrokerStatistics{{MemoryUsage: 1}, {MemoryUsage: 2}}
	history := &mocks.HistoryMock{
		RecentFunc: func(n int) []domain.BrokerStatistics { return samples },
		SinceFunc: func(_ context.Context, ts time.Time) ([]domain.BrokerStatistics, error) {
			if ts.Year() == 2001 {
				return nil, errors.New("db gone")
			}
			return samples[1:], nil
		},
	}
	srv := New(testConfig(), testConsole(t), nil, history, "test", false)

	code, res := do[[]domain.BrokerStatistics](t, srv, "GET", "/api/v1/metrics/history?limit=2", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, res.Data, 2)
	require.Len(t, history.RecentCalls(), 1)
	assert.Equal(t, 2, history.RecentCalls()[0].N)

	code, res = do[[]domain.BrokerStatistics](t, srv, "GET", "/api/v1/metrics/history?since=2024-01-02T00:00:00Z", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, res.Data, 1)

	code, _ = do[any](t, srv, "GET", "/api/v1/metrics/history?since=2001-01-02T00:00:00Z", "")
	assert.Equal(t, http.StatusInternalServerError, code)
	code, _ = do[any](t, srv, "GET", "/api/v1/metrics/history?since=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = do[any](t, srv, "GET", "/api/v1/metrics/history?limit=-3", "")
	assert.Equal(t, http.StatusBadRequest, code)

	t.Run("no history", func(t *testing.T) {
		srv := New(testConfig(), testConsole(t), nil, nil, "test", false)
		code, res := do[[]domain.BrokerStatistics](t, srv, "GET", "/api/v1/metrics/history", "")
		require.Equal(t, http.StatusOK, code)
		assert.Empty(t, res.Data)
	})
}

func TestServer_mutationRoutes(t *testing.T) {
	queue := func(name string) domain.DestinationRef {
		return domain.DestinationRef{Kind: domain.KindQueue, Name: name}
	}
	topic := func(name string) domain.DestinationRef {
		return domain.DestinationRef{Kind: domain.KindTopic, Name: name}
	}

	tbl := []struct {
		method, path, body string
		op                 console.Op
		target             console.Target
	}{
		{"POST", "/api/v1/queues?name=invoices", "", console.OpCreate, console.Target{Destination: queue("invoices")}},
		{"DELETE", "/api/v1/queues/orders", "", console.OpDelete, console.Target{Destination: queue("orders")}},
		{"POST", "/api/v1/queues/orders/purge", "", console.OpPurge, console.Target{Destination: queue("orders")}},
		{"POST", "/api/v1/queues/orders/pause", "", console.OpPause, console.Target{Destination: queue("orders")}},
		{"POST", "/api/v1/queues/orders/resume", "", console.OpResume, console.Target{Destination: queue("orders")}},
		{"POST", "/api/v1/topics?name=audit", "", console.OpCreate, console.Target{Destination: topic("audit")}},
		{"DELETE", "/api/v1/topics/events", "", console.OpDelete, console.Target{Destination: topic("events")}},
		{"DELETE", "/api/v1/connections/ID:app-1", "", console.OpCloseConnection, console.Target{ID: "ID:app-1"}},
		{"DELETE", "/api/v1/subscribers/s1", "", console.OpDeleteSubscriber, console.Target{ID: "s1"}},
		{"DELETE", "/api/v1/messages/orders/ID:m1", "", console.OpDeleteMessage,
			console.Target{Destination: queue("orders"), ID: "ID:m1"}},
		{"POST", "/api/v1/messages/orders/ID:m1/move", `{"targetDestination":"orders.dlq"}`, console.OpMoveMessage,
			console.Target{Destination: queue("orders"), ID: "ID:m1", To: "orders.dlq"}},
		{"POST", "/api/v1/messages/orders/ID:m1/copy", `{"targetDestination":"billing"}`, console.OpCopyMessage,
			console.Target{Destination: queue("orders"), ID: "ID:m1", To: "billing"}},
	}

	for _, tt := range tbl {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			mutator := &mocks.MutatorMock{MutateFunc: func(context.Context, console.Op, console.Target) error { return nil }}
			srv := New(testConfig(), testConsole(t), mutator, nil, "test", false)

			code, res := do[any](t, srv, tt.method, tt.path, tt.body)
			require.Equal(t, http.StatusOK, code, res.Message)
			assert.True(t, res.Success)
			require.Len(t, mutator.MutateCalls(), 1)
			assert.Equal(t, tt.op, mutator.MutateCalls()[0].Op)
			assert.Equal(t, tt.target, mutator.MutateCalls()[0].Target)
		})
	}

	t.Run("send message", func(t *testing.T) {
		mutator := &mocks.MutatorMock{MutateFunc: func(context.Context, console.Op, console.Target) error { return nil }}
		srv := New(testConfig(), testConsole(t), mutator, nil, "test", false)

		code, _ := do[any](t, srv, "POST", "/api/v1/messages/send",
			`{"destination":"queue://orders","body":"hi","priority":7,"headers":{"JMSType":"order"}}`)
		require.Equal(t, http.StatusOK, code)
		require.Len(t, mutator.MutateCalls(), 1)
		call := mutator.MutateCalls()[0]
		assert.Equal(t, console.OpSendMessage, call.Op)
		require.NotNil(t, call.Target.Send)
		assert.Equal(t, "hi", call.Target.Send.Body)
		assert.Equal(t, 7, *call.Target.Send.Priority)
		assert.Equal(t, "order", call.Target.Send.Headers["JMSType"])
	})

	t.Run("bad bodies and actions", func(t *testing.T) {
		mutator := &mocks.MutatorMock{MutateFunc: func(context.Context, console.Op, console.Target) error { return nil }}
		srv := New(testConfig(), testConsole(t), mutator, nil, "test", false)

		code, _ := do[any](t, srv, "POST", "/api/v1/messages/send", `{bad`)
		assert.Equal(t, http.StatusBadRequest, code)
		code, _ = do[any](t, srv, "POST", "/api/v1/messages/orders/1/move", `nope`)
		assert.Equal(t, http.StatusBadRequest, code)
		code, _ = do[any](t, srv, "POST", "/api/v1/messages/orders/1/teleport", `{}`)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Empty(t, mutator.MutateCalls())
	})
}

func TestServer_mutationErrors(t *testing.T) {
	tbl := []struct {
		name string
		err  error
		code int
	}{
		{"unsupported", fmt.Errorf("%w: purge on topic", console.ErrUnsupported), http.StatusBadRequest},
		{"invalid target", fmt.Errorf("%w: id is required", console.ErrInvalidTarget), http.StatusBadRequest},
		{"remote not found", fmt.Errorf("delete: %w", &remote.Error{Kind: remote.KindClient, Status: 404, Message: "no such queue"}),
			http.StatusNotFound},
		{"remote timeout", &remote.Error{Kind: remote.KindTimeout, Message: "deadline"}, http.StatusGatewayTimeout},
		{"remote server", &remote.Error{Kind: remote.KindServer, Status: 500, Message: "oops"}, http.StatusBadGateway},
		{"transport", &remote.Error{Kind: remote.KindTransport, Message: "refused"}, http.StatusBadGateway},
	}

	for _, tt := range tbl {
		t.Run(tt.name, func(t *testing.T) {
			mutator := &mocks.MutatorMock{MutateFunc: func(context.Context, console.Op, console.Target) error { return tt.err }}
			srv := New(testConfig(), testConsole(t), mutator, nil, "test", false)
			code, res := do[any](t, srv, "POST", "/api/v1/queues/orders/purge", "")
			assert.Equal(t, tt.code, code)
			assert.False(t, res.Success)
			assert.Equal(t, tt.err.Error(), res.Message)
		})
	}
}

func TestServer_mutationThroughConsole(t *testing.T) {
	c := testConsole(t)
	srv := New(testConfig(), c, nil, nil, "test", false)
	before := c.Stores().Topics.Version()

	code, res := do[any](t, srv, "POST", "/api/v1/topics/events/purge", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, res.Message, "not supported")

	code, res = do[any](t, srv, "DELETE", "/api/v1/topics/events", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "delete done", res.Message)
	assert.Greater(t, c.Stores().Topics.Version(), before, "topics refreshed after the mutation")
}
