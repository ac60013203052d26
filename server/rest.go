package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/kenliao94/amqconsole/pkg/console"
	"github.com/kenliao94/amqconsole/pkg/domain"
	"github.com/kenliao94/amqconsole/pkg/remote"
	"github.com/kenliao94/amqconsole/pkg/scheduler"
	"github.com/kenliao94/amqconsole/pkg/view"
)

// query params of list endpoints which are not filters
var viewParams = map[string]bool{"sort": true, "desc": true, "page": true, "pageSize": true,
	"remotePage": true, "remotePageSize": true}

// statusHandler returns server status
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	renderOK(w, r, map[string]any{
		"status":      "ok",
		"version":     s.version,
		"time":        time.Now().UTC(),
		"autoRefresh": s.console.IsAutoRefresh(),
		"domains":     s.console.Stores().Domains(),
	})
}

// autoRefreshHandler pauses or resumes polling of all features, ?enabled=true|false
func (s *Server) autoRefreshHandler(w http.ResponseWriter, r *http.Request) {
	enabled, err := strconv.ParseBool(r.URL.Query().Get("enabled"))
	if err != nil {
		renderError(w, r, fmt.Errorf("enabled must be true or false"), http.StatusBadRequest)
		return
	}
	s.console.SetAutoRefresh(enabled)
	renderOK(w, r, map[string]bool{"autoRefresh": enabled})
}

// subscriptionsHandler lists polling status of all features
func (s *Server) subscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	features := s.console.Features()
	res := make([]scheduler.Status, 0, len(features))
	for _, f := range features {
		res = append(res, f.Status())
	}
	renderOK(w, r, res)
}

// subscriptionActionHandler runs pause, resume, toggle or refresh on a feature
func (s *Server) subscriptionActionHandler(w http.ResponseWriter, r *http.Request) {
	f, ok := s.console.Feature(r.PathValue("feature"))
	if !ok {
		renderError(w, r, fmt.Errorf("unknown feature %q", r.PathValue("feature")), http.StatusNotFound)
		return
	}

	switch action := r.PathValue("action"); action {
	case "pause":
		f.Pause()
	case "resume":
		f.Resume()
	case "toggle":
		f.Toggle()
	case "refresh":
		if err := f.Refresh(r.Context()); err != nil {
			// failures are recorded in the stores, the caller still gets them
			lgr.Printf("[WARN] refresh of %s failed: %v", f.Name(), err)
			renderError(w, r, err, http.StatusBadGateway)
			return
		}
	default:
		renderError(w, r, fmt.Errorf("invalid action %q", action), http.StatusBadRequest)
		return
	}
	renderOK(w, r, f.Status())
}

// subscriptionIntervalHandler changes the polling interval of a feature, ?ms=
func (s *Server) subscriptionIntervalHandler(w http.ResponseWriter, r *http.Request) {
	f, ok := s.console.Feature(r.PathValue("feature"))
	if !ok {
		renderError(w, r, fmt.Errorf("unknown feature %q", r.PathValue("feature")), http.StatusNotFound)
		return
	}
	ms, err := strconv.ParseInt(r.URL.Query().Get("ms"), 10, 64)
	if err != nil || ms < 100 {
		renderError(w, r, fmt.Errorf("ms must be an integer of at least 100"), http.StatusBadRequest)
		return
	}
	f.SetInterval(time.Duration(ms) * time.Millisecond)
	renderOK(w, r, f.Status())
}

// brokerHandler returns broker info, statistics and health with their load state
func (s *Server) brokerHandler(w http.ResponseWriter, r *http.Request) {
	renderOK(w, r, s.console.Broker.Snapshot())
}

// historyHandler returns statistics samples, ?limit=N for the last N or ?since=RFC3339
func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		renderOK(w, r, []domain.BrokerStatistics{})
		return
	}

	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			renderError(w, r, fmt.Errorf("since must be RFC3339 time"), http.StatusBadRequest)
			return
		}
		res, err := s.history.Since(r.Context(), t)
		if err != nil {
			lgr.Printf("[ERROR] failed to load statistics history: %v", err)
			renderError(w, r, err, http.StatusInternalServerError)
			return
		}
		renderOK(w, r, res)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			renderError(w, r, fmt.Errorf("limit must be a non-negative integer"), http.StatusBadRequest)
			return
		}
		limit = n
	}
	renderOK(w, r, s.history.Recent(limit))
}

// closeFeatureHandler closes a queue browser or a detail feature
func (s *Server) closeFeatureHandler(w http.ResponseWriter, r *http.Request) {
	closed, err := s.console.CloseFeature(r.PathValue("feature"))
	if err != nil {
		renderError(w, r, err, http.StatusBadRequest)
		return
	}
	if !closed {
		renderError(w, r, fmt.Errorf("no open feature %q", r.PathValue("feature")), http.StatusNotFound)
		return
	}
	renderOK(w, r, nil)
}

// destinationTypeHandler changes the polled destination kinds, ?type=queue|topic|both
func (s *Server) destinationTypeHandler(w http.ResponseWriter, r *http.Request) {
	d := s.console.Destinations
	changed, err := d.SetType(r.URL.Query().Get("type"))
	if err != nil {
		renderError(w, r, err, http.StatusBadRequest)
		return
	}
	if changed {
		if err := d.Refresh(r.Context()); err != nil {
			lgr.Printf("[WARN] refresh of %s failed: %v", d.Name(), err)
		}
	}
	page, pageSize := d.RemotePage()
	renderOK(w, r, map[string]any{"type": d.Type(), "remotePage": page, "remotePageSize": pageSize})
}

func (s *Server) queuesHandler(w http.ResponseWriter, r *http.Request) {
	if err := applyRemotePage(r, s.console.Destinations); err != nil {
		renderError(w, r, err, http.StatusBadRequest)
		return
	}
	renderView(w, r, s.console.Destinations.QueueView())
}

func (s *Server) topicsHandler(w http.ResponseWriter, r *http.Request) {
	if err := applyRemotePage(r, s.console.Destinations); err != nil {
		renderError(w, r, err, http.StatusBadRequest)
		return
	}
	renderView(w, r, s.console.Destinations.TopicView())
}

func (s *Server) connectionsHandler(w http.ResponseWriter, r *http.Request) {
	renderView(w, r, s.console.Connections.ConnectionView())
}

func (s *Server) subscribersHandler(w http.ResponseWriter, r *http.Request) {
	renderView(w, r, s.console.Connections.SubscriberView())
}

// messagesHandler opens a browser of the queue on first use and returns its derived view
func (s *Server) messagesHandler(w http.ResponseWriter, r *http.Request) {
	b, err := s.console.Messages.Open(r.PathValue("queue"))
	if err != nil {
		renderError(w, r, err, http.StatusBadRequest)
		return
	}
	if err := applyRemotePage(r, b); err != nil {
		renderError(w, r, err, http.StatusBadRequest)
		return
	}
	if !b.Store().Read().HasValue() {
		if err := b.Refresh(r.Context()); err != nil {
			lgr.Printf("[WARN] initial browse of %s failed: %v", b.Queue(), err)
		}
	}
	renderView(w, r, b.View())
}

// closeBrowserHandler stops polling a queue's messages
func (s *Server) closeBrowserHandler(w http.ResponseWriter, r *http.Request) {
	if !s.console.Messages.Close(r.PathValue("queue")) {
		renderError(w, r, fmt.Errorf("no open browser for %q", r.PathValue("queue")), http.StatusNotFound)
		return
	}
	renderOK(w, r, nil)
}

// createDestinationHandler creates a queue or topic, ?name=
func (s *Server) createDestinationHandler(kind domain.DestinationKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := domain.DestinationRef{Kind: kind, Name: r.URL.Query().Get("name")}
		s.mutate(w, r, console.OpCreate, console.Target{Destination: ref})
	}
}

func (s *Server) deleteDestinationHandler(kind domain.DestinationKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := domain.DestinationRef{Kind: kind, Name: r.PathValue("name")}
		s.mutate(w, r, console.OpDelete, console.Target{Destination: ref})
	}
}

// destinationActionHandler runs purge, pause or resume
func (s *Server) destinationActionHandler(kind domain.DestinationKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := domain.DestinationRef{Kind: kind, Name: r.PathValue("name")}
		s.mutate(w, r, console.Op(r.PathValue("action")), console.Target{Destination: ref})
	}
}

func (s *Server) closeConnectionHandler(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, console.OpCloseConnection, console.Target{ID: r.PathValue("id")})
}

func (s *Server) deleteSubscriberHandler(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, console.OpDeleteSubscriber, console.Target{ID: r.PathValue("id")})
}

func (s *Server) deleteMessageHandler(w http.ResponseWriter, r *http.Request) {
	ref := domain.DestinationRef{Kind: domain.KindQueue, Name: r.PathValue("queue")}
	s.mutate(w, r, console.OpDeleteMessage, console.Target{Destination: ref, ID: r.PathValue("id")})
}

// transferMessageHandler moves or copies a message, body {"targetDestination": "..."}
func (s *Server) transferMessageHandler(w http.ResponseWriter, r *http.Request) {
	ops := map[string]console.Op{"move": console.OpMoveMessage, "copy": console.OpCopyMessage}
	op, ok := ops[r.PathValue("action")]
	if !ok {
		renderError(w, r, fmt.Errorf("invalid action %q", r.PathValue("action")), http.StatusBadRequest)
		return
	}
	var req struct {
		TargetDestination string `json:"targetDestination"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, fmt.Errorf("invalid request body: %w", err), http.StatusBadRequest)
		return
	}
	ref := domain.DestinationRef{Kind: domain.KindQueue, Name: r.PathValue("queue")}
	s.mutate(w, r, op, console.Target{Destination: ref, ID: r.PathValue("id"), To: req.TargetDestination})
}

func (s *Server) sendMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, fmt.Errorf("invalid request body: %w", err), http.StatusBadRequest)
		return
	}
	s.mutate(w, r, console.OpSendMessage, console.Target{Send: &req})
}

func (s *Server) mutate(w http.ResponseWriter, r *http.Request, op console.Op, target console.Target) {
	if err := s.mutator.Mutate(r.Context(), op, target); err != nil {
		renderError(w, r, err, mutationStatus(err))
		return
	}
	renderJSON(w, r, http.StatusOK, response{Success: true, Message: string(op) + " done", Timestamp: time.Now().UTC()})
}

// mutationStatus maps a mutation error to the http status of the reply
func mutationStatus(err error) int {
	switch {
	case errors.Is(err, console.ErrUnsupported), errors.Is(err, console.ErrInvalidTarget):
		return http.StatusBadRequest
	case remote.KindOf(err) == remote.KindClient:
		var re *remote.Error
		if errors.As(err, &re) && re.Status != 0 {
			return re.Status
		}
		return http.StatusBadRequest
	case remote.KindOf(err) == remote.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// remotePager is a feature fetching one page of a remote list
type remotePager interface {
	console.Feature
	RemotePage() (page, pageSize int)
	SetRemotePage(page, pageSize int) (bool, error)
}

// applyRemotePage moves a feature to the remote page of ?remotePage=&remotePageSize=
// and fetches it right away if the page changed. A missing param keeps its current value.
func applyRemotePage(r *http.Request, f remotePager) error {
	q := r.URL.Query()
	rawPage, rawSize := q.Get("remotePage"), q.Get("remotePageSize")
	if rawPage == "" && rawSize == "" {
		return nil
	}
	page, pageSize := f.RemotePage()
	var err error
	if rawPage != "" {
		if page, err = strconv.Atoi(rawPage); err != nil {
			return fmt.Errorf("%w: remotePage must be an integer, got %q", view.ErrInvalidFilter, rawPage)
		}
	}
	if rawSize != "" {
		if pageSize, err = strconv.Atoi(rawSize); err != nil {
			return fmt.Errorf("%w: remotePageSize must be an integer, got %q", view.ErrInvalidFilter, rawSize)
		}
	}
	changed, err := f.SetRemotePage(page, pageSize)
	if err != nil {
		return err
	}
	if changed {
		if err := f.Refresh(r.Context()); err != nil {
			// recorded in the feature's stores and shown by the view
			lgr.Printf("[WARN] refresh of %s failed: %v", f.Name(), err)
		}
	}
	return nil
}

// detailHandler opens the detail of a target on first use and returns its store entry.
// A target unknown to the broker answers 404 and its detail is closed again.
func detailHandler[T any](d *console.Details[T], key func(r *http.Request) string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		det, err := d.Open(key(r))
		if err != nil {
			renderError(w, r, err, http.StatusBadRequest)
			return
		}
		if !det.Store().Read().HasValue() {
			if err := det.Refresh(r.Context()); err != nil {
				if remote.IsNotFound(err) {
					d.Close(det.Key())
					renderError(w, r, err, http.StatusNotFound)
					return
				}
				lgr.Printf("[WARN] initial fetch of %s failed: %v", det.Name(), err)
			}
		}
		renderOK(w, r, det.Store().Read())
	}
}

func pathKey(name string) func(r *http.Request) string {
	return func(r *http.Request) string { return r.PathValue(name) }
}

func messageKey(r *http.Request) string {
	return console.MessageKey(r.PathValue("queue"), r.PathValue("id"))
}

// renderView applies query params to a view and renders its current page.
// Params other than sort, desc, page, pageSize and remote paging are filters.
func renderView[S, T any](w http.ResponseWriter, r *http.Request, v *view.View[S, T]) {
	if err := applyQuery(v, r.URL.Query()); err != nil {
		renderError(w, r, err, http.StatusBadRequest)
		return
	}
	renderOK(w, r, v.Rows())
}

func applyQuery[S, T any](v *view.View[S, T], q url.Values) error {
	for name, values := range q {
		if viewParams[name] || len(values) == 0 {
			continue
		}
		if err := v.SetFilter(name, values[0]); err != nil {
			return err
		}
	}

	if key := q.Get("sort"); key != "" {
		desc := false
		if raw := q.Get("desc"); raw != "" {
			d, err := strconv.ParseBool(raw)
			if err != nil {
				return fmt.Errorf("%w: desc must be true or false, got %q", view.ErrInvalidFilter, raw)
			}
			desc = d
		}
		if err := v.SortBy(key, desc); err != nil {
			return err
		}
	}

	if raw := q.Get("pageSize"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%w: pageSize must be an integer, got %q", view.ErrInvalidFilter, raw)
		}
		if err := v.SetPageSize(size); err != nil {
			return err
		}
	}
	if raw := q.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 0 {
			return fmt.Errorf("%w: page must be a non-negative integer, got %q", view.ErrInvalidFilter, raw)
		}
		v.SetPage(page)
	}
	return nil
}
