package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"

	"github.com/kenliao94/amqconsole/pkg/console"
	"github.com/kenliao94/amqconsole/pkg/domain"
)

//go:generate moq -out mocks/config.go -pkg mocks -skip-ensure -fmt goimports . ConfigProvider
//go:generate moq -out mocks/mutator.go -pkg mocks -skip-ensure -fmt goimports . Mutator
//go:generate moq -out mocks/history.go -pkg mocks -skip-ensure -fmt goimports . History

// Server represents HTTP server instance
type Server struct {
	config  ConfigProvider
	console *console.Console
	mutator Mutator
	history History
	hub     *Hub
	version string
	debug   bool

	lock       sync.Mutex
	httpServer *http.Server
	router     *routegroup.Bundle
}

// Mutator runs console mutations
type Mutator interface {
	Mutate(ctx context.Context, op console.Op, target console.Target) error
}

// History serves broker statistics samples
type History interface {
	Recent(n int) []domain.BrokerStatistics
	Since(ctx context.Context, t time.Time) ([]domain.BrokerStatistics, error)
}

// ConfigProvider provides server configuration
type ConfigProvider interface {
	GetServerConfig() (listen string, timeout, pingPeriod time.Duration)
}

// New initializes a new server instance. Mutator and history are optional,
// by default mutations go through the console's own mutator.
func New(cfg ConfigProvider, c *console.Console, mutator Mutator, history History, version string, debug bool) *Server {
	if mutator == nil {
		mutator = c.Mutator
	}
	_, _, pingPeriod := cfg.GetServerConfig()
	s := &Server{
		config:  cfg,
		console: c,
		mutator: mutator,
		history: history,
		hub:     NewHub(c.Stores(), pingPeriod),
		version: version,
		debug:   debug,
		router:  routegroup.New(http.NewServeMux()),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Run starts the HTTP server and the update hub, and handles graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	listen, timeout, _ := s.config.GetServerConfig()
	lgr.Printf("[INFO] starting server on %s", listen)

	s.lock.Lock()
	s.httpServer = &http.Server{
		Addr:              listen,
		Handler:           s.router,
		ReadHeaderTimeout: timeout,
		IdleTimeout:       timeout,
	}
	s.lock.Unlock()

	hubCtx, hubCancel := context.WithCancel(ctx)
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		s.hub.Run(hubCtx)
	}()

	go func() {
		<-ctx.Done()
		lgr.Printf("[INFO] shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			lgr.Printf("[WARN] server shutdown error: %v", err)
		}
	}()

	err := s.httpServer.ListenAndServe()
	hubCancel()
	<-hubDone
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}

	return nil
}

// setupMiddleware configures standard middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(rest.AppInfo("amqconsole", "kenliao94", s.version))
	s.router.Use(rest.Ping)

	if s.debug {
		s.router.Use(logger.New(logger.Log(lgr.Default()), logger.Prefix("[DEBUG]")).Handler)
	}

	s.router.Use(rest.Recoverer(lgr.Default()))
	s.router.Use(rest.Throttle(100))
	s.router.Use(rest.SizeLimit(1024 * 1024)) // 1MB
}

// setupRoutes configures application routes
func (s *Server) setupRoutes() {
	s.router.Mount("/api/v1").Route(func(r *routegroup.Bundle) {
		r.HandleFunc("GET /status", s.statusHandler)
		r.HandleFunc("PUT /auto-refresh", s.autoRefreshHandler)

		r.HandleFunc("GET /subscriptions", s.subscriptionsHandler)
		r.HandleFunc("POST /subscriptions/{feature}/{action}", s.subscriptionActionHandler)
		r.HandleFunc("PUT /subscriptions/{feature}/interval", s.subscriptionIntervalHandler)
		r.HandleFunc("DELETE /subscriptions/{feature}", s.closeFeatureHandler)

		r.HandleFunc("GET /broker", s.brokerHandler)
		r.HandleFunc("GET /metrics/history", s.historyHandler)

		r.HandleFunc("PUT /destinations/type", s.destinationTypeHandler)

		r.HandleFunc("GET /queues", s.queuesHandler)
		r.HandleFunc("GET /queues/{name}", detailHandler(s.console.QueueDetails, pathKey("name")))
		r.HandleFunc("POST /queues", s.createDestinationHandler(domain.KindQueue))
		r.HandleFunc("DELETE /queues/{name}", s.deleteDestinationHandler(domain.KindQueue))
		r.HandleFunc("POST /queues/{name}/{action}", s.destinationActionHandler(domain.KindQueue))

		r.HandleFunc("GET /topics", s.topicsHandler)
		r.HandleFunc("GET /topics/{name}", detailHandler(s.console.TopicDetails, pathKey("name")))
		r.HandleFunc("POST /topics", s.createDestinationHandler(domain.KindTopic))
		r.HandleFunc("DELETE /topics/{name}", s.deleteDestinationHandler(domain.KindTopic))
		r.HandleFunc("POST /topics/{name}/{action}", s.destinationActionHandler(domain.KindTopic))

		r.HandleFunc("GET /connections", s.connectionsHandler)
		r.HandleFunc("GET /connections/{id}", detailHandler(s.console.ConnectionDetails, pathKey("id")))
		r.HandleFunc("DELETE /connections/{id}", s.closeConnectionHandler)
		r.HandleFunc("GET /subscribers", s.subscribersHandler)
		r.HandleFunc("GET /subscribers/{id}", detailHandler(s.console.SubscriberDetails, pathKey("id")))
		r.HandleFunc("DELETE /subscribers/{id}", s.deleteSubscriberHandler)

		r.HandleFunc("GET /messages/{queue}", s.messagesHandler)
		r.HandleFunc("GET /messages/{queue}/{id}", detailHandler(s.console.MessageDetails, messageKey))
		r.HandleFunc("DELETE /messages/{queue}/{id}", s.deleteMessageHandler)
		r.HandleFunc("POST /messages/{queue}/{id}/{action}", s.transferMessageHandler)
		r.HandleFunc("POST /messages/send", s.sendMessageHandler)
		r.HandleFunc("DELETE /browsers/{queue}", s.closeBrowserHandler)
	})

	s.router.HandleFunc("GET /ws", s.wsHandler)
}

// response is the envelope of every API reply
type response struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// renderJSON sends JSON response
func renderJSON(w http.ResponseWriter, _ *http.Request, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			lgr.Printf("[ERROR] can't encode response to JSON: %v", err)
		}
	}
}

// renderOK wraps data in a success envelope
func renderOK(w http.ResponseWriter, r *http.Request, data any) {
	renderJSON(w, r, http.StatusOK, response{Success: true, Data: data, Timestamp: time.Now().UTC()})
}

// renderError sends error response in the envelope
func renderError(w http.ResponseWriter, r *http.Request, err error, code int) {
	errMsg := "unknown error"
	if err != nil {
		errMsg = err.Error()
	}
	renderJSON(w, r, code, response{Success: false, Message: errMsg, Timestamp: time.Now().UTC()})
}
