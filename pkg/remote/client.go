// Package remote is a client for the broker administration REST API.
// Every call is rate limited and bounded by a timeout; failures are returned
// as *Error and never retried.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-pkgz/lgr"
	"golang.org/x/time/rate"

	"github.com/kenliao94/amqconsole/pkg/domain"
)

// DefaultBaseURL is the admin API of a local broker
const DefaultBaseURL = "http://localhost:8161/api/v1"

const maxErrBody = 512

// Params configure the client
type Params struct {
	BaseURL    string
	Timeout    time.Duration // per call, 30s if not set
	RateLimit  float64       // requests per second, unlimited if not positive
	Burst      int
	User       string
	Password   string
	HTTPClient *http.Client
}

// Client talks to the broker admin API
type Client struct {
	baseURL  string
	timeout  time.Duration
	user     string
	password string
	client   *http.Client
	limiter  *rate.Limiter
}

// envelope wraps most admin API responses
type envelope struct {
	Success   *bool           `json:"success"`
	Data      json.RawMessage `json:"data"`
	Message   string          `json:"message"`
	Timestamp int64           `json:"timestamp"`
}

// NewClient makes a client
func NewClient(p Params) *Client {
	if p.BaseURL == "" {
		p.BaseURL = DefaultBaseURL
	}
	if p.Timeout <= 0 {
		p.Timeout = 30 * time.Second
	}
	if p.HTTPClient == nil {
		p.HTTPClient = &http.Client{}
	}
	limit := rate.Inf
	if p.RateLimit > 0 {
		limit = rate.Limit(p.RateLimit)
	}
	if p.Burst <= 0 {
		p.Burst = 1
	}
	return &Client{
		baseURL:  strings.TrimSuffix(p.BaseURL, "/"),
		timeout:  p.Timeout,
		user:     p.User,
		password: p.Password,
		client:   p.HTTPClient,
		limiter:  rate.NewLimiter(limit, p.Burst),
	}
}

// BrokerInfo returns broker identity and totals
func (c *Client) BrokerInfo(ctx context.Context) (domain.BrokerInfo, error) {
	var res domain.BrokerInfo
	err := c.call(ctx, http.MethodGet, "/broker/info", nil, nil, &res)
	return res, err
}

// BrokerStatistics returns a usage sample stamped with the local receive time
func (c *Client) BrokerStatistics(ctx context.Context) (domain.BrokerStatistics, error) {
	var res domain.BrokerStatistics
	if err := c.call(ctx, http.MethodGet, "/broker/statistics", nil, nil, &res); err != nil {
		return res, err
	}
	res.SampledAt = time.Now()
	return res, nil
}

// BrokerHealth returns the broker health verdict
func (c *Client) BrokerHealth(ctx context.Context) (domain.BrokerHealth, error) {
	var res domain.BrokerHealth
	if err := c.call(ctx, http.MethodGet, "/broker/health", nil, nil, &res); err != nil {
		return res, err
	}
	return res.Normalize(), nil
}

// Queues returns one page of queues
func (c *Client) Queues(ctx context.Context, page, pageSize int) (domain.Page[domain.Queue], error) {
	var res domain.Page[domain.Queue]
	err := c.call(ctx, http.MethodGet, "/queues", pageQuery(page, pageSize), nil, &res)
	return res, err
}

// Queue returns a single queue
func (c *Client) Queue(ctx context.Context, name string) (domain.Queue, error) {
	var res domain.Queue
	err := c.call(ctx, http.MethodGet, "/queues/"+url.PathEscape(name), nil, nil, &res)
	return res, err
}

// CreateQueue creates a queue
func (c *Client) CreateQueue(ctx context.Context, name string) error {
	return c.call(ctx, http.MethodPost, "/queues", url.Values{"name": {name}}, nil, nil)
}

// DeleteQueue deletes a queue
func (c *Client) DeleteQueue(ctx context.Context, name string) error {
	return c.call(ctx, http.MethodDelete, "/queues/"+url.PathEscape(name), nil, nil, nil)
}

// PurgeQueue removes all messages from a queue
func (c *Client) PurgeQueue(ctx context.Context, name string) error {
	return c.call(ctx, http.MethodPost, "/queues/"+url.PathEscape(name)+"/purge", nil, nil, nil)
}

// PauseQueue stops dispatching from a queue
func (c *Client) PauseQueue(ctx context.Context, name string) error {
	return c.call(ctx, http.MethodPost, "/queues/"+url.PathEscape(name)+"/pause", nil, nil, nil)
}

// ResumeQueue resumes dispatching from a paused queue
func (c *Client) ResumeQueue(ctx context.Context, name string) error {
	return c.call(ctx, http.MethodPost, "/queues/"+url.PathEscape(name)+"/resume", nil, nil, nil)
}

// Topics returns one page of topics
func (c *Client) Topics(ctx context.Context, page, pageSize int) (domain.Page[domain.Topic], error) {
	var res domain.Page[domain.Topic]
	err := c.call(ctx, http.MethodGet, "/topics", pageQuery(page, pageSize), nil, &res)
	return res, err
}

// Topic returns a single topic
func (c *Client) Topic(ctx context.Context, name string) (domain.Topic, error) {
	var res domain.Topic
	err := c.call(ctx, http.MethodGet, "/topics/"+url.PathEscape(name), nil, nil, &res)
	return res, err
}

// CreateTopic creates a topic
func (c *Client) CreateTopic(ctx context.Context, name string) error {
	return c.call(ctx, http.MethodPost, "/topics", url.Values{"name": {name}}, nil, nil)
}

// DeleteTopic deletes a topic
func (c *Client) DeleteTopic(ctx context.Context, name string) error {
	return c.call(ctx, http.MethodDelete, "/topics/"+url.PathEscape(name), nil, nil, nil)
}

// Connections returns all client connections
func (c *Client) Connections(ctx context.Context) ([]domain.Connection, error) {
	res := []domain.Connection{}
	err := c.call(ctx, http.MethodGet, "/connections", nil, nil, &res)
	return res, err
}

// Connection returns a single connection
func (c *Client) Connection(ctx context.Context, id string) (domain.Connection, error) {
	var res domain.Connection
	err := c.call(ctx, http.MethodGet, "/connections/"+url.PathEscape(id), nil, nil, &res)
	return res, err
}

// CloseConnection closes a client connection
func (c *Client) CloseConnection(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/connections/"+url.PathEscape(id), nil, nil, nil)
}

// Subscribers returns all consumers
func (c *Client) Subscribers(ctx context.Context) ([]domain.Subscriber, error) {
	res := []domain.Subscriber{}
	err := c.call(ctx, http.MethodGet, "/subscribers", nil, nil, &res)
	return res, err
}

// Subscriber returns a single consumer
func (c *Client) Subscriber(ctx context.Context, id string) (domain.Subscriber, error) {
	var res domain.Subscriber
	err := c.call(ctx, http.MethodGet, "/subscribers/"+url.PathEscape(id), nil, nil, &res)
	return res, err
}

// DeleteSubscriber removes a consumer
func (c *Client) DeleteSubscriber(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/subscribers/"+url.PathEscape(id), nil, nil, nil)
}

// BrowseMessages returns one page of messages from a queue without consuming them
func (c *Client) BrowseMessages(ctx context.Context, queue string, page, pageSize int) (domain.Page[domain.Message], error) {
	var res domain.Page[domain.Message]
	err := c.call(ctx, http.MethodGet, "/messages/queue/"+url.PathEscape(queue), pageQuery(page, pageSize), nil, &res)
	return res, err
}

// Message returns a single message
func (c *Client) Message(ctx context.Context, queue, id string) (domain.Message, error) {
	var res domain.Message
	err := c.call(ctx, http.MethodGet, messagePath(queue, id, ""), nil, nil, &res)
	return res, err
}

// DeleteMessage removes a message from a queue
func (c *Client) DeleteMessage(ctx context.Context, queue, id string) (domain.MessageOperation, error) {
	return c.messageOp(ctx, http.MethodDelete, messagePath(queue, id, ""), nil)
}

// MoveMessage moves a message to another destination
func (c *Client) MoveMessage(ctx context.Context, queue, id, target string) (domain.MessageOperation, error) {
	return c.messageOp(ctx, http.MethodPost, messagePath(queue, id, "move"), map[string]string{"targetDestination": target})
}

// CopyMessage copies a message to another destination
func (c *Client) CopyMessage(ctx context.Context, queue, id, target string) (domain.MessageOperation, error) {
	return c.messageOp(ctx, http.MethodPost, messagePath(queue, id, "copy"), map[string]string{"targetDestination": target})
}

// SendMessage publishes a message
func (c *Client) SendMessage(ctx context.Context, req domain.SendMessageRequest) (domain.MessageOperation, error) {
	return c.messageOp(ctx, http.MethodPost, "/messages/send", req)
}

func (c *Client) messageOp(ctx context.Context, method, path string, body any) (domain.MessageOperation, error) {
	var res domain.MessageOperation
	if err := c.call(ctx, method, path, nil, body, &res); err != nil {
		return res, err
	}
	if strings.EqualFold(res.Status, "error") {
		return res, &Error{Kind: KindServer, Status: http.StatusOK, Message: res.Message}
	}
	return res, nil
}

// call performs one request and decodes the response into out.
// Payloads wrapped in the {success,data,message} envelope are unwrapped; bare payloads are decoded as is.
func (c *Client) call(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return &Error{Kind: KindTransport, Message: "request canceled", Err: err}
		}
		// limiter refuses to wait past the deadline
		return &Error{Kind: KindTimeout, Message: "rate limit wait exceeds timeout", Err: context.DeadlineExceeded}
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request for %s %s: %w", method, path, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("create request %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.user != "" {
		req.SetBasicAuth(c.user, c.password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return transportErr(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportErr(ctx, fmt.Errorf("read response: %w", err))
	}
	lgr.Printf("[DEBUG] %s %s -> %d, %d bytes", method, path, resp.StatusCode, len(data))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Kind: statusKind(resp.StatusCode), Status: resp.StatusCode, Message: errMessage(resp.StatusCode, data)}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	var env envelope
	if jerr := json.Unmarshal(data, &env); jerr == nil && env.Success != nil {
		if !*env.Success {
			msg := env.Message
			if msg == "" {
				msg = "request failed"
			}
			return &Error{Kind: KindServer, Status: resp.StatusCode, Message: msg}
		}
		data = env.Data
	}

	if out == nil || len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Kind: KindServer, Status: resp.StatusCode, Message: "can't decode response", Err: err}
	}
	return nil
}

func transportErr(ctx context.Context, err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &ne) && ne.Timeout()) {
		return &Error{Kind: KindTimeout, Message: "request timed out", Err: context.DeadlineExceeded}
	}
	return &Error{Kind: KindTransport, Message: err.Error(), Err: err}
}

// errMessage picks the message field of an error body, falling back to the status text
func errMessage(status int, body []byte) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Message != "" {
		return env.Message
	}
	if s := strings.TrimSpace(string(body)); s != "" && !strings.HasPrefix(s, "<") {
		if len(s) > maxErrBody {
			s = s[:maxErrBody]
		}
		return s
	}
	return http.StatusText(status)
}

func pageQuery(page, pageSize int) url.Values {
	return url.Values{"page": {strconv.Itoa(page)}, "pageSize": {strconv.Itoa(pageSize)}}
}

func messagePath(queue, id, action string) string {
	p := "/messages/" + url.PathEscape(queue) + "/" + url.PathEscape(id)
	if action != "" {
		p += "/" + action
	}
	return p
}
