package console

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/kenliao94/amqconsole/pkg/domain"
	"github.com/kenliao94/amqconsole/pkg/store"
)

// ErrUnsupported is returned for operations the target doesn't support, e.g. purging a topic.
// It is a local validation error; nothing is sent to the broker.
var ErrUnsupported = errors.New("operation not supported")

// ErrInvalidTarget is returned when the target lacks fields required by the operation
var ErrInvalidTarget = errors.New("invalid mutation target")

// Op is a side-effecting console operation
type Op string

// mutation operations
const (
	OpCreate           Op = "create"
	OpDelete           Op = "delete"
	OpPurge            Op = Op(domain.CapPurge)
	OpPause            Op = Op(domain.CapPause)
	OpResume           Op = Op(domain.CapResume)
	OpCloseConnection  Op = "close-connection"
	OpDeleteSubscriber Op = "delete-subscriber"
	OpDeleteMessage    Op = "delete-message"
	OpMoveMessage      Op = "move-message"
	OpCopyMessage      Op = "copy-message"
	OpSendMessage      Op = "send-message"
)

// Target is what a mutation acts on. Which fields are used depends on the op:
// destination ops use Destination, connection and subscriber ops use ID,
// message ops use Destination (the source queue), ID (message id) and To,
// send uses Send.
type Target struct {
	Destination domain.DestinationRef
	ID          string
	To          string
	Send        *domain.SendMessageRequest
}

// Mutator runs side-effecting calls and refreshes the owning feature after success
type Mutator struct {
	remote  Remote
	stores  *store.Registry
	console *Console
}

// Mutate runs op on target. On success the owning feature is refreshed exactly once;
// on failure nothing is refreshed, the error is recorded in the owning store and returned.
func (m *Mutator) Mutate(ctx context.Context, op Op, target Target) error {
	call, err := m.prepare(op, target)
	if err != nil {
		return err
	}
	owner, fail := m.owner(op, target)

	if err := call(ctx); err != nil {
		fail(err)
		lgr.Printf("[WARN] %s %s failed: %v", op, describe(target), err)
		return fmt.Errorf("%s %s: %w", op, describe(target), err)
	}
	lgr.Printf("[INFO] %s %s done", op, describe(target))
	m.closeRemoved(op, target)

	if err := owner.Refresh(ctx); err != nil {
		// the mutation itself succeeded, refresh failure is already recorded in the stores
		lgr.Printf("[WARN] refresh of %s after %s failed: %v", owner.Name(), op, err)
	}
	return nil
}

// prepare validates the target and returns the remote call
func (m *Mutator) prepare(op Op, t Target) (func(ctx context.Context) error, error) {
	r := m.remote
	dst := t.Destination
	switch op {
	case OpCreate, OpDelete, OpPurge, OpPause, OpResume:
		if strings.TrimSpace(dst.Name) == "" {
			return nil, fmt.Errorf("%w: destination name is required", ErrInvalidTarget)
		}
		if dst.Kind != domain.KindQueue && dst.Kind != domain.KindTopic {
			return nil, fmt.Errorf("%w: destination type %q", ErrInvalidTarget, dst.Kind)
		}
	}

	switch op {
	case OpCreate:
		if dst.Kind == domain.KindQueue {
			return func(ctx context.Context) error { return r.CreateQueue(ctx, dst.Name) }, nil
		}
		return func(ctx context.Context) error { return r.CreateTopic(ctx, dst.Name) }, nil
	case OpDelete:
		if dst.Kind == domain.KindQueue {
			return func(ctx context.Context) error { return r.DeleteQueue(ctx, dst.Name) }, nil
		}
		return func(ctx context.Context) error { return r.DeleteTopic(ctx, dst.Name) }, nil
	case OpPurge, OpPause, OpResume:
		if !dst.Kind.Supports(domain.Capability(op)) {
			return nil, fmt.Errorf("%w: %s on %s", ErrUnsupported, op, dst.Kind)
		}
		calls := map[Op]func(ctx context.Context, name string) error{OpPurge: r.PurgeQueue, OpPause: r.PauseQueue, OpResume: r.ResumeQueue}
		call := calls[op]
		return func(ctx context.Context) error { return call(ctx, dst.Name) }, nil
	case OpCloseConnection, OpDeleteSubscriber:
		if t.ID == "" {
			return nil, fmt.Errorf("%w: id is required", ErrInvalidTarget)
		}
		if op == OpCloseConnection {
			return func(ctx context.Context) error { return r.CloseConnection(ctx, t.ID) }, nil
		}
		return func(ctx context.Context) error { return r.DeleteSubscriber(ctx, t.ID) }, nil
	case OpDeleteMessage, OpMoveMessage, OpCopyMessage:
		if dst.Name == "" || t.ID == "" {
			return nil, fmt.Errorf("%w: queue and message id are required", ErrInvalidTarget)
		}
		if dst.Kind == domain.KindTopic {
			return nil, fmt.Errorf("%w: %s on %s", ErrUnsupported, op, dst.Kind)
		}
		switch op {
		case OpDeleteMessage:
			return func(ctx context.Context) error { _, err := r.DeleteMessage(ctx, dst.Name, t.ID); return err }, nil
		case OpMoveMessage, OpCopyMessage:
			if t.To == "" {
				return nil, fmt.Errorf("%w: target destination is required", ErrInvalidTarget)
			}
			if op == OpMoveMessage {
				return func(ctx context.Context) error { _, err := r.MoveMessage(ctx, dst.Name, t.ID, t.To); return err }, nil
			}
			return func(ctx context.Context) error { _, err := r.CopyMessage(ctx, dst.Name, t.ID, t.To); return err }, nil
		}
	case OpSendMessage:
		if t.Send == nil || t.Send.Destination == "" {
			return nil, fmt.Errorf("%w: destination is required", ErrInvalidTarget)
		}
		req := *t.Send
		return func(ctx context.Context) error { _, err := r.SendMessage(ctx, req); return err }, nil
	}
	return nil, fmt.Errorf("%w: unknown operation %q", ErrUnsupported, op)
}

// owner returns the feature refreshed after a successful op and the recorder of a failure.
// Message ops belong to the open browser of the queue and queue actions to the open queue detail,
// everything else to the list features.
func (m *Mutator) owner(op Op, t Target) (Feature, func(error)) {
	now := time.Now
	switch op {
	case OpCloseConnection:
		return m.console.Connections, func(err error) {
			m.stores.Connections.Write(store.Fail[[]domain.Connection](err.Error(), now()))
		}
	case OpDeleteSubscriber:
		return m.console.Connections, func(err error) {
			m.stores.Subscribers.Write(store.Fail[[]domain.Subscriber](err.Error(), now()))
		}
	case OpDeleteMessage, OpMoveMessage, OpCopyMessage:
		if b, ok := m.console.Messages.Get(t.Destination.Name); ok {
			return b, func(err error) {
				b.store.Write(store.Fail[domain.Page[domain.Message]](err.Error(), now()))
			}
		}
	case OpPurge, OpPause, OpResume:
		if d, ok := m.console.QueueDetails.Get(t.Destination.Name); ok {
			return d, func(err error) {
				d.store.Write(store.Fail[domain.Queue](err.Error(), now()))
			}
		}
	}

	if t.Destination.Kind == domain.KindTopic {
		return m.console.Destinations, func(err error) {
			m.stores.Topics.Write(store.Fail[domain.Page[domain.Topic]](err.Error(), now()))
		}
	}
	return m.console.Destinations, func(err error) {
		m.stores.Queues.Write(store.Fail[domain.Page[domain.Queue]](err.Error(), now()))
	}
}

// closeRemoved closes the detail of a target the op removed
func (m *Mutator) closeRemoved(op Op, t Target) {
	c := m.console
	switch op {
	case OpDelete:
		if t.Destination.Kind == domain.KindTopic {
			c.TopicDetails.Close(t.Destination.Name)
			return
		}
		c.QueueDetails.Close(t.Destination.Name)
	case OpCloseConnection:
		c.ConnectionDetails.Close(t.ID)
	case OpDeleteSubscriber:
		c.SubscriberDetails.Close(t.ID)
	case OpDeleteMessage, OpMoveMessage:
		c.MessageDetails.Close(MessageKey(t.Destination.Name, t.ID))
	}
}

func describe(t Target) string {
	switch {
	case t.Send != nil:
		return t.Send.Destination
	case t.Destination.Name != "" && t.ID != "":
		return t.Destination.String() + "/" + t.ID
	case t.Destination.Name != "":
		return t.Destination.String()
	default:
		return t.ID
	}
}
