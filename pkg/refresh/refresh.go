// Package refresh runs the independent fetch operations of one logical refresh.
// All operations start together, every one of them settles into its own store,
// and a failing operation never cancels or blocks the others.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-pkgz/lgr"
	"golang.org/x/sync/errgroup"

	"github.com/kenliao94/amqconsole/pkg/store"
)

// Op is one named fetch bound to the store it writes
type Op interface {
	Name() string
	// begin marks the store as loading; the returned func runs the fetch and settles the result
	begin() func(ctx context.Context) error
}

type boundOp[T any] struct {
	name  string
	store *store.Store[T]
	fetch func(ctx context.Context) (T, error)
	now   func() time.Time
}

// Bind makes an op fetching a value with fetch and settling it into st
func Bind[T any](name string, st *store.Store[T], fetch func(ctx context.Context) (T, error)) Op {
	return &boundOp[T]{name: name, store: st, fetch: fetch, now: time.Now}
}

func (o *boundOp[T]) Name() string { return o.name }

func (o *boundOp[T]) begin() func(ctx context.Context) error {
	attempt := o.store.Begin()
	return func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s: panic: %v", o.name, r)
				attempt.Settle(store.Fail[T](err.Error(), o.now()))
			}
		}()

		value, err := o.fetch(ctx)
		if err != nil {
			attempt.Settle(store.Fail[T](err.Error(), o.now()))
			return fmt.Errorf("%s: %w", o.name, err)
		}
		if !attempt.Settle(store.Ok(value, o.now())) {
			lgr.Printf("[DEBUG] %s result discarded, newer value already applied", o.name)
		}
		return nil
	}
}

// Orchestrator runs refreshes with an upper bound on each operation's duration
type Orchestrator struct {
	timeout time.Duration
}

// New makes an orchestrator; zero timeout means operations run until ctx is done
func New(timeout time.Duration) *Orchestrator {
	return &Orchestrator{timeout: timeout}
}

// Run executes ops concurrently and waits for all of them to settle.
// Loading marks are placed on every store before any op starts.
// The returned error joins all op failures; nil if every op succeeded.
func (o *Orchestrator) Run(ctx context.Context, ops ...Op) error {
	if len(ops) == 0 {
		return nil
	}

	runs := make([]func(ctx context.Context) error, len(ops))
	for i, op := range ops {
		runs[i] = op.begin()
	}

	errs := make([]error, len(ops))
	var g errgroup.Group // no derived context, one failure must not cancel the rest
	for i, run := range runs {
		g.Go(func() error {
			opCtx, cancel := o.opContext(ctx)
			defer cancel()
			errs[i] = run(opCtx)
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

func (o *Orchestrator) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.timeout)
}
