package dds

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"mini-dap/dap"
)

// Selector decides whether a variable takes part in a response.
type Selector func(ctx context.Context, v dap.Value) (bool, error)

// Evaluator is the dap.Gate used while a response is encoded. It applies the
// selector and keeps a bookkeeping timer that stops while the selector or a
// data source runs.
type Evaluator struct {
	dataset  string
	selector Selector
	budget   time.Duration
	clock    clock.Clock

	started  time.Time
	spent    time.Duration
	paused   int
	excluded map[dap.Value]struct{}
}

type Option func(*Evaluator)

func WithSelector(s Selector) Option {
	return func(e *Evaluator) { e.selector = s }
}

// WithBudget bounds the bookkeeping time of a response. Zero means no bound.
func WithBudget(d time.Duration) Option {
	return func(e *Evaluator) { e.budget = d }
}

func WithClock(c clock.Clock) Option {
	return func(e *Evaluator) { e.clock = c }
}

// NewEvaluator returns a running evaluator for dataset.
func NewEvaluator(dataset string, opts ...Option) *Evaluator {
	e := &Evaluator{dataset: dataset, clock: clock.New()}
	for _, opt := range opts {
		opt(e)
	}
	e.started = e.clock.Now()
	return e
}

func (e *Evaluator) Dataset() string { return e.dataset }

func (e *Evaluator) Selected(ctx context.Context, v dap.Value) (bool, error) {
	if e.selector == nil {
		return true, nil
	}
	ok, err := e.selector(ctx, v)
	if err == nil && !ok {
		if e.excluded == nil {
			e.excluded = make(map[dap.Value]struct{})
		}
		e.excluded[v] = struct{}{}
	}
	return ok, err
}

// Excluded reports whether the selector turned v away.
func (e *Evaluator) Excluded(v dap.Value) bool {
	_, ok := e.excluded[v]
	return ok
}

// Elapsed is the bookkeeping time spent so far.
func (e *Evaluator) Elapsed() time.Duration {
	if e.paused > 0 {
		return e.spent
	}
	return e.spent + e.clock.Since(e.started)
}

func (e *Evaluator) Check() error {
	if e.budget <= 0 {
		return nil
	}
	if spent := e.Elapsed(); spent > e.budget {
		return errors.Wrapf(dap.ErrTimeout, "%s spent on %s, budget %s", spent, e.dataset, e.budget)
	}
	return nil
}

func (e *Evaluator) Pause() {
	if e.paused == 0 {
		e.spent += e.clock.Since(e.started)
	}
	e.paused++
}

func (e *Evaluator) Resume() {
	if e.paused == 0 {
		return
	}
	e.paused--
	if e.paused == 0 {
		e.started = e.clock.Now()
	}
}
