// Package mutation runs a state-changing call in the background and exposes its
// progress as observable state, so callers can render "loading" without blocking.
package mutation

import (
	"context"
	"fmt"
	"sync"
)

// Status is the observable lifecycle of the most recent call.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Func is the wrapped operation.
type Func[In, Out any] func(ctx context.Context, in In) (Out, error)

// Mutation tracks the latest invocation of Func. A newer Mutate supersedes an
// older one; results of superseded calls are discarded.
type Mutation[In, Out any] struct {
	fn Func[In, Out]

	mu     sync.Mutex
	seq    uint64
	status Status
	data   Out
	err    error
	done   chan struct{}

	wg sync.WaitGroup
}

// New wraps fn.
func New[In, Out any](fn Func[In, Out]) *Mutation[In, Out] {
	if fn == nil {
		panic("mutation: func is required")
	}
	return &Mutation[In, Out]{fn: fn}
}

// Mutate starts fn in the background and returns a channel closed once the call
// settles. The call keeps the values of ctx but not its cancellation.
func (m *Mutation[In, Out]) Mutate(ctx context.Context, in In) <-chan struct{} {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithoutCancel(ctx)

	m.mu.Lock()
	m.seq++
	seq := m.seq
	var zero Out
	m.status = StatusLoading
	m.data = zero
	m.err = nil
	done := make(chan struct{})
	m.done = done
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(done)

		out, err := m.call(ctx, in)

		m.mu.Lock()
		defer m.mu.Unlock()
		if seq != m.seq {
			return
		}
		if err != nil {
			m.status = StatusError
			m.err = err
			return
		}
		m.status = StatusSuccess
		m.data = out
	}()
	return done
}

func (m *Mutation[In, Out]) call(ctx context.Context, in In) (out Out, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mutation: panic: %v", r)
		}
	}()
	return m.fn(ctx, in)
}

// Status returns the state of the latest call.
func (m *Mutation[In, Out]) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// IsLoading reports whether the latest call is still in flight.
func (m *Mutation[In, Out]) IsLoading() bool {
	return m.Status() == StatusLoading
}

// Err returns the error of the latest call, if it failed.
func (m *Mutation[In, Out]) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Data returns the result of the latest call, if it succeeded.
func (m *Mutation[In, Out]) Data() Out {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data
}

// Wait blocks until the latest call settles or ctx is done, and returns the call's error.
func (m *Mutation[In, Out]) Wait(ctx context.Context) error {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return m.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset returns the mutation to idle and drops any in-flight result.
func (m *Mutation[In, Out]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	var zero Out
	m.seq++
	m.status = StatusIdle
	m.data = zero
	m.err = nil
	m.done = nil
}

// Drain blocks until every background call has returned.
func (m *Mutation[In, Out]) Drain() {
	m.wg.Wait()
}
