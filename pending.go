package keystache

import (
	"context"
	"errors"
	"sync"
)

// ErrDecisionCanceled is returned by Pending.Wait after Cancel, e.g. when the
// user dismissed the prompt without answering.
var ErrDecisionCanceled = errors.New("decision canceled")

// Pending is a decision that will be made later. A handler creates one, hands
// Resolve and Cancel to whatever prompt it shows the user, and returns the
// result of Wait. The first of Resolve/Cancel wins; everything after that is
// a no-op.
type Pending[T any] struct {
	once   sync.Once
	done   chan struct{}
	result T
	err    error
}

func NewPending[T any]() *Pending[T] {
	return &Pending[T]{done: make(chan struct{})}
}

func (p *Pending[T]) Resolve(result T) {
	p.once.Do(func() {
		p.result = result
		close(p.done)
	})
}

func (p *Pending[T]) Cancel() {
	p.once.Do(func() {
		p.err = ErrDecisionCanceled
		close(p.done)
	})
}

// Wait blocks until Resolve, Cancel or context expiry, whichever comes first.
func (p *Pending[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.result, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
