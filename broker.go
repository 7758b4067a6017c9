package keystache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/puzpuzpuz/xsync/v3"
)

// handler is a registered decision function for one request kind.
type handler[Req, Out any] func(context.Context, Req) (Out, error)

// broker accepts inbound requests of one kind, consults every registered
// handler and sends exactly one outcome back through dispatch.
type broker[Req, Out any] struct {
	handlers *xsync.MapOf[uint64, handler[Req, Out]]
	serial   atomic.Uint64

	resolve  func(context.Context, Req, []handler[Req, Out]) Out
	dispatch func(Req, Out)
	fallback Out
	timeout  time.Duration

	wg sync.WaitGroup
}

func newBroker[Req, Out any](
	resolve func(context.Context, Req, []handler[Req, Out]) Out,
	dispatch func(Req, Out),
	fallback Out,
	timeout time.Duration,
) *broker[Req, Out] {
	return &broker[Req, Out]{
		handlers: xsync.NewMapOf[uint64, handler[Req, Out]](),
		resolve:  resolve,
		dispatch: dispatch,
		fallback: fallback,
		timeout:  timeout,
	}
}

// register adds h to the registry and returns a function that removes it
// again. The returned function can be called any number of times; calls after
// the first are no-ops. Handles are never reused within a process.
func (b *broker[Req, Out]) register(h handler[Req, Out]) func() {
	id := b.serial.Add(1)
	b.handlers.Store(id, h)
	return func() {
		b.handlers.Delete(id)
	}
}

// listen consumes requests from in until it is closed. Each request is
// resolved against the set of handlers registered at the moment it arrived,
// so handlers registered later never see it. Resolution runs on its own
// goroutine: a handler that is waiting on the user must not hold up requests
// arriving behind it.
func (b *broker[Req, Out]) listen(in <-chan Req) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for req := range in {
			snapshot := b.snapshot()
			b.wg.Add(1)
			go func(req Req) {
				defer b.wg.Done()
				b.process(req, snapshot)
			}(req)
		}
	}()
}

// snapshot returns the currently registered handlers in no particular order.
func (b *broker[Req, Out]) snapshot() []handler[Req, Out] {
	snapshot := make([]handler[Req, Out], 0, b.handlers.Size())
	b.handlers.Range(func(_ uint64, h handler[Req, Out]) bool {
		snapshot = append(snapshot, h)
		return true
	})
	return snapshot
}

func (b *broker[Req, Out]) process(req Req, handlers []handler[Req, Out]) {
	if b.timeout == 0 {
		b.dispatch(req, b.resolve(context.Background(), req, handlers))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	resolved := make(chan Out, 1)
	go func() {
		resolved <- b.resolve(ctx, req, handlers)
	}()

	// a handler that never returns, not even when its context is canceled,
	// must not leave the request without an outcome: when the deadline
	// fires we answer with the default denial and forget about it
	select {
	case out := <-resolved:
		b.dispatch(req, out)
	case <-ctx.Done():
		b.dispatch(req, b.fallback)
	}
}

// wait blocks until the inbound channel is closed and every in-flight
// resolution has dispatched its outcome.
func (b *broker[Req, Out]) wait() {
	b.wg.Wait()
}

// resolveSignEvent is a short-circuiting OR over handler results: the first
// handler to approve settles the request and no further handlers are called.
// A handler that fails counts as a denial from that handler only, the others
// still get their say. With no handlers registered (or none approving) the
// request is denied.
func resolveSignEvent(ctx context.Context, evt *nostr.Event, handlers []handler[*nostr.Event, bool]) bool {
	for _, h := range handlers {
		if ctx.Err() != nil {
			DebugLogger.Printf("gave up resolving sign event request '%s': %v", evt.ID, ctx.Err())
			return false
		}

		approved, err := h(ctx, evt)
		if err != nil {
			DebugLogger.Printf("sign event handler failed on '%s': %v", evt.ID, err)
			continue
		}
		if approved {
			return true
		}
	}
	return false
}

// resolvePayInvoice settles a pay-invoice request with precedence
// paid > failed > rejected. A "paid" result short-circuits. A "failed" result
// is remembered but iteration continues, since a later handler may still pay.
// A "rejected" result (or a handler error) never vetoes anything: it just
// means that handler had no money for us.
func resolvePayInvoice(ctx context.Context, invoice string, handlers []handler[string, PaymentStatus]) PaymentStatus {
	final := PaymentRejected

	for _, h := range handlers {
		if ctx.Err() != nil {
			DebugLogger.Printf("gave up resolving pay invoice request: %v", ctx.Err())
			return final
		}

		status, err := h(ctx, invoice)
		if err != nil {
			DebugLogger.Printf("pay invoice handler failed: %v", err)
			continue
		}

		switch status {
		case PaymentPaid:
			return PaymentPaid
		case PaymentFailed:
			final = PaymentFailed
		}
	}

	return final
}
