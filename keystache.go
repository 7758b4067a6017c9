// Package keystache is the approval side of a Nostr signer: it receives
// "sign this event" and "pay this invoice" requests from an external signer
// backend, asks every registered handler for a decision and reports a single
// outcome back. Handlers are typically wired to some kind of user prompt and
// may block for as long as the user takes to answer.
package keystache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

// SignEventHandler decides whether the given event may be signed. Returning
// an error is the same as denying, except that it is logged.
type SignEventHandler func(context.Context, *nostr.Event) (bool, error)

// PayInvoiceHandler decides what happens to the given bolt11 invoice: it can
// pay it and report PaymentPaid, try and report PaymentFailed, or want
// nothing to do with it and report PaymentRejected.
type PayInvoiceHandler func(context.Context, string) (PaymentStatus, error)

// DefaultDecisionTimeout is how long a request may stay unresolved before it
// is denied. A user that walks away from their machine should not leave the
// requesting application hanging forever.
const DefaultDecisionTimeout = 5 * time.Minute

type Keystache struct {
	backend Backend

	signEvents  *broker[*nostr.Event, bool]
	payInvoices *broker[string, PaymentStatus]

	startOnce sync.Once
	closeOnce sync.Once
}

type Option func(*options)

type options struct {
	decisionTimeout time.Duration
}

// WithDecisionTimeout overrides DefaultDecisionTimeout. Zero disables the
// deadline entirely.
func WithDecisionTimeout(d time.Duration) Option {
	return func(o *options) {
		o.decisionTimeout = d
	}
}

// New creates a Keystache on top of the given backend. Call Start to begin
// serving requests.
func New(backend Backend, opts ...Option) *Keystache {
	o := options{decisionTimeout: DefaultDecisionTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	k := &Keystache{backend: backend}
	k.signEvents = newBroker(resolveSignEvent, k.dispatchSignEvent, false, o.decisionTimeout)
	k.payInvoices = newBroker(resolvePayInvoice, k.dispatchPayInvoice, PaymentRejected, o.decisionTimeout)
	return k
}

// Start begins listening for inbound requests. It returns immediately.
func (k *Keystache) Start() {
	k.startOnce.Do(func() {
		k.signEvents.listen(k.backend.SignEventRequests())
		k.payInvoices.listen(k.backend.PayInvoiceRequests())
	})
}

// Close shuts down the backend connection and waits until every in-flight
// request has dispatched its outcome.
func (k *Keystache) Close() error {
	var err error
	k.closeOnce.Do(func() {
		err = k.backend.Close()
		k.signEvents.wait()
		k.payInvoices.wait()
	})
	return err
}

// HandleSignEventRequests registers h to be consulted on every sign-event
// request from now on and returns a function that unregisters it again.
// When multiple handlers are registered they are consulted one at a time in
// no particular order, see resolveSignEvent.
func (k *Keystache) HandleSignEventRequests(h SignEventHandler) func() {
	return k.signEvents.register(handler[*nostr.Event, bool](h))
}

// HandlePayInvoiceRequests registers h to be consulted on every pay-invoice
// request from now on and returns a function that unregisters it again.
func (k *Keystache) HandlePayInvoiceRequests(h PayInvoiceHandler) func() {
	return k.payInvoices.register(handler[string, PaymentStatus](h))
}

// GetPublicKey returns the hex public key of the active keypair. An empty
// string with a nil error means no keypair is set up, i.e. not logged in.
func (k *Keystache) GetPublicKey(ctx context.Context) (string, error) {
	return k.backend.GetPublicKey(ctx)
}

// Register decodes and sanity-checks an nsec, derives the matching npub and
// hands both to the backend for storage. The secret key is never kept here.
func (k *Keystache) Register(ctx context.Context, nsec string) error {
	prefix, value, err := nip19.Decode(nsec)
	if err != nil {
		return fmt.Errorf("invalid nsec: %w", err)
	}
	if prefix != "nsec" {
		return fmt.Errorf("expected an nsec, got '%s'", prefix)
	}

	pubkey, err := nostr.GetPublicKey(value.(string))
	if err != nil {
		return fmt.Errorf("failed to derive public key: %w", err)
	}
	npub, err := nip19.EncodePublicKey(pubkey)
	if err != nil {
		return fmt.Errorf("failed to encode npub: %w", err)
	}

	return k.backend.Register(ctx, nsec, npub)
}

// Login asks the backend to unlock itself.
func (k *Keystache) Login(ctx context.Context) error {
	return k.backend.Login(ctx)
}

func (k *Keystache) dispatchSignEvent(evt *nostr.Event, approved bool) {
	if err := k.backend.RespondToSignEventRequest(context.Background(), evt.ID, approved); err != nil {
		InfoLogger.Printf("failed to respond to sign event request '%s': %v", evt.ID, err)
	}
}

func (k *Keystache) dispatchPayInvoice(invoice string, status PaymentStatus) {
	if err := k.backend.RespondToPayInvoiceRequest(context.Background(), invoice, status); err != nil {
		InfoLogger.Printf("failed to respond to pay invoice request: %v", err)
	}
}
