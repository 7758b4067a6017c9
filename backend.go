package keystache

import (
	"context"

	"github.com/nbd-wtf/go-nostr"
)

// Backend is the external signer process. It holds the keys, does the actual
// signing and talks to relays; we only ever ask it questions and answer the
// questions it asks us. See the backend package for implementations.
type Backend interface {
	// SignEventRequests emits events that some external application wants
	// signed. The channel is closed when the backend goes away.
	SignEventRequests() <-chan *nostr.Event

	// PayInvoiceRequests emits bolt11 invoice strings that some external
	// application wants paid. The channel is closed when the backend goes away.
	PayInvoiceRequests() <-chan string

	// GetPublicKey returns the hex public key of the active keypair, or an
	// empty string if no keypair is set up yet.
	GetPublicKey(ctx context.Context) (string, error)

	// RespondToSignEventRequest reports the outcome for the sign-event request
	// with the given event id.
	RespondToSignEventRequest(ctx context.Context, eventID string, approved bool) error

	// RespondToPayInvoiceRequest reports the outcome for the pay-invoice
	// request with the given invoice string.
	RespondToPayInvoiceRequest(ctx context.Context, invoice string, status PaymentStatus) error

	// Register stores a new keypair in the backend.
	Register(ctx context.Context, nsec string, npub string) error

	// Login unlocks the backend so it starts serving requests.
	Login(ctx context.Context) error

	Close() error
}
