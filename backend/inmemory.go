package backend

import (
	"context"
	"sync"

	"github.com/nbd-wtf/go-nostr"

	"github.com/nbd-wtf/keystache"
)

var _ keystache.Backend = (*InMemory)(nil)

type SignEventResponse struct {
	EventID  string
	Approved bool
}

type PayInvoiceResponse struct {
	Invoice string
	Status  keystache.PaymentStatus
}

// InMemory is a Backend that lives entirely in process memory: tests and
// examples push requests in with the Emit methods and inspect what was
// responded afterwards.
type InMemory struct {
	// PublicKey is what GetPublicKey returns. Leave empty to simulate a
	// backend with no keypair.
	PublicKey string

	// RespondErr, when set, is returned by both respond calls.
	RespondErr error

	signEvents  chan *nostr.Event
	payInvoices chan string

	mutex               sync.Mutex
	signEventResponses  []SignEventResponse
	payInvoiceResponses []PayInvoiceResponse
	registered          []RegisterEnvelope
	logins              int

	closeOnce sync.Once
}

func NewInMemory() *InMemory {
	return &InMemory{
		signEvents:  make(chan *nostr.Event),
		payInvoices: make(chan string),
	}
}

// EmitSignEventRequest delivers evt as an inbound sign-event request. It
// blocks until the listener picks it up.
func (m *InMemory) EmitSignEventRequest(evt *nostr.Event) {
	if evt.ID == "" {
		evt.ID = evt.GetID()
	}
	m.signEvents <- evt
}

// EmitPayInvoiceRequest delivers invoice as an inbound pay-invoice request.
func (m *InMemory) EmitPayInvoiceRequest(invoice string) {
	m.payInvoices <- invoice
}

func (m *InMemory) SignEventRequests() <-chan *nostr.Event {
	return m.signEvents
}

func (m *InMemory) PayInvoiceRequests() <-chan string {
	return m.payInvoices
}

func (m *InMemory) GetPublicKey(ctx context.Context) (string, error) {
	return m.PublicKey, nil
}

func (m *InMemory) RespondToSignEventRequest(ctx context.Context, eventID string, approved bool) error {
	if m.RespondErr != nil {
		return m.RespondErr
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.signEventResponses = append(m.signEventResponses, SignEventResponse{EventID: eventID, Approved: approved})
	return nil
}

func (m *InMemory) RespondToPayInvoiceRequest(ctx context.Context, invoice string, status keystache.PaymentStatus) error {
	if m.RespondErr != nil {
		return m.RespondErr
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.payInvoiceResponses = append(m.payInvoiceResponses, PayInvoiceResponse{Invoice: invoice, Status: status})
	return nil
}

func (m *InMemory) Register(ctx context.Context, nsec string, npub string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.registered = append(m.registered, RegisterEnvelope{Nsec: nsec, Npub: npub})
	return nil
}

func (m *InMemory) Login(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.logins++
	return nil
}

func (m *InMemory) Close() error {
	m.closeOnce.Do(func() {
		close(m.signEvents)
		close(m.payInvoices)
	})
	return nil
}

// SignEventResponses returns a copy of every sign-event response so far.
func (m *InMemory) SignEventResponses() []SignEventResponse {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	out := make([]SignEventResponse, len(m.signEventResponses))
	copy(out, m.signEventResponses)
	return out
}

// PayInvoiceResponses returns a copy of every pay-invoice response so far.
func (m *InMemory) PayInvoiceResponses() []PayInvoiceResponse {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	out := make([]PayInvoiceResponse, len(m.payInvoiceResponses))
	copy(out, m.payInvoiceResponses)
	return out
}

// Registered returns a copy of every keypair registration so far.
func (m *InMemory) Registered() []RegisterEnvelope {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	out := make([]RegisterEnvelope, len(m.registered))
	copy(out, m.registered)
	return out
}

// Logins returns how many times Login was called.
func (m *InMemory) Logins() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.logins
}
