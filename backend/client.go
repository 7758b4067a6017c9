package backend

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/nbd-wtf/keystache"
)

var _ keystache.Backend = (*Client)(nil)

// maximum size of a single line from the backend; events are small, this is
// generous
const maxMessageSize = 1 << 20

// Client talks to the signer backend over its unix socket.
type Client struct {
	Path string

	conn       net.Conn
	writeMutex sync.Mutex

	signEvents  chan *nostr.Event
	payInvoices chan string

	okCallbacks *xsync.MapOf[string, func(ok bool, message string)]

	closeOnce sync.Once
}

// Dial connects to the signer backend socket at path. If the context carries
// no deadline a 7-second one is imposed. Once connected, context expiration
// has no effect: call Close to tear the connection down.
func Dial(ctx context.Context, path string) (*Client, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 7*time.Second)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("error opening socket to '%s': %w", path, err)
	}

	c := &Client{
		Path:        path,
		conn:        conn,
		signEvents:  make(chan *nostr.Event),
		payInvoices: make(chan string),
		okCallbacks: xsync.NewMapOf[string, func(ok bool, message string)](),
	}

	go c.readLoop()

	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.signEvents)
	defer close(c.payInvoices)

	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)

	for scanner.Scan() {
		message := scanner.Bytes()
		keystache.DebugLogger.Printf("{%s} %s", c.Path, message)

		envelope := ParseMessage(message)
		if envelope == nil {
			continue
		}

		switch env := envelope.(type) {
		case *SignEventRequestEnvelope:
			evt := env.Event
			if evt.ID == "" {
				evt.ID = evt.GetID()
			}
			c.signEvents <- &evt
		case *PayInvoiceRequestEnvelope:
			c.payInvoices <- string(*env)
		case *OKEnvelope:
			if okCallback, exist := c.okCallbacks.Load(env.RequestID); exist {
				okCallback(env.OK, env.Message)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		keystache.InfoLogger.Printf("backend socket '%s' read error: %v", c.Path, err)
	}
}

func (c *Client) SignEventRequests() <-chan *nostr.Event {
	return c.signEvents
}

func (c *Client) PayInvoiceRequests() <-chan string {
	return c.payInvoices
}

func (c *Client) write(env Envelope) error {
	data, err := env.MarshalJSON()
	if err != nil {
		return err
	}

	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()
	if _, err := c.conn.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write to backend socket: %w", err)
	}
	return nil
}

type okReply struct {
	ok      bool
	message string
}

// call sends env and waits for the OK envelope carrying requestID.
func (c *Client) call(ctx context.Context, requestID string, env Envelope) (okReply, error) {
	reply := make(chan okReply, 1)
	c.okCallbacks.Store(requestID, func(ok bool, message string) {
		reply <- okReply{ok: ok, message: message}
	})
	defer c.okCallbacks.Delete(requestID)

	if err := c.write(env); err != nil {
		return okReply{}, err
	}

	select {
	case r := <-reply:
		return r, nil
	case <-ctx.Done():
		return okReply{}, ctx.Err()
	}
}

func (c *Client) GetPublicKey(ctx context.Context) (string, error) {
	requestID := newRequestID()
	r, err := c.call(ctx, requestID, &GetPublicKeyEnvelope{RequestID: requestID})
	if err != nil {
		return "", err
	}
	if !r.ok {
		// no keypair set up yet
		keystache.DebugLogger.Printf("get_public_key: %s", r.message)
		return "", nil
	}
	return r.message, nil
}

func (c *Client) RespondToSignEventRequest(ctx context.Context, eventID string, approved bool) error {
	return c.write(&RespondSignEventEnvelope{EventID: eventID, Approved: approved})
}

func (c *Client) RespondToPayInvoiceRequest(ctx context.Context, invoice string, status keystache.PaymentStatus) error {
	return c.write(&RespondPayInvoiceEnvelope{Invoice: invoice, Status: status})
}

func (c *Client) Register(ctx context.Context, nsec string, npub string) error {
	requestID := newRequestID()
	r, err := c.call(ctx, requestID, &RegisterEnvelope{RequestID: requestID, Nsec: nsec, Npub: npub})
	if err != nil {
		return err
	}
	if !r.ok {
		return fmt.Errorf("registration refused: %s", r.message)
	}
	return nil
}

func (c *Client) Login(ctx context.Context) error {
	requestID := newRequestID()
	r, err := c.call(ctx, requestID, &LoginEnvelope{RequestID: requestID})
	if err != nil {
		return err
	}
	if !r.ok {
		return fmt.Errorf("login refused: %s", r.message)
	}
	return nil
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

func newRequestID() string {
	random := make([]byte, 7)
	rand.Read(random)
	return hex.EncodeToString(random)
}
