package backend

import (
	"bufio"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbd-wtf/keystache"
)

// fakeSigner is the other end of the socket: a scriptable stand-in for the
// signer backend process.
type fakeSigner struct {
	listener net.Listener
	conns    chan net.Conn
}

func startFakeSigner(t *testing.T) (*fakeSigner, string) {
	t.Helper()

	// unix socket paths are length-limited, keep it short
	dir, err := os.MkdirTemp("", "keystache")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, "backend.sock")
	listener, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	s := &fakeSigner{listener: listener, conns: make(chan net.Conn, 1)}
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		s.conns <- conn
	}()

	return s, path
}

func (s *fakeSigner) conn(t *testing.T) net.Conn {
	t.Helper()
	select {
	case conn := <-s.conns:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("client never connected")
		return nil
	}
}

func readEnvelope(t *testing.T, reader *bufio.Reader) Envelope {
	t.Helper()
	line, err := reader.ReadBytes('\n')
	require.NoError(t, err)
	envelope := ParseMessage(line)
	require.NotNil(t, envelope, "server got an unparseable line: %s", line)
	return envelope
}

func writeLine(t *testing.T, conn net.Conn, line string) {
	t.Helper()
	_, err := conn.Write([]byte(line + "\n"))
	require.NoError(t, err)
}

func TestClientGetPublicKey(t *testing.T) {
	signer, path := startFakeSigner(t)

	client, err := Dial(context.Background(), path)
	require.NoError(t, err)
	defer client.Close()

	conn := signer.conn(t)
	reader := bufio.NewReader(conn)

	go func() {
		envelope := readEnvelope(t, reader)
		env := envelope.(*GetPublicKeyEnvelope)
		writeLine(t, conn, OKEnvelope{
			RequestID: env.RequestID,
			OK:        true,
			Message:   "79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798",
		}.String())
	}()

	pk, err := client.GetPublicKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798", pk)
}

func TestClientGetPublicKeyWithNoKeypair(t *testing.T) {
	signer, path := startFakeSigner(t)

	client, err := Dial(context.Background(), path)
	require.NoError(t, err)
	defer client.Close()

	conn := signer.conn(t)
	reader := bufio.NewReader(conn)

	go func() {
		envelope := readEnvelope(t, reader)
		env := envelope.(*GetPublicKeyEnvelope)
		writeLine(t, conn, OKEnvelope{RequestID: env.RequestID, OK: false, Message: "no keypair"}.String())
	}()

	pk, err := client.GetPublicKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "", pk, "a keyless backend reads as not logged in, not as an error")
}

func TestClientSignEventRequestRoundTrip(t *testing.T) {
	signer, path := startFakeSigner(t)

	client, err := Dial(context.Background(), path)
	require.NoError(t, err)
	defer client.Close()

	conn := signer.conn(t)
	reader := bufio.NewReader(conn)

	// the backend omits the id; the client is expected to fill it in
	writeLine(t, conn, `["SIGN_EVENT_REQUEST",{"pubkey":"3bf0c63fcb93463407af97a5e5ee64fa883d107ef9e558472c4eb9aaaefa459d","created_at":1644271588,"kind":1,"tags":[],"content":"hello","sig":""}]`)

	var evt *nostr.Event
	select {
	case evt = <-client.SignEventRequests():
	case <-time.After(2 * time.Second):
		t.Fatal("sign event request never arrived")
	}

	expected := nostr.Event{
		PubKey:    "3bf0c63fcb93463407af97a5e5ee64fa883d107ef9e558472c4eb9aaaefa459d",
		CreatedAt: nostr.Timestamp(1644271588),
		Kind:      nostr.KindTextNote,
		Tags:      nostr.Tags{},
		Content:   "hello",
	}
	assert.Equal(t, expected.GetID(), evt.ID)
	assert.Equal(t, "hello", evt.Content)

	require.NoError(t, client.RespondToSignEventRequest(context.Background(), evt.ID, true))

	envelope := readEnvelope(t, reader)
	response, ok := envelope.(*RespondSignEventEnvelope)
	require.True(t, ok)
	assert.Equal(t, evt.ID, response.EventID)
	assert.True(t, response.Approved)
}

func TestClientPayInvoiceRequestRoundTrip(t *testing.T) {
	signer, path := startFakeSigner(t)

	client, err := Dial(context.Background(), path)
	require.NoError(t, err)
	defer client.Close()

	conn := signer.conn(t)
	reader := bufio.NewReader(conn)

	writeLine(t, conn, `["PAY_INVOICE_REQUEST","lnbc20m1pvjluezpp5qqqsyq"]`)

	var invoice string
	select {
	case invoice = <-client.PayInvoiceRequests():
	case <-time.After(2 * time.Second):
		t.Fatal("pay invoice request never arrived")
	}
	assert.Equal(t, "lnbc20m1pvjluezpp5qqqsyq", invoice)

	require.NoError(t, client.RespondToPayInvoiceRequest(context.Background(), invoice, keystache.PaymentFailed))

	envelope := readEnvelope(t, reader)
	response, ok := envelope.(*RespondPayInvoiceEnvelope)
	require.True(t, ok)
	assert.Equal(t, invoice, response.Invoice)
	assert.Equal(t, keystache.PaymentFailed, response.Status)
}

func TestClientRegisterRefused(t *testing.T) {
	signer, path := startFakeSigner(t)

	client, err := Dial(context.Background(), path)
	require.NoError(t, err)
	defer client.Close()

	conn := signer.conn(t)
	reader := bufio.NewReader(conn)

	go func() {
		envelope := readEnvelope(t, reader)
		env := envelope.(*RegisterEnvelope)
		writeLine(t, conn, OKEnvelope{RequestID: env.RequestID, OK: false, Message: "database unavailable"}.String())
	}()

	err = client.Register(context.Background(), "nsec1...", "npub1...")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database unavailable")
}

func TestClientChannelsCloseWhenBackendGoesAway(t *testing.T) {
	signer, path := startFakeSigner(t)

	client, err := Dial(context.Background(), path)
	require.NoError(t, err)

	conn := signer.conn(t)
	conn.Close()

	select {
	case _, open := <-client.SignEventRequests():
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("sign event channel never closed")
	}
	select {
	case _, open := <-client.PayInvoiceRequests():
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("pay invoice channel never closed")
	}

	require.NoError(t, client.Close())
}

func TestClientCallTimesOut(t *testing.T) {
	signer, path := startFakeSigner(t)

	client, err := Dial(context.Background(), path)
	require.NoError(t, err)
	defer client.Close()

	signer.conn(t) // connected, but never answers

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = client.GetPublicKey(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
