// Package backend connects keystache to the external signer process. The
// wire format is newline-delimited JSON arrays whose first element is a
// label, in the style of the nostr relay protocol.
package backend

import (
	"bytes"
	"fmt"

	"github.com/mailru/easyjson"
	jwriter "github.com/mailru/easyjson/jwriter"
	"github.com/nbd-wtf/go-nostr"
	"github.com/tidwall/gjson"

	"github.com/nbd-wtf/keystache"
)

type Envelope interface {
	Label() string
	UnmarshalJSON([]byte) error
	MarshalJSON() ([]byte, error)
	String() string
}

// ParseMessage turns one line from the backend into its envelope, or nil if
// the line is not something we recognize.
func ParseMessage(message []byte) Envelope {
	firstQuote := bytes.IndexByte(message, '"')
	if firstQuote == -1 {
		return nil
	}
	secondQuote := bytes.IndexByte(message[firstQuote+1:], '"')
	if secondQuote == -1 {
		return nil
	}
	label := string(message[firstQuote+1 : firstQuote+1+secondQuote])

	var v Envelope
	switch label {
	case "SIGN_EVENT_REQUEST":
		v = &SignEventRequestEnvelope{}
	case "PAY_INVOICE_REQUEST":
		x := PayInvoiceRequestEnvelope("")
		v = &x
	case "RESPOND_SIGN_EVENT":
		v = &RespondSignEventEnvelope{}
	case "RESPOND_PAY_INVOICE":
		v = &RespondPayInvoiceEnvelope{}
	case "GET_PUBLIC_KEY":
		v = &GetPublicKeyEnvelope{}
	case "REGISTER":
		v = &RegisterEnvelope{}
	case "LOGIN":
		v = &LoginEnvelope{}
	case "OK":
		v = &OKEnvelope{}
	default:
		return nil
	}

	if err := v.UnmarshalJSON(message); err != nil {
		return nil
	}
	return v
}

// SignEventRequestEnvelope carries an event some external application wants
// signed: ["SIGN_EVENT_REQUEST", <event>].
type SignEventRequestEnvelope struct {
	nostr.Event
}

func (SignEventRequestEnvelope) Label() string { return "SIGN_EVENT_REQUEST" }

func (v *SignEventRequestEnvelope) UnmarshalJSON(data []byte) error {
	r := gjson.ParseBytes(data)
	arr := r.Array()
	if len(arr) < 2 {
		return fmt.Errorf("failed to decode SIGN_EVENT_REQUEST envelope")
	}
	return easyjson.Unmarshal([]byte(arr[1].Raw), &v.Event)
}

func (v SignEventRequestEnvelope) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{}
	w.RawString(`["SIGN_EVENT_REQUEST",`)
	v.Event.MarshalEasyJSON(&w)
	w.RawString(`]`)
	return w.BuildBytes()
}

func (v SignEventRequestEnvelope) String() string {
	j, _ := v.MarshalJSON()
	return string(j)
}

// PayInvoiceRequestEnvelope carries a bolt11 invoice some external
// application wants paid: ["PAY_INVOICE_REQUEST", "<invoice>"].
type PayInvoiceRequestEnvelope string

func (PayInvoiceRequestEnvelope) Label() string { return "PAY_INVOICE_REQUEST" }

func (v *PayInvoiceRequestEnvelope) UnmarshalJSON(data []byte) error {
	r := gjson.ParseBytes(data)
	arr := r.Array()
	if len(arr) < 2 {
		return fmt.Errorf("failed to decode PAY_INVOICE_REQUEST envelope")
	}
	*v = PayInvoiceRequestEnvelope(arr[1].Str)
	return nil
}

func (v PayInvoiceRequestEnvelope) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{}
	w.RawString(`["PAY_INVOICE_REQUEST",`)
	w.String(string(v))
	w.RawString(`]`)
	return w.BuildBytes()
}

func (v PayInvoiceRequestEnvelope) String() string {
	j, _ := v.MarshalJSON()
	return string(j)
}

// RespondSignEventEnvelope reports a sign-event outcome back:
// ["RESPOND_SIGN_EVENT", "<event-id>", <approved>].
type RespondSignEventEnvelope struct {
	EventID  string
	Approved bool
}

func (RespondSignEventEnvelope) Label() string { return "RESPOND_SIGN_EVENT" }

func (v *RespondSignEventEnvelope) UnmarshalJSON(data []byte) error {
	r := gjson.ParseBytes(data)
	arr := r.Array()
	if len(arr) < 3 {
		return fmt.Errorf("failed to decode RESPOND_SIGN_EVENT envelope")
	}
	v.EventID = arr[1].Str
	v.Approved = arr[2].Bool()
	return nil
}

func (v RespondSignEventEnvelope) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{}
	w.RawString(`["RESPOND_SIGN_EVENT",`)
	w.String(v.EventID)
	w.RawString(`,`)
	w.Bool(v.Approved)
	w.RawString(`]`)
	return w.BuildBytes()
}

func (v RespondSignEventEnvelope) String() string {
	j, _ := v.MarshalJSON()
	return string(j)
}

// RespondPayInvoiceEnvelope reports a pay-invoice outcome back:
// ["RESPOND_PAY_INVOICE", "<invoice>", "<status>"].
type RespondPayInvoiceEnvelope struct {
	Invoice string
	Status  keystache.PaymentStatus
}

func (RespondPayInvoiceEnvelope) Label() string { return "RESPOND_PAY_INVOICE" }

func (v *RespondPayInvoiceEnvelope) UnmarshalJSON(data []byte) error {
	r := gjson.ParseBytes(data)
	arr := r.Array()
	if len(arr) < 3 {
		return fmt.Errorf("failed to decode RESPOND_PAY_INVOICE envelope")
	}
	v.Invoice = arr[1].Str
	status, err := keystache.ParsePaymentStatus(arr[2].Str)
	if err != nil {
		return fmt.Errorf("failed to decode RESPOND_PAY_INVOICE envelope: %w", err)
	}
	v.Status = status
	return nil
}

func (v RespondPayInvoiceEnvelope) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{}
	w.RawString(`["RESPOND_PAY_INVOICE",`)
	w.String(v.Invoice)
	w.RawString(`,`)
	w.String(v.Status.String())
	w.RawString(`]`)
	return w.BuildBytes()
}

func (v RespondPayInvoiceEnvelope) String() string {
	j, _ := v.MarshalJSON()
	return string(j)
}

// GetPublicKeyEnvelope asks for the active public key:
// ["GET_PUBLIC_KEY", "<request-id>"]. The answer comes as an OK envelope
// whose message is the hex public key.
type GetPublicKeyEnvelope struct {
	RequestID string
}

func (GetPublicKeyEnvelope) Label() string { return "GET_PUBLIC_KEY" }

func (v *GetPublicKeyEnvelope) UnmarshalJSON(data []byte) error {
	r := gjson.ParseBytes(data)
	arr := r.Array()
	if len(arr) < 2 {
		return fmt.Errorf("failed to decode GET_PUBLIC_KEY envelope")
	}
	v.RequestID = arr[1].Str
	return nil
}

func (v GetPublicKeyEnvelope) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{}
	w.RawString(`["GET_PUBLIC_KEY",`)
	w.String(v.RequestID)
	w.RawString(`]`)
	return w.BuildBytes()
}

func (v GetPublicKeyEnvelope) String() string {
	j, _ := v.MarshalJSON()
	return string(j)
}

// RegisterEnvelope stores a new keypair in the backend:
// ["REGISTER", "<request-id>", "<nsec>", "<npub>"].
type RegisterEnvelope struct {
	RequestID string
	Nsec      string
	Npub      string
}

func (RegisterEnvelope) Label() string { return "REGISTER" }

func (v *RegisterEnvelope) UnmarshalJSON(data []byte) error {
	r := gjson.ParseBytes(data)
	arr := r.Array()
	if len(arr) < 4 {
		return fmt.Errorf("failed to decode REGISTER envelope")
	}
	v.RequestID = arr[1].Str
	v.Nsec = arr[2].Str
	v.Npub = arr[3].Str
	return nil
}

func (v RegisterEnvelope) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{}
	w.RawString(`["REGISTER",`)
	w.String(v.RequestID)
	w.RawString(`,`)
	w.String(v.Nsec)
	w.RawString(`,`)
	w.String(v.Npub)
	w.RawString(`]`)
	return w.BuildBytes()
}

func (v RegisterEnvelope) String() string {
	j, _ := v.MarshalJSON()
	return string(j)
}

// LoginEnvelope asks the backend to unlock: ["LOGIN", "<request-id>"].
type LoginEnvelope struct {
	RequestID string
}

func (LoginEnvelope) Label() string { return "LOGIN" }

func (v *LoginEnvelope) UnmarshalJSON(data []byte) error {
	r := gjson.ParseBytes(data)
	arr := r.Array()
	if len(arr) < 2 {
		return fmt.Errorf("failed to decode LOGIN envelope")
	}
	v.RequestID = arr[1].Str
	return nil
}

func (v LoginEnvelope) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{}
	w.RawString(`["LOGIN",`)
	w.String(v.RequestID)
	w.RawString(`]`)
	return w.BuildBytes()
}

func (v LoginEnvelope) String() string {
	j, _ := v.MarshalJSON()
	return string(j)
}

// OKEnvelope is the backend's reply to a request we made:
// ["OK", "<request-id>", <ok>, "<message-or-result>"].
type OKEnvelope struct {
	RequestID string
	OK        bool
	Message   string
}

func (OKEnvelope) Label() string { return "OK" }

func (v *OKEnvelope) UnmarshalJSON(data []byte) error {
	r := gjson.ParseBytes(data)
	arr := r.Array()
	if len(arr) < 3 {
		return fmt.Errorf("failed to decode OK envelope")
	}
	v.RequestID = arr[1].Str
	v.OK = arr[2].Bool()
	if len(arr) > 3 {
		v.Message = arr[3].Str
	}
	return nil
}

func (v OKEnvelope) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{}
	w.RawString(`["OK",`)
	w.String(v.RequestID)
	w.RawString(`,`)
	w.Bool(v.OK)
	w.RawString(`,`)
	w.String(v.Message)
	w.RawString(`]`)
	return w.BuildBytes()
}

func (v OKEnvelope) String() string {
	j, _ := v.MarshalJSON()
	return string(j)
}
