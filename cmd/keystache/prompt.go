package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/nbd-wtf/go-nostr"

	"github.com/nbd-wtf/keystache"
)

// prompter answers broker requests by asking on the terminal. One question at
// a time: concurrent requests queue up on the mutex.
type prompter struct {
	mutex sync.Mutex
	in    *bufio.Reader
	out   io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

func (p *prompter) signEvent(ctx context.Context, evt *nostr.Event) (bool, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	log.Info("sign event request", "id", evt.ID, "kind", evt.Kind)

	pretty, err := json.MarshalIndent(evt, "", "  ")
	if err != nil {
		return false, err
	}
	fmt.Fprintf(p.out, "\n%s\n", pretty)

	answer, err := p.ask(ctx, "sign this event? [y/N] ")
	if err != nil {
		return false, err
	}
	return answer == "y" || answer == "yes", nil
}

func (p *prompter) payInvoice(ctx context.Context, invoice string) (keystache.PaymentStatus, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	log.Info("pay invoice request")
	fmt.Fprintf(p.out, "\n%s\n", invoice)
	fmt.Fprintln(p.out, "pay this invoice with your own wallet, then report what happened.")

	answer, err := p.ask(ctx, "paid, failed or rejected? [p/f/R] ")
	if err != nil {
		return keystache.PaymentRejected, err
	}

	switch answer {
	case "p", "paid":
		return keystache.PaymentPaid, nil
	case "f", "failed":
		return keystache.PaymentFailed, nil
	default:
		return keystache.PaymentRejected, nil
	}
}

// ask reads one answer from the terminal. The read itself cannot be
// interrupted, but an answer arriving after ctx expired is discarded.
func (p *prompter) ask(ctx context.Context, question string) (string, error) {
	fmt.Fprint(p.out, question)

	line, err := p.in.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read answer: %w", err)
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	return strings.ToLower(strings.TrimSpace(line)), nil
}
