package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"

	"github.com/nbd-wtf/keystache"
	"github.com/nbd-wtf/keystache/backend"
)

// a policy handler that needs no user at all: approve plain notes from a
// single trusted author, stay silent about everything else
func main() {
	bk := backend.NewInMemory()
	ks := keystache.New(bk, keystache.WithDecisionTimeout(time.Minute))

	_, trusted, err := nip19.Decode("npub1sn0wdenkukak0d9dfczzeacvhkrgz92ak56egt7vdgzn8pv2wfqqhrjdv9")
	if err != nil {
		panic(err)
	}

	unregister := ks.HandleSignEventRequests(func(_ context.Context, evt *nostr.Event) (bool, error) {
		return evt.Kind == nostr.KindTextNote && evt.PubKey == trusted.(string), nil
	})
	defer unregister()

	ks.Start()

	evt := &nostr.Event{
		PubKey:    trusted.(string),
		CreatedAt: nostr.Now(),
		Kind:      nostr.KindTextNote,
		Tags:      nostr.Tags{},
		Content:   "good morning",
	}
	bk.EmitSignEventRequest(evt)

	for len(bk.SignEventResponses()) == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	for _, response := range bk.SignEventResponses() {
		fmt.Printf("event %s approved: %v\n", response.EventID, response.Approved)
	}

	if err := ks.Close(); err != nil {
		panic(err)
	}
}
