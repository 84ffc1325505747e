package gateway

import (
	"context"
	"fmt"
	"sync"

	"trading-relay/src/codec"
	"trading-relay/src/models"
)

type handler func(req codec.Request) (codec.Frame, error)

// fakeLink answers requests from per-kind handlers and records every call.
type fakeLink struct {
	mu         sync.Mutex
	authorized bool
	connected  bool
	handlers   map[string]handler
	requests   []codec.Request
	switched   []models.Credential
	subs       map[string]map[string]bool // symbol -> owners
	released   []string
}

func newFakeLink(authorized bool) *fakeLink {
	return &fakeLink{
		authorized: authorized,
		connected:  authorized,
		handlers:   make(map[string]handler),
		subs:       make(map[string]map[string]bool),
	}
}

func (f *fakeLink) on(kind string, h handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[kind] = h
}

func (f *fakeLink) Request(_ context.Context, req codec.Request) (codec.Frame, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	h := f.handlers[req.Kind()]
	f.mu.Unlock()
	if h == nil {
		return codec.Frame{}, fmt.Errorf("no handler for %s", req.Kind())
	}
	return h(req)
}

func (f *fakeLink) State() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case f.authorized:
		return "authorized"
	case f.connected:
		return "connected"
	}
	return "disconnected"
}

func (f *fakeLink) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeLink) IsAuthorized() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authorized
}

func (f *fakeLink) SwitchCredential(cred models.Credential) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.switched = append(f.switched, cred)
	f.authorized = false
}

func (f *fakeLink) Subscribe(owner, symbol string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs[symbol] == nil {
		f.subs[symbol] = make(map[string]bool)
	}
	f.subs[symbol][owner] = true
}

func (f *fakeLink) Unsubscribe(owner, symbol string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs[symbol], owner)
	if len(f.subs[symbol]) == 0 {
		delete(f.subs, symbol)
	}
}

func (f *fakeLink) ReleaseOwner(owner string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, owner)
	for sym, owners := range f.subs {
		delete(owners, owner)
		if len(owners) == 0 {
			delete(f.subs, sym)
		}
	}
}

// -----------------------------------------------------------------------------

func (f *fakeLink) setAuthorized(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authorized, f.connected = v, v
}

func (f *fakeLink) requestsOf(kind string) []codec.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []codec.Request
	for _, r := range f.requests {
		if r.Kind() == kind {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeLink) subscribed(owner, symbol string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[symbol][owner]
}

func (f *fakeLink) switches() []models.Credential {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Credential(nil), f.switched...)
}

// -----------------------------------------------------------------------------

type capturePublisher struct {
	mu     sync.Mutex
	events []models.MEvent
}

func (c *capturePublisher) Publish(evt models.MEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

func (c *capturePublisher) count(eventType string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

// reply builds a successful frame for body.
func reply(body codec.Message) codec.Frame {
	return codec.Frame{MsgType: body.Kind(), ReqID: 1, Body: body}
}

// tradeHandlers wires a catalogue with the given stake limits, a proposal
// and a fill for contractID.
func tradeHandlers(f *fakeLink, min, max float64, contractID int64) {
	f.on("contracts_for", func(codec.Request) (codec.Frame, error) {
		return reply(&codec.ContractsFor{Available: []codec.ContractOffer{
			{ContractType: "PUT", MinContractMeasure: 0.35, MaxContractMeasure: 50},
			{ContractType: "CALL", MinContractMeasure: codec.Number(min), MaxContractMeasure: codec.Number(max)},
		}}), nil
	})
	f.on("proposal", func(req codec.Request) (codec.Frame, error) {
		p := req.(*codec.ProposalRequest)
		return reply(&codec.Proposal{ID: "prop-1", AskPrice: codec.Number(p.Amount), Spot: 1234.5}), nil
	})
	f.on("buy", func(req codec.Request) (codec.Frame, error) {
		b := req.(*codec.BuyRequest)
		if b.Buy != "prop-1" {
			return codec.Frame{}, fmt.Errorf("unexpected proposal %s", b.Buy)
		}
		return reply(&codec.Buy{ContractID: contractID, BuyPrice: 1, StartTime: 1700000000, LongCode: "Win payout"}), nil
	})
}
