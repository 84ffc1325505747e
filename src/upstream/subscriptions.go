package upstream

import (
	"sort"
	"sync"
)

// SystemOwner holds the symbols configured at startup.
const SystemOwner = "system"

// Released describes a symbol whose last owner went away.
type Released struct {
	Symbol     string
	UpstreamID string
}

// -----------------------------------------------------------------------------

// Subscriptions maps each symbol to the set of owners interested in it and
// to the upstream subscription id currently streaming it. A symbol is
// subscribed upstream once, no matter how many owners want it.
type Subscriptions struct {
	mu          sync.Mutex
	owners      map[string]map[string]struct{}
	upstreamIDs map[string]string
}

func NewSubscriptions() *Subscriptions {
	return &Subscriptions{
		owners:      make(map[string]map[string]struct{}),
		upstreamIDs: make(map[string]string),
	}
}

// Acquire adds owner's interest. first is true when symbol had no owners.
func (s *Subscriptions) Acquire(owner, symbol string) (first bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.owners[symbol]
	if !ok {
		set = make(map[string]struct{})
		s.owners[symbol] = set
	}
	set[owner] = struct{}{}
	return !ok
}

// Release drops owner's interest. When it was the last owner the symbol is
// removed and its upstream id (possibly empty) is returned.
func (s *Subscriptions) Release(owner, symbol string) (last bool, upstreamID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releaseLocked(owner, symbol)
}

func (s *Subscriptions) releaseLocked(owner, symbol string) (bool, string) {
	set, ok := s.owners[symbol]
	if !ok {
		return false, ""
	}
	if _, held := set[owner]; !held {
		return false, ""
	}
	delete(set, owner)
	if len(set) > 0 {
		return false, ""
	}
	delete(s.owners, symbol)
	id := s.upstreamIDs[symbol]
	delete(s.upstreamIDs, symbol)
	return true, id
}

// ReleaseOwner drops every interest held by owner.
func (s *Subscriptions) ReleaseOwner(owner string) []Released {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Released
	for symbol := range s.owners {
		if last, id := s.releaseLocked(owner, symbol); last {
			out = append(out, Released{Symbol: symbol, UpstreamID: id})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// -----------------------------------------------------------------------------

// Symbols returns every wanted symbol, sorted.
func (s *Subscriptions) Symbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.owners))
	for sym := range s.owners {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func (s *Subscriptions) Wanted(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.owners[symbol]
	return ok
}

// -----------------------------------------------------------------------------

// SetUpstreamID records the stream id for a wanted symbol. It reports false
// when nobody wants the symbol any more.
func (s *Subscriptions) SetUpstreamID(symbol, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.owners[symbol]; !ok {
		return false
	}
	s.upstreamIDs[symbol] = id
	return true
}

func (s *Subscriptions) UpstreamID(symbol string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upstreamIDs[symbol]
}

// ClearUpstreamIDs forgets stream ids; they die with the connection.
func (s *Subscriptions) ClearUpstreamIDs() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upstreamIDs = make(map[string]string)
}
