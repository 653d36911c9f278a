package relay

import (
	"sync"

	"github.com/neetil/vibe/internal/protocol"
	"github.com/neetil/vibe/internal/util"
)

// Events receives pairing lifecycle notifications. Implementations are
// invoked synchronously with the Matcher lock held and must not call
// back into the Matcher; delivery should be enqueue-and-return.
type Events interface {
	Paired(id string, role protocol.Role)
	Waiting(id string)
	PartnerLeft(id string)
	PartnerSkipped(id string)
}

// Matcher owns the waiting slot and the partnership map. All mutation
// paths funnel through one mutex, which is what makes match formation
// atomic: for any two concurrent RequestPartner calls at most one
// partnership is formed.
//
// The partnership map stores two directed entries per pair (a→b and
// b→a) so partner lookup is O(1) from either side. A participant held
// by the waiting slot is never a key in the map.
type Matcher struct {
	mu       sync.Mutex
	waiting  string
	partners map[string]string
	events   Events
}

// NewMatcher creates an empty matcher emitting lifecycle events to ev.
func NewMatcher(ev Events) *Matcher {
	return &Matcher{
		partners: make(map[string]string),
		events:   ev,
	}
}

// RequestPartner enters id into the queue. If another participant is
// already waiting the two are paired immediately and both receive a
// paired event carrying their assigned role: the caller that completes
// the match initiates, the consumed waiting participant responds.
// Re-requesting while already waiting or already paired is a no-op.
func (m *Matcher) RequestPartner(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestPartnerLocked(id)
}

func (m *Matcher) requestPartnerLocked(id string) {
	if _, paired := m.partners[id]; paired {
		util.LogDebug("matcher: %s requested a partner while paired, ignoring", id)
		return
	}

	if m.waiting != "" && m.waiting != id {
		other := m.waiting
		m.waiting = ""
		m.partners[id] = other
		m.partners[other] = id

		m.events.Paired(id, protocol.RoleInitiator)
		m.events.Paired(other, protocol.RoleResponder)
		util.LogInfo("matcher: paired %s (initiator) with %s (responder)", id, other)
		return
	}

	m.waiting = id
}

// Skip voluntarily ends id's current partnership. The former partner is
// notified, id is returned to the queue, and the match attempt is
// retried in the same critical section so a skipper can pair with a
// participant that was already waiting. Skipping while unpaired is a
// no-op.
func (m *Matcher) Skip(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	partner, ok := m.partners[id]
	if !ok {
		return
	}

	delete(m.partners, id)
	delete(m.partners, partner)
	m.events.PartnerSkipped(partner)
	util.LogInfo("matcher: %s skipped %s", id, partner)

	m.events.Waiting(id)
	m.requestPartnerLocked(id)
}

// Disconnect removes id from all pairing state. The waiting slot is
// cleared if id holds it; an existing partnership is torn down (both
// directions) and the surviving partner is notified. The disconnecting
// side is gone, so nothing is re-queued.
func (m *Matcher) Disconnect(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.waiting == id {
		m.waiting = ""
	}

	partner, ok := m.partners[id]
	if !ok {
		return
	}

	delete(m.partners, id)
	delete(m.partners, partner)
	m.events.PartnerLeft(partner)
	util.LogInfo("matcher: %s disconnected from %s", id, partner)
}

// PartnerOf returns id's current partner. The read takes the same lock
// as the mutation paths, so the relay always observes a consistent
// snapshot of the partnership map.
func (m *Matcher) PartnerOf(id string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	partner, ok := m.partners[id]
	return partner, ok
}
