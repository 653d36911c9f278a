package relay

import (
	"github.com/neetil/vibe/internal/protocol"
	"github.com/neetil/vibe/internal/util"
)

// Relay forwards relayable messages between two paired participants.
// It is a pure router: the SDP, candidate, and chat payloads pass
// through unmodified and are never inspected or persisted.
type Relay struct {
	matcher  *Matcher
	registry *Registry
}

// NewRelay creates a relay routing through the given matcher and
// registry.
func NewRelay(m *Matcher, r *Registry) *Relay {
	return &Relay{matcher: m, registry: r}
}

// Forward delivers msg to fromID's current partner. When fromID has no
// partner, or the partner is no longer registered, the message is
// silently dropped — stale traffic is expected under normal churn and
// is harmless to the receiving side.
func (rl *Relay) Forward(fromID string, msg *protocol.Message) {
	partner, ok := rl.matcher.PartnerOf(fromID)
	if !ok {
		util.LogDebug("relay: %s sent %s with no partner, dropping", fromID, msg.Type)
		return
	}
	rl.registry.Send(partner, msg)
}
