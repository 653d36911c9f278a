// Package protocol defines the JSON messages exchanged between the
// client and the relay over the WebSocket link.
package protocol

// MessageType identifies the kind of relay message.
type MessageType string

const (
	// Client → server lifecycle requests.
	MsgTypeFindPartner MessageType = "find-partner"
	MsgTypeSkip        MessageType = "skip"

	// Server → client lifecycle events.
	MsgTypePaired         MessageType = "paired"
	MsgTypeWaiting        MessageType = "waiting"
	MsgTypePartnerLeft    MessageType = "partner-left"
	MsgTypePartnerSkipped MessageType = "partner-skipped"

	// Relayed between partners, payload opaque to the server.
	MsgTypeChat      MessageType = "chat"
	MsgTypeOffer     MessageType = "offer"
	MsgTypeAnswer    MessageType = "answer"
	MsgTypeCandidate MessageType = "candidate"
)

// Role is the negotiation role assigned by the relay when a partnership
// forms. The initiator creates the offer; the responder answers it.
type Role string

const (
	RoleNone      Role = ""
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

// Message is the JSON envelope for every frame on the WebSocket.
// Exactly one payload field is meaningful for any given Type; the rest
// stay empty and are omitted on the wire.
type Message struct {
	Type      MessageType `json:"type"`
	Role      Role        `json:"role,omitempty"`      // paired
	Text      string      `json:"text,omitempty"`      // chat
	SDP       string      `json:"sdp,omitempty"`       // offer / answer
	Candidate string      `json:"candidate,omitempty"` // JSON-encoded ICECandidateInit
}

// Relayable reports whether the message type is forwarded verbatim to
// the sender's partner rather than handled by the relay itself.
func (t MessageType) Relayable() bool {
	switch t {
	case MsgTypeChat, MsgTypeOffer, MsgTypeAnswer, MsgTypeCandidate:
		return true
	}
	return false
}
