// Package session implements the client side of the system: the relay
// link, the per-pairing WebRTC negotiation state machine, and the
// lifecycle controller that reacts to relay events.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/neetil/vibe/internal/media"
	"github.com/neetil/vibe/internal/protocol"
	"github.com/neetil/vibe/internal/util"
)

// Status is the user-visible session state.
type Status string

const (
	StatusInit         Status = "init"
	StatusWaiting      Status = "waiting"
	StatusChatting     Status = "chatting"
	StatusDisconnected Status = "disconnected"
)

// ChatEntry is one line of the session transcript.
type ChatEntry struct {
	Mine bool
	Text string
}

// Sender transmits a message to the relay. *Link implements it.
type Sender interface {
	Send(*protocol.Message) error
}

// ControllerConfig parameterizes a Controller.
type ControllerConfig struct {
	Sender      Sender
	ICEServers  []webrtc.ICEServer
	Source      media.Source
	MediaStatus media.Status
	RoleTimeout time.Duration

	// OnStatus, if set, observes status changes with a display string.
	OnStatus func(Status, string)
	// OnChat, if set, observes every received chat line.
	OnChat func(ChatEntry)
	// OnRemoteTrack, if set, receives the partner's media tracks.
	OnRemoteTrack func(*webrtc.TrackRemote)
}

// Controller orchestrates one participant's session lifecycle: it
// reacts to relay events (waiting, paired, partner-left), starts and
// tears down negotiation, and keeps the chat transcript. All entry
// points serialize on one mutex, so at most one negotiation is ever in
// flight and teardown is synchronous with the event that caused it.
type Controller struct {
	cfg ControllerConfig

	mu         sync.Mutex
	status     Status
	neg        *Negotiator
	transcript []ChatEntry
}

// NewController creates a controller in the init state.
func NewController(cfg ControllerConfig) *Controller {
	return &Controller{cfg: cfg, status: StatusInit}
}

// FindPartner enters the pairing queue.
func (c *Controller) FindPartner() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.teardownLocked()
	c.transcript = nil
	c.setStatusLocked(StatusWaiting, "Looking for a partner...")
	return c.cfg.Sender.Send(&protocol.Message{Type: protocol.MsgTypeFindPartner})
}

// SendChat relays a chat line to the current partner.
func (c *Controller) SendChat(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusChatting {
		return fmt.Errorf("not chatting (status %s)", c.status)
	}
	c.transcript = append(c.transcript, ChatEntry{Mine: true, Text: text})
	return c.cfg.Sender.Send(&protocol.Message{Type: protocol.MsgTypeChat, Text: text})
}

// Skip ends the current partnership and immediately re-enters the
// queue. When no partnership exists (the partner already left) it falls
// back to a plain find-partner request.
func (c *Controller) Skip() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	wasChatting := c.status == StatusChatting
	c.teardownLocked()
	c.transcript = nil
	c.setStatusLocked(StatusWaiting, "Looking for a partner...")

	if wasChatting {
		// The relay tears down the partner side and requeues us.
		return c.cfg.Sender.Send(&protocol.Message{Type: protocol.MsgTypeSkip})
	}
	return c.cfg.Sender.Send(&protocol.Message{Type: protocol.MsgTypeFindPartner})
}

// Stop ends the session entirely, releasing negotiation and media.
// Closing the link itself is the caller's job.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.teardownLocked()
	c.transcript = nil
	if err := c.cfg.Source.Close(); err != nil {
		util.LogWarning("session: close media source: %v", err)
	}
	c.setStatusLocked(StatusInit, "Stopped.")
}

// Status returns the current user-visible status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Transcript returns a copy of the current session's chat lines.
func (c *Controller) Transcript() []ChatEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ChatEntry, len(c.transcript))
	copy(out, c.transcript)
	return out
}

// Handle processes one inbound relay message. It is the single entry
// point for the link's read loop.
func (c *Controller) Handle(msg *protocol.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Type {
	case protocol.MsgTypeWaiting:
		c.teardownLocked()
		c.transcript = nil
		c.setStatusLocked(StatusWaiting, "Looking for a partner...")

	case protocol.MsgTypePaired:
		c.teardownLocked()
		c.transcript = nil
		c.setStatusLocked(StatusChatting, "You are connected with a stranger.")
		c.startNegotiationLocked(msg.Role)

	case protocol.MsgTypePartnerLeft:
		c.teardownLocked()
		c.setStatusLocked(StatusDisconnected, "Partner disconnected. Skip to find someone else.")

	case protocol.MsgTypePartnerSkipped:
		c.teardownLocked()
		c.setStatusLocked(StatusDisconnected, "Partner skipped. Skip to find someone else.")

	case protocol.MsgTypeChat:
		entry := ChatEntry{Text: msg.Text}
		c.transcript = append(c.transcript, entry)
		if c.cfg.OnChat != nil {
			c.cfg.OnChat(entry)
		}

	case protocol.MsgTypeOffer:
		if c.neg == nil {
			util.LogDebug("session: offer with no active negotiation, dropping")
			return
		}
		c.neg.HandleOffer(msg.SDP)

	case protocol.MsgTypeAnswer:
		if c.neg == nil {
			util.LogDebug("session: answer with no active negotiation, dropping")
			return
		}
		c.neg.HandleAnswer(msg.SDP)

	case protocol.MsgTypeCandidate:
		if c.neg == nil {
			util.LogDebug("session: candidate with no active negotiation, dropping")
			return
		}
		c.neg.HandleCandidate(msg.Candidate)

	default:
		util.LogWarning("session: unknown message type %q", msg.Type)
	}
}

// LinkClosed is invoked when the relay connection dies. A transport
// failure tears the session down like a partner-left.
func (c *Controller) LinkClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked()
	c.setStatusLocked(StatusDisconnected, "Connection to relay lost.")
}

// Negotiation exposes the active negotiator, or nil. Test hook and
// status display only.
func (c *Controller) Negotiation() *Negotiator {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.neg
}

// ---------------------------------------------------------------------------
// Internals (all require c.mu)
// ---------------------------------------------------------------------------

func (c *Controller) setStatusLocked(s Status, info string) {
	c.status = s
	if c.cfg.OnStatus != nil {
		c.cfg.OnStatus(s, info)
	}
}

// startNegotiationLocked spins up the per-pairing negotiator. Without
// granted media there is nothing to negotiate: the session stays text
// only, which keeps chat working when the camera was denied.
func (c *Controller) startNegotiationLocked(role protocol.Role) {
	if c.cfg.MediaStatus != media.StatusGranted {
		util.LogInfo("session: media %s, text-only session", c.cfg.MediaStatus)
		return
	}

	c.neg = NewNegotiator(NegotiatorConfig{
		ICEServers:    c.cfg.ICEServers,
		Source:        c.cfg.Source,
		Send:          c.cfg.Sender.Send,
		RoleTimeout:   c.cfg.RoleTimeout,
		OnRemoteTrack: c.cfg.OnRemoteTrack,
		OnState: func(s State) {
			util.LogDebug("session: negotiation state %s", s)
		},
	})
	if err := c.neg.Start(role); err != nil {
		util.LogError("session: start negotiation: %v", err)
		c.neg.Close()
		c.neg = nil
	}
}

func (c *Controller) teardownLocked() {
	if c.neg != nil {
		c.neg.Close()
		c.neg = nil
	}
}
