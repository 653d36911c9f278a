package session

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/neetil/vibe/internal/media"
	"github.com/neetil/vibe/internal/protocol"
	"github.com/neetil/vibe/internal/util"
)

// State tracks one negotiation session from pairing to teardown.
type State int

const (
	StateIdle State = iota
	StateAwaitingRole
	StateNegotiating
	StateConnected
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingRole:
		return "awaiting-role"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateTornDown:
		return "torn-down"
	}
	return "unknown"
}

// defaultRoleTimeout bounds the legacy role race: how long a side waits
// for a remote offer before assuming the initiator role itself.
const defaultRoleTimeout = 75 * time.Millisecond

// NegotiatorConfig parameterizes one negotiation session.
type NegotiatorConfig struct {
	ICEServers []webrtc.ICEServer
	Source     media.Source

	// Send transmits a signaling message to the partner via the relay.
	Send func(*protocol.Message) error

	// RoleTimeout overrides defaultRoleTimeout (tests shrink it).
	RoleTimeout time.Duration

	// OnState, if set, observes every state transition. Called with the
	// negotiator lock held; it must not call back into the Negotiator.
	OnState func(State)

	// OnRemoteTrack, if set, receives the partner's inbound tracks.
	OnRemoteTrack func(*webrtc.TrackRemote)
}

// Negotiator drives the WebRTC negotiation for a single partnership:
// role resolution, description exchange, and candidate handling. One
// Negotiator serves exactly one pairing; teardown is final and a fresh
// pairing gets a fresh Negotiator.
//
// All entry points serialize on one mutex, so offer/answer handling
// never races the role timer or teardown.
type Negotiator struct {
	cfg NegotiatorConfig

	mu        sync.Mutex
	state     State
	role      protocol.Role
	pc        *webrtc.PeerConnection
	raceTimer *time.Timer

	// pending buffers remote candidates that arrived before the remote
	// description; it is drained in arrival order exactly once.
	pending   []webrtc.ICECandidateInit
	remoteSet bool
	offered   bool
}

// NewNegotiator creates a negotiator in the idle state.
func NewNegotiator(cfg NegotiatorConfig) *Negotiator {
	return &Negotiator{cfg: cfg}
}

// Start begins negotiation with the role assigned by the relay. With
// RoleNone (a relay that predates role assignment) the side races a
// short timer against the arrival of a remote offer: offer first means
// responder, timer first means initiator.
func (n *Negotiator) Start(role protocol.Role) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state != StateIdle {
		return fmt.Errorf("negotiation already started (state %s)", n.state)
	}

	switch role {
	case protocol.RoleInitiator:
		n.role = role
		if err := n.buildPeerLocked(); err != nil {
			n.teardownLocked()
			return err
		}
		n.setStateLocked(StateNegotiating)
		return n.sendOfferLocked()

	case protocol.RoleResponder:
		n.role = role
		if err := n.buildPeerLocked(); err != nil {
			n.teardownLocked()
			return err
		}
		n.setStateLocked(StateNegotiating)
		return nil

	default:
		n.setStateLocked(StateAwaitingRole)
		timeout := n.cfg.RoleTimeout
		if timeout <= 0 {
			timeout = defaultRoleTimeout
		}
		n.raceTimer = time.AfterFunc(timeout, n.assumeInitiator)
		return nil
	}
}

// State returns the current negotiation state.
func (n *Negotiator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Role returns the resolved negotiation role.
func (n *Negotiator) Role() protocol.Role {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.role
}

// assumeInitiator fires when the role timer elapses before any offer
// arrived: this side initiates.
func (n *Negotiator) assumeInitiator() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state != StateAwaitingRole {
		return
	}

	n.role = protocol.RoleInitiator
	if err := n.buildPeerLocked(); err != nil {
		util.LogError("negotiation: %v", err)
		n.teardownLocked()
		return
	}
	n.setStateLocked(StateNegotiating)
	if err := n.sendOfferLocked(); err != nil {
		util.LogWarning("negotiation: send offer: %v", err)
	}
}

// HandleOffer processes a remote offer. An offer arriving while this
// side was still awaiting its role settles it as responder. An offer
// arriving after this side already sent its own (a glare, possible only
// on the legacy race path) is honored: the local offer is discarded,
// the peer connection rebuilt, and the side answers as responder.
func (n *Negotiator) HandleOffer(sdp string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch n.state {
	case StateIdle, StateTornDown:
		util.LogDebug("negotiation: offer in state %s, dropping", n.state)
		return
	}
	if n.remoteSet {
		// Duplicate signaling is possible when the relay forwards
		// leftover traffic across a role race.
		util.LogDebug("negotiation: duplicate offer, ignoring")
		return
	}

	if n.state == StateAwaitingRole {
		n.stopRaceTimerLocked()
		n.role = protocol.RoleResponder
		if err := n.buildPeerLocked(); err != nil {
			util.LogError("negotiation: %v", err)
			n.teardownLocked()
			return
		}
		n.setStateLocked(StateNegotiating)
	}

	if n.role == protocol.RoleInitiator {
		util.LogWarning("negotiation: offer glare, discarding local offer and answering")
		n.pc.Close()
		n.pc = nil
		n.offered = false
		n.role = protocol.RoleResponder
		if err := n.buildPeerLocked(); err != nil {
			util.LogError("negotiation: %v", err)
			n.teardownLocked()
			return
		}
	}

	if err := n.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  sdp,
	}); err != nil {
		util.LogWarning("negotiation: set remote offer: %v", err)
		return
	}
	n.remoteSet = true
	n.drainPendingLocked()

	answer, err := n.pc.CreateAnswer(nil)
	if err != nil {
		util.LogWarning("negotiation: create answer: %v", err)
		return
	}
	if err := n.pc.SetLocalDescription(answer); err != nil {
		util.LogWarning("negotiation: set local answer: %v", err)
		return
	}
	if err := n.cfg.Send(&protocol.Message{Type: protocol.MsgTypeAnswer, SDP: answer.SDP}); err != nil {
		util.LogWarning("negotiation: send answer: %v", err)
	}
}

// HandleAnswer processes a remote answer. Answers without an
// outstanding local offer, and answers after the remote description is
// already set, are ignored.
func (n *Negotiator) HandleAnswer(sdp string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch n.state {
	case StateIdle, StateTornDown:
		util.LogDebug("negotiation: answer in state %s, dropping", n.state)
		return
	}
	if n.role != protocol.RoleInitiator || !n.offered {
		util.LogDebug("negotiation: answer with no outstanding offer, ignoring")
		return
	}
	if n.remoteSet {
		util.LogDebug("negotiation: duplicate answer, ignoring")
		return
	}

	if err := n.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	}); err != nil {
		util.LogWarning("negotiation: set remote answer: %v", err)
		return
	}
	n.remoteSet = true
	n.drainPendingLocked()
}

// HandleCandidate processes a remote ICE candidate, applying it when a
// remote description exists and buffering it otherwise. The raw payload
// is a JSON-encoded ICECandidateInit.
func (n *Negotiator) HandleCandidate(raw string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state == StateTornDown || n.state == StateIdle {
		return
	}

	var init webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(raw), &init); err != nil {
		util.LogWarning("negotiation: malformed candidate: %v", err)
		return
	}

	if !n.remoteSet {
		n.pending = append(n.pending, init)
		return
	}
	if err := n.pc.AddICECandidate(init); err != nil {
		util.LogWarning("negotiation: add candidate: %v", err)
	}
}

// Close tears the session down: the role timer stops, the peer
// connection is released, buffered candidates are discarded. Safe to
// call multiple times.
func (n *Negotiator) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.teardownLocked()
}

// ---------------------------------------------------------------------------
// Internals (all require n.mu)
// ---------------------------------------------------------------------------

func (n *Negotiator) setStateLocked(s State) {
	if n.state == s {
		return
	}
	n.state = s
	if n.cfg.OnState != nil {
		n.cfg.OnState(s)
	}
}

func (n *Negotiator) stopRaceTimerLocked() {
	if n.raceTimer != nil {
		n.raceTimer.Stop()
		n.raceTimer = nil
	}
}

// buildPeerLocked creates the peer connection, attaches local tracks
// (or recvonly transceivers when the source has none), and wires the
// candidate and state callbacks.
func (n *Negotiator) buildPeerLocked() error {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: n.cfg.ICEServers})
	if err != nil {
		return fmt.Errorf("create PeerConnection: %w", err)
	}

	tracks := n.cfg.Source.Tracks()
	for _, track := range tracks {
		if _, err := pc.AddTrack(track); err != nil {
			pc.Close()
			return fmt.Errorf("add local track: %w", err)
		}
	}
	if len(tracks) == 0 {
		for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
			if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
				Direction: webrtc.RTPTransceiverDirectionRecvonly,
			}); err != nil {
				pc.Close()
				return fmt.Errorf("add recvonly transceiver: %w", err)
			}
		}
	}

	// Trickle ICE: forward every gathered candidate immediately.
	// Best-effort, no lock; a stale candidate is harmless.
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		data, _ := json.Marshal(c.ToJSON())
		if err := n.cfg.Send(&protocol.Message{Type: protocol.MsgTypeCandidate, Candidate: string(data)}); err != nil {
			util.LogDebug("negotiation: send candidate: %v", err)
		}
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		util.LogDebug("negotiation: peer connection state %s", s)
		if s != webrtc.PeerConnectionStateConnected {
			return
		}
		n.mu.Lock()
		defer n.mu.Unlock()
		// The glare path replaces n.pc; only the live one may advance.
		if n.pc == pc && n.state == StateNegotiating {
			n.setStateLocked(StateConnected)
		}
	})

	if n.cfg.OnRemoteTrack != nil {
		pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
			n.cfg.OnRemoteTrack(track)
		})
	}

	n.pc = pc
	return nil
}

func (n *Negotiator) sendOfferLocked() error {
	offer, err := n.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := n.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local offer: %w", err)
	}
	n.offered = true
	if err := n.cfg.Send(&protocol.Message{Type: protocol.MsgTypeOffer, SDP: offer.SDP}); err != nil {
		return fmt.Errorf("send offer: %w", err)
	}
	return nil
}

// drainPendingLocked applies the buffered candidates in arrival order.
// Callers flip remoteSet first, so the queue drains at most once.
func (n *Negotiator) drainPendingLocked() {
	for _, init := range n.pending {
		if err := n.pc.AddICECandidate(init); err != nil {
			util.LogWarning("negotiation: add buffered candidate: %v", err)
		}
	}
	n.pending = nil
}

func (n *Negotiator) teardownLocked() {
	if n.state == StateTornDown {
		return
	}
	n.stopRaceTimerLocked()
	if n.pc != nil {
		n.pc.Close()
		n.pc = nil
	}
	n.pending = nil
	n.setStateLocked(StateTornDown)
}
