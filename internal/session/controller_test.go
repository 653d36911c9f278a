package session

import (
	"testing"
	"time"

	"github.com/neetil/vibe/internal/media"
	"github.com/neetil/vibe/internal/protocol"
)

func newTestController(s *sink, status media.Status) *Controller {
	return NewController(ControllerConfig{
		Sender:      s,
		Source:      media.Disabled(),
		MediaStatus: status,
		RoleTimeout: time.Minute, // tests drive roles explicitly
	})
}

func TestControllerFindPartner(t *testing.T) {
	s := newSink()
	c := newTestController(s, media.StatusGranted)

	if err := c.FindPartner(); err != nil {
		t.Fatalf("FindPartner: %v", err)
	}
	if c.Status() != StatusWaiting {
		t.Fatalf("status = %s, want waiting", c.Status())
	}
	if s.count(protocol.MsgTypeFindPartner) != 1 {
		t.Fatal("find-partner was not sent")
	}
}

func TestControllerPairedStartsNegotiation(t *testing.T) {
	s := newSink()
	c := newTestController(s, media.StatusGranted)

	c.Handle(&protocol.Message{Type: protocol.MsgTypePaired, Role: protocol.RoleInitiator})

	if c.Status() != StatusChatting {
		t.Fatalf("status = %s, want chatting", c.Status())
	}
	if c.Negotiation() == nil {
		t.Fatal("no negotiation started on paired")
	}
	s.waitFor(t, protocol.MsgTypeOffer)
}

func TestControllerPairedAsResponderAwaitsOffer(t *testing.T) {
	s := newSink()
	c := newTestController(s, media.StatusGranted)

	c.Handle(&protocol.Message{Type: protocol.MsgTypePaired, Role: protocol.RoleResponder})

	neg := c.Negotiation()
	if neg == nil {
		t.Fatal("no negotiation started on paired")
	}
	if neg.Role() != protocol.RoleResponder {
		t.Fatalf("role = %s, want responder", neg.Role())
	}

	remote := newRemotePeer(t)
	c.Handle(&protocol.Message{Type: protocol.MsgTypeOffer, SDP: remoteOffer(t, remote)})
	s.waitFor(t, protocol.MsgTypeAnswer)
}

func TestControllerRepairedReplacesNegotiation(t *testing.T) {
	s := newSink()
	c := newTestController(s, media.StatusGranted)

	c.Handle(&protocol.Message{Type: protocol.MsgTypePaired, Role: protocol.RoleResponder})
	first := c.Negotiation()

	// A fresh pairing cancels the in-flight session before starting the
	// next one; nothing of the old session is reused.
	c.Handle(&protocol.Message{Type: protocol.MsgTypePaired, Role: protocol.RoleResponder})
	second := c.Negotiation()

	if first == second {
		t.Fatal("negotiation was reused across pairings")
	}
	if first.State() != StateTornDown {
		t.Fatalf("old negotiation state = %s, want torn-down", first.State())
	}
}

func TestControllerPartnerLeftTearsDown(t *testing.T) {
	s := newSink()
	c := newTestController(s, media.StatusGranted)

	c.Handle(&protocol.Message{Type: protocol.MsgTypePaired, Role: protocol.RoleResponder})
	neg := c.Negotiation()

	c.Handle(&protocol.Message{Type: protocol.MsgTypePartnerLeft})

	if c.Status() != StatusDisconnected {
		t.Fatalf("status = %s, want disconnected", c.Status())
	}
	if c.Negotiation() != nil {
		t.Fatal("negotiation survived partner-left")
	}
	if neg.State() != StateTornDown {
		t.Fatalf("negotiation state = %s, want torn-down", neg.State())
	}
}

func TestControllerChatTranscript(t *testing.T) {
	s := newSink()
	var received []ChatEntry
	c := NewController(ControllerConfig{
		Sender:      s,
		Source:      media.Disabled(),
		MediaStatus: media.StatusDenied,
		OnChat:      func(e ChatEntry) { received = append(received, e) },
	})

	c.Handle(&protocol.Message{Type: protocol.MsgTypePaired})

	if err := c.SendChat("hi"); err != nil {
		t.Fatalf("SendChat: %v", err)
	}
	c.Handle(&protocol.Message{Type: protocol.MsgTypeChat, Text: "hello back"})

	transcript := c.Transcript()
	if len(transcript) != 2 {
		t.Fatalf("transcript has %d entries, want 2", len(transcript))
	}
	if !transcript[0].Mine || transcript[0].Text != "hi" {
		t.Errorf("transcript[0] = %+v", transcript[0])
	}
	if transcript[1].Mine || transcript[1].Text != "hello back" {
		t.Errorf("transcript[1] = %+v", transcript[1])
	}
	if len(received) != 1 || received[0].Text != "hello back" {
		t.Errorf("OnChat received %v", received)
	}

	// A new queue entry starts with a clean transcript.
	c.Handle(&protocol.Message{Type: protocol.MsgTypeWaiting})
	if got := c.Transcript(); len(got) != 0 {
		t.Fatalf("transcript has %d entries after waiting, want 0", len(got))
	}
}

func TestControllerChatRequiresPartner(t *testing.T) {
	s := newSink()
	c := newTestController(s, media.StatusGranted)

	if err := c.SendChat("anyone?"); err == nil {
		t.Fatal("SendChat succeeded without a partner")
	}
}

func TestControllerDeniedMediaStaysTextOnly(t *testing.T) {
	s := newSink()
	c := newTestController(s, media.StatusDenied)

	c.Handle(&protocol.Message{Type: protocol.MsgTypePaired, Role: protocol.RoleInitiator})

	if c.Negotiation() != nil {
		t.Fatal("negotiation started despite denied media")
	}
	if c.Status() != StatusChatting {
		t.Fatalf("status = %s, want chatting (text-only)", c.Status())
	}
	if err := c.SendChat("text still works"); err != nil {
		t.Fatalf("SendChat: %v", err)
	}

	// Stray negotiation traffic for the missing session is dropped.
	c.Handle(&protocol.Message{Type: protocol.MsgTypeCandidate, Candidate: testCandidate})
}

func TestControllerSkipWhileChatting(t *testing.T) {
	s := newSink()
	c := newTestController(s, media.StatusGranted)

	c.Handle(&protocol.Message{Type: protocol.MsgTypePaired, Role: protocol.RoleResponder})
	if err := c.Skip(); err != nil {
		t.Fatalf("Skip: %v", err)
	}

	if s.count(protocol.MsgTypeSkip) != 1 {
		t.Fatal("skip was not sent")
	}
	if c.Status() != StatusWaiting {
		t.Fatalf("status = %s, want waiting", c.Status())
	}
	if c.Negotiation() != nil {
		t.Fatal("negotiation survived skip")
	}
}

func TestControllerSkipWhileDisconnectedRequeues(t *testing.T) {
	s := newSink()
	c := newTestController(s, media.StatusGranted)

	c.Handle(&protocol.Message{Type: protocol.MsgTypePaired, Role: protocol.RoleResponder})
	c.Handle(&protocol.Message{Type: protocol.MsgTypePartnerSkipped})

	if err := c.Skip(); err != nil {
		t.Fatalf("Skip: %v", err)
	}
	// No partnership left to skip: a plain find-partner goes out instead.
	if s.count(protocol.MsgTypeSkip) != 0 {
		t.Fatal("skip sent without a partnership")
	}
	if s.count(protocol.MsgTypeFindPartner) != 1 {
		t.Fatal("find-partner was not sent")
	}
}

func TestControllerLinkClosed(t *testing.T) {
	s := newSink()
	c := newTestController(s, media.StatusGranted)

	c.Handle(&protocol.Message{Type: protocol.MsgTypePaired, Role: protocol.RoleResponder})
	c.LinkClosed()

	if c.Status() != StatusDisconnected {
		t.Fatalf("status = %s, want disconnected", c.Status())
	}
	if c.Negotiation() != nil {
		t.Fatal("negotiation survived link loss")
	}
}
