package domain

import (
	"encoding/json"
	"fmt"
)

type EventKind string

const (
	EventWelcome      EventKind = "welcome"
	EventPresence     EventKind = "presence-snapshot"
	EventPeerRemoved  EventKind = "peer-removed"
	EventOffer        EventKind = "offer"
	EventAnswer       EventKind = "answer"
	EventICECandidate EventKind = "ice-candidate"
	EventEndCall      EventKind = "end-call"
)

// IsSignal reports whether k is one of the kinds routed peer to peer.
func (k EventKind) IsSignal() bool {
	switch k {
	case EventOffer, EventAnswer, EventICECandidate, EventEndCall:
		return true
	}
	return false
}

// Signal is a handshake message addressed to one peer.
type Signal struct {
	Kind      EventKind       `json:"-"`
	Target    ConnID          `json:"target"`
	Sender    ConnID          `json:"sender"`
	SDP       string          `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

func NewOffer(target ConnID, sdp string) Signal {
	return Signal{Kind: EventOffer, Target: target, SDP: sdp}
}

func NewAnswer(target ConnID, sdp string) Signal {
	return Signal{Kind: EventAnswer, Target: target, SDP: sdp}
}

func NewICECandidate(target ConnID, candidate json.RawMessage) Signal {
	return Signal{Kind: EventICECandidate, Target: target, Candidate: candidate}
}

func NewEndCall(target ConnID) Signal {
	return Signal{Kind: EventEndCall, Target: target}
}

// Validate checks the kind and the kind-specific body. Every failure wraps
// ErrProtocol.
func (s Signal) Validate() error {
	if !s.Kind.IsSignal() {
		return fmt.Errorf("%w: unknown kind %q", ErrProtocol, s.Kind)
	}
	if s.Target.IsZero() {
		return fmt.Errorf("%w: %s without target", ErrProtocol, s.Kind)
	}
	switch s.Kind {
	case EventOffer, EventAnswer:
		if s.SDP == "" {
			return fmt.Errorf("%w: %s without sdp", ErrProtocol, s.Kind)
		}
	case EventICECandidate:
		if len(s.Candidate) == 0 {
			return fmt.Errorf("%w: %s without candidate", ErrProtocol, s.Kind)
		}
	}
	return nil
}

// Peer is the public view of a connection shared through presence events.
type Peer struct {
	ID          ConnID `json:"identity"`
	DisplayName string `json:"displayName"`
}

// PeerRemoved is the body of a peer-removed notice.
type PeerRemoved struct {
	ID ConnID `json:"identity"`
}

// Event is one message on the relay wire. Payload is one of Peer (welcome),
// []Peer (presence-snapshot), PeerRemoved or Signal.
type Event struct {
	Kind    EventKind
	Payload any
}

func NewWelcomeEvent(self Peer) Event {
	return Event{Kind: EventWelcome, Payload: self}
}

func NewPresenceEvent(peers []Peer) Event {
	return Event{Kind: EventPresence, Payload: peers}
}

func NewPeerRemovedEvent(id ConnID) Event {
	return Event{Kind: EventPeerRemoved, Payload: PeerRemoved{ID: id}}
}

func NewSignalEvent(s Signal) Event {
	return Event{Kind: s.Kind, Payload: s}
}
