// Package wire is the JSON framing used on relay WebSocket connections.
//
// Every frame is an envelope:
//
//	{"type":"offer","payload":{"target":"…","sender":"…","sdp":"…"}}
//
// The payload shape depends on the type; see domain.Event.
package wire

import (
	"bytes"
	"fmt"

	"github.com/Wyydra/huddle/internal/core/domain"
	"github.com/goccy/go-json"
)

type envelope struct {
	Type    domain.EventKind `json:"type"`
	Payload json.RawMessage  `json:"payload,omitempty"`
}

type outEnvelope struct {
	Type    domain.EventKind `json:"type"`
	Payload any              `json:"payload,omitempty"`
}

var null = []byte("null")

// Encode renders ev as one frame.
func Encode(ev domain.Event) ([]byte, error) {
	b, err := json.Marshal(outEnvelope{Type: ev.Kind, Payload: ev.Payload})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.Kind, err)
	}
	return b, nil
}

// Decode parses one frame. Malformed envelopes, unknown types and payloads
// that do not fit their type wrap domain.ErrProtocol. Signal payloads are
// decoded but not validated.
func Decode(data []byte) (domain.Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return domain.Event{}, fmt.Errorf("%w: %v", domain.ErrProtocol, err)
	}

	switch env.Type {
	case domain.EventWelcome:
		var p domain.Peer
		if err := unmarshalPayload(env, &p); err != nil {
			return domain.Event{}, err
		}
		return domain.NewWelcomeEvent(p), nil

	case domain.EventPresence:
		var peers []domain.Peer
		if err := unmarshalPayload(env, &peers); err != nil {
			return domain.Event{}, err
		}
		if peers == nil {
			peers = []domain.Peer{}
		}
		return domain.NewPresenceEvent(peers), nil

	case domain.EventPeerRemoved:
		var p domain.PeerRemoved
		if err := unmarshalPayload(env, &p); err != nil {
			return domain.Event{}, err
		}
		return domain.NewPeerRemovedEvent(p.ID), nil

	case domain.EventOffer, domain.EventAnswer, domain.EventICECandidate, domain.EventEndCall:
		var sig domain.Signal
		if err := unmarshalPayload(env, &sig); err != nil {
			return domain.Event{}, err
		}
		return domain.NewSignalEvent(finishSignal(env.Type, sig)), nil
	}

	return domain.Event{}, fmt.Errorf("%w: unknown message type %q", domain.ErrProtocol, env.Type)
}

// clientSignal is a signal payload as written by a client. It has no sender
// field, so whatever the client puts there is never parsed.
type clientSignal struct {
	Target    domain.ConnID   `json:"target"`
	SDP       string          `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// DecodeClient parses a frame received by the relay. Only signal types are
// accepted and the returned Signal has a zero Sender.
func DecodeClient(data []byte) (domain.Signal, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return domain.Signal{}, fmt.Errorf("%w: %v", domain.ErrProtocol, err)
	}
	if !env.Type.IsSignal() {
		return domain.Signal{}, fmt.Errorf("%w: %q is not accepted from clients", domain.ErrProtocol, env.Type)
	}

	var in clientSignal
	if err := unmarshalPayload(env, &in); err != nil {
		return domain.Signal{}, err
	}
	return finishSignal(env.Type, domain.Signal{
		Target:    in.Target,
		SDP:       in.SDP,
		Candidate: in.Candidate,
	}), nil
}

func finishSignal(kind domain.EventKind, sig domain.Signal) domain.Signal {
	sig.Kind = kind
	if bytes.Equal(bytes.TrimSpace(sig.Candidate), null) {
		sig.Candidate = nil
	}
	return sig
}

func unmarshalPayload(env envelope, v any) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("%w: %s without payload", domain.ErrProtocol, env.Type)
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", domain.ErrProtocol, env.Type, err)
	}
	return nil
}
