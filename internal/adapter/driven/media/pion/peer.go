// Package pion drives a WebRTC peer connection from relay signals. The
// relay never sees media; this is the client end of a call.
package pion

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Wyydra/huddle/internal/core/domain"
	"github.com/Wyydra/huddle/internal/logging"
	"github.com/goccy/go-json"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const dataChannelLabel = "huddle"

var errUnexpectedSignal = errors.New("unexpected signal")

// Configuration turns provider credentials into a peer connection config.
// A TURN entry marked tcp gets the transport parameter pion expects.
func Configuration(servers []domain.ICEServer) webrtc.Configuration {
	cfg := webrtc.Configuration{ICEServers: make([]webrtc.ICEServer, 0, len(servers))}
	for _, s := range servers {
		u := s.URL
		if s.Protocol == "tcp" && strings.HasPrefix(u, "turn") && !strings.Contains(u, "transport=") {
			u += "?transport=tcp"
		}
		ice := webrtc.ICEServer{URLs: []string{u}}
		if s.Username != "" || s.Credential != "" {
			ice.Username = s.Username
			ice.Credential = s.Credential
			ice.CredentialType = webrtc.ICECredentialTypePassword
		}
		cfg.ICEServers = append(cfg.ICEServers, ice)
	}
	return cfg
}

// Peer is one side of a call with a single remote identity. Local ICE
// candidates are handed to send as they are gathered.
type Peer struct {
	pc     *webrtc.PeerConnection
	remote domain.ConnID
	send   func(domain.Signal) error

	mu      sync.Mutex
	pending []webrtc.ICECandidateInit // remote candidates that beat the description

	open     chan struct{}
	openOnce sync.Once
	done     chan struct{}
	doneOnce sync.Once
}

func NewPeer(servers []domain.ICEServer, remote domain.ConnID, send func(domain.Signal) error) (*Peer, error) {
	se := webrtc.SettingEngine{}
	se.LoggerFactory = logging.PionFactory{Logger: log.Logger, Level: zerolog.WarnLevel}
	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))

	pc, err := api.NewPeerConnection(Configuration(servers))
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	p := &Peer{
		pc:     pc,
		remote: remote,
		send:   send,
		open:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	l := log.With().Str("peer", remote.Short()).Logger()

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		b, err := json.Marshal(c.ToJSON())
		if err != nil {
			l.Error().Err(err).Msg("Failed to marshal candidate")
			return
		}
		if err := p.send(domain.NewICECandidate(remote, b)); err != nil {
			l.Warn().Err(err).Msg("Failed to send candidate")
		}
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		l.Debug().Str("state", s.String()).Msg("Peer connection state")
		switch s {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			p.doneOnce.Do(func() { close(p.done) })
		}
	})

	pc.OnDataChannel(p.watch)
	return p, nil
}

func (p *Peer) watch(dc *webrtc.DataChannel) {
	dc.OnOpen(func() {
		log.Info().Str("peer", p.remote.Short()).Str("label", dc.Label()).Msg("Data channel open")
		p.openOnce.Do(func() { close(p.open) })
	})
}

// Offer starts the call: it opens a data channel and returns the offer to
// send to the remote peer.
func (p *Peer) Offer() (domain.Signal, error) {
	dc, err := p.pc.CreateDataChannel(dataChannelLabel, nil)
	if err != nil {
		return domain.Signal{}, fmt.Errorf("create data channel: %w", err)
	}
	p.watch(dc)

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return domain.Signal{}, fmt.Errorf("create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return domain.Signal{}, fmt.Errorf("set local description: %w", err)
	}
	return domain.NewOffer(p.remote, p.pc.LocalDescription().SDP), nil
}

// Accept answers a remote offer.
func (p *Peer) Accept(offer domain.Signal) (domain.Signal, error) {
	if offer.Kind != domain.EventOffer {
		return domain.Signal{}, fmt.Errorf("%w: %s", errUnexpectedSignal, offer.Kind)
	}
	if err := p.setRemote(webrtc.SDPTypeOffer, offer.SDP); err != nil {
		return domain.Signal{}, err
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return domain.Signal{}, fmt.Errorf("create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return domain.Signal{}, fmt.Errorf("set local description: %w", err)
	}
	return domain.NewAnswer(p.remote, p.pc.LocalDescription().SDP), nil
}

// HandleAnswer completes a call started with Offer.
func (p *Peer) HandleAnswer(answer domain.Signal) error {
	if answer.Kind != domain.EventAnswer {
		return fmt.Errorf("%w: %s", errUnexpectedSignal, answer.Kind)
	}
	return p.setRemote(webrtc.SDPTypeAnswer, answer.SDP)
}

// AddCandidate applies a remote candidate, holding it until the remote
// description is known.
func (p *Peer) AddCandidate(sig domain.Signal) error {
	var c webrtc.ICECandidateInit
	if err := json.Unmarshal(sig.Candidate, &c); err != nil {
		return fmt.Errorf("parse ICE candidate: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pc.RemoteDescription() == nil {
		p.pending = append(p.pending, c)
		return nil
	}
	if err := p.pc.AddICECandidate(c); err != nil {
		return fmt.Errorf("add ICE candidate: %w", err)
	}
	return nil
}

func (p *Peer) setRemote(typ webrtc.SDPType, sdp string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: typ, SDP: sdp}); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	for _, c := range p.pending {
		if err := p.pc.AddICECandidate(c); err != nil {
			log.Warn().Err(err).Str("peer", p.remote.Short()).Msg("Dropping queued candidate")
		}
	}
	p.pending = nil
	return nil
}

// Open is closed once the data channel between the peers is usable.
func (p *Peer) Open() <-chan struct{} { return p.open }

// Done is closed when the connection fails or is closed.
func (p *Peer) Done() <-chan struct{} { return p.done }

func (p *Peer) Close() error {
	return p.pc.Close()
}
