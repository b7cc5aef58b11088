package provider

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/Wyydra/huddle/internal/core/domain"
	"github.com/goccy/go-json"
)

// iceServerDTO accepts both the single "url" form and the WebRTC "urls"
// form, where urls is a string or an array.
type iceServerDTO struct {
	URL        string          `json:"url"`
	URLs       json.RawMessage `json:"urls"`
	Username   string          `json:"username"`
	Credential string          `json:"credential"`
	Protocol   string          `json:"protocol"`
}

func (d iceServerDTO) expand() ([]domain.ICEServer, error) {
	var urls []string
	if d.URL != "" {
		urls = append(urls, d.URL)
	}

	raw := bytes.TrimSpace(d.URLs)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
	case raw[0] == '[':
		var list []string
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("urls: %w", err)
		}
		urls = append(urls, list...)
	default:
		var one string
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil, fmt.Errorf("urls: %w", err)
		}
		urls = append(urls, one)
	}

	out := make([]domain.ICEServer, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		out = append(out, domain.ICEServer{
			URL:        u,
			Username:   d.Username,
			Credential: d.Credential,
			Protocol:   d.Protocol,
		})
	}
	return out, nil
}

func expandAll(dtos []iceServerDTO) ([]domain.ICEServer, error) {
	var out []domain.ICEServer
	for _, d := range dtos {
		servers, err := d.expand()
		if err != nil {
			return nil, err
		}
		out = append(out, servers...)
	}
	return out, nil
}

// decodeICEServers reads a credential list sent either as a bare array or
// as {"iceServers": [...]}.
func decodeICEServers(body []byte) ([]domain.ICEServer, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("empty body")
	}

	var dtos []iceServerDTO
	if body[0] == '[' {
		if err := json.Unmarshal(body, &dtos); err != nil {
			return nil, err
		}
	} else {
		var wrapped struct {
			ICEServers []iceServerDTO `json:"iceServers"`
		}
		if err := json.Unmarshal(body, &wrapped); err != nil {
			return nil, err
		}
		dtos = wrapped.ICEServers
	}
	return expandAll(dtos)
}

type roomDTO struct {
	RoomName        string         `json:"roomName"`
	Name            string         `json:"name"`
	MaxParticipants int            `json:"maxParticipants"`
	ICEServers      []iceServerDTO `json:"iceServers"`
}

func decodeRoom(body []byte) (*domain.Room, error) {
	room := &domain.Room{}
	if len(bytes.TrimSpace(body)) == 0 {
		return room, nil
	}

	var dto roomDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return nil, fmt.Errorf("decode room: %w", err)
	}
	servers, err := expandAll(dto.ICEServers)
	if err != nil {
		return nil, fmt.Errorf("decode room: %w", err)
	}

	room.Name = dto.RoomName
	if room.Name == "" {
		room.Name = dto.Name
	}
	room.MaxParticipants = dto.MaxParticipants
	room.ICEServers = servers
	return room, nil
}
