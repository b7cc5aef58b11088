// Package provider is the client for the external media-routing provider
// that owns call rooms and traversal credentials.
package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/Wyydra/huddle/internal/core/domain"
	"github.com/Wyydra/huddle/internal/core/port"
	"github.com/Wyydra/huddle/internal/metrics"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// FallbackICEServers is used whenever the provider cannot hand out
// credentials: public STUN plus a public test TURN relay.
var FallbackICEServers = []domain.ICEServer{
	{URL: "stun:stun.l.google.com:19302"},
	{URL: "stun:stun1.l.google.com:19302"},
	{URL: "stun:stun2.l.google.com:19302"},
	{URL: "turn:openrelay.metered.ca:80", Username: "openrelayproject", Credential: "openrelayproject", Protocol: "udp"},
	{URL: "turn:openrelay.metered.ca:443", Username: "openrelayproject", Credential: "openrelayproject", Protocol: "udp"},
	{URL: "turn:openrelay.metered.ca:443?transport=tcp", Username: "openrelayproject", Credential: "openrelayproject", Protocol: "tcp"},
}

// Client talks to the provider's room and credential endpoints. It never
// retries.
type Client struct {
	BaseURL    string
	Secret     string
	HTTPClient *http.Client
}

var _ port.RoomProvider = (*Client)(nil)

func NewClient(baseURL, secret string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Secret:     secret,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type createRoomRequest struct {
	RoomName string `json:"roomName"`
}

func (c *Client) CreateRoom(ctx context.Context, name string) (*domain.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &domain.ProviderError{Op: "create room", Reason: "room name is required", Err: domain.ErrRoomCreateFailed}
	}

	body, err := json.Marshal(createRoomRequest{RoomName: name})
	if err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	return c.roomRequest(ctx, "create room", http.MethodPost, "/room", body, name, domain.ErrRoomCreateFailed)
}

func (c *Client) JoinRoom(ctx context.Context, name string) (*domain.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &domain.ProviderError{Op: "join room", Reason: "room name is required", Err: domain.ErrRoomJoinFailed}
	}
	return c.roomRequest(ctx, "join room", http.MethodPost, roomPath(name)+"/join", nil, name, domain.ErrRoomJoinFailed)
}

// ValidateRoom reports whether the provider knows the room. Any failure
// reads as false.
func (c *Client) ValidateRoom(ctx context.Context, name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}

	status, body, err := c.doRequest(ctx, "validate room", http.MethodGet, roomPath(name), nil)
	if err != nil || !success(status) {
		log.Debug().Err(err).Int("status", status).Str("room", name).Msg("Room did not validate")
		return false
	}

	var resp struct {
		Exists *bool `json:"exists"`
	}
	if len(bytes.TrimSpace(body)) == 0 || json.Unmarshal(body, &resp) != nil || resp.Exists == nil {
		return true
	}
	return *resp.Exists
}

// EndRoom asks the provider to close the room. Any failure reads as false.
func (c *Client) EndRoom(ctx context.Context, name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}

	status, body, err := c.doRequest(ctx, "end room", http.MethodDelete, roomPath(name), nil)
	if err != nil || !success(status) {
		log.Warn().Err(err).Int("status", status).Str("room", name).Msg("Failed to end room")
		return false
	}

	var resp struct {
		Success *bool `json:"success"`
	}
	if len(bytes.TrimSpace(body)) == 0 || json.Unmarshal(body, &resp) != nil || resp.Success == nil {
		return true
	}
	return *resp.Success
}

// ICEServers fetches traversal credentials. It never fails: when the
// provider is unreachable, rejects the request or returns nothing usable,
// the result is a copy of FallbackICEServers.
func (c *Client) ICEServers(ctx context.Context) []domain.ICEServer {
	status, body, err := c.doRequest(ctx, "ice servers", http.MethodGet, "/turn/credentials", nil)
	if err != nil || !success(status) {
		return fallback(fmt.Sprintf("provider returned %d", status), err)
	}

	servers, err := decodeICEServers(body)
	if err != nil {
		return fallback("undecodable credentials", err)
	}
	if len(servers) == 0 {
		return fallback("empty credential list", nil)
	}
	return servers
}

func fallback(reason string, err error) []domain.ICEServer {
	metrics.ICEFallbacks.Inc()
	log.Warn().Err(err).Str("reason", reason).Msg("Using fallback ICE servers")
	return slices.Clone(FallbackICEServers)
}

func (c *Client) roomRequest(ctx context.Context, op, method, path string, body []byte, name string, sentinel error) (*domain.Room, error) {
	status, respBody, err := c.doRequest(ctx, op, method, path, body)
	if err != nil {
		return nil, &domain.ProviderError{Op: op, Room: name, Reason: err.Error(), Err: sentinel}
	}
	if !success(status) {
		return nil, &domain.ProviderError{Op: op, Room: name, Status: status, Reason: reason(respBody), Err: sentinel}
	}

	room, err := decodeRoom(respBody)
	if err != nil {
		return nil, &domain.ProviderError{Op: op, Room: name, Status: status, Reason: err.Error(), Err: sentinel}
	}
	if room.Name == "" {
		room.Name = name
	}
	room.Exists = true
	return room, nil
}

func (c *Client) doRequest(ctx context.Context, op, method, path string, body []byte) (int, []byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Secret != "" {
		req.Header.Set("Authorization", "Bearer "+c.Secret)
	}

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	metrics.ProviderLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}

	log.Debug().Str("op", op).Str("method", method).Str("path", path).Int("status", resp.StatusCode).Dur("latency", time.Since(start)).Msg("Provider request")
	return resp.StatusCode, respBody, nil
}

func roomPath(name string) string {
	return "/room/" + url.PathEscape(name)
}

func success(status int) bool {
	return status >= 200 && status < 300
}

// reason extracts the provider's message from an error body, or returns the
// whole body untouched apart from surrounding whitespace.
func reason(body []byte) string {
	var resp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &resp) == nil {
		if resp.Error != "" {
			return resp.Error
		}
		if resp.Message != "" {
			return resp.Message
		}
	}

	return strings.TrimSpace(string(body))
}
