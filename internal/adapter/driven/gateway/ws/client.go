// Package ws is the client side of the relay WebSocket protocol.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/Wyydra/huddle/internal/adapter/wire"
	"github.com/Wyydra/huddle/internal/core/domain"
	"github.com/Wyydra/huddle/internal/core/port"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait = 10 * time.Second

	// Relay frames are small; anything past this is not ours.
	maxMessageSize = 1 << 20
)

var errConnClosed = errors.New("relay connection closed")

// Dialer connects to a relay's /ws endpoint.
type Dialer struct {
	URL              string
	HandshakeTimeout time.Duration
}

func NewDialer(relayURL string) *Dialer {
	return &Dialer{URL: relayURL, HandshakeTimeout: 10 * time.Second}
}

var _ port.RelayDialer = (*Dialer)(nil)

func (d *Dialer) Dial(ctx context.Context, displayName string) (port.RelayConn, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid relay URL: %w", err)
	}
	q := u.Query()
	q.Set("displayName", displayName)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", u.Redacted(), resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}
	conn.SetReadLimit(maxMessageSize)

	return &Conn{ws: conn, closed: make(chan struct{})}, nil
}

// Conn is one open relay connection. Send may be called from any goroutine;
// Receive from one at a time.
type Conn struct {
	ws *websocket.Conn

	writeMu   sync.Mutex
	closed    chan struct{}
	closeOnce sync.Once
}

func (c *Conn) Send(ev domain.Event) error {
	b, err := wire.Encode(ev)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, b)
}

// Receive blocks for the next relay event. Frames that do not decode are
// logged and skipped.
func (c *Conn) Receive() (domain.Event, error) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				return domain.Event{}, errConnClosed
			default:
				return domain.Event{}, err
			}
		}

		ev, err := wire.Decode(data)
		if err != nil {
			log.Warn().Err(err).Msg("Skipping relay frame")
			continue
		}
		return ev, nil
	}
}

// Close sends a close frame and releases the socket. Safe to call more than
// once and concurrently with Receive.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		err = c.ws.Close()
	})
	return err
}
