package http

import (
	"errors"
	"io"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/Wyydra/huddle/internal/adapter/wire"
	"github.com/Wyydra/huddle/internal/core/domain"
	"github.com/Wyydra/huddle/internal/metrics"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Time allowed to write a frame to the client.
const writeWait = 10 * time.Second

var (
	errClientClosed   = errors.New("client closed")
	errSendBufferFull = errors.New("send buffer full")
)

// WSClient is the relay's transport for one browser or CLI connection.
// Send and Ping only enqueue; writePump owns every write to the socket.
type WSClient struct {
	conn *websocket.Conn
	send chan []byte
	ping chan struct{}

	done      chan struct{}
	closeOnce sync.Once
}

func newWSClient(conn *websocket.Conn, buffer int) *WSClient {
	return &WSClient{
		conn: conn,
		send: make(chan []byte, buffer),
		ping: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (c *WSClient) Send(ev domain.Event) error {
	b, err := wire.Encode(ev)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return errClientClosed
	default:
	}

	select {
	case c.send <- b:
		return nil
	default:
		return errSendBufferFull
	}
}

// Ping asks the write pump for a ping frame. A ping still waiting to be
// written satisfies the request.
func (c *WSClient) Ping() error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}

	select {
	case c.ping <- struct{}{}:
	default:
	}
	return nil
}

// Close stops the write pump, which sends a close frame and releases the
// socket. Safe to call more than once.
func (c *WSClient) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *WSClient) writePump() {
	defer func() {
		c.Close()
		c.conn.Close()
	}()

	for {
		select {
		case b := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				log.Debug().Err(err).Msg("Write to client failed")
				return
			}

		case <-c.ping:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Debug().Err(err).Msg("Ping to client failed")
				return
			}

		case <-c.done:
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		}
	}
}

func (h *Handler) newUpgrader() websocket.Upgrader {
	allowed := h.opts.AllowedOrigins
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || slices.Contains(allowed, "*") {
				return true
			}
			return slices.Contains(allowed, origin)
		},
	}
}

// ServeWS upgrades the request and runs the read side of the connection
// until the client leaves or the relay removes it.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}

	client := newWSClient(conn, h.opts.SendBuffer)
	go client.writePump()

	id, err := h.Router.Connect(client, r.URL.Query().Get("displayName"))
	if err != nil {
		client.Close()
		return
	}

	l := log.With().Str("conn_id", id.String()).Logger()
	l.Info().Str("remote_addr", r.RemoteAddr).Msg("New client connected")

	defer func() {
		h.Router.Disconnect(id)
		l.Info().Msg("Client disconnected")
	}()

	// Frames far past the limit are a broken client; close it.
	conn.SetReadLimit(int64(h.opts.MaxMessageBytes) * 4)
	conn.SetPongHandler(func(string) error {
		_ = h.Router.Touch(id)
		return nil
	})

	limiter := rate.NewLimiter(rate.Limit(h.opts.MessagesPerSecond), h.opts.MessageBurst)
	limit := int64(h.opts.MaxMessageBytes)

	for {
		_, reader, err := conn.NextReader()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l.Error().Err(err).Msg("Unexpected close error")
			}
			return
		}

		data, err := io.ReadAll(io.LimitReader(reader, limit+1))
		if err != nil {
			l.Debug().Err(err).Msg("Read from client failed")
			return
		}
		if int64(len(data)) > limit {
			if _, err := io.Copy(io.Discard, reader); err != nil {
				return
			}
			metrics.SignalsDropped.WithLabelValues("too_large").Inc()
			l.Warn().Int64("limit", limit).Msg("Dropping oversized frame")
			continue
		}

		if !limiter.Allow() {
			metrics.SignalsDropped.WithLabelValues("rate_limited").Inc()
			l.Warn().Msg("Dropping frame over rate limit")
			continue
		}

		sig, err := wire.DecodeClient(data)
		if err != nil {
			metrics.SignalsDropped.WithLabelValues("protocol").Inc()
			l.Warn().Err(err).Msg("Dropping undecodable frame")
			continue
		}

		// The router logs and counts its own drops.
		_ = h.Router.Message(id, sig)
	}
}
