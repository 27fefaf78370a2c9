package socket

import (
	"sync"
	"time"

	"colorgame/domain/events"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBuffer     = 64
)

// Client is one websocket connection bound to a player session
type Client struct {
	sessionID string
	conn      *websocket.Conn
	send      chan []byte

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func newClient(sessionID string, conn *websocket.Conn) *Client {
	return &Client{
		sessionID: sessionID,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		done:      make(chan struct{}),
	}
}

// enqueue hands a frame to the writer, dropping it when the buffer is full
func (c *Client) enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}

	select {
	case c.send <- frame:
		return true
	default:
		log.WithField("session_id", c.sessionID).Warn("Dropping message for slow client")
		return false
	}
}

func (c *Client) enqueueEvent(event events.Event) bool {
	frame, err := encode(event)
	if err != nil {
		log.WithField("event", event.Type()).WithError(err).Error("Failed to encode event")
		return false
	}
	return c.enqueue(frame)
}

// Close stops the writer and closes the socket; safe to call more than once
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	_ = c.conn.Close()
}

// readPump delivers inbound frames to handle until the connection fails
func (c *Client) readPump(handle func(c *Client, frame []byte)) {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithField("session_id", c.sessionID).WithError(err).Debug("Websocket read error")
			}
			return
		}
		handle(c, message)
	}
}

// writePump serializes writes and keeps the connection alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.WithField("session_id", c.sessionID).WithError(err).Debug("Websocket write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
