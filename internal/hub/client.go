package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single frame write to a client.
	writeWait = 5 * time.Second
	// pongWait is the read deadline, extended by each pong.
	pongWait = 90 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = 30 * time.Second
	// maxRequestBytes caps one inbound client frame.
	maxRequestBytes = 512 << 10
	// defaultQueueSize is the per-client outbound buffer, in messages.
	defaultQueueSize = 256
)

// Client is one connected UI subscriber. Its context is cancelled on
// disconnect; the router uses that to discard late request results.
type Client struct {
	ID string

	hub  *Hub
	conn *websocket.Conn

	mu    sync.Mutex
	queue *sendQueue
	// wake nudges the write pump; capacity one so enqueues never block.
	wake chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn, queueSize int) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		ID:     uuid.NewString(),
		hub:    hub,
		conn:   conn,
		queue:  newSendQueue(queueSize),
		wake:   make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Context is cancelled when the client disconnects.
func (c *Client) Context() context.Context {
	return c.ctx
}

// Send marshals one message addressed to this client alone, stamping the
// next sequence number. Used for request results and the initial snapshot.
func (c *Client) Send(msgType string, payload interface{}) {
	env := Envelope{Type: msgType, Seq: c.hub.nextSeq(), Payload: payload}
	data, err := json.Marshal(env)
	if err != nil {
		slog.Error("[hub] marshal message", "type", msgType, "error", err)
		return
	}
	c.enqueue(outMessage{msgType: msgType, class: classify(msgType), data: data})
}

// enqueue applies the backpressure policy and wakes the write pump. A wedged
// queue disconnects the client.
func (c *Client) enqueue(m outMessage) {
	c.mu.Lock()
	queued, ok := c.queue.push(m)
	c.mu.Unlock()

	if !ok {
		slog.Warn("[hub] client queue wedged, disconnecting", "client", c.ID, "type", m.msgType)
		c.hub.removeClient(c)
		return
	}
	if !queued {
		return // droppable message shed under pressure
	}
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Client) close() {
	c.once.Do(func() {
		c.cancel()
		c.conn.Close()
	})
}

// writePump drains the queue onto the wire and keeps the connection alive
// with pings. Runs until the client context ends or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.hub.removeClient(c)
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.wake:
			for {
				c.mu.Lock()
				m, ok := c.queue.pop()
				c.mu.Unlock()
				if !ok {
					break
				}
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.conn.WriteMessage(websocket.TextMessage, m.data); err != nil {
					return
				}
			}
		}
	}
}

// readPump decodes client requests and hands each to the hub's request
// handler on its own goroutine, so a slow window operation never blocks the
// connection. Runs until the peer closes or errs.
func (c *Client) readPump() {
	defer c.hub.removeClient(c)

	c.conn.SetReadLimit(maxRequestBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("[hub] client read error", "client", c.ID, "error", err)
			}
			return
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil || req.Type == "" {
			slog.Warn("[hub] malformed client request", "client", c.ID, "error", err)
			continue
		}
		if req.RequestID == "" {
			req.RequestID = uuid.NewString()
		}

		handler := c.hub.requestHandler()
		if handler == nil {
			slog.Warn("[hub] request before router wired", "type", req.Type)
			continue
		}
		go handler.Handle(c.ctx, c, req)
	}
}
