package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/teranos/ctxeng/assemble"
	"github.com/teranos/ctxeng/logger"
)

// WebSocket timeout constants following the gorilla chat example
const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 54 * time.Second

	// Maximum context size accepted in one frame
	maxMessageSize = maxRequestBytes
)

// previewClient is one live-preview websocket connection. Every context
// frame it sends is answered with one preview frame, in order.
type previewClient struct {
	server    *Server
	conn      *websocket.Conn
	send      chan previewResponse
	logger    *zap.SugaredLogger
	closeOnce sync.Once
}

// HandlePreviewWebSocket upgrades to the live preview protocol
func (s *Server) HandlePreviewWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		s.logger.Debugw("Preview upgrade failed", logger.FieldError, err)
		return
	}

	client := &previewClient{
		server: s,
		conn:   conn,
		send:   make(chan previewResponse, MaxClientMessageQueueSize),
		logger: logger.FromContext(r.Context(), s.logger.Named("preview")),
	}
	if !s.registerClient(client) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many clients"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		client.writePump()
	}()
	go func() {
		defer s.wg.Done()
		client.readPump()
	}()
}

func (s *Server) registerClient(c *previewClient) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.clients) >= MaxClients || s.getState() != ServerStateRunning {
		return false
	}
	s.clients[c] = true
	c.logger.Debugw("Preview client connected", logger.FieldCount, len(s.clients))
	return true
}

func (s *Server) unregisterClient(c *previewClient) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

// readPump decodes context frames and queues their previews
func (c *previewClient) readPump() {
	defer func() {
		c.server.unregisterClient(c)
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debugw("Preview connection closed unexpectedly", logger.FieldError, err)
			}
			return
		}

		var ctx assemble.Context
		var frame previewResponse
		if err := json.Unmarshal(data, &ctx); err != nil {
			frame = previewResponse{Text: "Invalid context: " + err.Error(), Empty: true}
		} else {
			frame = preview(ctx)
			frame.Assembled = ""
		}

		select {
		case c.send <- frame:
		default:
			c.logger.Warnw("Preview client too slow, dropping connection")
			return
		}
	}
}

// writePump writes queued previews and keeps the connection alive
func (c *previewClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.server.ctx.Done():
			return
		}
	}
}

// close ends the write pump; safe to call more than once
func (c *previewClient) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}
