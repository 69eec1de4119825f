package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/codeready-toolchain/jobhub/pkg/bus"
	"github.com/codeready-toolchain/jobhub/pkg/metrics"
)

// ConnectionManager tracks live WebSocket clients and streams bus events
// to each of them. Each process has one instance.
type ConnectionManager struct {
	eventBus       *bus.Bus
	metrics        *metrics.Metrics
	writeTimeout   time.Duration
	originPatterns []string

	// Active connections: connection_id → *Connection
	connections map[string]*Connection
	mu          sync.RWMutex
}

// Connection represents a single WebSocket client.
type Connection struct {
	ID   string
	Conn *websocket.Conn
}

// NewConnectionManager creates a connection manager fanning out events from
// the given bus. publicDomainURLs, when non-empty, becomes the allowed
// origin list for upgrades. The metrics handle may be nil.
func NewConnectionManager(eventBus *bus.Bus, m *metrics.Metrics, writeTimeout time.Duration, publicDomainURLs []string) *ConnectionManager {
	return &ConnectionManager{
		eventBus:       eventBus,
		metrics:        m,
		writeTimeout:   writeTimeout,
		originPatterns: originPatterns(publicDomainURLs),
		connections:    make(map[string]*Connection),
	}
}

// originPatterns converts configured public URLs into host patterns for the
// upgrade origin check.
func originPatterns(urls []string) []string {
	patterns := make([]string, 0, len(urls))
	for _, raw := range urls {
		if parsed, err := url.Parse(raw); err == nil && parsed.Host != "" {
			patterns = append(patterns, parsed.Host)
			continue
		}
		patterns = append(patterns, raw)
	}
	return patterns
}

// acceptOptions allows the configured public domains; with none configured
// the origin check is skipped so local and same-host clients can connect.
func (m *ConnectionManager) acceptOptions() *websocket.AcceptOptions {
	if len(m.originPatterns) > 0 {
		return &websocket.AcceptOptions{OriginPatterns: m.originPatterns}
	}
	return &websocket.AcceptOptions{InsecureSkipVerify: true}
}

// handleWS upgrades HTTP connections to WebSocket and delegates to the
// ConnectionManager.
func (s *Server) handleWS(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, s.connManager.acceptOptions())
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	// HandleConnection blocks until the WebSocket closes.
	s.connManager.HandleConnection(c.Request.Context(), conn)
}

// HandleConnection manages the lifecycle of a single WebSocket connection:
// a read loop for client frames and a write loop streaming bus events.
// Either loop ending takes the other down with it; HandleConnection
// returns only after both are done.
func (m *ConnectionManager) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	c := &Connection{
		ID:   uuid.New().String(),
		Conn: conn,
	}
	m.register(c)
	defer m.unregister(c)

	sub := m.eventBus.Subscribe()
	defer sub.Close()

	g, ctx := errgroup.WithContext(parentCtx)
	g.Go(func() error {
		return m.readLoop(ctx, c)
	})
	g.Go(func() error {
		return m.writeLoop(ctx, c, sub)
	})
	if err := g.Wait(); err != nil && websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
		slog.Debug("WebSocket connection ended", "connection_id", c.ID, "error", err)
	}
}

// readLoop consumes client frames until the connection closes. The client
// message language is currently empty, so parsed messages are only logged;
// pings are answered by the transport during Read.
func (m *ConnectionManager) readLoop(ctx context.Context, c *Connection) error {
	for {
		typ, data, err := c.Conn.Read(ctx)
		if err != nil {
			// Connection closed or errored, ends the whole handler.
			return err
		}
		if typ != websocket.MessageText {
			slog.Debug("Ignoring non-text frame", "connection_id", c.ID)
			continue
		}

		var msg bus.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("Invalid WebSocket message",
				"connection_id", c.ID, "error", err)
			continue
		}
		slog.Debug("Client message received",
			"connection_id", c.ID, "client_message", msg.ClientMessage)
	}
}

// writeLoop serialises bus events to text frames. A slow client is bounded
// by the per-write timeout and by its bus queue dropping oldest events.
func (m *ConnectionManager) writeLoop(ctx context.Context, c *Connection, sub *bus.Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-sub.Events():
			if !ok {
				return nil
			}
			data, err := json.Marshal(event)
			if err != nil {
				slog.Error("Failed to marshal event",
					"connection_id", c.ID, "error", err)
				continue
			}
			if err := m.sendRaw(ctx, c, data); err != nil {
				return err
			}
		}
	}
}

// sendRaw sends raw bytes to a single connection with a write timeout.
func (m *ConnectionManager) sendRaw(ctx context.Context, c *Connection, data []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, m.writeTimeout)
	defer cancel()
	return c.Conn.Write(writeCtx, websocket.MessageText, data)
}

// ActiveConnections returns the count of active WebSocket connections.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

func (m *ConnectionManager) register(c *Connection) {
	m.mu.Lock()
	m.connections[c.ID] = c
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.WSOpened()
	}
	slog.Info("WebSocket client connected", "connection_id", c.ID)
}

func (m *ConnectionManager) unregister(c *Connection) {
	m.mu.Lock()
	delete(m.connections, c.ID)
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.WSClosed()
	}
	_ = c.Conn.Close(websocket.StatusNormalClosure, "")
	slog.Info("WebSocket client disconnected", "connection_id", c.ID)
}
