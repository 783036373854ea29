// Package socket manages the long-lived push connection to the Commonly
// gateway: connect/reconnect lifecycle, subscription-set tracking and
// replay, and ping/pong liveness. One Connection serves one account.
package socket

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
)

// SocketPath is the push gateway sub-path off the account's base origin.
const SocketPath = "/api/agents/runtime/socket"

const (
	handshakeTimeout = 10 * time.Second
	connectAckWait   = 15 * time.Second
	maxReconnectWait = 30 * time.Second
)

// Status is one connection state transition reported to observers.
type Status struct {
	Connected bool
	Reason    string
	Error     string
}

// EventHandler receives raw events pushed by the gateway.
type EventHandler func(event models.Event)

// StatusHandler observes connection state transitions. All registered
// handlers are invoked for every transition, in registration order.
type StatusHandler func(status Status)

// Config holds the connection settings for one account.
type Config struct {
	AccountID string
	BaseURL   string
	Token     string
}

// Connection is one live push-channel session. The subscription set it
// tracks is the source of truth for what should be subscribed: it is
// mutated optimistically by Subscribe/Unsubscribe and replayed in full after
// every successful (re)connect.
type Connection struct {
	cfg    Config
	logger ectologger.Logger

	onEvent EventHandler

	mu             sync.Mutex
	conn           *websocket.Conn
	connected      bool
	connecting     bool
	subscribed     []string
	statusHandlers []StatusHandler
	lastError      string
	closeReason    string
	stopCh         chan struct{}
	stopped        bool

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

// NewConnection creates a connection for one account. Connect must be
// called to establish it.
func NewConnection(cfg Config, onEvent EventHandler, logger ectologger.Logger) *Connection {
	return &Connection{
		cfg:     cfg,
		logger:  logger,
		onEvent: onEvent,
		stopCh:  make(chan struct{}),
	}
}

// OnStatus registers a status observer. Observers registered before Connect
// see the initial connect transition.
func (c *Connection) OnStatus(handler StatusHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusHandlers = append(c.statusHandlers, handler)
}

// IsConnected reports whether the socket is currently established.
func (c *Connection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// LastError returns the most recent connection error message, if any.
func (c *Connection) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// Subscribed returns a copy of the tracked subscription set.
func (c *Connection) Subscribed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.subscribed))
	copy(out, c.subscribed)
	return out
}

// Connect establishes the push connection. It is a no-op when already
// connected or when another Connect is in flight. It returns once the
// gateway acknowledges the connect (or rejects it); afterwards a background
// loop keeps the connection alive, replaying the full subscription set after
// every reconnect.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected || c.connecting {
		c.mu.Unlock()
		return nil
	}
	if c.stopped {
		c.mu.Unlock()
		return fmt.Errorf("connection for account %s is closed", c.cfg.AccountID)
	}
	c.connecting = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.connecting = false
		c.mu.Unlock()
	}()

	conn, err := c.dial(ctx)
	if err != nil {
		c.mu.Lock()
		c.lastError = err.Error()
		c.mu.Unlock()
		c.notify(Status{Connected: false, Error: err.Error()})
		return err
	}

	c.adopt(conn)
	c.replaySubscriptions()
	c.notify(Status{Connected: true})

	c.wg.Add(1)
	go c.readLoop()

	return nil
}

// Disconnect tears down the socket and releases the handle. The tracked
// subscription set is retained; a fresh Connection is expected for any
// later restart, with subscriptions re-derived from account config.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	close(c.stopCh)
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	metrics.SocketConnected.WithLabelValues(c.cfg.AccountID).Set(0)
	c.wg.Wait()
}

// Subscribe adds pods to the tracked set and, when connected, emits one
// subscribe frame carrying only the ids passed in this call. The tracked
// set is mutated before the wire emit and is not rolled back on emit
// failure.
func (c *Connection) Subscribe(podIDs []string) error {
	if len(podIDs) == 0 {
		return nil
	}

	c.mu.Lock()
	for _, id := range podIDs {
		if !contains(c.subscribed, id) {
			c.subscribed = append(c.subscribed, id)
		}
	}
	connected := c.connected
	c.mu.Unlock()

	if !connected {
		return nil
	}
	return c.send(Frame{Type: FrameSubscribe, PodIDs: podIDs})
}

// Unsubscribe removes pods from the tracked set and, when connected, emits
// one unsubscribe frame carrying only the ids passed in this call.
func (c *Connection) Unsubscribe(podIDs []string) error {
	if len(podIDs) == 0 {
		return nil
	}

	c.mu.Lock()
	kept := c.subscribed[:0]
	for _, id := range c.subscribed {
		if !contains(podIDs, id) {
			kept = append(kept, id)
		}
	}
	c.subscribed = kept
	connected := c.connected
	c.mu.Unlock()

	if !connected {
		return nil
	}
	return c.send(Frame{Type: FrameUnsubscribe, PodIDs: podIDs})
}

// dial opens the websocket and waits for the gateway's connect
// acknowledgment. A connect_error frame (or anything else arriving first)
// rejects the attempt.
func (c *Connection) dial(ctx context.Context) (*websocket.Conn, error) {
	target, err := socketURL(c.cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.cfg.Token)

	conn, _, err := dialer.DialContext(ctx, target, header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial push gateway: %w", err)
	}

	// First frame decides the outcome: connect wins, connect_error loses.
	_ = conn.SetReadDeadline(time.Now().Add(connectAckWait))
	var frame Frame
	if err := conn.ReadJSON(&frame); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("no connect acknowledgment from push gateway: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	switch frame.Type {
	case FrameConnect:
		return conn, nil
	case FrameConnectError:
		_ = conn.Close()
		return nil, fmt.Errorf("push gateway rejected connect: %s", frame.Error)
	default:
		_ = conn.Close()
		return nil, fmt.Errorf("unexpected frame %q before connect acknowledgment", frame.Type)
	}
}

func (c *Connection) adopt(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.lastError = ""
	c.closeReason = ""
	c.mu.Unlock()

	metrics.SocketReconnectsTotal.WithLabelValues(c.cfg.AccountID).Inc()
	metrics.SocketConnected.WithLabelValues(c.cfg.AccountID).Set(1)
}

// replaySubscriptions re-emits the entire tracked set as a single subscribe
// frame. Redundant on a no-op reconnect, but guarantees subscription state
// is never silently lost.
func (c *Connection) replaySubscriptions() {
	ids := c.Subscribed()
	if len(ids) == 0 {
		return
	}
	if err := c.send(Frame{Type: FrameSubscribe, PodIDs: ids}); err != nil {
		c.logger.WithError(err).Warnf("Failed to replay subscriptions for account %s", c.cfg.AccountID)
	}
}

// readLoop reads frames until the connection is torn down, reconnecting
// with backoff whenever the socket drops.
func (c *Connection) readLoop() {
	defer c.wg.Done()

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		var frame Frame
		err := conn.ReadJSON(&frame)
		if err != nil {
			if c.isStopped() {
				return
			}
			c.handleDrop(err)
			if !c.reconnect() {
				return
			}
			continue
		}

		c.handleFrame(frame)
	}
}

func (c *Connection) handleFrame(frame Frame) {
	switch frame.Type {
	case FrameEvent:
		if frame.Event != nil && c.onEvent != nil {
			c.onEvent(*frame.Event)
		}
	case FramePing:
		if err := c.send(Frame{Type: FramePong}); err != nil {
			c.logger.WithError(err).Warnf("Failed to answer ping for account %s", c.cfg.AccountID)
		}
	case FrameDisconnect:
		// The server announces the reason before closing; remember it for
		// the status callback fired when the read fails.
		c.mu.Lock()
		c.closeReason = frame.Reason
		c.mu.Unlock()
	case FrameConnect:
		// Duplicate ack after reconnect; nothing to do.
	default:
		c.logger.Debugf("Ignoring unknown frame type %q for account %s", frame.Type, c.cfg.AccountID)
	}
}

func (c *Connection) handleDrop(err error) {
	c.mu.Lock()
	reason := c.closeReason
	if reason == "" {
		reason = err.Error()
	}
	c.conn = nil
	c.connected = false
	c.lastError = err.Error()
	c.mu.Unlock()

	metrics.SocketConnected.WithLabelValues(c.cfg.AccountID).Set(0)
	c.logger.Warnf("Push connection dropped for account %s: %s", c.cfg.AccountID, reason)
	c.notify(Status{Connected: false, Reason: reason})
}

// reconnect dials with exponential backoff until it succeeds or the
// connection is torn down. Returns false when torn down.
func (c *Connection) reconnect() bool {
	policy := backoff.NewExponentialBackOff()
	policy.MaxInterval = maxReconnectWait

	for {
		wait := policy.NextBackOff()
		select {
		case <-c.stopCh:
			return false
		case <-time.After(wait):
		}

		conn, err := c.dial(context.Background())
		if err != nil {
			c.mu.Lock()
			c.lastError = err.Error()
			c.mu.Unlock()
			c.notify(Status{Connected: false, Error: err.Error()})
			continue
		}

		c.adopt(conn)
		c.replaySubscriptions()
		c.notify(Status{Connected: true})
		return true
	}
}

func (c *Connection) send(frame Frame) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("push connection for account %s is not established", c.cfg.AccountID)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(frame)
}

func (c *Connection) notify(status Status) {
	c.mu.Lock()
	handlers := make([]StatusHandler, len(c.statusHandlers))
	copy(handlers, c.statusHandlers)
	c.mu.Unlock()

	for _, handler := range handlers {
		handler(status)
	}
}

func (c *Connection) isStopped() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

func socketURL(baseURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}

	switch parsed.Scheme {
	case "https":
		parsed.Scheme = "wss"
	case "http":
		parsed.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported base URL scheme %q", parsed.Scheme)
	}

	parsed.Path = strings.TrimRight(parsed.Path, "/") + SocketPath
	parsed.RawQuery = "transport=websocket"
	return parsed.String(), nil
}

func contains(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}
