// Package channel owns exactly one live WebSocket connection to the
// platform's realtime endpoint and its reconnection policy. The state,
// retry timer, and socket are explicit fields guarded by one mutex, so the
// cancellation invariant (disconnect kills both the socket and any pending
// reconnect) holds by construction rather than by convention.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// State is the lifecycle position of the channel.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// CloseAccessDenied is the application close code the backend sends when it
// rejects the client's credential. Reconnecting would just hammer a server
// that deliberately turned us away.
const CloseAccessDenied = 4003

// Config holds the channel's connection settings.
type Config struct {
	// Endpoint is the WebSocket URL without the credential, e.g.
	// wss://host/ws/notifications. The token is appended as a single
	// url-encoded "token" query parameter (the raw token, not
	// "Bearer <token>" — the backend contract here expects the bare value).
	Endpoint string
	// ConnectTimeout caps a single connection attempt. An attempt that
	// exceeds it counts as a failed dial and follows the retry policy.
	ConnectTimeout time.Duration
	// Backoff is the reconnect delay policy.
	Backoff Backoff
}

// Channel manages one logical realtime connection: open, authenticate,
// receive, send, detect failure, reconnect.
type Channel struct {
	mu sync.Mutex

	cfg    Config
	dialer Dialer
	token  string

	state      State
	conn       Conn
	retryTimer *time.Timer
	connecting bool
	attempts   int
	// gen invalidates callbacks from connections that were already torn
	// down: each dial and each disconnect bumps it.
	gen int

	closeCode   int
	closeReason string

	onConnect    func()
	onDisconnect func(code int, reason string)
	onFrame      func(data []byte)

	logger *slog.Logger
}

// Option configures a Channel.
type Option func(*Channel)

// WithDialer overrides the transport factory. Tests use scripted dialers.
func WithDialer(d Dialer) Option {
	return func(c *Channel) {
		c.dialer = d
	}
}

// OnConnect registers a callback fired when the transport opens.
func OnConnect(fn func()) Option {
	return func(c *Channel) {
		c.onConnect = fn
	}
}

// OnDisconnect registers a callback fired when the transport closes.
func OnDisconnect(fn func(code int, reason string)) Option {
	return func(c *Channel) {
		c.onDisconnect = fn
	}
}

// OnFrame registers the callback receiving each inbound frame, in arrival
// order.
func OnFrame(fn func(data []byte)) Option {
	return func(c *Channel) {
		c.onFrame = fn
	}
}

// New creates a channel. It stays Idle until Connect is called with a
// credential available.
func New(cfg Config, token string, opts ...Option) *Channel {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.Backoff.InitialDelay <= 0 {
		cfg.Backoff = DefaultBackoff()
	}

	c := &Channel{
		cfg:    cfg,
		token:  token,
		state:  StateIdle,
		logger: slog.Default().With("service", "channel"),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.dialer == nil {
		c.dialer = NewDialer(cfg.ConnectTimeout)
	}

	return c
}

// State returns the current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastClose returns the most recent transport-reported closure metadata.
func (c *Channel) LastClose() (code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode, c.closeReason
}

// Connect starts a connection attempt if a credential is available and no
// attempt is already in flight.
func (c *Channel) Connect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectLocked()
}

// connectLocked transitions Idle/Closed → Connecting. The in-flight flag
// prevents duplicate concurrent attempts.
func (c *Channel) connectLocked() {
	if c.token == "" {
		c.logger.Debug("No credential available, staying idle")
		c.state = StateIdle
		return
	}
	if c.connecting || c.state == StateOpen {
		c.logger.Debug("Connection attempt already in flight, skipping", "state", c.state)
		return
	}

	c.state = StateConnecting
	c.connecting = true
	c.gen++

	go c.dial(c.gen, c.endpointURL(c.token))
}

// dial runs the connection attempt off the caller's goroutine.
func (c *Channel) dial(gen int, endpoint string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	defer cancel()

	conn, err := c.dialer.Dial(ctx, endpoint)

	c.mu.Lock()
	if gen != c.gen || c.state != StateConnecting {
		// The channel moved on while we were dialing (disconnect or a
		// newer attempt). Discard this connection.
		c.mu.Unlock()
		if err == nil {
			conn.Close()
		}
		return
	}
	c.connecting = false

	if err != nil {
		c.logger.Warn("Connection attempt failed", "error", err)
		c.state = StateClosed
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		return
	}

	c.conn = conn
	c.state = StateOpen
	c.attempts = 0
	onConnect := c.onConnect
	c.mu.Unlock()

	c.logger.Info("Channel connected")
	if onConnect != nil {
		onConnect()
	}

	go c.readLoop(gen, conn)
}

// readLoop pumps inbound frames to the frame callback until the transport
// reports an error or closure.
func (c *Channel) readLoop(gen int, conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(gen, err)
			return
		}
		if c.onFrame != nil {
			c.onFrame(data)
		}
	}
}

// handleClose processes a transport closure. Reconnect is suppressed for
// normal closure and access-denied codes; every other closure schedules a
// single retry. Transport errors never reach here on their own — only the
// read loop's terminal error does, so close and error can't both schedule a
// reconnect.
func (c *Channel) handleClose(gen int, err error) {
	code, reason := closeInfo(err)

	c.mu.Lock()
	if gen != c.gen {
		// A disconnect or newer connection already superseded this one.
		c.mu.Unlock()
		return
	}

	c.conn = nil
	c.state = StateClosed
	c.closeCode = code
	c.closeReason = reason
	onDisconnect := c.onDisconnect

	if shouldReconnect(code) {
		c.scheduleReconnectLocked()
	} else {
		c.logger.Info("Closure indicates the server does not want us back, not reconnecting",
			"code", code, "reason", reason)
	}
	c.mu.Unlock()

	c.logger.Info("Channel disconnected", "code", code, "reason", reason)
	if onDisconnect != nil {
		onDisconnect(code, reason)
	}
}

// scheduleReconnectLocked arms the retry timer. At most one timer exists at
// any moment; together with the in-flight flag this guarantees no more than
// one pending connection attempt.
func (c *Channel) scheduleReconnectLocked() {
	if c.retryTimer != nil {
		return
	}

	c.attempts++
	if c.cfg.Backoff.MaxAttempts > 0 && c.attempts > c.cfg.Backoff.MaxAttempts {
		c.logger.Error("Giving up after max reconnect attempts", "attempts", c.attempts-1)
		return
	}

	delay := c.cfg.Backoff.Delay(c.attempts)
	c.logger.Info("Scheduling reconnect", "attempt", c.attempts, "delay", delay)

	c.retryTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.retryTimer = nil
		if c.state == StateClosed {
			c.connectLocked()
		}
	})
}

// Disconnect tears the channel down: the pending reconnect timer is
// cancelled, the socket (if any) is closed, and the in-flight flag is
// cleared. This is the only path to a terminal, non-retrying Idle state.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	c.connecting = false
	c.attempts = 0
	c.gen++
	conn := c.conn
	c.conn = nil
	wasOpen := c.state == StateOpen
	c.state = StateClosing
	onDisconnect := c.onDisconnect
	c.mu.Unlock()

	if conn != nil {
		// Best-effort close handshake before dropping the socket.
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect"))
		conn.Close()
	}

	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()

	if wasOpen && onDisconnect != nil {
		onDisconnect(websocket.CloseNormalClosure, "client disconnect")
	}
}

// SetCredential updates the channel's credential. Clearing it disconnects;
// a new value tears down any session authenticated with the old token and
// starts a fresh connect sequence.
func (c *Channel) SetCredential(token string) {
	c.mu.Lock()
	old := c.token
	c.token = token
	c.mu.Unlock()

	if token == old {
		return
	}

	if token == "" {
		c.logger.Info("Credential cleared, disconnecting")
		c.Disconnect()
		return
	}

	c.logger.Info("Credential rotated, reconnecting")
	c.Disconnect()
	c.Connect()
}

// Send serializes v as JSON and transmits it. When the channel is not Open
// it is a no-op with a diagnostic: send never queues or blocks waiting for
// a connection.
func (c *Channel) Send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateOpen || c.conn == nil {
		c.logger.Debug("Send skipped, channel not open", "state", c.state)
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// endpointURL appends the credential as a url-encoded query parameter.
func (c *Channel) endpointURL(token string) string {
	sep := "?"
	if strings.Contains(c.cfg.Endpoint, "?") {
		sep = "&"
	}
	return c.cfg.Endpoint + sep + "token=" + url.QueryEscape(token)
}

// closeInfo extracts the close code and reason from a read error. Anything
// that is not a proper close frame counts as an abnormal closure (1006).
func closeInfo(err error) (int, string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	return websocket.CloseAbnormalClosure, err.Error()
}

// shouldReconnect implements the close-code policy: normal closure and
// access-denied suppress reconnection, everything else retries.
func shouldReconnect(code int) bool {
	return code != websocket.CloseNormalClosure && code != CloseAccessDenied
}
