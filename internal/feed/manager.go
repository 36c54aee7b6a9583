// Package feed owns the live channel to the complaint event feed: one
// websocket connection at a time, kept alive indefinitely under server
// restarts and transient network failures via capped exponential backoff
// with jitter.
package feed

import (
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/civicgrid/complaintd/internal/connstate"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultBackoffBase      = 500 * time.Millisecond
	defaultBackoffCap       = 15 * time.Second
	defaultJitterMax        = 400 * time.Millisecond

	writeWait      = 10 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 1 << 20
)

// subscribeMsg is the handshake sent once per successful connection.
type subscribeMsg struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

// Handler receives every normalized event read off the feed.
type Handler func(Event)

// Config parameterizes a Manager.
type Config struct {
	// URL is the ws:// or wss:// feed endpoint.
	URL string
	// Token, when set, is sent as a bearer Authorization header on dial.
	Token string
	// HandshakeTimeout bounds the dial so a hung handshake cannot block
	// reconnection. Zero selects the default.
	HandshakeTimeout time.Duration
	// BackoffBase, BackoffCap and JitterMax shape the reconnect delay:
	// min(BackoffCap, BackoffBase<<attempt) + random(0..JitterMax).
	BackoffBase time.Duration
	BackoffCap  time.Duration
	JitterMax   time.Duration
}

func (c *Config) fillDefaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = defaultBackoffBase
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = defaultBackoffCap
	}
	if c.JitterMax < 0 {
		c.JitterMax = 0
	}
}

// Manager maintains at most one live feed connection. Retries continue
// forever with capped backoff; there is no give-up budget, the snapshot
// simply goes stale until the feed returns.
type Manager struct {
	cfg     Config
	state   *connstate.Machine
	handler Handler
	logger  *zap.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	retryTimer *time.Timer
	closed     bool
}

// NewManager creates a manager. handler receives normalized events;
// malformed feed messages are dropped before it is called.
func NewManager(cfg Config, state *connstate.Machine, handler Handler, logger *zap.Logger) *Manager {
	cfg.fillDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{cfg: cfg, state: state, handler: handler, logger: logger}
}

// Connect opens the feed channel. It is a no-op while a connection attempt
// or an open connection exists; a pending retry timer is cancelled and the
// attempt made immediately.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.closed || m.state.Current() != connstate.Disconnected {
		m.mu.Unlock()
		return
	}
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	_ = m.state.Transition(connstate.Connecting)
	m.mu.Unlock()

	go m.dial()
}

// Shutdown tears the channel down for good: the pending retry timer is
// cancelled, the connection is closed with a normal-closure code so the
// server does not log an abnormal disconnect, and no further reconnect
// attempts occur even if a buffered event fires afterwards.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	if m.conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = m.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = m.conn.Close()
		m.conn = nil
	}
	if m.state.Current() != connstate.Disconnected {
		_ = m.state.Transition(connstate.Disconnected)
	}
	m.logger.Info("feed shut down")
}

func (m *Manager) dial() {
	dialer := websocket.Dialer{HandshakeTimeout: m.cfg.HandshakeTimeout}
	header := http.Header{}
	if m.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+m.cfg.Token)
	}

	conn, _, err := dialer.Dial(m.cfg.URL, header)
	if err != nil {
		m.logger.Warn("feed dial failed", zap.String("url", m.cfg.URL), zap.Error(err))
		m.onDisconnect(nil)
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	m.conn = conn
	_ = m.state.Transition(connstate.Connected)
	m.mu.Unlock()

	conn.SetReadLimit(maxMessageSize)

	if err := conn.WriteJSON(subscribeMsg{Type: "subscribe", Channel: "complaints"}); err != nil {
		m.logger.Warn("subscribe handshake failed", zap.Error(err))
		m.onDisconnect(conn)
		return
	}

	m.logger.Info("feed connected", zap.String("url", m.cfg.URL))
	go m.pingLoop(conn)
	m.readLoop(conn)
}

// readLoop consumes the connection until it errors. Messages that fail to
// normalize are dropped; a single bad payload must never take the pipeline
// down.
func (m *Manager) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.logger.Warn("feed read error", zap.Error(err))
			}
			m.onDisconnect(conn)
			return
		}

		evt, err := Normalize(raw)
		if err != nil {
			m.logger.Debug("dropping feed message", zap.Error(err))
			continue
		}
		if m.isClosed() {
			return
		}
		m.handler(evt)
	}
}

func (m *Manager) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for range ticker.C {
		m.mu.Lock()
		stale := m.conn != conn
		m.mu.Unlock()
		if stale {
			return
		}
		if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
			return
		}
	}
}

// onDisconnect handles a close or error on the given connection (nil for a
// failed dial): transition to disconnected and schedule the next attempt,
// unless the manager was shut down or the event belongs to a superseded
// connection.
func (m *Manager) onDisconnect(conn *websocket.Conn) {
	m.mu.Lock()
	if m.closed || (conn != nil && m.conn != conn) {
		m.mu.Unlock()
		return
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	if m.state.Current() != connstate.Disconnected {
		_ = m.state.Transition(connstate.Disconnected)
	}

	attempt := m.state.Attempt()
	delay := reconnectDelay(m.cfg, attempt)
	m.state.BumpAttempt()

	m.retryTimer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		m.retryTimer = nil
		m.mu.Unlock()
		m.Connect()
	})
	m.mu.Unlock()

	m.logger.Info("feed disconnected, reconnect scheduled",
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay))
}

// reconnectDelay computes min(cap, base<<attempt) + jitter. The shift is
// clamped so a long outage cannot overflow the duration.
func reconnectDelay(cfg Config, attempt int) time.Duration {
	if attempt > 30 {
		attempt = 30
	}
	delay := cfg.BackoffBase << uint(attempt)
	if delay > cfg.BackoffCap || delay <= 0 {
		delay = cfg.BackoffCap
	}
	if cfg.JitterMax > 0 {
		delay += rand.N(cfg.JitterMax)
	}
	return delay
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
