package chatsync

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

// ============================================================================
// Configuration
// ============================================================================

// ConnConfig configures a push-channel connection manager.
type ConnConfig struct {
	// BaseURL is the platform origin; the push endpoint is derived from it by
	// swapping the scheme to the websocket equivalent on the same host.
	BaseURL string

	// ReconnectDelay is the fixed wait before each reconnect attempt.
	// There is no backoff growth and no retry ceiling.
	ReconnectDelay time.Duration

	HTTPClient *http.Client
	Logger     zerolog.Logger
}

func (c *ConnConfig) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 3 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
}

// ConnState represents the push-channel connection state.
type ConnState string

const (
	ConnIdle       ConnState = "idle"
	ConnConnecting ConnState = "connecting"
	ConnOpen       ConnState = "open"
	ConnClosed     ConnState = "closed"
)

// ============================================================================
// Frame Dispatcher
// ============================================================================

type frameDispatcher struct {
	mu             sync.RWMutex
	onChatMessage  []func(Frame)
	onConnected    []func()
	onDisconnected []func(error)
}

// dispatch invokes handlers synchronously on the read goroutine. Handlers
// must not block; frame payloads are informational only.
func (d *frameDispatcher) dispatch(f Frame) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if f.Type == FrameChatMessage {
		for _, h := range d.onChatMessage {
			h(f)
		}
	}
}

func (d *frameDispatcher) emitConnected() {
	d.mu.RLock()
	handlers := append([]func(){}, d.onConnected...)
	d.mu.RUnlock()
	for _, h := range handlers {
		h()
	}
}

func (d *frameDispatcher) emitDisconnected(err error) {
	d.mu.RLock()
	handlers := append([]func(error){}, d.onDisconnected...)
	d.mu.RUnlock()
	for _, h := range handlers {
		h(err)
	}
}

// ============================================================================
// ConnManager
// ============================================================================

// ConnManager owns at most one live push-channel connection for a participant
// identity. It is an explicit resource: construct one per active session and
// call Disconnect on logout. The zero connection state is idle; Connect opens
// the channel and registers the identity, and every drop is retried after a
// fixed delay for as long as the reconnect flag holds.
//
// The channel carries notifications only. All application state changes go
// through the mutation gateway, so a dropped frame costs staleness bounded by
// the coordinator's pull timer, never data loss.
type ConnManager struct {
	id         string
	cfg        ConnConfig
	log        zerolog.Logger
	dispatcher *frameDispatcher

	mu              sync.Mutex
	identity        Identity
	state           ConnState
	conn            *websocket.Conn
	shouldReconnect bool
	reconnectTimer  *time.Timer
	cancelRead      context.CancelFunc
}

// NewConnManager creates a manager for the given identity. The identity may
// be zero if not yet resolved; Connect is a no-op until it is set.
func NewConnManager(identity Identity, cfg ConnConfig) *ConnManager {
	cfg.defaults()
	id := uuid.NewString()
	return &ConnManager{
		id:              id,
		cfg:             cfg,
		log:             cfg.Logger.With().Str("component", "push").Str("conn", id).Logger(),
		dispatcher:      &frameDispatcher{},
		identity:        identity,
		state:           ConnIdle,
		shouldReconnect: true,
	}
}

// OnChatMessage registers a handler for inbound chat_message frames.
func (m *ConnManager) OnChatMessage(h func(Frame)) {
	m.dispatcher.mu.Lock()
	m.dispatcher.onChatMessage = append(m.dispatcher.onChatMessage, h)
	m.dispatcher.mu.Unlock()
}

// OnConnected registers a handler invoked after each successful open,
// including reconnects.
func (m *ConnManager) OnConnected(h func()) {
	m.dispatcher.mu.Lock()
	m.dispatcher.onConnected = append(m.dispatcher.onConnected, h)
	m.dispatcher.mu.Unlock()
}

// OnDisconnected registers a handler invoked when an open channel drops.
// It does not fire for an explicit Disconnect.
func (m *ConnManager) OnDisconnected(h func(error)) {
	m.dispatcher.mu.Lock()
	m.dispatcher.onDisconnected = append(m.dispatcher.onDisconnected, h)
	m.dispatcher.mu.Unlock()
}

// State returns the current connection state.
func (m *ConnManager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Identity returns the identity the channel is (or will be) registered under.
func (m *ConnManager) Identity() Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

// Connect opens the push channel and sends the registration frame. It is a
// no-op when the channel is already open or opening, and when the identity is
// not yet resolved. Failures are logged, never returned: the only externally
// observable effect of a failed attempt is the reconnect cycle.
func (m *ConnManager) Connect(ctx context.Context) {
	m.mu.Lock()
	if m.state == ConnOpen || m.state == ConnConnecting {
		m.mu.Unlock()
		return
	}
	if m.identity.IsZero() {
		m.mu.Unlock()
		m.log.Warn().Msg("connect before identity resolved, ignoring")
		return
	}
	identity := m.identity
	m.state = ConnConnecting
	m.mu.Unlock()

	conn, resp, err := websocket.Dial(ctx, m.pushURL(), &websocket.DialOptions{
		HTTPClient: m.cfg.HTTPClient,
	})
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		m.log.Warn().Err(err).Msg("push channel dial failed")
		m.retryLater()
		return
	}

	// Disconnect may have raced the dial; a torn-down manager must not
	// register.
	m.mu.Lock()
	if m.state != ConnConnecting {
		m.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "superseded")
		return
	}
	m.mu.Unlock()

	data, err := RegisterFrame(identity).Encode()
	if err == nil {
		err = conn.Write(ctx, websocket.MessageText, data)
	}
	if err != nil {
		m.log.Warn().Err(err).Msg("push channel registration failed")
		conn.Close(websocket.StatusAbnormalClosure, "registration failed")
		m.retryLater()
		return
	}

	readCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	if m.state != ConnConnecting {
		m.mu.Unlock()
		cancel()
		conn.Close(websocket.StatusNormalClosure, "superseded")
		return
	}
	m.conn = conn
	m.state = ConnOpen
	m.cancelRead = cancel
	m.mu.Unlock()

	m.log.Info().
		Str("user_id", identity.UserID).
		Str("user_type", string(identity.Kind)).
		Msg("push channel open")

	m.dispatcher.emitConnected()
	go m.readLoop(readCtx, conn)
}

// Disconnect tears the channel down: it clears the reconnect flag, cancels
// any pending reconnect timer, detaches the read loop so late callbacks never
// fire, and closes the socket. Idempotent.
func (m *ConnManager) Disconnect() {
	m.mu.Lock()
	m.shouldReconnect = false
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	if m.cancelRead != nil {
		m.cancelRead()
		m.cancelRead = nil
	}
	conn := m.conn
	m.conn = nil
	m.state = ConnIdle
	m.mu.Unlock()

	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "client disconnect")
		m.log.Info().Msg("push channel closed by client")
	}
}

// Reconnect re-arms the reconnect flag and opens a fresh channel. Used to
// recover after an explicit identity change.
func (m *ConnManager) Reconnect(ctx context.Context) {
	m.mu.Lock()
	m.shouldReconnect = true
	m.mu.Unlock()
	m.Connect(ctx)
}

// SetIdentity switches the registered identity. The existing channel, if any,
// is torn down and a fresh one opened: connections are never migrated between
// identities.
func (m *ConnManager) SetIdentity(ctx context.Context, identity Identity) {
	m.mu.Lock()
	if identity == m.identity {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.Disconnect()

	m.mu.Lock()
	m.identity = identity
	m.mu.Unlock()

	m.Reconnect(ctx)
}

// SendFrame is fire-and-forget: the frame is silently dropped when the
// channel is not open. There is no queuing and no delivery guarantee; all
// meaningful state changes go through the mutation gateway instead.
func (m *ConnManager) SendFrame(f Frame) {
	m.mu.Lock()
	conn := m.conn
	open := m.state == ConnOpen
	m.mu.Unlock()

	if !open || conn == nil {
		m.log.Debug().Str("kind", string(f.Type)).Msg("push channel not open, frame dropped")
		return
	}

	data, err := f.Encode()
	if err != nil {
		m.log.Warn().Err(err).Msg("push frame encode failed")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		m.log.Warn().Err(err).Str("kind", string(f.Type)).Msg("push frame write failed")
	}
}

// ============================================================================
// Internals
// ============================================================================

func (m *ConnManager) pushURL() string {
	u := strings.Replace(m.cfg.BaseURL, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	return u + "/ws"
}

func (m *ConnManager) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				// Explicit disconnect already handled teardown.
				return
			}
			m.log.Warn().Err(err).Msg("push channel lost")
			m.connectionLost(err)
			return
		}

		frame, err := DecodeFrame(data)
		if err != nil {
			// Malformed frames never affect connection state.
			m.log.Warn().Err(err).Msg("discarding malformed push frame")
			continue
		}
		m.dispatcher.dispatch(frame)
	}
}

func (m *ConnManager) connectionLost(err error) {
	m.mu.Lock()
	if m.state == ConnIdle {
		m.mu.Unlock()
		return
	}
	m.state = ConnClosed
	m.conn = nil
	if m.cancelRead != nil {
		m.cancelRead()
		m.cancelRead = nil
	}
	m.mu.Unlock()

	m.dispatcher.emitDisconnected(err)
	m.retryLater()
}

// retryLater arms a single fixed-delay reconnect attempt. The flag is checked
// again when the timer fires so a Disconnect issued during the wait wins.
func (m *ConnManager) retryLater() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.shouldReconnect || m.reconnectTimer != nil {
		return
	}
	if m.state != ConnIdle {
		m.state = ConnClosed
	}
	m.reconnectTimer = time.AfterFunc(m.cfg.ReconnectDelay, func() {
		m.mu.Lock()
		m.reconnectTimer = nil
		if !m.shouldReconnect {
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()
		m.Connect(context.Background())
	})
}
