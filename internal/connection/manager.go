package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the system clock used for reconnect and liveness timers.
func WithClock(c Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithRandom replaces the jitter source. fn must return values in [0, 1).
func WithRandom(fn func() float64) Option {
	return func(m *Manager) {
		m.random = fn
	}
}

// WithNetworkCheck sets a connectivity check that Connect consults before opening.
func WithNetworkCheck(fn func(ctx context.Context) bool) Option {
	return func(m *Manager) {
		m.netCheck = fn
	}
}

// Manager owns one logical persistent connection. Construct one per process with
// NewManager, share it by reference, and call Close at shutdown.
//
// All state lives behind mu. mu is never held across Transport.Open, Conn.Close or
// listener calls.
type Manager struct {
	cfg       ManagerConfig
	transport Transport
	logger    *slog.Logger
	clock     Clock
	random    func() float64
	netCheck  func(context.Context) bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	listeners listenerSet

	mu             sync.Mutex
	mc             machine
	conn           Conn
	gen            uint64 // bumped per open and per disconnect; stale callbacks are ignored
	sessionID      uuid.UUID
	connErr        error
	last           *Envelope
	reconnectTimer Timer
	reconnectSeq   uint64
	probeTimer     Timer
	probeSeq       uint64
	closed         bool

	sent           atomic.Int64
	received       atomic.Int64
	parseErrors    atomic.Int64
	listenerErrors atomic.Int64
	reconnects     atomic.Int64
}

// NewManager creates a Connection Manager in the Disconnected state.
func NewManager(cfg ManagerConfig, transport Transport, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		cfg:       cfg,
		transport: transport,
		logger:    logger,
		clock:     systemClock{},
		random:    rand.Float64,
		mc:        newMachine(cfg.MaxAttempts),
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// followUp holds work that must run after mu is released.
type followUp struct {
	open  bool
	calls []func()
}

func (f followUp) run() {
	for _, call := range f.calls {
		call()
	}
}

// dispatchLocked feeds ev through the state machine and performs its effects.
// Must be called with mu held.
func (m *Manager) dispatchLocked(ev event) followUp {
	prev := m.mc
	next, effects := step(m.mc, ev)
	m.mc = next

	if prev.state != next.state {
		m.logger.Debug("state changed", "from", prev.state, "to", next.state)
	}

	var f followUp
	scheduled := false

	for _, e := range effects {
		switch e.kind {
		case effOpen:
			m.gen++
			f.open = true

		case effCloseConn:
			m.gen++
			m.sessionID = uuid.Nil
			if conn := m.conn; conn != nil {
				m.conn = nil
				f.calls = append(f.calls, func() {
					if err := conn.Close(CloseNormal, "client disconnect"); err != nil {
						m.logger.Debug("close failed", "error", err)
					}
				})
			}

		case effStartProbe:
			m.startProbeLocked()

		case effStopProbe:
			m.stopProbeLocked()

		case effScheduleReconnect:
			m.scheduleReconnectLocked(e.attempt)
			scheduled = true

		case effCancelReconnect:
			m.cancelReconnectLocked()

		case effTriggerConnect:
			if m.closed {
				continue
			}
			trigger := "network_restored"
			if ev.kind == evAppState {
				trigger = "app_active"
			}
			seq := m.reconnectSeq
			m.wg.Add(1)
			f.calls = append(f.calls, func() {
				go m.triggeredConnect(trigger, seq)
			})

		case effRecordError:
			m.connErr = e.err

		case effClearError:
			m.connErr = nil
		}
	}

	abnormal := ev.kind == evOpenFailed || (ev.kind == evClosed && ev.code != CloseNormal)
	if abnormal && !scheduled && prev.state != StateDisconnected && next.attempts >= next.maxAttempts {
		m.logger.Warn("reconnect attempts exhausted, waiting for network or foreground",
			"attempts", next.attempts,
		)
	}

	return f
}

// Connect opens the connection. It returns nil at once when already connected or
// connecting, ErrNetworkUnavailable without opening when offline, and otherwise blocks
// until the Transport reports open or fails.
func (m *Manager) Connect(ctx context.Context) error {
	return m.connect(ctx, nil)
}

// connect implements Connect. A non-nil still is called with mu held after the network
// check; when it reports false the connect is abandoned with ErrConnectSuperseded.
func (m *Manager) connect(ctx context.Context, still func() bool) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.mc.state != StateDisconnected {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if m.netCheck != nil {
		online := m.netCheck(ctx)
		m.mu.Lock()
		// The caller is connecting already, so a restored-network trigger is dropped.
		m.mc, _ = step(m.mc, event{kind: evNetwork, online: online})
		m.mu.Unlock()
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if still != nil && !still() {
		m.mu.Unlock()
		return ErrConnectSuperseded
	}
	if m.mc.state == StateDisconnected && !m.mc.online {
		m.mu.Unlock()
		m.logger.Warn("connect skipped, network unavailable", "url", m.cfg.URL)
		return ErrNetworkUnavailable
	}

	f := m.dispatchLocked(event{kind: evConnect})
	if !f.open {
		m.mu.Unlock()
		f.run()
		return nil
	}
	gen := m.gen
	m.mu.Unlock()
	f.run()

	m.logger.Info("connecting", "url", m.cfg.URL)
	conn, err := m.transport.Open(ctx, m.cfg.URL, &connHandler{m: m, gen: gen})

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		if conn != nil {
			conn.Close(CloseNormal, "superseded")
		}
		return ErrConnectSuperseded
	}

	if err != nil {
		f := m.dispatchLocked(event{kind: evOpenFailed, err: err})
		m.mu.Unlock()
		f.run()
		m.logger.Warn("connect failed", "url", m.cfg.URL, "error", err)
		return fmt.Errorf("open %s: %w", m.cfg.URL, err)
	}

	if m.mc.state != StateConnecting {
		// The close arrived before Open returned and has been handled.
		m.mu.Unlock()
		return ErrConnectionLost
	}

	m.conn = conn
	m.sessionID = uuid.New()
	session := m.sessionID.String()
	f = m.dispatchLocked(event{kind: evOpened})
	m.mu.Unlock()
	f.run()

	m.logger.Info("connected", "url", m.cfg.URL, "session_id", session)
	return nil
}

// Disconnect closes the connection with CloseNormal and cancels the reconnect and
// liveness timers. No timer scheduled before the call fires after it returns.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	prev := m.mc.state
	f := m.dispatchLocked(event{kind: evDisconnect})
	m.mu.Unlock()
	f.run()

	if prev != StateDisconnected {
		m.logger.Info("disconnected", "url", m.cfg.URL)
	}
}

// Reconnect drops the current connection and connects again.
func (m *Manager) Reconnect(ctx context.Context) error {
	m.Disconnect()
	return m.Connect(ctx)
}

// Close tears the Manager down. It is not usable afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.Disconnect()
	m.wg.Wait()

	m.logger.Info("connection manager closed")
}

// Send stamps and writes an envelope. It returns false, without writing, unless the
// Manager is connected.
func (m *Manager) Send(msgType string, payload any) bool {
	m.mu.Lock()
	state, conn := m.mc.state, m.conn
	m.mu.Unlock()

	if state != StateConnected || conn == nil {
		m.logger.Warn("cannot send, not connected", "type", msgType, "state", state)
		return false
	}

	env, err := NewEnvelope(msgType, payload, m.clock.Now())
	if err != nil {
		m.logger.Warn("cannot send, bad payload", "type", msgType, "error", err)
		return false
	}

	data, err := json.Marshal(env)
	if err != nil {
		m.logger.Warn("cannot send, encode failed", "type", msgType, "error", err)
		return false
	}

	if err := conn.Send(data); err != nil {
		m.logger.Warn("send failed", "type", msgType, "error", err)
		return false
	}

	m.sent.Add(1)
	return true
}

// SendLocation sends a "location" envelope.
func (m *Manager) SendLocation(lat, lon float64) bool {
	return m.Send(TypeLocation, LocationPayload{Latitude: lat, Longitude: lon})
}

// NotifyPhotoCapture sends a "photo_capture" envelope.
func (m *Manager) NotifyPhotoCapture(photoID any, metadata map[string]any) bool {
	return m.Send(TypePhotoCapture, PhotoCapturePayload{PhotoID: photoID, Metadata: metadata})
}

// HandleNetworkChange records reachability. A change from offline to online while
// disconnected starts a connect.
func (m *Manager) HandleNetworkChange(online bool) {
	m.mu.Lock()
	f := m.dispatchLocked(event{kind: evNetwork, online: online})
	m.mu.Unlock()

	m.logger.Info("network changed", "online", online)
	f.run()
}

// HandleAppStateChange records the app lifecycle state. Returning to active while
// disconnected starts a connect.
func (m *Manager) HandleAppStateChange(state AppState) {
	m.mu.Lock()
	f := m.dispatchLocked(event{kind: evAppState, app: state})
	m.mu.Unlock()

	m.logger.Info("app state changed", "state", state)
	f.run()
}

// AddListener registers l. Adding the same listener twice has no further effect.
// l must be of a comparable type, such as a pointer or one returned by NewListener.
func (m *Manager) AddListener(l Listener) {
	if !isComparable(l) {
		m.logger.Error("listener ignored, type is not comparable", "type", fmt.Sprintf("%T", l))
		return
	}
	m.listeners.add(l)
}

// RemoveListener unregisters l. Removing an unknown listener is a no-op.
func (m *Manager) RemoveListener(l Listener) {
	if !isComparable(l) {
		return
	}
	m.listeners.remove(l)
}

// OnMessage registers fn and returns a function that unregisters it.
func (m *Manager) OnMessage(fn func(Envelope)) (remove func()) {
	l := NewListener(func(env Envelope) error {
		fn(env)
		return nil
	})
	m.AddListener(l)
	return func() { m.RemoveListener(l) }
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mc.state
}

// IsConnected reports whether the state is Connected.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// IsConnecting reports whether the state is Connecting.
func (m *Manager) IsConnecting() bool {
	return m.State() == StateConnecting
}

// LastMessage returns the most recent inbound envelope.
func (m *Manager) LastMessage() (Envelope, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return Envelope{}, false
	}
	return *m.last, true
}

// ConnectionError returns the error of the last failed open, cleared by the next connect.
func (m *Manager) ConnectionError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connErr
}

// Attempts returns the number of reconnects scheduled since the last successful open.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mc.attempts
}

// Stats returns current statistics.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	s := Stats{
		State:    m.mc.state,
		Attempts: m.mc.attempts,
	}
	if m.sessionID != uuid.Nil {
		s.SessionID = m.sessionID.String()
	}
	m.mu.Unlock()

	s.MessagesSent = m.sent.Load()
	s.MessagesReceived = m.received.Load()
	s.ParseErrors = m.parseErrors.Load()
	s.ListenerErrors = m.listenerErrors.Load()
	s.ReconnectsScheduled = m.reconnects.Load()
	return s
}

// SessionID identifies the current open connection; empty when not connected.
func (m *Manager) SessionID() string {
	return m.Stats().SessionID
}

// connHandler routes Transport callbacks for one generation.
type connHandler struct {
	m   *Manager
	gen uint64
}

func (h *connHandler) OnMessage(text []byte) {
	h.m.handleFrame(h.gen, text)
}

func (h *connHandler) OnClose(code int, reason string) {
	h.m.handleClose(h.gen, code, reason)
}

// handleFrame parses one inbound frame, records it and fans it out.
func (m *Manager) handleFrame(gen uint64, text []byte) {
	env, err := ParseEnvelope(text)
	if err != nil {
		m.parseErrors.Add(1)
		m.logger.Warn("dropping malformed frame", "error", err, "size", len(text))
		return
	}

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.last = &env
	m.mu.Unlock()

	m.received.Add(1)
	if !isLivenessTraffic(env.Type) {
		m.logger.Debug("message received", "type", env.Type, "size", len(text))
	}

	m.deliver(env)
}

func isLivenessTraffic(msgType string) bool {
	return msgType == TypePong || msgType == TypeServerPing
}

// deliver calls every listener in a snapshot of the set.
func (m *Manager) deliver(env Envelope) {
	for _, l := range m.listeners.snapshot() {
		if err := invoke(l, env); err != nil {
			m.listenerErrors.Add(1)
			m.logger.Warn("listener failed", "type", env.Type, "error", err)
		}
	}
}

func invoke(l Listener, env Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
		}
	}()
	return l.HandleMessage(env)
}

// handleClose folds a Transport close into the state machine.
func (m *Manager) handleClose(gen uint64, code int, reason string) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.sessionID = uuid.Nil
	f := m.dispatchLocked(event{kind: evClosed, code: code, err: &CloseError{Code: code, Reason: reason}})
	m.mu.Unlock()
	f.run()

	if code == CloseNormal {
		m.logger.Info("connection closed", "code", code, "reason", reason)
	} else {
		m.logger.Warn("connection lost", "code", code, "reason", reason)
	}
}

// connectContext bounds connects that no caller is waiting on.
func (m *Manager) connectContext() (context.Context, context.CancelFunc) {
	if m.cfg.ConnectTimeout > 0 {
		return context.WithTimeout(m.ctx, m.cfg.ConnectTimeout)
	}
	return context.WithCancel(m.ctx)
}

func (m *Manager) triggeredConnect(trigger string, seq uint64) {
	defer m.wg.Done()

	ctx, cancel := m.connectContext()
	defer cancel()

	m.logger.Info("connect triggered", "trigger", trigger)
	err := m.connect(ctx, m.sameReconnectSeq(seq))
	switch {
	case errors.Is(err, ErrConnectSuperseded):
		m.logger.Info("triggered connect cancelled", "trigger", trigger)
	case err != nil:
		m.logger.Warn("triggered connect failed", "trigger", trigger, "error", err)
	}
}

// sameReconnectSeq reports, with mu held, whether no Disconnect or newer schedule has
// happened since seq was read. Automatic connects re-check it after every suspension.
func (m *Manager) sameReconnectSeq(seq uint64) func() bool {
	return func() bool { return seq == m.reconnectSeq }
}

// scheduleReconnectLocked replaces any pending reconnect timer. Must be called with mu held.
func (m *Manager) scheduleReconnectLocked(attempt int) {
	m.cancelReconnectLocked()

	delay := m.cfg.Backoff.Delay(attempt, m.random())
	seq := m.reconnectSeq
	m.reconnectTimer = m.clock.AfterFunc(delay, func() { m.reconnect(seq) })
	m.reconnects.Add(1)

	m.logger.Info("reconnect scheduled",
		"attempt", attempt+1,
		"max_attempts", m.cfg.MaxAttempts,
		"delay", delay,
	)
}

func (m *Manager) cancelReconnectLocked() {
	m.reconnectSeq++
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

func (m *Manager) reconnect(seq uint64) {
	m.mu.Lock()
	if seq != m.reconnectSeq || m.closed {
		m.mu.Unlock()
		return
	}
	m.reconnectTimer = nil
	m.mu.Unlock()

	ctx, cancel := m.connectContext()
	defer cancel()

	if err := m.connect(ctx, m.sameReconnectSeq(seq)); err != nil {
		m.logger.Debug("reconnect failed", "error", err)
	}
}

func (m *Manager) startProbeLocked() {
	m.stopProbeLocked()
	if m.cfg.PingInterval <= 0 {
		return
	}
	seq := m.probeSeq
	m.probeTimer = m.clock.AfterFunc(m.cfg.PingInterval, func() { m.probe(seq) })
}

func (m *Manager) stopProbeLocked() {
	m.probeSeq++
	if m.probeTimer != nil {
		m.probeTimer.Stop()
		m.probeTimer = nil
	}
}

// probe sends one ping and re-arms itself while the Manager stays connected.
func (m *Manager) probe(seq uint64) {
	m.mu.Lock()
	if seq != m.probeSeq {
		m.mu.Unlock()
		return
	}
	m.probeTimer = nil
	m.mu.Unlock()

	if !m.Send(TypePing, nil) {
		m.logger.Debug("liveness ping not sent")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if seq != m.probeSeq || m.probeTimer != nil {
		return
	}
	if m.mc.state != StateConnected {
		m.logger.Debug("liveness probe stopped")
		return
	}
	m.probeTimer = m.clock.AfterFunc(m.cfg.PingInterval, func() { m.probe(seq) })
}
