package slamon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// ============================================================================
// Configuration
// ============================================================================

// ChannelConfig configures a Channel. Zero values take the defaults noted on
// each field.
type ChannelConfig struct {
	WSPath        string // "/api/v1/ws/sla-monitoring"
	AuthCheckPath string // "/api/v1/auth/check"

	OpenTimeout     time.Duration // 3s
	WriteTimeout    time.Duration // 5s
	AuthTimeout     time.Duration // 2s
	AuthTTL         time.Duration // 60s
	NegativeAuthTTL time.Duration // 5s

	// MaxReconnectAttempts is the retry ceiling (default 5). Negative
	// disables automatic reconnection.
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration // 1s
	ReconnectMaxDelay    time.Duration // 30s
	HeartbeatInterval    time.Duration // 30s

	CacheTTL    time.Duration // 5m
	ReplayDelay time.Duration // 100ms; delay before replaying a restored snapshot

	// Storage persists the snapshot cache. Nil uses a fresh MemoryStorage.
	Storage Storage
	// Dialer opens the transport. Nil uses a WebSocketDialer over the
	// client's HTTP client.
	Dialer Dialer
	// Now is the clock for TTL checks and frame timestamps.
	Now func() time.Time
}

func (c *ChannelConfig) defaults() {
	if c.WSPath == "" {
		c.WSPath = DefaultWSPath
	}
	if c.AuthCheckPath == "" {
		c.AuthCheckPath = DefaultAuthCheckPath
	}
	if c.OpenTimeout == 0 {
		c.OpenTimeout = 3 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.AuthTimeout == 0 {
		c.AuthTimeout = 2 * time.Second
	}
	if c.AuthTTL == 0 {
		c.AuthTTL = 60 * time.Second
	}
	if c.NegativeAuthTTL == 0 {
		c.NegativeAuthTTL = 5 * time.Second
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = 1 * time.Second
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = 5 * time.Minute
	}
	if c.ReplayDelay == 0 {
		c.ReplayDelay = 100 * time.Millisecond
	}
	if c.Storage == nil {
		c.Storage = NewMemoryStorage()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// State represents the connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateAuthorizing  State = "authorizing"
	StateOpening      State = "opening"
	StateConnected    State = "connected"
	StateClosing      State = "closing"
)

// IsConnecting reports whether s is one of the connect sub-phases.
func (s State) IsConnecting() bool {
	return s == StateAuthorizing || s == StateOpening
}

func (s State) String() string { return string(s) }

// ============================================================================
// Channel
// ============================================================================

// Channel is the authenticated, auto-reconnecting real-time connection for
// the SLA monitoring view. Create one per process with Client.NewChannel and
// share it between consumers.
type Channel struct {
	url        string
	config     *ChannelConfig
	dialer     Dialer
	logger     *slog.Logger
	metrics    *Metrics
	auth       *AuthGate
	cache      *SnapshotCache
	dispatcher *dispatcher
	heartbeat  *heartbeat

	attempts singleflight.Group

	// dispatchMu serializes frame dispatch with the restored-snapshot replay.
	dispatchMu sync.Mutex

	mu              sync.Mutex
	state           State
	conn            Conn
	generation      uint64
	shouldReconnect bool
	recon           *reconnector
	reconnectTimer  *time.Timer
	reconnectSeq    uint64
	attemptSeq      uint64
	abortAttempt    context.CancelFunc
	stopRead        context.CancelFunc
	replayTimer     *time.Timer
}

func newChannel(url, authURL string, httpClient *http.Client, config ChannelConfig, logger *slog.Logger, metrics *Metrics) *Channel {
	config.defaults()
	logger = logger.With("component", "realtime")

	dialer := config.Dialer
	if dialer == nil {
		dialer = &WebSocketDialer{HTTPClient: httpClient}
	}

	c := &Channel{
		url:        url,
		config:     &config,
		dialer:     dialer,
		logger:     logger,
		metrics:    metrics,
		auth:       newAuthGate(httpClient, authURL, &config, logger, metrics),
		cache:      newSnapshotCache(config.Storage, &config, logger, metrics),
		dispatcher: newDispatcher(logger),
		heartbeat:  newHeartbeat(config.HeartbeatInterval),
		state:      StateDisconnected,
		recon:      newReconnector(&config),
	}
	c.dispatcher.onSnapshot = c.cache.Save
	c.dispatcher.onAlert = func() {
		if err := c.RequestUpdate(); err != nil {
			c.logger.Debug("refresh after new alert failed", "err", err)
		}
	}

	if restored := c.cache.Get(); restored != nil {
		// Replay after a short delay so consumers created alongside the
		// channel can subscribe first.
		c.replayTimer = time.AfterFunc(config.ReplayDelay, func() { c.replay(restored) })
	}
	return c
}

// Connect authorizes and opens the channel. Concurrent callers share one
// attempt; ctx only bounds how long this caller waits. Calling Connect while
// connected requests a fresh snapshot instead of reconnecting.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnected {
		c.mu.Unlock()
		if err := c.RequestUpdate(); err != nil {
			c.logger.Debug("refresh on connect failed", "err", err)
		}
		return nil
	}
	c.shouldReconnect = true
	c.cancelReconnectLocked()
	if !c.state.IsConnecting() {
		c.recon.reset()
	}
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-c.startAttempt():
		return res.Err
	}
}

// Disconnect closes the channel, cancels any pending reconnect and removes
// every subscriber. The channel stays down until Connect is called again.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.shouldReconnect = false
	c.cancelReconnectLocked()
	if c.abortAttempt != nil {
		c.abortAttempt()
	}
	// The aborted attempt may still be unwinding; the next Connect must not
	// join it.
	c.attempts.Forget("connect")
	if c.replayTimer != nil {
		c.replayTimer.Stop()
		c.replayTimer = nil
	}
	c.heartbeat.stop()
	conn := c.conn
	c.conn = nil
	c.generation++
	stopRead := c.stopRead
	c.stopRead = nil
	c.recon.reset()
	if conn != nil {
		c.state = StateClosing
	} else {
		c.state = StateDisconnected
	}
	c.mu.Unlock()

	if conn != nil {
		if err := conn.Close(StatusNormalClosure, "client disconnect"); err != nil {
			c.logger.Debug("close transport", "err", err)
		}
		c.metrics.setConnected(false)
	}
	if stopRead != nil {
		stopRead()
	}
	c.dispatcher.clear()

	c.mu.Lock()
	if c.state == StateClosing {
		c.state = StateDisconnected
	}
	c.mu.Unlock()
	c.logger.Info("real-time channel disconnected")
}

// RequestUpdate asks the server for a full snapshot.
func (c *Channel) RequestUpdate() error {
	return c.send(TypeRequestUpdate)
}

// OnMessage registers a handler for every decoded inbound message.
func (c *Channel) OnMessage(h func(InboundMessage)) Unsubscribe {
	return c.dispatcher.messages.add(h)
}

// OnUpdate registers a handler for SLA snapshots, live or restored from cache.
func (c *Channel) OnUpdate(h func(*SLAData)) Unsubscribe {
	return c.dispatcher.updates.add(h)
}

// OnConnectionStatus registers a handler for connected/disconnected changes.
func (c *Channel) OnConnectionStatus(h func(connected bool)) Unsubscribe {
	return c.dispatcher.status.add(h)
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the transport is open.
func (c *Channel) IsConnected() bool {
	return c.State() == StateConnected
}

// CachedData returns the cached snapshot while it is within the cache TTL.
func (c *Channel) CachedData() *Snapshot {
	return c.cache.Get()
}

// HasFreshCachedData reports whether CachedData would return a snapshot.
func (c *Channel) HasFreshCachedData() bool {
	return c.cache.HasFreshData()
}

// Auth exposes the channel's authorization gate.
func (c *Channel) Auth() *AuthGate {
	return c.auth
}

// Bind ties the channel to host lifecycle events: becoming visible while
// disconnected triggers Connect, unload triggers Disconnect.
func (c *Channel) Bind(p Platform) Unsubscribe {
	offVisible := p.OnVisible(func() {
		if c.State() != StateDisconnected {
			return
		}
		go func() {
			if err := c.Connect(context.Background()); err != nil {
				c.logger.Debug("connect on visible failed", "err", err)
			}
		}()
	})
	offUnload := p.OnUnload(c.Disconnect)

	var once sync.Once
	return func() {
		once.Do(func() {
			offVisible()
			offUnload()
		})
	}
}

// ============================================================================
// Connect sequence
// ============================================================================

func (c *Channel) startAttempt() <-chan singleflight.Result {
	return c.attempts.DoChan("connect", func() (any, error) {
		return nil, c.runAttempt()
	})
}

func (c *Channel) runAttempt() error {
	logger := c.logger.With("attempt_id", uuid.NewString())

	c.mu.Lock()
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	if !c.shouldReconnect {
		c.mu.Unlock()
		return ErrDisconnected
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.attemptSeq++
	seq := c.attemptSeq
	c.abortAttempt = cancel
	c.state = StateAuthorizing
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.attemptSeq == seq {
			c.abortAttempt = nil
		}
		c.mu.Unlock()
		cancel()
	}()

	authorized := c.auth.IsAuthorized(ctx)
	if ctx.Err() != nil {
		c.metrics.connectAttempt("aborted")
		return ErrDisconnected
	}
	if !authorized {
		if !c.advance(ctx, StateAuthorizing, StateDisconnected) {
			c.metrics.connectAttempt("aborted")
			return ErrDisconnected
		}
		c.metrics.connectAttempt("auth_failed")
		logger.Warn("real-time channel not authorized")
		return ErrAuthenticationFailed
	}

	if !c.advance(ctx, StateAuthorizing, StateOpening) {
		c.metrics.connectAttempt("aborted")
		return ErrDisconnected
	}

	dialCtx, cancelDial := context.WithTimeout(ctx, c.config.OpenTimeout)
	conn, err := c.dialer.Dial(dialCtx, c.url)
	timedOut := errors.Is(dialCtx.Err(), context.DeadlineExceeded)
	cancelDial()
	if err != nil {
		if ctx.Err() != nil {
			c.metrics.connectAttempt("aborted")
			return ErrDisconnected
		}
		if timedOut {
			err = fmt.Errorf("%w after %s: %v", ErrConnectionTimeout, c.config.OpenTimeout, err)
		} else {
			err = fmt.Errorf("open transport: %w", err)
		}
		return c.handleOpenFailure(ctx, logger, err)
	}

	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		conn.Close(StatusNormalClosure, "client disconnect")
		c.metrics.connectAttempt("aborted")
		return ErrDisconnected
	}
	c.generation++
	gen := c.generation
	c.conn = conn
	c.state = StateConnected
	c.recon.reset()
	readCtx, stopRead := context.WithCancel(context.Background())
	c.stopRead = stopRead
	c.heartbeat.start(c.sendPing)
	c.mu.Unlock()

	c.metrics.connectAttempt("success")
	c.metrics.setConnected(true)
	logger.Info("real-time channel connected", "url", c.url)
	c.dispatcher.emitStatus(true)

	go c.readLoop(readCtx, conn, gen)

	if err := c.RequestUpdate(); err != nil {
		logger.Warn("initial update request failed", "err", err)
	}
	return nil
}

func (c *Channel) handleOpenFailure(ctx context.Context, logger *slog.Logger, err error) error {
	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		c.metrics.connectAttempt("aborted")
		return ErrDisconnected
	}
	if c.state == StateOpening {
		c.state = StateDisconnected
	}
	// Anything started from here on, a retry timer or a Connect from a status
	// handler, must begin a fresh attempt instead of joining this one.
	c.attempts.Forget("connect")
	c.mu.Unlock()

	c.auth.Invalidate()

	result := "error"
	if errors.Is(err, ErrConnectionTimeout) {
		result = "timeout"
	}
	c.metrics.connectAttempt(result)
	logger.Warn("real-time channel failed to open", "err", err)

	c.dispatcher.emitStatus(false)
	c.scheduleReconnect()
	return err
}

// advance moves the attempt owning ctx from one state to the next. It fails
// once Disconnect has aborted the attempt, since the state may already belong
// to a newer one.
func (c *Channel) advance(ctx context.Context, from, to State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil || c.state != from {
		return false
	}
	c.state = to
	return true
}

// ============================================================================
// Read loop
// ============================================================================

func (c *Channel) readLoop(ctx context.Context, conn Conn, gen uint64) {
	for {
		frame, err := conn.Read(ctx)
		if err != nil {
			c.handleClose(gen, err)
			return
		}
		c.handleFrame(gen, frame)
	}
}

func (c *Channel) handleFrame(gen uint64, frame []byte) {
	msg, err := DecodeMessage(frame)
	if err != nil {
		c.metrics.malformed()
		c.logger.Warn("dropping malformed frame", "err", err, "bytes", len(frame))
		return
	}
	c.metrics.messageReceived(msg)

	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	c.mu.Lock()
	current := gen == c.generation && c.conn != nil
	c.mu.Unlock()
	if !current {
		return
	}
	c.dispatcher.route(msg)
}

// handleClose runs when the transport of generation gen stops reading.
// Closes of a transport that Disconnect already released are ignored.
func (c *Channel) handleClose(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.generation || c.conn == nil {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateDisconnected
	c.heartbeat.stop()
	if c.stopRead != nil {
		c.stopRead()
		c.stopRead = nil
	}
	c.mu.Unlock()

	c.auth.Invalidate()
	c.metrics.setConnected(false)
	c.logger.Warn("real-time channel closed", "err", err)
	c.dispatcher.emitStatus(false)
	c.scheduleReconnect()
}

func (c *Channel) replay(snap *Snapshot) {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	// A live update that already replaced the restored snapshot has been
	// delivered; an expired one must not be.
	if current := c.cache.Get(); current != snap {
		return
	}
	c.logger.Debug("replaying cached snapshot", "cached_at", snap.CachedAt)
	c.dispatcher.emitUpdate(snap.Data)
}

// ============================================================================
// Reconnect
// ============================================================================

func (c *Channel) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	// A handler may already have started a new attempt.
	if !c.shouldReconnect || c.state != StateDisconnected {
		return
	}
	attempt, delay, ok := c.recon.next()
	if !ok {
		c.logger.Warn("reconnect attempts exhausted", "attempts", attempt)
		return
	}
	c.cancelReconnectLocked()
	seq := c.reconnectSeq
	c.reconnectTimer = time.AfterFunc(delay, func() { c.fireReconnect(seq) })
	c.metrics.reconnectScheduled()
	c.logger.Info("reconnect scheduled", "attempt", attempt, "delay", delay)
}

// cancelReconnectLocked stops the pending retry. Bumping the sequence also
// neutralizes a timer that already fired and is waiting on c.mu.
func (c *Channel) cancelReconnectLocked() {
	c.reconnectSeq++
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

func (c *Channel) fireReconnect(seq uint64) {
	c.mu.Lock()
	if seq != c.reconnectSeq || !c.shouldReconnect {
		c.mu.Unlock()
		return
	}
	c.reconnectTimer = nil
	c.mu.Unlock()

	if res := <-c.startAttempt(); res.Err != nil {
		c.logger.Debug("reconnect attempt failed", "err", res.Err)
	}
}

// ============================================================================
// Outbound frames
// ============================================================================

func (c *Channel) sendPing() {
	if err := c.send(TypePing); err != nil {
		c.logger.Debug("heartbeat send failed", "err", err)
	}
}

func (c *Channel) send(t MessageType) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	frame, err := json.Marshal(newEnvelope(t, c.config.Now()))
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.config.WriteTimeout)
	defer cancel()
	if err := conn.Write(ctx, frame); err != nil {
		return fmt.Errorf("send %s: %w", t, err)
	}
	c.metrics.frameSent(t)
	return nil
}
