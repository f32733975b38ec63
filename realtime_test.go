package slamon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"
)

// ============================================================================
// Connect
// ============================================================================

func TestChannelConnect(t *testing.T) {
	t.Run("connects and requests a snapshot", func(t *testing.T) {
		dialer := &fakeDialer{}
		ch, srv := newTestChannel(t, http.StatusOK, dialer, nil)
		var status statusRecorder
		ch.OnConnectionStatus(status.record)

		if err := ch.Connect(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ch.IsConnected() {
			t.Fatalf("expected connected, got %s", ch.State())
		}
		if got := dialer.last().sent(TypeRequestUpdate); got != 1 {
			t.Fatalf("expected 1 request_update, got %d", got)
		}
		if got := status.get(); len(got) != 1 || !got[0] {
			t.Fatalf("expected [true], got %v", got)
		}
		if srv.probes.Load() != 1 {
			t.Fatalf("expected 1 auth probe, got %d", srv.probes.Load())
		}
	})

	t.Run("concurrent callers share one attempt", func(t *testing.T) {
		dialer := &fakeDialer{gate: make(chan struct{})}
		ch, srv := newTestChannel(t, http.StatusOK, dialer, nil)
		var status statusRecorder
		ch.OnConnectionStatus(status.record)

		errs := make(chan error, 10)
		go func() { errs <- ch.Connect(context.Background()) }()
		eventually(t, "attempt reaches opening", func() bool { return ch.State() == StateOpening })

		for i := 0; i < 9; i++ {
			go func() { errs <- ch.Connect(context.Background()) }()
		}
		// Give the followers time to join before the dial completes.
		time.Sleep(50 * time.Millisecond)
		close(dialer.gate)

		for i := 0; i < 10; i++ {
			if err := <-errs; err != nil {
				t.Fatalf("caller %d: unexpected error: %v", i, err)
			}
		}
		if got := dialer.dialCount(); got != 1 {
			t.Fatalf("expected 1 dial, got %d", got)
		}
		if srv.probes.Load() != 1 {
			t.Fatalf("expected 1 auth probe, got %d", srv.probes.Load())
		}
		if got := status.get(); len(got) != 1 {
			t.Fatalf("expected one status notification, got %v", got)
		}
	})

	t.Run("connect while connected refreshes", func(t *testing.T) {
		dialer := &fakeDialer{}
		ch, _ := newTestChannel(t, http.StatusOK, dialer, nil)

		if err := ch.Connect(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := ch.Connect(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := dialer.dialCount(); got != 1 {
			t.Fatalf("expected 1 dial, got %d", got)
		}
		if got := dialer.last().sent(TypeRequestUpdate); got != 2 {
			t.Fatalf("expected 2 request_update frames, got %d", got)
		}
	})

	t.Run("unauthorized session", func(t *testing.T) {
		dialer := &fakeDialer{}
		ch, _ := newTestChannel(t, http.StatusUnauthorized, dialer, nil)
		var status statusRecorder
		ch.OnConnectionStatus(status.record)

		err := ch.Connect(context.Background())
		if !errors.Is(err, ErrAuthenticationFailed) {
			t.Fatalf("expected ErrAuthenticationFailed, got %v", err)
		}
		if ch.State() != StateDisconnected {
			t.Fatalf("expected disconnected, got %s", ch.State())
		}

		time.Sleep(50 * time.Millisecond)
		if got := dialer.dialCount(); got != 0 {
			t.Fatalf("expected no dial, got %d", got)
		}
		if got := status.get(); len(got) != 0 {
			t.Fatalf("expected no status notification, got %v", got)
		}
	})

	t.Run("auth probe timeout counts as unauthorized", func(t *testing.T) {
		dialer := &fakeDialer{}
		ch, srv := newTestChannel(t, http.StatusOK, dialer, func(c *ChannelConfig) {
			c.AuthTimeout = 30 * time.Millisecond
		})
		srv.delay.Store(int64(500 * time.Millisecond))

		err := ch.Connect(context.Background())
		if !errors.Is(err, ErrAuthenticationFailed) {
			t.Fatalf("expected ErrAuthenticationFailed, got %v", err)
		}
		if got := dialer.dialCount(); got != 0 {
			t.Fatalf("expected no dial, got %d", got)
		}
	})

	t.Run("open timeout", func(t *testing.T) {
		dialer := &fakeDialer{block: true}
		ch, _ := newTestChannel(t, http.StatusOK, dialer, func(c *ChannelConfig) {
			c.OpenTimeout = 30 * time.Millisecond
			c.MaxReconnectAttempts = -1
		})
		var status statusRecorder
		ch.OnConnectionStatus(status.record)

		err := ch.Connect(context.Background())
		if !errors.Is(err, ErrConnectionTimeout) {
			t.Fatalf("expected ErrConnectionTimeout, got %v", err)
		}
		if ch.State() != StateDisconnected {
			t.Fatalf("expected disconnected, got %s", ch.State())
		}
		if got := status.get(); len(got) != 1 || got[0] {
			t.Fatalf("expected [false], got %v", got)
		}
	})

	t.Run("caller context bounds the wait only", func(t *testing.T) {
		dialer := &fakeDialer{gate: make(chan struct{})}
		ch, _ := newTestChannel(t, http.StatusOK, dialer, nil)

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()
		if err := ch.Connect(ctx); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}

		close(dialer.gate)
		eventually(t, "attempt completes in background", ch.IsConnected)
	})
}

// ============================================================================
// Reconnect
// ============================================================================

func TestChannelReconnect(t *testing.T) {
	t.Run("reconnects after the transport drops", func(t *testing.T) {
		dialer := &fakeDialer{}
		ch, srv := newTestChannel(t, http.StatusOK, dialer, nil)
		var status statusRecorder
		ch.OnConnectionStatus(status.record)

		if err := ch.Connect(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		first := dialer.last()
		first.drop()

		eventually(t, "second dial", func() bool { return dialer.dialCount() == 2 })
		eventually(t, "reconnected", ch.IsConnected)

		got := status.get()
		if len(got) != 3 || !got[0] || got[1] || !got[2] {
			t.Fatalf("expected [true false true], got %v", got)
		}
		// The drop invalidated the cached decision, so the retry re-probed.
		if srv.probes.Load() != 2 {
			t.Fatalf("expected 2 auth probes, got %d", srv.probes.Load())
		}
		if dialer.last() == first {
			t.Fatal("expected a new transport")
		}
		if got := dialer.last().sent(TypeRequestUpdate); got != 1 {
			t.Fatalf("expected request_update on the new transport, got %d", got)
		}
	})

	t.Run("stops at the attempt ceiling", func(t *testing.T) {
		dialer := &fakeDialer{fail: errors.New("connection refused")}
		ch, _ := newTestChannel(t, http.StatusOK, dialer, func(c *ChannelConfig) {
			c.MaxReconnectAttempts = 3
			c.ReconnectBaseDelay = 5 * time.Millisecond
			c.ReconnectMaxDelay = 20 * time.Millisecond
		})

		if err := ch.Connect(context.Background()); err == nil {
			t.Fatal("expected dial error")
		}
		eventually(t, "initial dial plus 3 retries", func() bool { return dialer.dialCount() == 4 })

		time.Sleep(100 * time.Millisecond)
		if got := dialer.dialCount(); got != 4 {
			t.Fatalf("expected dialing to stop at 4, got %d", got)
		}
		if ch.State() != StateDisconnected {
			t.Fatalf("expected disconnected, got %s", ch.State())
		}
	})

	t.Run("no retry after an auth failure", func(t *testing.T) {
		dialer := &fakeDialer{}
		ch, srv := newTestChannel(t, http.StatusOK, dialer, nil)

		if err := ch.Connect(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		srv.status.Store(http.StatusUnauthorized)
		dialer.last().drop()

		eventually(t, "retry probes auth", func() bool { return srv.probes.Load() == 2 })
		time.Sleep(100 * time.Millisecond)
		if got := dialer.dialCount(); got != 1 {
			t.Fatalf("expected no further dials, got %d", got)
		}
		if srv.probes.Load() != 2 {
			t.Fatalf("expected retries to stop, got %d probes", srv.probes.Load())
		}
	})

	t.Run("disconnect cancels a pending retry", func(t *testing.T) {
		dialer := &fakeDialer{}
		ch, _ := newTestChannel(t, http.StatusOK, dialer, func(c *ChannelConfig) {
			c.ReconnectBaseDelay = 100 * time.Millisecond
		})

		if err := ch.Connect(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		dialer.last().drop()
		eventually(t, "transport close observed", func() bool { return ch.State() == StateDisconnected })

		ch.Disconnect()
		time.Sleep(250 * time.Millisecond)
		if got := dialer.dialCount(); got != 1 {
			t.Fatalf("expected no reconnect after Disconnect, got %d dials", got)
		}
	})

	t.Run("manual connect resets the attempt counter", func(t *testing.T) {
		dialer := &fakeDialer{fail: errors.New("connection refused")}
		ch, _ := newTestChannel(t, http.StatusOK, dialer, func(c *ChannelConfig) {
			c.ReconnectBaseDelay = time.Hour
			c.ReconnectMaxDelay = time.Hour
		})

		for i := 0; i < 3; i++ {
			if err := ch.Connect(context.Background()); err == nil {
				t.Fatal("expected dial error")
			}
			ch.mu.Lock()
			attempt := ch.recon.attempt
			ch.mu.Unlock()
			if attempt != 1 {
				t.Fatalf("round %d: expected attempt 1, got %d", i, attempt)
			}
		}
	})
}

// ============================================================================
// Disconnect
// ============================================================================

func TestChannelDisconnect(t *testing.T) {
	t.Run("closes the transport and clears subscribers", func(t *testing.T) {
		dialer := &fakeDialer{}
		ch, _ := newTestChannel(t, http.StatusOK, dialer, nil)
		var status statusRecorder
		ch.OnConnectionStatus(status.record)
		ch.OnUpdate(func(*SLAData) {})
		ch.OnMessage(func(InboundMessage) {})

		if err := ch.Connect(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		conn := dialer.last()
		ch.Disconnect()

		if ch.State() != StateDisconnected {
			t.Fatalf("expected disconnected, got %s", ch.State())
		}
		if conn.code() != StatusNormalClosure {
			t.Fatalf("expected close code %d, got %d", StatusNormalClosure, conn.code())
		}
		if n := ch.dispatcher.messages.len() + ch.dispatcher.updates.len() + ch.dispatcher.status.len(); n != 0 {
			t.Fatalf("expected no subscribers, got %d", n)
		}
		if got := status.get(); len(got) != 1 || !got[0] {
			t.Fatalf("expected only the connect notification, got %v", got)
		}
		if err := ch.RequestUpdate(); !errors.Is(err, ErrNotConnected) {
			t.Fatalf("expected ErrNotConnected, got %v", err)
		}
	})

	t.Run("late close of the old transport is ignored", func(t *testing.T) {
		dialer := &fakeDialer{}
		ch, _ := newTestChannel(t, http.StatusOK, dialer, nil)

		if err := ch.Connect(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ch.Disconnect()

		// Reconnect manually; the first transport's read loop exits after this.
		if err := ch.Connect(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
		if !ch.IsConnected() {
			t.Fatalf("expected connected, got %s", ch.State())
		}
		if got := dialer.dialCount(); got != 2 {
			t.Fatalf("expected 2 dials, got %d", got)
		}
	})

	t.Run("aborts an in-flight attempt", func(t *testing.T) {
		dialer := &fakeDialer{gate: make(chan struct{})}
		ch, _ := newTestChannel(t, http.StatusOK, dialer, nil)

		errs := make(chan error, 1)
		go func() { errs <- ch.Connect(context.Background()) }()
		eventually(t, "attempt reaches opening", func() bool { return ch.State() == StateOpening })

		ch.Disconnect()
		select {
		case err := <-errs:
			if !errors.Is(err, ErrDisconnected) {
				t.Fatalf("expected ErrDisconnected, got %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Connect did not return after Disconnect")
		}

		time.Sleep(50 * time.Millisecond)
		if ch.State() != StateDisconnected {
			t.Fatalf("expected disconnected, got %s", ch.State())
		}
		if got := dialer.dialCount(); got != 1 {
			t.Fatalf("expected 1 dial, got %d", got)
		}
	})

	t.Run("connect right after disconnect starts a fresh attempt", func(t *testing.T) {
		dialer := &fakeDialer{gate: make(chan struct{}), ignoreCancel: true}
		ch, _ := newTestChannel(t, http.StatusOK, dialer, nil)

		first := make(chan error, 1)
		go func() { first <- ch.Connect(context.Background()) }()
		eventually(t, "first attempt reaches opening", func() bool { return ch.State() == StateOpening })

		// The aborted attempt stays inside its dial until the gate opens.
		ch.Disconnect()
		second := make(chan error, 1)
		go func() { second <- ch.Connect(context.Background()) }()
		eventually(t, "second attempt dials", func() bool { return dialer.dialCount() == 2 })
		close(dialer.gate)

		for name, errs := range map[string]chan error{"first": first, "second": second} {
			select {
			case err := <-errs:
				if name == "first" && !errors.Is(err, ErrDisconnected) {
					t.Fatalf("first Connect: expected ErrDisconnected, got %v", err)
				}
				if name == "second" && err != nil {
					t.Fatalf("second Connect: unexpected error: %v", err)
				}
			case <-time.After(2 * time.Second):
				t.Fatalf("%s Connect did not return", name)
			}
		}

		if !ch.IsConnected() {
			t.Fatalf("expected connected, got %s", ch.State())
		}
		if got := dialer.closedConns(); got != 1 {
			t.Fatalf("expected the aborted attempt's transport to be closed, got %d closed", got)
		}
		if err := ch.RequestUpdate(); err != nil {
			t.Fatalf("expected a live transport, got %v", err)
		}
	})

	t.Run("disconnect is idempotent", func(t *testing.T) {
		ch, _ := newTestChannel(t, http.StatusOK, &fakeDialer{}, nil)
		ch.Disconnect()
		ch.Disconnect()
		if ch.State() != StateDisconnected {
			t.Fatalf("expected disconnected, got %s", ch.State())
		}
	})
}

// ============================================================================
// Heartbeat
// ============================================================================

func TestChannelHeartbeat(t *testing.T) {
	dialer := &fakeDialer{}
	ch, _ := newTestChannel(t, http.StatusOK, dialer, func(c *ChannelConfig) {
		c.HeartbeatInterval = 10 * time.Millisecond
		c.MaxReconnectAttempts = -1
	})

	if ch.heartbeat.active() {
		t.Fatal("heartbeat running before connect")
	}
	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	conn := dialer.last()
	eventually(t, "two pings", func() bool { return conn.sent(TypePing) >= 2 })

	conn.drop()
	eventually(t, "close observed", func() bool { return ch.State() == StateDisconnected })
	if ch.heartbeat.active() {
		t.Fatal("heartbeat still running after close")
	}
}

// ============================================================================
// Routing
// ============================================================================

func TestChannelRouting(t *testing.T) {
	connect := func(t *testing.T) (*Channel, *fakeConn) {
		t.Helper()
		dialer := &fakeDialer{}
		ch, _ := newTestChannel(t, http.StatusOK, dialer, nil)
		if err := ch.Connect(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return ch, dialer.last()
	}

	t.Run("sla_update reaches subscribers and the cache", func(t *testing.T) {
		ch, conn := connect(t)
		updates := make(chan *SLAData, 1)
		messages := make(chan MessageType, 4)
		ch.OnUpdate(func(d *SLAData) { updates <- d })
		ch.OnMessage(func(m InboundMessage) { messages <- m.Type() })

		conn.push(t, TypeSLAUpdate, sampleSLAData())

		select {
		case d := <-updates:
			if d.SystemHealth.Status != "healthy" || len(d.Alerts) != 1 {
				t.Fatalf("unexpected snapshot: %+v", d)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("no update delivered")
		}
		if typ := <-messages; typ != TypeSLAUpdate {
			t.Fatalf("expected sla_update message, got %s", typ)
		}
		snap := ch.CachedData()
		if snap == nil || snap.Data.SystemHealth.UptimePercent != 99.95 {
			t.Fatalf("expected cached snapshot, got %+v", snap)
		}
		if !ch.HasFreshCachedData() {
			t.Fatal("expected fresh cached data")
		}
	})

	t.Run("updates are delivered in arrival order", func(t *testing.T) {
		ch, conn := connect(t)
		updates := make(chan string, 2)
		ch.OnUpdate(func(d *SLAData) { updates <- d.SystemHealth.Status })

		degraded := sampleSLAData()
		degraded.SystemHealth.Status = "degraded"
		conn.push(t, TypeSLAUpdate, sampleSLAData())
		conn.push(t, TypeSLAUpdate, degraded)

		for _, want := range []string{"healthy", "degraded"} {
			select {
			case got := <-updates:
				if got != want {
					t.Fatalf("expected %s, got %s", want, got)
				}
			case <-time.After(2 * time.Second):
				t.Fatalf("no update with status %s", want)
			}
		}
		if snap := ch.CachedData(); snap == nil || snap.Data.SystemHealth.Status != "degraded" {
			t.Fatalf("expected the latest snapshot cached, got %+v", snap)
		}
	})

	t.Run("sla_update without data is ignored", func(t *testing.T) {
		ch, conn := connect(t)
		var mu sync.Mutex
		updates := 0
		ch.OnUpdate(func(*SLAData) { mu.Lock(); updates++; mu.Unlock() })
		seen := make(chan struct{}, 1)
		ch.OnMessage(func(InboundMessage) { seen <- struct{}{} })

		conn.push(t, TypeSLAUpdate, nil)
		<-seen

		mu.Lock()
		defer mu.Unlock()
		if updates != 0 {
			t.Fatalf("expected no update, got %d", updates)
		}
		if ch.CachedData() != nil {
			t.Fatal("expected empty cache")
		}
	})

	t.Run("new_alert triggers a refetch", func(t *testing.T) {
		_, conn := connect(t)
		conn.push(t, TypeNewAlert, Alert{ID: "alert-2", Severity: "critical", Title: "Error rate spike"})
		eventually(t, "second request_update", func() bool { return conn.sent(TypeRequestUpdate) == 2 })
	})

	t.Run("uptime_update goes to message handlers only", func(t *testing.T) {
		ch, conn := connect(t)
		updated := make(chan struct{}, 1)
		ch.OnUpdate(func(*SLAData) { updated <- struct{}{} })
		seen := make(chan InboundMessage, 1)
		ch.OnMessage(func(m InboundMessage) { seen <- m })

		conn.push(t, TypeUptimeUpdate, map[string]any{"uptime_percentage": 99.9})
		msg := <-seen
		if _, ok := msg.(*UptimeUpdate); !ok {
			t.Fatalf("expected *UptimeUpdate, got %T", msg)
		}
		select {
		case <-updated:
			t.Fatal("uptime_update must not reach update handlers")
		case <-time.After(30 * time.Millisecond):
		}
	})

	t.Run("malformed frames are dropped", func(t *testing.T) {
		ch, conn := connect(t)
		seen := make(chan MessageType, 2)
		ch.OnMessage(func(m InboundMessage) { seen <- m.Type() })

		conn.pushRaw("{not json")
		conn.push(t, TypePong, nil)

		if typ := <-seen; typ != TypePong {
			t.Fatalf("expected pong after malformed frame, got %s", typ)
		}
		if !ch.IsConnected() {
			t.Fatal("malformed frame must not close the channel")
		}
	})

	t.Run("unsubscribed handler stops receiving", func(t *testing.T) {
		ch, conn := connect(t)
		var mu sync.Mutex
		calls := 0
		unsubscribe := ch.OnMessage(func(InboundMessage) { mu.Lock(); calls++; mu.Unlock() })
		seen := make(chan struct{}, 2)
		ch.OnMessage(func(InboundMessage) { seen <- struct{}{} })

		conn.push(t, TypePong, nil)
		<-seen
		unsubscribe()
		unsubscribe()
		conn.push(t, TypePong, nil)
		<-seen

		mu.Lock()
		defer mu.Unlock()
		if calls != 1 {
			t.Fatalf("expected 1 call, got %d", calls)
		}
	})
}

// ============================================================================
// Cached snapshot replay
// ============================================================================

func TestChannelCacheReplay(t *testing.T) {
	persist := func(t *testing.T, storage Storage, cachedAt time.Time) {
		t.Helper()
		raw, err := json.Marshal(cacheEntry{Data: sampleSLAData(), Timestamp: cachedAt.UnixMilli()})
		if err != nil {
			t.Fatal(err)
		}
		if err := storage.SetItem(CacheKey, string(raw)); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("fresh snapshot is replayed to early subscribers", func(t *testing.T) {
		storage := NewMemoryStorage()
		persist(t, storage, time.Now().Add(-time.Minute))

		ch, _ := newTestChannel(t, http.StatusOK, &fakeDialer{}, func(c *ChannelConfig) {
			c.Storage = storage
		})
		updates := make(chan *SLAData, 1)
		ch.OnUpdate(func(d *SLAData) { updates <- d })

		if !ch.HasFreshCachedData() {
			t.Fatal("expected restored snapshot")
		}
		select {
		case d := <-updates:
			if d.SystemHealth.Status != "healthy" {
				t.Fatalf("unexpected replay: %+v", d)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("cached snapshot not replayed")
		}
	})

	t.Run("expired snapshot is discarded", func(t *testing.T) {
		storage := NewMemoryStorage()
		persist(t, storage, time.Now().Add(-10*time.Minute))

		ch, _ := newTestChannel(t, http.StatusOK, &fakeDialer{}, func(c *ChannelConfig) {
			c.Storage = storage
		})
		updates := make(chan *SLAData, 1)
		ch.OnUpdate(func(d *SLAData) { updates <- d })

		if ch.CachedData() != nil {
			t.Fatal("expected no cached data")
		}
		if _, ok, _ := storage.GetItem(CacheKey); ok {
			t.Fatal("expected expired entry to be removed")
		}
		select {
		case <-updates:
			t.Fatal("expired snapshot must not be replayed")
		case <-time.After(50 * time.Millisecond):
		}
	})
}

// ============================================================================
// Platform binding
// ============================================================================

func TestChannelBind(t *testing.T) {
	dialer := &fakeDialer{}
	ch, _ := newTestChannel(t, http.StatusOK, dialer, nil)
	platform := NewMemoryPlatform()
	unbind := ch.Bind(platform)

	platform.SetVisible()
	eventually(t, "connect on visible", ch.IsConnected)

	platform.SetVisible()
	time.Sleep(20 * time.Millisecond)
	if got := dialer.dialCount(); got != 1 {
		t.Fatalf("visible while connected must not redial, got %d dials", got)
	}

	platform.Unload()
	if ch.State() != StateDisconnected {
		t.Fatalf("expected disconnected after unload, got %s", ch.State())
	}

	unbind()
	unbind()
	platform.SetVisible()
	time.Sleep(20 * time.Millisecond)
	if got := dialer.dialCount(); got != 1 {
		t.Fatalf("expected no dial after unbind, got %d", got)
	}
}

func TestStateIsConnecting(t *testing.T) {
	tests := []struct {
		state State
		want  bool
	}{
		{StateDisconnected, false},
		{StateAuthorizing, true},
		{StateOpening, true},
		{StateConnected, false},
		{StateClosing, false},
	}
	for _, tt := range tests {
		if got := tt.state.IsConnecting(); got != tt.want {
			t.Errorf("%s.IsConnecting() = %v, want %v", tt.state, got, tt.want)
		}
	}
}
