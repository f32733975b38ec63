package slamon

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// ============================================================================
// Test Helpers
// ============================================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// eventually polls cond until it holds or two seconds pass.
func eventually(t *testing.T, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for: %s", msg)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// ============================================================================
// Fake transport
// ============================================================================

var errConnClosed = errors.New("fake connection closed")

type fakeConn struct {
	inbound   chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	writes    []Envelope
	closeCode int
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-c.closed:
		return nil, errConnClosed
	default:
	}
	select {
	case frame := <-c.inbound:
		return frame, nil
	case <-c.closed:
		return nil, errConnClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Write(ctx context.Context, frame []byte) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return err
	}
	c.mu.Lock()
	c.writes = append(c.writes, env)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close(code int, reason string) error {
	c.mu.Lock()
	c.closeCode = code
	c.mu.Unlock()
	c.drop()
	return nil
}

// drop simulates the server going away.
func (c *fakeConn) drop() {
	c.closeOnce.Do(func() { close(c.closed) })
}

func (c *fakeConn) push(t *testing.T, typ MessageType, data any) {
	t.Helper()
	frame := map[string]any{"type": typ, "timestamp": "2026-03-01T12:00:00Z"}
	if data != nil {
		frame["data"] = data
	}
	b, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	c.inbound <- b
}

func (c *fakeConn) pushRaw(frame string) {
	c.inbound <- []byte(frame)
}

func (c *fakeConn) sent(typ MessageType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, env := range c.writes {
		if env.Type == typ {
			n++
		}
	}
	return n
}

func (c *fakeConn) code() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode
}

type fakeDialer struct {
	mu    sync.Mutex
	dials int
	conns []*fakeConn
	// gate, when set, holds every dial until it is closed.
	gate chan struct{}
	// block holds every dial until its context ends.
	block bool
	// ignoreCancel makes gated dials wait for the gate even after their
	// context ends, like a handshake that is already on the wire.
	ignoreCancel bool
	fail         error
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	d.dials++
	gate, block, ignoreCancel, fail := d.gate, d.block, d.ignoreCancel, d.fail
	d.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if gate != nil && ignoreCancel {
		<-gate
	} else if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail != nil {
		return nil, fail
	}

	conn := newFakeConn()
	d.mu.Lock()
	d.conns = append(d.conns, conn)
	d.mu.Unlock()
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// closedConns counts transports the channel closed itself.
func (d *fakeDialer) closedConns() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.conns {
		if c.code() == StatusNormalClosure {
			n++
		}
	}
	return n
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// ============================================================================
// Fake auth endpoint
// ============================================================================

type authServer struct {
	*httptest.Server
	status atomic.Int32
	probes atomic.Int32
	delay  atomic.Int64
}

func newAuthServer(t *testing.T, status int) *authServer {
	t.Helper()
	s := &authServer{}
	s.status.Store(int32(status))
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != DefaultAuthCheckPath {
			http.NotFound(w, r)
			return
		}
		s.probes.Add(1)
		if d := time.Duration(s.delay.Load()); d > 0 {
			select {
			case <-time.After(d):
			case <-r.Context().Done():
				return
			}
		}
		w.WriteHeader(int(s.status.Load()))
	}))
	t.Cleanup(s.Close)
	return s
}

// newTestChannel wires a channel to a fake auth endpoint and dialer with
// short timings. mutate may adjust the config before construction.
func newTestChannel(t *testing.T, status int, dialer *fakeDialer, mutate func(*ChannelConfig)) (*Channel, *authServer) {
	t.Helper()
	srv := newAuthServer(t, status)
	client := NewClient(srv.URL, WithLogger(discardLogger()))

	cfg := &ChannelConfig{
		Dialer:             dialer,
		HeartbeatInterval:  time.Hour,
		ReconnectBaseDelay: 10 * time.Millisecond,
		ReconnectMaxDelay:  80 * time.Millisecond,
		ReplayDelay:        10 * time.Millisecond,
	}
	if mutate != nil {
		mutate(cfg)
	}
	ch := client.NewChannel(cfg)
	t.Cleanup(ch.Disconnect)
	return ch, srv
}

// statusRecorder collects connection status notifications.
type statusRecorder struct {
	mu     sync.Mutex
	events []bool
}

func (r *statusRecorder) record(connected bool) {
	r.mu.Lock()
	r.events = append(r.events, connected)
	r.mu.Unlock()
}

func (r *statusRecorder) get() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.events...)
}

func sampleSLAData() *SLAData {
	return &SLAData{
		SystemHealth: SystemHealth{
			Status:          "healthy",
			UptimePercent:   99.95,
			ResponseTimeMs:  120,
			ErrorRate:       0.1,
			ActiveIncidents: 0,
		},
		Alerts: []Alert{{ID: "alert-1", Severity: "warning", Title: "Latency above target"}},
		ConnectionInfo: ConnectionInfo{
			ConnectedClients: 3,
		},
	}
}
