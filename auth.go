package slamon

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// AuthDecision is the cached result of the last authorization probe.
type AuthDecision struct {
	Authorized bool
	CheckedAt  time.Time
}

// AuthGate answers whether the current session may open a channel. It
// caches positive answers for TTL and negative answers for the much shorter
// NegativeTTL, so a fresh login is picked up quickly without hammering the
// probe endpoint.
type AuthGate struct {
	httpClient  *http.Client
	url         string
	timeout     time.Duration
	ttl         time.Duration
	negativeTTL time.Duration
	now         func() time.Time
	logger      *slog.Logger
	metrics     *Metrics

	probes singleflight.Group

	mu       sync.Mutex
	decision *AuthDecision
}

func newAuthGate(httpClient *http.Client, url string, config *ChannelConfig, logger *slog.Logger, metrics *Metrics) *AuthGate {
	return &AuthGate{
		httpClient:  httpClient,
		url:         url,
		timeout:     config.AuthTimeout,
		ttl:         config.AuthTTL,
		negativeTTL: config.NegativeAuthTTL,
		now:         config.Now,
		logger:      logger,
		metrics:     metrics,
	}
}

// IsAuthorized returns the cached decision while it is fresh, otherwise runs
// one probe shared by all concurrent callers. Cancelling ctx stops waiting
// but not the shared probe.
func (g *AuthGate) IsAuthorized(ctx context.Context) bool {
	if d, ok := g.cached(); ok {
		return d.Authorized
	}

	ch := g.probes.DoChan("probe", func() (any, error) {
		return g.probe(), nil
	})
	select {
	case <-ctx.Done():
		return false
	case res := <-ch:
		return res.Val.(bool)
	}
}

// Invalidate drops the cached decision.
func (g *AuthGate) Invalidate() {
	g.mu.Lock()
	g.decision = nil
	g.mu.Unlock()
}

// Decision returns the cached decision, fresh or not.
func (g *AuthGate) Decision() (AuthDecision, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.decision == nil {
		return AuthDecision{}, false
	}
	return *g.decision, true
}

func (g *AuthGate) cached() (AuthDecision, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.decision == nil {
		return AuthDecision{}, false
	}
	ttl := g.ttl
	if !g.decision.Authorized {
		ttl = g.negativeTTL
	}
	if g.now().Sub(g.decision.CheckedAt) >= ttl {
		return AuthDecision{}, false
	}
	return *g.decision, true
}

func (g *AuthGate) probe() bool {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	authorized := false
	result := "denied"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.url, nil)
	if err == nil {
		req.Header.Set("Accept", "application/json")
		var resp *http.Response
		resp, err = g.httpClient.Do(req)
		if err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			authorized = resp.StatusCode >= 200 && resp.StatusCode < 300
			if !authorized {
				g.logger.Debug("authorization probe rejected", "status", resp.StatusCode)
			}
		}
	}
	if err != nil {
		result = "error"
		if ctx.Err() == context.DeadlineExceeded {
			result = "timeout"
		}
		g.logger.Debug("authorization probe failed", "err", err)
	}
	if authorized {
		result = "authorized"
	}

	g.mu.Lock()
	g.decision = &AuthDecision{Authorized: authorized, CheckedAt: g.now()}
	g.mu.Unlock()

	g.metrics.authProbe(result)
	return authorized
}
