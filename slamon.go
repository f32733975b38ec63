// Package slamon is the client for the SalesDash SLA monitoring real-time
// channel.
//
// It keeps one authenticated WebSocket per process, reconnects with
// exponential backoff, caches the last SLA snapshot and fans messages out to
// any number of subscribers.
//
// Example:
//
//	client := slamon.NewClient("https://app.salesdash.io",
//		slamon.WithSessionCookie("session", cookie))
//	ch := client.NewChannel(nil)
//
//	unsubscribe := ch.OnUpdate(func(data *slamon.SLAData) {
//		fmt.Println(data.SystemHealth.Status)
//	})
//	defer unsubscribe()
//
//	if err := ch.Connect(ctx); err != nil {
//		log.Fatal(err)
//	}
package slamon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL       = "http://localhost:8000"
	DefaultTimeout       = 30 * time.Second
	DefaultWSPath        = "/api/v1/ws/sla-monitoring"
	DefaultAuthCheckPath = "/api/v1/auth/check"
	DefaultCookieName    = "session"
)

// ============================================================================
// Client
// ============================================================================

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *Metrics
	session    *http.Cookie
}

type ClientOption func(*Client)

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithMetrics records channel activity into m.
func WithMetrics(m *Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// WithSessionCookie installs the session credential in the client's cookie
// jar. Both the authorization probe and the WebSocket upgrade carry it.
func WithSessionCookie(name, value string) ClientOption {
	return func(c *Client) {
		if name == "" {
			name = DefaultCookieName
		}
		c.session = &http.Cookie{Name: name, Value: value, Path: "/"}
	}
}

// NewClient creates a client for the deployment at baseURL. An empty baseURL
// uses DefaultBaseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	jar, _ := cookiejar.New(nil)
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			Jar:     jar,
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.session != nil {
		c.installSession()
	}
	return c
}

func (c *Client) installSession() {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		c.logger.Warn("invalid base url, session cookie not installed", "err", err)
		return
	}
	if c.httpClient.Jar == nil {
		jar, _ := cookiejar.New(nil)
		hc := *c.httpClient
		hc.Jar = jar
		c.httpClient = &hc
	}
	c.httpClient.Jar.SetCookies(u, []*http.Cookie{c.session})
}

// BaseURL returns the deployment root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HTTPClient returns the client used for probes and the WebSocket upgrade.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// URL joins path onto the base URL.
func (c *Client) URL(path string) string {
	return c.baseURL + path
}

// WSURL derives the WebSocket endpoint for path, following the base URL's
// scheme: https becomes wss, anything else ws.
func (c *Client) WSURL(path string) string {
	u := c.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + path
}

// NewChannel creates a real-time channel. A nil config uses the defaults.
// Channels are independent: create one per process and share it.
func (c *Client) NewChannel(config *ChannelConfig) *Channel {
	var cfg ChannelConfig
	if config != nil {
		cfg = *config
	}
	cfg.defaults()
	return newChannel(c.WSURL(cfg.WSPath), c.URL(cfg.AuthCheckPath), c.httpClient, cfg, c.logger, c.metrics)
}

// CheckSession performs one uncached authorization probe against path and
// returns the HTTP status code. An empty path probes DefaultAuthCheckPath;
// pass ChannelConfig.AuthCheckPath to check the endpoint a Channel uses.
func (c *Client) CheckSession(ctx context.Context, path string) (int, error) {
	if path == "" {
		path = DefaultAuthCheckPath
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(path), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
