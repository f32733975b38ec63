package slamon

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ============================================================================
// Session Event Types
// ============================================================================

const (
	SessionEventSource = "salesdash_auth"
	SignatureHeader    = "X-Salesdash-Signature"

	EventSessionExpired = "session.expired"
	EventSessionLogout  = "session.logout"
)

// SessionEvent is a signed session lifecycle notification from the auth
// service.
type SessionEvent struct {
	Source    string `json:"source"`
	Event     string `json:"event"`
	SessionID string `json:"session_id"`
	Timestamp int64  `json:"timestamp"`
}

// SessionHandlerFunc is the callback signature for verified session events.
type SessionHandlerFunc func(event *SessionEvent) error

// DisconnectOnSessionEnd returns a handler that tears the channel down when
// the session expires or the user logs out.
func DisconnectOnSessionEnd(ch *Channel) SessionHandlerFunc {
	return func(event *SessionEvent) error {
		ch.logger.Info("session ended, disconnecting", "event", event.Event, "session_id", event.SessionID)
		ch.auth.Invalidate()
		ch.Disconnect()
		return nil
	}
}

// ============================================================================
// Standalone Functions
// ============================================================================

// VerifySessionSignature verifies an HMAC-SHA256 signature over body.
// Uses constant-time comparison.
func VerifySessionSignature(body, signature, secret string) bool {
	if body == "" || signature == "" || secret == "" {
		return false
	}

	sig := strings.TrimPrefix(signature, "sha256=")
	if sig == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	expected := hex.EncodeToString(mac.Sum(nil))

	if len(sig) != len(expected) {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(sig), []byte(expected)) == 1
}

// ParseSessionEvent parses a raw body into a SessionEvent.
func ParseSessionEvent(body string) (*SessionEvent, error) {
	var event SessionEvent
	if err := json.Unmarshal([]byte(body), &event); err != nil {
		return nil, fmt.Errorf("invalid JSON in session event: %w", err)
	}

	if event.Source != SessionEventSource {
		return nil, fmt.Errorf("unknown session event source: %s", event.Source)
	}
	switch event.Event {
	case EventSessionExpired, EventSessionLogout:
	case "":
		return nil, fmt.Errorf("missing event field in session event")
	default:
		return nil, fmt.Errorf("unsupported session event: %s", event.Event)
	}
	if event.SessionID == "" {
		return nil, fmt.Errorf("missing session_id in session event")
	}

	return &event, nil
}

// ============================================================================
// SessionHook
// ============================================================================

// SessionHook verifies, parses and dispatches session events.
type SessionHook struct {
	secret  string
	onEvent SessionHandlerFunc
}

// NewSessionHook creates a hook. Pair it with DisconnectOnSessionEnd to bind
// it to a channel.
func NewSessionHook(secret string, onEvent SessionHandlerFunc) (*SessionHook, error) {
	if secret == "" {
		return nil, fmt.Errorf("session hook secret is required")
	}
	if onEvent == nil {
		return nil, fmt.Errorf("session hook handler is required")
	}
	return &SessionHook{
		secret:  secret,
		onEvent: onEvent,
	}, nil
}

// Handle processes one request body (verify + parse + call handler).
// Returns the status code and response body for the caller to write.
func (h *SessionHook) Handle(body, signature string) (int, any) {
	if !VerifySessionSignature(body, signature, h.secret) {
		return http.StatusUnauthorized, map[string]string{"error": "Invalid signature"}
	}

	event, err := ParseSessionEvent(body)
	if err != nil {
		return http.StatusBadRequest, map[string]string{"error": err.Error()}
	}

	if err := h.onEvent(event); err != nil {
		return http.StatusInternalServerError, map[string]string{"error": err.Error()}
	}
	return http.StatusOK, map[string]bool{"ok": true}
}

// HTTPHandler returns an http.Handler that processes session events.
//
// Example:
//
//	hook, _ := slamon.NewSessionHook(secret, slamon.DisconnectOnSessionEnd(ch))
//	http.Handle("/hooks/session", hook.HTTPHandler())
func (h *SessionHook) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(rw, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
			return
		}

		defer r.Body.Close()
		bodyBytes, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
		if err != nil {
			writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "Failed to read body"})
			return
		}

		status, data := h.Handle(string(bodyBytes), r.Header.Get(SignatureHeader))
		writeJSON(rw, status, data)
	})
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	json.NewEncoder(rw).Encode(v)
}
