package slamon

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ============================================================================
// Errors
// ============================================================================

var (
	// ErrAuthenticationFailed is returned by Connect when the authorization
	// probe reports the session as unauthorized or does not answer in time.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrConnectionTimeout is returned by Connect when the transport does not
	// open within the configured open timeout.
	ErrConnectionTimeout = errors.New("connection timeout")

	// ErrDisconnected is returned to callers of an attempt that was aborted by
	// Disconnect.
	ErrDisconnected = errors.New("channel disconnected")

	// ErrNotConnected is returned when a frame is sent without an open transport.
	ErrNotConnected = errors.New("not connected")
)

// ============================================================================
// Wire Types
// ============================================================================

// MessageType is the protocol vocabulary carried in Envelope.Type.
type MessageType string

const (
	// Outbound
	TypePing          MessageType = "ping"
	TypeRequestUpdate MessageType = "request_update"

	// Inbound
	TypeConnectionEstablished MessageType = "connection_established"
	TypeSLAUpdate             MessageType = "sla_update"
	TypeUptimeUpdate          MessageType = "uptime_update"
	TypeNewAlert              MessageType = "new_alert"
	TypePong                  MessageType = "pong"
)

// Envelope is the wire format for every frame in both directions.
type Envelope struct {
	Type      MessageType     `json:"type"`
	Timestamp Timestamp       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Timestamp is an ISO 8601 instant. Values without a zone offset are read as
// UTC; empty or unparseable values decode to the zero time rather than
// failing the whole frame.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// null and non-string values carry no usable instant.
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	t.Time = time.Time{}
	return nil
}

func newEnvelope(t MessageType, now time.Time) Envelope {
	return Envelope{Type: t, Timestamp: Timestamp{now.UTC()}}
}

// ============================================================================
// Domain Payload
// ============================================================================

// SystemHealth summarizes the monitored platform.
type SystemHealth struct {
	Status          string    `json:"status"`
	UptimePercent   float64   `json:"uptime_percentage"`
	ResponseTimeMs  float64   `json:"response_time_ms"`
	ErrorRate       float64   `json:"error_rate"`
	ActiveIncidents int       `json:"active_incidents"`
	SLATarget       float64   `json:"sla_target,omitempty"`
	LastChecked     Timestamp `json:"last_checked,omitempty"`
}

// Alert is a single SLA alert.
type Alert struct {
	ID           string    `json:"id"`
	Severity     string    `json:"severity"`
	Title        string    `json:"title"`
	Message      string    `json:"message,omitempty"`
	Service      string    `json:"service,omitempty"`
	Acknowledged bool      `json:"acknowledged"`
	CreatedAt    Timestamp `json:"created_at"`
}

// ConnectionInfo is server-side metadata about the stream.
type ConnectionInfo struct {
	ConnectedClients int       `json:"connected_clients"`
	ServerTime       Timestamp `json:"server_time,omitempty"`
	TenantID         string    `json:"tenant_id,omitempty"`
}

// SLAData is the full payload of an sla_update frame. The channel treats it
// as opaque; only the cache and subscribers look inside.
type SLAData struct {
	SystemHealth   SystemHealth   `json:"system_health"`
	Alerts         []Alert        `json:"alerts"`
	ConnectionInfo ConnectionInfo `json:"connection_info"`
}

// ============================================================================
// Inbound Variants
// ============================================================================

// InboundMessage is one decoded inbound frame. The concrete type is one of
// *ConnectionEstablished, *SLAUpdate, *UptimeUpdate, *NewAlert, *Pong or
// *UnknownMessage.
type InboundMessage interface {
	Type() MessageType
	Time() time.Time
	Raw() Envelope
}

type inbound struct{ env Envelope }

func (m inbound) Type() MessageType { return m.env.Type }
func (m inbound) Time() time.Time   { return m.env.Timestamp.Time }
func (m inbound) Raw() Envelope     { return m.env }

// ConnectionEstablished is the server greeting.
type ConnectionEstablished struct {
	inbound
	Data map[string]any
}

// SLAUpdate carries a full snapshot. Data is nil when the frame had none.
type SLAUpdate struct {
	inbound
	Data *SLAData
}

// UptimeUpdate carries an uptime delta the channel does not interpret.
type UptimeUpdate struct {
	inbound
	Data json.RawMessage
}

// NewAlert announces an alert. Alert is nil when the frame had no data.
type NewAlert struct {
	inbound
	Alert *Alert
}

// Pong acknowledges a ping.
type Pong struct{ inbound }

// UnknownMessage is any frame whose type is outside the vocabulary.
type UnknownMessage struct{ inbound }

// DecodeMessage parses a raw frame into its typed variant.
func DecodeMessage(frame []byte) (InboundMessage, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	base := inbound{env: env}
	hasData := len(env.Data) > 0 && string(env.Data) != "null"

	switch env.Type {
	case TypeConnectionEstablished:
		msg := &ConnectionEstablished{inbound: base}
		if hasData {
			if err := json.Unmarshal(env.Data, &msg.Data); err != nil {
				return nil, fmt.Errorf("malformed %s data: %w", env.Type, err)
			}
		}
		return msg, nil
	case TypeSLAUpdate:
		msg := &SLAUpdate{inbound: base}
		if hasData {
			var data SLAData
			if err := json.Unmarshal(env.Data, &data); err != nil {
				return nil, fmt.Errorf("malformed %s data: %w", env.Type, err)
			}
			msg.Data = &data
		}
		return msg, nil
	case TypeUptimeUpdate:
		return &UptimeUpdate{inbound: base, Data: env.Data}, nil
	case TypeNewAlert:
		msg := &NewAlert{inbound: base}
		if hasData {
			var alert Alert
			if err := json.Unmarshal(env.Data, &alert); err != nil {
				return nil, fmt.Errorf("malformed %s data: %w", env.Type, err)
			}
			msg.Alert = &alert
		}
		return msg, nil
	case TypePong:
		return &Pong{inbound: base}, nil
	default:
		return &UnknownMessage{inbound: base}, nil
	}
}
