package progress

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// DefaultNATSSubjectPrefix is the subject prefix for progress events; the
// session id is appended (studio.progress.<sessionID>).
const DefaultNATSSubjectPrefix = "studio.progress"

// NATSBridge publishes progress events to NATS subjects.
type NATSBridge struct {
	conn   *nats.Conn
	prefix string
	logger *slog.Logger
}

// NATSBridgeOption configures a NATSBridge.
type NATSBridgeOption func(*NATSBridge)

// WithNATSSubjectPrefix overrides the subject prefix.
func WithNATSSubjectPrefix(prefix string) NATSBridgeOption {
	return func(b *NATSBridge) { b.prefix = prefix }
}

// WithNATSLogger sets the bridge logger.
func WithNATSLogger(logger *slog.Logger) NATSBridgeOption {
	return func(b *NATSBridge) { b.logger = logger }
}

// NewNATSBridge returns a bridge publishing through the given connection.
func NewNATSBridge(conn *nats.Conn, opts ...NATSBridgeOption) *NATSBridge {
	b := &NATSBridge{
		conn:   conn,
		prefix: DefaultNATSSubjectPrefix,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Callback returns a progress callback that publishes each event. Publish
// failures are logged and swallowed.
func (b *NATSBridge) Callback() Callback {
	return func(evt Event) {
		data, err := json.Marshal(evt)
		if err != nil {
			b.logger.Warn("Failed to marshal progress event", "type", evt.Type, "error", err)
			return
		}

		subject := fmt.Sprintf("%s.%s", b.prefix, evt.SessionID)
		if err := b.conn.Publish(subject, data); err != nil {
			b.logger.Warn("Failed to publish progress event",
				"subject", subject,
				"type", evt.Type,
				"error", err)
		}
	}
}

// Fanout combines multiple callbacks into one. Nil entries are skipped.
func Fanout(callbacks ...Callback) Callback {
	return func(evt Event) {
		for _, cb := range callbacks {
			if cb != nil {
				cb(evt)
			}
		}
	}
}
