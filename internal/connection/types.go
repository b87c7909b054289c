package connection

import (
	"errors"
	"fmt"
	"time"

	"github.com/rickgao/marketstream/internal/event"
)

// Errors
var (
	ErrNotConnected      = errors.New("not connected")
	ErrAuthFailed        = errors.New("authentication failed")
	ErrMissingCredential = errors.New("missing credential")
	ErrTransport         = errors.New("transport error")
	ErrStaleConnection   = errors.New("connection stale (no pong)")
	ErrAlreadyClosed     = errors.New("already closed")
	ErrReconnecting      = errors.New("reconnection in progress")
)

// State is the lifecycle state of a MarketConn.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateConnected
	StateError
)

var stateNames = [...]string{
	StateDisconnected:   "disconnected",
	StateConnecting:     "connecting",
	StateAuthenticating: "authenticating",
	StateConnected:      "connected",
	StateError:          "error",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText renders the state by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name produced by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// Outbound frame actions.
const (
	actionAuth        = "auth"
	actionSubscribe   = "subscribe"
	actionUnsubscribe = "unsubscribe"
)

// command is an outbound control frame. Channel lists are comma-joined into
// Params.
type command struct {
	Action string `json:"action"`
	Params string `json:"params"`
}

// Status values carried by records with "ev":"status".
const (
	statusConnected   = "connected"
	statusAuthSuccess = "auth_success"
	statusAuthFailed  = "auth_failed"
	statusSuccess     = "success"
	statusError       = "error"
)

var statusDescriptions = map[string]string{
	statusConnected:   "connected to feed",
	statusAuthSuccess: "authenticated",
	statusAuthFailed:  "authentication rejected",
	statusSuccess:     "request acknowledged",
	statusError:       "feed reported an error",
}

// Message is one normalized event delivered to handlers.
type Message struct {
	Market     string      `json:"market"`
	ReceivedAt time.Time   `json:"received_at"`
	Event      event.Event `json:"event"`
}

// Handler consumes normalized events. A returned error is logged and does
// not stop delivery to other handlers.
type Handler func(Message) error

// StateChange is emitted on every state transition of a MarketConn.
type StateChange struct {
	ConnID string
	Market string
	From   State
	To     State
	Err    string
	At     time.Time
}

// Status is a point-in-time snapshot of a MarketConn. It never contains the
// credential.
type Status struct {
	ID                string   `json:"id"`
	Market            string   `json:"market"`
	State             State    `json:"state"`
	Endpoint          string   `json:"endpoint"`
	Subscriptions     []string `json:"subscriptions"`
	SubscriptionCount int      `json:"subscription_count"`
	ReconnectAttempts int      `json:"reconnect_attempts"`
	LastError         string   `json:"last_error,omitempty"`
	MessagesReceived  int64    `json:"messages_received"`
}

// MessageStats describes the recent-message buffer of a MarketConn.
type MessageStats struct {
	Total    int64 `json:"total"`
	Buffered int   `json:"buffered"`
	Capacity int   `json:"capacity"`
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // Feed URL (e.g., wss://socket.polygon.io/stocks)
	PingInterval     time.Duration // How often to send a keepalive ping
	PongTimeout      time.Duration // Max wait for a pong before the connection is stale
	WriteTimeout     time.Duration // Write deadline for sends
	HandshakeTimeout time.Duration // WebSocket opening handshake limit
	BufferSize       int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingInterval:     30 * time.Second,
		PongTimeout:      10 * time.Second,
		WriteTimeout:     5 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		BufferSize:       10000,
	}
}

// Config configures every MarketConn created by a Registry.
type Config struct {
	Client       ClientConfig
	BackoffBase  time.Duration // First reconnect delay
	BackoffMax   time.Duration // Reconnect delay ceiling
	AuthTimeout  time.Duration // Max wait for the auth response
	RecentBuffer int           // Recent normalized messages kept per connection
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Client:       DefaultClientConfig(),
		BackoffBase:  time.Second,
		BackoffMax:   30 * time.Second,
		AuthTimeout:  10 * time.Second,
		RecentBuffer: 100,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Client.PingInterval <= 0 {
		c.Client.PingInterval = d.Client.PingInterval
	}
	if c.Client.PongTimeout <= 0 {
		c.Client.PongTimeout = d.Client.PongTimeout
	}
	if c.Client.WriteTimeout <= 0 {
		c.Client.WriteTimeout = d.Client.WriteTimeout
	}
	if c.Client.HandshakeTimeout <= 0 {
		c.Client.HandshakeTimeout = d.Client.HandshakeTimeout
	}
	if c.Client.BufferSize <= 0 {
		c.Client.BufferSize = d.Client.BufferSize
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = d.BackoffBase
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = d.BackoffMax
	}
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = d.AuthTimeout
	}
	if c.RecentBuffer <= 0 {
		c.RecentBuffer = d.RecentBuffer
	}
	return c
}
