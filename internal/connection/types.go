package connection

import (
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrNotConnected       = errors.New("not connected")
	ErrSendBufferFull     = errors.New("send buffer full")
	ErrClosed             = errors.New("manager closed")
	ErrConnectSuperseded  = errors.New("connect superseded by disconnect")
	ErrConnectionLost     = errors.New("connection closed during handshake")
	ErrFieldMissing       = errors.New("field missing")
)

// Close codes understood by the Manager. CloseNormal is the only intentional code.
const (
	CloseNormal   = 1000
	CloseAbnormal = 1006
)

// Message types with fixed meaning.
const (
	TypeLocation     = "location"
	TypePhotoCapture = "photo_capture"
	TypePing         = "ping"
	TypePong         = "pong"
	TypeServerPing   = "server_ping"
)

// State is the connection state. Exactly one holds at any instant.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// AppState is the foreground state reported by the app lifecycle monitor.
type AppState string

const (
	AppActive     AppState = "active"
	AppInactive   AppState = "inactive"
	AppBackground AppState = "background"
)

// CloseError describes a close reported by the Transport.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("connection closed (%d)", e.Code)
	}
	return fmt.Sprintf("connection closed (%d): %s", e.Code, e.Reason)
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	URL            string        // Endpoint, e.g. wss://link.example.com/ws
	PingInterval   time.Duration // Liveness probe period while connected
	MaxAttempts    int           // Consecutive automatic reconnects before giving up
	Backoff        Backoff       // Reconnect delay policy
	ConnectTimeout time.Duration // Bound on connects started by timers and monitors
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		PingInterval:   10 * time.Second,
		MaxAttempts:    5,
		Backoff:        DefaultBackoff(),
		ConnectTimeout: 15 * time.Second,
	}
}

// Stats is a point-in-time view of the Manager.
type Stats struct {
	State               State
	Attempts            int
	SessionID           string // Empty unless connected
	MessagesSent        int64
	MessagesReceived    int64
	ParseErrors         int64
	ListenerErrors      int64
	ReconnectsScheduled int64
}
