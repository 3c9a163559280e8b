package connection

import "context"

// Transport opens message-oriented sockets.
type Transport interface {
	// Open dials url and returns once the socket is open. An error means the socket
	// failed before reaching open; h receives no callbacks in that case.
	Open(ctx context.Context, url string, h Handler) (Conn, error)
}

// Conn is an open socket.
type Conn interface {
	// Send queues a text frame. It does not wait for the write.
	Send(text []byte) error

	// Close sends a close frame with code and reason and releases the socket.
	Close(code int, reason string) error
}

// Handler receives socket callbacks. OnMessage calls arrive in frame order, and OnClose is
// called exactly once, after the last OnMessage.
type Handler interface {
	OnMessage(text []byte)
	OnClose(code int, reason string)
}
