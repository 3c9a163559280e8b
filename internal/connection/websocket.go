package connection

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebsocketConfig configures the websocket Transport.
type WebsocketConfig struct {
	HandshakeTimeout time.Duration // Dial + upgrade bound
	WriteTimeout     time.Duration // Write deadline per frame
	SendBuffer       int           // Queued outbound frames per connection

	// Header, when set, supplies handshake headers for the dialed URL (e.g. signed auth headers).
	Header func(url string) (http.Header, error)
}

// DefaultWebsocketConfig returns sensible defaults.
func DefaultWebsocketConfig() WebsocketConfig {
	return WebsocketConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		SendBuffer:       256,
	}
}

// WebsocketTransport implements Transport with gorilla/websocket.
type WebsocketTransport struct {
	cfg    WebsocketConfig
	dialer *websocket.Dialer
	logger *slog.Logger
}

// NewWebsocketTransport creates a websocket Transport.
func NewWebsocketTransport(cfg WebsocketConfig, logger *slog.Logger) *WebsocketTransport {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SendBuffer < 1 {
		cfg.SendBuffer = 1
	}

	return &WebsocketTransport{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		logger: logger,
	}
}

// Open dials url and starts the read and write loops.
func (t *WebsocketTransport) Open(ctx context.Context, url string, h Handler) (Conn, error) {
	header := http.Header{}
	if t.cfg.Header != nil {
		signed, err := t.cfg.Header(url)
		if err != nil {
			return nil, err
		}
		header = signed
	}

	ws, _, err := t.dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}

	c := &wsConn{
		ws:           ws,
		handler:      h,
		logger:       t.logger.With("url", url),
		writeTimeout: t.cfg.WriteTimeout,
		send:         make(chan []byte, t.cfg.SendBuffer),
		done:         make(chan struct{}),
	}

	go c.writeLoop()
	go c.readLoop()

	t.logger.Debug("websocket connected", "url", url)
	return c, nil
}

// wsConn is one open websocket.
type wsConn struct {
	ws           *websocket.Conn
	handler      Handler
	logger       *slog.Logger
	writeTimeout time.Duration

	send chan []byte
	done chan struct{}

	mu          sync.Mutex
	closed      bool
	closeCode   int
	closeReason string
}

// Send queues a text frame for the write loop.
func (c *wsConn) Send(text []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrNotConnected
	}

	select {
	case c.send <- text:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close sends a close frame and shuts the socket. The read loop reports code and reason
// to the handler.
func (c *wsConn) Close(code int, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	close(c.done)
	c.mu.Unlock()

	deadline := time.Now().Add(time.Second)
	if c.writeTimeout > 0 {
		deadline = time.Now().Add(c.writeTimeout)
	}
	err := c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	if cerr := c.ws.Close(); err == nil {
		err = cerr
	}
	return err
}

// readLoop delivers frames in order and reports the close exactly once.
func (c *wsConn) readLoop() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			code, reason := c.closeStatus(err)
			c.shutdown()
			c.handler.OnClose(code, reason)
			return
		}
		c.handler.OnMessage(data)
	}
}

// closeStatus maps a read error to a close code. A local Close wins over whatever the
// read returned.
func (c *wsConn) closeStatus(err error) (int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed && c.closeCode != 0 {
		return c.closeCode, c.closeReason
	}

	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	return CloseAbnormal, err.Error()
}

// shutdown stops the write loop after a remote close or read failure.
func (c *wsConn) shutdown() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	c.mu.Unlock()
	c.ws.Close()
}

func (c *wsConn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			if c.writeTimeout > 0 {
				c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn("websocket write failed", "error", err)
				// Closing the socket ends the read loop, which reports the close.
				c.ws.Close()
				return
			}
		}
	}
}
