package journal

import (
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rickgao/geolink/internal/connection"
)

// ErrJournalFull is returned by Recorder when the buffer rejects an entry.
var ErrJournalFull = errors.New("journal buffer full")

// Entry is one journaled inbound message.
type Entry struct {
	SessionID  string
	Type       string
	SentAt     *time.Time // sender timestamp; nil when missing or unparseable
	ReceivedAt time.Time
	Body       []byte // frame text as received
}

// Recorder is a connection.Listener that copies inbound envelopes into a Buffer.
// Liveness traffic (pong, server_ping) is skipped.
type Recorder struct {
	buf     *Buffer[Entry]
	session func() string
	now     func() time.Time
	logger  *slog.Logger

	recorded atomic.Int64
	dropped  atomic.Int64
}

// NewRecorder creates a Recorder. session supplies the current connection's session id
// and may be nil.
func NewRecorder(buf *Buffer[Entry], session func() string, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if session == nil {
		session = func() string { return "" }
	}
	return &Recorder{
		buf:     buf,
		session: session,
		now:     time.Now,
		logger:  logger,
	}
}

// HandleMessage implements connection.Listener.
func (r *Recorder) HandleMessage(env connection.Envelope) error {
	if env.Type == connection.TypePong || env.Type == connection.TypeServerPing {
		return nil
	}

	entry := Entry{
		SessionID:  r.session(),
		Type:       env.Type,
		ReceivedAt: r.now().UTC(),
		Body:       env.Raw,
	}
	if entry.Body == nil {
		body, err := env.MarshalJSON()
		if err != nil {
			return err
		}
		entry.Body = body
	}
	if ts, err := env.Time(); err == nil {
		ts = ts.UTC()
		entry.SentAt = &ts
	}

	if !r.buf.Send(entry) {
		// Log the first drop and every 100th after it.
		if n := r.dropped.Add(1); n%100 == 1 {
			r.logger.Warn("journal buffer full, dropping messages", "dropped", n)
		}
		return ErrJournalFull
	}

	r.recorded.Add(1)
	return nil
}

// Recorded returns how many entries were buffered.
func (r *Recorder) Recorded() int64 {
	return r.recorded.Load()
}

// Dropped returns how many entries the buffer rejected.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}
