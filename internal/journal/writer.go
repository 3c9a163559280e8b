package journal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
)

const insertEntry = `
	INSERT INTO link_messages (session_id, msg_type, sent_at, received_at, body)
	VALUES ($1, $2, $3, $4, $5)
`

// Inserter sends a batch of statements. *pgxpool.Pool satisfies it.
type Inserter interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// WriterConfig configures a Writer.
type WriterConfig struct {
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     100,
		FlushInterval: 2 * time.Second,
	}
}

// WriterStats counts writer activity.
type WriterStats struct {
	Inserts   int64
	Errors    int64
	Flushes   int64
	Abandoned int64 // entries left unwritten when Stop's ctx expired
}

// Writer consumes entries from a Buffer and inserts them into link_messages in batches,
// flushing when a batch fills or the flush interval passes.
type Writer struct {
	cfg    WriterConfig
	input  *Buffer[Entry]
	db     Inserter
	logger *slog.Logger

	mu      sync.Mutex
	batch   []Entry
	metrics WriterStats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWriter creates a Writer.
func NewWriter(cfg WriterConfig, input *Buffer[Entry], db Inserter, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultWriterConfig().FlushInterval
	}
	return &Writer{
		cfg:    cfg,
		input:  input,
		db:     db,
		logger: logger,
		batch:  make([]Entry, 0, cfg.BatchSize),
	}
}

// Start begins consuming entries.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(2)
	go w.consumeLoop()
	go w.flushLoop()

	w.logger.Info("journal writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop stops consuming, then writes whatever is batched or still buffered using ctx.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping journal writer")

	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.abandon("stop timed out")
		return ctx.Err()
	}

	rest := w.input.DrainTo(0)
	w.mu.Lock()
	w.batch = append(w.batch, rest...)
	w.mu.Unlock()

	for w.flush(ctx) {
		if ctx.Err() != nil {
			w.abandon("final flush interrupted")
			return ctx.Err()
		}
	}

	w.logger.Info("journal writer stopped", "inserts", w.Stats().Inserts)
	return nil
}

// Stats returns current metrics.
func (w *Writer) Stats() WriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.metrics
}

// abandon counts and logs entries that are batched or still buffered.
func (w *Writer) abandon(reason string) {
	w.mu.Lock()
	n := int64(len(w.batch) + w.input.Len())
	w.metrics.Abandoned += n
	w.mu.Unlock()

	w.logger.Warn("journal writer abandoned entries", "reason", reason, "count", n)
}

func (w *Writer) consumeLoop() {
	defer w.wg.Done()

	for {
		entry, ok := w.input.Receive(w.ctx)
		if !ok {
			return
		}

		w.mu.Lock()
		w.batch = append(w.batch, entry)
		full := len(w.batch) >= w.cfg.BatchSize
		w.mu.Unlock()

		if full {
			w.flush(w.ctx)
		}
	}
}

func (w *Writer) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(w.ctx)
		}
	}
}

// flush writes up to one batch. It reports whether more entries remain batched.
func (w *Writer) flush(ctx context.Context) bool {
	w.mu.Lock()
	if len(w.batch) == 0 {
		w.mu.Unlock()
		return false
	}

	n := min(len(w.batch), w.cfg.BatchSize)
	rows := w.batch[:n:n]
	w.batch = append(make([]Entry, 0, w.cfg.BatchSize), w.batch[n:]...)
	more := len(w.batch) > 0
	w.mu.Unlock()

	start := time.Now()
	if err := w.insert(ctx, rows); err != nil {
		w.logger.Error("journal insert failed", "error", err, "count", len(rows))
		w.mu.Lock()
		w.metrics.Errors++
		w.mu.Unlock()
		return more
	}

	w.mu.Lock()
	w.metrics.Inserts += int64(len(rows))
	w.metrics.Flushes++
	w.mu.Unlock()

	w.logger.Debug("flushed journal entries",
		"count", len(rows),
		"duration", time.Since(start),
	)
	return more
}

func (w *Writer) insert(ctx context.Context, rows []Entry) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertEntry, r.SessionID, r.Type, r.SentAt, r.ReceivedAt, r.Body)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}
