package monitor

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/rickgao/geolink/internal/connection"
)

// AppEvent reports an app lifecycle change.
type AppEvent struct {
	State connection.AppState
	At    time.Time
}

// Lifecycle holds the app lifecycle state and publishes an AppEvent on every change.
// It starts active.
type Lifecycle struct {
	logger *slog.Logger
	hub    hub[AppEvent]

	mu    sync.Mutex
	state connection.AppState
}

// NewLifecycle creates a Lifecycle in the active state.
func NewLifecycle(logger *slog.Logger) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{logger: logger, state: connection.AppActive}
}

// State returns the current lifecycle state.
func (l *Lifecycle) State() connection.AppState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Set records state and reports whether it changed.
func (l *Lifecycle) Set(state connection.AppState) bool {
	l.mu.Lock()
	if l.state == state {
		l.mu.Unlock()
		return false
	}
	prev := l.state
	l.state = state
	l.mu.Unlock()

	l.logger.Info("lifecycle changed", "from", prev, "to", state)
	l.hub.publish(AppEvent{State: state, At: time.Now()})
	return true
}

// Subscribe returns a channel of change events and a function that ends the subscription.
func (l *Lifecycle) Subscribe() (<-chan AppEvent, func()) {
	return l.hub.subscribe()
}

// Follow maps signals from ch to lifecycle states until ctx is done or ch is closed.
// Unmapped signals are ignored.
func (l *Lifecycle) Follow(ctx context.Context, ch <-chan os.Signal, mapping map[os.Signal]connection.AppState) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-ch:
			if !ok {
				return nil
			}
			if state, found := mapping[sig]; found {
				l.Set(state)
			}
		}
	}
}
