package monitor

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"
)

// NetworkEvent reports a reachability change.
type NetworkEvent struct {
	Online bool
	At     time.Time
}

// ReachabilityConfig configures a Reachability monitor.
type ReachabilityConfig struct {
	Address  string        // host:port dialed by each probe
	Interval time.Duration // time between probes
	Timeout  time.Duration // per-probe dial bound
}

// DialFunc opens a connection. net.Dialer.DialContext matches it.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Reachability probes a TCP address periodically and publishes a NetworkEvent whenever
// the result changes. It assumes the network is online until a probe says otherwise.
type Reachability struct {
	cfg    ReachabilityConfig
	dial   DialFunc
	logger *slog.Logger
	hub    hub[NetworkEvent]

	mu     sync.Mutex
	online bool
}

// NewReachability creates a Reachability monitor. dial may be nil.
func NewReachability(cfg ReachabilityConfig, dial DialFunc, logger *slog.Logger) *Reachability {
	if logger == nil {
		logger = slog.Default()
	}
	if dial == nil {
		dial = (&net.Dialer{}).DialContext
	}
	return &Reachability{
		cfg:    cfg,
		dial:   dial,
		logger: logger.With("probe_address", cfg.Address),
		online: true,
	}
}

// Online returns the last observed reachability.
func (r *Reachability) Online() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.online
}

// Subscribe returns a channel of change events and a function that ends the subscription.
func (r *Reachability) Subscribe() (<-chan NetworkEvent, func()) {
	return r.hub.subscribe()
}

// Check runs one probe, records the result, and returns it. It can serve as the
// Manager's network check.
func (r *Reachability) Check(ctx context.Context) bool {
	online := r.probe(ctx)
	r.set(online)
	return online
}

// Run probes immediately and then every Interval until ctx is done.
func (r *Reachability) Run(ctx context.Context) error {
	r.logger.Info("reachability monitor started", "interval", r.cfg.Interval)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		r.Check(ctx)

		select {
		case <-ctx.Done():
			r.logger.Info("reachability monitor stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (r *Reachability) probe(ctx context.Context) bool {
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	conn, err := r.dial(ctx, "tcp", r.cfg.Address)
	if err != nil {
		r.logger.Debug("reachability probe failed", "error", err)
		return false
	}
	conn.Close()
	return true
}

func (r *Reachability) set(online bool) {
	r.mu.Lock()
	changed := r.online != online
	r.online = online
	r.mu.Unlock()

	if !changed {
		return
	}

	if online {
		r.logger.Info("network reachable")
	} else {
		r.logger.Warn("network unreachable")
	}
	r.hub.publish(NetworkEvent{Online: online, At: time.Now()})
}
