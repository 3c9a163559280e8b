package monitor

import (
	"context"

	"github.com/rickgao/geolink/internal/connection"
)

// Target receives monitor events. *connection.Manager satisfies it.
type Target interface {
	HandleNetworkChange(online bool)
	HandleAppStateChange(state connection.AppState)
}

// NetworkSource publishes reachability changes.
type NetworkSource interface {
	Subscribe() (<-chan NetworkEvent, func())
}

// AppSource publishes lifecycle changes.
type AppSource interface {
	Subscribe() (<-chan AppEvent, func())
}

// Bind forwards events from network and app into target until ctx is done. Either
// source may be nil.
func Bind(ctx context.Context, target Target, network NetworkSource, app AppSource) error {
	var netCh <-chan NetworkEvent
	if network != nil {
		ch, unsubscribe := network.Subscribe()
		defer unsubscribe()
		netCh = ch
	}

	var appCh <-chan AppEvent
	if app != nil {
		ch, unsubscribe := app.Subscribe()
		defer unsubscribe()
		appCh = ch
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-netCh:
			if !ok {
				netCh = nil
				continue
			}
			target.HandleNetworkChange(ev.Online)
		case ev, ok := <-appCh:
			if !ok {
				appCh = nil
				continue
			}
			target.HandleAppStateChange(ev.State)
		}
	}
}
