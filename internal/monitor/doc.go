// Package monitor implements the network reachability and app lifecycle monitors.
//
// Both monitors publish change events to subscribers. Bind forwards those events
// into a connection.Manager, which decides whether to reconnect.
package monitor
