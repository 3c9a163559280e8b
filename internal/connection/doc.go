// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Owns the single persistent link to the realtime endpoint
//   - Drives a Disconnected/Connecting/Connected state machine from Transport callbacks,
//     explicit Connect/Disconnect calls, and network and app lifecycle events
//   - Reconnects with jittered exponential backoff, at most MaxAttempts in a row
//   - Sends a ping every PingInterval while connected
//   - Fans every inbound envelope out to the registered listeners
//
// One Manager is constructed at application start and shared by reference; Close tears it down.
package connection
