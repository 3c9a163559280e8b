// Package status implements the HTTP status and control surface of the agent.
//
// Routes:
//
//	GET  /health      200 when connected, 503 otherwise
//	GET  /status      connection state, counters, last message, version
//	POST /location    send a location envelope
//	POST /photos      send a photo capture notification
//	POST /connect     connect (returns once open or failed)
//	POST /disconnect  disconnect without reconnecting
package status
