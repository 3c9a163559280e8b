// Package auth signs the websocket handshake with an RSA-PSS key.
//
// The dial carries three headers: the key id, a millisecond timestamp, and a
// base64 signature over timestamp + method + path.
package auth
