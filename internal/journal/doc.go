// Package journal implements the inbound message journal component.
//
// A Recorder is registered as a connection listener and copies every inbound
// envelope into a Buffer without blocking delivery. A Writer drains the buffer
// and persists entries to PostgreSQL in batches.
//
//	Manager ──> Recorder ──> Buffer[Entry] ──> Writer ──> link_messages
package journal
