// Package broadcast fans animation events out to all connected WebSocket
// clients. The hub is a single-goroutine actor: connection registration,
// unregistration and publishing are serialized through a command channel,
// so the client set needs no locking.
package broadcast
