// Package chat implements the in-memory core of the room relay: the
// nickname registry, the room store with its per-room event logs, and the
// router that validates client intents and fans out the resulting notices.
//
// The package knows nothing about websockets. Outbound notices leave through
// the Transport interface, which the server package implements on top of its
// per-connection send queues.
package chat
