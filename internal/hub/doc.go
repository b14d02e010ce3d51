// Package hub is the in-memory broadcast registry for live chat connections.
//
// A Registry maps a group key (the conversation ID) to the Handles joined to
// it. Broadcast snapshots the members and enqueues the event on each without
// blocking; a recipient whose queue is full or closed is closed itself and
// leaves through its own teardown path. The broadcaster never sees delivery
// errors.
//
// Handles decide what to do with an event at delivery time. Chat sessions
// use Event.OriginUserID to drop their own typing signals.
package hub
