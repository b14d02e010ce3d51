// Package realtime serves the chat socket.
//
// A client connects to /ws/chat/{conversation_id}/ with a bearer token in the
// "token" query parameter or the Authorization header. The handshake is
// refused with a bare 403 unless the token resolves to an active user who
// participates in the conversation.
//
// Each accepted connection becomes a Session that moves through
// Unauthenticated, Authenticating, Joined and Closed. While Joined it owns one
// read loop, which handles frames strictly in arrival order, and one write
// loop, which drains a bounded outbound queue. Events reach other connections
// through a relay.Relay; the Session is the hub.Handle the relay delivers to.
package realtime
