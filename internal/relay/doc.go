// Package relay moves group events between parley instances.
//
// Sessions never broadcast on the registry directly; they publish through a
// Relay so that connections to the same conversation on different instances
// see the same events.
//
//   - Local: single instance, delivers into the in-process hub.Registry.
//   - NATS: delivers locally, then publishes a msgpack Envelope to
//     <prefix>.<group>. Every instance subscribes to <prefix>.> and delivers
//     envelopes it has not seen to its own registry.
//
// Envelope IDs are remembered in a dedupe.Cache, which drops redeliveries and
// the publishing instance's own echo.
package relay
