// Package server wires the parley components into a running HTTP service.
//
// New builds the store, token verifier, hub registry, relay (NATS when
// relay.nats_url is set, in-process otherwise), conversation service and
// chat socket handler from a config.Config. Run serves on TCP or on a
// Tailscale tsnet listener until the context is cancelled, then Shutdown
// stops accepting requests, closes every live chat session and releases
// the relay, tsnet node and database in that order.
//
// Routes:
//
//	GET  /health                              liveness
//	GET  /health/ready                        database ping
//	GET  /ws/chat/{id}/                       chat socket
//	POST /api/conversations                   resolve or create a conversation
//	POST /api/conversations/{id}/read         mark read, returns unread count
//	GET  /api/conversations/{id}/unread       unread count
//	GET  /api/conversations/{id}/messages     history page, newest first
//	GET  /api/stats                           dashboard totals
//	GET  <metrics.path>                       Prometheus, when enabled
//
// API routes require a bearer token and answer errors as {"error": "..."}.
package server
