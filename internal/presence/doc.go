// Package presence tracks whether users are connected.
//
// The Tracker writes is_online and last_seen through the store on every
// connect and disconnect. Broadcasting the change to conversation groups is
// the chat session's job.
package presence
