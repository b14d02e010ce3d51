// Package dedupe remembers recently seen IDs for a fixed window so that
// envelopes delivered more than once by the relay are processed only once.
package dedupe
