// Package metrics exposes parley's Prometheus collectors.
//
// Components receive a *Metrics and call its recording methods directly. A
// nil *Metrics is valid everywhere and records nothing, so metrics can be
// disabled in configuration without nil checks at call sites.
package metrics
