// Package prometheus renders authcore metrics in the Prometheus text
// exposition format.
//
// Counter names are prefixed authcore_ and suffixed _total; the single
// histogram is authcore_bearer_verify_latency_seconds. Nothing is registered
// globally: callers mount [Exporter.Handler].
package prometheus
