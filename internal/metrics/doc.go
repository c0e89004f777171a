// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Request totals, durations and retries per endpoint
//   - Circuit breaker state and rate limiter waits
//   - Cache hits, misses, evictions and residency
//   - Request weight consumed against the exchange budget
//   - Stream connects, reconnects, messages and decode errors
package metrics
