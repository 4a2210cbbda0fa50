// Package ratelimit implements the token-bucket limiter of spec §4.4/§9:
// keyed first by device id, falling back to source IP, pluggable so a
// distributed backend can replace the in-memory default without changing
// the call site.
package ratelimit

import "time"

// Decision is the result of asking whether a key may proceed right now.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter is implemented by both the in-memory bucket map and the
// redis-backed distributed variant; middleware only depends on this.
type Limiter interface {
	Allow(key string) Decision
}
