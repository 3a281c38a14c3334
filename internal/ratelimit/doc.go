// Package ratelimit is per-IP rate limiting middleware for the public
// listener.
//
// Single-instance and in-memory. Each client IP gets a token bucket, idle
// buckets are evicted after a TTL, and the number of tracked IPs is capped
// so a spray of source addresses cannot grow the map without bound. The
// first denial per visitor fires a callback for logging, and every denial
// fires another for metrics.
//
// It does not protect against distributed attacks or bandwidth-bill
// attacks. Use upstream filtering for those.
package ratelimit
