// Package health provides composable probes and the HTTP handlers behind
// /-/healthy and /-/ready on both listeners.
//
// Probes combine with [All], which reports every failing probe, and [Fixed]
// (static); [CheckFunc] adapts a plain function and [Ping] wraps a store ping
// with a deadline.
//
// [ShutdownGate] fails readiness during graceful shutdown so load balancers
// stop sending traffic before in-flight requests are drained.
package health
