// Package metrics tracks connection health counters that survive
// restarts.
//
// The Store loads its state once at startup, applies every mutation
// under its lock, and writes the state back after each mutation. The
// state is never deleted. Persistence failures are logged and do not
// disturb the in-memory counters.
package metrics
