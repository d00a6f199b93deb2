// Package connection provides the retry policy primitives used by the
// transport supervisor.
//
// # Reconnection strategy
//
// Failed connection attempts back off exponentially:
//
//  1. Initial delay: 1 second
//  2. Exponential increase: 2s, 4s, 8s, 16s
//  3. Maximum delay: 30 seconds
//  4. Reset to 1s on successful connection
//
// Each delay carries random jitter, up to 25% of the base delay, so a
// fleet of clients does not retry in lockstep after a server restart.
//
// # Wake signals
//
// Wake reasons model "the user is back" lifecycle events (app visible
// again, focus regained, network online, resume from sleep). They are
// the opposite of failures: the supervisor responds to them by
// resetting the backoff and retrying immediately.
package connection
