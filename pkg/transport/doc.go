// Package transport implements the two channels that deliver zone
// state to the client.
//
// WebSocket is the primary channel: a persistent socket carrying JSON
// text frames, with an auth handshake, an adaptive keepalive and
// message dispatch. Polling is the fallback channel: a periodic
// full-state fetch over the plain HTTP API, used when persistent
// connections are not viable.
//
// Both satisfy the Transport interface and report to the consumer
// through the same Callbacks, so the supervisor can swap one for the
// other without the consumer noticing.
//
// Neither transport retries anything internally. Token resolution
// failures, auth rejections and socket closes are reported upward;
// all reconnection policy lives in the supervisor.
package transport
