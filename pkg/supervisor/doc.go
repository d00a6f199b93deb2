// Package supervisor owns the reconnection and fallback policy for the
// zone state transports.
//
// The supervisor runs the WebSocket channel as the primary transport.
// Unexpected closes schedule reconnects with exponential backoff and
// jitter; after a run of consecutive failures it activates the polling
// fallback and keeps probing the primary in the background, tearing the
// fallback down the moment a probe authenticates. Host lifecycle wake
// signals (visibility, focus, network-online, resume) bypass the
// backoff and retry immediately.
//
// The transports themselves never retry; every reconnect decision is
// made here.
package supervisor
