// Package token locates the bearer token used for the realtime auth
// handshake.
//
// A Resolver tries its sources in strict order and returns the first
// non-empty token. It never returns an error: exhausting all sources
// yields ("", false), which the caller treats as fatal for the current
// connect attempt (not as a retryable error distinct from connection
// failure).
//
// The four standard sources, in resolution order:
//  1. a token injected at construction (server-rendered),
//  2. a token in the launch URL's query string,
//  3. a token exposed by an embedding host session,
//  4. a token persisted in local storage as a JSON document with an
//     access_token field.
package token
