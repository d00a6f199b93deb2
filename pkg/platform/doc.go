// Package platform computes the static client profile that tunes the
// transport's keepalive behavior.
//
// Mobile operating systems, iOS in particular, suspend background
// sockets aggressively, so mobile profiles ping more often and wait
// less for the pong. The profile is computed once at startup and
// injected into the transport; nothing branches on platform inline.
package platform
