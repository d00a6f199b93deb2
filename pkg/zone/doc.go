// Package zone defines the zone record the synchronization transport
// forwards to consumers.
//
// The transport only cares about a zone's identity. Everything else
// (name, temperatures, schedule, ...) is owned by the configuration
// layer and is carried through as an opaque JSON payload, byte for
// byte unchanged.
package zone
