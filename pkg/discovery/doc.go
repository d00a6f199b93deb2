// Package discovery locates heating hubs on the local network via
// mDNS/DNS-SD.
//
// Hubs advertise a _smart-heating._tcp service whose TXT records carry
// the API version, path and TLS flag. Browse streams hubs as they are
// found, aggregating addresses across interfaces; Find returns the
// first one. Discovery is a convenience for native hosts where no
// launch URL points at the hub.
package discovery
