// Package connlog records connection lifecycle events to an
// append-only CBOR journal for offline diagnosis of flaky links.
//
// Writing never disrupts the client: encoding errors are dropped, and
// a nil *Writer is a valid no-op destination. The Reader side decodes
// a journal back into events, tolerating a truncated final record.
package connlog
