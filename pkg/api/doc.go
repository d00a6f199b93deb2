// Package api is the thin authenticated HTTP client both transports
// consume: JSON GET/POST with bearer auth, a bounded response size,
// and non-2xx statuses surfaced as errors.
package api
