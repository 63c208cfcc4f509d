// Package types defines the records polled from the Prism data API and the
// alert events derived from them. These are the canonical in-memory
// representations shared by the monitor, the inbox and the HTTP surface.
package types
