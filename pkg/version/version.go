// Package version carries the version string stamped into binaries.
package version

// V is the current version, overridden at build time with -ldflags.
var V = "v0.1.0"
