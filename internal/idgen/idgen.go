// Package idgen provides pluggable correlation-ID generation for Talemon's
// daemons. Every capture attempt and extractor run is tagged with an ID from
// here so log lines across the heartbeat goroutine, the capture pipeline,
// and the extractor loop can be joined by a human reading structured logs.
package idgen

import (
	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings,
// time-sortable so log aggregators keep related lines adjacent.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix, used to tag
// correlation IDs by origin (e.g. "cap_" for capture attempts, "ext_" for
// extractor runs) so they're recognizable in logs without a schema lookup.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is the process-wide default: UUIDv7.
var Default Generator = UUIDv7()

// New produces an ID using the Default generator.
func New() string {
	return Default()
}
