//go:build purego || !sqlite_vec
// +build purego !sqlite_vec

package index

// Default build: modernc.org/sqlite, no C compiler needed. Without the
// vector extension, similarity is computed in Go over stored blobs.
//
//	CGO_ENABLED=0 go build ./...

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName selects the database/sql driver for this build.
	DriverName = "sqlite"

	// VectorExtensionAvailable reports whether similarity can be computed
	// in SQL; the fallback scan path runs when it is false.
	VectorExtensionAvailable = false

	// BuildMode names the build configuration for the version report.
	BuildMode = "purego"
)
