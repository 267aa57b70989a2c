//go:build sqlite_vec
// +build sqlite_vec

package index

// Cgo build: github.com/mattn/go-sqlite3 with the sqlite-vec extension,
// so vector similarity runs inside the database.
//
//	CGO_ENABLED=1 go build -tags "sqlite_vec" ./...

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName selects the database/sql driver for this build.
	DriverName = "sqlite3"

	// VectorExtensionAvailable reports whether similarity can be computed
	// in SQL; queryOptimized depends on it.
	VectorExtensionAvailable = true

	// BuildMode names the build configuration for the version report.
	BuildMode = "cgo"
)
