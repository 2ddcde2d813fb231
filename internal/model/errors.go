// Copyright 2026 The spkm Authors.
// All rights reserved

package model

import (
	"fmt"

	"github.com/crossplane/crossplane-runtime/pkg/errors"
)

// Sentinel error kinds from the error-handling taxonomy. Components wrap
// these with errors.Wrap/Wrapf rather than returning bare strings, so
// callers can still test the kind with errors.Is.
var (
	// ErrIndexMissing is returned by index.Load when the file does not exist.
	ErrIndexMissing = errors.New("index file does not exist")
	// ErrIndexCorrupt is returned by index.Load when the file cannot be parsed.
	ErrIndexCorrupt = errors.New("index file is corrupt")
	// ErrCatalogCorrupt is returned when catalog metadata documents are
	// malformed or contradict each other.
	ErrCatalogCorrupt = errors.New("catalog metadata is corrupt")
	// ErrUserCancelled is returned when the confirmation prompt is declined.
	ErrUserCancelled = errors.New("user cancelled the operation")
)

// NotFoundError aggregates every package name that could not be resolved
// in a single operation, rather than failing on the first.
type NotFoundError struct {
	Names []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("package(s) not found: %v", e.Names)
}

// ResolveMissingError aggregates every dependency name the catalog could
// not resolve while computing a closure.
type ResolveMissingError struct {
	Names []string
}

func (e *ResolveMissingError) Error() string {
	return fmt.Sprintf("dependenc(y/ies) not found: %v", e.Names)
}

// FetchNetworkError wraps a transport-level failure during a network fetch.
type FetchNetworkError struct {
	Name string
	Err  error
}

func (e *FetchNetworkError) Error() string {
	return fmt.Sprintf("network error fetching %q: %v", e.Name, e.Err)
}

func (e *FetchNetworkError) Unwrap() error { return e.Err }

// FetchIOError wraps a local filesystem failure during fetch (copy from
// a local mirror, or cache directory creation).
type FetchIOError struct {
	Name string
	Err  error
}

func (e *FetchIOError) Error() string {
	return fmt.Sprintf("i/o error fetching %q: %v", e.Name, e.Err)
}

func (e *FetchIOError) Unwrap() error { return e.Err }

// FetchDigestMismatchError is returned when a fetched archive's digest
// does not equal the catalog digest. The caller has already deleted the
// partial file by the time this is returned.
type FetchDigestMismatchError struct {
	Name string
	Want string
	Got  string
}

func (e *FetchDigestMismatchError) Error() string {
	return fmt.Sprintf("digest mismatch for %q: want %s, got %s", e.Name, e.Want, e.Got)
}

// ExtractionFailedError is returned when an extraction subprocess exits
// non-zero.
type ExtractionFailedError struct {
	Name string
	Err  error
}

func (e *ExtractionFailedError) Error() string {
	return fmt.Sprintf("extraction failed for %q: %v", e.Name, e.Err)
}

func (e *ExtractionFailedError) Unwrap() error { return e.Err }

// ManifestMissingError is returned when an archive does not carry a
// top-level .PKGTREE entry, or it goes missing after apparent success.
type ManifestMissingError struct {
	Name string
}

func (e *ManifestMissingError) Error() string {
	return fmt.Sprintf("package %q archive is missing its .PKGTREE manifest", e.Name)
}
