// Copyright 2026 The spkm Authors.
// All rights reserved

// Package model defines the closed data types shared by every spkm
// component: package records, repositories, and index entries.
package model

// DepRef is a reference to another package by name, used for both
// run-time dependencies and reverse-dependencies.
type DepRef struct {
	Name string
}

// Repository is a configured package source. URL is either a filesystem
// path (a local mirror) or a network endpoint.
type Repository struct {
	Name string `toml:"name"`
	URL  string `toml:"url"`
}

// Entry is the value type stored in the local/world* index documents:
// just enough to identify which build of a package is wanted/installed.
type Entry struct {
	Version string `toml:"version"`
	Release int    `toml:"release"`
}

// Package is a fully resolved catalog record for one package.
type Package struct {
	Name         string
	Version      string
	Release      int
	Digest       string
	Size         int64
	Description  string
	Packager     string
	Dependencies []DepRef
	ReverseDeps  []DepRef
	Group        string
	Repository   Repository
}

// Entry projects a Package down to the shape stored in an index document.
func (p Package) Entry() Entry {
	return Entry{Version: p.Version, Release: p.Release}
}

// Matches reports whether the package's version/release matches an
// index entry, i.e. whether it represents the same installed build.
func (p Package) Matches(e Entry) bool {
	return p.Version == e.Version && p.Release == e.Release
}

// ArchiveFilename is the name of the archive file for this package
// within its <group>/<name>/ directory, e.g. "curl-8.9.1.tar.zst".
func (p Package) ArchiveFilename() string {
	return p.Name + "-" + p.Version + ".tar.zst"
}
