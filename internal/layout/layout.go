// Copyright 2026 The spkm Authors.
// All rights reserved

// Package layout centralizes the on-disk path scheme under dbpath,
// cache, and root, so every component agrees on where things live
// without duplicating string joins.
package layout

import "path/filepath"

// Paths under dbpath.
func Local(dbpath string) string    { return filepath.Join(dbpath, "local") }
func World(dbpath string) string    { return filepath.Join(dbpath, "world") }
func WorldNew(dbpath string) string { return filepath.Join(dbpath, "world.new") }
func WorldOld(dbpath string) string { return filepath.Join(dbpath, "world.old") }

func TreesDir(dbpath string) string { return filepath.Join(dbpath, "trees") }

// StagingDir is <dbpath>/staging/<token>, a scratch directory a single
// extraction job extracts into before its files are merged into the
// shared install root. token must be unique per job invocation so
// concurrent workers never share one staging directory.
func StagingDir(dbpath, token string) string {
	return filepath.Join(dbpath, "staging", token)
}

func Tree(dbpath, name string) string {
	return filepath.Join(TreesDir(dbpath), name+".tree")
}

func TreeOld(dbpath, name string) string {
	return filepath.Join(TreesDir(dbpath), name+".tree.old")
}

// CatalogPackageDir is <dbpath>/dist/<repo>/<group>/<name>/.
func CatalogPackageDir(dbpath, repo, group, name string) string {
	return filepath.Join(dbpath, "dist", repo, group, name)
}

func CatalogBaseInfo(dbpath, repo, group, name string) string {
	return filepath.Join(CatalogPackageDir(dbpath, repo, group, name), "package.toml")
}

func CatalogExtraInfo(dbpath, repo, group, name string) string {
	return filepath.Join(CatalogPackageDir(dbpath, repo, group, name), "infos.toml")
}

func CatalogReposDir(dbpath string) string { return filepath.Join(dbpath, "dist") }

func CatalogRepoDir(dbpath, repo string) string { return filepath.Join(dbpath, "dist", repo) }

// CacheArchivePath is <cache>/<repo>/<group>/<name>/<name>-<version>.tar.zst.
func CacheArchivePath(cache, repo, group, name, filename string) string {
	return filepath.Join(cache, repo, group, name, filename)
}

// PkgTreeEntry is the top-level archive entry name carrying the file manifest.
const PkgTreeEntry = ".PKGTREE"
