// Copyright 2026 The spkm Authors.
// All rights reserved

// Package catalog locates packages across configured repositories and
// reads their per-package metadata documents.
package catalog

import (
	"context"
	"os"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"

	"github.com/crossplane/crossplane-runtime/pkg/errors"

	"github.com/stock-linux/spkm/internal/layout"
	"github.com/stock-linux/spkm/internal/model"
)

// baseInfo is the shape of package.toml.
type baseInfo struct {
	Version     string `toml:"version"`
	Release     int    `toml:"release"`
	Description string `toml:"description"`
	Packager    string `toml:"packager"`
}

// extraInfo is the shape of infos.toml.
type extraInfo struct {
	Digest       string    `toml:"digest"`
	Size         int64     `toml:"size"`
	Dependencies []depInfo `toml:"dependencies"`
	ReverseDeps  []depInfo `toml:"reverse-deps"`
}

type depInfo struct {
	Name string `toml:"name"`
}

// Catalog resolves packages by scanning dbpath/dist/<repo>/<group>/<name>
// directories in configured repository order.
type Catalog struct {
	fs     afero.Fs
	dbpath string
	repos  []model.Repository
}

// New constructs a Catalog. fs is the filesystem the dbpath tree lives
// on (always the local/OS filesystem: catalog metadata is mirrored
// in-tree under dbpath regardless of where the repository's archive
// content ultimately lives).
func New(fs afero.Fs, dbpath string, repos []model.Repository) *Catalog {
	return &Catalog{fs: fs, dbpath: dbpath, repos: repos}
}

// Lookup scans configured repositories in order and returns the first
// matching package. The boolean is false, with a nil error, when no
// repository has a matching directory — the "not found" case is never
// signalled by a zero-value record.
func (c *Catalog) Lookup(_ context.Context, name string) (model.Package, bool, error) {
	for _, repo := range c.repos {
		groups, err := afero.ReadDir(c.fs, layout.CatalogRepoDir(c.dbpath, repo.Name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return model.Package{}, false, errors.Wrapf(err, "enumerating repository %q", repo.Name)
		}

		for _, g := range groups {
			if !g.IsDir() {
				continue
			}
			dir := layout.CatalogPackageDir(c.dbpath, repo.Name, g.Name(), name)
			exists, err := afero.DirExists(c.fs, dir)
			if err != nil {
				return model.Package{}, false, errors.Wrapf(err, "checking %s", dir)
			}
			if !exists {
				continue
			}

			pkg, err := c.read(repo, g.Name(), name)
			if err != nil {
				return model.Package{}, false, err
			}
			return pkg, true, nil
		}
	}
	return model.Package{}, false, nil
}

func (c *Catalog) read(repo model.Repository, group, name string) (model.Package, error) {
	var base baseInfo
	basePath := layout.CatalogBaseInfo(c.dbpath, repo.Name, group, name)
	if err := decodeTOML(c.fs, basePath, &base); err != nil {
		return model.Package{}, errors.Wrapf(model.ErrCatalogCorrupt, "%s: %v", basePath, err)
	}

	var extra extraInfo
	extraPath := layout.CatalogExtraInfo(c.dbpath, repo.Name, group, name)
	if err := decodeTOML(c.fs, extraPath, &extra); err != nil {
		return model.Package{}, errors.Wrapf(model.ErrCatalogCorrupt, "%s: %v", extraPath, err)
	}

	if extra.Digest == "" {
		return model.Package{}, errors.Wrapf(model.ErrCatalogCorrupt, "%s: missing mandatory digest", extraPath)
	}

	return model.Package{
		Name:         name,
		Version:      base.Version,
		Release:      base.Release,
		Digest:       extra.Digest,
		Size:         extra.Size,
		Description:  base.Description,
		Packager:     base.Packager,
		Dependencies: toDepRefs(extra.Dependencies),
		ReverseDeps:  toDepRefs(extra.ReverseDeps),
		Group:        group,
		Repository:   repo,
	}, nil
}

func decodeTOML(fs afero.Fs, path string, v any) error {
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return err
	}
	if !exists {
		return errors.Errorf("%s does not exist", path)
	}
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return err
	}
	_, err = toml.Decode(string(raw), v)
	return err
}

func toDepRefs(in []depInfo) []model.DepRef {
	if len(in) == 0 {
		return nil
	}
	out := make([]model.DepRef, 0, len(in))
	for _, d := range in {
		out = append(out, model.DepRef{Name: d.Name})
	}
	return out
}

// Names returns every package name across every repository, sorted, for
// diagnostic use and for tests; not required by the apply path itself.
func (c *Catalog) Names(_ context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	for _, repo := range c.repos {
		groups, err := afero.ReadDir(c.fs, layout.CatalogRepoDir(c.dbpath, repo.Name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, errors.Wrapf(err, "enumerating repository %q", repo.Name)
		}
		for _, g := range groups {
			if !g.IsDir() {
				continue
			}
			pkgs, err := afero.ReadDir(c.fs, layout.CatalogRepoDir(c.dbpath, repo.Name)+"/"+g.Name())
			if err != nil {
				continue
			}
			for _, p := range pkgs {
				if p.IsDir() {
					seen[p.Name()] = struct{}{}
				}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}
