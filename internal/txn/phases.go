// Copyright 2026 The spkm Authors.
// All rights reserved

package txn

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/crossplane/crossplane-runtime/pkg/errors"

	"github.com/stock-linux/spkm/internal/extract"
	"github.com/stock-linux/spkm/internal/layout"
	"github.com/stock-linux/spkm/internal/model"
	"github.com/stock-linux/spkm/internal/planner"
)

// applyDeletions is Phase 1: for each del, remove every path the
// package's tree manifest lists, then drop the tree and the local
// entry. Unlink failures are logged, not fatal — partial pre-existing
// state should not block the rest of the apply.
func (m *Manager) applyDeletions(local map[string]model.Entry, dels []planner.NamedEntry) error {
	for _, d := range dels {
		if err := m.removeByManifest(layout.Tree(m.dbpath, d.Name)); err != nil {
			m.log.Warn("removing files for %q: %v", d.Name, err)
		}

		delete(local, d.Name)

		if err := m.fs.Remove(layout.Tree(m.dbpath, d.Name)); err != nil && !os.IsNotExist(err) {
			m.log.Warn("removing tree manifest for %q: %v", d.Name, err)
		}
	}
	return nil
}

// removeByManifest reads a newline-separated manifest and removes every
// regular file/symlink it lists under root, collecting directories to
// prune afterward (only if they end up empty).
func (m *Manager) removeByManifest(manifestPath string) error {
	raw, err := afero.ReadFile(m.fs, manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var dirs []string
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		full := filepath.Join(m.root, line)

		// Lstat where the filesystem supports it, so a symlink is removed
		// as a link even when it dangles or points at a directory.
		var info os.FileInfo
		var err error
		if lst, ok := m.fs.(afero.Lstater); ok {
			info, _, err = lst.LstatIfPossible(full)
		} else {
			info, err = m.fs.Stat(full)
		}
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			m.log.Warn("stat %q: %v", full, err)
			continue
		}

		if info.IsDir() {
			dirs = append(dirs, full)
			continue
		}

		if err := m.fs.Remove(full); err != nil {
			m.log.Warn("removing %q: %v", full, err)
		}
	}

	pruneEmptyDirs(m.fs, dirs)
	return nil
}

// pruneEmptyDirs removes each directory only if it ends up empty,
// longest path first so nested directories are pruned before parents.
func pruneEmptyDirs(fs afero.Fs, dirs []string) {
	sortLongestFirst(dirs)
	for _, d := range dirs {
		entries, err := afero.ReadDir(fs, d)
		if err != nil || len(entries) > 0 {
			continue
		}
		_ = fs.Remove(d)
	}
}

func sortLongestFirst(dirs []string) {
	for i := 1; i < len(dirs); i++ {
		for j := i; j > 0 && len(dirs[j]) > len(dirs[j-1]); j-- {
			dirs[j], dirs[j-1] = dirs[j-1], dirs[j]
		}
	}
}

// applyAdditions is Phase 2: optimistically update local, fetch each
// archive sequentially, then extract the whole batch via the pool.
func (m *Manager) applyAdditions(ctx context.Context, local map[string]model.Entry, adds []model.Package) error {
	if len(adds) == 0 {
		return nil
	}

	jobs := make([]extract.Job, 0, len(adds))
	for _, pkg := range adds {
		local[pkg.Name] = pkg.Entry()

		path, err := m.fetcher.Fetch(ctx, pkg)
		if err != nil {
			return err
		}
		jobs = append(jobs, extract.Job{Name: pkg.Name, ArchivePath: path})
	}

	if err := m.extractor.Extract(ctx, jobs); err != nil {
		return err
	}
	return nil
}

// applyUpgrades is Phase 3: process each upgrade pair sequentially,
// shadowing the old manifest, extracting the new archive, diffing
// manifests to remove files the new version dropped, and rolling back
// to the old archive on failure.
func (m *Manager) applyUpgrades(ctx context.Context, local map[string]model.Entry, ups []planner.UpgradePair) error {
	for _, up := range ups {
		if err := m.applyOneUpgrade(ctx, local, up); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) applyOneUpgrade(ctx context.Context, local map[string]model.Entry, up planner.UpgradePair) error {
	name := up.New.Name
	treePath := layout.Tree(m.dbpath, name)
	oldTreePath := layout.TreeOld(m.dbpath, name)

	if err := copyFile(m.fs, treePath, oldTreePath); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "shadowing tree manifest for %q", name)
	}

	path, err := m.fetcher.Fetch(ctx, up.New)
	if err != nil {
		return err
	}

	if err := m.extractor.Extract(ctx, []extract.Job{{Name: name, ArchivePath: path}}); err != nil {
		// Attempt to reinstall the old archive to recover the
		// pre-upgrade state before propagating the failure.
		if oldPath, oerr := m.fetcher.Fetch(ctx, up.Old); oerr == nil {
			_ = m.extractor.Extract(ctx, []extract.Job{{Name: name, ArchivePath: oldPath}})
		}
		return err
	}

	local[name] = up.New.Entry()

	if err := m.diffAndPruneManifests(oldTreePath, treePath); err != nil {
		return errors.Wrapf(err, "pruning stale files for %q", name)
	}

	if err := m.fs.Remove(oldTreePath); err != nil && !os.IsNotExist(err) {
		m.log.Warn("removing %q: %v", oldTreePath, err)
	}
	return nil
}

// diffAndPruneManifests removes from root every path listed in the old
// manifest but absent from the new one.
func (m *Manager) diffAndPruneManifests(oldPath, newPath string) error {
	oldLines, err := readManifestLines(m.fs, oldPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	newLines, err := readManifestLines(m.fs, newPath)
	if err != nil {
		return err
	}

	newSet := map[string]struct{}{}
	for _, l := range newLines {
		newSet[l] = struct{}{}
	}

	var stale []string
	var staleDirs []string
	for _, l := range oldLines {
		if _, ok := newSet[l]; ok {
			continue
		}
		full := filepath.Join(m.root, l)
		info, err := m.fs.Stat(full)
		if err != nil {
			continue
		}
		if info.IsDir() {
			staleDirs = append(staleDirs, full)
			continue
		}
		stale = append(stale, full)
	}

	for _, f := range stale {
		if err := m.fs.Remove(f); err != nil {
			m.log.Warn("removing %q: %v", f, err)
		}
	}
	pruneEmptyDirs(m.fs, staleDirs)
	return nil
}

func readManifestLines(fs afero.Fs, path string) ([]string, error) {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out, nil
}

func copyFile(fs afero.Fs, src, dst string) error {
	raw, err := afero.ReadFile(fs, src)
	if err != nil {
		return err
	}
	return afero.WriteFile(fs, dst, raw, 0o644)
}
