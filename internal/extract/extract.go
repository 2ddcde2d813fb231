// Copyright 2026 The spkm Authors.
// All rights reserved

// Package extract unpacks archives into the install root in bounded
// parallel batches and promotes each package's file manifest into the
// trees directory.
package extract

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/crossplane/crossplane-runtime/pkg/errors"

	"github.com/stock-linux/spkm/internal/layout"
	"github.com/stock-linux/spkm/internal/model"
)

// CommandRunner abstracts the external tar-compatible subprocess
// invocation so tests don't require a real tar binary on PATH.
type CommandRunner interface {
	Run(ctx context.Context, archive, root string) error
}

// execRunner shells out to `tar` with zstd support, following symlinks
// (-h) and preserving permissions (-p).
type execRunner struct{ tarPath string }

// NewExecRunner returns a CommandRunner backed by the given tar-compatible
// binary (empty string defaults to "tar" on PATH).
func NewExecRunner(tarPath string) CommandRunner {
	if tarPath == "" {
		tarPath = "tar"
	}
	return execRunner{tarPath: tarPath}
}

func (r execRunner) Run(ctx context.Context, archive, root string) error {
	cmd := exec.CommandContext(ctx, r.tarPath, "--zstd", "-h", "-p", "-xf", archive, "-C", root)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return errors.Errorf("%s: %s", err, string(out))
	}
	return nil
}

// Job is one package's extraction work item.
type Job struct {
	Name        string
	ArchivePath string
}

// Pool extracts archives into root using the CommandRunner, threads at a
// time, and moves each recovered .PKGTREE into dbpath/trees.
type Pool struct {
	fs      afero.Fs
	dbpath  string
	root    string
	threads int
	runner  CommandRunner
}

// New constructs a Pool. threads < 1 is treated as 1.
func New(fs afero.Fs, dbpath, root string, threads int, runner CommandRunner) *Pool {
	if threads < 1 {
		threads = 1
	}
	return &Pool{fs: fs, dbpath: dbpath, root: root, threads: threads, runner: runner}
}

// Extract runs jobs in consecutive windows of size Pool.threads: each
// window's workers all start, then all join, before the next window
// starts. This bounds memory/fd usage and makes failure reporting
// deterministic — a window either succeeds completely or the batch
// reports the first error encountered in it.
func (p *Pool) Extract(ctx context.Context, jobs []Job) error {
	for _, batch := range chunk(jobs, p.threads) {
		if err := p.extractBatch(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pool) extractBatch(ctx context.Context, batch []Job) error {
	eg, egCtx := errgroup.WithContext(ctx)
	for _, job := range batch {
		job := job
		eg.Go(func() error {
			return p.extractOne(egCtx, job)
		})
	}
	return eg.Wait()
}

// extractOne extracts job into a staging directory private to this call,
// not directly into the shared install root. Two jobs in the same batch
// run concurrently and each produces its own top-level .PKGTREE entry;
// extracting straight into p.root would let one worker's manifest
// clobber the other's before either could promote it. Promoting the
// manifest out of staging and merging the remaining files into p.root
// only after the subprocess exits keeps that window per-job.
func (p *Pool) extractOne(ctx context.Context, job Job) error {
	if err := p.checkManifestPresent(job.ArchivePath); err != nil {
		return &model.ManifestMissingError{Name: job.Name}
	}

	staging := layout.StagingDir(p.dbpath, job.Name+"-"+uuid.NewString())
	if err := p.fs.MkdirAll(staging, 0o755); err != nil {
		return &model.ExtractionFailedError{Name: job.Name, Err: err}
	}
	defer func() { _ = p.fs.RemoveAll(staging) }()

	if err := p.runner.Run(ctx, job.ArchivePath, staging); err != nil {
		return &model.ExtractionFailedError{Name: job.Name, Err: err}
	}

	pkgtree := filepath.Join(staging, layout.PkgTreeEntry)
	exists, err := afero.Exists(p.fs, pkgtree)
	if err != nil {
		return &model.ExtractionFailedError{Name: job.Name, Err: err}
	}
	if !exists {
		return &model.ManifestMissingError{Name: job.Name}
	}

	if err := p.fs.MkdirAll(layout.TreesDir(p.dbpath), 0o755); err != nil {
		return &model.ExtractionFailedError{Name: job.Name, Err: err}
	}
	if err := p.fs.Rename(pkgtree, layout.Tree(p.dbpath, job.Name)); err != nil {
		return &model.ExtractionFailedError{Name: job.Name, Err: err}
	}

	if err := p.fs.MkdirAll(p.root, 0o755); err != nil {
		return &model.ExtractionFailedError{Name: job.Name, Err: err}
	}
	if err := mergeTree(p.fs, staging, p.root); err != nil {
		return &model.ExtractionFailedError{Name: job.Name, Err: err}
	}
	return nil
}

// mergeTree moves every entry under src into the corresponding path
// under dst, creating parent directories as needed. The walk is
// collected up front so renaming entries out of src as they're found
// doesn't disturb the walk still in progress.
func mergeTree(fs afero.Fs, src, dst string) error {
	var dirs, files []string
	err := afero.Walk(fs, src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == src {
			return nil
		}
		rel, rerr := filepath.Rel(src, path)
		if rerr != nil {
			return rerr
		}
		if info.IsDir() {
			dirs = append(dirs, rel)
		} else {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, rel := range dirs {
		if err := fs.MkdirAll(filepath.Join(dst, rel), 0o755); err != nil {
			return err
		}
	}
	for _, rel := range files {
		target := filepath.Join(dst, rel)
		if err := fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := fs.Rename(filepath.Join(src, rel), target); err != nil {
			return err
		}
	}
	return nil
}

// checkManifestPresent peeks the archive's tar/zstd structure to fail
// fast with ManifestMissing before shelling out to the extraction tool,
// instead of discovering the omission only after a successful-looking
// subprocess exit.
func (p *Pool) checkManifestPresent(archivePath string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return errors.New("archive has no .PKGTREE entry")
		}
		if err != nil {
			return err
		}
		if hdr.Name == layout.PkgTreeEntry || filepath.Clean(hdr.Name) == layout.PkgTreeEntry {
			return nil
		}
	}
}

// chunk partitions items into consecutive windows of size n (the last
// window may be shorter), used in place of modular-arithmetic window
// detection.
func chunk[T any](items []T, n int) [][]T {
	if n < 1 {
		n = 1
	}
	var out [][]T
	for i := 0; i < len(items); i += n {
		end := i + n
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[i:end])
	}
	return out
}
