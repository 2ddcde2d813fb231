// Copyright 2026 The spkm Authors.
// All rights reserved

// Package fetch downloads or locally copies package archives into the
// cache, verifying integrity by digest.
package fetch

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/spf13/afero"

	"github.com/crossplane/crossplane-runtime/pkg/errors"

	"github.com/stock-linux/spkm/internal/layout"
	"github.com/stock-linux/spkm/internal/model"
	"github.com/stock-linux/spkm/internal/statuslog"
)

// fetchChunkSize is the streaming buffer size used for network fetches:
// low-megabyte range.
const fetchChunkSize = 4 << 20

// HTTPDoer is satisfied by *http.Client; tests substitute a fake.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher downloads/copies archives into cache, keyed by the same
// <cache>/<repo>/<group>/<name>/<name>-<version>.tar.zst layout the
// catalog uses under dbpath/dist.
type Fetcher struct {
	fs     afero.Fs
	cache  string
	log    statuslog.Logger
	client HTTPDoer
}

// New constructs a Fetcher rooted at cache on fs, logging progress to log.
func New(fs afero.Fs, cache string, log statuslog.Logger, client HTTPDoer) *Fetcher {
	if log == nil {
		log = statuslog.Discard
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Fetcher{fs: fs, cache: cache, log: log, client: client}
}

// Fetch ensures pkg's archive exists in the cache and returns its path.
//
//  1. If a cache entry exists, its digest is verified against the
//     catalog digest before being trusted (a deliberately conservative
//     choice); a stale/corrupt entry is deleted and re-fetched rather
//     than silently reused.
//  2. Else, if the repository URL is a local filesystem path and the
//     source archive exists there, it is copied byte-for-byte.
//  3. Else the archive is streamed from <url>/<group>/<name>/<filename> over HTTP,
//     with the digest computed incrementally and progress reported to
//     the logger.
func (f *Fetcher) Fetch(ctx context.Context, pkg model.Package) (string, error) {
	filename := pkg.ArchiveFilename()
	dest := layout.CacheArchivePath(f.cache, pkg.Repository.Name, pkg.Group, pkg.Name, filename)

	if exists, err := afero.Exists(f.fs, dest); err != nil {
		return "", &model.FetchIOError{Name: pkg.Name, Err: err}
	} else if exists {
		ok, err := f.verify(dest, pkg.Digest)
		if err != nil {
			return "", &model.FetchIOError{Name: pkg.Name, Err: err}
		}
		if ok {
			return dest, nil
		}
		if err := f.fs.Remove(dest); err != nil {
			return "", &model.FetchIOError{Name: pkg.Name, Err: err}
		}
	}

	if err := f.fs.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", &model.FetchIOError{Name: pkg.Name, Err: err}
	}

	if localPath, ok := localMirrorPath(pkg.Repository.URL); ok {
		src := filepath.Join(localPath, pkg.Group, pkg.Name, filename)
		if exists, err := osPathExists(src); err == nil && exists {
			if err := f.copy(src, dest); err != nil {
				return "", &model.FetchIOError{Name: pkg.Name, Err: err}
			}
			return dest, nil
		}
	}

	if err := f.download(ctx, pkg, dest, filename); err != nil {
		return "", err
	}
	return dest, nil
}

// verify reports whether the archive at path has the expected digest.
func (f *Fetcher) verify(path, want string) (bool, error) {
	r, err := f.fs.Open(path)
	if err != nil {
		return false, err
	}
	defer r.Close()

	d, err := digest.SHA256.FromReader(r)
	if err != nil {
		return false, err
	}
	return d.Encoded() == want, nil
}

func (f *Fetcher) copy(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := f.fs.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

func (f *Fetcher) download(ctx context.Context, pkg model.Package, dest, filename string) error {
	url := pkg.Repository.URL + "/" + pkg.Group + "/" + pkg.Name + "/" + filename

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &model.FetchNetworkError{Name: pkg.Name, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return &model.FetchNetworkError{Name: pkg.Name, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &model.FetchNetworkError{Name: pkg.Name, Err: errors.Errorf("unexpected status %s", resp.Status)}
	}

	out, err := f.fs.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return &model.FetchIOError{Name: pkg.Name, Err: err}
	}

	digester := digest.SHA256.Digester()
	buf := make([]byte, fetchChunkSize)
	var written int64
	last := time.Now()
	var rate float64

	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				_ = out.Close()
				_ = f.fs.Remove(dest)
				return &model.FetchIOError{Name: pkg.Name, Err: werr}
			}
			digester.Hash().Write(buf[:n])
			written += int64(n)

			elapsed := time.Since(last).Seconds()
			if elapsed > 0 {
				rate = float64(n) / elapsed
			}
			last = time.Now()
			f.log.Progress(pkg.Name, written, pkg.Size, rate)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			_ = out.Close()
			_ = f.fs.Remove(dest)
			return &model.FetchNetworkError{Name: pkg.Name, Err: rerr}
		}
	}
	f.log.ProgressDone(pkg.Name)

	if err := out.Close(); err != nil {
		_ = f.fs.Remove(dest)
		return &model.FetchIOError{Name: pkg.Name, Err: err}
	}

	got := digester.Digest().Encoded()
	if got != pkg.Digest {
		_ = f.fs.Remove(dest)
		return &model.FetchDigestMismatchError{Name: pkg.Name, Want: pkg.Digest, Got: got}
	}
	return nil
}

// localMirrorPath reports whether url is written as a filesystem path
// (it starts with '/' or '.'), i.e. a local mirror, as opposed to a
// network endpoint. It does not check that the path exists.
func localMirrorPath(url string) (string, bool) {
	if len(url) == 0 {
		return "", false
	}
	if url[0] != '/' && url[0] != '.' {
		return "", false
	}
	return url, true
}

func osPathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
