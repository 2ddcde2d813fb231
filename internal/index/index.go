// Copyright 2026 The spkm Authors.
// All rights reserved

// Package index reads and writes the local/world* index documents: a
// key-sectioned TOML document mapping package name to {version, release}.
package index

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/crossplane/crossplane-runtime/pkg/errors"

	"github.com/stock-linux/spkm/internal/model"
)

// Map is the in-memory shape of an index document.
type Map map[string]model.Entry

// Load reads and parses the index document at path. A missing file
// returns model.ErrIndexMissing; a malformed one returns
// model.ErrIndexCorrupt.
func Load(fs afero.Fs, path string) (Map, error) {
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "checking %s", path)
	}
	if !exists {
		return nil, errors.Wrapf(model.ErrIndexMissing, "%s", path)
	}

	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}

	m := Map{}
	if _, err := toml.Decode(string(raw), &m); err != nil {
		return nil, errors.Wrapf(model.ErrIndexCorrupt, "%s: %v", path, err)
	}
	return m, nil
}

// Exists reports whether an index document is present at path, without
// attempting to parse it.
func Exists(fs afero.Fs, path string) (bool, error) {
	return afero.Exists(fs, path)
}

// Write encodes m and atomically replaces the document at path: the new
// content is written to a temp file in the same directory, then renamed
// over the destination. This is required for world.new/world.old to
// survive a crash mid-write.
func Write(fs afero.Fs, path string, m Map) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", dir)
	}

	tmp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%s", filepath.Base(path), uuid.NewString()))

	f, err := fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrapf(err, "creating temp file for %s", path)
	}

	enc := toml.NewEncoder(f)
	if err := enc.Encode(m); err != nil {
		_ = f.Close()
		_ = fs.Remove(tmp)
		return errors.Wrapf(err, "encoding %s", path)
	}
	if err := f.Close(); err != nil {
		_ = fs.Remove(tmp)
		return errors.Wrapf(err, "closing temp file for %s", path)
	}

	if err := fs.Rename(tmp, path); err != nil {
		_ = fs.Remove(tmp)
		return errors.Wrapf(err, "renaming into %s", path)
	}
	return nil
}

// Remove deletes the index document at path if present. Removing an
// already-absent file is not an error.
func Remove(fs afero.Fs, path string) error {
	err := fs.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "removing %s", path)
	}
	return nil
}

// Copy duplicates the document at src to dst, used to snapshot world as
// world.old before rotating in world.new.
func Copy(fs afero.Fs, src, dst string) error {
	m, err := Load(fs, src)
	if err != nil {
		return err
	}
	return Write(fs, dst, m)
}
