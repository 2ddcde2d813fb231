// Copyright 2026 The spkm Authors.
// All rights reserved

// Package config loads the spkm configuration document from the path
// named by $SPKM_CONF (default /etc/spkm.conf).
package config

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"

	"github.com/crossplane/crossplane-runtime/pkg/errors"

	"github.com/stock-linux/spkm/internal/model"
)

// EnvVar is the environment variable naming the configuration path.
const EnvVar = "SPKM_CONF"

// DefaultPath is used when EnvVar is unset.
const DefaultPath = "/etc/spkm.conf"

// General holds [general] section fields.
type General struct {
	DBPath  string `toml:"dbpath"`
	Cache   string `toml:"cache"`
	Root    string `toml:"root"`
	Threads int    `toml:"threads"`
	Colors  bool   `toml:"colors"`
}

// Config is the decoded configuration document.
type Config struct {
	General General            `toml:"general"`
	Repos   []model.Repository `toml:"repos"`
}

// Path returns the configuration path: $SPKM_CONF if set, else DefaultPath.
func Path() string {
	if p := os.Getenv(EnvVar); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads and decodes the configuration document at path. A
// General.Threads value below 1 is replaced by 1; a document with no
// repositories is rejected.
func Load(fs afero.Fs, path string) (Config, error) {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "reading configuration %s", path)
	}

	var cfg Config
	if _, err := toml.Decode(string(raw), &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "parsing configuration %s", path)
	}

	if cfg.General.Threads < 1 {
		cfg.General.Threads = 1
	}

	if len(cfg.Repos) == 0 {
		return Config{}, errors.Errorf("%s: no repositories configured", path)
	}

	return cfg, nil
}
