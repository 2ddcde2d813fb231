// Copyright 2026 The spkm Authors.
// All rights reserved

package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"github.com/stock-linux/spkm/internal/model"
)

func TestLoad(t *testing.T) {
	cases := map[string]struct {
		reason  string
		content string
		want    Config
		wantErr bool
	}{
		"MissingFile": {
			reason:  "Loading a nonexistent path must fail.",
			content: "",
			wantErr: true,
		},
		"MalformedTOML": {
			reason:  "Malformed TOML must fail rather than decode partially.",
			content: "general = not valid {{{",
			wantErr: true,
		},
		"NoRepositoriesIsInvalid": {
			reason: "A configuration with zero repositories must be rejected: nothing could ever resolve.",
			content: `[general]
dbpath = "/var/lib/spkm"
cache = "/var/cache/spkm"
root = "/"
`,
			wantErr: true,
		},
		"ThreadsDefaultedWhenUnsetOrInvalid": {
			reason: "Threads below 1 (including the zero value) defaults to 1.",
			content: `[general]
dbpath = "/var/lib/spkm"
cache = "/var/cache/spkm"
root = "/"
colors = true

[[repos]]
name = "core"
url = "https://example.invalid/core"
`,
			want: Config{
				General: General{
					DBPath:  "/var/lib/spkm",
					Cache:   "/var/cache/spkm",
					Root:    "/",
					Threads: 1,
					Colors:  true,
				},
				Repos: []model.Repository{{Name: "core", URL: "https://example.invalid/core"}},
			},
		},
		"ExplicitThreadsPreserved": {
			reason: "A configured Threads value of 1 or more must be preserved verbatim.",
			content: `[general]
dbpath = "/var/lib/spkm"
cache = "/var/cache/spkm"
root = "/"
threads = 4

[[repos]]
name = "core"
url = "https://example.invalid/core"
`,
			want: Config{
				General: General{
					DBPath:  "/var/lib/spkm",
					Cache:   "/var/cache/spkm",
					Root:    "/",
					Threads: 4,
				},
				Repos: []model.Repository{{Name: "core", URL: "https://example.invalid/core"}},
			},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			path := "/etc/spkm.conf"
			if name != "MissingFile" {
				if err := afero.WriteFile(fs, path, []byte(tc.content), 0o644); err != nil {
					t.Fatal(err)
				}
			}

			got, err := Load(fs, path)

			if tc.wantErr {
				if err == nil {
					t.Fatalf("\n%s\nLoad(...): expected error, got nil", tc.reason)
				}
				return
			}
			if err != nil {
				t.Fatalf("\n%s\nLoad(...): unexpected error: %v", tc.reason, err)
			}

			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("\n%s\nLoad(...): -want, +got:\n%s", tc.reason, diff)
			}
		})
	}
}

func TestPath(t *testing.T) {
	t.Setenv(EnvVar, "")
	if got := Path(); got != DefaultPath {
		t.Errorf("Path(): got %q, want default %q", got, DefaultPath)
	}

	t.Setenv(EnvVar, "/custom/spkm.conf")
	if got := Path(); got != "/custom/spkm.conf" {
		t.Errorf("Path(): got %q, want %q", got, "/custom/spkm.conf")
	}
}
