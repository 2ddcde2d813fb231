// Copyright 2026 The spkm Authors.
// All rights reserved

package txn

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"github.com/stock-linux/spkm/internal/extract"
	"github.com/stock-linux/spkm/internal/index"
	"github.com/stock-linux/spkm/internal/layout"
	"github.com/stock-linux/spkm/internal/model"
	"github.com/stock-linux/spkm/internal/planner"
	"github.com/stock-linux/spkm/internal/resolver"
)

type fakeCatalog map[string]model.Package

func (f fakeCatalog) Lookup(_ context.Context, name string) (model.Package, bool, error) {
	pkg, ok := f[name]
	return pkg, ok, nil
}

// fakeFetcher hands back a synthetic archive path for every package,
// unless the package's name is listed in mismatches, in which case it
// reports a digest failure without ever touching the extractor.
type fakeFetcher struct {
	mismatches map[string]bool
}

func (f *fakeFetcher) Fetch(_ context.Context, pkg model.Package) (string, error) {
	if f.mismatches[pkg.Name] {
		return "", &model.FetchDigestMismatchError{Name: pkg.Name, Want: pkg.Digest, Got: "corrupt"}
	}
	return "/cache/" + pkg.ArchiveFilename(), nil
}

// fakeExtractor fails the first failUntil calls for a given job name, then
// succeeds, so tests can exercise both the rollback-and-retry path and a
// genuine irrecoverable failure.
type fakeExtractor struct {
	failUntil map[string]int
	calls     map[string]int
	batches   [][]string
}

func newFakeExtractor() *fakeExtractor {
	return &fakeExtractor{failUntil: map[string]int{}, calls: map[string]int{}}
}

func (f *fakeExtractor) Extract(_ context.Context, jobs []extract.Job) error {
	var names []string
	for _, j := range jobs {
		names = append(names, j.Name)
	}
	f.batches = append(f.batches, names)

	for _, j := range jobs {
		f.calls[j.Name]++
		if f.calls[j.Name] <= f.failUntil[j.Name] {
			return &model.ExtractionFailedError{Name: j.Name}
		}
	}
	return nil
}

func newManager(fs afero.Fs, catalog fakeCatalog, fetcher *fakeFetcher, extractor *fakeExtractor) *Manager {
	pl := planner.New(catalog, resolver.New(catalog))
	return New(fs, "/db", "/root", pl, fetcher, extractor)
}

func loadOrEmpty(t *testing.T, fs afero.Fs, path string) map[string]model.Entry {
	t.Helper()
	exists, err := index.Exists(fs, path)
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		return map[string]model.Entry{}
	}
	m, err := index.Load(fs, path)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestApplyFreshInstall(t *testing.T) {
	// Scenario: a fresh `add` + `up` pulls in the whole dependency closure.
	fs := afero.NewMemMapFs()
	catalog := fakeCatalog{
		"app":  {Name: "app", Version: "1.0", Dependencies: []model.DepRef{{Name: "libc"}}},
		"libc": {Name: "libc", Version: "2.0"},
	}
	if err := index.Write(fs, layout.WorldNew("/db"), map[string]model.Entry{"app": {Version: "1.0"}}); err != nil {
		t.Fatal(err)
	}

	mgr := newManager(fs, catalog, &fakeFetcher{}, newFakeExtractor())
	if err := mgr.Apply(context.Background()); err != nil {
		t.Fatalf("Apply(...): unexpected error: %v", err)
	}
	if mgr.State() != Done {
		t.Errorf("Apply(...): state = %v, want Done", mgr.State())
	}

	want := map[string]model.Entry{
		"app":  {Version: "1.0"},
		"libc": {Version: "2.0"},
	}
	got := loadOrEmpty(t, fs, layout.Local("/db"))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("local index after Apply: -want, +got:\n%s", diff)
	}

	if exists, _ := index.Exists(fs, layout.WorldNew("/db")); exists {
		t.Errorf("Apply(...): world.new not consumed")
	}
}

func TestApplyIdempotent(t *testing.T) {
	// Re-running Apply against unchanged state must be a no-op.
	fs := afero.NewMemMapFs()
	catalog := fakeCatalog{"app": {Name: "app", Version: "1.0"}}
	if err := index.Write(fs, layout.Local("/db"), map[string]model.Entry{"app": {Version: "1.0"}}); err != nil {
		t.Fatal(err)
	}
	if err := index.Write(fs, layout.World("/db"), map[string]model.Entry{"app": {Version: "1.0"}}); err != nil {
		t.Fatal(err)
	}

	extractor := newFakeExtractor()
	mgr := newManager(fs, catalog, &fakeFetcher{}, extractor)
	if err := mgr.Apply(context.Background()); err != nil {
		t.Fatalf("Apply(...): unexpected error: %v", err)
	}
	if len(extractor.batches) != 0 {
		t.Errorf("Apply(...): extractor invoked on a no-op apply: %v", extractor.batches)
	}
}

func TestApplyPureDeletion(t *testing.T) {
	fs := afero.NewMemMapFs()
	catalog := fakeCatalog{"alpha": {Name: "alpha", Version: "1.0"}}
	if err := index.Write(fs, layout.Local("/db"), map[string]model.Entry{"alpha": {Version: "1.0"}}); err != nil {
		t.Fatal(err)
	}
	if err := index.Write(fs, layout.WorldNew("/db"), map[string]model.Entry{}); err != nil {
		t.Fatal(err)
	}

	mgr := newManager(fs, catalog, &fakeFetcher{}, newFakeExtractor())
	if err := mgr.Apply(context.Background()); err != nil {
		t.Fatalf("Apply(...): unexpected error: %v", err)
	}

	got := loadOrEmpty(t, fs, layout.Local("/db"))
	if diff := cmp.Diff(map[string]model.Entry{}, got); diff != "" {
		t.Errorf("local index after Apply: -want, +got:\n%s", diff)
	}
}

func TestApplyDeletionBlockedByReverseDep(t *testing.T) {
	fs := afero.NewMemMapFs()
	catalog := fakeCatalog{
		"libc": {Name: "libc", Version: "2.0", ReverseDeps: []model.DepRef{{Name: "app"}}},
		"app":  {Name: "app", Version: "1.0"},
	}
	local := map[string]model.Entry{
		"libc": {Version: "2.0"},
		"app":  {Version: "1.0"},
	}
	if err := index.Write(fs, layout.Local("/db"), local); err != nil {
		t.Fatal(err)
	}
	// World stages removing libc only; app (its reverse-dep) stays desired.
	if err := index.Write(fs, layout.WorldNew("/db"), map[string]model.Entry{"app": {Version: "1.0"}}); err != nil {
		t.Fatal(err)
	}

	mgr := newManager(fs, catalog, &fakeFetcher{}, newFakeExtractor())
	if err := mgr.Apply(context.Background()); err != nil {
		t.Fatalf("Apply(...): unexpected error: %v", err)
	}

	got := loadOrEmpty(t, fs, layout.Local("/db"))
	if diff := cmp.Diff(local, got); diff != "" {
		t.Errorf("local index after Apply: -want, +got (libc should survive):\n%s", diff)
	}
}

func TestApplyUpgradeOnlyWithNewDependency(t *testing.T) {
	// Scenario: a plain `up` (no world.new) with a catalog version bump
	// that introduces a dependency not previously installed.
	fs := afero.NewMemMapFs()
	catalog := fakeCatalog{
		"app":    {Name: "app", Version: "2.0", Dependencies: []model.DepRef{{Name: "libssl"}}},
		"libssl": {Name: "libssl", Version: "3.0"},
	}
	if err := index.Write(fs, layout.Local("/db"), map[string]model.Entry{"app": {Version: "1.0"}}); err != nil {
		t.Fatal(err)
	}

	mgr := newManager(fs, catalog, &fakeFetcher{}, newFakeExtractor())
	if err := mgr.Apply(context.Background()); err != nil {
		t.Fatalf("Apply(...): unexpected error: %v", err)
	}

	want := map[string]model.Entry{
		"app":    {Version: "2.0"},
		"libssl": {Version: "3.0"},
	}
	got := loadOrEmpty(t, fs, layout.Local("/db"))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("local index after Apply: -want, +got:\n%s", diff)
	}
}

func TestApplyDigestMismatchHardFails(t *testing.T) {
	// A fetch-level digest mismatch is not an extraction failure: it must
	// not trigger a retry, and local must not record the package as
	// installed.
	fs := afero.NewMemMapFs()
	catalog := fakeCatalog{"app": {Name: "app", Version: "1.0", Digest: "sha256:good"}}
	if err := index.Write(fs, layout.WorldNew("/db"), map[string]model.Entry{"app": {Version: "1.0"}}); err != nil {
		t.Fatal(err)
	}

	extractor := newFakeExtractor()
	mgr := newManager(fs, catalog, &fakeFetcher{mismatches: map[string]bool{"app": true}}, extractor)

	err := mgr.Apply(context.Background())
	if err == nil {
		t.Fatal("Apply(...): expected error, got nil")
	}
	if _, ok := err.(*model.FetchDigestMismatchError); !ok {
		t.Fatalf("Apply(...): expected *model.FetchDigestMismatchError, got %T: %v", err, err)
	}
	if mgr.State() != Failed {
		t.Errorf("Apply(...): state = %v, want Failed", mgr.State())
	}
	if len(extractor.batches) != 0 {
		t.Errorf("Apply(...): extractor invoked despite fetch failure")
	}

	if exists, _ := index.Exists(fs, layout.Local("/db")); exists {
		t.Errorf("Apply(...): local index written despite hard failure")
	}
}

func TestApplyExtractionFailureRollsBackAndRetrySucceeds(t *testing.T) {
	// A transient extraction failure rolls back, then a single retry
	// with the identical plan succeeds.
	fs := afero.NewMemMapFs()
	catalog := fakeCatalog{"app": {Name: "app", Version: "1.0"}}
	if err := index.Write(fs, layout.WorldNew("/db"), map[string]model.Entry{"app": {Version: "1.0"}}); err != nil {
		t.Fatal(err)
	}

	extractor := newFakeExtractor()
	extractor.failUntil["app"] = 1 // fails once, succeeds on the retry
	mgr := newManager(fs, catalog, &fakeFetcher{}, extractor)

	if err := mgr.Apply(context.Background()); err != nil {
		t.Fatalf("Apply(...): unexpected error: %v", err)
	}
	if mgr.State() != Done {
		t.Errorf("Apply(...): state = %v, want Done", mgr.State())
	}
	if extractor.calls["app"] != 2 {
		t.Errorf("Apply(...): extractor called %d times for app, want 2 (fail then retry)", extractor.calls["app"])
	}

	want := map[string]model.Entry{"app": {Version: "1.0"}}
	got := loadOrEmpty(t, fs, layout.Local("/db"))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("local index after Apply: -want, +got:\n%s", diff)
	}
}

func TestApplyExtractionFailurePersistsBeyondSingleRetry(t *testing.T) {
	// A second consecutive extraction failure (attempt 1) must not trigger
	// a second retry (maxApplyAttempts bounds this to one), and must not
	// record the package as locally installed.
	fs := afero.NewMemMapFs()
	catalog := fakeCatalog{"app": {Name: "app", Version: "1.0"}}
	if err := index.Write(fs, layout.WorldNew("/db"), map[string]model.Entry{"app": {Version: "1.0"}}); err != nil {
		t.Fatal(err)
	}

	extractor := newFakeExtractor()
	extractor.failUntil["app"] = 100 // never succeeds
	mgr := newManager(fs, catalog, &fakeFetcher{}, extractor)

	err := mgr.Apply(context.Background())
	if err == nil {
		t.Fatal("Apply(...): expected error, got nil")
	}
	if _, ok := err.(*model.ExtractionFailedError); !ok {
		t.Fatalf("Apply(...): expected *model.ExtractionFailedError, got %T: %v", err, err)
	}
	if extractor.calls["app"] != 2 {
		t.Errorf("Apply(...): extractor called %d times for app, want exactly 2 (one retry bound)", extractor.calls["app"])
	}

	local := loadOrEmpty(t, fs, layout.Local("/db"))
	if _, ok := local["app"]; ok {
		t.Errorf("Apply(...): app recorded as installed despite repeated extraction failure")
	}
}

func TestApplyUpgradeExtractionFailureDoesNotRetry(t *testing.T) {
	// Phase 3 (upgrades) extraction failures are not covered by the
	// Phase 2 retry path: the retry is bounded to fresh installs.
	fs := afero.NewMemMapFs()
	catalog := fakeCatalog{"app": {Name: "app", Version: "2.0"}}
	if err := index.Write(fs, layout.Local("/db"), map[string]model.Entry{"app": {Version: "1.0"}}); err != nil {
		t.Fatal(err)
	}

	extractor := newFakeExtractor()
	extractor.failUntil["app"] = 100
	mgr := newManager(fs, catalog, &fakeFetcher{}, extractor)

	err := mgr.Apply(context.Background())
	if err == nil {
		t.Fatal("Apply(...): expected error, got nil")
	}
	// Two Extract calls happen inside applyOneUpgrade's own recovery
	// attempt (new archive, then the old archive to restore state), but
	// Apply itself must not loop a second time.
	if len(extractor.batches) > 2 {
		t.Errorf("Apply(...): extractor invoked %d times, expected no outer retry loop", len(extractor.batches))
	}
}

func TestApplyUserCancellation(t *testing.T) {
	fs := afero.NewMemMapFs()
	catalog := fakeCatalog{"app": {Name: "app", Version: "1.0"}}
	if err := index.Write(fs, layout.WorldNew("/db"), map[string]model.Entry{"app": {Version: "1.0"}}); err != nil {
		t.Fatal(err)
	}

	pl := planner.New(catalog, resolver.New(catalog))
	decline := func(context.Context, planner.Plan) (bool, error) { return false, nil }
	mgr := New(fs, "/db", "/root", pl, &fakeFetcher{}, newFakeExtractor(), WithConfirmer(decline))

	err := mgr.Apply(context.Background())
	if err != model.ErrUserCancelled {
		t.Fatalf("Apply(...): got %v, want model.ErrUserCancelled", err)
	}
	if mgr.State() != Cancelled {
		t.Errorf("Apply(...): state = %v, want Cancelled", mgr.State())
	}
	if exists, _ := index.Exists(fs, layout.WorldNew("/db")); !exists {
		t.Errorf("Apply(...): world.new consumed despite cancellation")
	}
}
