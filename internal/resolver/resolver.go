// Copyright 2026 The spkm Authors.
// All rights reserved

// Package resolver computes dependency closures and reverse-dependency
// safety for the operation planner.
package resolver

import (
	"context"

	"github.com/stock-linux/spkm/internal/model"
)

// Lookup is the subset of catalog.Catalog the resolver depends on.
type Lookup interface {
	Lookup(ctx context.Context, name string) (model.Package, bool, error)
}

// Resolver computes transitive dependency closures over a Lookup.
type Resolver struct {
	catalog Lookup
}

// New constructs a Resolver backed by catalog.
func New(catalog Lookup) *Resolver {
	return &Resolver{catalog: catalog}
}

// Closure returns name and every package in its transitive dependency
// tree, with dependencies ordered strictly before the packages that
// require them, and no duplicate names. It uses a recursive
// depth-first traversal with a visited set, so dependency cycles (legal
// for run-time deps) terminate instead of looping forever.
//
// Every unresolved name encountered during the walk is collected; if
// any are found, Closure returns a single *model.ResolveMissingError
// naming all of them rather than failing on the first.
func (r *Resolver) Closure(ctx context.Context, name string) ([]model.Package, error) {
	visited := map[string]struct{}{}
	var missing []string
	var order []model.Package
	var hardErr error

	var visit func(n string)
	visit = func(n string) {
		if hardErr != nil {
			return
		}
		if _, ok := visited[n]; ok {
			return
		}
		visited[n] = struct{}{}

		pkg, ok, err := r.catalog.Lookup(ctx, n)
		if err != nil {
			hardErr = err
			return
		}
		if !ok {
			missing = append(missing, n)
			return
		}

		for _, dep := range pkg.Dependencies {
			visit(dep.Name)
		}

		order = append(order, pkg)
	}
	visit(name)

	if hardErr != nil {
		return nil, hardErr
	}
	if len(missing) > 0 {
		return nil, &model.ResolveMissingError{Names: missing}
	}
	return order, nil
}

// CanDelete reports whether pkg may be safely uninstalled: true iff none
// of its reverse-dependencies is still a key of desired (the set of
// packages that should remain installed).
func CanDelete(pkg model.Package, desired map[string]model.Entry) bool {
	for _, rd := range pkg.ReverseDeps {
		if _, wanted := desired[rd.Name]; wanted {
			return false
		}
	}
	return true
}
