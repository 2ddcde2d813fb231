// Copyright 2026 The spkm Authors.
// All rights reserved

// Package planner compares the local and world.new index maps and
// produces the disjoint {adds, dels, ups} operation sets.
package planner

import (
	"context"
	"sort"

	"github.com/stock-linux/spkm/internal/model"
	"github.com/stock-linux/spkm/internal/resolver"
)

// Closer is the subset of resolver.Resolver the planner needs.
type Closer interface {
	Closure(ctx context.Context, name string) ([]model.Package, error)
}

// Lookup is the subset of catalog.Catalog the planner needs.
type Lookup interface {
	Lookup(ctx context.Context, name string) (model.Package, bool, error)
}

// UpgradePair is one entry of Plan.Ups: the installed record (version
// and release overridden to match what's on disk) paired with the
// catalog-current record.
type UpgradePair struct {
	Old model.Package
	New model.Package
}

// Plan is the output of Plan(): three disjoint package-name sets.
type Plan struct {
	Dels []NamedEntry
	Adds []model.Package
	Ups  []UpgradePair
}

// NamedEntry pairs an index entry with its package name, for dels where
// no catalog record is required to act (deletion only needs the tree
// manifest).
type NamedEntry struct {
	Name string
	model.Entry
}

// IsEmpty reports whether the plan has no operations at all (property
// idempotence, observed as an empty plan on the second run).
func (p Plan) IsEmpty() bool {
	return len(p.Dels) == 0 && len(p.Adds) == 0 && len(p.Ups) == 0
}

// Planner builds a Plan from local/world state.
type Planner struct {
	catalog  Lookup
	resolver Closer
}

// New constructs a Planner.
func New(catalog Lookup, resolver Closer) *Planner {
	return &Planner{catalog: catalog, resolver: resolver}
}

// Plan computes dels/adds/ups from local and worldNew. worldNew may be
// nil (no staged edits): in that case dels is always empty and
// adds/ups are computed purely from version drift against the catalog,
// which is what lets a plain `up` act as an upgrade-only run.
func (pl *Planner) Plan(ctx context.Context, local, worldNew map[string]model.Entry) (Plan, error) {
	world := worldNew
	if world == nil {
		world = map[string]model.Entry{}
		for name, e := range local {
			world[name] = e
		}
	}

	var plan Plan

	if err := pl.planDels(ctx, local, world, &plan); err != nil {
		return Plan{}, err
	}

	queued := map[string]struct{}{}

	if err := pl.planUpsAndAdds(ctx, local, world, &plan, queued); err != nil {
		return Plan{}, err
	}

	if err := pl.planPureAdds(ctx, local, world, &plan, queued); err != nil {
		return Plan{}, err
	}

	sortPlan(&plan)
	return plan, nil
}

func (pl *Planner) planDels(ctx context.Context, local, world map[string]model.Entry, plan *Plan) error {
	for name, e := range local {
		if _, wanted := world[name]; wanted {
			continue
		}

		pkg, ok, err := pl.catalog.Lookup(ctx, name)
		if err != nil {
			return err
		}
		if !ok {
			// An installed package that the catalog can no longer
			// resolve is a hard error — we cannot evaluate its
			// reverse-deps to decide whether deletion is safe.
			return &model.NotFoundError{Names: []string{name}}
		}

		if resolver.CanDelete(pkg, world) {
			plan.Dels = append(plan.Dels, NamedEntry{Name: name, Entry: e})
		}
	}
	return nil
}

func (pl *Planner) planUpsAndAdds(ctx context.Context, local, world map[string]model.Entry, plan *Plan, queued map[string]struct{}) error {
	for name, localEntry := range local {
		if _, wanted := world[name]; !wanted {
			continue
		}

		pkg, ok, err := pl.catalog.Lookup(ctx, name)
		if err != nil {
			return err
		}
		if !ok {
			return &model.NotFoundError{Names: []string{name}}
		}

		if pkg.Matches(localEntry) {
			continue
		}

		old := pkg
		old.Version = localEntry.Version
		old.Release = localEntry.Release

		plan.Ups = append(plan.Ups, UpgradePair{Old: old, New: pkg})

		for _, dep := range pkg.Dependencies {
			if _, installed := local[dep.Name]; installed {
				continue
			}
			if err := pl.queueClosure(ctx, dep.Name, local, plan, queued); err != nil {
				return err
			}
		}
	}
	return nil
}

func (pl *Planner) planPureAdds(ctx context.Context, local, world map[string]model.Entry, plan *Plan, queued map[string]struct{}) error {
	names := make([]string, 0, len(world))
	for name := range world {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, installed := local[name]; installed {
			continue
		}
		if err := pl.queueClosure(ctx, name, local, plan, queued); err != nil {
			return err
		}
	}
	return nil
}

// queueClosure resolves name's full closure and appends every member not
// already installed and not already queued, preserving the resolver's
// dependency-before-dependent order.
func (pl *Planner) queueClosure(ctx context.Context, name string, local map[string]model.Entry, plan *Plan, queued map[string]struct{}) error {
	closure, err := pl.resolver.Closure(ctx, name)
	if err != nil {
		return err
	}
	for _, pkg := range closure {
		if _, installed := local[pkg.Name]; installed {
			continue
		}
		if _, already := queued[pkg.Name]; already {
			continue
		}
		queued[pkg.Name] = struct{}{}
		plan.Adds = append(plan.Adds, pkg)
	}
	return nil
}

func sortPlan(plan *Plan) {
	sort.Slice(plan.Dels, func(i, j int) bool { return plan.Dels[i].Name < plan.Dels[j].Name })
	sort.Slice(plan.Ups, func(i, j int) bool { return plan.Ups[i].New.Name < plan.Ups[j].New.Name })
}
