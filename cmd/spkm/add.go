// Copyright 2026 The spkm Authors.
// All rights reserved

package main

import (
	"context"

	"github.com/pterm/pterm"

	"github.com/crossplane/crossplane-runtime/pkg/errors"

	"github.com/stock-linux/spkm/internal/index"
	"github.com/stock-linux/spkm/internal/layout"
	"github.com/stock-linux/spkm/internal/model"
)

type addCmd struct {
	Packages []string `arg:"" help:"Package names to add." name:"packages"`
}

func (c *addCmd) Run(ctx context.Context, cliCtx *cli) error {
	a, err := newApp(cliCtx.Pretty)
	if err != nil {
		return err
	}

	world, err := loadWorldNewOrWorld(a)
	if err != nil {
		return err
	}

	var notFound []string
	for _, name := range dedupe(c.Packages) {
		if _, ok := world[name]; ok {
			pterm.Info.Printfln("package %q already staged", name)
			continue
		}

		pkg, found, err := a.catalog.Lookup(ctx, name)
		if err != nil {
			return err
		}
		if !found {
			notFound = append(notFound, name)
			continue
		}
		world[name] = pkg.Entry()
	}

	if len(notFound) > 0 {
		return &model.NotFoundError{Names: notFound}
	}

	if err := index.Write(a.fs, layout.WorldNew(a.cfg.General.DBPath), world); err != nil {
		return errors.Wrap(err, "writing world.new")
	}

	pterm.Success.Printfln("staged %d package(s) into world.new. Run `spkm up` to apply.", len(c.Packages))
	return nil
}

func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func loadWorldNewOrWorld(a *app) (map[string]model.Entry, error) {
	path := layout.WorldNew(a.cfg.General.DBPath)
	exists, err := index.Exists(a.fs, path)
	if err != nil {
		return nil, err
	}
	if exists {
		return index.Load(a.fs, path)
	}

	worldExists, err := index.Exists(a.fs, layout.World(a.cfg.General.DBPath))
	if err != nil {
		return nil, err
	}
	if !worldExists {
		return map[string]model.Entry{}, nil
	}
	return index.Load(a.fs, layout.World(a.cfg.General.DBPath))
}
