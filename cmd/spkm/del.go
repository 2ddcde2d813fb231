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

type delCmd struct {
	Packages []string `arg:"" help:"Package names to remove." name:"packages"`
}

func (c *delCmd) Run(_ context.Context, cliCtx *cli) error {
	a, err := newApp(cliCtx.Pretty)
	if err != nil {
		return err
	}

	world, err := loadWorldNewOrWorld(a)
	if err != nil {
		return err
	}

	var notInWorld []string
	for _, name := range dedupe(c.Packages) {
		if _, ok := world[name]; !ok {
			notInWorld = append(notInWorld, name)
		}
	}

	// All-or-nothing: if any requested name isn't currently staged, the
	// whole operation is rejected before anything is written, matching
	// the original tool's "not installed or already deleted" report.
	if len(notInWorld) > 0 {
		return &model.NotFoundError{Names: notInWorld}
	}

	for _, name := range c.Packages {
		delete(world, name)
	}

	if err := index.Write(a.fs, layout.WorldNew(a.cfg.General.DBPath), world); err != nil {
		return errors.Wrap(err, "writing world.new")
	}

	pterm.Success.Printfln("staged %d removal(s) into world.new. Run `spkm up` to apply.", len(c.Packages))
	return nil
}
