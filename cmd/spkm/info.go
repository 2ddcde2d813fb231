// Copyright 2026 The spkm Authors.
// All rights reserved

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/pterm/pterm"

	"github.com/stock-linux/spkm/internal/index"
	"github.com/stock-linux/spkm/internal/layout"
	"github.com/stock-linux/spkm/internal/model"
)

type infoCmd struct {
	Package string `arg:"" help:"Package name." name:"package"`
}

func (c *infoCmd) Run(ctx context.Context, cliCtx *cli) error {
	a, err := newApp(cliCtx.Pretty)
	if err != nil {
		return err
	}

	pkg, found, err := a.catalog.Lookup(ctx, c.Package)
	if err != nil {
		return err
	}
	if !found {
		pterm.Error.Printfln("package %q not found in any configured repository.", c.Package)
		return &model.NotFoundError{Names: []string{c.Package}}
	}

	installed, err := localEntry(a, c.Package)
	if err != nil {
		return err
	}

	fmt.Println("name:", pkg.Name)
	if installed != nil {
		state := "installed"
		if !pkg.Matches(*installed) {
			state = fmt.Sprintf("installed %s-%d, %s-%d available", installed.Version, installed.Release, pkg.Version, pkg.Release)
		}
		fmt.Println("version:", pkg.Version, fmt.Sprintf("(%s)", state))
	} else {
		fmt.Println("version:", pkg.Version, "(not installed)")
	}
	fmt.Println("release:", pkg.Release)
	fmt.Println("description:", pkg.Description)
	fmt.Println("packager:", pkg.Packager)
	fmt.Println("group:", pkg.Group)
	fmt.Println("repository:", pkg.Repository.Name)

	if len(pkg.Dependencies) > 0 {
		names := make([]string, 0, len(pkg.Dependencies))
		for _, d := range pkg.Dependencies {
			names = append(names, d.Name)
		}
		fmt.Println("dependencies:", strings.Join(names, ", "))
	}
	return nil
}

// localEntry returns the installed index entry for name, or nil if it
// is not currently installed, distinguishing not-installed from
// installed-but-outdated for the caller.
func localEntry(a *app, name string) (*model.Entry, error) {
	exists, err := index.Exists(a.fs, layout.Local(a.cfg.General.DBPath))
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	local, err := index.Load(a.fs, layout.Local(a.cfg.General.DBPath))
	if err != nil {
		return nil, err
	}
	if e, ok := local[name]; ok {
		return &e, nil
	}
	return nil, nil
}
