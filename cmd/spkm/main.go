// Copyright 2026 The spkm Authors.
// All rights reserved

// Command spkm is a source-style package manager: it reconciles a
// user-declared world of packages against what is installed on disk.
package main

import (
	"context"
	"os"

	"github.com/alecthomas/kong"
	"github.com/pterm/pterm"
)

const helpDescription = `spkm is a source-style package manager.

It compares a declared set of desired packages (world) against what is
installed (local) and reconciles the two: fetching, extracting, and
removing files as needed.`

type cli struct {
	Yes    bool `help:"Skip the confirmation prompt." name:"yes" short:"y"`
	Pretty bool `default:"true" help:"Color terminal output." name:"pretty"`

	Add  addCmd  `cmd:"" help:"Stage package additions into world.new."`
	Del  delCmd  `cmd:"" help:"Stage package removals from world.new." name:"del"`
	Up   upCmd   `cmd:"" help:"Reconcile local against world, applying adds/dels/upgrades."`
	Info infoCmd `cmd:"" help:"Print a package's catalog record and installed status."`
	Conf confCmd `cmd:"" help:"Echo the loaded configuration document."`
}

func (c *cli) AfterApply(kongCtx *kong.Context) error { //nolint:unparam // kong requires an error return.
	if !c.Pretty {
		pterm.DisableStyling()
	}
	kongCtx.Bind(c)
	return nil
}

func main() {
	c := cli{}

	parser := kong.Must(&c,
		kong.Name("spkm"),
		kong.Description(helpDescription),
		kong.UsageOnError(),
	)

	if len(os.Args) == 1 {
		_, err := parser.Parse([]string{"--help"})
		parser.FatalIfErrorf(err)
		return
	}

	kongCtx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	kongCtx.BindTo(context.Background(), (*context.Context)(nil))
	kongCtx.FatalIfErrorf(kongCtx.Run())
}
