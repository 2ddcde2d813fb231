// Copyright 2026 The spkm Authors.
// All rights reserved

package main

import (
	"os"

	"github.com/BurntSushi/toml"
)

type confCmd struct{}

func (c *confCmd) Run(cliCtx *cli) error {
	a, err := newApp(cliCtx.Pretty)
	if err != nil {
		return err
	}

	enc := toml.NewEncoder(os.Stdout)
	return enc.Encode(a.cfg)
}
