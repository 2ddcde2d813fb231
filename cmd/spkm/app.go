// Copyright 2026 The spkm Authors.
// All rights reserved

package main

import (
	"net/http"
	"os"

	"github.com/spf13/afero"

	"github.com/stock-linux/spkm/internal/catalog"
	"github.com/stock-linux/spkm/internal/config"
	"github.com/stock-linux/spkm/internal/extract"
	"github.com/stock-linux/spkm/internal/fetch"
	"github.com/stock-linux/spkm/internal/planner"
	"github.com/stock-linux/spkm/internal/resolver"
	"github.com/stock-linux/spkm/internal/statuslog"
	"github.com/stock-linux/spkm/internal/txn"
)

// app bundles the wired-up core components every command needs.
type app struct {
	fs      afero.Fs
	cfg     config.Config
	log     statuslog.Logger
	catalog *catalog.Catalog
}

func newApp(pretty bool) (*app, error) {
	fs := afero.NewOsFs()

	cfg, err := config.Load(fs, config.Path())
	if err != nil {
		return nil, err
	}

	log := statuslog.NewTerminal(os.Stdout, cfg.General.Colors && pretty)

	return &app{
		fs:      fs,
		cfg:     cfg,
		log:     log,
		catalog: catalog.New(fs, cfg.General.DBPath, cfg.Repos),
	}, nil
}

// manager builds a fully wired txn.Manager from the app's config.
func (a *app) manager(confirm txn.Confirmer) *txn.Manager {
	res := resolver.New(a.catalog)
	pl := planner.New(a.catalog, res)
	f := fetch.New(a.fs, a.cfg.General.Cache, a.log, &http.Client{})
	ex := extract.New(a.fs, a.cfg.General.DBPath, a.cfg.General.Root, a.cfg.General.Threads, extract.NewExecRunner(""))

	opts := []txn.Option{txn.WithLogger(a.log)}
	if confirm != nil {
		opts = append(opts, txn.WithConfirmer(confirm))
	}
	return txn.New(a.fs, a.cfg.General.DBPath, a.cfg.General.Root, pl, f, ex, opts...)
}
