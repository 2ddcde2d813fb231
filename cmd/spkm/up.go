// Copyright 2026 The spkm Authors.
// All rights reserved

package main

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"

	"github.com/stock-linux/spkm/internal/planner"
	"github.com/stock-linux/spkm/internal/txn"
)

type upCmd struct{}

func (c *upCmd) Run(ctx context.Context, cliCtx *cli) error {
	a, err := newApp(cliCtx.Pretty)
	if err != nil {
		return err
	}

	confirm := promptConfirmer(cliCtx.Yes)
	mgr := a.manager(confirm)

	if err := mgr.Apply(ctx); err != nil {
		return err
	}
	pterm.Success.Printfln("system is up to date.")
	return nil
}

// promptConfirmer returns a txn.Confirmer that either always accepts
// (--yes, for scripted use) or prompts interactively, printing a
// summary of the plan first.
func promptConfirmer(yes bool) txn.Confirmer {
	if yes {
		return txn.AlwaysConfirm
	}
	return func(_ context.Context, plan planner.Plan) (bool, error) {
		if plan.IsEmpty() {
			return true, nil
		}
		printPlanSummary(plan)
		result, err := pterm.DefaultInteractiveConfirm.Show("Apply these changes?")
		return result, err
	}
}

func printPlanSummary(plan planner.Plan) {
	for _, d := range plan.Dels {
		fmt.Printf("  - %s (%s-%d)\n", d.Name, d.Version, d.Release)
	}
	for _, a := range plan.Adds {
		fmt.Printf("  + %s (%s-%d)\n", a.Name, a.Version, a.Release)
	}
	for _, u := range plan.Ups {
		fmt.Printf("  ~ %s (%s-%d -> %s-%d)\n", u.New.Name, u.Old.Version, u.Old.Release, u.New.Version, u.New.Release)
	}
}
