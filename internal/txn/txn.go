// Copyright 2026 The spkm Authors.
// All rights reserved

// Package txn orchestrates the transactional apply: world-file
// rotation, the three-phase del/add/up sequence, and rollback on
// failure.
package txn

import (
	"context"

	"github.com/spf13/afero"

	"github.com/crossplane/crossplane-runtime/pkg/errors"

	"github.com/stock-linux/spkm/internal/extract"
	"github.com/stock-linux/spkm/internal/index"
	"github.com/stock-linux/spkm/internal/layout"
	"github.com/stock-linux/spkm/internal/model"
	"github.com/stock-linux/spkm/internal/planner"
	"github.com/stock-linux/spkm/internal/statuslog"
)

// State is a step of the per-apply state machine.
type State int

const (
	Idle State = iota
	Planning
	Confirmed
	Deleting
	Adding
	Upgrading
	Done
	Cancelled
	Rollback
	RollbackUp
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Planning:
		return "planning"
	case Confirmed:
		return "confirmed"
	case Deleting:
		return "deleting"
	case Adding:
		return "adding"
	case Upgrading:
		return "upgrading"
	case Done:
		return "done"
	case Cancelled:
		return "cancelled"
	case Rollback:
		return "rollback"
	case RollbackUp:
		return "rollback_up"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Planner is the subset of planner.Planner the manager needs.
type Planner interface {
	Plan(ctx context.Context, local, worldNew map[string]model.Entry) (planner.Plan, error)
}

// Fetcher is the subset of fetch.Fetcher the manager needs.
type Fetcher interface {
	Fetch(ctx context.Context, pkg model.Package) (string, error)
}

// Extractor is the subset of extract.Pool the manager needs.
type Extractor interface {
	Extract(ctx context.Context, jobs []extract.Job) error
}

// Confirmer gates the transition from Planning to Confirmed. The CLI
// wires this to an interactive prompt; tests wire it to a constant.
type Confirmer func(ctx context.Context, plan planner.Plan) (bool, error)

// AlwaysConfirm is a Confirmer that never prompts, for non-interactive
// or test use.
func AlwaysConfirm(context.Context, planner.Plan) (bool, error) { return true, nil }

// Manager orchestrates the apply.
type Manager struct {
	fs     afero.Fs
	dbpath string
	root   string

	planner   Planner
	fetcher   Fetcher
	extractor Extractor
	log       statuslog.Logger
	confirm   Confirmer

	state State
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the status logger.
func WithLogger(l statuslog.Logger) Option { return func(m *Manager) { m.log = l } }

// WithConfirmer overrides the default always-confirm behavior.
func WithConfirmer(c Confirmer) Option { return func(m *Manager) { m.confirm = c } }

// New constructs a Manager. fs is the filesystem root is installed into
// and dbpath lives on (an afero.OsFs in production, MemMapFs in tests).
func New(fs afero.Fs, dbpath, root string, pl Planner, f Fetcher, ex Extractor, opts ...Option) *Manager {
	m := &Manager{
		fs:        fs,
		dbpath:    dbpath,
		root:      root,
		planner:   pl,
		fetcher:   f,
		extractor: ex,
		log:       statuslog.Discard,
		confirm:   AlwaysConfirm,
		state:     Idle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the manager's current position in the apply state
// machine; useful for diagnostics and tests.
func (m *Manager) State() State { return m.state }

// maxApplyAttempts bounds the re-apply loop to exactly one retry after
// an extraction failure during Phase 2, never unbounded recursion.
const maxApplyAttempts = 2

// Apply runs the full reconciliation: load state, plan, confirm,
// rotate world files, then walk the del/add/up phases. It returns
// model.ErrUserCancelled if the confirmer declines.
func (m *Manager) Apply(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt < maxApplyAttempts; attempt++ {
		retry, err := m.applyOnce(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			return err
		}
		m.log.Warn("retrying apply after extraction failure: %v", err)
	}
	return lastErr
}

// applyOnce runs a single attempt. The bool return reports whether the
// caller should retry (true only for an extraction failure in Phase 2,
// and only on the first attempt).
func (m *Manager) applyOnce(ctx context.Context, attempt int) (bool, error) {
	m.state = Planning

	local, err := m.loadLocal()
	if err != nil {
		m.state = Failed
		return false, err
	}

	worldNewExists, err := index.Exists(m.fs, layout.WorldNew(m.dbpath))
	if err != nil {
		m.state = Failed
		return false, err
	}
	var worldNew map[string]model.Entry
	if worldNewExists {
		wn, err := index.Load(m.fs, layout.WorldNew(m.dbpath))
		if err != nil {
			m.state = Failed
			return false, err
		}
		worldNew = wn
	}

	plan, err := m.planner.Plan(ctx, local, worldNew)
	if err != nil {
		m.state = Failed
		return false, err
	}

	if plan.IsEmpty() && !worldNewExists {
		m.state = Done
		return false, nil
	}

	ok, err := m.confirm(ctx, plan)
	if err != nil {
		m.state = Failed
		return false, err
	}
	if !ok {
		m.state = Cancelled
		return false, model.ErrUserCancelled
	}
	m.state = Confirmed

	if err := m.rotateWorld(worldNewExists); err != nil {
		m.state = Failed
		return false, err
	}

	m.state = Deleting
	if err := m.applyDeletions(local, plan.Dels); err != nil {
		m.state = Failed
		return false, err
	}

	// Snapshot local as it stands once deletions (real, committed file
	// removals) have landed but before Phase 2 starts optimistically
	// crediting packages that have not actually been extracted yet. If
	// Phase 2 fails, this is the state a rollback must persist.
	preAddLocal := cloneEntries(local)

	m.state = Adding
	if err := m.applyAdditions(ctx, local, plan.Adds); err != nil {
		if isExtractionFailure(err) && attempt == 0 {
			if rerr := m.rollbackAdd(preAddLocal, worldNewExists, worldNew); rerr != nil {
				m.state = Failed
				return false, errors.Wrap(rerr, "rollback after extraction failure also failed")
			}
			m.state = Rollback
			return true, err
		}
		m.state = Failed
		return false, err
	}

	m.state = Upgrading
	if err := m.applyUpgrades(ctx, local, plan.Ups); err != nil {
		m.state = Failed
		return false, err
	}

	if err := index.Write(m.fs, layout.Local(m.dbpath), local); err != nil {
		m.state = Failed
		return false, err
	}

	if err := index.Remove(m.fs, layout.WorldOld(m.dbpath)); err != nil {
		m.state = Failed
		return false, err
	}

	m.state = Done
	return false, nil
}

func isExtractionFailure(err error) bool {
	var ext *model.ExtractionFailedError
	var mm *model.ManifestMissingError
	return errors.As(err, &ext) || errors.As(err, &mm)
}

func (m *Manager) loadLocal() (map[string]model.Entry, error) {
	exists, err := index.Exists(m.fs, layout.Local(m.dbpath))
	if err != nil {
		return nil, err
	}
	if !exists {
		return map[string]model.Entry{}, nil
	}
	return index.Load(m.fs, layout.Local(m.dbpath))
}

// rotateWorld performs the commit ceremony: if
// world.new exists, world is snapshotted to world.old, then world.new
// replaces world. If world.new does not exist (a pure upgrade run), no
// rotation happens and world.old is not created.
func (m *Manager) rotateWorld(worldNewExists bool) error {
	if !worldNewExists {
		return nil
	}

	worldExists, err := index.Exists(m.fs, layout.World(m.dbpath))
	if err != nil {
		return err
	}
	if worldExists {
		if err := index.Copy(m.fs, layout.World(m.dbpath), layout.WorldOld(m.dbpath)); err != nil {
			return errors.Wrap(err, "snapshotting world to world.old")
		}
	}

	wn, err := index.Load(m.fs, layout.WorldNew(m.dbpath))
	if err != nil {
		return err
	}
	if err := index.Write(m.fs, layout.World(m.dbpath), wn); err != nil {
		return errors.Wrap(err, "rotating world.new into world")
	}
	return index.Remove(m.fs, layout.WorldNew(m.dbpath))
}

// rollbackAdd recreates world.new with the exact content this attempt
// staged (so a retry replans the identical operation) and persists local
// as it stood before Phase 2's optimistic bookkeeping, so a package that
// never actually extracted is never recorded as installed.
func (m *Manager) rollbackAdd(preAddLocal map[string]model.Entry, worldNewExists bool, worldNew map[string]model.Entry) error {
	if worldNewExists {
		if err := index.Write(m.fs, layout.WorldNew(m.dbpath), worldNew); err != nil {
			return err
		}
	}
	return index.Write(m.fs, layout.Local(m.dbpath), preAddLocal)
}

// cloneEntries returns a shallow copy of an index map.
func cloneEntries(m map[string]model.Entry) map[string]model.Entry {
	out := make(map[string]model.Entry, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
