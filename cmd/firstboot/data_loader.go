// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package main provides DataLoader for the guarded bulk data import stage.

The loader binary is an external collaborator invoked synchronously; any
non-zero exit is fatal and leaves the data_loaded marker unwritten so the
next container start retries the stage.
*/
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/AleutianAI/firstboot/cmd/firstboot/config"
	"github.com/AleutianAI/firstboot/pkg/logging"
)

// seedReaders restricts a seed load to the seed-category readers.
const seedReaders = "readers=seed,seed-initial,ext"

// DataLoader orchestrates the bulk data import, guarded by the data_loaded
// stage marker.
type DataLoader struct {
	state  StateTracker
	hooks  HookRunner
	proc   ProcessManager
	logger *logging.Logger
}

// NewDataLoader wires the loader's collaborators.
func NewDataLoader(state StateTracker, hooks HookRunner, proc ProcessManager, logger *logging.Logger) *DataLoader {
	return &DataLoader{state: state, hooks: hooks, proc: proc, logger: logger}
}

// Load runs the data stage: before hooks, branch load, additional data,
// marker, after hooks.
//
// The demo branch pre-sets the admin_loaded marker: demo data already
// contains a usable administrative account, and the credential provisioner
// must not clobber it. This cross-stage write is a required invariant, not
// an optimization.
//
// The additional-data import runs inside the same guarded block as the
// branch load, so it executes at most once per volume. Operators who need
// repeatable imports delete the data_loaded marker.
func (d *DataLoader) Load(ctx context.Context, cfg *config.Config) error {
	done, err := d.state.HasCompleted(StageDataLoaded)
	if err != nil {
		return err
	}
	if done {
		d.logger.Info("data already loaded, skipping stage", "stage", StageDataLoaded)
		return nil
	}

	if err := d.hooks.RunCheckpoint(ctx, CheckpointBeforeData, cfg); err != nil {
		return err
	}

	switch cfg.DataLoad {
	case config.DataLoadNone:
		d.logger.Info("data load disabled, skipping bulk import")

	case config.DataLoadSeed:
		d.logger.Info("loading seed data")
		if err := d.proc.RunStreaming(ctx, nil, cfg.LoaderBin(), "--load-data", seedReaders); err != nil {
			return fmt.Errorf("seed data load: %w", err)
		}

	case config.DataLoadDemo:
		d.logger.Info("loading demo data")
		if err := d.proc.RunStreaming(ctx, nil, cfg.LoaderBin(), "--load-data"); err != nil {
			return fmt.Errorf("demo data load: %w", err)
		}
		// Demo data ships an admin account; pre-set the credential
		// stage so the provisioner does not overwrite it.
		if err := d.state.MarkCompleted(StageAdminLoaded); err != nil {
			return err
		}
	}

	if err := d.loadAdditional(ctx, cfg); err != nil {
		return err
	}

	if err := d.state.MarkCompleted(StageDataLoaded); err != nil {
		return err
	}

	return d.hooks.RunCheckpoint(ctx, CheckpointAfterData, cfg)
}

// loadAdditional imports the operator-supplied additional-data directory,
// if it is non-empty, regardless of which branch ran.
func (d *DataLoader) loadAdditional(ctx context.Context, cfg *config.Config) error {
	dir := cfg.AdditionalDataDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading additional data directory %s: %w", dir, err)
	}
	if len(entries) == 0 {
		return nil
	}

	d.logger.Info("loading additional data", "dir", dir, "entries", len(entries))
	if err := d.proc.RunStreaming(ctx, nil, cfg.LoaderBin(), "--load-data", "dir="+dir); err != nil {
		return fmt.Errorf("additional data load: %w", err)
	}
	return nil
}
