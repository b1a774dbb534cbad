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
Package main provides Sequencer for orchestrating the initialization run.

Sequencer is the top of the dependency hierarchy. It coordinates the fixed
stage order and the terminal handoff:

	Run() sequence:
	  1. ShutdownHandler.Arm()            // signal relay, process lifetime
	  2. ConfigurationApplier.Apply()     // guarded by config_applied
	  3. DataLoader.Load()                // guarded by data_loaded
	  4. CredentialProvisioner.Provision()// guarded by admin_loaded
	  5. scrub init inputs from environ   // password must not leak
	  6. Handoff.Exec()                   // becomes the application

Each stage is independently skippable via its own marker, but the order
among non-skipped stages is fixed. The first failing step aborts the run;
already-written markers stay, so the next container start resumes at the
first incomplete stage.

# Design Principles

  - Dependency Injection: every collaborator is an injected interface
  - Single Responsibility: one stage per component
  - Fail fast: no retries here; retry is the orchestration layer restarting
    the container
*/
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/AleutianAI/firstboot/cmd/firstboot/config"
	"github.com/AleutianAI/firstboot/pkg/logging"
)

// Sequencer runs the initialization stages in order, then hands control to
// the application process.
type Sequencer struct {
	applier     *ConfigurationApplier
	loader      *DataLoader
	provisioner *CredentialProvisioner
	shutdown    *ShutdownHandler
	handoff     Handoff
	logger      *logging.Logger
}

// NewSequencer wires the sequencer's collaborators.
func NewSequencer(
	applier *ConfigurationApplier,
	loader *DataLoader,
	provisioner *CredentialProvisioner,
	shutdown *ShutdownHandler,
	handoff Handoff,
	logger *logging.Logger,
) *Sequencer {
	return &Sequencer{
		applier:     applier,
		loader:      loader,
		provisioner: provisioner,
		shutdown:    shutdown,
		handoff:     handoff,
		logger:      logger,
	}
}

// Run executes the full initialization sequence and ends in the exec
// handoff to target.
//
// target is the application argv; when empty it defaults to the
// application launcher. On success this function never returns — the
// process image is replaced. A returned error is always a failure.
func (s *Sequencer) Run(ctx context.Context, cfg *config.Config, target []string) error {
	runID := uuid.NewString()
	logger := s.logger.With("run_id", runID)
	logger.Info("starting initialization run")

	s.shutdown.Arm()

	if cfg.SkipInit {
		logger.Info("skip-init set, bypassing initialization")
		return s.execTarget(cfg, target, logger)
	}

	if err := s.applier.Apply(ctx, cfg); err != nil {
		return fmt.Errorf("configuration stage: %w", err)
	}
	if err := s.loader.Load(ctx, cfg); err != nil {
		return fmt.Errorf("data load stage: %w", err)
	}
	if err := s.provisioner.Provision(ctx, cfg); err != nil {
		return fmt.Errorf("credential stage: %w", err)
	}

	logger.Info("initialization complete, handing off")
	return s.execTarget(cfg, target, logger)
}

// execTarget scrubs the configuration inputs from the environment and
// replaces this process with the target.
func (s *Sequencer) execTarget(cfg *config.Config, target []string, logger *logging.Logger) error {
	if len(target) == 0 {
		target = []string{cfg.LoaderBin()}
	}

	// The child inherits our environment; drop the initialization
	// inputs (the admin password above all) before it can see them.
	scrubInitInputs()

	logger.Info("exec handoff", "argv", target)
	if err := s.handoff.Exec(target, os.Environ()); err != nil {
		return err
	}
	// Only a mock handoff returns without error.
	return nil
}
