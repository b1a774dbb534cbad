// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/firstboot/cmd/firstboot/config"
	"github.com/AleutianAI/firstboot/pkg/logging"
)

// newLogger builds the process logger from the FIRSTBOOT_LOG_* variables.
func newLogger() *logging.Logger {
	return logging.New(logging.Config{
		Level:   logging.ParseLevel(os.Getenv("FIRSTBOOT_LOG_LEVEL")),
		LogDir:  os.Getenv("FIRSTBOOT_LOG_DIR"),
		Service: "firstboot",
	})
}

// runSequence is the entrypoint path: initialize, then exec the target.
// Arguments after -- form the target argv; empty means the application
// launcher.
func runSequence(cmd *cobra.Command, args []string) {
	logger := newLogger()
	cfg := config.FromEnvironment()

	proc := NewDefaultProcessManager()
	state := NewFileStateTracker(cfg.StateDir())
	hooks := NewDefaultHookRunner(proc, logger)

	seq := NewSequencer(
		NewConfigurationApplier(state, hooks, logger),
		NewDataLoader(state, hooks, proc, logger),
		NewCredentialProvisioner(state, proc, logger),
		NewShutdownHandler(proc, cfg.LoaderBin(), logger),
		ExecHandoff{},
		logger,
	)

	if err := seq.Run(context.Background(), cfg, args); err != nil {
		logger.Error("initialization failed", "error", err)
		logger.Close()
		os.Exit(exitCode(err))
	}
}

// exitCode surfaces the underlying failure's exit code when a subprocess
// (hook or loader) caused the abort, and 1 otherwise.
func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code > 0 {
			return code
		}
	}
	return 1
}
