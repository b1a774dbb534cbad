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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	rootCmd = &cobra.Command{
		Use:   "firstboot [-- target args...]",
		Short: "Container initialization sequencer for Apache OFBiz",
		Long: `firstboot prepares a containerized OFBiz instance before handing
control to the application process: it applies one-time configuration
edits, performs the requested bulk data load, provisions the bootstrap
admin account, and then execs the application. All behavior is driven by
environment variables; completed stages are recorded as marker files on
the runtime volume and skipped on subsequent starts.`,
		Args: cobra.ArbitraryArgs,
		Run:  runSequence, // Defined in cmd_run.go
	}

	runCmd = &cobra.Command{
		Use:   "run [-- target args...]",
		Short: "Run the initialization sequence and exec the application",
		Args:  cobra.ArbitraryArgs,
		Run:   runSequence, // Defined in cmd_run.go
	}

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show which initialization stages have completed on this volume",
		Args:  cobra.NoArgs,
		Run:   runStatus, // Defined in cmd_status.go
	}
)

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
}
