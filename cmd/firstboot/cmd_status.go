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
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/firstboot/cmd/firstboot/config"
	"github.com/AleutianAI/firstboot/pkg/logging"
)

// StageStatus is the YAML shape of one stage's marker state.
type StageStatus struct {
	Stage     string `yaml:"stage"`
	Completed bool   `yaml:"completed"`
}

// statusReport is the YAML document printed by the status command.
type statusReport struct {
	StateDir string        `yaml:"state_dir"`
	Stages   []StageStatus `yaml:"stages"`
}

// runStatus prints the marker state of every stage for this volume.
//
// An operator uses this to decide which marker to delete when forcing a
// stage to re-run.
func runStatus(cmd *cobra.Command, args []string) {
	logger := logging.Default()
	cfg := config.FromEnvironment()
	tracker := NewFileStateTracker(cfg.StateDir())

	report := statusReport{StateDir: cfg.StateDir()}
	for _, stage := range AllStages() {
		done, err := tracker.HasCompleted(stage)
		if err != nil {
			logger.Error("reading stage marker", "stage", stage, "error", err)
			os.Exit(1)
		}
		report.Stages = append(report.Stages, StageStatus{
			Stage:     string(stage),
			Completed: done,
		})
	}

	out, err := yaml.Marshal(report)
	if err != nil {
		logger.Error("rendering status report", "error", err)
		os.Exit(1)
	}
	fmt.Print(string(out))
}
