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
Package main provides StateTracker for durable stage-completion markers.

A stage marker is a boolean fact: "stage X has completed for this persistent
volume." Existence is completion. Markers are created on success, never
mutated, and never deleted by this system — an operator may delete one to
force a stage to re-run on the next container start.

The invariant a marker carries: it exists iff the stage's external side
effects are believed durably applied to the persisted state. Nothing here
re-validates that belief; retry-on-missing-marker is the whole recovery
model.
*/
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Stage identifies one guarded initialization stage.
type Stage string

const (
	// StageConfigApplied guards the configuration edits.
	StageConfigApplied Stage = "config_applied"

	// StageDataLoaded guards the bulk data import.
	StageDataLoaded Stage = "data_loaded"

	// StageAdminLoaded guards the admin credential bootstrap. The demo
	// data branch pre-sets it, since demo data ships an admin account.
	StageAdminLoaded Stage = "admin_loaded"
)

// AllStages lists the guarded stages in their execution order.
func AllStages() []Stage {
	return []Stage{StageConfigApplied, StageDataLoaded, StageAdminLoaded}
}

// -----------------------------------------------------------------------------
// Interface Definition
// -----------------------------------------------------------------------------

// StateTracker records which initialization stages have completed.
//
// Injected everywhere it is consulted so tests can fake it. No locking is
// performed by implementations: execution is single-process per volume by
// contract, and concurrent container starts against the same volume are
// undefined behavior.
type StateTracker interface {
	// HasCompleted reports whether the stage's marker exists.
	HasCompleted(stage Stage) (bool, error)

	// MarkCompleted durably records the stage as complete.
	// Idempotent: marking an already-marked stage succeeds.
	MarkCompleted(stage Stage) error
}

// -----------------------------------------------------------------------------
// Implementation
// -----------------------------------------------------------------------------

// FileStateTracker implements StateTracker with marker files in a state
// directory on the persistent volume.
type FileStateTracker struct {
	dir string
}

// NewFileStateTracker creates a tracker rooted at dir.
//
// The directory is created lazily on first MarkCompleted, not here, so that
// a skip-init run never touches the volume.
func NewFileStateTracker(dir string) *FileStateTracker {
	return &FileStateTracker{dir: dir}
}

// HasCompleted reports whether the stage's marker file exists.
func (t *FileStateTracker) HasCompleted(stage Stage) (bool, error) {
	_, err := os.Stat(t.markerPath(stage))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("checking marker for %s: %w", stage, err)
}

// MarkCompleted writes the stage's marker file, creating the state
// directory (including parents) if needed.
//
// The file content is a timestamp for an operator's benefit; only the
// file's existence carries meaning.
func (t *FileStateTracker) MarkCompleted(stage Stage) error {
	if err := os.MkdirAll(t.dir, 0755); err != nil {
		return fmt.Errorf("creating state directory %s: %w", t.dir, err)
	}
	content := time.Now().UTC().Format(time.RFC3339) + "\n"
	if err := os.WriteFile(t.markerPath(stage), []byte(content), 0644); err != nil {
		return fmt.Errorf("writing marker for %s: %w", stage, err)
	}
	return nil
}

func (t *FileStateTracker) markerPath(stage Stage) string {
	return filepath.Join(t.dir, string(stage))
}

// -----------------------------------------------------------------------------
// Mock Implementation for Testing
// -----------------------------------------------------------------------------

// MockStateTracker is an in-memory test double for StateTracker.
type MockStateTracker struct {
	// Completed holds the pre-set marker states. Nil is treated as empty.
	Completed map[Stage]bool

	// Marked records MarkCompleted calls in order.
	Marked []Stage

	// HasErr, when set, is returned by every HasCompleted call.
	HasErr error

	// MarkErr, when set, is returned by every MarkCompleted call.
	MarkErr error
}

// HasCompleted reports the pre-set state, including marks made during the test.
func (m *MockStateTracker) HasCompleted(stage Stage) (bool, error) {
	if m.HasErr != nil {
		return false, m.HasErr
	}
	return m.Completed[stage], nil
}

// MarkCompleted records the mark.
func (m *MockStateTracker) MarkCompleted(stage Stage) error {
	if m.MarkErr != nil {
		return m.MarkErr
	}
	if m.Completed == nil {
		m.Completed = make(map[Stage]bool)
	}
	m.Completed[stage] = true
	m.Marked = append(m.Marked, stage)
	return nil
}
