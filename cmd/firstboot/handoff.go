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
	"os/exec"

	"golang.org/x/sys/unix"
)

// Handoff is the terminal action: replace this process with the target
// application so that no supervisory wrapper remains and signal delivery
// targets the application directly.
//
// Modeled as an injected dependency because a successful Exec never
// returns — tests need to observe the handoff instead of performing it.
type Handoff interface {
	// Exec replaces the current process image with argv (argv[0] is the
	// executable) under the given environment. Only returns on failure.
	Exec(argv []string, env []string) error
}

// ExecHandoff implements Handoff with execve(2).
type ExecHandoff struct{}

// Exec resolves argv[0] on PATH and replaces the process image.
func (ExecHandoff) Exec(argv []string, env []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("handoff: empty argv")
	}
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return fmt.Errorf("handoff: resolving %s: %w", argv[0], err)
	}
	if err := unix.Exec(path, argv, env); err != nil {
		return fmt.Errorf("handoff: exec %s: %w", path, err)
	}
	// Unreachable: a successful exec does not return.
	return nil
}

// MockHandoff records the handoff instead of performing it. Test double.
type MockHandoff struct {
	// Called reports whether Exec was invoked.
	Called bool

	// Argv and Env capture the most recent invocation.
	Argv []string
	Env  []string

	// Err, when set, is returned by Exec.
	Err error
}

// Exec records the invocation.
func (m *MockHandoff) Exec(argv []string, env []string) error {
	m.Called = true
	m.Argv = argv
	m.Env = env
	return m.Err
}
