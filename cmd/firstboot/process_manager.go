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
Package main provides ProcessManager for abstracting external process execution.

ProcessManager enables testable interaction with the operating system's process
management capabilities. All exec.Command calls in the sequencer go through
this interface so that unit tests can observe and simulate subprocess behavior
(hook vetoes, loader failures) without spawning real processes.
*/
package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// -----------------------------------------------------------------------------
// Interface Definition
// -----------------------------------------------------------------------------

// ProcessManager handles external process operations.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. The sequencer itself is
// strictly sequential, but the shutdown handler invokes the stop mechanism
// from its signal goroutine.
//
// # Context Handling
//
// All methods accept a context.Context. No timeout is imposed here: a hung
// hook or loader blocks initialization indefinitely, which is the documented
// behavior — the container orchestration layer owns liveness.
type ProcessManager interface {
	// Run executes a command synchronously and returns its combined stdout.
	//
	// Stderr is captured and folded into the returned error on failure.
	// Intended for short administrative commands (the stop-signal
	// mechanism); large output is fully buffered.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)

	// RunStreaming executes a command synchronously with its stdout and
	// stderr connected to this process's own streams.
	//
	// env, when non-nil, fully replaces the subprocess environment.
	// Intended for hooks and bulk data loads, whose progress output an
	// operator watches through the container log.
	RunStreaming(ctx context.Context, env []string, name string, args ...string) error
}

// -----------------------------------------------------------------------------
// Implementation
// -----------------------------------------------------------------------------

// DefaultProcessManager implements ProcessManager using os/exec.
//
// This is the production implementation that executes real processes on the
// system. Use MockProcessManager in tests instead.
type DefaultProcessManager struct{}

// NewDefaultProcessManager creates a ProcessManager that executes real
// processes using os/exec.
func NewDefaultProcessManager() *DefaultProcessManager {
	return &DefaultProcessManager{}
}

// Run executes a command synchronously and returns its output.
func (pm *DefaultProcessManager) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		// Include stderr in error for debugging
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil, err
	}

	return stdout.Bytes(), nil
}

// RunStreaming executes a command with inherited standard streams.
func (pm *DefaultProcessManager) RunStreaming(ctx context.Context, env []string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if env != nil {
		cmd.Env = env
	}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Mock Implementation for Testing
// -----------------------------------------------------------------------------

// ProcessCall records one invocation observed by MockProcessManager.
type ProcessCall struct {
	Name      string
	Args      []string
	Env       []string
	Streaming bool
}

// MockProcessManager is a test double for ProcessManager.
//
// Configure the mock by setting function fields before use; a nil function
// field makes the corresponding method succeed with empty output. Every
// invocation is recorded in Calls in order.
//
// # Thread Safety
//
// Calls recording is mutex-guarded so shutdown-handler tests can invoke it
// from the signal goroutine.
type MockProcessManager struct {
	// RunFunc, when set, backs Run.
	RunFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

	// RunStreamingFunc, when set, backs RunStreaming.
	RunStreamingFunc func(ctx context.Context, env []string, name string, args ...string) error

	mu    sync.Mutex
	calls []ProcessCall
}

// Run records the call and delegates to RunFunc.
func (m *MockProcessManager) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	m.record(ProcessCall{Name: name, Args: args})
	if m.RunFunc != nil {
		return m.RunFunc(ctx, name, args...)
	}
	return nil, nil
}

// RunStreaming records the call and delegates to RunStreamingFunc.
func (m *MockProcessManager) RunStreaming(ctx context.Context, env []string, name string, args ...string) error {
	m.record(ProcessCall{Name: name, Args: args, Env: env, Streaming: true})
	if m.RunStreamingFunc != nil {
		return m.RunStreamingFunc(ctx, env, name, args...)
	}
	return nil
}

// Calls returns a copy of all recorded invocations.
func (m *MockProcessManager) Calls() []ProcessCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ProcessCall, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *MockProcessManager) record(c ProcessCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
}
