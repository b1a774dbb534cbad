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
Package main provides HookRunner for operator-supplied checkpoint scripts.

A hook checkpoint is a flat directory of candidate script files, iterated in
lexicographic order at the moment the checkpoint is reached. Two hook kinds
exist, distinguished by the executable bit:

  - Runnable hook (executable): run as an isolated subprocess with the
    resolved configuration exported into its environment. A non-zero exit
    vetoes the entire initialization run.
  - Environment-mutating hook (not executable): a KEY=VALUE file whose
    recognized overrides are merged into the resolved configuration before
    subsequent steps run. The mutation is explicit data flow, not implicit
    shell sourcing.

Files without the .sh suffix are skipped with a log note.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/firstboot/cmd/firstboot/config"
	"github.com/AleutianAI/firstboot/pkg/logging"
)

// Checkpoint directory names under the hooks root.
const (
	CheckpointBeforeConfig = "before-config-applied.d"
	CheckpointAfterConfig  = "after-config-applied.d"
	CheckpointBeforeData   = "before-data-load.d"
	CheckpointAfterData    = "after-data-load.d"
)

// hookSuffix marks a directory entry as a script candidate.
const hookSuffix = ".sh"

// ErrHookFailed is returned when a runnable hook exits non-zero.
var ErrHookFailed = errors.New("hook failed")

// ErrHookParse is returned when an environment-mutating hook is malformed.
var ErrHookParse = errors.New("hook parse error")

// -----------------------------------------------------------------------------
// Interface Definition
// -----------------------------------------------------------------------------

// HookRunner executes the scripts of one checkpoint.
//
// A failing hook aborts the initialization sequence before the surrounding
// stage is marked complete, so the same hook re-runs on the next restart.
type HookRunner interface {
	// RunCheckpoint runs every hook in the named checkpoint directory.
	// A missing or empty directory is a no-op. cfg may be mutated by
	// environment-mutating hooks.
	RunCheckpoint(ctx context.Context, checkpoint string, cfg *config.Config) error
}

// -----------------------------------------------------------------------------
// Implementation
// -----------------------------------------------------------------------------

// DefaultHookRunner implements HookRunner against the real filesystem.
type DefaultHookRunner struct {
	proc   ProcessManager
	logger *logging.Logger
}

// NewDefaultHookRunner creates a hook runner that executes runnable hooks
// through the given ProcessManager.
func NewDefaultHookRunner(proc ProcessManager, logger *logging.Logger) *DefaultHookRunner {
	return &DefaultHookRunner{proc: proc, logger: logger}
}

// RunCheckpoint runs every hook in the named checkpoint directory.
func (r *DefaultHookRunner) RunCheckpoint(ctx context.Context, checkpoint string, cfg *config.Config) error {
	dir := cfg.HookDir(checkpoint)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading checkpoint directory %s: %w", dir, err)
	}

	// os.ReadDir returns entries sorted by filename, which is the
	// ordering contract: hooks may have order-sensitive side effects.
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		path := filepath.Join(dir, name)

		if !strings.HasSuffix(name, hookSuffix) {
			r.logger.Info("skipping hook candidate: not a script", "checkpoint", checkpoint, "file", name)
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return fmt.Errorf("inspecting hook %s: %w", path, err)
		}

		if isExecutable(info.Mode()) {
			if err := r.runExecutable(ctx, checkpoint, path, cfg); err != nil {
				return err
			}
			continue
		}
		if err := r.applyMutating(checkpoint, path, cfg); err != nil {
			return err
		}
	}
	return nil
}

func (r *DefaultHookRunner) runExecutable(ctx context.Context, checkpoint, path string, cfg *config.Config) error {
	r.logger.Info("running hook", "checkpoint", checkpoint, "hook", filepath.Base(path))
	if err := r.proc.RunStreaming(ctx, hookEnviron(cfg), path); err != nil {
		// Both errors stay in the chain: ErrHookFailed for callers that
		// branch on the veto, the subprocess error so the hook's own exit
		// code survives to the process exit status.
		return fmt.Errorf("%w: %s at %s: %w", ErrHookFailed, filepath.Base(path), checkpoint, err)
	}
	return nil
}

func (r *DefaultHookRunner) applyMutating(checkpoint, path string, cfg *config.Config) error {
	r.logger.Info("applying environment-mutating hook", "checkpoint", checkpoint, "hook", filepath.Base(path))
	overrides, err := parseEnvFile(path)
	if err != nil {
		return fmt.Errorf("%w: %s at %s: %v", ErrHookParse, filepath.Base(path), checkpoint, err)
	}
	for key, value := range overrides {
		entry := EnvVar{Key: key, Value: value, Sensitive: key == config.EnvAdminPassword}
		r.logger.Info("hook override", "checkpoint", checkpoint,
			"hook", filepath.Base(path), "entry", entry.Redacted())
	}
	ignored := cfg.ApplyOverrides(overrides)
	for _, key := range ignored {
		r.logger.Warn("ignoring hook override", "checkpoint", checkpoint,
			"hook", filepath.Base(path), "key", key)
	}
	return nil
}

// isExecutable reports whether any execute bit is set.
func isExecutable(mode fs.FileMode) bool {
	return mode&0111 != 0
}

// parseEnvFile reads a KEY=VALUE overrides file.
//
// Blank lines and #-comments are ignored. A leading "export " is tolerated
// so the same file doubles as a shell fragment. Values may be wrapped in
// single or double quotes. Any other line is a parse error: a malformed
// mutating hook vetoes startup the same way a failing runnable hook does.
func parseEnvFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	overrides := make(map[string]string)
	for i, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, found := strings.Cut(line, "=")
		if !found {
			return nil, fmt.Errorf("line %d: expected KEY=VALUE, got %q", i+1, raw)
		}
		key = strings.TrimSpace(key)
		if err := (EnvVar{Key: key}).Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		overrides[key] = unquote(strings.TrimSpace(value))
	}
	return overrides, nil
}

func unquote(value string) string {
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			return value[1 : len(value)-1]
		}
	}
	return value
}
