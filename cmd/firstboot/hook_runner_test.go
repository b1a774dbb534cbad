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
Package main provides tests for HookRunner.

This file contains:
  - MockHookRunner: a mock implementation shared by the stage tests
  - Unit tests for checkpoint iteration, the executable/mutating split,
    and the overrides file parser
*/
package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/AleutianAI/firstboot/cmd/firstboot/config"
	"github.com/AleutianAI/firstboot/pkg/logging"
)

// =============================================================================
// Mock Implementation
// =============================================================================

// MockHookRunner is a test double for HookRunner.
//
// It records checkpoint invocations in order; Func, when set, supplies the
// behavior (a veto, a config mutation).
type MockHookRunner struct {
	// Checkpoints records every RunCheckpoint call in order.
	Checkpoints []string

	// Func, when set, backs RunCheckpoint.
	Func func(checkpoint string, cfg *config.Config) error
}

// RunCheckpoint records the call and delegates to Func.
func (m *MockHookRunner) RunCheckpoint(ctx context.Context, checkpoint string, cfg *config.Config) error {
	m.Checkpoints = append(m.Checkpoints, checkpoint)
	if m.Func != nil {
		return m.Func(checkpoint, cfg)
	}
	return nil
}

// =============================================================================
// Test Helpers
// =============================================================================

// testLogger returns a logger that stays quiet under `go test`.
func testLogger() *logging.Logger {
	return logging.New(logging.Config{Level: logging.LevelError, Quiet: true})
}

// hookConfig resolves a Config whose hooks root is a fresh temp dir.
func hookConfig(t *testing.T) *config.Config {
	t.Helper()
	return config.Resolve(map[string]string{
		config.EnvHooksDir: t.TempDir(),
		config.EnvHome:     t.TempDir(),
	})
}

// writeHook creates a file in the given checkpoint directory.
func writeHook(t *testing.T, cfg *config.Config, checkpoint, name, content string, mode os.FileMode) string {
	t.Helper()
	dir := cfg.HookDir(checkpoint)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("creating checkpoint dir: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatalf("writing hook %s: %v", name, err)
	}
	return path
}

// =============================================================================
// Checkpoint Iteration Tests
// =============================================================================

func TestRunCheckpointMissingDirIsNoOp(t *testing.T) {
	runner := NewDefaultHookRunner(&MockProcessManager{}, testLogger())
	cfg := hookConfig(t)

	if err := runner.RunCheckpoint(context.Background(), CheckpointBeforeData, cfg); err != nil {
		t.Fatalf("missing checkpoint dir should be a no-op, got: %v", err)
	}
}

func TestRunCheckpointEmptyDirIsNoOp(t *testing.T) {
	proc := &MockProcessManager{}
	runner := NewDefaultHookRunner(proc, testLogger())
	cfg := hookConfig(t)
	if err := os.MkdirAll(cfg.HookDir(CheckpointBeforeData), 0755); err != nil {
		t.Fatal(err)
	}

	if err := runner.RunCheckpoint(context.Background(), CheckpointBeforeData, cfg); err != nil {
		t.Fatalf("empty checkpoint dir should be a no-op, got: %v", err)
	}
	if len(proc.Calls()) != 0 {
		t.Errorf("no subprocess should run for an empty dir, got %v", proc.Calls())
	}
}

func TestRunCheckpointExecutableHooksRunInLexicographicOrder(t *testing.T) {
	proc := &MockProcessManager{}
	runner := NewDefaultHookRunner(proc, testLogger())
	cfg := hookConfig(t)

	// Created out of order on purpose.
	writeHook(t, cfg, CheckpointBeforeData, "20-second.sh", "#!/bin/sh\n", 0755)
	writeHook(t, cfg, CheckpointBeforeData, "10-first.sh", "#!/bin/sh\n", 0755)

	if err := runner.RunCheckpoint(context.Background(), CheckpointBeforeData, cfg); err != nil {
		t.Fatalf("RunCheckpoint error: %v", err)
	}

	calls := proc.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 hook subprocesses, got %d", len(calls))
	}
	if !strings.HasSuffix(calls[0].Name, "10-first.sh") || !strings.HasSuffix(calls[1].Name, "20-second.sh") {
		t.Errorf("hooks ran out of order: %q then %q", calls[0].Name, calls[1].Name)
	}
}

func TestRunCheckpointSkipsNonScriptFiles(t *testing.T) {
	proc := &MockProcessManager{}
	runner := NewDefaultHookRunner(proc, testLogger())
	cfg := hookConfig(t)

	writeHook(t, cfg, CheckpointBeforeData, "README.md", "docs, not a hook\n", 0755)

	if err := runner.RunCheckpoint(context.Background(), CheckpointBeforeData, cfg); err != nil {
		t.Fatalf("non-script file should be skipped, got: %v", err)
	}
	if len(proc.Calls()) != 0 {
		t.Errorf("non-script file must not run, got %v", proc.Calls())
	}
}

func TestRunCheckpointHookVetoPropagates(t *testing.T) {
	proc := &MockProcessManager{
		RunStreamingFunc: func(ctx context.Context, env []string, name string, args ...string) error {
			return errors.New("exit status 1")
		},
	}
	runner := NewDefaultHookRunner(proc, testLogger())
	cfg := hookConfig(t)
	writeHook(t, cfg, CheckpointBeforeData, "10-veto.sh", "#!/bin/sh\nexit 1\n", 0755)

	err := runner.RunCheckpoint(context.Background(), CheckpointBeforeData, cfg)
	if !errors.Is(err, ErrHookFailed) {
		t.Fatalf("expected ErrHookFailed, got: %v", err)
	}
}

func TestRunCheckpointVetoSurfacesHookExitCode(t *testing.T) {
	// Real subprocess: the hook's exit code must survive the whole error
	// chain up to the process exit status.
	runner := NewDefaultHookRunner(NewDefaultProcessManager(), testLogger())
	cfg := hookConfig(t)
	writeHook(t, cfg, CheckpointBeforeData, "10-fail.sh", "#!/bin/sh\nexit 7\n", 0755)

	err := runner.RunCheckpoint(context.Background(), CheckpointBeforeData, cfg)
	if !errors.Is(err, ErrHookFailed) {
		t.Fatalf("expected ErrHookFailed, got: %v", err)
	}
	if got := exitCode(err); got != 7 {
		t.Errorf("exitCode = %d, want the hook's own exit code 7", got)
	}
}

func TestRunCheckpointExportsResolvedConfig(t *testing.T) {
	proc := &MockProcessManager{}
	runner := NewDefaultHookRunner(proc, testLogger())
	cfg := hookConfig(t)
	cfg.Host = "erp.example.com"
	writeHook(t, cfg, CheckpointBeforeData, "10-env.sh", "#!/bin/sh\n", 0755)

	if err := runner.RunCheckpoint(context.Background(), CheckpointBeforeData, cfg); err != nil {
		t.Fatalf("RunCheckpoint error: %v", err)
	}

	calls := proc.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	found := false
	for _, kv := range calls[0].Env {
		if kv == config.EnvHost+"=erp.example.com" {
			found = true
		}
	}
	if !found {
		t.Error("resolved host not exported to hook environment")
	}
	for _, v := range hookEnvVars(cfg) {
		if v.Key == config.EnvAdminPassword {
			t.Error("resolved password must never be part of the hook export set")
		}
	}
}

// =============================================================================
// Environment-Mutating Hook Tests
// =============================================================================

func TestRunCheckpointMutatingHookAppliesOverrides(t *testing.T) {
	runner := NewDefaultHookRunner(&MockProcessManager{}, testLogger())
	cfg := hookConfig(t)
	writeHook(t, cfg, CheckpointBeforeConfig, "10-overrides.sh",
		"# set by operator\nexport OFBIZ_HOST=hooked.example.com\nOFBIZ_DATA_LOAD=\"seed\"\n", 0644)

	if err := runner.RunCheckpoint(context.Background(), CheckpointBeforeConfig, cfg); err != nil {
		t.Fatalf("RunCheckpoint error: %v", err)
	}

	if cfg.Host != "hooked.example.com" {
		t.Errorf("Host = %q, mutating hook override not applied", cfg.Host)
	}
	if cfg.DataLoad != config.DataLoadSeed {
		t.Errorf("DataLoad = %q, mutating hook override not applied", cfg.DataLoad)
	}
}

func TestRunCheckpointMutatingHookCannotMoveHome(t *testing.T) {
	runner := NewDefaultHookRunner(&MockProcessManager{}, testLogger())
	cfg := hookConfig(t)
	home := cfg.Home
	writeHook(t, cfg, CheckpointBeforeConfig, "10-move.sh", "OFBIZ_HOME=/srv/elsewhere\n", 0644)

	if err := runner.RunCheckpoint(context.Background(), CheckpointBeforeConfig, cfg); err != nil {
		t.Fatalf("RunCheckpoint error: %v", err)
	}
	// Markers and the stop mechanism are bound to the resolved root at
	// wiring time; a mid-run move would split state across two trees.
	if cfg.Home != home {
		t.Errorf("Home = %q, hook override must not move the application root", cfg.Home)
	}
}

func TestRunCheckpointMutatingHookRedactsPasswordInLog(t *testing.T) {
	logDir := t.TempDir()
	logger := logging.New(logging.Config{Level: logging.LevelInfo, LogDir: logDir, Quiet: true})
	runner := NewDefaultHookRunner(&MockProcessManager{}, logger)
	cfg := hookConfig(t)
	writeHook(t, cfg, CheckpointBeforeConfig, "05-secret.sh", "OFBIZ_ADMIN_PASSWORD=hunter2\n", 0644)

	if err := runner.RunCheckpoint(context.Background(), CheckpointBeforeConfig, cfg); err != nil {
		t.Fatalf("RunCheckpoint error: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}

	files, err := filepath.Glob(filepath.Join(logDir, "*.log"))
	if err != nil || len(files) != 1 {
		t.Fatalf("expected one log file, got %v (%v)", files, err)
	}
	data, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "hunter2") {
		t.Error("plaintext password leaked into the log")
	}
	if !strings.Contains(string(data), "[REDACTED]") {
		t.Error("override entry was not logged redacted")
	}

	// The override itself still applies.
	buf, err := cfg.OpenAdminPassword()
	if err != nil {
		t.Fatalf("OpenAdminPassword() error: %v", err)
	}
	defer buf.Destroy()
	if buf.String() != "hunter2" {
		t.Errorf("admin password override not applied")
	}
}

func TestRunCheckpointMalformedMutatingHookIsFatal(t *testing.T) {
	runner := NewDefaultHookRunner(&MockProcessManager{}, testLogger())
	cfg := hookConfig(t)
	writeHook(t, cfg, CheckpointBeforeConfig, "10-broken.sh", "this is not KEY=VALUE\n", 0644)

	err := runner.RunCheckpoint(context.Background(), CheckpointBeforeConfig, cfg)
	if !errors.Is(err, ErrHookParse) {
		t.Fatalf("expected ErrHookParse, got: %v", err)
	}
}

// =============================================================================
// Overrides Parser Tests
// =============================================================================

func TestParseEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overrides.sh")
	content := strings.Join([]string{
		"# comment",
		"",
		"PLAIN=value",
		"export EXPORTED=yes",
		`DOUBLE="quoted value"`,
		`SINGLE='single quoted'`,
		"EMPTY=",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := parseEnvFile(path)
	if err != nil {
		t.Fatalf("parseEnvFile error: %v", err)
	}
	want := map[string]string{
		"PLAIN":    "value",
		"EXPORTED": "yes",
		"DOUBLE":   "quoted value",
		"SINGLE":   "single quoted",
		"EMPTY":    "",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseEnvFile = %v, want %v", got, want)
	}
}

func TestParseEnvFileRejectsBadKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overrides.sh")
	if err := os.WriteFile(path, []byte("BAD-KEY=value\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := parseEnvFile(path); !errors.Is(err, ErrInvalidEnvVarKey) {
		t.Fatalf("expected ErrInvalidEnvVarKey, got: %v", err)
	}
}
