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
Package main provides ConfigurationApplier for the one-time config edits.

The edits are line-pattern substitutions, not structural parsing: every
target file has a single occurrence of each matched pattern, and a
substitution that is already in place rewrites to itself. That makes each
edit safe to re-apply, which is what tolerates a lost marker file without
corrupting the configuration.
*/
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/firstboot/cmd/firstboot/config"
	"github.com/AleutianAI/firstboot/pkg/logging"
)

// ajpConnectorNeedle identifies the connector declaration line the AJP
// address binding is inserted after.
const ajpConnectorNeedle = `name="ajp-connector"`

// ajpAddressProperty is the property inserted when AJP is enabled.
const ajpAddressProperty = `<property name="address" value="0.0.0.0"/>`

// ConfigurationApplier applies the idempotent configuration edits, guarded
// by the config_applied stage marker.
type ConfigurationApplier struct {
	state  StateTracker
	hooks  HookRunner
	logger *logging.Logger
}

// NewConfigurationApplier wires the applier's collaborators.
func NewConfigurationApplier(state StateTracker, hooks HookRunner, logger *logging.Logger) *ConfigurationApplier {
	return &ConfigurationApplier{state: state, hooks: hooks, logger: logger}
}

// Apply runs the config stage: before hooks, edits, marker, after hooks.
//
// If the stage already completed on this volume, the whole stage — hooks
// included — is skipped.
func (a *ConfigurationApplier) Apply(ctx context.Context, cfg *config.Config) error {
	done, err := a.state.HasCompleted(StageConfigApplied)
	if err != nil {
		return err
	}
	if done {
		a.logger.Info("configuration already applied, skipping stage", "stage", StageConfigApplied)
		return nil
	}

	if err := a.hooks.RunCheckpoint(ctx, CheckpointBeforeConfig, cfg); err != nil {
		return err
	}

	if err := a.applyEdits(cfg); err != nil {
		return err
	}

	if err := a.state.MarkCompleted(StageConfigApplied); err != nil {
		return err
	}

	return a.hooks.RunCheckpoint(ctx, CheckpointAfterConfig, cfg)
}

func (a *ConfigurationApplier) applyEdits(cfg *config.Config) error {
	if cfg.EnableAJP {
		if err := insertAfterLine(cfg.ComponentXML(), ajpConnectorNeedle, ajpAddressProperty); err != nil {
			return fmt.Errorf("enabling AJP address binding: %w", err)
		}
		a.logger.Info("enabled AJP address binding", "file", cfg.ComponentXML())
	}

	if err := rewriteProperty(cfg.SecurityProperties(), "host-headers-allowed", cfg.Host); err != nil {
		return fmt.Errorf("rewriting host allow-list: %w", err)
	}
	a.logger.Info("set host allow-list", "host", cfg.Host)

	for _, key := range []string{"content.url.prefix.secure", "content.url.prefix.standard"} {
		if err := rewriteProperty(cfg.URLProperties(), key, cfg.ContentURLPrefix); err != nil {
			return fmt.Errorf("rewriting %s: %w", key, err)
		}
	}
	a.logger.Info("set content URL prefixes", "prefix", cfg.ContentURLPrefix)
	return nil
}

// rewriteProperty replaces the value of a key=value property line in place.
//
// Idempotent by construction. A file without the key is left untouched; the
// target files ship with every key present, so a missing key means an
// operator already restructured the file and we must not append a duplicate
// source of truth.
func rewriteProperty(path, key, value string) error {
	lines, mode, err := readLines(path)
	if err != nil {
		return err
	}

	replaced := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, key+"=") {
			lines[i] = key + "=" + value
			replaced = true
			break
		}
	}
	if !replaced {
		return nil
	}
	return writeLines(path, lines, mode)
}

// insertAfterLine inserts toInsert on its own line directly after the first
// line containing needle, preserving that line's indentation. A no-op when
// the following line already contains toInsert.
func insertAfterLine(path, needle, toInsert string) error {
	lines, mode, err := readLines(path)
	if err != nil {
		return err
	}

	for i, line := range lines {
		if !strings.Contains(line, needle) {
			continue
		}
		if i+1 < len(lines) && strings.Contains(lines[i+1], toInsert) {
			return nil
		}
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		inserted := append([]string{}, lines[:i+1]...)
		inserted = append(inserted, indent+toInsert)
		inserted = append(inserted, lines[i+1:]...)
		return writeLines(path, inserted, mode)
	}
	return nil
}

func readLines(path string) ([]string, os.FileMode, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, 0, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	return strings.Split(string(data), "\n"), info.Mode().Perm(), nil
}

// writeLines replaces the file through a same-directory temp file and
// rename, so a crash mid-edit never leaves a truncated config behind.
func writeLines(path string, lines []string, mode os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(strings.Join(lines, "\n")); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
