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
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/AleutianAI/firstboot/cmd/firstboot/config"
)

// eventTracker wraps MockStateTracker and mirrors marks into a shared
// event log, so tests can assert ordering across hooks and markers.
type eventTracker struct {
	MockStateTracker
	events *[]string
}

func (e *eventTracker) MarkCompleted(stage Stage) error {
	*e.events = append(*e.events, "mark:"+string(stage))
	return e.MockStateTracker.MarkCompleted(stage)
}

// applierFixture lays out a minimal application tree and returns a Config
// rooted in it.
func applierFixture(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	home := t.TempDir()
	merged := map[string]string{
		config.EnvHome:     home,
		config.EnvHooksDir: t.TempDir(),
	}
	for k, v := range env {
		merged[k] = v
	}
	cfg := config.Resolve(merged)

	write := func(path, content string) {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write(cfg.SecurityProperties(),
		"# security settings\nhost-headers-allowed=localhost\npassword.length.min=5\n")
	write(cfg.URLProperties(),
		"port.https=443\ncontent.url.prefix.secure=\ncontent.url.prefix.standard=\n")
	write(cfg.ComponentXML(), strings.Join([]string{
		"<ofbiz-component>",
		"    <container name=\"catalina-container\">",
		"        <property name=\"ajp-connector\" value=\"connector\">",
		"            <property name=\"port\" value=\"8009\"/>",
		"        </property>",
		"    </container>",
		"</ofbiz-component>",
	}, "\n"))
	return cfg
}

func readFixture(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(data)
}

func TestApplyRewritesHostAndURLPrefixes(t *testing.T) {
	cfg := applierFixture(t, map[string]string{
		config.EnvHost:             "erp.example.com",
		config.EnvContentURLPrefix: "https://cdn.example.com",
	})
	state := &MockStateTracker{}
	applier := NewConfigurationApplier(state, &MockHookRunner{}, testLogger())

	if err := applier.Apply(context.Background(), cfg); err != nil {
		t.Fatalf("Apply error: %v", err)
	}

	security := readFixture(t, cfg.SecurityProperties())
	if !strings.Contains(security, "host-headers-allowed=erp.example.com") {
		t.Errorf("host allow-list not rewritten:\n%s", security)
	}
	if !strings.Contains(security, "password.length.min=5") {
		t.Errorf("unrelated properties must survive:\n%s", security)
	}

	urls := readFixture(t, cfg.URLProperties())
	if !strings.Contains(urls, "content.url.prefix.secure=https://cdn.example.com") ||
		!strings.Contains(urls, "content.url.prefix.standard=https://cdn.example.com") {
		t.Errorf("URL prefixes not rewritten:\n%s", urls)
	}

	if !state.Completed[StageConfigApplied] {
		t.Error("config_applied marker not written")
	}
}

func TestApplyAJPDisabledLeavesConnectorAlone(t *testing.T) {
	cfg := applierFixture(t, nil)
	applier := NewConfigurationApplier(&MockStateTracker{}, &MockHookRunner{}, testLogger())

	if err := applier.Apply(context.Background(), cfg); err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if strings.Contains(readFixture(t, cfg.ComponentXML()), `name="address"`) {
		t.Error("address binding must not be inserted when AJP is disabled")
	}
}

func TestApplyAJPInsertIsIdempotent(t *testing.T) {
	cfg := applierFixture(t, map[string]string{config.EnvEnableAJP: "1"})
	applier := NewConfigurationApplier(&MockStateTracker{}, &MockHookRunner{}, testLogger())

	if err := applier.Apply(context.Background(), cfg); err != nil {
		t.Fatalf("first Apply error: %v", err)
	}
	first := readFixture(t, cfg.ComponentXML())
	if strings.Count(first, `name="address"`) != 1 {
		t.Fatalf("expected exactly one address binding after first apply:\n%s", first)
	}
	// The binding goes directly below the connector line, matching its
	// indentation.
	lines := strings.Split(first, "\n")
	for i, line := range lines {
		if strings.Contains(line, `name="ajp-connector"`) {
			next := lines[i+1]
			if !strings.Contains(next, `<property name="address" value="0.0.0.0"/>`) {
				t.Errorf("binding not directly after connector line, got %q", next)
			}
			if !strings.HasPrefix(next, "        ") {
				t.Errorf("binding should inherit connector indentation, got %q", next)
			}
		}
	}

	// Marker loss tolerance: re-run the edits against the edited file.
	applier2 := NewConfigurationApplier(&MockStateTracker{}, &MockHookRunner{}, testLogger())
	if err := applier2.Apply(context.Background(), cfg); err != nil {
		t.Fatalf("second Apply error: %v", err)
	}
	second := readFixture(t, cfg.ComponentXML())
	if second != first {
		t.Errorf("second apply changed the file:\n%s", second)
	}
}

func TestApplySkipsWhenMarkerExists(t *testing.T) {
	cfg := applierFixture(t, map[string]string{config.EnvHost: "changed.example.com"})
	state := &MockStateTracker{Completed: map[Stage]bool{StageConfigApplied: true}}
	hooks := &MockHookRunner{}
	applier := NewConfigurationApplier(state, hooks, testLogger())

	if err := applier.Apply(context.Background(), cfg); err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if len(hooks.Checkpoints) != 0 {
		t.Errorf("hooks must not run for a completed stage, got %v", hooks.Checkpoints)
	}
	if strings.Contains(readFixture(t, cfg.SecurityProperties()), "changed.example.com") {
		t.Error("edits must not run for a completed stage")
	}
}

func TestApplyOrdering(t *testing.T) {
	cfg := applierFixture(t, nil)
	var events []string
	state := &eventTracker{events: &events}
	hooks := &MockHookRunner{Func: func(checkpoint string, _ *config.Config) error {
		events = append(events, "hook:"+checkpoint)
		return nil
	}}
	applier := NewConfigurationApplier(state, hooks, testLogger())

	if err := applier.Apply(context.Background(), cfg); err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	want := []string{
		"hook:" + CheckpointBeforeConfig,
		"mark:config_applied",
		"hook:" + CheckpointAfterConfig,
	}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("events = %v, want %v", events, want)
	}
}

func TestApplyBeforeHookVetoBlocksEditsAndMarker(t *testing.T) {
	cfg := applierFixture(t, map[string]string{config.EnvHost: "vetoed.example.com"})
	state := &MockStateTracker{}
	veto := errors.New("hook veto")
	hooks := &MockHookRunner{Func: func(checkpoint string, _ *config.Config) error {
		if checkpoint == CheckpointBeforeConfig {
			return veto
		}
		return nil
	}}
	applier := NewConfigurationApplier(state, hooks, testLogger())

	if err := applier.Apply(context.Background(), cfg); !errors.Is(err, veto) {
		t.Fatalf("expected hook veto to propagate, got: %v", err)
	}
	if state.Completed[StageConfigApplied] {
		t.Error("marker must not be written after a veto")
	}
	if strings.Contains(readFixture(t, cfg.SecurityProperties()), "vetoed.example.com") {
		t.Error("edits must not run after a veto")
	}
}

func TestApplyMissingConfigFileIsFatal(t *testing.T) {
	cfg := applierFixture(t, nil)
	if err := os.Remove(cfg.SecurityProperties()); err != nil {
		t.Fatal(err)
	}
	state := &MockStateTracker{}
	applier := NewConfigurationApplier(state, &MockHookRunner{}, testLogger())

	if err := applier.Apply(context.Background(), cfg); err == nil {
		t.Fatal("missing config file must be fatal")
	}
	if state.Completed[StageConfigApplied] {
		t.Error("marker must not be written after a filesystem error")
	}
}
