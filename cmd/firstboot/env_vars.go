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
	"regexp"

	"github.com/AleutianAI/firstboot/cmd/firstboot/config"
)

// envVarKeyPattern validates environment variable key names.
// Keys must:
//   - Start with a letter or underscore
//   - Contain only alphanumeric characters and underscores
//   - Not be empty
//
// This follows POSIX naming conventions and prevents shell metacharacter
// injection through hook override files.
var envVarKeyPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ErrInvalidEnvVarKey is returned when an environment variable key is invalid.
var ErrInvalidEnvVarKey = fmt.Errorf("invalid environment variable key")

// EnvVar represents a single environment variable.
//
// A typed representation with validation and sensitivity marking for
// secure logging.
type EnvVar struct {
	// Key is the environment variable name.
	// Must match pattern: ^[a-zA-Z_][a-zA-Z0-9_]*$
	Key string

	// Value is the environment variable value.
	// May be empty string (valid in POSIX).
	Value string

	// Sensitive indicates this value should be redacted in logs.
	Sensitive bool
}

// String returns the KEY=VALUE format.
func (e EnvVar) String() string {
	return fmt.Sprintf("%s=%s", e.Key, e.Value)
}

// Redacted returns KEY=[REDACTED] for sensitive vars, otherwise String().
func (e EnvVar) Redacted() string {
	if e.Sensitive {
		return fmt.Sprintf("%s=[REDACTED]", e.Key)
	}
	return e.String()
}

// Validate checks if the key is valid.
func (e EnvVar) Validate() error {
	if !envVarKeyPattern.MatchString(e.Key) {
		return fmt.Errorf("%w: %q must match pattern [a-zA-Z_][a-zA-Z0-9_]*", ErrInvalidEnvVarKey, e.Key)
	}
	return nil
}

// hookEnvVars builds the resolved, non-sensitive configuration values a
// runnable hook sees in its environment.
//
// Hooks observe the post-default, post-override values rather than the raw
// process environment so that a hook and the sequencer always agree on what
// the configuration is. The admin password is deliberately excluded; a hook
// that genuinely needs it still inherits the raw OFBIZ_ADMIN_PASSWORD
// variable, which is only scrubbed at handoff.
func hookEnvVars(cfg *config.Config) []EnvVar {
	return []EnvVar{
		{Key: config.EnvDataLoad, Value: string(cfg.DataLoad)},
		{Key: config.EnvAdminUser, Value: cfg.AdminUser},
		{Key: config.EnvHost, Value: cfg.Host},
		{Key: config.EnvContentURLPrefix, Value: cfg.ContentURLPrefix},
		{Key: config.EnvHome, Value: cfg.Home},
		{Key: config.EnvHooksDir, Value: cfg.HooksDir},
	}
}

// hookEnviron returns the full environment for a hook subprocess: the
// current process environment with the resolved values layered on top.
func hookEnviron(cfg *config.Config) []string {
	env := os.Environ()
	for _, v := range hookEnvVars(cfg) {
		env = append(env, v.String())
	}
	return env
}

// scrubInitInputs removes every initialization input variable from the
// process environment.
//
// The handoff target inherits our environment, so without this scrub the
// admin password (among others) would be visible in the application
// process's /proc/<pid>/environ. Called once, immediately before handoff.
func scrubInitInputs() {
	for _, key := range config.InputVars() {
		os.Unsetenv(key)
	}
}
