// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"strings"

	"github.com/awnumar/memguard"
	"github.com/go-playground/validator/v10"
)

// validate is shared across resolutions; validator instances cache struct
// metadata and are safe for concurrent use.
var validate = validator.New()

// FromEnvironment resolves a Config from the current process environment.
//
// Pure defaulting and validation: no filesystem or network access, and it
// never fails. See Resolve for the rules.
func FromEnvironment() *Config {
	env := make(map[string]string)
	for _, key := range InputVars() {
		if value, ok := os.LookupEnv(key); ok {
			env[key] = value
		}
	}
	return Resolve(env)
}

// Resolve builds a Config from the given environment snapshot.
//
// Defaults:
//   - admin user "admin", password "ofbiz", host "localhost"
//   - content URL prefix "https://" + resolved host
//   - application root "/ofbiz", hooks root "/docker-entrypoint-hooks"
//
// OFBIZ_SKIP_INIT and OFBIZ_ENABLE_AJP are presence flags: any value,
// including the empty string, counts as set.
//
// An unrecognized OFBIZ_DATA_LOAD value is coerced to "none" rather than
// surfaced as an error. This is a deliberate fail-safe: a typo in a
// compose file must not brick a restart loop into importing data it was
// never asked for, and must not block startup either.
func Resolve(env map[string]string) *Config {
	cfg := &Config{
		AdminUser: DefaultAdminUser,
		Host:      DefaultHost,
		Home:      DefaultHome,
		HooksDir:  DefaultHooksDir,
		DataLoad:  DataLoadNone,
	}
	password := DefaultPassword

	_, cfg.SkipInit = env[EnvSkipInit]
	_, cfg.EnableAJP = env[EnvEnableAJP]

	if v, ok := env[EnvDataLoad]; ok {
		cfg.DataLoad = DataLoadMode(strings.ToLower(strings.TrimSpace(v)))
	}
	if v, ok := nonEmpty(env, EnvAdminUser); ok {
		cfg.AdminUser = v
	}
	if v, ok := env[EnvAdminPassword]; ok {
		password = v
	}
	if v, ok := nonEmpty(env, EnvHost); ok {
		cfg.Host = v
	}
	if v, ok := nonEmpty(env, EnvHome); ok {
		cfg.Home = v
	}
	if v, ok := nonEmpty(env, EnvHooksDir); ok {
		cfg.HooksDir = v
	}
	if v, ok := nonEmpty(env, EnvContentURLPrefix); ok {
		cfg.ContentURLPrefix = v
		cfg.contentURLExplicit = true
	} else {
		cfg.ContentURLPrefix = "https://" + cfg.Host
	}

	cfg.AdminPassword = memguard.NewEnclave([]byte(password))
	cfg.coerce()
	return cfg
}

// ApplyOverrides merges key/value overrides from an environment-mutating
// hook into the Config.
//
// Only the recognized input variables are honored; keys that are not
// applied are returned in ignored so the caller can log them. That covers
// unrecognized keys and OFBIZ_HOME: the application root is pinned at
// resolution time, since the stage markers and the stop mechanism are
// already bound to paths under it and a mid-run move would split state
// across two trees. Overriding the host recomputes a derived content URL
// prefix, but never an explicit one.
func (c *Config) ApplyOverrides(overrides map[string]string) (ignored []string) {
	for key, value := range overrides {
		switch key {
		case EnvSkipInit:
			c.SkipInit = true
		case EnvEnableAJP:
			c.EnableAJP = true
		case EnvDataLoad:
			c.DataLoad = DataLoadMode(strings.ToLower(strings.TrimSpace(value)))
		case EnvAdminUser:
			if value != "" {
				c.AdminUser = value
			}
		case EnvAdminPassword:
			c.AdminPassword = memguard.NewEnclave([]byte(value))
		case EnvHost:
			if value != "" {
				c.Host = value
				if !c.contentURLExplicit {
					c.ContentURLPrefix = "https://" + c.Host
				}
			}
		case EnvContentURLPrefix:
			if value != "" {
				c.ContentURLPrefix = value
				c.contentURLExplicit = true
			}
		case EnvHome:
			ignored = append(ignored, key)
		case EnvHooksDir:
			if value != "" {
				c.HooksDir = value
			}
		default:
			ignored = append(ignored, key)
		}
	}
	c.coerce()
	return ignored
}

// coerce forces constrained fields back to safe defaults.
func (c *Config) coerce() {
	if err := validate.Struct(c); err != nil {
		c.DataLoad = DataLoadNone
	}
}

func nonEmpty(env map[string]string, key string) (string, bool) {
	v, ok := env[key]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
