// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config resolves the environment-driven configuration for one
// initialization run.
//
// The sequencer is configured entirely through environment variables so that
// it composes with container tooling (compose files, Kubernetes manifests,
// plain `docker run -e`). Resolution applies defaults and validation but
// never fails: the one field with a constrained value set (the data-load
// mode) is silently coerced to its safe default instead of erroring.
//
// A resolved Config is rebuilt from the current environment on every
// container start. It is deliberately not persisted: the on-disk stage
// markers decide what re-runs, not the configuration values.
package config

import (
	"path/filepath"

	"github.com/awnumar/memguard"
)

// DataLoadMode selects which bulk data set the loader imports.
type DataLoadMode string

const (
	// DataLoadNone performs no bulk import.
	DataLoadNone DataLoadMode = "none"

	// DataLoadSeed imports only the seed-category readers.
	DataLoadSeed DataLoadMode = "seed"

	// DataLoadDemo imports the full default data set, which includes a
	// usable administrative account.
	DataLoadDemo DataLoadMode = "demo"
)

// Environment variable names recognized by the resolver.
//
// These are the seven initialization inputs plus the two path overrides.
// All of them are scrubbed from the process environment before control is
// handed to the application.
const (
	EnvSkipInit         = "OFBIZ_SKIP_INIT"
	EnvDataLoad         = "OFBIZ_DATA_LOAD"
	EnvAdminUser        = "OFBIZ_ADMIN_USER"
	EnvAdminPassword    = "OFBIZ_ADMIN_PASSWORD"
	EnvHost             = "OFBIZ_HOST"
	EnvContentURLPrefix = "OFBIZ_CONTENT_URL_PREFIX"
	EnvEnableAJP        = "OFBIZ_ENABLE_AJP"
	EnvHome             = "OFBIZ_HOME"
	EnvHooksDir         = "FIRSTBOOT_HOOKS_DIR"
)

// Defaults applied when the corresponding variable is unset.
const (
	DefaultAdminUser = "admin"
	DefaultPassword  = "ofbiz"
	DefaultHost      = "localhost"
	DefaultHome      = "/ofbiz"
	DefaultHooksDir  = "/docker-entrypoint-hooks"
)

// InputVars lists every environment variable the resolver consumes.
//
// Used to scrub the configuration inputs (the admin password in
// particular) from the environment before the exec handoff.
func InputVars() []string {
	return []string{
		EnvSkipInit,
		EnvDataLoad,
		EnvAdminUser,
		EnvAdminPassword,
		EnvHost,
		EnvContentURLPrefix,
		EnvEnableAJP,
		EnvHome,
		EnvHooksDir,
	}
}

// Config is the resolved, defaulted configuration for one initialization
// run.
//
// Immutable after resolution except through ApplyOverrides, which exists
// for environment-mutating hooks. The admin password lives in a memguard
// enclave so the plaintext is only materialized inside the credential
// provisioner.
type Config struct {
	// SkipInit bypasses the entire initialization sequence.
	SkipInit bool

	// DataLoad selects the bulk-import branch.
	// Invalid values are coerced to DataLoadNone at resolution time.
	DataLoad DataLoadMode `validate:"oneof=none seed demo"`

	// AdminUser is the bootstrap administrative login id.
	AdminUser string

	// AdminPassword holds the bootstrap admin password, sealed.
	AdminPassword *memguard.Enclave

	// Host is written into the application's host allow-list.
	Host string

	// ContentURLPrefix is written into the secure and standard URL
	// prefix properties. Defaults to "https://" + Host.
	ContentURLPrefix string

	// EnableAJP gates the AJP connector address binding edit.
	EnableAJP bool

	// Home is the application root all relative paths hang off.
	Home string

	// HooksDir is the root of the operator hook checkpoint directories.
	HooksDir string

	// contentURLExplicit records whether ContentURLPrefix was supplied
	// rather than derived, so a later host override knows whether to
	// recompute the default.
	contentURLExplicit bool
}

// OpenAdminPassword opens the sealed admin password.
//
// The caller owns the returned buffer and must Destroy it as soon as the
// plaintext is no longer needed.
func (c *Config) OpenAdminPassword() (*memguard.LockedBuffer, error) {
	return c.AdminPassword.Open()
}

// -----------------------------------------------------------------------------
// Derived Paths
// -----------------------------------------------------------------------------

// StateDir is where the stage marker files live. It sits on the persistent
// runtime volume so markers survive container restarts.
func (c *Config) StateDir() string {
	return filepath.Join(c.Home, "runtime", "container_state")
}

// LoaderBin is the application launcher used for bulk data loading and for
// the graceful-shutdown request.
func (c *Config) LoaderBin() string {
	return filepath.Join(c.Home, "bin", "ofbiz")
}

// ComponentXML is the connector declaration file the AJP edit targets.
func (c *Config) ComponentXML() string {
	return filepath.Join(c.Home, "framework", "catalina", "ofbiz-component.xml")
}

// SecurityProperties holds the host allow-list property.
func (c *Config) SecurityProperties() string {
	return filepath.Join(c.Home, "framework", "security", "config", "security.properties")
}

// URLProperties holds the content URL prefix properties.
func (c *Config) URLProperties() string {
	return filepath.Join(c.Home, "framework", "webapp", "config", "url.properties")
}

// AdminLoginTemplate is the application-shipped template for the bootstrap
// admin login record. An embedded fallback is used when it is absent.
func (c *Config) AdminLoginTemplate() string {
	return filepath.Join(c.Home, "framework", "resources", "templates", "AdminUserLoginData.xml")
}

// HookDir returns the directory for a named checkpoint.
func (c *Config) HookDir(checkpoint string) string {
	return filepath.Join(c.HooksDir, checkpoint)
}

// AdditionalDataDir is the operator-supplied directory of extra data files
// imported after the branch load.
func (c *Config) AdditionalDataDir() string {
	return filepath.Join(c.HooksDir, "additional-data.d")
}
