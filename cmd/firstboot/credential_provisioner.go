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
Package main provides CredentialProvisioner for the bootstrap admin account.

The credential format is the application's legacy salted-SHA-1 scheme:

	$SHA$<salt>$<base64url-without-padding(sha1(salt || password))>

SHA-1 with a per-account salt is what the application's login code verifies
against; this pipeline must match it bit for bit. That is a compatibility
constraint of the external system, not an endorsement of SHA-1.
*/
package main

import (
	"context"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/AleutianAI/firstboot/cmd/firstboot/config"
	"github.com/AleutianAI/firstboot/pkg/logging"
)

const (
	// credentialScheme is the fixed scheme tag of the legacy format.
	credentialScheme = "SHA"

	// credentialSeparator delimits the scheme tag, salt, and digest.
	credentialSeparator = "$"

	// saltLength is the fixed salt size in characters.
	saltLength = 16

	// saltAlphabet is the character set salts are drawn from.
	saltAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// adminLoginTemplatePlaceholders are substituted into the bootstrap record.
const (
	placeholderUserLogin = "@userLoginId@"
	placeholderPassword  = "@currentPassword@"
)

// defaultAdminLoginTemplate is used when the application tree does not ship
// its own template file.
const defaultAdminLoginTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<entity-engine-xml>
    <UserLogin userLoginId="@userLoginId@" currentPassword="@currentPassword@" requirePasswordChange="Y"/>
    <UserLoginSecurityGroup groupId="SUPER" userLoginId="@userLoginId@" fromDate="2001-05-13 12:00:00.0"/>
</entity-engine-xml>
`

// CredentialProvisioner loads the bootstrap administrative account, guarded
// by the admin_loaded stage marker.
type CredentialProvisioner struct {
	state  StateTracker
	proc   ProcessManager
	logger *logging.Logger
}

// NewCredentialProvisioner wires the provisioner's collaborators.
func NewCredentialProvisioner(state StateTracker, proc ProcessManager, logger *logging.Logger) *CredentialProvisioner {
	return &CredentialProvisioner{state: state, proc: proc, logger: logger}
}

// Provision generates the salted credential, materializes a one-off
// bootstrap record, feeds it to the loader, and deletes the record.
//
// Skipped entirely when the admin_loaded marker exists — the demo data
// branch pre-sets it, because demo data already establishes an admin
// account.
//
// The bootstrap record never survives this call: deletion is deferred
// before the loader runs, so even a loader failure leaves no credential
// material on disk.
func (p *CredentialProvisioner) Provision(ctx context.Context, cfg *config.Config) error {
	done, err := p.state.HasCompleted(StageAdminLoaded)
	if err != nil {
		return err
	}
	if done {
		p.logger.Info("admin account already loaded, skipping stage", "stage", StageAdminLoaded)
		return nil
	}

	salt, err := generateSalt()
	if err != nil {
		return fmt.Errorf("generating salt: %w", err)
	}

	password, err := cfg.OpenAdminPassword()
	if err != nil {
		return fmt.Errorf("opening admin password: %w", err)
	}
	credential := encodeCredential(salt, password.String())
	password.Destroy()

	record, err := p.renderRecord(cfg, credential)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp("", "firstboot-admin-*.xml")
	if err != nil {
		return fmt.Errorf("creating bootstrap record: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(record); err != nil {
		tmp.Close()
		return fmt.Errorf("writing bootstrap record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing bootstrap record: %w", err)
	}

	p.logger.Info("loading bootstrap admin account", "user", cfg.AdminUser)
	if err := p.proc.RunStreaming(ctx, nil, cfg.LoaderBin(), "--load-data", "file="+tmp.Name()); err != nil {
		return fmt.Errorf("admin account load: %w", err)
	}

	return p.state.MarkCompleted(StageAdminLoaded)
}

func (p *CredentialProvisioner) renderRecord(cfg *config.Config, credential string) ([]byte, error) {
	template := defaultAdminLoginTemplate
	data, err := os.ReadFile(cfg.AdminLoginTemplate())
	switch {
	case err == nil:
		template = string(data)
	case os.IsNotExist(err):
		p.logger.Debug("admin login template absent, using embedded default",
			"path", cfg.AdminLoginTemplate())
	default:
		return nil, fmt.Errorf("reading admin login template: %w", err)
	}

	record := strings.ReplaceAll(template, placeholderUserLogin, cfg.AdminUser)
	record = strings.ReplaceAll(record, placeholderPassword, credential)
	return []byte(record), nil
}

// generateSalt draws a fixed-length alphanumeric salt from crypto/rand.
//
// Rejection sampling keeps the draw uniform over the 62-character alphabet.
func generateSalt() (string, error) {
	salt := make([]byte, 0, saltLength)
	buf := make([]byte, saltLength)
	for len(salt) < saltLength {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			// 248 is the largest multiple of 62 below 256.
			if b >= 248 {
				continue
			}
			salt = append(salt, saltAlphabet[int(b)%len(saltAlphabet)])
			if len(salt) == saltLength {
				break
			}
		}
	}
	return string(salt), nil
}

// encodeCredential produces the legacy credential string for a salt and
// plaintext password.
func encodeCredential(salt, password string) string {
	digest := sha1.Sum([]byte(salt + password))
	encoded := base64.RawURLEncoding.EncodeToString(digest[:])
	return credentialSeparator + credentialScheme +
		credentialSeparator + salt +
		credentialSeparator + encoded
}
