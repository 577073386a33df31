// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contractly Contributors

package store

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsFS_EmbeddedFiles(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)

	pattern := regexp.MustCompile(`^\d{6}_\w+\.(up|down)\.sql$`)
	ups, downs := map[string]bool{}, map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		assert.True(t, pattern.MatchString(name), "file %s should match NNNNNN_name.(up|down).sql", name)
		if base, ok := strings.CutSuffix(name, ".up.sql"); ok {
			ups[base] = true
		}
		if base, ok := strings.CutSuffix(name, ".down.sql"); ok {
			downs[base] = true
		}
	}

	assert.Equal(t, ups, downs, "every up migration needs a down migration")
	for _, want := range []string{"000001_users", "000002_sessions", "000003_permissions"} {
		assert.True(t, ups[want], "missing %s", want)
	}
}

func TestMigrationsFS_SessionsLayout(t *testing.T) {
	sql, err := migrationsFS.ReadFile("migrations/000002_sessions.up.sql")
	require.NoError(t, err)

	for _, col := range []string{
		"id", "user_id", "refresh_token_hash", "created_at", "expires_at",
		"device_ip", "user_agent", "revoked", "revoked_at",
	} {
		assert.Regexp(t, `(?m)^\s+`+col+`\s`, string(sql), "sessions table should define %s", col)
	}
}
