// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contractly Contributors

package errutil_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contractly/authcore/pkg/errutil"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogError_WithOopsError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := oops.Code("SESSION_ROTATE_FAILED").
		With("session_id", "01H").
		Errorf("rotate failed")

	errutil.LogError(logger, "refresh failed", err, "user_id", "u1")

	entry := decode(t, &buf)
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "refresh failed", entry["msg"])
	assert.Equal(t, "SESSION_ROTATE_FAILED", entry["code"])
	assert.Equal(t, "u1", entry["user_id"])
	require.Contains(t, entry, "context")
	assert.Equal(t, "01H", entry["context"].(map[string]any)["session_id"])
}

func TestLogError_WithStandardError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogError(logger, "operation failed", errors.New("connection refused"))

	entry := decode(t, &buf)
	assert.Equal(t, "ERROR", entry["level"])
	assert.Contains(t, entry["error"], "connection refused")
	assert.NotContains(t, entry, "code")
}

func TestLogExpected_UsesWarnLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := oops.Code("AUTH_INVALID_TOKEN").Errorf("invalid token")
	errutil.LogExpected(context.Background(), logger, "refresh rejected", err)

	entry := decode(t, &buf)
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "AUTH_INVALID_TOKEN", entry["code"])
}
