// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contractly Contributors

package main

import (
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contractly/authcore/pkg/errutil"
)

func TestReap_RevokesExpiredSessions(t *testing.T) {
	deps, mock, _, _ := testDeps(t)
	mock.ExpectExec(`WHERE NOT revoked AND expires_at <=`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 4))

	out, err := execute(t, deps, "--database-url=postgres://db/authcore", "reap")
	require.NoError(t, err)
	assert.Contains(t, out, "Revoked 4 expired session(s)")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReap_Failure(t *testing.T) {
	deps, mock, _, _ := testDeps(t)
	mock.ExpectExec(`UPDATE sessions`).WithArgs(pgxmock.AnyArg()).WillReturnError(errors.New("connection reset"))

	_, err := execute(t, deps, "--database-url=postgres://db/authcore", "reap")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "SESSION_REVOKE_EXPIRED_FAILED")
}
