// Package testutil provides shared test helpers for the Nexus Gateway
// authentication filter.
//
// All helpers accept [testing.TB] for compatibility with both tests and
// benchmarks. Functions that halt the test on failure use [require] from
// testify; functions that record failures without stopping use [assert].
//
// Every helper calls t.Helper() so that test failure messages report the
// caller's file and line number rather than this package's.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ngerr "github.com/StricklySoft/nexus-gateway-auth/pkg/errors"
)

// RequireErrorCode halts the test if err is nil, is not an *ngerr.Error,
// or does not carry the expected error code. This is the primary helper
// for validating filter rejection codes.
//
// Example:
//
//	_, err := filter.Authenticate(ctx, header)
//	testutil.RequireErrorCode(t, err, ngerr.CodeAuthExpired)
func RequireErrorCode(t testing.TB, err error, code ngerr.Code, msgAndArgs ...any) {
	t.Helper()
	require.Error(t, err, msgAndArgs...)
	ngErr, ok := ngerr.AsError(err)
	require.True(t, ok, "expected *ngerr.Error, got %T: %v", err, err)
	require.Equal(t, code, ngErr.Code,
		"error code mismatch: got %q, want %q (message: %s)",
		ngErr.Code, code, ngErr.Message)
}

// AssertErrorCode records a test failure (without halting) if err is nil,
// is not an *ngerr.Error, or does not carry the expected error code.
// Use this in table-driven tests where you want to check all rows.
func AssertErrorCode(t testing.TB, err error, code ngerr.Code, msgAndArgs ...any) bool {
	t.Helper()
	if !assert.Error(t, err, msgAndArgs...) {
		return false
	}
	ngErr, ok := ngerr.AsError(err)
	if !assert.True(t, ok, "expected *ngerr.Error, got %T: %v", err, err) {
		return false
	}
	return assert.Equal(t, code, ngErr.Code,
		"error code mismatch: got %q, want %q (message: %s)",
		ngErr.Code, code, ngErr.Message)
}

// TempConfigFile creates a temporary file with the given content and
// extension (e.g., ".yaml", ".json") inside t.TempDir(). The file is
// automatically cleaned up when the test finishes.
//
// The file is created with mode 0600 (owner read/write only).
func TempConfigFile(t testing.TB, content, ext string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config"+ext)
	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err, "failed to write temp config file %s", path)
	return path
}
