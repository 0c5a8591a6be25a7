package diskspace

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAvailableSpace(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, CheckAvailableSpace(dir, 1024, 1.1))

	err := CheckAvailableSpace(dir, math.MaxInt64/4, 1)
	require.Error(t, err)
	assert.True(t, IsInsufficientSpaceError(err))
}

func TestCheckAvailableSpace_UnknownFilesystemPasses(t *testing.T) {
	assert.NoError(t, CheckAvailableSpace("/definitely/not/here", math.MaxInt64/4, 1))
}

func TestEnsureFreeMB(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, EnsureFreeMB(dir, 0, 0.15))
	assert.NoError(t, EnsureFreeMB(dir, 1, 0.15))
	assert.Error(t, EnsureFreeMB(dir, math.MaxInt64/(1<<22), 0.15))
}

func TestGetAvailableSpace(t *testing.T) {
	assert.Positive(t, GetAvailableSpace(t.TempDir()))
	assert.Zero(t, GetAvailableSpace("/definitely/not/here"))
}

func TestIsInsufficientSpaceError(t *testing.T) {
	err := &InsufficientSpaceError{Path: "/dl", RequiredBytes: 100 << 20, AvailableBytes: 50 << 20}
	assert.True(t, IsInsufficientSpaceError(err))
	assert.True(t, IsInsufficientSpaceError(fmt.Errorf("preflight: %w", err)))
	assert.False(t, IsInsufficientSpaceError(fmt.Errorf("other")))
	assert.False(t, IsInsufficientSpaceError(nil))

	msg := err.Error()
	assert.Contains(t, msg, "/dl")
	assert.Contains(t, msg, "100.00")
	assert.Contains(t, msg, "50.00")
}
