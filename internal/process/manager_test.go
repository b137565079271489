package process

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestManager_WriteAndReadPID(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	m := NewManager(dir, testLogger())

	assert.Equal(t, 0, m.ReadPID())
	assert.False(t, m.IsRunning())

	require.NoError(t, m.WritePID())
	assert.Equal(t, filepath.Join(dir, PIDFilename), m.PIDFile())
	assert.Equal(t, os.Getpid(), m.ReadPID())
	assert.True(t, m.IsRunning(), "the test process itself is alive")

	info, err := os.Stat(m.PIDFile())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestManager_StalePIDIsCleaned(t *testing.T) {
	m := NewManager(t.TempDir(), testLogger())
	require.NoError(t, os.WriteFile(m.PIDFile(), []byte(strconv.Itoa(999999999)), 0o600))

	assert.False(t, m.IsRunning())
	_, err := os.Stat(m.PIDFile())
	assert.True(t, os.IsNotExist(err))
}

func TestManager_InvalidPID(t *testing.T) {
	m := NewManager(t.TempDir(), testLogger())

	for _, content := range []string{"abc", "-4", ""} {
		require.NoError(t, os.WriteFile(m.PIDFile(), []byte(content), 0o600))
		assert.Equal(t, 0, m.ReadPID(), "content %q", content)
	}
}

func TestManager_StopWithoutProcess(t *testing.T) {
	m := NewManager(t.TempDir(), testLogger())
	assert.NoError(t, m.Stop())

	require.NoError(t, os.WriteFile(m.PIDFile(), []byte("999999999"), 0o600))
	assert.NoError(t, m.Stop())
	assert.Equal(t, 0, m.ReadPID())
}

func TestManager_WaitForService(t *testing.T) {
	m := NewManager(t.TempDir(), testLogger())
	assert.False(t, m.WaitForService(150*time.Millisecond))

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = m.WritePID()
	}()
	assert.True(t, m.WaitForService(2*time.Second))
}
