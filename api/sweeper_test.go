package api

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadSweeper_RemovesOnlyStaleFiles(t *testing.T) {
	dir := t.TempDir()
	logger, _ := logtest.NewNullLogger()

	// GIVEN: One old upload, one fresh upload, and a subdirectory
	stale := filepath.Join(dir, "stale.csv")
	fresh := filepath.Join(dir, "fresh.csv")
	require.NoError(t, os.WriteFile(stale, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(fresh, []byte("b"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	now := time.Now()
	require.NoError(t, os.Chtimes(stale, now.Add(-2*time.Hour), now.Add(-2*time.Hour)))

	sweeper := NewUploadSweeper(dir, logger)
	sweeper.now = func() time.Time { return now }

	// WHEN
	removed := sweeper.Sweep()

	// THEN
	assert.Equal(t, 1, removed)
	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
	assert.DirExists(t, filepath.Join(dir, "nested"))
}

func TestUploadSweeper_MissingDirectory(t *testing.T) {
	sweeper := NewUploadSweeper(filepath.Join(t.TempDir(), "gone"), nil)

	assert.Zero(t, sweeper.Sweep())
}

func TestUploadSweeper_StartStop(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "stale.xlsx")
	require.NoError(t, os.WriteFile(stale, []byte("a"), 0o644))
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	logger, _ := logtest.NewNullLogger()
	sweeper := NewUploadSweeper(dir, logger)
	sweeper.Interval = time.Hour

	// Start sweeps immediately; a second Start is a no-op.
	sweeper.Start()
	sweeper.Start()
	require.Eventually(t, func() bool {
		_, err := os.Stat(stale)
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond)

	sweeper.Stop()
	sweeper.Stop()
}
