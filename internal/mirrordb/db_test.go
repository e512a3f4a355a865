package mirrordb

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/optisync/internal/store"
	"github.com/roach88/optisync/internal/testutil"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mirror.db")

	d, err := Open(path)
	require.NoError(t, err)
	defer d.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestOpen_KeepsExistingContents(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "mirror.db")

	d1, err := Open(path)
	require.NoError(t, err)
	_, err = d1.Save(ctx, store.New(testEntity("a", 0)).Snapshot(), testutil.Epoch)
	require.NoError(t, err)
	require.NoError(t, d1.Close())

	d2, err := Open(path)
	require.NoError(t, err)
	defer d2.Close()

	got, err := d2.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mirror.db")
	for i := 0; i < 3; i++ {
		d, err := Open(path)
		require.NoError(t, err, "iteration %d", i)
		require.NoError(t, d.Close())
	}
}

func TestOpen_Pragmas(t *testing.T) {
	d := openTestDB(t)

	mode, err := d.pragma("journal_mode")
	require.NoError(t, err)
	assert.Equal(t, "wal", mode)

	timeout, err := d.pragma("busy_timeout")
	require.NoError(t, err)
	assert.Equal(t, "5000", timeout)
}

func TestOpen_SetsSchemaVersion(t *testing.T) {
	d := openTestDB(t)

	version, err := d.pragma("user_version")
	require.NoError(t, err)
	assert.Equal(t, "1", version)

	var name string
	err = d.db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'index' AND name = 'idx_entities_position'`).Scan(&name)
	require.NoError(t, err)
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "dir", "mirror.db"))
	assert.Error(t, err)
}

func TestClose_Twice(t *testing.T) {
	d, err := Open(filepath.Join(t.TempDir(), "mirror.db"))
	require.NoError(t, err)
	assert.NoError(t, d.Close())
	assert.NoError(t, d.Close())
}
