package mirrordb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/optisync/internal/entity"
	"github.com/roach88/optisync/internal/testutil"
)

// openTestDB opens a fresh mirror database in a temporary directory.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "mirror.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func testEntity(id string, order int) entity.Entity {
	return entity.Entity{
		ID:        id,
		Order:     order,
		Active:    true,
		Caption:   "caption " + id,
		CreatedAt: testutil.Epoch,
		UpdatedAt: testutil.Epoch,
	}
}
