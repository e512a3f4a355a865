package mirrordb

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/optisync/internal/entity"
	"github.com/roach88/optisync/internal/store"
)

// Save replaces the mirror with the entities of snap as they stand, in list
// order. Entities under a temporary id are skipped; entities with a server
// id are written with any optimistic edit still awaiting confirmation. It
// returns the number of entities written.
func (d *DB) Save(ctx context.Context, snap *store.Snapshot, savedAt time.Time) (int, error) {
	return d.SaveEntities(ctx, snap.Entities(), snap.Version(), savedAt)
}

// SaveEntities is Save for an explicit entity list. version is recorded
// as-is in the mirror state.
func (d *DB) SaveEntities(ctx context.Context, entities []entity.Entity, version uint64, savedAt time.Time) (int, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("save mirror: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entities`); err != nil {
		return 0, fmt.Errorf("save mirror: clear: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entities
		(id, position, ord, active, caption, meta, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("save mirror: prepare: %w", err)
	}
	defer stmt.Close()

	written := 0
	for _, e := range entities {
		if e.IsTemp() {
			continue
		}
		meta, err := marshalMeta(e.Meta)
		if err != nil {
			return 0, fmt.Errorf("save mirror: entity %q: %w", e.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			e.ID,
			written,
			e.Order,
			boolToInt(e.Active),
			e.Caption,
			meta,
			formatTime(e.CreatedAt),
			formatTime(e.UpdatedAt),
		); err != nil {
			return 0, fmt.Errorf("save mirror: entity %q: %w", e.ID, err)
		}
		written++
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO mirror_state (id, version, saved_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET version = excluded.version, saved_at = excluded.saved_at
	`, int64(version), formatTime(savedAt)); err != nil {
		return 0, fmt.Errorf("save mirror: state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("save mirror: commit: %w", err)
	}
	return written, nil
}
