package mirrordb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/optisync/internal/entity"
	"github.com/roach88/optisync/internal/order"
	"github.com/roach88/optisync/internal/store"
)

// State describes the saved snapshot. The zero State means nothing was
// saved yet.
type State struct {
	Version uint64
	SavedAt time.Time
	Count   int
}

// Load returns the saved entities in list order. An empty mirror returns
// an empty, non-nil slice.
func (d *DB) Load(ctx context.Context) ([]entity.Entity, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, ord, active, caption, meta, created_at, updated_at
		FROM entities
		ORDER BY position ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("load mirror: %w", err)
	}
	defer rows.Close()

	entities := []entity.Entity{}
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("load mirror: %w", err)
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load mirror: iterate: %w", err)
	}
	return entities, nil
}

// LoadStore builds a store from the saved entities. Orders are renumbered
// from list position, so a mirror saved while a temporary entity held a
// position loads with contiguous orders.
func (d *DB) LoadStore(ctx context.Context) (*store.Store, error) {
	entities, err := d.Load(ctx)
	if err != nil {
		return nil, err
	}
	return store.New(order.Renumber(entities)...), nil
}

// Get returns one saved entity. Returns sql.ErrNoRows if id is not saved.
func (d *DB) Get(ctx context.Context, id string) (entity.Entity, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, ord, active, caption, meta, created_at, updated_at
		FROM entities
		WHERE id = ?
	`, id)
	return scanEntity(row)
}

// State returns the description of the saved snapshot.
func (d *DB) State(ctx context.Context) (State, error) {
	var (
		st      State
		version int64
		savedAt string
	)
	err := d.db.QueryRowContext(ctx, `SELECT version, saved_at FROM mirror_state WHERE id = 1`).Scan(&version, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("read mirror state: %w", err)
	}
	st.Version = uint64(version)
	if st.SavedAt, err = parseTime(savedAt); err != nil {
		return State{}, fmt.Errorf("read mirror state: %w", err)
	}
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities`).Scan(&st.Count); err != nil {
		return State{}, fmt.Errorf("read mirror state: count: %w", err)
	}
	return st, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntity(row scanner) (entity.Entity, error) {
	var (
		e                  entity.Entity
		active             int
		meta               string
		createdAt, updated string
	)
	if err := row.Scan(&e.ID, &e.Order, &active, &e.Caption, &meta, &createdAt, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.Entity{}, err
		}
		return entity.Entity{}, fmt.Errorf("scan entity: %w", err)
	}
	e.Active = active == 1

	var err error
	if e.Meta, err = unmarshalMeta(meta); err != nil {
		return entity.Entity{}, fmt.Errorf("entity %q: %w", e.ID, err)
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return entity.Entity{}, fmt.Errorf("entity %q: %w", e.ID, err)
	}
	if e.UpdatedAt, err = parseTime(updated); err != nil {
		return entity.Entity{}, fmt.Errorf("entity %q: %w", e.ID, err)
	}
	return e, nil
}
