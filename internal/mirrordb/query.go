package mirrordb

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/optisync/internal/entity"
)

// orderTerms maps list sort keys to ORDER BY clauses. Every clause ends in
// a unique column so rows with equal keys come back in a stable order.
var orderTerms = map[string]string{
	"":        "position ASC",
	"order":   "position ASC",
	"-order":  "position DESC",
	"caption": "caption ASC, position ASC",
	"created": "julianday(created_at) ASC, position ASC",
}

// listQuery is a list query compiled to parameterized SQL.
type listQuery struct {
	selectSQL string
	countSQL  string
	args      []any // filter values, shared by both statements
	page      []any // LIMIT and OFFSET values
}

// compileList turns q into SQL over the entities table. Values are always
// bound as parameters, never interpolated.
func compileList(q entity.ListQuery) (listQuery, error) {
	orderBy, ok := orderTerms[q.Sort]
	if !ok {
		return listQuery{}, fmt.Errorf("unknown sort key %q", q.Sort)
	}
	if q.Limit < 0 || q.Offset < 0 {
		return listQuery{}, fmt.Errorf("limit and offset must not be negative")
	}

	var (
		where []string
		args  []any
	)
	if q.Active != nil {
		where = append(where, "active = ?")
		args = append(args, boolToInt(*q.Active))
	}
	if q.Search != "" {
		where = append(where, "instr(lower(caption), lower(?)) > 0")
		args = append(args, q.Search)
	}

	var whereSQL string
	if len(where) > 0 {
		whereSQL = " WHERE " + strings.Join(where, " AND ")
	}

	// SQLite needs a LIMIT to accept an OFFSET; -1 means no limit.
	limit := q.Limit
	if limit == 0 {
		limit = -1
	}

	return listQuery{
		selectSQL: "SELECT id, ord, active, caption, meta, created_at, updated_at FROM entities" +
			whereSQL + " ORDER BY " + orderBy + " LIMIT ? OFFSET ?",
		countSQL: "SELECT COUNT(*) FROM entities" + whereSQL,
		args:     args,
		page:     []any{limit, q.Offset},
	}, nil
}

// Query answers a list query from the mirror with the same filtering,
// sorting and paging rules the remote applies. It serves reads while the
// remote is unreachable.
func (d *DB) Query(ctx context.Context, q entity.ListQuery) (entity.ListResult, error) {
	lq, err := compileList(q)
	if err != nil {
		return entity.ListResult{}, fmt.Errorf("query mirror: %w", err)
	}

	var total int
	if err := d.db.QueryRowContext(ctx, lq.countSQL, lq.args...).Scan(&total); err != nil {
		return entity.ListResult{}, fmt.Errorf("query mirror: count: %w", err)
	}

	rows, err := d.db.QueryContext(ctx, lq.selectSQL, append(append([]any{}, lq.args...), lq.page...)...)
	if err != nil {
		return entity.ListResult{}, fmt.Errorf("query mirror: %w", err)
	}
	defer rows.Close()

	items := []entity.Entity{}
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return entity.ListResult{}, fmt.Errorf("query mirror: %w", err)
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return entity.ListResult{}, fmt.Errorf("query mirror: iterate: %w", err)
	}

	return entity.ListResult{
		Items: items,
		Meta:  entity.ListMeta{Total: total, Limit: q.Limit, Offset: q.Offset},
	}, nil
}
