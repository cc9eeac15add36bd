package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// LookupSelection returns the cached objects for (name, query).
// found is false when nothing is cached.
func (o ops) LookupSelection(ctx context.Context, name, query string) (objects []string, found bool, err error) {
	var blob string
	err = o.q.QueryRowContext(ctx, `SELECT objects FROM selection WHERE name = ? AND query = ?`, name, query).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup selection %s: %w", name, err)
	}
	return strings.Fields(blob), true, nil
}

// StoreSelection caches objects for (name, query), replacing any previous entry.
func (o ops) StoreSelection(ctx context.Context, name, query string, objects []string) error {
	_, err := o.q.ExecContext(ctx, `INSERT INTO selection (name, query, objects, created) VALUES (?, ?, ?, ?)
		ON CONFLICT(name, query) DO UPDATE SET objects = excluded.objects, created = excluded.created`,
		name, query, strings.Join(objects, " "), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("store selection %s: %w", name, err)
	}
	return nil
}

// DeleteSelections drops every cached entry under name.
func (o ops) DeleteSelections(ctx context.Context, name string) error {
	if _, err := o.q.ExecContext(ctx, `DELETE FROM selection WHERE name = ?`, name); err != nil {
		return fmt.Errorf("delete selection %s: %w", name, err)
	}
	return nil
}

// ClearSelections drops the whole selection cache.
func (o ops) ClearSelections(ctx context.Context) error {
	if _, err := o.q.ExecContext(ctx, `DELETE FROM selection`); err != nil {
		return fmt.Errorf("clear selections: %w", err)
	}
	return nil
}
