package store

import (
	"context"
	"fmt"
	"time"
)

// TagHost attaches tag to a known host, replacing any previous description.
func (o ops) TagHost(ctx context.Context, fqdn, tag, description string) error {
	_, err := o.q.ExecContext(ctx, `INSERT INTO host_tag (host, tag, description, tag_time) VALUES (?, ?, ?, ?)
		ON CONFLICT(host, tag) DO UPDATE SET description = excluded.description, tag_time = excluded.tag_time`,
		fqdn, tag, description, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("tag %s with %s: %w", fqdn, tag, err)
	}
	return nil
}

// UntagHost removes tag from a host. Returns false if it wasn't attached.
func (o ops) UntagHost(ctx context.Context, fqdn, tag string) (bool, error) {
	res, err := o.q.ExecContext(ctx, `DELETE FROM host_tag WHERE host = ? AND tag = ?`, fqdn, tag)
	if err != nil {
		return false, fmt.Errorf("untag %s: %w", fqdn, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// IsTagged reports whether the host carries tag.
func (o ops) IsTagged(ctx context.Context, fqdn, tag string) (bool, error) {
	var n int
	err := o.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM host_tag_view WHERE fqdn = ? AND tag = ?`, fqdn, tag).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("lookup tag %s on %s: %w", tag, fqdn, err)
	}
	return n > 0, nil
}

// HostTags returns tag assignments, optionally filtered to one host.
func (o ops) HostTags(ctx context.Context, fqdn string) ([]HostTag, error) {
	query := `SELECT fqdn, tag, description, tag_time FROM host_tag_view`
	args := []interface{}{}
	if fqdn != "" {
		query += ` WHERE fqdn = ?`
		args = append(args, fqdn)
	}
	query += ` ORDER BY fqdn, tag`

	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	var out []HostTag
	for rows.Next() {
		var t HostTag
		var ts int64
		if err := rows.Scan(&t.Host, &t.Tag, &t.Description, &ts); err != nil {
			return nil, err
		}
		t.TagTime = fromEpochValue(ts)
		out = append(out, t)
	}
	return out, rows.Err()
}

// TagIndex returns host -> set of tags for every tagged host.
func (o ops) TagIndex(ctx context.Context) (map[string]map[string]bool, error) {
	tags, err := o.HostTags(ctx, "")
	if err != nil {
		return nil, err
	}
	idx := make(map[string]map[string]bool)
	for _, t := range tags {
		if idx[t.Host] == nil {
			idx[t.Host] = make(map[string]bool)
		}
		idx[t.Host][t.Tag] = true
	}
	return idx, nil
}
