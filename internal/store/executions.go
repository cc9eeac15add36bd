package store

import (
	"context"
	"fmt"
)

// InsertExecution records one remote command run.
func (o ops) InsertExecution(ctx context.Context, e *Execution) error {
	res, err := o.q.ExecContext(ctx, `INSERT INTO execution
		(run_id, user, fqdn, cmdline, return_code, stdout, stderr, status, "start", "end")
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.User, e.FQDN, e.Cmdline, e.ReturnCode, e.Stdout, e.Stderr, e.Status,
		toMillis(e.Start), toMillis(e.End))
	if err != nil {
		return fmt.Errorf("insert execution on %s: %w", e.FQDN, err)
	}
	e.ID, _ = res.LastInsertId()
	return nil
}

// ListExecutions returns executions newest first, optionally for one host.
func (o ops) ListExecutions(ctx context.Context, fqdn string, limit int) ([]Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, run_id, user, fqdn, cmdline, return_code, stdout, stderr, status, "start", "end" FROM execution`
	args := []interface{}{}
	if fqdn != "" {
		query += ` WHERE fqdn = ?`
		args = append(args, fqdn)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []Execution
	for rows.Next() {
		var e Execution
		var start, end int64
		if err := rows.Scan(&e.ID, &e.RunID, &e.User, &e.FQDN, &e.Cmdline, &e.ReturnCode,
			&e.Stdout, &e.Stderr, &e.Status, &start, &end); err != nil {
			return nil, err
		}
		e.Start = fromMillis(start)
		e.End = fromMillis(end)
		out = append(out, e)
	}
	return out, rows.Err()
}
