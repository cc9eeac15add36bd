package store

import (
	"context"
	"fmt"
)

// SaveSNMPReading upserts the latest value for (host, mib, oid).
func (o ops) SaveSNMPReading(ctx context.Context, r *SNMPReading) error {
	_, err := o.q.ExecContext(ctx, `INSERT INTO snmp (host, mib, oid, value, check_time, selection, get_error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(host, mib, oid) DO UPDATE SET
			value = excluded.value, check_time = excluded.check_time,
			selection = excluded.selection, get_error = excluded.get_error`,
		r.Host, r.MIB, r.OID, r.Value, r.CheckTime.Unix(), r.Selection, r.GetError)
	if err != nil {
		return fmt.Errorf("save snmp %s %s::%s: %w", r.Host, r.MIB, r.OID, err)
	}
	return nil
}

// ListSNMPReadings returns stored readings, optionally for one host.
func (o ops) ListSNMPReadings(ctx context.Context, host string) ([]SNMPReading, error) {
	query := `SELECT host, mib, oid, value, check_time, selection, get_error FROM snmp`
	args := []interface{}{}
	if host != "" {
		query += ` WHERE host = ?`
		args = append(args, host)
	}
	query += ` ORDER BY host, mib, oid`

	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list snmp: %w", err)
	}
	defer rows.Close()

	var out []SNMPReading
	for rows.Next() {
		var r SNMPReading
		var ts int64
		if err := rows.Scan(&r.Host, &r.MIB, &r.OID, &r.Value, &ts, &r.Selection, &r.GetError); err != nil {
			return nil, err
		}
		r.CheckTime = fromEpochValue(ts)
		out = append(out, r)
	}
	return out, rows.Err()
}
