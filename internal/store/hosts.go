package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const hostColumns = `fqdn, hostname, ip, ping_delay, first_up, last_check, last_up, last_down,
	last_change, adjacent_up, adjacent_down, up, down, user, ssh_key_file`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanHost(row scanner) (*Host, error) {
	var h Host
	var firstUp, lastCheck, lastUp, lastDown, lastChange sql.NullInt64
	err := row.Scan(&h.FQDN, &h.Hostname, &h.IP, &h.PingDelay,
		&firstUp, &lastCheck, &lastUp, &lastDown, &lastChange,
		&h.AdjacentUp, &h.AdjacentDown, &h.Up, &h.Down, &h.User, &h.SSHKeyFile)
	if err != nil {
		return nil, err
	}
	h.FirstUp = fromEpoch(firstUp)
	h.LastCheck = fromEpoch(lastCheck)
	h.LastUp = fromEpoch(lastUp)
	h.LastDown = fromEpoch(lastDown)
	h.LastChange = fromEpoch(lastChange)
	return &h, nil
}

// EnsureHost inserts a host with zero state unless it already exists.
// Returns true when a row was created.
func (o ops) EnsureHost(ctx context.Context, fqdn, hostname, ip string) (bool, error) {
	res, err := o.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO host (fqdn, hostname, ip) VALUES (?, ?, ?)`,
		fqdn, hostname, ip)
	if err != nil {
		return false, fmt.Errorf("ensure host %s: %w", fqdn, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GetHost returns the host with the given FQDN, or nil if absent.
func (o ops) GetHost(ctx context.Context, fqdn string) (*Host, error) {
	row := o.q.QueryRowContext(ctx, `SELECT `+hostColumns+` FROM host WHERE fqdn = ?`, fqdn)
	h, err := scanHost(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get host %s: %w", fqdn, err)
	}
	return h, nil
}

// SaveHost writes every mutable column of h.
func (o ops) SaveHost(ctx context.Context, h *Host) error {
	_, err := o.q.ExecContext(ctx, `UPDATE host SET
		hostname = ?, ip = ?, ping_delay = ?, first_up = ?, last_check = ?, last_up = ?,
		last_down = ?, last_change = ?, adjacent_up = ?, adjacent_down = ?, up = ?, down = ?,
		user = ?, ssh_key_file = ?
		WHERE fqdn = ?`,
		h.Hostname, h.IP, h.PingDelay, toEpoch(h.FirstUp), toEpoch(h.LastCheck), toEpoch(h.LastUp),
		toEpoch(h.LastDown), toEpoch(h.LastChange), h.AdjacentUp, h.AdjacentDown, h.Up, h.Down,
		h.User, h.SSHKeyFile, h.FQDN)
	if err != nil {
		return fmt.Errorf("save host %s: %w", h.FQDN, err)
	}
	return nil
}

// ListHosts returns hosts ordered by FQDN. Hosts never seen up are
// omitted unless includeNeverUp is set.
func (o ops) ListHosts(ctx context.Context, includeNeverUp bool) ([]Host, error) {
	query := `SELECT ` + hostColumns + ` FROM host`
	if !includeNeverUp {
		query += ` WHERE first_up IS NOT NULL`
	}
	query += ` ORDER BY fqdn`

	rows, err := o.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list hosts: %w", err)
	}
	defer rows.Close()

	var hosts []Host
	for rows.Next() {
		h, err := scanHost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan host: %w", err)
		}
		hosts = append(hosts, *h)
	}
	return hosts, rows.Err()
}

// HostsByName returns the named hosts in the given order, skipping unknown names.
func (o ops) HostsByName(ctx context.Context, fqdns []string) ([]Host, error) {
	if len(fqdns) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(fqdns)), ",")
	args := make([]interface{}, len(fqdns))
	for i, f := range fqdns {
		args[i] = f
	}

	rows, err := o.q.QueryContext(ctx,
		`SELECT `+hostColumns+` FROM host WHERE fqdn IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("hosts by name: %w", err)
	}
	defer rows.Close()

	byName := make(map[string]Host, len(fqdns))
	for rows.Next() {
		h, err := scanHost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan host: %w", err)
		}
		byName[h.FQDN] = *h
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]Host, 0, len(byName))
	for _, f := range fqdns {
		if h, ok := byName[f]; ok {
			out = append(out, h)
		}
	}
	return out, nil
}

// HostNames returns every host FQDN in the inventory, sorted.
func (o ops) HostNames(ctx context.Context) ([]string, error) {
	rows, err := o.q.QueryContext(ctx, `SELECT fqdn FROM host ORDER BY fqdn`)
	if err != nil {
		return nil, fmt.Errorf("host names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// DeleteHost removes a host together with its executions and tags.
// Returns false if no such host existed.
func (o ops) DeleteHost(ctx context.Context, fqdn string) (bool, error) {
	res, err := o.q.ExecContext(ctx, `DELETE FROM host WHERE fqdn = ?`, fqdn)
	if err != nil {
		return false, fmt.Errorf("delete host %s: %w", fqdn, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// SetHostLogin sets the SSH login and key file override of a host.
func (o ops) SetHostLogin(ctx context.Context, fqdn, user, keyFile string) (bool, error) {
	res, err := o.q.ExecContext(ctx, `UPDATE host SET user = ?, ssh_key_file = ? WHERE fqdn = ?`, user, keyFile, fqdn)
	if err != nil {
		return false, fmt.Errorf("set login for %s: %w", fqdn, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// InsertHostUpdate appends a probe batch summary row.
func (o ops) InsertHostUpdate(ctx context.Context, u *HostUpdate) error {
	res, err := o.q.ExecContext(ctx, `INSERT INTO host_update
		(update_time, network, selection, up, down, back, lost, new, duration)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.UpdateTime.Unix(), u.Network, u.Selection, u.Up, u.Down, u.Back, u.Lost, u.New, u.Duration.Seconds())
	if err != nil {
		return fmt.Errorf("insert host update: %w", err)
	}
	u.ID, _ = res.LastInsertId()
	return nil
}

// ListHostUpdates returns the most recent batch summaries, newest first.
func (o ops) ListHostUpdates(ctx context.Context, limit int) ([]HostUpdate, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := o.q.QueryContext(ctx, `SELECT id, update_time, network, selection, up, down, back, lost, new, duration
		FROM host_update ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list host updates: %w", err)
	}
	defer rows.Close()

	var out []HostUpdate
	for rows.Next() {
		var u HostUpdate
		var ts int64
		var secs float64
		if err := rows.Scan(&u.ID, &ts, &u.Network, &u.Selection, &u.Up, &u.Down, &u.Back, &u.Lost, &u.New, &secs); err != nil {
			return nil, err
		}
		u.UpdateTime = fromEpochValue(ts)
		u.Duration = secondsToDuration(secs)
		out = append(out, u)
	}
	return out, rows.Err()
}
