package store

import (
	"context"
	"database/sql"
	"fmt"
)

// AddURL registers an endpoint. Re-adding an existing key updates the password.
func (o ops) AddURL(ctx context.Context, u *URLRecord) error {
	_, err := o.q.ExecContext(ctx, `INSERT INTO url (proto, host, path, port, user, password)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(proto, host, path, port, user) DO UPDATE SET password = excluded.password`,
		u.Proto, u.Host, u.Path, u.Port, u.User, u.Password)
	if err != nil {
		return fmt.Errorf("add url %s://%s%s: %w", u.Proto, u.Host, u.Path, err)
	}
	return nil
}

// SaveURLCheck stores the outcome of a check, inserting the URL if needed.
func (o ops) SaveURLCheck(ctx context.Context, u *URLRecord) error {
	_, err := o.q.ExecContext(ctx, `INSERT INTO url
		(proto, host, path, port, user, password, check_time, status, response_time, total_time,
		 headers, content, certificate, expire, get_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(proto, host, path, port, user) DO UPDATE SET
			check_time = excluded.check_time,
			status = excluded.status,
			response_time = excluded.response_time,
			total_time = excluded.total_time,
			headers = excluded.headers,
			content = excluded.content,
			certificate = excluded.certificate,
			expire = excluded.expire,
			get_error = excluded.get_error`,
		u.Proto, u.Host, u.Path, u.Port, u.User, u.Password, toEpoch(u.CheckTime), u.Status,
		u.ResponseTime, u.TotalTime, u.Headers, u.Content, u.Certificate, u.Expire, u.GetError)
	if err != nil {
		return fmt.Errorf("save url check %s://%s%s: %w", u.Proto, u.Host, u.Path, err)
	}
	return nil
}

// ListURLs returns every monitored endpoint.
func (o ops) ListURLs(ctx context.Context) ([]URLRecord, error) {
	rows, err := o.q.QueryContext(ctx, `SELECT proto, host, path, port, user, password, check_time, status,
		response_time, total_time, headers, content, certificate, expire, get_error
		FROM url ORDER BY host, port, path`)
	if err != nil {
		return nil, fmt.Errorf("list urls: %w", err)
	}
	defer rows.Close()

	var out []URLRecord
	for rows.Next() {
		var u URLRecord
		var checked sql.NullInt64
		if err := rows.Scan(&u.Proto, &u.Host, &u.Path, &u.Port, &u.User, &u.Password, &checked, &u.Status,
			&u.ResponseTime, &u.TotalTime, &u.Headers, &u.Content, &u.Certificate, &u.Expire, &u.GetError); err != nil {
			return nil, err
		}
		u.CheckTime = fromEpoch(checked)
		out = append(out, u)
	}
	return out, rows.Err()
}

// DeleteURL removes an endpoint by key.
func (o ops) DeleteURL(ctx context.Context, proto, host, path string, port int, user string) (bool, error) {
	res, err := o.q.ExecContext(ctx, `DELETE FROM url WHERE proto = ? AND host = ? AND path = ? AND port = ? AND user = ?`,
		proto, host, path, port, user)
	if err != nil {
		return false, fmt.Errorf("delete url: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
