package store

// SchemaVersion is the user_version of a fully migrated database.
func SchemaVersion() int { return len(migrations) }

// migrations are applied in order; PRAGMA user_version records how many ran.
var migrations = [][]string{
	{
		`CREATE TABLE IF NOT EXISTS host (
			fqdn          TEXT PRIMARY KEY,
			hostname      TEXT NOT NULL DEFAULT '',
			ip            TEXT NOT NULL DEFAULT '',
			ping_delay    REAL NOT NULL DEFAULT -1,
			first_up      INTEGER,
			last_check    INTEGER,
			last_up       INTEGER,
			last_down     INTEGER,
			last_change   INTEGER,
			adjacent_up   INTEGER NOT NULL DEFAULT 0,
			adjacent_down INTEGER NOT NULL DEFAULT 0,
			up            INTEGER NOT NULL DEFAULT 0,
			down          INTEGER NOT NULL DEFAULT 0,
			user          TEXT NOT NULL DEFAULT '',
			ssh_key_file  TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_host_hostname ON host(hostname)`,
		`CREATE INDEX IF NOT EXISTS idx_host_first_up ON host(first_up)`,

		`CREATE TABLE IF NOT EXISTS host_update (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			update_time INTEGER NOT NULL,
			network     TEXT NOT NULL DEFAULT '',
			selection   TEXT NOT NULL DEFAULT '',
			up          INTEGER NOT NULL DEFAULT 0,
			down        INTEGER NOT NULL DEFAULT 0,
			back        INTEGER NOT NULL DEFAULT 0,
			lost        INTEGER NOT NULL DEFAULT 0,
			new         INTEGER NOT NULL DEFAULT 0,
			duration    REAL NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS execution (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id      TEXT NOT NULL,
			user        TEXT NOT NULL DEFAULT '',
			fqdn        TEXT NOT NULL REFERENCES host(fqdn) ON DELETE CASCADE,
			cmdline     TEXT NOT NULL,
			return_code INTEGER NOT NULL,
			stdout      TEXT NOT NULL DEFAULT '',
			stderr      TEXT NOT NULL DEFAULT '',
			status      TEXT NOT NULL DEFAULT '',
			"start"     INTEGER NOT NULL,
			"end"       INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_execution_fqdn ON execution(fqdn)`,
		`CREATE INDEX IF NOT EXISTS idx_execution_run ON execution(run_id)`,

		`CREATE TABLE IF NOT EXISTS host_tag (
			host        TEXT NOT NULL REFERENCES host(fqdn) ON DELETE CASCADE,
			tag         TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			tag_time    INTEGER NOT NULL,
			PRIMARY KEY (host, tag)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_host_tag_tag ON host_tag(tag)`,

		`CREATE VIEW IF NOT EXISTS host_tag_view AS
			SELECT h.fqdn, h.hostname, h.ip, t.tag, t.description, t.tag_time
			FROM host h JOIN host_tag t ON t.host = h.fqdn`,

		`CREATE TABLE IF NOT EXISTS url (
			proto         TEXT NOT NULL,
			host          TEXT NOT NULL,
			path          TEXT NOT NULL,
			port          INTEGER NOT NULL,
			user          TEXT NOT NULL DEFAULT '',
			password      TEXT NOT NULL DEFAULT '',
			check_time    INTEGER,
			status        INTEGER NOT NULL DEFAULT -1,
			response_time REAL NOT NULL DEFAULT 0,
			total_time    REAL NOT NULL DEFAULT 0,
			headers       TEXT NOT NULL DEFAULT '',
			content       TEXT NOT NULL DEFAULT '',
			certificate   TEXT NOT NULL DEFAULT '',
			expire        INTEGER NOT NULL DEFAULT 0,
			get_error     TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (proto, host, path, port, user)
		)`,

		`CREATE TABLE IF NOT EXISTS snmp (
			host       TEXT NOT NULL,
			mib        TEXT NOT NULL,
			oid        TEXT NOT NULL,
			value      TEXT NOT NULL DEFAULT '',
			check_time INTEGER NOT NULL,
			selection  TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (host, mib, oid)
		)`,

		`CREATE TABLE IF NOT EXISTS selection (
			name    TEXT NOT NULL,
			query   TEXT NOT NULL,
			objects TEXT NOT NULL DEFAULT '',
			created INTEGER NOT NULL,
			PRIMARY KEY (name, query)
		)`,
	},
	{
		`ALTER TABLE snmp ADD COLUMN get_error TEXT NOT NULL DEFAULT ''`,
	},
}
