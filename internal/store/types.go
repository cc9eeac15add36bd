package store

import "time"

// Unreachable is the persisted ping_delay of a host whose latest probe failed.
const Unreachable = -1.0

// Host is one inventory row, identified by FQDN.
type Host struct {
	FQDN     string
	Hostname string
	IP       string

	// PingDelay is the latest round trip in seconds, or Unreachable.
	PingDelay float64

	FirstUp    *time.Time
	LastCheck  *time.Time
	LastUp     *time.Time
	LastDown   *time.Time
	LastChange *time.Time

	AdjacentUp   int
	AdjacentDown int
	Up           int
	Down         int

	User       string
	SSHKeyFile string
}

// Reachable reports whether the latest probe succeeded.
func (h Host) Reachable() bool {
	return h.PingDelay != Unreachable
}

// SeenUp reports whether the host has ever answered a probe.
func (h Host) SeenUp() bool {
	return h.FirstUp != nil
}

// Name returns the FQDN, or the short hostname when the FQDN is empty.
func (h Host) Name() string {
	if h.FQDN != "" {
		return h.FQDN
	}
	return h.Hostname
}

// HostUpdate summarizes one completed probe batch.
type HostUpdate struct {
	ID         int64
	UpdateTime time.Time
	Network    string
	Selection  string
	Up         int
	Down       int
	Back       int
	Lost       int
	New        int
	Duration   time.Duration
}

// Execution is one remote command run on one host.
type Execution struct {
	ID         int64
	RunID      string
	User       string
	FQDN       string
	Cmdline    string
	ReturnCode int
	Stdout     string
	Stderr     string
	Status     string
	Start      time.Time
	End        time.Time
}

// HostTag attaches a tag to a host.
type HostTag struct {
	Host        string
	Tag         string
	Description string
	TagTime     time.Time
}

// URLRecord is a monitored endpoint and its latest check.
type URLRecord struct {
	Proto    string
	Host     string
	Path     string
	Port     int
	User     string
	Password string

	CheckTime    *time.Time
	Status       int // HTTP status, -1 when the request failed
	ResponseTime float64
	TotalTime    float64
	Headers      string
	Content      string
	Certificate  string
	Expire       int64 // certificate NotAfter, epoch seconds
	GetError     string
}

// SNMPReading is the latest value polled for (host, mib, oid).
type SNMPReading struct {
	Host      string
	MIB       string
	OID       string
	Value     string
	CheckTime time.Time
	Selection string
	GetError  string // empty Value when set
}
