package cli

import (
	"time"

	"github.com/rileyhilliard/fleet/internal/availability"
	"github.com/rileyhilliard/fleet/internal/inventory"
	"github.com/rileyhilliard/fleet/internal/probe"
	"github.com/rileyhilliard/fleet/internal/remote"
	"github.com/rileyhilliard/fleet/internal/store"
)

// JSON shapes of the --json output. Store rows are not encoded directly so
// the schema can change without breaking consumers.

type hostJSON struct {
	FQDN       string     `json:"fqdn"`
	Hostname   string     `json:"hostname,omitempty"`
	IP         string     `json:"ip,omitempty"`
	Reachable  bool       `json:"reachable"`
	PingDelay  float64    `json:"ping_delay"`
	FirstUp    *time.Time `json:"first_up,omitempty"`
	LastCheck  *time.Time `json:"last_check,omitempty"`
	LastUp     *time.Time `json:"last_up,omitempty"`
	LastDown   *time.Time `json:"last_down,omitempty"`
	LastChange *time.Time `json:"last_change,omitempty"`
	Up         int        `json:"up"`
	Down       int        `json:"down"`
	User       string     `json:"user,omitempty"`
	SSHKeyFile string     `json:"ssh_key_file,omitempty"`
	Tags       []string   `json:"tags"`
}

func toHostJSON(h inventory.HostView) hostJSON {
	tags := h.Tags
	if tags == nil {
		tags = []string{}
	}
	return hostJSON{
		FQDN:       h.FQDN,
		Hostname:   h.Hostname,
		IP:         h.IP,
		Reachable:  h.SeenUp() && h.Reachable(),
		PingDelay:  h.PingDelay,
		FirstUp:    h.FirstUp,
		LastCheck:  h.LastCheck,
		LastUp:     h.LastUp,
		LastDown:   h.LastDown,
		LastChange: h.LastChange,
		Up:         h.Up,
		Down:       h.Down,
		User:       h.User,
		SSHKeyFile: h.SSHKeyFile,
		Tags:       tags,
	}
}

type changeJSON struct {
	Host    string `json:"host"`
	Outcome string `json:"outcome"`
}

type summaryJSON struct {
	Up       int          `json:"up"`
	Down     int          `json:"down"`
	Back     int          `json:"back"`
	Lost     int          `json:"lost"`
	New      int          `json:"new"`
	Duration float64      `json:"duration_seconds"`
	Changes  []changeJSON `json:"changes"`
}

func toSummaryJSON(sum availability.BatchSummary) summaryJSON {
	out := summaryJSON{
		Up:       sum.Up,
		Down:     sum.Down,
		Back:     sum.Back,
		Lost:     sum.Lost,
		New:      sum.New,
		Duration: sum.Duration.Seconds(),
		Changes:  []changeJSON{},
	}
	for _, c := range sum.Changes {
		out.Changes = append(out.Changes, changeJSON{Host: c.FQDN, Outcome: c.Outcome.String()})
	}
	return out
}

type updateJSON struct {
	Time      time.Time `json:"time"`
	Network   string    `json:"network,omitempty"`
	Selection string    `json:"selection,omitempty"`
	Up        int       `json:"up"`
	Down      int       `json:"down"`
	Back      int       `json:"back"`
	Lost      int       `json:"lost"`
	New       int       `json:"new"`
	Duration  float64   `json:"duration_seconds"`
}

func toUpdateJSON(u store.HostUpdate) updateJSON {
	return updateJSON{
		Time:      u.UpdateTime,
		Network:   u.Network,
		Selection: u.Selection,
		Up:        u.Up,
		Down:      u.Down,
		Back:      u.Back,
		Lost:      u.Lost,
		New:       u.New,
		Duration:  u.Duration.Seconds(),
	}
}

type executionJSON struct {
	RunID      string    `json:"run_id"`
	Host       string    `json:"host"`
	User       string    `json:"user"`
	Cmdline    string    `json:"cmdline"`
	ReturnCode int       `json:"return_code"`
	Stdout     string    `json:"stdout"`
	Stderr     string    `json:"stderr"`
	Status     string    `json:"status,omitempty"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
}

func fromResult(r remote.ExecutionResult) executionJSON {
	return executionJSON{
		RunID:      r.RunID,
		Host:       r.Target.FQDN,
		User:       r.User,
		Cmdline:    r.Cmdline,
		ReturnCode: r.ReturnCode,
		Stdout:     r.Stdout,
		Stderr:     r.Stderr,
		Status:     r.Status,
		Start:      r.Start,
		End:        r.End,
	}
}

func fromExecution(e store.Execution) executionJSON {
	return executionJSON{
		RunID:      e.RunID,
		Host:       e.FQDN,
		User:       e.User,
		Cmdline:    e.Cmdline,
		ReturnCode: e.ReturnCode,
		Stdout:     e.Stdout,
		Stderr:     e.Stderr,
		Status:     e.Status,
		Start:      e.Start,
		End:        e.End,
	}
}

type urlJSON struct {
	URL          string     `json:"url"`
	CheckTime    *time.Time `json:"check_time,omitempty"`
	Status       int        `json:"status"`
	ResponseTime float64    `json:"response_time"`
	TotalTime    float64    `json:"total_time"`
	Certificate  string     `json:"certificate,omitempty"`
	Expire       *time.Time `json:"expire,omitempty"`
	Error        string     `json:"error,omitempty"`
}

func toURLJSON(u store.URLRecord) urlJSON {
	out := urlJSON{
		URL:          urlTarget(u).String(),
		CheckTime:    u.CheckTime,
		Status:       u.Status,
		ResponseTime: u.ResponseTime,
		TotalTime:    u.TotalTime,
		Certificate:  u.Certificate,
		Error:        u.GetError,
	}
	if u.Expire != 0 {
		exp := time.Unix(u.Expire, 0).UTC()
		out.Expire = &exp
	}
	return out
}

func urlTarget(u store.URLRecord) probe.URLTarget {
	return probe.URLTarget{Proto: u.Proto, User: u.User, Password: u.Password, Host: u.Host, Port: u.Port, Path: u.Path}
}

type snmpJSON struct {
	Host      string    `json:"host"`
	MIB       string    `json:"mib"`
	OID       string    `json:"oid"`
	Value     string    `json:"value"`
	CheckTime time.Time `json:"check_time"`
	Selection string    `json:"selection,omitempty"`
	Error     string    `json:"error,omitempty"`
}
