package sshutil

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kevinburke/ssh_config"
)

// ConfigHost is one concrete Host alias of an ssh_config file, with the
// settings fleet cares about.
type ConfigHost struct {
	Alias        string
	HostName     string
	User         string
	Port         int // 0 when unset
	IdentityFile string
}

// Summary describes where the alias points, e.g. "10.0.0.2:2222 as admin".
// It is empty when the alias carries no settings of its own.
func (h ConfigHost) Summary() string {
	target := ""
	if h.HostName != "" && h.HostName != h.Alias {
		target = h.HostName
	}
	if h.Port != 0 && h.Port != 22 {
		host := target
		if host == "" {
			host = h.Alias
		}
		target = host + ":" + strconv.Itoa(h.Port)
	}

	switch {
	case target != "" && h.User != "":
		return target + " as " + h.User
	case h.User != "":
		return "as " + h.User
	default:
		return target
	}
}

// ReadConfigHosts lists the concrete aliases of an ssh_config file, sorted
// by alias. Wildcard patterns are skipped and a missing file yields no
// hosts. An empty path reads ~/.ssh/config.
func ReadConfigHosts(path string) ([]ConfigHost, error) {
	if path == "" {
		path = filepath.Join(homeDir(), ".ssh", "config")
	}

	content, _, err := preprocessSSHConfig(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	cfg, err := ssh_config.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var hosts []ConfigHost
	for _, block := range cfg.Hosts {
		for _, pattern := range block.Patterns {
			alias := pattern.String()
			if seen[alias] || strings.ContainsAny(alias, "*?!") {
				continue
			}
			seen[alias] = true
			hosts = append(hosts, lookupHost(cfg, alias))
		}
	}

	sort.Slice(hosts, func(i, j int) bool { return hosts[i].Alias < hosts[j].Alias })
	return hosts, nil
}

func lookupHost(cfg *ssh_config.Config, alias string) ConfigHost {
	get := func(key string) string {
		v, _ := cfg.Get(alias, key)
		return strings.TrimSpace(v)
	}

	h := ConfigHost{
		Alias:    alias,
		HostName: get("HostName"),
		User:     get("User"),
	}
	if p, err := strconv.Atoi(get("Port")); err == nil {
		h.Port = p
	}
	if id := get("IdentityFile"); id != "" {
		h.IdentityFile = expandPath(id)
	}
	return h
}
