package config

import (
	"fmt"
	"time"

	"github.com/rileyhilliard/fleet/internal/errors"
)

// Validate checks the config for errors and returns structured error messages.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New(errors.ErrConfig,
			"Config is nil",
			"This is unexpected - try reloading the configuration.")
	}

	if cfg.Version > CurrentConfigVersion {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("This config is from the future (version %d, but fleet only knows up to %d)", cfg.Version, CurrentConfigVersion),
			"Upgrade fleet or lower the version field.")
	}

	if cfg.Store.Path == "" {
		return errors.New(errors.ErrConfig,
			"No inventory store configured",
			"Set store.path in fleet.yaml.")
	}

	chunks := map[string]int{
		"ssh.chunk_size":  cfg.SSH.ChunkSize,
		"ping.chunk_size": cfg.Ping.ChunkSize,
		"http.chunk_size": cfg.HTTP.ChunkSize,
		"snmp.chunk_size": cfg.SNMP.ChunkSize,
	}
	for key, n := range chunks {
		if n <= 0 {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("%s must be positive, got %d", key, n),
				"Chunk sizes bound how many targets are probed at once; try 4 or more.")
		}
	}

	timeouts := map[string]time.Duration{
		"ssh.connect_timeout": cfg.SSH.ConnectTimeout,
		"ssh.banner_timeout":  cfg.SSH.BannerTimeout,
		"ssh.auth_timeout":    cfg.SSH.AuthTimeout,
		"ssh.exec_timeout":    cfg.SSH.ExecTimeout,
		"ping.timeout":        cfg.Ping.Timeout,
		"http.timeout":        cfg.HTTP.Timeout,
		"snmp.timeout":        cfg.SNMP.Timeout,
	}
	for key, d := range timeouts {
		if d <= 0 {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("%s must be a positive duration, got %s", key, d),
				"Use a Go duration like 10s or 1m30s.")
		}
	}

	switch cfg.SSH.HostKeyPolicy {
	case HostKeyStrict, HostKeyAcceptNew, HostKeyOff:
	default:
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Unknown ssh.host_key_policy '%s'", cfg.SSH.HostKeyPolicy),
			"Use one of: strict, accept-new, off.")
	}

	switch cfg.Selection.CachePolicy {
	case CacheMemoize, CacheInvalidateOnTagChange:
	default:
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Unknown selection.cache_policy '%s'", cfg.Selection.CachePolicy),
			"Use one of: memoize, invalidate-on-tag-change.")
	}

	switch cfg.Ping.Method {
	case PingICMP, PingTCP:
	default:
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Unknown ping.method '%s'", cfg.Ping.Method),
			"Use icmp or tcp.")
	}

	switch cfg.SNMP.Version {
	case "1", "2c":
	default:
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Unsupported snmp.version '%s'", cfg.SNMP.Version),
			"Use 1 or 2c.")
	}

	if cfg.Ping.TCPPort <= 0 || cfg.Ping.TCPPort > 65535 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("ping.tcp_port %d is out of range", cfg.Ping.TCPPort),
			"Use a TCP port between 1 and 65535.")
	}

	for name, query := range cfg.Selections {
		if query == "" {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Selection '%s' has an empty query", name),
				"Give it a query like '%prod&!db1' or remove it.")
		}
	}

	return nil
}
