package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rileyhilliard/fleet/internal/errors"
	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the default config file name.
	ConfigFileName = "fleet.yaml"
	// GlobalConfigDir is the directory for global config.
	GlobalConfigDir = ".config/fleet"
	// GlobalConfigFile is the global config file name.
	GlobalConfigFile = "config.yaml"
	// EnvPrefix prefixes environment overrides, e.g. FLEET_SSH_USER.
	EnvPrefix = "FLEET"
)

// Load reads config from the specified path.
func Load(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Config file not found",
				"Run 'fleet config init' to create a config file, or specify one with --config")
		}
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to read config file",
			"Check the file exists and is valid YAML")
	}

	return parseConfig(v, path)
}

// Find locates the config file using the search order:
// 1. Explicit path (from --config flag)
// 2. fleet.yaml in current directory
// 3. ~/.config/fleet/config.yaml
//
// Returns the path to the config file, or empty string if not found.
func Find(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			if os.IsNotExist(err) {
				return "", errors.WrapWithCode(err, errors.ErrConfig,
					"Specified config file not found: "+explicit,
					"Check the path is correct")
			}
			return "", errors.WrapWithCode(err, errors.ErrConfig,
				"Cannot access config file: "+explicit,
				"Check file permissions")
		}
		return explicit, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"Cannot determine current directory",
			"Check directory permissions")
	}

	localConfig := filepath.Join(cwd, ConfigFileName)
	if _, err := os.Stat(localConfig); err == nil {
		return localConfig, nil
	}

	if globalConfig := GlobalPath(); globalConfig != "" {
		if _, err := os.Stat(globalConfig); err == nil {
			return globalConfig, nil
		}
	}

	return "", nil
}

// GlobalPath returns ~/.config/fleet/config.yaml, or "" without a home directory.
func GlobalPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, GlobalConfigDir, GlobalConfigFile)
}

// LoadOrDefault loads config from the located file, or from defaults plus
// environment overrides when no file exists.
func LoadOrDefault(explicit string) (*Config, string, error) {
	path, err := Find(explicit)
	if err != nil {
		return nil, "", err
	}

	if path == "" {
		cfg, err := parseConfig(newViper(), "environment")
		return cfg, "", err
	}

	cfg, err := Load(path)
	return cfg, path, err
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// parseConfig converts viper config to our Config struct with defaults merged in.
func parseConfig(v *viper.Viper, path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid config format",
			"Check the YAML syntax in "+path)
	}

	if cfg.Selections == nil {
		cfg.Selections = make(map[string]string)
	}

	cfg.Store.Path = ExpandTilde(cfg.Store.Path)
	cfg.SSH.PrivateKey = ExpandTilde(cfg.SSH.PrivateKey)
	cfg.SSH.PublicKey = ExpandTilde(cfg.SSH.PublicKey)
	cfg.SSH.KnownHosts = ExpandTilde(cfg.SSH.KnownHosts)
	cfg.SSH.SSHConfigFile = ExpandTilde(cfg.SSH.SSHConfigFile)
	cfg.Metrics.Textfile = ExpandTilde(cfg.Metrics.Textfile)

	return cfg, nil
}

// setDefaults registers every key so environment overrides apply even
// when the file doesn't mention them.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("version", d.Version)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("network", d.Network)

	v.SetDefault("ssh.user", d.SSH.User)
	v.SetDefault("ssh.private_key", d.SSH.PrivateKey)
	v.SetDefault("ssh.public_key", d.SSH.PublicKey)
	v.SetDefault("ssh.known_hosts", d.SSH.KnownHosts)
	v.SetDefault("ssh.ssh_config", d.SSH.SSHConfigFile)
	v.SetDefault("ssh.host_key_policy", d.SSH.HostKeyPolicy)
	v.SetDefault("ssh.connect_timeout", d.SSH.ConnectTimeout.String())
	v.SetDefault("ssh.banner_timeout", d.SSH.BannerTimeout.String())
	v.SetDefault("ssh.auth_timeout", d.SSH.AuthTimeout.String())
	v.SetDefault("ssh.exec_timeout", d.SSH.ExecTimeout.String())
	v.SetDefault("ssh.chunk_size", d.SSH.ChunkSize)

	v.SetDefault("ping.chunk_size", d.Ping.ChunkSize)
	v.SetDefault("ping.timeout", d.Ping.Timeout.String())
	v.SetDefault("ping.tcp_port", d.Ping.TCPPort)
	v.SetDefault("ping.privileged", d.Ping.Privileged)
	v.SetDefault("ping.method", d.Ping.Method)

	v.SetDefault("http.chunk_size", d.HTTP.ChunkSize)
	v.SetDefault("http.timeout", d.HTTP.Timeout.String())
	v.SetDefault("http.insecure", d.HTTP.Insecure)
	v.SetDefault("http.max_body", d.HTTP.MaxBody)

	v.SetDefault("snmp.chunk_size", d.SNMP.ChunkSize)
	v.SetDefault("snmp.community", d.SNMP.Community)
	v.SetDefault("snmp.port", d.SNMP.Port)
	v.SetDefault("snmp.version", d.SNMP.Version)
	v.SetDefault("snmp.timeout", d.SNMP.Timeout.String())
	v.SetDefault("snmp.retries", d.SNMP.Retries)

	v.SetDefault("selection.cache_policy", d.Selection.CachePolicy)
	v.SetDefault("metrics.textfile", d.Metrics.Textfile)
}
