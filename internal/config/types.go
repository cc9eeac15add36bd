package config

import "time"

// CurrentConfigVersion is the schema version for the config file.
// Increment when making breaking changes to the config structure.
const CurrentConfigVersion = 1

// Host key policies for SSH connections.
const (
	HostKeyStrict    = "strict"
	HostKeyAcceptNew = "accept-new"
	HostKeyOff       = "off"
)

// Ping methods.
const (
	PingICMP = "icmp"
	PingTCP  = "tcp"
)

// Selection cache policies.
const (
	CacheMemoize               = "memoize"
	CacheInvalidateOnTagChange = "invalidate-on-tag-change"
)

// Config represents the complete fleet.yaml configuration file.
// It is built once at startup and handed to constructors; nothing mutates it afterwards.
type Config struct {
	Version   int             `yaml:"version" mapstructure:"version"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Network   string          `yaml:"network" mapstructure:"network"`
	SSH       SSHConfig       `yaml:"ssh" mapstructure:"ssh"`
	Ping      PingConfig      `yaml:"ping" mapstructure:"ping"`
	HTTP      HTTPConfig      `yaml:"http" mapstructure:"http"`
	SNMP      SNMPConfig      `yaml:"snmp" mapstructure:"snmp"`
	Selection SelectionConfig `yaml:"selection" mapstructure:"selection"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`

	// Selections are named queries, rebuilt with 'fleet select --rebuild'.
	Selections map[string]string `yaml:"selections" mapstructure:"selections"`
}

// StoreConfig locates the inventory database.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// LogConfig controls the logrus backend.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// SSHConfig holds remote execution settings.
type SSHConfig struct {
	// User is the login used when a host has no user of its own.
	User string `yaml:"user" mapstructure:"user"`

	PrivateKey string `yaml:"private_key" mapstructure:"private_key"`
	PublicKey  string `yaml:"public_key" mapstructure:"public_key"`
	KnownHosts string `yaml:"known_hosts" mapstructure:"known_hosts"`

	// SSHConfigFile is read for per-host settings. Empty means ~/.ssh/config,
	// "none" turns the lookup off.
	SSHConfigFile string `yaml:"ssh_config" mapstructure:"ssh_config"`

	// HostKeyPolicy is one of strict, accept-new, off.
	HostKeyPolicy string `yaml:"host_key_policy" mapstructure:"host_key_policy"`

	ConnectTimeout time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`
	BannerTimeout  time.Duration `yaml:"banner_timeout" mapstructure:"banner_timeout"`
	AuthTimeout    time.Duration `yaml:"auth_timeout" mapstructure:"auth_timeout"`

	// ExecTimeout is the watchdog ceiling for a remote command.
	ExecTimeout time.Duration `yaml:"exec_timeout" mapstructure:"exec_timeout"`

	ChunkSize int `yaml:"chunk_size" mapstructure:"chunk_size"`
}

// PingConfig controls network sweeps.
type PingConfig struct {
	ChunkSize int           `yaml:"chunk_size" mapstructure:"chunk_size"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// TCPPort is used when raw ICMP sockets aren't permitted.
	TCPPort int `yaml:"tcp_port" mapstructure:"tcp_port"`

	// Privileged selects raw ICMP sockets over unprivileged datagram ping.
	Privileged bool `yaml:"privileged" mapstructure:"privileged"`

	// Method is icmp (falling back to tcp when sockets are refused) or tcp.
	Method string `yaml:"method" mapstructure:"method"`
}

// HTTPConfig controls URL checks.
type HTTPConfig struct {
	ChunkSize int           `yaml:"chunk_size" mapstructure:"chunk_size"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Insecure  bool          `yaml:"insecure" mapstructure:"insecure"`
	MaxBody   int64         `yaml:"max_body" mapstructure:"max_body"`
}

// SNMPConfig controls SNMP polling.
type SNMPConfig struct {
	ChunkSize int           `yaml:"chunk_size" mapstructure:"chunk_size"`
	Community string        `yaml:"community" mapstructure:"community"`
	Port      int           `yaml:"port" mapstructure:"port"`
	Version   string        `yaml:"version" mapstructure:"version"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Retries   int           `yaml:"retries" mapstructure:"retries"`
}

// SelectionConfig controls the selection cache.
type SelectionConfig struct {
	CachePolicy string `yaml:"cache_policy" mapstructure:"cache_policy"`
}

// MetricsConfig controls the prometheus textfile export.
type MetricsConfig struct {
	// Textfile, when set, receives the metrics of each run.
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
	// Process adds go runtime and process collectors to the textfile.
	Process bool `yaml:"process" mapstructure:"process"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentConfigVersion,
		Store: StoreConfig{
			Path: "~/.local/share/fleet/fleet.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		SSH: SSHConfig{
			User:           "root",
			PrivateKey:     "~/.config/fleet/id_rsa",
			PublicKey:      "~/.config/fleet/id_rsa.pub",
			KnownHosts:     "~/.ssh/known_hosts",
			HostKeyPolicy:  HostKeyAcceptNew,
			ConnectTimeout: 10 * time.Second,
			BannerTimeout:  10 * time.Second,
			AuthTimeout:    10 * time.Second,
			ExecTimeout:    10 * time.Second,
			ChunkSize:      4,
		},
		Ping: PingConfig{
			ChunkSize: 64,
			Timeout:   5 * time.Second,
			TCPPort:   22,
			Method:    PingICMP,
		},
		HTTP: HTTPConfig{
			ChunkSize: 16,
			Timeout:   10 * time.Second,
			MaxBody:   64 * 1024,
		},
		SNMP: SNMPConfig{
			ChunkSize: 16,
			Community: "public",
			Port:      161,
			Version:   "1",
			Timeout:   5 * time.Second,
			Retries:   1,
		},
		Selection: SelectionConfig{
			CachePolicy: CacheMemoize,
		},
		Selections: make(map[string]string),
	}
}
