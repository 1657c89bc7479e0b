// Package config manages orchagent daemon settings: message-bus connection
// strings for the four logical namespaces, platform environment gates, and
// the tunables the Orches read at startup.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigDir is the system-wide settings directory. DefaultConfigPath
// does not consult it; it resolves under the user's home directory.
const DefaultConfigDir = "/etc/orchagent"

// Namespace identifies one of the four logical message-bus databases.
type Namespace int

const (
	ConfigDB Namespace = iota
	ApplDB
	StateDB
	CountersDB
)

// DefaultDBIndex returns the SONiC-convention Redis DB index for a namespace.
func (n Namespace) DefaultDBIndex() int {
	switch n {
	case ConfigDB:
		return 4
	case ApplDB:
		return 0
	case StateDB:
		return 6
	case CountersDB:
		return 2
	default:
		return -1
	}
}

const (
	// DefaultACLCounterPollInterval is how often AclOrch polls SAI counters.
	DefaultACLCounterPollInterval = 10 * time.Second
	// MinACLCounterPollInterval is the floor enforced on the configured value.
	MinACLCounterPollInterval = 5 * time.Second
	// DefaultBatchSize is what GetBatchSize returns when no batch size is
	// configured. No Consumer applies it: Consumer.Batch returns every
	// pending row.
	DefaultBatchSize = 128
)

// Config holds daemon settings, loaded from an on-disk YAML file and then
// overridden by environment variables and CLI flags, in that order.
type Config struct {
	// RedisAddr is the bus connection string shared by all four namespaces
	// (SONiC keeps them on one redis-server, split only by DB index).
	RedisAddr string `yaml:"redis_addr,omitempty"`

	// ASICVendor gates vendor-specific SAI behavior ("broadcom", "mellanox", ...).
	ASICVendor string `yaml:"asic_vendor,omitempty"`

	// OnieePlatform gates platform-specific capability tables.
	OnieePlatform string `yaml:"onie_platform,omitempty"`

	// ACLCounterPollInterval overrides DefaultACLCounterPollInterval; clamped
	// to MinACLCounterPollInterval at read time, never at load time, so
	// invalid config never silently corrupts what was actually requested.
	ACLCounterPollInterval time.Duration `yaml:"acl_counter_poll_interval,omitempty"`

	// BatchSize is the configured per-pass row count, read via GetBatchSize.
	// No Consumer applies it: Consumer.Batch returns every pending row.
	BatchSize int `yaml:"batch_size,omitempty"`

	// MACOverride forces a MAC address onto every created router interface,
	// mirroring orchagent's -m command line switch.
	MACOverride string `yaml:"mac_override,omitempty"`

	// SuppressRecordFile carries orchagent's record-file switch (-d inverted:
	// -d enables, this suppresses). This build writes no record files, so
	// nothing reads it.
	SuppressRecordFile bool `yaml:"suppress_record_file,omitempty"`
}

// DefaultConfigPath returns the default path for the on-disk settings file.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/orchagent_config.yaml"
	}
	return filepath.Join(home, ".orchagent", "config.yaml")
}

// Load reads settings from the default location.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigPath())
}

// LoadFrom reads settings from a specific path, then applies environment
// variable overrides. A missing file is not an error: it yields a Config
// seeded from environment and built-in defaults.
func LoadFrom(path string) (*Config, error) {
	c := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	c.applyEnvOverrides()
	return c, nil
}

// applyEnvOverrides lets ASIC_VENDOR / onie_platform / ORCHAGENT_REDIS_ADDR
// take precedence over whatever the on-disk file says, matching the SONiC
// convention of sourcing /usr/share/sonic/platform and /etc/sonic/asic_type
// into daemon environments before exec.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ASIC_VENDOR"); v != "" {
		c.ASICVendor = v
	}
	if v := os.Getenv("onie_platform"); v != "" {
		c.OnieePlatform = v
	}
	if v := os.Getenv("ORCHAGENT_REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("ORCHAGENT_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.BatchSize = n
		}
	}
}

// Save writes settings to the default location.
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigPath())
}

// SaveTo writes settings to a specific path.
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// GetRedisAddr returns the bus address with a fallback default.
func (c *Config) GetRedisAddr() string {
	if c.RedisAddr != "" {
		return c.RedisAddr
	}
	return "localhost:6379"
}

// GetACLCounterPollInterval returns the configured interval, clamped to
// MinACLCounterPollInterval, or DefaultACLCounterPollInterval if unset.
func (c *Config) GetACLCounterPollInterval() time.Duration {
	if c.ACLCounterPollInterval <= 0 {
		return DefaultACLCounterPollInterval
	}
	if c.ACLCounterPollInterval < MinACLCounterPollInterval {
		return MinACLCounterPollInterval
	}
	return c.ACLCounterPollInterval
}

// GetBatchSize returns the configured batch size with a fallback default.
func (c *Config) GetBatchSize() int {
	if c.BatchSize > 0 {
		return c.BatchSize
	}
	return DefaultBatchSize
}

// VendorRequiresWarmBoot reports whether the configured ASIC vendor is one
// that orchagent must treat specially during mux/fast-reboot handling.
// Only mellanox and broadcom are recognized today.
func (c *Config) VendorRequiresWarmBoot() bool {
	return c.ASICVendor == "mellanox" || c.ASICVendor == "broadcom"
}

// Clear resets all settings to defaults.
func (c *Config) Clear() {
	*c = Config{}
}
