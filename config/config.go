package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromium/axiom-sub003/internal/util"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override, e.g. AXIOM_LOG_LVL.
const EnvPrefix = "AXIOM"

// Log verbosity as given on the command line, 1 (error) to 5 (trace).
const (
	ErrorVerbose = iota + 1
	WarnVerbose
	InfoVerbose
	DebugVerbose
	TraceVerbose
)

// Default configuration constants. See [Config] for field descriptions.
const (
	DefaultLogLvl = util.InfoLevel

	// DefaultRoot is the name of the in-memory root file system
	DefaultRoot = "axiom"

	DefaultExeDir  = "/exe"
	DefaultHomeDir = "/home"

	// DefaultStreamHighWater bounds pipes created for command stdio
	DefaultStreamHighWater = 64

	// DefaultExecTimeout is the per command timeout in seconds; 0 disables it
	DefaultExecTimeout = 0.0

	// DefaultCacheTTL is how long a value loaded from a data source is reused, in seconds
	DefaultCacheTTL = 30.0

	DefaultRemoteListen = "127.0.0.1:7070"
	DefaultMetrics      = false

	DefaultFsName = "axiom"
	DefaultName   = "axiom"

	// DefaultAttrTimeout is the FUSE attribute cache timeout in seconds
	DefaultAttrTimeout = 1.0

	// DefaultEntryTimeout is the FUSE directory entry cache timeout in seconds
	DefaultEntryTimeout = 1.0
)

// Config contains runtime configuration values.
type Config struct {
	MountOptions
	LogLvl util.LogLevel

	DefaultRoot     string   // Name of the in-memory root file system (Default "axiom")
	ExeDir          string   // Directory the built-in commands are installed into (Default "/exe")
	HomeDir         string   // Initial working directory of commands (Default "/home")
	StreamHighWater int      // Queue bound of command stdio pipes (Default 64)
	ExecTimeout     float64  // Per command timeout in seconds, 0 for none (Default 0)
	CacheTTL        float64  // Data source cache lifetime in seconds (Default 30)
	RemoteListen    string   // Listen address of the remote file system server (Default 127.0.0.1:7070)
	Metrics         bool     // Whether /metrics is served next to the remote endpoint (Default false)
	RemoteOrigins   []string // Browser origins allowed on the remote endpoint, empty allows any
	SeedFile        string   // Optional JSON or YAML file of nodes created at startup

	// Mounts are backends attached to the namespace at startup.
	Mounts []MountConfig
}

// ExecTimeoutDuration converts ExecTimeout.
func (c *Config) ExecTimeoutDuration() time.Duration {
	return seconds(c.ExecTimeout)
}

// CacheTTLDuration converts CacheTTL.
func (c *Config) CacheTTLDuration() time.Duration {
	return seconds(c.CacheTTL)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// ConfigOverride uses pointer fields to distinguish between unset and zero values
// when loading partial configuration. See [Config] for field descriptions.
type ConfigOverride struct {
	LogLvl          *int           `yaml:"log_lvl,omitempty" json:"log_lvl,omitempty" envconfig:"LOG_LVL"`
	DefaultRoot     *string        `yaml:"default_root,omitempty" json:"default_root,omitempty" envconfig:"DEFAULT_ROOT"`
	ExeDir          *string        `yaml:"exe_dir,omitempty" json:"exe_dir,omitempty" envconfig:"EXE_DIR"`
	HomeDir         *string        `yaml:"home_dir,omitempty" json:"home_dir,omitempty" envconfig:"HOME_DIR"`
	StreamHighWater *int           `yaml:"stream_high_water,omitempty" json:"stream_high_water,omitempty" envconfig:"STREAM_HIGH_WATER"`
	ExecTimeout     *float64       `yaml:"exec_timeout,omitempty" json:"exec_timeout,omitempty" envconfig:"EXEC_TIMEOUT"`
	CacheTTL        *float64       `yaml:"cache_ttl,omitempty" json:"cache_ttl,omitempty" envconfig:"CACHE_TTL"`
	RemoteListen    *string        `yaml:"remote_listen,omitempty" json:"remote_listen,omitempty" envconfig:"REMOTE_LISTEN"`
	Metrics         *bool          `yaml:"metrics,omitempty" json:"metrics,omitempty" envconfig:"METRICS"`
	RemoteOrigins   *[]string      `yaml:"remote_origins,omitempty" json:"remote_origins,omitempty" envconfig:"REMOTE_ORIGINS"`
	SeedFile        *string        `yaml:"seed_file,omitempty" json:"seed_file,omitempty" envconfig:"SEED_FILE"`
	Mounts          *[]MountConfig `yaml:"mounts,omitempty" json:"mounts,omitempty" ignored:"true"`

	Debug        *bool    `yaml:"debug,omitempty" json:"debug,omitempty" envconfig:"FUSE_DEBUG"`
	FsName       *string  `yaml:"fs_name,omitempty" json:"fs_name,omitempty" envconfig:"FS_NAME"`
	Name         *string  `yaml:"name,omitempty" json:"name,omitempty" envconfig:"NAME"`
	AttrTimeout  *float64 `yaml:"attr_timeout,omitempty" json:"attr_timeout,omitempty" envconfig:"ATTR_TIMEOUT"`
	EntryTimeout *float64 `yaml:"entry_timeout,omitempty" json:"entry_timeout,omitempty" envconfig:"ENTRY_TIMEOUT"`
}

// NewDefaultConfig creates a new Config with all default values.
func NewDefaultConfig() *Config {
	return &Config{
		MountOptions: MountOptions{
			FsName:       DefaultFsName,
			Name:         DefaultName,
			AttrTimeout:  DefaultAttrTimeout,
			EntryTimeout: DefaultEntryTimeout,
		},
		LogLvl:          DefaultLogLvl,
		DefaultRoot:     DefaultRoot,
		ExeDir:          DefaultExeDir,
		HomeDir:         DefaultHomeDir,
		StreamHighWater: DefaultStreamHighWater,
		ExecTimeout:     DefaultExecTimeout,
		CacheTTL:        DefaultCacheTTL,
		RemoteListen:    DefaultRemoteListen,
		Metrics:         DefaultMetrics,
	}
}

// NewConfig returns the defaults with override applied. A nil override
// yields the defaults.
func NewConfig(override *ConfigOverride) *Config {
	cfg := NewDefaultConfig()
	if override != nil {
		cfg.Merge(override)
	}
	return cfg
}

// VerboseToLogLevel clamps a 1-5 verbosity and maps it onto a log level.
func VerboseToLogLevel(verbose int) util.LogLevel {
	verbose = min(max(verbose, ErrorVerbose), TraceVerbose)
	lvls := [5]util.LogLevel{util.ErrorLevel, util.WarnLevel, util.InfoLevel, util.DebugLevel, util.TraceLevel}
	return lvls[verbose-1]
}

// Merge applies non-nil values from override onto this Config.
// This allows partial configuration updates while preserving existing values.
func (c *Config) Merge(override *ConfigOverride) {
	if override.LogLvl != nil {
		c.LogLvl = VerboseToLogLevel(*override.LogLvl)
	}
	if override.DefaultRoot != nil {
		c.DefaultRoot = *override.DefaultRoot
	}
	if override.ExeDir != nil {
		c.ExeDir = *override.ExeDir
	}
	if override.HomeDir != nil {
		c.HomeDir = *override.HomeDir
	}
	if override.StreamHighWater != nil {
		c.StreamHighWater = *override.StreamHighWater
	}
	if override.ExecTimeout != nil {
		c.ExecTimeout = *override.ExecTimeout
	}
	if override.CacheTTL != nil {
		c.CacheTTL = *override.CacheTTL
	}
	if override.RemoteListen != nil {
		c.RemoteListen = *override.RemoteListen
	}
	if override.Metrics != nil {
		c.Metrics = *override.Metrics
	}
	if override.RemoteOrigins != nil {
		c.RemoteOrigins = append([]string(nil), *override.RemoteOrigins...)
	}
	if override.SeedFile != nil {
		c.SeedFile = *override.SeedFile
	}
	if override.Mounts != nil {
		c.Mounts = append([]MountConfig(nil), *override.Mounts...)
	}
	if override.Debug != nil {
		c.Debug = *override.Debug
	}
	if override.FsName != nil {
		c.FsName = *override.FsName
	}
	if override.Name != nil {
		c.Name = *override.Name
	}
	if override.AttrTimeout != nil {
		c.AttrTimeout = *override.AttrTimeout
	}
	if override.EntryTimeout != nil {
		c.EntryTimeout = *override.EntryTimeout
	}
}

// LoadConfigOverrideFile loads configuration overrides from a file without merging.
// Supports both YAML (.yaml, .yml) and JSON (.json) formats.
func LoadConfigOverrideFile(path string) (*ConfigOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var override ConfigOverride

	// Determine format by file extension
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config file extension: %s", path)
	}

	return &override, nil
}

// LoadEnvOverride reads AXIOM_* environment variables. Only variables that are
// set produce non-nil fields.
func LoadEnvOverride() (*ConfigOverride, error) {
	var override ConfigOverride
	if err := envconfig.Process(EnvPrefix, &override); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	return &override, nil
}

// NewConfigFromFile creates a new Config by merging file overrides with defaults.
// This is a convenience function that combines NewDefaultConfig, LoadConfigOverrideFile, and Merge.
func NewConfigFromFile(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	override, err := LoadConfigOverrideFile(path)
	if err != nil {
		return nil, err
	}
	cfg.Merge(override)
	return cfg, nil
}

// Load layers defaults, the optional file at path and the environment, in
// that order.
func Load(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	if path != "" {
		override, err := LoadConfigOverrideFile(path)
		if err != nil {
			return nil, err
		}
		cfg.Merge(override)
	}
	env, err := LoadEnvOverride()
	if err != nil {
		return nil, err
	}
	cfg.Merge(env)
	return cfg, nil
}
