package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// resourceTools are the tools looked up under $RESOURCEPATH/bin when set
var resourceTools = []string{"blkid", "smartctl"}

type Config struct {
	// Platform: "auto", "linux", "darwin" or "cygwin"
	Platform string `yaml:"platform"`
	LogLevel string `yaml:"log_level"`
	// BootRecords reads the first sector of every object; on unless set false
	BootRecords    *bool         `yaml:"boot_records,omitempty"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
	// CaptureDir replays recorded command output instead of running tools
	CaptureDir string `yaml:"capture_dir,omitempty"`
	// RecordDir saves every successful capture for later replay
	RecordDir string `yaml:"record_dir,omitempty"`
	// Database is the snapshot history file
	Database string `yaml:"database,omitempty"`
	// Commands overrides the binary used for a tool, e.g. lshw: /usr/sbin/lshw
	Commands map[string]string `yaml:"commands,omitempty"`
}

// defaultConfig provides baseline settings
var defaultConfig = Config{
	Platform:       "auto",
	LogLevel:       "warn",
	CommandTimeout: 10 * time.Second,
}

// Default returns the built-in configuration
func Default() *Config {
	cfg := defaultConfig
	cfg.Commands = map[string]string{}
	return &cfg
}

// Candidates lists the config files tried when no path is given, in order
func Candidates() []string {
	return []string{
		"/etc/disktopo/config.yaml",
		filepath.Join(os.Getenv("HOME"), ".config/disktopo/config.yaml"),
		"config.yaml",
	}
}

func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		// Try default locations
		for _, c := range Candidates() {
			if _, err := os.Stat(c); err == nil {
				path = c
				break
			}
		}
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err != nil && explicit:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	// Apply defaults for missing fields
	if cfg.Platform == "" {
		cfg.Platform = defaultConfig.Platform
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultConfig.LogLevel
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = defaultConfig.CommandTimeout
	}
	if cfg.Commands == nil {
		cfg.Commands = map[string]string{}
	}

	return cfg, nil
}

// BootRecordsEnabled reports whether first sectors should be read
func (c *Config) BootRecordsEnabled() bool {
	return c.BootRecords == nil || *c.BootRecords
}

// CommandPaths returns the binary override for each tool. Tools bundled
// under $RESOURCEPATH/bin are used unless explicitly overridden.
func (c *Config) CommandPaths() map[string]string {
	paths := make(map[string]string, len(c.Commands)+len(resourceTools))
	if res := os.Getenv("RESOURCEPATH"); res != "" {
		for _, tool := range resourceTools {
			paths[tool] = filepath.Join(res, "bin", tool)
		}
	}
	for tool, p := range c.Commands {
		paths[tool] = p
	}
	return paths
}
