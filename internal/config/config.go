package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/benaskins/keystash/internal/keychain"
	"gopkg.in/yaml.v3"
)

// Config holds persistent settings loaded from ~/.keystash/config.yaml.
type Config struct {
	// Kind is the item kind commands operate on ("internet-password" or
	// "generic-password").
	Kind string `yaml:"kind"`
	// Owner tags records created by the CLI (integer or four-char code).
	Owner        string  `yaml:"owner"`
	AuditLog     string  `yaml:"audit_log"`
	MetadataFile string  `yaml:"metadata_file"`
	LogLevel     string  `yaml:"log_level"`
	Keyring      Keyring `yaml:"keyring"`
}

// Keyring configures the desktop keyring used on non-darwin hosts.
type Keyring struct {
	ServiceName string   `yaml:"service_name"`
	Backends    []string `yaml:"backends"`
	FileDir     string   `yaml:"file_dir"`
}

// Home returns the keystash home directory: ~/.keystash.
func Home() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".keystash"), nil
}

// DefaultPath returns the default config file path: ~/.keystash/config.yaml.
func DefaultPath() string {
	home, err := Home()
	if err != nil {
		return ""
	}
	return filepath.Join(home, "config.yaml")
}

// Load reads a YAML config file from path. If the file does not exist,
// it returns an empty Config and no error. An empty or all-comment file
// also returns an empty Config with no error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that every set field parses.
func (c *Config) Validate() error {
	if _, err := keychain.ParseKind(c.Kind); err != nil {
		return err
	}
	if c.Owner != "" {
		if _, err := keychain.ParseOwner(c.Owner); err != nil {
			return err
		}
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	for _, b := range c.Keyring.Backends {
		if strings.TrimSpace(b) == "" {
			return errors.New("keyring.backends: empty backend name")
		}
	}
	return nil
}

// ItemKind returns the configured kind, defaulting to internet passwords.
func (c *Config) ItemKind() keychain.Kind {
	k, err := keychain.ParseKind(c.Kind)
	if err != nil {
		return keychain.InternetPassword
	}
	return k
}

// OwnerTag returns the configured owner tag, or nil when unset.
func (c *Config) OwnerTag() *keychain.Owner {
	if c.Owner == "" {
		return nil
	}
	o, err := keychain.ParseOwner(c.Owner)
	if err != nil {
		return nil
	}
	return &o
}

// Level returns the configured log level, defaulting to info.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// AuditLogPath returns the audit log path, defaulting to ~/.keystash/audit.log.
func (c *Config) AuditLogPath() (string, error) {
	return c.pathOr(c.AuditLog, "audit.log")
}

// MetadataPath returns the metadata file path, defaulting to
// ~/.keystash/metadata.json.
func (c *Config) MetadataPath() (string, error) {
	return c.pathOr(c.MetadataFile, "metadata.json")
}

func (c *Config) pathOr(set, name string) (string, error) {
	if set != "" {
		return expandHome(set)
	}
	home, err := Home()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, name), nil
}

// SystemOptions maps the keyring section onto facility options.
func (c *Config) SystemOptions() (keychain.SystemOptions, error) {
	opts := keychain.SystemOptions{
		ServiceName: c.Keyring.ServiceName,
		Backends:    c.Keyring.Backends,
	}
	if c.Keyring.FileDir != "" {
		dir, err := expandHome(c.Keyring.FileDir)
		if err != nil {
			return opts, err
		}
		opts.FileDir = dir
	}
	return opts, nil
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}
