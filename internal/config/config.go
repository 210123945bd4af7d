package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"

	"phofmit/internal/phofmit"
)

// DefaultSnapshotFilename is the template used to name new snapshot files.
const DefaultSnapshotFilename = "{hostname}-{path}-{now}.phofmit.json"

// Config represents the main configuration for phofmit.
type Config struct {
	HostID           string `toml:"host_id"`
	BaseDir          string `toml:"base_dir"`
	LogDir           string `toml:"log_dir"`
	DirMode          string `toml:"dir_mode"`          // octal, e.g. "0777"
	SnapshotFilename string `toml:"snapshot_filename"` // see phofmit.SnapshotFilename
	Workers          int    `toml:"workers,omitempty"` // 0 means one per CPU

	// Scanner holds the defaults for new snapshots; command line options
	// override them.
	Scanner    phofmit.RawScannerConfig `toml:"scanner"`
	Cache      CacheConfig              `toml:"cache"`
	Encryption EncryptionConfig         `toml:"encryption"`
	Stores     []StoreConfig            `toml:"stores"`
}

// CacheConfig represents configuration for the scan cache database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type CacheConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// EncryptionConfig holds paths to the age key pair used for snapshot encryption.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
	Armor          bool   `toml:"armor,omitempty"` // write ASCII-armored age files
}

// StoreConfig represents configuration for a snapshot store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StoreConfig struct {
	Type string `toml:"type"` // "memory", "filesystem" or "s3"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"` // for S3-compatible services
	// Static credentials; when empty the default AWS credential chain is used.
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// Filesystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`
}

// NewConfig creates a new Config with the provided values and default paths.
func NewConfig(hostID, baseDir string) *Config {
	return &Config{
		HostID:           hostID,
		BaseDir:          baseDir,
		LogDir:           filepath.Join(baseDir, "log"),
		DirMode:          "0777",
		SnapshotFilename: DefaultSnapshotFilename,
		Cache: CacheConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "cache"),
		},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "phofmit.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "phofmit.key"),
		},
		Stores: []StoreConfig{
			{Type: "filesystem", Name: "local", FSRoot: filepath.Join(baseDir, "snapshots")},
		},
	}
}

// ParseDirMode parses an octal permission string such as "0755" or "755".
// An empty string yields phofmit.DefaultDirMode.
func ParseDirMode(s string) (fs.FileMode, error) {
	if s == "" {
		return phofmit.DefaultDirMode, nil
	}
	n, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid dir mode %q: %w", s, err)
	}
	if n > 0o7777 {
		return 0, fmt.Errorf("invalid dir mode %q: out of range", s)
	}
	return fs.FileMode(n), nil
}

// LockDir is where mirror runs take their per-target locks.
func (c *Config) LockDir() string {
	return filepath.Join(c.BaseDir, "locks")
}

// Store returns the store named name.
func (c *Config) Store(name string) (StoreConfig, bool) {
	for _, s := range c.Stores {
		if s.Name == name {
			return s, true
		}
	}
	return StoreConfig{}, false
}

// Validate checks the fields that cannot be checked at decode time.
func (c *Config) Validate() error {
	if _, err := ParseDirMode(c.DirMode); err != nil {
		return err
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if _, err := phofmit.NormalizeConfig(c.Scanner); err != nil {
		return fmt.Errorf("[scanner]: %w", err)
	}
	seen := make(map[string]bool, len(c.Stores))
	for _, s := range c.Stores {
		if s.Name == "" {
			return fmt.Errorf("store of type %q has no name", s.Type)
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate store name %q", s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault reads the config at path. A missing file is not an error:
// the defaults for hostID and baseDir are returned instead.
func LoadOrDefault(path, hostID, baseDir string) (*Config, error) {
	cfg, err := ReadFromFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewConfig(hostID, baseDir), nil
	}
	return cfg, err
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to a new config file at path. It refuses to overwrite an
// existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
