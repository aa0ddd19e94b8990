package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/willibrandon/chronosnap/pkg/recorder"
)

// DefaultConfigName is looked up in the home directory when no config file is given.
const DefaultConfigName = ".chronosnap.yaml"

// Environment variables overriding the config file.
const (
	EnvAddr   = "CHRONOSNAP_ADDR"
	EnvOutput = "CHRONOSNAP_OUTPUT"
)

// Config holds the settings shared by all commands.
type Config struct {
	// Addr is the address of a headless dlv server to attach to.
	Addr string `yaml:"addr"`
	// Output is the default snapshot destination.
	Output string `yaml:"output"`
	// Compression is auto, none or zstd.
	Compression string `yaml:"compression"`
	// CacheSize is the number of decoded chunks kept when reading snapshots.
	CacheSize int `yaml:"cache_size"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Output:      recorder.DefaultPath,
		Compression: "auto",
		CacheSize:   recorder.DefaultCacheSize,
	}
}

// LoadConfig reads the YAML file at path over the defaults. An empty path reads
// ~/.chronosnap.yaml if it exists.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		home, err := os.UserHomeDir()
		if err != nil {
			return cfg, nil
		}
		path = filepath.Join(home, DefaultConfigName)
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err) && !explicit:
		return cfg, nil
	case err != nil:
		return Config{}, errors.Wrapf(err, "reading config %s failed", path)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, errors.Wrapf(err, "parsing config %s failed", path)
	}
	return cfg, nil
}

// ApplyEnv overrides settings from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvAddr); ok && v != "" {
		c.Addr = v
	}
	if v, ok := lookup(EnvOutput); ok && v != "" {
		c.Output = v
	}
}
