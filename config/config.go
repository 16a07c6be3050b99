// Package config loads the chainfs configuration.
//
// Configuration is read from a single YAML file named by the --config
// flag or, failing that, the CHAINFS_CONFIG environment variable. If
// neither is set the defaults are used. Command-line flags override
// whatever the file says.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/keks/chainfs"
	"github.com/keks/chainfs/blkfile"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "CHAINFS_CONFIG"

// DefaultImage is the image file used when none is configured.
const DefaultImage = ".disk"

// Config is the complete chainfs configuration.
type Config struct {
	// Image is the path of the disk image.
	// Default: .disk
	Image string `yaml:"image"`

	// BlockSize is the block size the image is formatted with.
	// Default: 512
	BlockSize int `yaml:"block_size"`

	// Mount configures the FUSE mount.
	Mount MountConfig `yaml:"mount"`

	// Log configures diagnostic output.
	Log LogConfig `yaml:"log"`
}

// MountConfig configures the FUSE mount.
type MountConfig struct {
	// Mountpoint is the directory the filesystem is mounted on. It may
	// also be given on the command line.
	Mountpoint string `yaml:"mountpoint"`

	// AllowOther lets other users access the mount. Requires
	// user_allow_other in /etc/fuse.conf.
	AllowOther bool `yaml:"allow_other"`

	// Debug logs every FUSE request.
	Debug bool `yaml:"debug"`

	// FsName is shown as the source in the mount table.
	// Default: chainfs
	FsName string `yaml:"fs_name"`
}

// LogConfig configures the logger.
type LogConfig struct {
	// Level is one of debug, info, warn or error.
	// Default: info
	Level string `yaml:"level"`

	// Format is text or json.
	// Default: text
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Image:     DefaultImage,
		BlockSize: chainfs.DefaultBlockSize,
		Mount: MountConfig{
			FsName: "chainfs",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the file at path over the defaults. An empty path falls
// back to $CHAINFS_CONFIG, and to the plain defaults if that is unset
// too.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}

	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Image == "" {
		errs = append(errs, fmt.Errorf("image is required"))
	}

	if c.BlockSize < blkfile.MinBlockSize {
		errs = append(errs, fmt.Errorf("block_size must be at least %d, got %d", blkfile.MinBlockSize, c.BlockSize))
	}

	if _, err := c.Log.level(); err != nil {
		errs = append(errs, err)
	}

	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be one of: [text json], got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (l LogConfig) level() (slog.Level, error) {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}

	return 0, fmt.Errorf("log.level must be one of: [debug info warn error], got %q", l.Level)
}

// NewLogger returns a logger writing to w as configured.
func (l LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := l.level()
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	switch l.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}

	return nil, fmt.Errorf("unknown log format %q", l.Format)
}
