// Package config handles cds.toml archive configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "cds.toml"

// Mode selects what the process does with archives.
type Mode string

const (
	ModeOff         Mode = "off"
	ModeUse         Mode = "use"
	ModeAuto        Mode = "auto"
	ModeDumpStatic  Mode = "dump-static"
	ModeDumpDynamic Mode = "dump-dynamic"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeOff, ModeUse, ModeAuto, ModeDumpStatic, ModeDumpDynamic:
		return true
	}
	return false
}

// Dumping reports whether the mode produces an archive.
func (m Mode) Dumping() bool {
	return m == ModeDumpStatic || m == ModeDumpDynamic
}

// Config represents a cds.toml configuration.
type Config struct {
	Archive ArchiveConfig `toml:"archive"`
	Log     LogConfig     `toml:"log"`
	Build   BuildConfig   `toml:"build"`

	// Dir is the directory containing the cds.toml file (set at load time).
	Dir string `toml:"-"`
}

// ArchiveConfig selects and locates archives.
type ArchiveConfig struct {
	Mode Mode   `toml:"mode"`
	Path string `toml:"path"`
	// Top is the dynamic archive layered on Path.
	Top string `toml:"top"`
	// Require makes a mapping failure fatal instead of disabling use mode.
	Require bool `toml:"require"`
}

// LogConfig configures diagnostics.
type LogConfig struct {
	Level              string `toml:"level"`
	File               string `toml:"file"`
	LambdaFormInvokers bool   `toml:"lambda-form-invokers"`
	ClassList          string `toml:"classlist"`
}

// BuildConfig overrides the build identity recorded in archives.
type BuildConfig struct {
	Release    string `toml:"release"`
	DebugLevel string `toml:"debug-level"`
	VMInfo     string `toml:"vm-info"`
}

// Default returns the configuration used when no cds.toml exists.
func Default(dir string) *Config {
	c := &Config{Dir: dir}
	c.applyDefaults()
	return c
}

// Load parses a cds.toml file from the given directory and applies
// environment overrides.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &c, nil
}

// FindAndLoad walks up from startDir to find a cds.toml file, then loads
// and returns it. Without one, it returns the defaults for startDir with
// environment overrides applied.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}
	start := dir

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			c := &Config{Dir: start}
			if err := c.applyEnv(); err != nil {
				return nil, err
			}
			c.applyDefaults()
			if err := c.Validate(); err != nil {
				return nil, err
			}
			return c, nil
		}
		dir = parent
	}
}

func (c *Config) applyDefaults() {
	if c.Archive.Mode == "" {
		c.Archive.Mode = ModeAuto
	}
	if c.Archive.Path == "" {
		c.Archive.Path = filepath.Join("build", "classes.cds")
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Build.Release == "" {
		c.Build.Release = "0.1.0"
	}
	if c.Build.DebugLevel == "" {
		c.Build.DebugLevel = "release"
	}
}

// Validate checks field values.
func (c *Config) Validate() error {
	if !c.Archive.Mode.Valid() {
		return fmt.Errorf("archive.mode: unknown mode %q", c.Archive.Mode)
	}
	if c.Archive.Mode == ModeDumpDynamic && c.Archive.Top == "" {
		return errors.New("archive.top: required for dump-dynamic")
	}
	if _, err := c.Verbosity(); err != nil {
		return err
	}
	return nil
}

// Verbosity maps log.level to a commonlog verbosity.
func (c *Config) Verbosity() (int, error) {
	switch strings.ToLower(c.Log.Level) {
	case "critical":
		return -1, nil
	case "error":
		return 0, nil
	case "warning":
		return 1, nil
	case "notice":
		return 2, nil
	case "info":
		return 3, nil
	case "debug":
		return 4, nil
	}
	return 0, fmt.Errorf("log.level: unknown level %q", c.Log.Level)
}

// ---------------------------------------------------------------------------
// Environment overrides
// ---------------------------------------------------------------------------

// Environment variables that override the file.
const (
	EnvArchiveMode    = "CDS_ARCHIVE_MODE"
	EnvArchivePath    = "CDS_ARCHIVE_PATH"
	EnvArchiveTop     = "CDS_ARCHIVE_TOP"
	EnvLogLambdaForms = "CDS_LOG_LAMBDA_FORMS"
)

// applyEnv applies overrides from the process environment, falling back to
// a .env file next to the configuration. The process environment wins.
func (c *Config) applyEnv() error {
	dotenv, err := godotenv.Read(filepath.Join(c.Dir, ".env"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("cannot read .env: %w", err)
	}
	get := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}

	if v, ok := get(EnvArchiveMode); ok {
		c.Archive.Mode = Mode(strings.TrimSpace(v))
	}
	if v, ok := get(EnvArchivePath); ok {
		c.Archive.Path = v
	}
	if v, ok := get(EnvArchiveTop); ok {
		c.Archive.Top = v
	}
	if v, ok := get(EnvLogLambdaForms); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvLogLambdaForms, err)
		}
		c.Log.LambdaFormInvokers = b
	}
	return nil
}

// ---------------------------------------------------------------------------
// Paths
// ---------------------------------------------------------------------------

func (c *Config) abs(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// ArchivePath returns the absolute base archive path.
func (c *Config) ArchivePath() string { return c.abs(c.Archive.Path) }

// TopPath returns the absolute dynamic archive path, empty if unset.
func (c *Config) TopPath() string { return c.abs(c.Archive.Top) }

// ClassListPath returns the absolute class list path, empty if unset.
func (c *Config) ClassListPath() string { return c.abs(c.Log.ClassList) }

// LogFilePath returns the absolute log file path, empty for stderr.
func (c *Config) LogFilePath() string { return c.abs(c.Log.File) }
