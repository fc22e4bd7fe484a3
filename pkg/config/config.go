// Package config handles jvmengine.toml and jvmengine.yaml run
// configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/daimatz/jvmengine/pkg/trace"
	"github.com/daimatz/jvmengine/pkg/vm"
)

// Config is a run configuration. Fields left out of a file keep their
// defaults.
type Config struct {
	ClassPath    []string `toml:"class-path" yaml:"class-path"`
	JavaBaseJmod string   `toml:"java-base-jmod" yaml:"java-base-jmod"`
	Construction string   `toml:"construction" yaml:"construction"`
	Recursive    bool     `toml:"recursive" yaml:"recursive"`
	MaxDepth     int      `toml:"max-depth" yaml:"max-depth"`
	Log          Log      `toml:"log" yaml:"log"`
	Trace        Trace    `toml:"trace" yaml:"trace"`

	// Dir is the directory of the loaded file. Relative class path entries
	// are resolved against it.
	Dir string `toml:"-" yaml:"-"`
}

type Log struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"` // console or json
}

type Trace struct {
	Verbose bool `toml:"verbose" yaml:"verbose"`
	// Output is a file receiving the CBOR trace, empty for none.
	Output string `toml:"output" yaml:"output"`
}

func Default() *Config {
	return &Config{
		ClassPath:    []string{"."},
		Construction: vm.Deferred.String(),
		Recursive:    true,
		MaxDepth:     vm.DefaultMaxDepth,
		Log:          Log{Level: "info", Format: "console"},
	}
}

// Load reads a configuration file. The format follows the extension:
// .toml, .yaml or .yml.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	defer f.Close()

	c := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		md, err := toml.NewDecoder(f).Decode(c)
		if err != nil {
			return nil, fmt.Errorf("parse error in %s: %w", path, err)
		}
		if keys := md.Undecoded(); len(keys) > 0 {
			return nil, fmt.Errorf("%s: unknown keys %v", path, keys)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse error in %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%s: unknown configuration format %q", path, ext)
	}

	if c.Dir, err = filepath.Abs(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func (c *Config) Validate() error {
	if _, err := vm.ParseConstruction(c.Construction); err != nil {
		return err
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("max-depth must not be negative, got %d", c.MaxDepth)
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("log format %q: want console or json", c.Log.Format)
	}
	return nil
}

// ClassPathEntries returns the class path with relative entries resolved
// against Dir.
func (c *Config) ClassPathEntries() []string {
	entries := make([]string, 0, len(c.ClassPath))
	for _, e := range c.ClassPath {
		if c.Dir != "" && !filepath.IsAbs(e) {
			e = filepath.Join(c.Dir, e)
		}
		entries = append(entries, e)
	}
	return entries
}

// Jmod returns the configured java.base.jmod or discovers one.
func (c *Config) Jmod() string {
	if c.JavaBaseJmod != "" {
		return c.JavaBaseJmod
	}
	return FindJmod()
}

// FindJmod locates java.base.jmod from JAVA_BASE_JMOD, then JAVA_HOME,
// then the usual OpenJDK install locations. It returns "" when none exists.
func FindJmod() string {
	if env := os.Getenv("JAVA_BASE_JMOD"); env != "" {
		return env
	}
	if javaHome := os.Getenv("JAVA_HOME"); javaHome != "" {
		p := filepath.Join(javaHome, "jmods", "java.base.jmod")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	matches, _ := filepath.Glob("/usr/lib/jvm/java-*-openjdk-*/jmods/java.base.jmod")
	if len(matches) > 0 {
		return matches[0]
	}
	return ""
}

// EngineOptions converts the configuration into engine options.
func (c *Config) EngineOptions(logger zerolog.Logger, sink trace.Sink) (vm.Options, error) {
	construction, err := vm.ParseConstruction(c.Construction)
	if err != nil {
		return vm.Options{}, err
	}
	return vm.Options{
		Construction: construction,
		Recursive:    c.Recursive,
		MaxDepth:     c.MaxDepth,
		Verbose:      c.Trace.Verbose,
		Logger:       logger,
		Trace:        sink,
	}, nil
}

// Logger builds the logger described by the Log section.
func (c *Config) Logger(w io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		return zerolog.Nop(), err
	}
	if c.Log.Format != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}
