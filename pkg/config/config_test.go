package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/daimatz/jvmengine/pkg/trace"
	"github.com/daimatz/jvmengine/pkg/vm"
)

func write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name, file, content string
	}{
		{"toml", "jvmengine.toml", `
class-path = ["classes", "/opt/lib/app.jar"]
construction = "eager"
recursive = false
max-depth = 64

[log]
level = "debug"
format = "json"

[trace]
verbose = true
output = "run.cbor"
`},
		{"yaml", "jvmengine.yaml", `
class-path: [classes, /opt/lib/app.jar]
construction: eager
recursive: false
max-depth: 64
log:
  level: debug
  format: json
trace:
  verbose: true
  output: run.cbor
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := write(t, tt.file, tt.content)
			c, err := Load(path)
			if err != nil {
				t.Fatal(err)
			}
			if c.Construction != "eager" || c.Recursive || c.MaxDepth != 64 {
				t.Errorf("engine settings: %+v", c)
			}
			if c.Log != (Log{Level: "debug", Format: "json"}) || c.Trace != (Trace{Verbose: true, Output: "run.cbor"}) {
				t.Errorf("log/trace settings: %+v %+v", c.Log, c.Trace)
			}
			entries := c.ClassPathEntries()
			if len(entries) != 2 || entries[0] != filepath.Join(filepath.Dir(path), "classes") || entries[1] != "/opt/lib/app.jar" {
				t.Errorf("class path: %v", entries)
			}
		})
	}
}

func TestLoadKeepsDefaults(t *testing.T) {
	c, err := Load(write(t, "jvmengine.toml", "[trace]\nverbose = true\n"))
	if err != nil {
		t.Fatal(err)
	}
	if !c.Recursive || c.MaxDepth != vm.DefaultMaxDepth || c.Construction != "deferred" || c.Log.Level != "info" {
		t.Errorf("defaults lost: %+v", c)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name, file, content, want string
	}{
		{"unknown yaml field", "c.yaml", "colour: blue\n", "colour"},
		{"unknown toml key", "c.toml", "[log]\ncolour = \"blue\"\n", "log.colour"},
		{"bad construction", "c.toml", `construction = "lazy"`, "lazy"},
		{"negative depth", "c.yml", "max-depth: -1\n", "max-depth"},
		{"bad level", "c.toml", "[log]\nlevel = \"loud\"\n", "log level"},
		{"bad format", "c.toml", "[log]\nformat = \"xml\"\n", "log format"},
		{"unknown extension", "c.ini", "", "unknown configuration format"},
		{"malformed toml", "c.toml", "class-path = [", "parse error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(write(t, tt.file, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("got %v, want error containing %q", err, tt.want)
			}
		})
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestEngineOptions(t *testing.T) {
	c := Default()
	c.Construction = "eager"
	c.MaxDepth = 10
	c.Trace.Verbose = true
	sink := &trace.Buffer{}
	opts, err := c.EngineOptions(zerolog.Nop(), sink)
	if err != nil {
		t.Fatal(err)
	}
	if opts.Construction != vm.Eager || !opts.Recursive || opts.MaxDepth != 10 || !opts.Verbose || opts.Trace != sink {
		t.Errorf("got %+v", opts)
	}

	c.Construction = "sometimes"
	if _, err := c.EngineOptions(zerolog.Nop(), nil); err == nil {
		t.Error("expected error for bad construction")
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	c := Default()
	c.Log = Log{Level: "warn", Format: "json"}
	l, err := c.Logger(&buf)
	if err != nil {
		t.Fatal(err)
	}
	l.Info().Msg("hidden")
	l.Warn().Msg("shown")
	if out := buf.String(); strings.Contains(out, "hidden") || !strings.Contains(out, `"message":"shown"`) {
		t.Errorf("got %q", out)
	}
}

func TestFindJmod(t *testing.T) {
	t.Setenv("JAVA_BASE_JMOD", "/explicit/java.base.jmod")
	if got := FindJmod(); got != "/explicit/java.base.jmod" {
		t.Errorf("env: got %q", got)
	}

	home := t.TempDir()
	jmod := filepath.Join(home, "jmods", "java.base.jmod")
	if err := os.MkdirAll(filepath.Dir(jmod), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(jmod, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("JAVA_BASE_JMOD", "")
	t.Setenv("JAVA_HOME", home)
	if got := FindJmod(); got != jmod {
		t.Errorf("JAVA_HOME: got %q", got)
	}

	c := Default()
	c.JavaBaseJmod = "/configured.jmod"
	if got := c.Jmod(); got != "/configured.jmod" {
		t.Errorf("configured: got %q", got)
	}
}
