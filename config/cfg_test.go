package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rupor-github/gencfg"
)

func TestLoadConfiguration_NoFile(t *testing.T) {
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatalf("LoadConfiguration() with empty path error = %v", err)
	}
	if cfg.Version != 1 {
		t.Errorf("Default config version = %d, want 1", cfg.Version)
	}
	if cfg.Source.BaseURL != "https://projecteuler.net/" {
		t.Errorf("BaseURL = %q", cfg.Source.BaseURL)
	}
	if cfg.Source.Timeout != 60*time.Second {
		t.Errorf("Timeout = %v", cfg.Source.Timeout)
	}
	if cfg.Document.BuildName != "project_euler_offline" || cfg.Document.FrameRate != 1 || cfg.Document.Spaced {
		t.Errorf("unexpected document defaults %+v", cfg.Document)
	}
	if cfg.Document.PDF.Command != "latexmk" || len(cfg.Document.PDF.Args) == 0 || cfg.Document.PDF.Args[0] != "-pdf" {
		t.Errorf("unexpected pdf defaults %+v", cfg.Document.PDF)
	}
	if cfg.Logging.ConsoleLogger.Level != "normal" || cfg.Logging.FileLogger.Level != "none" {
		t.Errorf("unexpected logging defaults %+v", cfg.Logging)
	}
}

func TestLoadConfiguration_WithFile(t *testing.T) {
	dir := t.TempDir()
	overrides := filepath.Join(dir, "overrides")
	if err := os.Mkdir(overrides, 0755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "config.yaml")
	content := `version: 1
source:
  base_url: "http://localhost:8080/"
  timeout: 5s
document:
  spaced: true
  frame_rate: 4
  overrides_dir: "` + filepath.ToSlash(overrides) + `"
  pdf:
    command: "true"
    args: []
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfiguration(path)
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	if cfg.Source.BaseURL != "http://localhost:8080/" || cfg.Source.Timeout != 5*time.Second {
		t.Errorf("source not overwritten: %+v", cfg.Source)
	}
	if !cfg.Document.Spaced || cfg.Document.FrameRate != 4 || cfg.Document.OverridesDir != filepath.ToSlash(overrides) {
		t.Errorf("document not overwritten: %+v", cfg.Document)
	}
	if cfg.Document.PDF.Command != "true" || len(cfg.Document.PDF.Args) != 0 {
		t.Errorf("pdf not overwritten: %+v", cfg.Document.PDF)
	}
	// untouched values keep defaults
	if cfg.Document.BuildName != "project_euler_offline" || cfg.Cache.Path != "http_cache.sqlite3" {
		t.Errorf("defaults lost: %+v %+v", cfg.Document, cfg.Cache)
	}
}

func TestLoadConfiguration_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown field", "version: 1\nsource:\n  proxy: x\n", "configuration file"},
		{"bad version", "version: 2\n", "configuration file"},
		{"bad frame rate", "version: 1\ndocument:\n  frame_rate: 0\n", "configuration file"},
		{"missing overrides", "version: 1\ndocument:\n  overrides_dir: /definitely/not/here\n", "configuration file"},
		{"bad log level", "version: 1\nlogging:\n  console:\n    level: loud\n", "configuration file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := LoadConfiguration(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestLoadConfiguration_MissingFile(t *testing.T) {
	_, err := LoadConfiguration(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil || !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("error = %v", err)
	}
}

func TestLoadConfiguration_ProcessingOptions(t *testing.T) {
	cfg, err := LoadConfiguration("", gencfg.WithDoNotExpandField("BaseURL"))
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	if cfg.Version != 1 {
		t.Errorf("version = %d", cfg.Version)
	}
}

func TestPrepareAndDump(t *testing.T) {
	data, err := Prepare()
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if !strings.Contains(string(data), "build_name: \"project_euler_offline\"") {
		t.Errorf("Prepare() output misses defaults:\n%s", data)
	}

	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatal(err)
	}
	out, err := Dump(cfg)
	if err != nil {
		t.Fatalf("Dump() error = %v", err)
	}
	for _, want := range []string{"base_url: https://projecteuler.net/", "frame_rate: 1", "destination: peo-report.zip"} {
		if !strings.Contains(string(out), want) {
			t.Errorf("Dump() output misses %q:\n%s", want, out)
		}
	}
}

func TestCleanFileName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"..hidden", "hidden"},
		{string(os.PathSeparator), "_bad_file_name_"},
		{"p001_names.txt", "p001_names.txt"},
		{"a" + string(os.PathListSeparator) + "b.txt", "ab.txt"},
		{"x\x00y", "xy"},
	}
	for _, tt := range tests {
		if got := CleanFileName(tt.in); got != tt.want {
			t.Errorf("CleanFileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
