package config

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readArchive(t *testing.T, path string) map[string]string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open report: %v", err)
	}
	defer zr.Close()

	files := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatal(err)
		}
		files[f.Name] = string(data)
	}
	return files
}

func TestReport_Finalize(t *testing.T) {
	dir := t.TempDir()
	conf := ReporterConfig{Destination: filepath.Join(dir, "report.zip")}
	rpt, err := conf.Prepare()
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	logFile := filepath.Join(dir, "run.log")
	if err := os.WriteFile(logFile, []byte("log line"), 0644); err != nil {
		t.Fatal(err)
	}
	build := filepath.Join(dir, "build")
	if err := os.MkdirAll(filepath.Join(build, "resources"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(build, "resources", "a.png"), []byte("png"), 0644); err != nil {
		t.Fatal(err)
	}

	rpt.Store("final.log", logFile)
	rpt.Store("build", build)
	rpt.Store("missing", filepath.Join(dir, "absent"))
	rpt.StoreData("config.yaml", []byte("version: 1"))

	if rpt.Name() != conf.Destination {
		t.Errorf("Name() = %q, want %q", rpt.Name(), conf.Destination)
	}
	if err := rpt.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	files := readArchive(t, conf.Destination)
	want := map[string]string{
		"final.log":             "log line",
		"build/resources/a.png": "png",
		"config.yaml":           "version: 1",
	}
	for name, content := range want {
		if files[name] != content {
			t.Errorf("archive entry %q = %q, want %q", name, files[name], content)
		}
	}
	if _, ok := files["missing"]; ok {
		t.Error("absent file should be skipped")
	}
	manifest := files["MANIFEST"]
	if !strings.Contains(manifest, "final.log") || !strings.Contains(manifest, "missing") {
		t.Errorf("manifest incomplete:\n%s", manifest)
	}
	if strings.Index(manifest, "build") > strings.Index(manifest, "config.yaml") {
		t.Errorf("manifest is not sorted:\n%s", manifest)
	}
}

func TestReport_Nil(t *testing.T) {
	var rpt *Report
	rpt.Store("a", "b")
	rpt.StoreData("c", []byte("d"))
	if rpt.Name() != "" {
		t.Error("nil report must have empty name")
	}
	if err := rpt.Close(); err != nil {
		t.Errorf("Close() on nil report = %v", err)
	}
}

func TestReport_OverwritePanics(t *testing.T) {
	rpt := &Report{entries: make(map[string]entry)}
	rpt.Store("a", "one")
	rpt.Store("a", "one")

	defer func() {
		if recover() == nil {
			t.Error("expected panic on overwrite")
		}
	}()
	rpt.Store("a", "two")
}

func TestLoggingPrepare_NoFile(t *testing.T) {
	conf := LoggingConfig{
		ConsoleLogger: LoggerConfig{Level: "none"},
		FileLogger:    LoggerConfig{Level: "none"},
	}
	log, err := conf.Prepare(nil)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	log.Info("dropped")
}

func TestLoggingPrepare_WithReport(t *testing.T) {
	dir := t.TempDir()
	rpt := &Report{entries: make(map[string]entry)}
	conf := LoggingConfig{
		ConsoleLogger: LoggerConfig{Level: "none"},
		FileLogger:    LoggerConfig{Level: "none", Destination: filepath.Join(dir, "peo.log"), Mode: "append"},
	}
	log, err := conf.Prepare(rpt)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	log.Debug("recorded")
	_ = log.Sync()

	data, err := os.ReadFile(filepath.Join(dir, "peo.log"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "recorded") {
		t.Errorf("debug entry not logged when report is requested:\n%s", data)
	}
	if _, ok := rpt.entries["final.log"]; !ok {
		t.Error("log file is not stored in report")
	}
}
