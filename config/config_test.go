package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// clearEnv unsets the override variables for the test's duration.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvArchiveMode, EnvArchivePath, EnvArchiveTop, EnvLogLambdaForms} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, FileName, `
[archive]
mode = "use"
path = "out/base.cds"
top = "out/top.cds"
require = true

[log]
level = "debug"
lambda-form-invokers = true
classlist = "classlist.txt"

[build]
release = "2.0.0"
debug-level = "fastdebug"
vm-info = "test-vm"
`)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Archive.Mode != ModeUse || !c.Archive.Require {
		t.Errorf("archive = %+v", c.Archive)
	}
	if c.ArchivePath() != filepath.Join(dir, "out", "base.cds") {
		t.Errorf("ArchivePath() = %q", c.ArchivePath())
	}
	if c.TopPath() != filepath.Join(dir, "out", "top.cds") {
		t.Errorf("TopPath() = %q", c.TopPath())
	}
	if !c.Log.LambdaFormInvokers || c.ClassListPath() != filepath.Join(dir, "classlist.txt") {
		t.Errorf("log = %+v", c.Log)
	}
	if c.Build.Release != "2.0.0" || c.Build.DebugLevel != "fastdebug" || c.Build.VMInfo != "test-vm" {
		t.Errorf("build = %+v", c.Build)
	}
	if v, _ := c.Verbosity(); v != 4 {
		t.Errorf("Verbosity() = %d, want 4", v)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, FileName, "")

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Archive.Mode != ModeAuto {
		t.Errorf("mode = %q, want auto", c.Archive.Mode)
	}
	if c.ArchivePath() != filepath.Join(dir, "build", "classes.cds") {
		t.Errorf("ArchivePath() = %q", c.ArchivePath())
	}
	if c.TopPath() != "" || c.ClassListPath() != "" || c.LogFilePath() != "" {
		t.Error("optional paths should stay empty")
	}
	if c.Log.Level != "info" || c.Build.Release != "0.1.0" || c.Build.DebugLevel != "release" {
		t.Errorf("defaults = %+v %+v", c.Log, c.Build)
	}
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"syntax", "[archive\nmode = ", "parse error"},
		{"mode", "[archive]\nmode = \"sometimes\"", "archive.mode"},
		{"dynamic without top", "[archive]\nmode = \"dump-dynamic\"", "archive.top"},
		{"level", "[log]\nlevel = \"loud\"", "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, FileName, tt.content)
			_, err := Load(dir)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}

	if _, err := Load(t.TempDir()); err == nil {
		t.Error("Load without a file should fail")
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, FileName, "[archive]\nmode = \"off\"\n")
	writeFile(t, dir, ".env", "CDS_ARCHIVE_MODE=use\nCDS_ARCHIVE_PATH=/tmp/from-dotenv.cds\nCDS_LOG_LAMBDA_FORMS=true\n")
	t.Setenv(EnvArchivePath, "/tmp/from-env.cds")

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Archive.Mode != ModeUse {
		t.Errorf("mode = %q, want .env value use", c.Archive.Mode)
	}
	if c.ArchivePath() != "/tmp/from-env.cds" {
		t.Errorf("ArchivePath() = %q, process environment should win", c.ArchivePath())
	}
	if !c.Log.LambdaFormInvokers {
		t.Error("lambda-form logging should be enabled from .env")
	}
}

func TestEnvBadBool(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, FileName, "")
	t.Setenv(EnvLogLambdaForms, "maybe")
	if _, err := Load(dir); err == nil {
		t.Error("invalid boolean should fail")
	}
}

func TestFindAndLoad(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	writeFile(t, root, FileName, "[archive]\nmode = \"dump-static\"\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	c, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad: %v", err)
	}
	if c.Archive.Mode != ModeDumpStatic {
		t.Errorf("mode = %q, want dump-static", c.Archive.Mode)
	}
	if c.Dir != root {
		t.Errorf("Dir = %q, want %q", c.Dir, root)
	}
}

func TestModeDumping(t *testing.T) {
	for _, m := range []Mode{ModeOff, ModeUse, ModeAuto, ModeDumpStatic, ModeDumpDynamic} {
		if !m.Valid() {
			t.Errorf("%s should be valid", m)
		}
		if m.Dumping() != (m == ModeDumpStatic || m == ModeDumpDynamic) {
			t.Errorf("%s.Dumping() = %v", m, m.Dumping())
		}
	}
	if Mode("").Valid() {
		t.Error("empty mode should be invalid")
	}
}

func TestDefault(t *testing.T) {
	c := Default("/srv/app")
	if c.Archive.Mode != ModeAuto || c.ArchivePath() != filepath.Join("/srv/app", "build", "classes.cds") {
		t.Errorf("Default = %+v", c.Archive)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}
