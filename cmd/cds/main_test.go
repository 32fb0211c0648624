package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/cds/config"
	"github.com/chazu/cds/corelib"
)

func TestBuildIdentity(t *testing.T) {
	cfg := config.Default(t.TempDir())
	b := buildIdentity(cfg)
	if b.Release != "0.1.0" || b.DebugLevel != "release" || b.Major != 1 {
		t.Errorf("build = %+v", b)
	}
	if !strings.Contains(b.VMInfo, "/") {
		t.Errorf("VMInfo = %q, want version/os/arch", b.VMInfo)
	}

	cfg.Build.VMInfo = "custom"
	if got := buildIdentity(cfg).VMInfo; got != "custom" {
		t.Errorf("VMInfo = %q, want the configured value", got)
	}
}

// The process-wide gate can be installed once per binary, so this is the
// only test that boots a session.
func TestBootStaticDump(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default(dir)
	cfg.Archive.Mode = config.ModeDumpStatic
	cfg.Log.LambdaFormInvokers = true
	cfg.Log.ClassList = "classlist"

	s, err := boot(cfg)
	if err != nil {
		t.Fatalf("boot: %v", err)
	}
	report, err := s.boot.Dump(s.machine, s.gate.GetRandomSeedForDumping(), corelib.ArchivableFields())
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := os.Stat(report.Path); err != nil {
		t.Errorf("archive not written: %v", err)
	}
	if len(report.Archived) != len(corelib.ArchivableFields()) {
		t.Errorf("archived = %v, skipped = %v", report.Archived, report.Skipped)
	}

	data, err := os.ReadFile(filepath.Join(dir, "classlist"))
	if err != nil {
		t.Fatalf("class list: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	// Three signatures for three holders, plus two species.
	if len(lines) != 11 {
		t.Errorf("class list has %d lines:\n%s", len(lines), data)
	}
	if !strings.HasPrefix(lines[0], corelib.LFResolve+" "+corelib.InvokersHolder) {
		t.Errorf("first line = %q", lines[0])
	}
}
