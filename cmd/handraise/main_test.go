package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRun_RejectsBadFlags(t *testing.T) {
	if err := run([]string{"-no-such-flag"}); err == nil {
		t.Error("Expected an unknown flag to fail")
	}
}

func TestRun_RejectsBrokenConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"http": {"port": 99999}}`), 0o600); err != nil {
		t.Fatal(err)
	}

	err := run([]string{"-config", path, "-env-file", filepath.Join(t.TempDir(), "none.env")})
	if err == nil || !strings.Contains(err.Error(), "configuration") {
		t.Errorf("Expected a configuration error, got %v", err)
	}
}

func TestRun_RejectsBadRule(t *testing.T) {
	t.Setenv("HANDRAISE_DATABASE_DRIVER", "memory")
	t.Setenv("HANDRAISE_NOTIFICATION_SUPPRESS_RULE", "kind ==")

	err := run([]string{"-env-file", filepath.Join(t.TempDir(), "none.env")})
	if err == nil || !strings.Contains(err.Error(), "failed to create application") {
		t.Errorf("Expected application creation to fail, got %v", err)
	}
}
