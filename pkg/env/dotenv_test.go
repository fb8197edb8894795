package env

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFile(t *testing.T) {
	if err := Load(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
}

func TestLoadParsesAndRespectsExisting(t *testing.T) {
	dir := t.TempDir()
	content := `
# comment
GATE_TEST_A=one
export GATE_TEST_B="two"
GATE_TEST_C='three'
GATE_TEST_EXISTING=fromfile
NOTANASSIGNMENT
=novalue
`
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	t.Setenv("GATE_TEST_EXISTING", "fromenv")
	for _, key := range []string{"GATE_TEST_A", "GATE_TEST_B", "GATE_TEST_C"} {
		os.Unsetenv(key)
		t.Cleanup(func() { os.Unsetenv(key) })
	}

	if err := LoadFromDir(dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := os.Getenv("GATE_TEST_A"); got != "one" {
		t.Fatalf("expected one, got %q", got)
	}
	if got := os.Getenv("GATE_TEST_B"); got != "two" {
		t.Fatalf("expected quoted value stripped, got %q", got)
	}
	if got := os.Getenv("GATE_TEST_C"); got != "three" {
		t.Fatalf("expected single-quoted value stripped, got %q", got)
	}
	if got := os.Getenv("GATE_TEST_EXISTING"); got != "fromenv" {
		t.Fatalf("existing environment must win, got %q", got)
	}
}
