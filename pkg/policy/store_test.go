package policy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const samplePolicy = `
commands:
  - name: ls
    allowed_flags: ["-l", "-a"]
    allowed_paths: ["/tmp"]
  - name: grep
    allowed_flags: ["-r"]
    allowed_paths: ["/var/data"]
    max_file_size_bytes: 10485760
`

func writePolicy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	return path
}

func TestStoreLoadAndLookup(t *testing.T) {
	store, err := NewStore(writePolicy(t, samplePolicy))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pol, ok := store.Lookup("ls")
	if !ok {
		t.Fatalf("expected ls policy")
	}
	if !pol.FlagAllowed("-l") || !pol.FlagAllowed("-a") {
		t.Fatalf("expected -l and -a allowed, got %v", pol.AllowedFlags)
	}
	if pol.FlagAllowed("-R") {
		t.Fatalf("did not expect -R allowed")
	}

	if _, ok := store.Lookup("LS"); ok {
		t.Fatalf("lookup must be case-sensitive")
	}
	if _, ok := store.Lookup("l"); ok {
		t.Fatalf("lookup must be exact, no prefix matching")
	}
}

func TestStoreCommandsSorted(t *testing.T) {
	store, err := NewStore(writePolicy(t, samplePolicy))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	names := store.Commands()
	if len(names) != 2 || names[0] != "grep" || names[1] != "ls" {
		t.Fatalf("expected sorted [grep ls], got %v", names)
	}
}

func TestStoreEnvAllowedCommands(t *testing.T) {
	t.Setenv(EnvAllowedCommands, "echo, cat ,ls")

	store, err := NewStore(writePolicy(t, samplePolicy))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, name := range []string{"echo", "cat"} {
		pol, ok := store.Lookup(name)
		if !ok {
			t.Fatalf("expected %s from env", name)
		}
		if len(pol.AllowedFlags) != 0 {
			t.Fatalf("env-only policy should carry no flags, got %v", pol.AllowedFlags)
		}
	}
	// The document entry wins over the bare env entry.
	pol, _ := store.Lookup("ls")
	if !pol.FlagAllowed("-l") {
		t.Fatalf("document policy for ls was replaced by env entry")
	}
}

func TestStoreEmptyAllowListFails(t *testing.T) {
	t.Setenv(EnvAllowedCommands, "")

	_, err := NewStore(writePolicy(t, "commands: []"))
	if err == nil {
		t.Fatalf("expected error for empty allow-list")
	}
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %T", err)
	}
}

func TestStoreDuplicateCommand(t *testing.T) {
	_, err := NewStore(writePolicy(t, `
commands:
  - name: ls
  - name: ls
`))
	if err == nil {
		t.Fatalf("expected duplicate policy error")
	}
}

func TestStoreReloadKeepsOldSnapshotOnFailure(t *testing.T) {
	path := writePolicy(t, samplePolicy)
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := os.WriteFile(path, []byte("commands: [not yaml"), 0o600); err != nil {
		t.Fatalf("corrupt policy: %v", err)
	}
	if err := store.Reload(); err == nil {
		t.Fatalf("expected reload failure")
	}
	if _, ok := store.Lookup("ls"); !ok {
		t.Fatalf("previous snapshot must survive a failed reload")
	}

	before := store.Snapshot()
	if err := os.WriteFile(path, []byte("commands:\n  - name: cat\n"), 0o600); err != nil {
		t.Fatalf("rewrite policy: %v", err)
	}
	if err := store.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if _, ok := store.Lookup("ls"); ok {
		t.Fatalf("reload must replace the whole snapshot")
	}
	if _, ok := store.Lookup("cat"); !ok {
		t.Fatalf("expected cat after reload")
	}
	// A snapshot taken earlier is immutable and unaffected by the swap.
	if _, ok := before.Lookup("ls"); !ok {
		t.Fatalf("earlier snapshot must keep serving its own set")
	}
}

func TestStoreMissingFile(t *testing.T) {
	_, err := NewStore(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing policy file")
	}
}
