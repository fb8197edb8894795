package policy

import (
	"fmt"
	"path/filepath"
	"time"
)

// CommandPolicy narrows what a whitelisted command may do. Policies are
// immutable after load; a reload replaces the whole set.
type CommandPolicy struct {
	Name                 string   `yaml:"name"`
	AllowedFlags         []string `yaml:"allowed_flags"`
	AllowedPathPrefixes  []string `yaml:"allowed_paths"`
	ExcludedPathPrefixes []string `yaml:"excluded_paths"`
	MaxFileSizeBytes     uint64   `yaml:"max_file_size_bytes"`
	MaxEntries           uint32   `yaml:"max_entries"`
	WorkingDirectory     string   `yaml:"working_directory"`
	TimeoutSeconds       int      `yaml:"timeout_seconds"`
	MaxOutputBytes       int      `yaml:"max_output_bytes"`
}

// Timeout returns the per-command wall-clock limit, or zero when the
// executor default applies.
func (p *CommandPolicy) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// FlagAllowed reports whether flag is a member of the closed allowed set.
func (p *CommandPolicy) FlagAllowed(flag string) bool {
	for _, allowed := range p.AllowedFlags {
		if allowed == flag {
			return true
		}
	}
	return false
}

func (p *CommandPolicy) normalize() error {
	if p.Name == "" {
		return fmt.Errorf("policy entry missing command name")
	}
	for i, prefix := range p.AllowedPathPrefixes {
		abs, err := filepath.Abs(prefix)
		if err != nil {
			return fmt.Errorf("allowed path %q for %s: %w", prefix, p.Name, err)
		}
		p.AllowedPathPrefixes[i] = filepath.Clean(abs)
	}
	for i, prefix := range p.ExcludedPathPrefixes {
		abs, err := filepath.Abs(prefix)
		if err != nil {
			return fmt.Errorf("excluded path %q for %s: %w", prefix, p.Name, err)
		}
		p.ExcludedPathPrefixes[i] = filepath.Clean(abs)
	}
	return nil
}

// Set is an immutable snapshot of every loaded policy.
type Set struct {
	commands map[string]*CommandPolicy
}

// Lookup matches command names case-sensitively and exactly.
func (s *Set) Lookup(command string) (*CommandPolicy, bool) {
	p, ok := s.commands[command]
	return p, ok
}

// Len returns the number of policies in the snapshot.
func (s *Set) Len() int {
	return len(s.commands)
}
