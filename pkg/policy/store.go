package policy

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// ConfigError reports a bad or missing policy source. A failed load or
// reload never disturbs a previously loaded snapshot.
type ConfigError struct {
	Source string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("policy config %s: %v", e.Source, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// EnvAllowedCommands names the environment variable that supplements the
// policy document with a comma-separated allow-list of command names.
const EnvAllowedCommands = "ALLOWED_COMMANDS"

type document struct {
	Commands []*CommandPolicy `yaml:"commands"`
}

// Store holds the current policy snapshot. Reads are unsynchronized and
// always observe a complete snapshot; reload swaps the pointer atomically.
type Store struct {
	source  string
	current atomic.Pointer[Set]
}

// NewStore loads the initial snapshot from path. An empty path is valid
// when ALLOWED_COMMANDS supplies the allow-list.
func NewStore(path string) (*Store, error) {
	s := &Store{source: path}
	set, err := s.load()
	if err != nil {
		return nil, err
	}
	if set.Len() == 0 {
		return nil, &ConfigError{Source: s.sourceName(), Err: fmt.Errorf("no commands allowed")}
	}
	s.current.Store(set)
	return s, nil
}

// Reload re-reads the policy source and swaps the snapshot. On failure the
// previous snapshot stays in effect.
func (s *Store) Reload() error {
	set, err := s.load()
	if err != nil {
		return err
	}
	if set.Len() == 0 {
		return &ConfigError{Source: s.sourceName(), Err: fmt.Errorf("no commands allowed")}
	}
	s.current.Store(set)
	return nil
}

// Snapshot returns the current immutable policy set.
func (s *Store) Snapshot() *Set {
	return s.current.Load()
}

// Lookup resolves a command name against the current snapshot.
func (s *Store) Lookup(command string) (*CommandPolicy, bool) {
	return s.Snapshot().Lookup(command)
}

// Commands lists allowed command names sorted.
func (s *Store) Commands() []string {
	set := s.Snapshot()
	names := make([]string, 0, len(set.commands))
	for name := range set.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Store) load() (*Set, error) {
	commands := make(map[string]*CommandPolicy)

	if s.source != "" {
		data, err := os.ReadFile(s.source)
		if err != nil {
			return nil, &ConfigError{Source: s.source, Err: err}
		}
		var doc document
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, &ConfigError{Source: s.source, Err: err}
		}
		for _, p := range doc.Commands {
			if err := p.normalize(); err != nil {
				return nil, &ConfigError{Source: s.source, Err: err}
			}
			if _, dup := commands[p.Name]; dup {
				return nil, &ConfigError{Source: s.source, Err: fmt.Errorf("duplicate policy for %s", p.Name)}
			}
			commands[p.Name] = p
		}
	}

	// Names from ALLOWED_COMMANDS without a document entry get a bare
	// policy: no flags, no paths, executor defaults.
	for _, name := range splitList(os.Getenv(EnvAllowedCommands)) {
		if _, ok := commands[name]; ok {
			continue
		}
		commands[name] = &CommandPolicy{Name: name}
	}

	return &Set{commands: commands}, nil
}

func (s *Store) sourceName() string {
	if s.source == "" {
		return "$" + EnvAllowedCommands
	}
	return s.source
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
