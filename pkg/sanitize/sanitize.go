// Package sanitize validates a requested command and argument list against
// a policy entry before execution is attempted. Validation is a pure check:
// it never touches the process table and never mutates the arguments it is
// given. Unlisted flags reject, they are never silently stripped.
package sanitize

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sameehj/gate/pkg/policy"
)

// Kind classifies a validation rejection.
type Kind string

const (
	// NotAllowed means the command has no policy entry or a malformed name.
	NotAllowed Kind = "not_allowed"
	// FlagNotAllowed means a flag token is outside the policy's closed set.
	FlagNotAllowed Kind = "flag_not_allowed"
	// PathTraversal means a path argument escapes every allowed prefix or
	// lands under an excluded prefix after normalization.
	PathTraversal Kind = "path_traversal"
	// ResourceLimitExceeded means a referenced file or directory is larger
	// than the policy permits.
	ResourceLimitExceeded Kind = "resource_limit_exceeded"
	// UnsafeArgument means an argument carries shell metacharacters. No
	// shell is ever invoked, so this is defense in depth rather than the
	// primary injection barrier.
	UnsafeArgument Kind = "unsafe_argument"
)

// ValidationError reports why a request was rejected.
type ValidationError struct {
	Kind    Kind
	Command string
	Detail  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s): %s", e.Kind, e.Detail)
}

// ValidatedArgs is the argument vector cleared for execution. Path-shaped
// tokens are replaced with their cleaned absolute form so the executor and
// the audit trail both see what was actually checked.
type ValidatedArgs []string

var (
	commandNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	metacharacters     = ";&|<>$`\n"
)

// Validate checks command and args against pol. A nil policy rejects with
// NotAllowed so callers can pass the lookup result straight through.
func Validate(command string, args []string, pol *policy.CommandPolicy) (ValidatedArgs, error) {
	if pol == nil {
		return nil, &ValidationError{
			Kind:    NotAllowed,
			Command: command,
			Detail:  fmt.Sprintf("command %q is not allowed", command),
		}
	}
	if !commandNamePattern.MatchString(command) {
		return nil, &ValidationError{
			Kind:    NotAllowed,
			Command: command,
			Detail:  fmt.Sprintf("command %q contains invalid characters", command),
		}
	}

	validated := make(ValidatedArgs, 0, len(args))
	for _, arg := range args {
		if strings.ContainsAny(arg, metacharacters) {
			return nil, &ValidationError{
				Kind:    UnsafeArgument,
				Command: command,
				Detail:  fmt.Sprintf("argument %q contains disallowed characters", arg),
			}
		}

		switch {
		case isFlag(arg):
			if !flagAllowed(pol, flagName(arg)) {
				return nil, &ValidationError{
					Kind:    FlagNotAllowed,
					Command: command,
					Detail:  fmt.Sprintf("flag %q is not allowed for %s", arg, command),
				}
			}
			validated = append(validated, arg)
		case isPath(arg):
			resolved, err := checkPath(command, arg, pol)
			if err != nil {
				return nil, err
			}
			validated = append(validated, resolved)
		default:
			if candidate, ok := resolvesToEntry(arg, pol); ok {
				resolved, err := checkPath(command, candidate, pol)
				if err != nil {
					return nil, err
				}
				validated = append(validated, resolved)
				continue
			}
			validated = append(validated, arg)
		}
	}
	return validated, nil
}

func isFlag(arg string) bool {
	return len(arg) > 1 && arg[0] == '-'
}

// flagName strips the value part of --flag=value tokens; the flag itself is
// what the closed set is matched against.
func flagName(arg string) string {
	if idx := strings.IndexByte(arg, '='); idx > 0 {
		return arg[:idx]
	}
	return arg
}

// flagAllowed accepts an exact member of the closed set, or a bundle of
// short flags (-la) whose every letter is individually allowed.
func flagAllowed(pol *policy.CommandPolicy, flag string) bool {
	if pol.FlagAllowed(flag) {
		return true
	}
	if len(flag) > 2 && flag[0] == '-' && flag[1] != '-' {
		for _, r := range flag[1:] {
			if !pol.FlagAllowed("-" + string(r)) {
				return false
			}
		}
		return true
	}
	return false
}

// resolvesToEntry reports whether a bare token like "bigfile" names an
// existing file or directory relative to the command's working directory.
// Such a token is subject to the same prefix and resource checks as an
// explicit path; otherwise a relative filename would slip past both. Bare
// tokens are only probed when the policy constrains paths at all, so a
// pattern argument to an unconstrained command stays opaque.
func resolvesToEntry(arg string, pol *policy.CommandPolicy) (string, bool) {
	if len(pol.AllowedPathPrefixes) == 0 && pol.MaxFileSizeBytes == 0 && pol.MaxEntries == 0 {
		return "", false
	}
	candidate := arg
	if pol.WorkingDirectory != "" {
		candidate = filepath.Join(pol.WorkingDirectory, arg)
	}
	if _, err := os.Stat(candidate); err != nil {
		return "", false
	}
	return candidate, true
}

func isPath(arg string) bool {
	return strings.ContainsRune(arg, os.PathSeparator) ||
		arg == "." || arg == ".." ||
		strings.HasPrefix(arg, "./") || strings.HasPrefix(arg, "../") ||
		strings.HasPrefix(arg, "~")
}

// checkPath normalizes arg to a cleaned absolute path and verifies prefix
// membership on the canonical form, so traversal via ../ sequences cannot
// reach outside an allowed prefix.
func checkPath(command, arg string, pol *policy.CommandPolicy) (string, error) {
	resolved := arg
	if strings.HasPrefix(resolved, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			resolved = filepath.Join(home, strings.TrimPrefix(resolved, "~"))
		}
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		return "", &ValidationError{
			Kind:    PathTraversal,
			Command: command,
			Detail:  fmt.Sprintf("path %q cannot be resolved: %v", arg, err),
		}
	}
	abs = filepath.Clean(abs)

	if len(pol.AllowedPathPrefixes) == 0 {
		return "", &ValidationError{
			Kind:    PathTraversal,
			Command: command,
			Detail:  fmt.Sprintf("command %s may not reference paths", command),
		}
	}
	allowed := false
	for _, prefix := range pol.AllowedPathPrefixes {
		if underPrefix(abs, prefix) {
			allowed = true
			break
		}
	}
	if !allowed {
		return "", &ValidationError{
			Kind:    PathTraversal,
			Command: command,
			Detail:  fmt.Sprintf("path %q resolves to %q outside allowed prefixes", arg, abs),
		}
	}
	for _, prefix := range pol.ExcludedPathPrefixes {
		if underPrefix(abs, prefix) {
			return "", &ValidationError{
				Kind:    PathTraversal,
				Command: command,
				Detail:  fmt.Sprintf("path %q resolves under excluded prefix %q", arg, prefix),
			}
		}
	}

	if err := checkResourceLimits(command, abs, pol); err != nil {
		return "", err
	}
	return abs, nil
}

func underPrefix(path, prefix string) bool {
	if path == prefix {
		return true
	}
	if prefix == string(os.PathSeparator) {
		return strings.HasPrefix(path, prefix)
	}
	return strings.HasPrefix(path, prefix+string(os.PathSeparator))
}

// checkResourceLimits stats the target when the policy carries size or
// entry limits. A path that does not exist yet passes; the command itself
// will report it.
func checkResourceLimits(command, abs string, pol *policy.CommandPolicy) error {
	if pol.MaxFileSizeBytes == 0 && pol.MaxEntries == 0 {
		return nil
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil
	}

	if pol.MaxFileSizeBytes > 0 && info.Mode().IsRegular() {
		if uint64(info.Size()) > pol.MaxFileSizeBytes {
			return &ValidationError{
				Kind:    ResourceLimitExceeded,
				Command: command,
				Detail: fmt.Sprintf("file %q is %d bytes, limit is %d",
					abs, info.Size(), pol.MaxFileSizeBytes),
			}
		}
	}
	if pol.MaxEntries > 0 && info.IsDir() {
		entries, err := os.ReadDir(abs)
		if err == nil && uint32(len(entries)) > pol.MaxEntries {
			return &ValidationError{
				Kind:    ResourceLimitExceeded,
				Command: command,
				Detail: fmt.Sprintf("directory %q has %d entries, limit is %d",
					abs, len(entries), pol.MaxEntries),
			}
		}
	}
	return nil
}
