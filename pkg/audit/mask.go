package audit

import "strings"

// Flags whose following argument is a secret, and substrings that mark an
// argument itself as sensitive.
var (
	sensitiveFlags      = []string{"-p", "--password", "--token", "--api-key"}
	sensitiveSubstrings = []string{"PASSWORD", "TOKEN", "KEY", "SECRET"}
)

// MaskSensitive returns a copy of args with secret values replaced by
// [MASKED]. The flags themselves stay visible so the audit trail still
// shows what was passed, just not the value.
func MaskSensitive(args []string) []string {
	if len(args) == 0 {
		return args
	}
	masked := make([]string, len(args))
	skipNext := false
	for i, arg := range args {
		if skipNext {
			masked[i] = "[MASKED]"
			skipNext = false
			continue
		}
		if isSensitiveFlag(arg) {
			masked[i] = arg
			skipNext = true
			continue
		}
		if containsSensitive(arg) && strings.ContainsRune(arg, '=') {
			key, _, _ := strings.Cut(arg, "=")
			masked[i] = key + "=[MASKED]"
			continue
		}
		masked[i] = arg
	}
	return masked
}

func isSensitiveFlag(arg string) bool {
	for _, flag := range sensitiveFlags {
		if arg == flag {
			return true
		}
	}
	return false
}

func containsSensitive(arg string) bool {
	upper := strings.ToUpper(arg)
	for _, marker := range sensitiveSubstrings {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	return false
}
