package confirm

// RiskLevel is shown with the confirmation prompt and carried into the
// audit trail.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Warning returns the prompt text for a risk level.
func (r RiskLevel) Warning() string {
	switch r {
	case RiskLow:
		return "This operation is safe but requires confirmation."
	case RiskHigh:
		return "This operation could significantly impact the system."
	default:
		return "This operation could modify files or data."
	}
}

var readOnlyCommands = map[string]bool{
	"ls":   true,
	"cat":  true,
	"head": true,
	"tail": true,
}

var destructiveCommands = map[string]bool{
	"rm": true,
	"mv": true,
}

// AssessRisk classifies a request. Read-only commands are low risk,
// destructive commands and force flags are high, everything else defaults
// to medium.
func AssessRisk(command string, args []string) RiskLevel {
	if destructiveCommands[command] {
		return RiskHigh
	}
	for _, arg := range args {
		if arg == "-f" || arg == "--force" {
			return RiskHigh
		}
	}
	if readOnlyCommands[command] {
		return RiskLow
	}
	return RiskMedium
}
