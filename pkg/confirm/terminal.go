package confirm

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// TerminalPrompter is the interactive approval channel for one-shot CLI
// runs: it prints the pending request and reads a yes/no answer.
type TerminalPrompter struct {
	In     io.Reader
	Out    io.Writer
	Broker *Broker
}

// Notify prompts asynchronously so the broker's timeout keeps running
// while the user thinks. An answer arriving after the timeout fired is
// reported as too late and changes nothing.
func (t *TerminalPrompter) Notify(req Request) {
	fmt.Fprintf(t.Out, "\nCommand Execution Confirmation\n")
	fmt.Fprintf(t.Out, "------------------------------\n")
	fmt.Fprintf(t.Out, "Command:    %s\n", req.Command)
	fmt.Fprintf(t.Out, "Arguments:  %s\n", strings.Join(req.Args, " "))
	fmt.Fprintf(t.Out, "Risk Level: %s\n", req.Risk)
	fmt.Fprintf(t.Out, "Warning:    %s\n", req.Risk.Warning())
	fmt.Fprintf(t.Out, "\nDo you want to proceed? (yes/no): ")

	go func() {
		scanner := bufio.NewScanner(t.In)
		approve := false
		if scanner.Scan() {
			answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
			approve = answer == "yes" || answer == "y"
		}
		if err := t.Broker.Resolve(req.ID, approve); err != nil {
			fmt.Fprintf(t.Out, "decision for %s arrived too late\n", req.ID)
		}
	}()
}
