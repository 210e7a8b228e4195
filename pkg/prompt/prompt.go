// Package prompt implements the terminal fallback for the launcher's
// retry / continue / quit decision when no UI is attached.
package prompt

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Choice is the user's decision after the port scan is exhausted
type Choice int

const (
	// ChoiceRetry re-runs the scan from the bottom of the port range
	ChoiceRetry Choice = iota
	// ChoiceContinue proceeds without a confirmed backend
	ChoiceContinue
	// ChoiceQuit terminates the application
	ChoiceQuit
)

// String returns the string representation of a Choice
func (c Choice) String() string {
	switch c {
	case ChoiceRetry:
		return "retry"
	case ChoiceContinue:
		return "continue"
	case ChoiceQuit:
		return "quit"
	default:
		return "unknown"
	}
}

// Parse maps user input to a Choice. Accepts full words and initials.
func Parse(s string) (Choice, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "retry", "r":
		return ChoiceRetry, true
	case "continue", "c":
		return ChoiceContinue, true
	case "quit", "q":
		return ChoiceQuit, true
	default:
		return 0, false
	}
}

// Interactive reports whether stdin is a terminal a human can answer on
func Interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Ask presents the three-way decision and reads the answer from in,
// re-prompting on invalid input. Returns ChoiceContinue if in closes
// without a valid answer, so a headless run degrades instead of hanging.
func Ask(in io.Reader, out io.Writer, reason string) (Choice, error) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "The backend service could not be started.")
	if reason != "" {
		fmt.Fprintf(out, "Reason: %s\n", reason)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "  [r]etry     scan the port range again")
	fmt.Fprintln(out, "  [c]ontinue  open the app without a backend")
	fmt.Fprintln(out, "  [q]uit      exit now")
	fmt.Fprintln(out)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "Choice [r/c/q]: ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return ChoiceContinue, err
			}
			// EOF: nobody is answering
			return ChoiceContinue, nil
		}

		if choice, ok := Parse(scanner.Text()); ok {
			return choice, nil
		}
		fmt.Fprintln(out, "Please answer r, c, or q.")
	}
}
