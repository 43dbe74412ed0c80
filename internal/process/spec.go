package process

import (
	"io"
	"os/exec"
	"strings"
)

// Spec describes a subprocess to spawn.
type Spec struct {
	Name    string    // used for log file names and diagnostics
	Command string    // base command line, e.g. "python main.py"
	Args    []string  // extra argv appended after Command, never shell-interpreted
	WorkDir string    // optional working directory
	Env     []string  // full environment; empty inherits the daemon's
	PIDFile string    // optional; written after start and removed after exit
	Stdin   io.Reader // optional; nil reads from the null device
	Stdout  io.Writer // optional; nil discards
	Stderr  io.Writer // optional; nil discards
}

// BuildCommand constructs an *exec.Cmd from s.
// A command containing shell metacharacters (or an explicit "sh -c") runs
// under /bin/sh with Args passed as positional parameters, so they are
// never re-parsed by the shell.
func (s *Spec) BuildCommand() *exec.Cmd {
	cmdStr := strings.TrimSpace(s.Command)
	if cmdStr == "" {
		// #nosec G204
		return exec.Command("/bin/true")
	}
	if script, ok := parseExplicitShell(cmdStr); ok {
		return shellCommand(script, s.Args)
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		return shellCommand(cmdStr, s.Args)
	}
	parts := strings.Fields(cmdStr)
	args := append(append([]string{}, parts[1:]...), s.Args...)
	// #nosec G204
	return exec.Command(parts[0], args...)
}

func shellCommand(script string, args []string) *exec.Cmd {
	if len(args) == 0 {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", script)
	}
	argv := append([]string{"-c", script + ` "$@"`, "sh"}, args...)
	// #nosec G204
	return exec.Command("/bin/sh", argv...)
}

// parseExplicitShell detects "sh -c <ARG>" style prefixes and returns the
// script with one pair of surrounding quotes stripped.
func parseExplicitShell(cmdStr string) (string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	for _, p := range []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "} {
		if !strings.HasPrefix(trim, p) {
			continue
		}
		after := trim[len(p):]
		if n := len(after); n >= 2 {
			if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
				after = after[1 : n-1]
			}
		}
		return after, true
	}
	return "", false
}
