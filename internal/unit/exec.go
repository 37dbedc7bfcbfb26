package unit

import (
	"fmt"
	"strings"
)

// ExecCommand is one command in a service's ExecStart=/ExecStop=/
// ExecReload= sequence (SPEC_FULL.md §4.5 expansion, grounded on
// original_source/core/libcore/src/exec/cmd.rs's ExecCommand/ExecFlag).
// A kind with several ExecXxx= lines runs them in order; IgnoreFailure
// commands whose process exits non-zero don't fail the sub-state-machine
// step they belong to.
type ExecCommand struct {
	Path             string
	Argv             []string
	Env              []string
	WorkingDirectory string

	// IgnoreFailure corresponds to the "-" prefix: a non-zero exit from
	// this command doesn't fail the step.
	IgnoreFailure bool
	// FullyPrivileged corresponds to the "+" prefix: run without the
	// service's configured User=/Group=/capability drop.
	FullyPrivileged bool
	// NoSetUID corresponds to the "!" prefix.
	NoSetUID bool
}

// ParseExecLine parses a single ExecXxx= value the way the original
// parser's prefix scan does: leading run-modifier characters ("-", "+",
// "!") before the path, then a whitespace-separated argv. The path must be
// absolute, matching the original's path_is_abosolute check.
func ParseExecLine(line string) (ExecCommand, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return ExecCommand{}, fmt.Errorf("unit: empty exec line")
	}

	var cmd ExecCommand
	i := 0
	for i < len(line) {
		switch line[i] {
		case '-':
			cmd.IgnoreFailure = true
		case '+':
			cmd.FullyPrivileged = true
		case '!':
			cmd.NoSetUID = true
		default:
			goto prefixDone
		}
		i++
	}
prefixDone:
	rest := strings.TrimSpace(line[i:])
	if rest == "" {
		return ExecCommand{}, fmt.Errorf("unit: exec line %q has no command after prefix", line)
	}

	fields := strings.Fields(rest)
	path := fields[0]
	if !strings.HasPrefix(path, "/") {
		return ExecCommand{}, fmt.Errorf("unit: exec command path %q must be absolute", path)
	}

	cmd.Path = path
	cmd.Argv = fields
	return cmd, nil
}

// ParseExecCommands splits a multi-line ExecXxx= block (one invocation per
// non-empty line) into an ordered ExecCommand sequence.
func ParseExecCommands(block string) ([]ExecCommand, error) {
	var out []ExecCommand
	for _, line := range strings.Split(block, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		cmd, err := ParseExecLine(line)
		if err != nil {
			return nil, err
		}
		out = append(out, cmd)
	}
	return out, nil
}
