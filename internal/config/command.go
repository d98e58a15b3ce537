package config

import (
	"fmt"

	"github.com/google/shlex"
)

// ParseCommand parses a shell-style command string into arguments, handling
// quoting the way a shell would:
//   - "sh -c 'cd /dir && cmd'" -> ["sh", "-c", "cd /dir && cmd"]
//   - `npx -y -- @google/gemini-cli@latest --experimental-acp` -> [...]
//
// Returns an error if the command string has invalid quoting or is empty.
func ParseCommand(command string) ([]string, error) {
	args, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("failed to parse command %q: %w", command, err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return args, nil
}
