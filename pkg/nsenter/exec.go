package nsenter

import (
	"fmt"
	"os/exec"
	"strings"
)

// Output runs a command with its process started inside the named network
// namespace and returns its combined stdout/stderr. A non-zero exit is a
// fatal error carrying the trimmed output for diagnostics.
//
// The child inherits the namespace at process creation; it stays in the
// namespace for its whole lifetime regardless of the scope ending.
func Output(name string, argv ...string) (string, error) {
	if len(argv) == 0 {
		return "", fmt.Errorf("nsenter: empty command")
	}

	var out []byte
	err := Do(name, func() error {
		cmd := exec.Command(argv[0], argv[1:]...)
		var runErr error
		out, runErr = cmd.CombinedOutput()
		if runErr != nil {
			return fmt.Errorf("nsenter: %s in namespace %q: %w: %s",
				strings.Join(argv, " "), name, runErr, strings.TrimSpace(string(out)))
		}
		return nil
	})
	return string(out), err
}

// Start launches a prepared command inside the named network namespace and
// returns without waiting for it. The caller owns the process afterwards
// (Wait, signalling, pidfile bookkeeping).
func Start(name string, cmd *exec.Cmd) error {
	return Do(name, func() error {
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("nsenter: start %q in namespace %q: %w", cmd.Path, name, err)
		}
		return nil
	})
}
