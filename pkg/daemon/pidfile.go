// Package daemon wraps topology routers with managed routing daemons.
// Each wrapper validates its configuration up front, launches the daemon
// inside the router's namespace during Create, and terminates it by
// pidfile during Remove.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/netlab-sim/netlab/pkg/util"
)

// writePIDFile records a process ID for later termination.
func writePIDFile(path string, pid int) error {
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return fmt.Errorf("daemon: write pidfile %q: %w", path, err)
	}
	return nil
}

// readPIDFile returns the recorded process ID. A missing file returns
// os.ErrNotExist; unparseable content is an error.
func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("daemon: pidfile %q: parse %q: %w", path, strings.TrimSpace(string(data)), err)
	}
	return pid, nil
}

// stopByPIDFile SIGTERMs the process recorded in the pidfile and removes
// the file. A missing pidfile or an already-gone process is not an error;
// teardown must work on half-built state.
func stopByPIDFile(path, daemonName string) error {
	pid, err := readPIDFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		if !errors.Is(err, unix.ESRCH) {
			return fmt.Errorf("daemon: terminate %s (pid %d): %w", daemonName, pid, err)
		}
		util.Warnf("%s process %d already gone", daemonName, pid)
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("daemon: remove pidfile %q: %w", path, err)
	}
	return nil
}
