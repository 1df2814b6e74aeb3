package daemon

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/netlab-sim/netlab/pkg/topology"
	"github.com/netlab-sim/netlab/pkg/util"
)

// ExaBGPRouter is a router running ExaBGP. The daemon runs in the
// foreground inside the namespace; its pid is recorded for teardown.
// The exabgpcli named pipes live under the run directory.
type ExaBGPRouter struct {
	*topology.Router

	configFile string
	envFile    string
	pidFile    string
	logFile    string
	pipeBase   string
}

// NewExaBGPRouter validates the ExaBGP configuration and returns a
// router that launches the daemon on Create. The config file must exist
// and pass `exabgp --test`.
func NewExaBGPRouter(name, configFile string) (*ExaBGPRouter, error) {
	exabgpPath, err := exec.LookPath("exabgp")
	if err != nil {
		return nil, fmt.Errorf("daemon: exabgp binary not found in PATH: %w", err)
	}
	if _, err := os.Stat(configFile); err != nil {
		return nil, fmt.Errorf("daemon: exabgp config file %q: %w", configFile, err)
	}
	if out, err := exec.Command(exabgpPath, "--test", configFile).CombinedOutput(); err != nil {
		return nil, fmt.Errorf("daemon: validate exabgp config %q: %w: %s",
			configFile, err, strings.TrimSpace(string(out)))
	}

	router := topology.NewRouter(name)
	return &ExaBGPRouter{
		Router:     router,
		configFile: configFile,
		envFile:    router.RunDir() + "/exabgp.env",
		pidFile:    router.RunDir() + "/exabgp.pid",
		logFile:    router.RunDir() + "/exabgp.log",
		pipeBase:   router.RunDir() + "/exabgp",
	}, nil
}

// LogFile returns the path of the daemon's log file.
func (e *ExaBGPRouter) LogFile() string { return e.logFile }

// Create builds the underlying router, creates the exabgpcli pipes and
// environment file, then launches ExaBGP inside the namespace.
func (e *ExaBGPRouter) Create() error {
	if err := e.Router.Create(); err != nil {
		return err
	}

	for _, fifo := range []string{e.pipeBase + ".in", e.pipeBase + ".out"} {
		if err := unix.Mkfifo(fifo, 0o600); err != nil {
			return fmt.Errorf("daemon: create exabgp pipe %q: %w", fifo, err)
		}
	}
	if err := e.writeEnvFile(); err != nil {
		return err
	}

	util.WithNode(e.Name()).Infof("Starting exabgp with config %q", e.configFile)
	cmd := exec.Command("exabgp", "--env", e.envFile, e.configFile)
	if err := e.StartInNS(cmd); err != nil {
		return fmt.Errorf("daemon: start exabgp on router %q: %w", e.Name(), err)
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return fmt.Errorf("daemon: release exabgp process on router %q: %w", e.Name(), err)
	}
	return writePIDFile(e.pidFile, pid)
}

// Remove terminates the daemon by pidfile, removes the pipes, then
// tears the router down. Already-absent pipes are fine.
func (e *ExaBGPRouter) Remove() error {
	errs := []error{stopByPIDFile(e.pidFile, "exabgp")}
	for _, fifo := range []string{e.pipeBase + ".in", e.pipeBase + ".out"} {
		if err := os.Remove(fifo); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("daemon: remove exabgp pipe %q: %w", fifo, err))
		}
	}
	errs = append(errs, e.Router.Remove())
	return errors.Join(errs...)
}

// CLI runs exabgpcli against the daemon's pipes and returns its output
// split into lines.
func (e *ExaBGPRouter) CLI(args ...string) ([]string, error) {
	argv := append([]string{"exabgpcli", "--env", e.envFile}, args...)
	out, err := e.RunInNS(argv...)
	if err != nil {
		return nil, fmt.Errorf("daemon: exabgpcli on router %q: %w", e.Name(), err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// writeEnvFile renders the ExaBGP environment file pointing the daemon
// and exabgpcli at the run directory.
func (e *ExaBGPRouter) writeEnvFile() error {
	env := fmt.Sprintf(`[exabgp.api]
pipename = '%s'

[exabgp.daemon]
user = 'root'

[exabgp.log]
all = true
destination = '%s'
`, e.pipeBase, e.logFile)
	if err := os.WriteFile(e.envFile, []byte(env), 0o644); err != nil {
		return fmt.Errorf("daemon: write exabgp env file %q: %w", e.envFile, err)
	}
	return nil
}
