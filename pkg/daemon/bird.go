package daemon

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/netlab-sim/netlab/pkg/topology"
	"github.com/netlab-sim/netlab/pkg/util"
)

// BirdRouter is a router running the BIRD routing daemon. The control
// socket and pidfile live under the router's run directory.
type BirdRouter struct {
	*topology.Router

	configFile    string
	controlSocket string
	pidFile       string
}

// NewBirdRouter validates the BIRD configuration and returns a router
// that launches the daemon on Create. The config file must exist and
// pass `bird -c <file> -p`; both checks run before any resource is
// created.
func NewBirdRouter(name, configFile string) (*BirdRouter, error) {
	birdPath, err := exec.LookPath("bird")
	if err != nil {
		return nil, fmt.Errorf("daemon: bird binary not found in PATH: %w", err)
	}
	if _, err := os.Stat(configFile); err != nil {
		return nil, fmt.Errorf("daemon: bird config file %q: %w", configFile, err)
	}
	if out, err := exec.Command(birdPath, "-c", configFile, "-p").CombinedOutput(); err != nil {
		return nil, fmt.Errorf("daemon: validate bird config %q: %w: %s",
			configFile, err, strings.TrimSpace(string(out)))
	}

	router := topology.NewRouter(name)
	return &BirdRouter{
		Router:        router,
		configFile:    configFile,
		controlSocket: router.RunDir() + "/bird.sock",
		pidFile:       router.RunDir() + "/bird.pid",
	}, nil
}

// ControlSocket returns the path of the daemon's control socket.
func (b *BirdRouter) ControlSocket() string { return b.controlSocket }

// Create builds the underlying router, then launches BIRD inside its
// namespace. BIRD daemonizes itself and writes its own pidfile.
func (b *BirdRouter) Create() error {
	if err := b.Router.Create(); err != nil {
		return err
	}

	util.WithNode(b.Name()).Infof("Starting bird with config %q", b.configFile)
	if _, err := b.RunInNS("bird", "-c", b.configFile, "-s", b.controlSocket, "-P", b.pidFile); err != nil {
		return fmt.Errorf("daemon: start bird on router %q: %w", b.Name(), err)
	}
	return nil
}

// Remove terminates the daemon by pidfile, then tears the router down.
func (b *BirdRouter) Remove() error {
	return errors.Join(
		stopByPIDFile(b.pidFile, "bird"),
		b.Router.Remove(),
	)
}

// Birdc sends a command to the daemon over its control socket and
// returns the raw response.
func (b *BirdRouter) Birdc(args ...string) (string, error) {
	argv := append([]string{"birdc", "-s", b.controlSocket}, args...)
	out, err := b.RunInNS(argv...)
	if err != nil {
		return "", fmt.Errorf("daemon: birdc on router %q: %w", b.Name(), err)
	}
	return out, nil
}
