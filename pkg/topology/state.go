package topology

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"github.com/netlab-sim/netlab/pkg/nsenter"
	"github.com/netlab-sim/netlab/pkg/util"
)

// State is persisted to /run/netlab/state.json so a fresh process can
// tear a topology down without the objects that built it.
type State struct {
	Created  time.Time               `json:"created"`
	SpecFile string                  `json:"spec_file,omitempty"`
	Routers  map[string]*RouterState `json:"routers"`
	Switches map[string]*SwitchState `json:"switches"`
}

// RouterState records the kernel-visible identity of a router.
type RouterState struct {
	Namespace string `json:"namespace"`
	RunDir    string `json:"run_dir"`
}

// SwitchState records the host bridge device of a switch.
type SwitchState struct {
	Bridge string `json:"bridge"`
}

// Nodes that map to a namespace or a bridge expose it through these.
// Daemon wrappers embedding Router satisfy namespacer via promotion.
type namespacer interface {
	Namespace() string
	RunDir() string
}

type bridger interface {
	BridgeName() string
}

// StatePath returns the persisted state file location.
func StatePath() string {
	return runRoot + "/state.json"
}

// Snapshot captures the kernel-visible identities of a topology's nodes.
func Snapshot(topo *Topology, specFile string) *State {
	state := &State{
		Created:  time.Now().UTC(),
		SpecFile: specFile,
		Routers:  make(map[string]*RouterState),
		Switches: make(map[string]*SwitchState),
	}
	for _, node := range topo.Nodes() {
		switch n := node.(type) {
		case namespacer:
			state.Routers[node.Name()] = &RouterState{
				Namespace: n.Namespace(),
				RunDir:    n.RunDir(),
			}
		case bridger:
			state.Switches[node.Name()] = &SwitchState{Bridge: n.BridgeName()}
		}
	}
	return state
}

// SaveState writes the state file.
func SaveState(state *State) error {
	if err := os.MkdirAll(runRoot, 0o755); err != nil {
		return fmt.Errorf("topology: create %s: %w", runRoot, err)
	}
	data, err := json.MarshalIndent(state, "", "    ")
	if err != nil {
		return fmt.Errorf("topology: marshal state: %w", err)
	}
	if err := os.WriteFile(StatePath(), data, 0o644); err != nil {
		return fmt.Errorf("topology: write state: %w", err)
	}
	return nil
}

// LoadState reads the state file. A missing file means no topology is
// up; callers distinguish that via os.ErrNotExist.
func LoadState() (*State, error) {
	data, err := os.ReadFile(StatePath())
	if err != nil {
		return nil, err
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("topology: parse %s: %w", StatePath(), err)
	}
	return &state, nil
}

// RemoveState deletes the state file.
func RemoveState() error {
	if err := os.Remove(StatePath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("topology: remove state: %w", err)
	}
	return nil
}

// Cleanup tears down everything the state records, from scratch: daemon
// processes found via pidfiles in the run directories, then namespaces
// and run directories, then bridges. Individual failures are logged and
// collected, never fatal mid-cleanup.
func (s *State) Cleanup() error {
	var errs []error
	for name, router := range s.Routers {
		log := util.WithNode(name).WithField("namespace", router.Namespace)
		log.Info("Cleaning up router")

		stopPIDFiles(router.RunDir)
		if err := nsenter.DeleteNamed(router.Namespace); err != nil {
			log.Warnf("Namespace removal failed: %v", err)
			errs = append(errs, err)
		}
		if err := os.RemoveAll(router.RunDir); err != nil {
			log.Warnf("Run directory removal failed: %v", err)
			errs = append(errs, err)
		}
	}
	for name, sw := range s.Switches {
		log := util.WithNode(name).WithField("bridge", sw.Bridge)
		log.Info("Cleaning up switch")

		link, err := netlink.LinkByName(sw.Bridge)
		if err != nil {
			var notFound netlink.LinkNotFoundError
			if !errors.As(err, &notFound) {
				log.Warnf("Bridge lookup failed: %v", err)
				errs = append(errs, err)
			}
			continue
		}
		if err := netlink.LinkDel(link); err != nil {
			log.Warnf("Bridge removal failed: %v", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// stopPIDFiles SIGTERMs every process recorded in a run directory.
// Best effort: stale pidfiles and vanished processes are expected here.
func stopPIDFiles(runDir string) {
	pidFiles, err := filepath.Glob(runDir + "/*.pid")
	if err != nil {
		return
	}
	for _, path := range pidFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
		if err != nil {
			util.Warnf("Ignoring unparseable pidfile %q", path)
			continue
		}
		if err := unix.Kill(pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
			util.Warnf("Terminating pid %d from %q failed: %v", pid, path, err)
		}
	}
}
