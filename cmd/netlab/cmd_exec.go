package main

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/vishvananda/netns"

	"github.com/netlab-sim/netlab/pkg/topology"
)

func newExecCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exec <router> -- <command> [args...]",
		Short: "Run a command inside a router's namespace",
		Long: `Replace the netlab process with a command running inside the named
router's network namespace.

  netlab exec r1 -- ip route
  netlab exec r1 -- birdc -s /run/netlab/<namespace>/bird.sock show protocols`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireRoot(); err != nil {
				return err
			}
			state, err := topology.LoadState()
			if err != nil {
				return err
			}
			router, ok := state.Routers[args[0]]
			if !ok {
				return fmt.Errorf("no router %q in the running topology", args[0])
			}

			binary, err := exec.LookPath(args[1])
			if err != nil {
				return err
			}
			return execInNamespace(router.Namespace, binary, args[1:])
		},
	}
}

// execInNamespace switches the calling thread into the namespace and
// replaces the process. No restore is needed: on success the process
// image is gone, on failure the process exits anyway.
func execInNamespace(namespace, binary string, argv []string) error {
	runtime.LockOSThread()

	target, err := netns.GetFromName(namespace)
	if err != nil {
		return fmt.Errorf("resolve namespace %q: %w", namespace, err)
	}
	defer target.Close()
	if err := netns.Set(target); err != nil {
		return fmt.Errorf("enter namespace %q: %w", namespace, err)
	}

	return syscallExec(binary, argv, os.Environ())
}
