package main

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"

	"github.com/netlab-sim/netlab/pkg/cli"
	"github.com/netlab-sim/netlab/pkg/topology"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show topology status",
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := topology.LoadState()
			if errors.Is(err, os.ErrNotExist) {
				fmt.Println("No topology is up")
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Printf("Topology from %s, created %s\n\n",
				state.SpecFile, state.Created.Format("2006-01-02 15:04:05 MST"))

			table := cli.NewTable("NODE", "KIND", "BACKING", "STATUS")
			for _, name := range sortedKeys(state.Routers) {
				router := state.Routers[name]
				table.Row(name, "router", router.Namespace, namespaceStatus(router.Namespace))
			}
			for _, name := range sortedKeys(state.Switches) {
				sw := state.Switches[name]
				table.Row(name, "switch", sw.Bridge, bridgeStatus(sw.Bridge))
			}
			table.Flush()
			return nil
		},
	}
}

// sortedKeys keeps status output stable run to run.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func namespaceStatus(namespace string) string {
	handle, err := netns.GetFromName(namespace)
	if err != nil {
		return red("gone")
	}
	handle.Close()
	return green("up")
}

func bridgeStatus(bridge string) string {
	if _, err := netlink.LinkByName(bridge); err != nil {
		return red("gone")
	}
	return green("up")
}
