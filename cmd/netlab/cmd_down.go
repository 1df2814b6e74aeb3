package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/netlab-sim/netlab/pkg/topology"
)

func newDownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Tear the topology down",
		Long: `Tear down the running topology using the persisted state file.

Works from a fresh process: daemons are terminated by pidfile, then
namespaces, run directories, and bridges are removed. Already-gone
resources are skipped, so a second 'netlab down' is harmless.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireRoot(); err != nil {
				return err
			}
			state, err := topology.LoadState()
			if errors.Is(err, os.ErrNotExist) {
				fmt.Println("No topology is up")
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Println("Destroying topology...")
			if err := state.Cleanup(); err != nil {
				return err
			}
			if err := topology.RemoveState(); err != nil {
				return err
			}
			fmt.Printf("%s Topology destroyed\n", green("✓"))
			return nil
		},
	}
}
