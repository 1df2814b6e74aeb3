package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/netlab-sim/netlab/pkg/spec"
	"github.com/netlab-sim/netlab/pkg/topology"
)

func newUpCmd() *cobra.Command {
	var specFile string

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Build the topology from a topology file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireRoot(); err != nil {
				return err
			}
			if _, err := topology.LoadState(); err == nil {
				return fmt.Errorf("a topology is already up; run 'netlab down' first")
			} else if !errors.Is(err, os.ErrNotExist) {
				return err
			}

			file, err := spec.Load(specFile)
			if err != nil {
				return err
			}
			topo, err := file.Build()
			if err != nil {
				return err
			}

			fmt.Printf("Building topology from %s...\n", specFile)
			// A failed Run has already rolled back everything it created.
			if err := topo.Run(); err != nil {
				return err
			}
			if err := topology.SaveState(topology.Snapshot(topo, specFile)); err != nil {
				return err
			}

			fmt.Printf("\n%s Topology up (%d nodes)\n", green("✓"), len(topo.Nodes()))
			return nil
		},
	}

	cmd.Flags().StringVarP(&specFile, "file", "f", "topology.yaml", "topology file")
	return cmd
}
