// Netlab — disposable network topologies built from namespaces
//
// netlab builds router/switch topologies out of network namespaces,
// veth pairs, and host bridges, for exercising routing daemons against
// real kernel networking.
//
// Usage:
//
//	netlab up -f topology.yaml       Build the topology
//	netlab down                      Tear the topology down
//	netlab status                    Show topology status
//	netlab exec <router> -- cmd...   Run a command inside a router
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/netlab-sim/netlab/pkg/cli"
	"github.com/netlab-sim/netlab/pkg/util"
	"github.com/netlab-sim/netlab/pkg/version"
)

var verbose bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "netlab",
	Short:             "Disposable network topologies built from namespaces",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	Long: `Netlab builds disposable network topologies: routers are network
namespaces, links are veth pairs, switches are host bridges.

  netlab up -f topology.yaml`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := "warn"
		if verbose {
			level = "debug"
		}
		return util.SetLogLevel(level)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(
		newUpCmd(),
		newDownCmd(),
		newStatusCmd(),
		newExecCmd(),
		newVersionCmd(),
	)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			if version.Version == "dev" {
				fmt.Println("netlab dev build (use 'make build' for version info)")
			} else {
				fmt.Printf("netlab %s (%s)\n", version.Version, version.GitCommit)
			}
		},
	}
}

// requireRoot rejects commands that need to create or enter namespaces
// before any work starts.
func requireRoot() error {
	if os.Geteuid() != 0 {
		return fmt.Errorf("this command needs root (namespace and interface management)")
	}
	return nil
}

// Color helpers — delegate to pkg/cli
func green(s string) string { return cli.Green(s) }
func red(s string) string   { return cli.Red(s) }
