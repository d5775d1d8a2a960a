// Package cmd implements the rabia command-line tool: generating a cluster
// topology file and running a replica against it, grounded on the
// teacher's cli/ubft/cmd package layout (one cobra.Command constructor per
// subcommand, one flag struct per command).
package cmd

import (
	"github.com/spf13/cobra"
)

// New builds the root rabia command.
func New() *cobra.Command {
	root := &cobra.Command{
		Use:           "rabia",
		Short:         "A leaderless crash-fault-tolerant consensus replica",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newTopologyCmd())
	root.AddCommand(newRunCmd())
	return root
}
