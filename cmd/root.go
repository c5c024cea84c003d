package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/rowan/cmd/bench"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.1"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "rowan",
		Short: "row-store mutation engine",
		Long: fmt.Sprintf(`rowan (v%s)

An embeddable in-memory mutation engine for row-oriented storage,
providing multi-versioned updates, lock-free insert skip lists and
snapshot-isolated transactions.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of rowan",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("rowan v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(bench.BenchCmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
