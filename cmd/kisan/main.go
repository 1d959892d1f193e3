package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "kisan",
	Short: "Offline-first agricultural advisory daemon",
	Long: `kisan answers farming questions through a remote advisory service and
keeps working when the network does not: questions asked while offline are
queued locally and answered automatically once connectivity returns.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the kisan version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("kisan version " + version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(diagnoseCmd)
	rootCmd.AddCommand(queriesCmd)
	rootCmd.AddCommand(connectivityCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(expertsCmd)
	rootCmd.AddCommand(schemesCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dataCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
