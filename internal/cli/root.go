package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
)

// rootCmd is the root command for explorer.
var rootCmd = &cobra.Command{
	Use:     "explorer",
	Version: "dev",
	Short:   "Autonomous grid exploration agent",
	Long: `explorer drives a simulated agent through an unknown environment.

It builds an occupancy grid from range scans, plans routes toward unexplored
regions and recovers when a motion fails to move the agent.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

func SetVersion(v string) {
	if v == "" {
		return
	}
	rootCmd.Version = v
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

// Execute runs the command line
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML config file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the explorer version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), rootCmd.Version)
		},
	})
}
