package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

const defaultConfigPath = "minutes.yaml"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "minutes",
		Short:         "minutes turns meeting recordings into transcripts and notes",
		Long:          "minutes accepts uploaded meeting audio, transcribes it segment by segment, and summarizes it into a short recap with action items.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newDBCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newWorkerCmd())
	cmd.AddCommand(newProcessCmd())
	cmd.AddCommand(newMeetingCmd())
	cmd.AddCommand(newEnqueueCmd())
	cmd.AddCommand(newQueueCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "minutes %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func addConfigFlag(cmd *cobra.Command, p *string) {
	cmd.Flags().StringVarP(p, "config", "c", defaultConfigPath, "path to minutes config file")
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
