package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"

	"github.com/rileyhilliard/fleet/internal/errors"
	"github.com/rileyhilliard/fleet/internal/ui"
	"github.com/spf13/cobra"
)

// Global flags
var (
	cfgFile     string
	noColor     bool
	debugFlag   bool
	metricsFile string
)

var rootCmd = &cobra.Command{
	Use:   "fleet",
	Short: "Inventory, health checks and remote commands for a fleet of hosts",
	Long: `fleet keeps an inventory of the hosts on your networks.

It sweeps networks with ping, tracks when each host was last seen up or
down, selects hosts with a small query language, runs commands on them
over SSH and checks the health of URLs and SNMP agents. Everything it
learns is kept in a local SQLite database.

Selections:
  web1              the host named web1
  %prod             hosts tagged prod
  %prod&!%db        tagged prod but not db
  web1|web2         either host

Examples:
  fleet sweep 192.168.1.0/24
  fleet hosts
  fleet exec %prod -- uptime`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor || os.Getenv("NO_COLOR") != "" || machineMode {
			ui.DisableColors()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./fleet.yaml, then ~/.config/fleet/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "log at debug level")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "write prometheus metrics to this textfile after the command")
	rootCmd.PersistentFlags().BoolVar(&machineMode, "json", false, "print machine-readable JSON")
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	os.Exit(run(context.Background()))
}

func run(ctx context.Context) int {
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var exitErr *errors.ExitError
	if stderrors.As(err, &exitErr) {
		return exitErr.Code
	}

	if machineMode {
		_ = WriteJSONFromError(rootCmd.OutOrStdout(), err)
	} else {
		fmt.Fprintln(rootCmd.ErrOrStderr(), err)
	}
	return 1
}
