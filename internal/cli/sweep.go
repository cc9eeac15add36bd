package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rileyhilliard/fleet/internal/availability"
	"github.com/rileyhilliard/fleet/internal/config"
	"github.com/rileyhilliard/fleet/internal/store"
	"github.com/rileyhilliard/fleet/internal/ui"
	"github.com/spf13/cobra"
)

var (
	sweepFlags   TuningFlags
	recheckFlags TuningFlags
	updatesLimit int
)

var sweepCmd = &cobra.Command{
	Use:   "sweep [cidr]",
	Short: "Ping every address of a network and update the inventory",
	Long: `Ping every usable address of an IPv4 network and record which hosts
answered. Hosts that change state are listed as new, back or lost.

Without an argument the network comes from the config, then from the
first non-loopback interface. ICMP needs raw socket privileges (or
ping.privileged: false on Linux); without them a TCP connect to
ping.tcp_port is used instead.

Examples:
  fleet sweep
  fleet sweep 10.0.0.0/24
  fleet sweep 10.0.0.0/22 --chunk-size 256 --timeout 2s`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cidr := ""
		if len(args) == 1 {
			cidr = args[0]
		}
		return withApp(cmd, appOptions{Override: pingOverride(sweepFlags)}, func(ctx context.Context, a *app) error {
			return sweepCommand(ctx, a, cidr)
		})
	},
}

var recheckCmd = &cobra.Command{
	Use:   "recheck <selection>",
	Short: "Ping the selected hosts again",
	Long: `Ping the hosts of a selection and update their state, without sweeping
a whole network.

Examples:
  fleet recheck %prod
  fleet recheck 'web1|web2'`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query, err := queryArg(args)
		if err != nil {
			return err
		}
		return withApp(cmd, appOptions{Override: pingOverride(recheckFlags)}, func(ctx context.Context, a *app) error {
			return recheckCommand(ctx, a, query)
		})
	},
}

var updatesCmd = &cobra.Command{
	Use:   "updates",
	Short: "Show recent sweeps and rechecks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
			return updatesCommand(ctx, a, updatesLimit)
		})
	},
}

func init() {
	AddTuningFlags(sweepCmd, &sweepFlags, "ping timeout per address (e.g., 2s)")
	AddTuningFlags(recheckCmd, &recheckFlags, "ping timeout per host (e.g., 2s)")
	updatesCmd.Flags().IntVarP(&updatesLimit, "limit", "n", 20, "number of updates to show")

	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(recheckCmd)
	rootCmd.AddCommand(updatesCmd)
}

func pingOverride(f TuningFlags) func(*config.Config) error {
	return func(cfg *config.Config) error {
		return f.Apply(&cfg.Ping.ChunkSize, &cfg.Ping.Timeout)
	}
}

func sweepCommand(ctx context.Context, a *app, cidr string) error {
	sum, err := a.svc.Sweep(ctx, cidr)
	if err != nil {
		return err
	}
	return a.emit(toSummaryJSON(sum), func() { printSummary(a.out, sum) })
}

func recheckCommand(ctx context.Context, a *app, query string) error {
	sum, err := a.svc.Recheck(ctx, query)
	if err != nil {
		return err
	}
	return a.emit(toSummaryJSON(sum), func() { printSummary(a.out, sum) })
}

func printSummary(w io.Writer, sum availability.BatchSummary) {
	for _, c := range sum.Changes {
		fmt.Fprintln(w, ui.TransitionLine(c.FQDN, c.Outcome.String()))
	}
	if len(sum.Changes) > 0 {
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "%s up  %s down  %d back  %d lost  %d new  %s\n",
		ui.SuccessStyle().Render(strconv.Itoa(sum.Up)),
		ui.ErrorStyle().Render(strconv.Itoa(sum.Down)),
		sum.Back, sum.Lost, sum.New,
		ui.MutedStyle().Render("in "+sum.Duration.Round(time.Millisecond).String()))
}

func updatesCommand(ctx context.Context, a *app, limit int) error {
	ups, err := a.svc.Updates(ctx, limit)
	if err != nil {
		return err
	}
	data := make([]updateJSON, len(ups))
	for i, u := range ups {
		data[i] = toUpdateJSON(u)
	}
	return a.emit(data, func() {
		if len(ups) == 0 {
			fmt.Fprintln(a.out, "No sweeps recorded yet. Run 'fleet sweep'.")
			return
		}
		fmt.Fprint(a.out, renderUpdates(ups))
	})
}

func renderUpdates(ups []store.HostUpdate) string {
	cols := []ui.TableColumn{
		{Title: "TIME", Width: 20},
		{Title: "TARGET", Width: 28},
		{Title: "UP", Width: 6},
		{Title: "DOWN", Width: 6},
		{Title: "BACK", Width: 6},
		{Title: "LOST", Width: 6},
		{Title: "NEW", Width: 6},
		{Title: "TOOK", Width: 10},
	}
	rows := make([][]string, len(ups))
	for i, u := range ups {
		target := u.Network
		if target == "" {
			target = u.Selection
		}
		rows[i] = []string{
			u.UpdateTime.Local().Format("2006-01-02 15:04:05"),
			target,
			strconv.Itoa(u.Up),
			strconv.Itoa(u.Down),
			strconv.Itoa(u.Back),
			strconv.Itoa(u.Lost),
			strconv.Itoa(u.New),
			u.Duration.Round(time.Millisecond).String(),
		}
	}
	return ui.RenderSimpleTable(cols, rows) + "\n"
}
