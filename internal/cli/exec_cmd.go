package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/rileyhilliard/fleet/internal/config"
	"github.com/rileyhilliard/fleet/internal/errors"
	"github.com/rileyhilliard/fleet/internal/remote"
	"github.com/rileyhilliard/fleet/internal/store"
	"github.com/rileyhilliard/fleet/internal/ui"
	"github.com/spf13/cobra"
)

var (
	execFlags       TuningFlags
	scriptFlags     TuningFlags
	execFull        bool
	executionsLimit int
)

var execCmd = &cobra.Command{
	Use:   "exec <selection> -- <command>",
	Short: "Run a command on the selected hosts",
	Long: `Run a shell command over SSH on every host of a selection, a chunk of
hosts at a time, and record each outcome.

Each line shows the host, the first line of output and how long it took.
✓ means exit status 0, ❌ a non-zero status and ⚠ that the command never
reported one (connection failure, or ssh.exec_timeout expired).

Examples:
  fleet exec %prod -- uptime
  fleet exec 'web1|web2' -- systemctl is-active nginx
  fleet exec %db --chunk-size 1 --timeout 5m -- pg_dumpall -g`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		query, command, err := splitAtDash(cmd, args)
		if err != nil {
			return err
		}
		return withApp(cmd, appOptions{Remote: true, Override: sshOverride(execFlags)}, func(ctx context.Context, a *app) error {
			return execCommand(ctx, a, query, command, execFull)
		})
	},
}

var scriptCmd = &cobra.Command{
	Use:   "script <selection> <file>",
	Short: "Run a local script on the selected hosts",
	Long: `Feed a local script to 'sh -s' on every host of a selection.

Examples:
  fleet script %prod ./checks/disk.sh`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		query, err := queryArg(args[:len(args)-1])
		if err != nil {
			return err
		}
		path := args[len(args)-1]
		return withApp(cmd, appOptions{Remote: true, Override: sshOverride(scriptFlags)}, func(ctx context.Context, a *app) error {
			return scriptCommand(ctx, a, query, path, execFull)
		})
	},
}

var executionsCmd = &cobra.Command{
	Use:   "executions [fqdn]",
	Short: "Show recorded remote commands",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fqdn := ""
		if len(args) == 1 {
			fqdn = args[0]
		}
		return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
			return executionsCommand(ctx, a, fqdn, executionsLimit, execFull)
		})
	},
}

func init() {
	AddTuningFlags(execCmd, &execFlags, "time allowed for the command on each host (e.g., 30s)")
	AddTuningFlags(scriptCmd, &scriptFlags, "time allowed for the script on each host (e.g., 5m)")
	for _, c := range []*cobra.Command{execCmd, scriptCmd, executionsCmd} {
		c.Flags().BoolVar(&execFull, "full", false, "print complete stdout and stderr")
	}
	executionsCmd.Flags().IntVarP(&executionsLimit, "limit", "n", 50, "number of executions to show")

	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(scriptCmd)
	rootCmd.AddCommand(executionsCmd)
}

func sshOverride(f TuningFlags) func(*config.Config) error {
	return func(cfg *config.Config) error {
		return f.Apply(&cfg.SSH.ChunkSize, &cfg.SSH.ExecTimeout)
	}
}

// splitAtDash separates the selection from the command. Without "--" the
// first argument is the selection.
func splitAtDash(cmd *cobra.Command, args []string) (string, string, error) {
	at := cmd.ArgsLenAtDash()
	if at < 0 {
		at = 1
	}
	query, err := queryArg(args[:at])
	if err != nil {
		return "", "", err
	}
	command := strings.TrimSpace(strings.Join(args[at:], " "))
	if command == "" {
		return "", "", errors.New(errors.ErrExec,
			"What should I run?",
			"Usage: fleet exec <selection> -- <command>  (e.g., fleet exec %prod -- uptime)")
	}
	return query, command, nil
}

func execCommand(ctx context.Context, a *app, query, command string, full bool) error {
	results, err := a.svc.Exec(ctx, query, command)
	return reportResults(a, results, err, full)
}

func scriptCommand(ctx context.Context, a *app, query, path string, full bool) error {
	results, err := a.svc.RunScript(ctx, query, path)
	return reportResults(a, results, err, full)
}

// reportResults prints one line per host and turns failures into exit
// status 1. A store error after the run still shows the results.
func reportResults(a *app, results []remote.ExecutionResult, runErr error, full bool) error {
	if results == nil && runErr != nil {
		return runErr
	}

	data := make([]executionJSON, len(results))
	failed := 0
	for i, r := range results {
		data[i] = fromResult(r)
		if r.ReturnCode != 0 {
			failed++
		}
	}
	if err := a.emit(data, func() {
		for _, r := range results {
			fmt.Fprintln(a.out, ui.RenderExecution(ui.ExecutionLine{
				User:     r.User,
				Host:     r.Target.FQDN,
				Cmdline:  r.Cmdline,
				Code:     r.ReturnCode,
				Output:   r.FirstLine(),
				Duration: r.Duration(),
			}))
			if full {
				printOutput(a, r.Stdout, r.Stderr)
			}
		}
		fmt.Fprintf(a.out, "\n%d ok, %d failed\n", len(results)-failed, failed)
	}); err != nil {
		return err
	}

	if runErr != nil {
		return runErr
	}
	if failed > 0 {
		return errors.NewExitError(1)
	}
	return nil
}

func printOutput(a *app, stdout, stderr string) {
	for _, line := range strings.Split(stdout, "\n") {
		if line != "" {
			fmt.Fprintln(a.out, "    "+line)
		}
	}
	for _, line := range strings.Split(stderr, "\n") {
		if line != "" {
			fmt.Fprintln(a.out, "    "+ui.ErrorStyle().Render(line))
		}
	}
}

func executionsCommand(ctx context.Context, a *app, fqdn string, limit int, full bool) error {
	execs, err := a.svc.Executions(ctx, fqdn, limit)
	if err != nil {
		return err
	}
	data := make([]executionJSON, len(execs))
	for i, e := range execs {
		data[i] = fromExecution(e)
	}
	return a.emit(data, func() {
		if len(execs) == 0 {
			fmt.Fprintln(a.out, "No executions recorded.")
			return
		}
		for _, e := range execs {
			fmt.Fprintln(a.out, ui.MutedStyle().Render(e.Start.Local().Format("2006-01-02 15:04:05"))+"  "+renderStored(e))
			if full {
				printOutput(a, e.Stdout, e.Stderr)
			}
		}
	})
}

func renderStored(e store.Execution) string {
	output := firstNonEmpty(e.Stdout, e.Stderr, e.Status)
	return ui.RenderExecution(ui.ExecutionLine{
		User:     e.User,
		Host:     e.FQDN,
		Cmdline:  e.Cmdline,
		Code:     e.ReturnCode,
		Output:   output,
		Duration: e.End.Sub(e.Start),
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			line, _, _ := strings.Cut(s, "\n")
			return line
		}
	}
	return ""
}
