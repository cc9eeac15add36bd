package cli

import (
	"context"
	"fmt"

	"github.com/rileyhilliard/fleet/internal/inventory"
	"github.com/rileyhilliard/fleet/internal/ui"
	"github.com/rileyhilliard/fleet/internal/util"
	"github.com/spf13/cobra"
)

var (
	hostsAll      bool
	hostAddIP     string
	hostAddUser   string
	hostUserKey   string
	hostRemoveYes bool
)

var hostsCmd = &cobra.Command{
	Use:   "hosts [selection]",
	Short: "List the inventory",
	Long: `List hosts with their latest state. Hosts that never answered a probe
are hidden unless --all is given.

Examples:
  fleet hosts
  fleet hosts --all
  fleet hosts %prod --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		query := ""
		if len(args) > 0 {
			var err error
			if query, err = queryArg(args); err != nil {
				return err
			}
		}
		return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
			return hostsCommand(ctx, a, query, hostsAll)
		})
	},
}

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Add, remove and configure inventory hosts",
}

var hostAddCmd = &cobra.Command{
	Use:   "add <fqdn>",
	Short: "Add a host by name",
	Long: `Add a host that sweeps can't discover, e.g. one on another network.
Probes use --ip when given and resolve the name otherwise.

Examples:
  fleet host add db1.example.com
  fleet host add db1.example.com --ip 10.2.0.5 --user admin`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
			return hostAddCommand(ctx, a, args[0], hostAddIP, hostAddUser)
		})
	},
}

var hostRemoveCmd = &cobra.Command{
	Use:     "rm <fqdn>",
	Aliases: []string{"remove"},
	Short:   "Remove a host with its tags and executions",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !hostRemoveYes {
			ok, err := ui.Confirm(fmt.Sprintf("Remove %s with its tags and execution history?", args[0]), true)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
				return nil
			}
		}
		return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
			return hostRemoveCommand(ctx, a, args[0])
		})
	},
}

var hostUserCmd = &cobra.Command{
	Use:   "user <fqdn> <user>",
	Short: "Set the SSH login of a host",
	Long: `Set the user (and optionally the private key) used to log in to a host.
These override ssh.user and the fleet key for that host.

Examples:
  fleet host user web1 deploy
  fleet host user web1 deploy --key ~/.ssh/web1_ed25519`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
			return hostUserCommand(ctx, a, args[0], args[1], hostUserKey)
		})
	},
}

var hostImportCmd = &cobra.Command{
	Use:   "import [ssh_config]",
	Short: "Import the hosts of an ssh_config file",
	Long: `Add every concrete Host alias of an ssh_config file to the inventory,
with its User and IdentityFile as the login, tagged ssh-config.
Defaults to ~/.ssh/config.

Examples:
  fleet host import
  fleet host import ~/work/ssh_config`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
			return hostImportCommand(ctx, a, path)
		})
	},
}

func init() {
	hostsCmd.Flags().BoolVarP(&hostsAll, "all", "a", false, "include hosts never seen up")

	hostAddCmd.Flags().StringVar(&hostAddIP, "ip", "", "address to probe instead of resolving the name")
	hostAddCmd.Flags().StringVar(&hostAddUser, "user", "", "SSH login for this host")
	hostRemoveCmd.Flags().BoolVarP(&hostRemoveYes, "yes", "y", false, "don't ask for confirmation")
	hostUserCmd.Flags().StringVar(&hostUserKey, "key", "", "private key for this host")

	hostCmd.AddCommand(hostAddCmd)
	hostCmd.AddCommand(hostRemoveCmd)
	hostCmd.AddCommand(hostUserCmd)
	hostCmd.AddCommand(hostImportCmd)

	rootCmd.AddCommand(hostsCmd)
	rootCmd.AddCommand(hostCmd)
}

func hostsCommand(ctx context.Context, a *app, query string, all bool) error {
	hosts, err := a.svc.Hosts(ctx, all || query != "")
	if err != nil {
		return err
	}
	if query != "" {
		res, err := a.svc.Select(ctx, "", query, false)
		if err != nil {
			return err
		}
		hosts = keepSelected(hosts, res.Objects)
	}

	data := make([]hostJSON, len(hosts))
	rows := make([]ui.HostRow, len(hosts))
	for i, h := range hosts {
		data[i] = toHostJSON(h)
		rows[i] = ui.HostRow{
			FQDN:       h.FQDN,
			IP:         h.IP,
			Reachable:  h.SeenUp() && h.Reachable(),
			SeenUp:     h.SeenUp(),
			Delay:      h.PingDelay,
			LastChange: h.LastChange,
			Up:         h.Up,
			Down:       h.Down,
			Tags:       h.Tags,
		}
	}
	return a.emit(data, func() {
		fmt.Fprintln(a.out, ui.RenderHostTable(rows, a.svc.Now()))
	})
}

func keepSelected(hosts []inventory.HostView, names []string) []inventory.HostView {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	out := hosts[:0]
	for _, h := range hosts {
		if want[h.FQDN] {
			out = append(out, h)
		}
	}
	return out
}

func hostAddCommand(ctx context.Context, a *app, fqdn, ip, user string) error {
	created, err := a.svc.AddHost(ctx, fqdn, ip, user)
	if err != nil {
		return err
	}
	return a.emit(map[string]interface{}{"host": fqdn, "created": created}, func() {
		if created {
			fmt.Fprintf(a.out, "%s Added %s\n", ui.SuccessStyle().Render(ui.SymbolSuccess), fqdn)
			return
		}
		fmt.Fprintf(a.out, "%s %s is already in the inventory\n", ui.MutedStyle().Render(ui.SymbolSkipped), fqdn)
	})
}

func hostRemoveCommand(ctx context.Context, a *app, fqdn string) error {
	if err := a.svc.RemoveHost(ctx, fqdn); err != nil {
		return err
	}
	return a.emit(map[string]string{"removed": fqdn}, func() {
		fmt.Fprintf(a.out, "%s Removed %s\n", ui.SuccessStyle().Render(ui.SymbolSuccess), fqdn)
	})
}

func hostUserCommand(ctx context.Context, a *app, fqdn, user, keyFile string) error {
	if err := a.svc.SetLogin(ctx, fqdn, user, keyFile); err != nil {
		return err
	}
	return a.emit(map[string]string{"host": fqdn, "user": user, "key": keyFile}, func() {
		fmt.Fprintf(a.out, "%s %s logs in as %s\n", ui.SuccessStyle().Render(ui.SymbolSuccess), fqdn, user)
	})
}

func hostImportCommand(ctx context.Context, a *app, path string) error {
	imported, err := a.svc.ImportSSHConfig(ctx, path)
	if err != nil {
		return err
	}
	if imported == nil {
		imported = []string{}
	}
	return a.emit(imported, func() {
		if len(imported) == 0 {
			fmt.Fprintln(a.out, "No concrete hosts found in ssh_config.")
			return
		}
		for _, h := range imported {
			fmt.Fprintf(a.out, "%s %s\n", ui.SuccessStyle().Render(ui.SymbolSuccess), h)
		}
		fmt.Fprintf(a.out, "\nImported %s, tagged %s\n", util.Count(len(imported), "host", "hosts"), inventory.ImportTag)
	})
}
