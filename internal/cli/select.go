package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/rileyhilliard/fleet/internal/config"
	"github.com/rileyhilliard/fleet/internal/errors"
	"github.com/rileyhilliard/fleet/internal/selection"
	"github.com/rileyhilliard/fleet/internal/ui"
	"github.com/rileyhilliard/fleet/internal/util"
	"github.com/spf13/cobra"
)

var (
	selectName    string
	selectRebuild bool
	selectSave    bool
)

var selectCmd = &cobra.Command{
	Use:   "select [selection]",
	Short: "Preview, name and rebuild selections",
	Long: `Evaluate a selection and print the hosts it matches.

Results are cached under a name (the query itself by default) so later
commands see the same hosts. --rebuild drops the cached result first.
Named selections can be kept in the config under 'selections'.

Selection syntax:
  web1            host named web1         !web1     every host but web1
  %prod           hosts tagged prod       !%prod    hosts not tagged prod
  a&b             both terms              a|b       either group

Examples:
  fleet select '%prod&!%db'
  fleet select '%prod&!%db' --name app --save
  fleet select --name app --rebuild
  fleet select --rebuild            # every selection in the config`,
	RunE: func(cmd *cobra.Command, args []string) error {
		query := ""
		if len(args) > 0 {
			var err error
			if query, err = queryArg(args); err != nil {
				return err
			}
		}
		return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
			return selectCommand(ctx, a, selectName, query, selectRebuild, selectSave)
		})
	},
}

func init() {
	selectCmd.Flags().StringVar(&selectName, "name", "", "cache the result under this name")
	selectCmd.Flags().BoolVar(&selectRebuild, "rebuild", false, "discard the cached result and evaluate again")
	selectCmd.Flags().BoolVar(&selectSave, "save", false, "record the named selection in the config file")
	rootCmd.AddCommand(selectCmd)
}

type selectionJSON struct {
	Name   string   `json:"name"`
	Query  string   `json:"query"`
	Hosts  []string `json:"hosts"`
	Cached bool     `json:"cached"`
}

func selectCommand(ctx context.Context, a *app, name, query string, rebuild, save bool) error {
	if query == "" && name == "" {
		return selectAllCommand(ctx, a, rebuild)
	}
	if query == "" {
		q, ok := a.cfg.Selections[name]
		if !ok {
			return errors.New(errors.ErrQuery,
				fmt.Sprintf("No selection named %s in the config", name),
				"Give the query too, e.g. fleet select '%prod' --name "+name+" --save")
		}
		query = q
	}

	if save {
		if name == "" {
			return errors.New(errors.ErrConfig, "--save needs --name", "Name the selection with --name")
		}
		if a.cfgPath == "" {
			return errors.New(errors.ErrConfig,
				"No config file to save the selection in",
				"Create one with 'fleet config init'")
		}
		if err := config.SetSelection(a.cfgPath, name, selection.Normalize(query)); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig, "Can't save selection "+name, "")
		}
	}

	res, err := a.svc.Select(ctx, name, query, rebuild)
	if err != nil {
		return err
	}
	return a.emit(toSelectionJSON(res), func() { printSelection(a, res) })
}

// selectAllCommand lists the selections declared in the config, evaluating
// each one.
func selectAllCommand(ctx context.Context, a *app, rebuild bool) error {
	names := make([]string, 0, len(a.cfg.Selections))
	for n := range a.cfg.Selections {
		names = append(names, n)
	}
	sort.Strings(names)

	data := make([]selectionJSON, 0, len(names))
	results := make([]selection.Result, 0, len(names))
	for _, n := range names {
		res, err := a.svc.Select(ctx, n, a.cfg.Selections[n], rebuild)
		if err != nil {
			return err
		}
		results = append(results, res)
		data = append(data, toSelectionJSON(res))
	}

	return a.emit(data, func() {
		if len(results) == 0 {
			fmt.Fprintln(a.out, "No selections in the config. Save one with 'fleet select <query> --name <name> --save'.")
			return
		}
		for i, res := range results {
			if i > 0 {
				fmt.Fprintln(a.out)
			}
			printSelection(a, res)
		}
	})
}

func toSelectionJSON(res selection.Result) selectionJSON {
	hosts := res.Objects
	if hosts == nil {
		hosts = []string{}
	}
	return selectionJSON{Name: res.Name, Query: res.Query, Hosts: hosts, Cached: res.Cached}
}

func printSelection(a *app, res selection.Result) {
	count := util.Count(len(res.Objects), "host", "hosts")
	header := fmt.Sprintf("%s  %s  %s", res.Name, ui.MutedStyle().Render(res.Query), count)
	if res.Name == res.Query {
		header = fmt.Sprintf("%s  %s", res.Query, count)
	}
	if res.Cached {
		header += ui.MutedStyle().Render(" (cached)")
	}
	fmt.Fprintln(a.out, header)
	for _, h := range res.Objects {
		fmt.Fprintln(a.out, "  "+h)
	}
}
