package cli

import (
	"context"
	"fmt"

	"github.com/rileyhilliard/fleet/internal/errors"
	"github.com/rileyhilliard/fleet/internal/store"
	"github.com/rileyhilliard/fleet/internal/ui"
	"github.com/rileyhilliard/fleet/internal/util"
	"github.com/spf13/cobra"
)

var (
	tagDescription string
	tagSelection   string
)

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Group hosts with tags",
	Long: `Tags group hosts for selections: %prod selects every host tagged prod.

Examples:
  fleet tag add prod web1 web2 -d "production web tier"
  fleet tag add eu --select '%prod&!%us'
  fleet tag rm prod web2
  fleet tag ls web1`,
}

var tagAddCmd = &cobra.Command{
	Use:   "add <tag> [fqdn...]",
	Short: "Tag hosts, by name or by selection",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 && tagSelection == "" {
			return errors.New(errors.ErrQuery,
				"No hosts to tag",
				"Name hosts after the tag or pass --select <query>")
		}
		return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
			if tagSelection != "" {
				return tagSelectionCommand(ctx, a, args[0], tagDescription, tagSelection, args[1:])
			}
			return tagAddCommand(ctx, a, args[0], tagDescription, args[1:])
		})
	},
}

var tagRemoveCmd = &cobra.Command{
	Use:     "rm <tag> <fqdn>...",
	Aliases: []string{"remove"},
	Short:   "Untag hosts",
	Args:    cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
			return tagRemoveCommand(ctx, a, args[0], args[1:])
		})
	},
}

var tagListCmd = &cobra.Command{
	Use:     "ls [fqdn]",
	Aliases: []string{"list"},
	Short:   "List tag assignments",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fqdn := ""
		if len(args) == 1 {
			fqdn = args[0]
		}
		return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
			return tagListCommand(ctx, a, fqdn)
		})
	},
}

func init() {
	tagAddCmd.Flags().StringVarP(&tagDescription, "description", "d", "", "what the tag means")
	tagAddCmd.Flags().StringVarP(&tagSelection, "select", "s", "", "tag every host matching this selection query")

	tagCmd.AddCommand(tagAddCmd)
	tagCmd.AddCommand(tagRemoveCmd)
	tagCmd.AddCommand(tagListCmd)
	rootCmd.AddCommand(tagCmd)
}

func tagAddCommand(ctx context.Context, a *app, tag, description string, hosts []string) error {
	if err := a.svc.Tag(ctx, tag, description, hosts...); err != nil {
		return err
	}
	return a.emit(map[string]interface{}{"tag": tag, "hosts": hosts}, func() {
		fmt.Fprintf(a.out, "%s Tagged %s %s\n", ui.SuccessStyle().Render(ui.SymbolSuccess), util.Count(len(hosts), "host", "hosts"), tag)
	})
}

// tagSelectionCommand tags the hosts of query plus any named explicitly.
func tagSelectionCommand(ctx context.Context, a *app, tag, description, query string, extra []string) error {
	hosts, err := a.svc.TagSelection(ctx, tag, description, query)
	if err != nil {
		return err
	}
	if len(extra) > 0 {
		if err := a.svc.Tag(ctx, tag, description, extra...); err != nil {
			return err
		}
		hosts = append(hosts, extra...)
	}
	return a.emit(map[string]interface{}{"tag": tag, "selection": query, "hosts": hosts}, func() {
		fmt.Fprintf(a.out, "%s Tagged %s %s (%s)\n", ui.SuccessStyle().Render(ui.SymbolSuccess), util.Count(len(hosts), "host", "hosts"), tag, query)
	})
}

func tagRemoveCommand(ctx context.Context, a *app, tag string, hosts []string) error {
	n, err := a.svc.Untag(ctx, tag, hosts...)
	if err != nil {
		return err
	}
	return a.emit(map[string]interface{}{"tag": tag, "removed": n}, func() {
		fmt.Fprintf(a.out, "%s Removed %s from %s\n", ui.SuccessStyle().Render(ui.SymbolSuccess), tag, util.Count(n, "host", "hosts"))
	})
}

type tagJSON struct {
	Host        string `json:"host"`
	Tag         string `json:"tag"`
	Description string `json:"description,omitempty"`
	Tagged      string `json:"tagged"`
}

func tagListCommand(ctx context.Context, a *app, fqdn string) error {
	tags, err := a.svc.Tags(ctx, fqdn)
	if err != nil {
		return err
	}
	data := make([]tagJSON, len(tags))
	for i, t := range tags {
		data[i] = tagJSON{Host: t.Host, Tag: t.Tag, Description: t.Description, Tagged: t.TagTime.UTC().Format("2006-01-02T15:04:05Z")}
	}
	return a.emit(data, func() {
		if len(tags) == 0 {
			fmt.Fprintln(a.out, "No tags.")
			return
		}
		fmt.Fprint(a.out, renderTags(tags, a))
	})
}

func renderTags(tags []store.HostTag, a *app) string {
	cols := []ui.TableColumn{
		{Title: "HOST", Width: 32},
		{Title: "TAG", Width: 16},
		{Title: "DESCRIPTION", Width: 40},
		{Title: "TAGGED", Width: 10},
	}
	now := a.svc.Now()
	rows := make([][]string, len(tags))
	for i, t := range tags {
		rows[i] = []string{t.Host, t.Tag, t.Description, ui.HumanAge(now.Sub(t.TagTime))}
	}
	return ui.RenderSimpleTable(cols, rows) + "\n"
}
