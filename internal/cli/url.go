package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/rileyhilliard/fleet/internal/config"
	"github.com/rileyhilliard/fleet/internal/probe"
	"github.com/rileyhilliard/fleet/internal/store"
	"github.com/rileyhilliard/fleet/internal/ui"
	"github.com/spf13/cobra"
)

var urlCheckFlags TuningFlags

var urlCmd = &cobra.Command{
	Use:   "url",
	Short: "Monitor HTTP endpoints",
	Long: `Keep a list of URLs, check them and show status, response time and
certificate expiry.

Examples:
  fleet url add https://example.com/health
  fleet url check
  fleet url ls`,
}

var urlAddCmd = &cobra.Command{
	Use:   "add <url>...",
	Short: "Monitor URLs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
			return urlAddCommand(ctx, a, args)
		})
	},
}

var urlRemoveCmd = &cobra.Command{
	Use:     "rm <url>",
	Aliases: []string{"remove"},
	Short:   "Stop monitoring a URL",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
			return urlRemoveCommand(ctx, a, args[0])
		})
	},
}

var urlListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "Show monitored URLs with their latest check",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
			return urlListCommand(ctx, a)
		})
	},
}

var urlCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check every monitored URL now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		override := func(cfg *config.Config) error {
			return urlCheckFlags.Apply(&cfg.HTTP.ChunkSize, &cfg.HTTP.Timeout)
		}
		return withApp(cmd, appOptions{Override: override}, func(ctx context.Context, a *app) error {
			return urlCheckCommand(ctx, a)
		})
	},
}

func init() {
	AddTuningFlags(urlCheckCmd, &urlCheckFlags, "request timeout (e.g., 10s)")

	urlCmd.AddCommand(urlAddCmd)
	urlCmd.AddCommand(urlRemoveCmd)
	urlCmd.AddCommand(urlListCmd)
	urlCmd.AddCommand(urlCheckCmd)
	rootCmd.AddCommand(urlCmd)
}

func urlAddCommand(ctx context.Context, a *app, raws []string) error {
	added := make([]string, 0, len(raws))
	for _, raw := range raws {
		t, err := a.svc.AddURL(ctx, raw)
		if err != nil {
			return err
		}
		added = append(added, t.String())
	}
	return a.emit(added, func() {
		for _, u := range added {
			fmt.Fprintf(a.out, "%s Monitoring %s\n", ui.SuccessStyle().Render(ui.SymbolSuccess), u)
		}
	})
}

func urlRemoveCommand(ctx context.Context, a *app, raw string) error {
	if err := a.svc.RemoveURL(ctx, raw); err != nil {
		return err
	}
	return a.emit(map[string]string{"removed": raw}, func() {
		fmt.Fprintf(a.out, "%s Removed %s\n", ui.SuccessStyle().Render(ui.SymbolSuccess), raw)
	})
}

func urlListCommand(ctx context.Context, a *app) error {
	urls, err := a.svc.URLs(ctx)
	if err != nil {
		return err
	}
	data := make([]urlJSON, len(urls))
	for i, u := range urls {
		data[i] = toURLJSON(u)
	}
	return a.emit(data, func() {
		if len(urls) == 0 {
			fmt.Fprintln(a.out, "No URLs monitored. Add one with 'fleet url add <url>'.")
			return
		}
		now := a.svc.Now()
		for _, u := range urls {
			if u.CheckTime == nil {
				fmt.Fprintln(a.out, urlTarget(u).String()+"  "+ui.MutedStyle().Render("never checked"))
				continue
			}
			fmt.Fprintln(a.out, ui.RenderURL(storedURLLine(u), now))
		}
	})
}

func storedURLLine(u store.URLRecord) ui.URLLine {
	l := ui.URLLine{
		URL:          urlTarget(u).String(),
		Status:       u.Status,
		ResponseTime: time.Duration(u.ResponseTime * float64(time.Second)),
		Error:        u.GetError,
	}
	if u.Expire != 0 {
		l.Expire = time.Unix(u.Expire, 0)
	}
	return l
}

func urlCheckCommand(ctx context.Context, a *app) error {
	checks, err := a.svc.CheckURLs(ctx)
	if checks == nil && err != nil {
		return err
	}
	data := make([]urlJSON, len(checks))
	for i, c := range checks {
		data[i] = checkJSON(c)
	}
	if emitErr := a.emit(data, func() {
		now := a.svc.Now()
		for _, c := range checks {
			l := ui.URLLine{URL: c.Target.String(), Status: c.Status, ResponseTime: c.ResponseTime, Expire: c.Expire}
			if c.Err != nil {
				l.Error = c.Err.Error()
			}
			fmt.Fprintln(a.out, ui.RenderURL(l, now))
		}
	}); emitErr != nil {
		return emitErr
	}
	return err
}

func checkJSON(c probe.URLCheck) urlJSON {
	checked := c.CheckTime
	out := urlJSON{
		URL:          c.Target.String(),
		CheckTime:    &checked,
		Status:       c.Status,
		ResponseTime: c.ResponseTime.Seconds(),
		TotalTime:    c.TotalTime.Seconds(),
		Certificate:  c.Certificate,
	}
	if !c.Expire.IsZero() {
		exp := c.Expire.UTC()
		out.Expire = &exp
	}
	if c.Err != nil {
		out.Error = c.Err.Error()
	}
	return out
}
