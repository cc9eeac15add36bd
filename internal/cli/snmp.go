package cli

import (
	"context"
	"fmt"

	"github.com/rileyhilliard/fleet/internal/config"
	"github.com/rileyhilliard/fleet/internal/probe"
	"github.com/rileyhilliard/fleet/internal/ui"
	"github.com/spf13/cobra"
)

var snmpFlags TuningFlags

var snmpCmd = &cobra.Command{
	Use:   "snmp <selection> <object>...",
	Short: "Read SNMP objects from the selected hosts",
	Long: `GET SNMP objects from every host of a selection and store the values.

Objects are MIB::name, a bare name from SNMPv2-MIB, or a numeric OID.

Examples:
  fleet snmp %switches sysDescr sysUpTime
  fleet snmp sw1 IF-MIB::ifNumber .1.3.6.1.2.1.1.5.0
  fleet snmp ls sw1`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		override := func(cfg *config.Config) error {
			return snmpFlags.Apply(&cfg.SNMP.ChunkSize, &cfg.SNMP.Timeout)
		}
		return withApp(cmd, appOptions{Override: override}, func(ctx context.Context, a *app) error {
			return snmpCommand(ctx, a, args[0], args[1:])
		})
	},
}

var snmpListCmd = &cobra.Command{
	Use:     "ls [fqdn]",
	Aliases: []string{"list"},
	Short:   "Show stored SNMP values",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fqdn := ""
		if len(args) == 1 {
			fqdn = args[0]
		}
		return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
			return snmpListCommand(ctx, a, fqdn)
		})
	},
}

func init() {
	AddTuningFlags(snmpCmd, &snmpFlags, "timeout per request (e.g., 2s)")
	snmpCmd.AddCommand(snmpListCmd)
	rootCmd.AddCommand(snmpCmd)
}

func snmpCommand(ctx context.Context, a *app, query string, objects []string) error {
	values, err := a.svc.PollSNMP(ctx, query, objects)
	if values == nil && err != nil {
		return err
	}
	data := make([]snmpJSON, len(values))
	for i, v := range values {
		data[i] = valueJSON(v, query)
	}
	if emitErr := a.emit(data, func() {
		for _, v := range values {
			fmt.Fprintln(a.out, renderValue(v))
		}
	}); emitErr != nil {
		return emitErr
	}
	return err
}

func valueJSON(v probe.SNMPValue, query string) snmpJSON {
	out := snmpJSON{
		Host:      v.Target.Host,
		MIB:       v.Target.MIB,
		OID:       v.Target.OID,
		Value:     v.Value,
		CheckTime: v.CheckTime,
		Selection: query,
	}
	if v.Err != nil {
		out.Error = v.Err.Error()
	}
	return out
}

func objectName(mib, oid string) string {
	if mib == "" || mib == "numeric" {
		return oid
	}
	return mib + "::" + oid
}

func renderValue(v probe.SNMPValue) string {
	name := objectName(v.Target.MIB, v.Target.OID)
	if v.Err != nil {
		return fmt.Sprintf("%s %-32s %-28s %s", ui.ErrorStyle().Render(ui.SymbolFail), v.Target.Host, name, ui.MutedStyle().Render(v.Err.Error()))
	}
	return fmt.Sprintf("%s %-32s %-28s %s", ui.SuccessStyle().Render(ui.SymbolSuccess), v.Target.Host, name, v.Value)
}

func snmpListCommand(ctx context.Context, a *app, fqdn string) error {
	readings, err := a.svc.SNMPReadings(ctx, fqdn)
	if err != nil {
		return err
	}
	data := make([]snmpJSON, len(readings))
	rows := make([][]string, len(readings))
	now := a.svc.Now()
	for i, r := range readings {
		data[i] = snmpJSON{Host: r.Host, MIB: r.MIB, OID: r.OID, Value: r.Value, CheckTime: r.CheckTime, Selection: r.Selection, Error: r.GetError}
		value := r.Value
		if r.GetError != "" {
			value = "error: " + r.GetError
		}
		rows[i] = []string{r.Host, objectName(r.MIB, r.OID), value, ui.HumanAge(now.Sub(r.CheckTime))}
	}
	return a.emit(data, func() {
		if len(readings) == 0 {
			fmt.Fprintln(a.out, "No SNMP values stored.")
			return
		}
		cols := []ui.TableColumn{
			{Title: "HOST", Width: 32},
			{Title: "OBJECT", Width: 28},
			{Title: "VALUE", Width: 48},
			{Title: "READ", Width: 10},
		}
		fmt.Fprintln(a.out, ui.RenderSimpleTable(cols, rows))
	})
}
