package cli

import (
	"fmt"
	"runtime"

	"github.com/rileyhilliard/fleet/internal/store"
	"github.com/spf13/cobra"
)

// Set via ldflags by cmd/fleet.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var versionShort bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit, build date and inventory schema of fleet.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printVersion(cmd, versionShort)
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "print only the version number")
	rootCmd.AddCommand(versionCmd)
}

type versionJSON struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Built   string `json:"built"`
	Go      string `json:"go"`
	OS      string `json:"os"`
	Arch    string `json:"arch"`
	Schema  int    `json:"schema"`
}

func printVersion(cmd *cobra.Command, short bool) error {
	out := cmd.OutOrStdout()
	info := versionJSON{
		Version: version,
		Commit:  commit,
		Built:   date,
		Go:      runtime.Version(),
		OS:      runtime.GOOS,
		Arch:    runtime.GOARCH,
		Schema:  store.SchemaVersion(),
	}

	switch {
	case machineMode:
		return WriteJSONSuccess(out, info)
	case short:
		fmt.Fprintln(out, version)
	default:
		fmt.Fprintf(out, "fleet %s (%s, built %s)\n", formatVersion(info.Version), info.Commit, info.Built)
		fmt.Fprintf(out, "%s %s/%s, inventory schema %d\n", info.Go, info.OS, info.Arch, info.Schema)
	}
	return nil
}

// formatVersion adds a v prefix to release versions.
func formatVersion(v string) string {
	if v == "" || v == "dev" || v[0] == 'v' {
		return v
	}
	return "v" + v
}

// SetVersionInfo records the build information (called from main).
func SetVersionInfo(v, c, d string) {
	version, commit, date = v, c, d
}
