package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rileyhilliard/fleet/internal/config"
	"github.com/rileyhilliard/fleet/internal/errors"
	"github.com/rileyhilliard/fleet/internal/probe"
	"github.com/rileyhilliard/fleet/internal/ui"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// InitOptions holds options for the config init command.
type InitOptions struct {
	Path      string // where to write; empty means ./fleet.yaml
	Global    bool   // write ~/.config/fleet/config.yaml instead
	Network   string // default sweep network; detected when empty
	User      string // default SSH login
	Overwrite bool   // overwrite an existing file without asking
}

var initOpts InitOptions

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create and inspect the configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with defaults",
	Long: `Create fleet.yaml in the current directory (or the global config with
--global) holding the defaults, with the sweep network set to the local
one.

Examples:
  fleet config init
  fleet config init --global --network 10.0.0.0/24 --user ops`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInit(cmd.OutOrStdout(), initOpts)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults and FLEET_* environment
overrides are applied, and the file it came from.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShow(cmd.OutOrStdout(), cfgFile)
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&initOpts.Global, "global", false, "write the global config instead of ./fleet.yaml")
	configInitCmd.Flags().StringVar(&initOpts.Network, "network", "", "network swept by default (e.g., 192.168.1.0/24)")
	configInitCmd.Flags().StringVar(&initOpts.User, "user", "", "default SSH user")
	configInitCmd.Flags().BoolVarP(&initOpts.Overwrite, "force", "f", false, "overwrite an existing config")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func configInit(w io.Writer, opts InitOptions) error {
	path := opts.Path
	switch {
	case path != "":
	case opts.Global:
		path = config.GlobalPath()
	case cfgFile != "":
		path = cfgFile
	default:
		path = filepath.Join(".", config.ConfigFileName)
	}

	if _, err := os.Stat(path); err == nil && !opts.Overwrite {
		ok, err := ui.Confirm(fmt.Sprintf("%s already exists. Overwrite?", path), false)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Config file already exists: %s", path),
				"Use --force to overwrite")
		}
	}

	cfg := config.DefaultConfig()
	if opts.User != "" {
		cfg.SSH.User = opts.User
	}
	cfg.Network = opts.Network
	if cfg.Network == "" {
		if network, err := probe.DefaultNetwork(); err == nil {
			cfg.Network = network
		}
	} else if _, err := probe.Hosts(cfg.Network); err != nil {
		return err
	}

	if err := config.Validate(cfg); err != nil {
		return err
	}
	if err := config.Save(path, cfg); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Can't write "+path, "Check the directory exists and is writable")
	}

	if machineMode {
		return WriteJSONSuccess(w, map[string]string{"path": path})
	}
	fmt.Fprintf(w, "%s Wrote %s\n", ui.SuccessStyle().Render(ui.SymbolSuccess), path)
	if cfg.Network != "" {
		fmt.Fprintf(w, "\nNext: fleet sweep   (scans %s)\n", cfg.Network)
	}
	return nil
}

func configShow(w io.Writer, explicit string) error {
	cfg, path, err := config.LoadOrDefault(explicit)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	if machineMode {
		return WriteJSONSuccess(w, map[string]interface{}{"path": path, "config": cfg})
	}

	if path == "" {
		path = "defaults (no config file found)"
	}
	fmt.Fprintln(w, ui.MutedStyle().Render("# "+path))
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}
