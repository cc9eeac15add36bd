package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rileyhilliard/fleet/internal/config"
	"github.com/rileyhilliard/fleet/internal/dispatch"
	"github.com/rileyhilliard/fleet/internal/inventory"
	"github.com/rileyhilliard/fleet/internal/logger"
	"github.com/rileyhilliard/fleet/internal/metrics"
	"github.com/rileyhilliard/fleet/internal/remote"
	"github.com/rileyhilliard/fleet/internal/store"
	"github.com/rileyhilliard/fleet/internal/ui"
	"github.com/spf13/cobra"
)

// app is everything a command needs once the config is loaded.
type app struct {
	cfg     *config.Config
	cfgPath string
	store   *store.Store
	svc     *inventory.Service
	metrics *metrics.Recorder
	key     *remote.KeyPair
	log     logger.Logger
	out     io.Writer
}

// appOptions selects the optional parts of an app.
type appOptions struct {
	// Remote loads (or creates) the fleet key and wires SSH execution.
	Remote bool
	// Override adjusts the loaded config from command flags. The result is
	// validated afterwards.
	Override func(cfg *config.Config) error
}

// withApp loads the config, opens the store and runs fn with a context
// that is cancelled on SIGINT or SIGTERM.
func withApp(cmd *cobra.Command, opts appOptions, fn func(ctx context.Context, a *app) error) error {
	cfg, path, err := config.LoadOrDefault(cfgFile)
	if err != nil {
		return err
	}
	if opts.Override != nil {
		if err := opts.Override(cfg); err != nil {
			return err
		}
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	level := cfg.Log.Level
	if debugFlag {
		level = "debug"
	}
	log := logger.New(logger.Options{Level: level, Format: cfg.Log.Format, Output: cmd.ErrOrStderr()})
	logger.SetDefault(log)

	a, err := newApp(cfg, path, cmd.OutOrStdout(), log, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(ctx, a)
}

func newApp(cfg *config.Config, cfgPath string, out io.Writer, log logger.Logger, opts appOptions) (*app, error) {
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	log.Debug("inventory %s", st.Path())

	rec := metrics.New()
	if cfg.Metrics.Process {
		rec = rec.WithProcessCollectors()
	}

	a := &app{
		cfg:     cfg,
		cfgPath: cfgPath,
		store:   st,
		metrics: rec,
		log:     log,
		out:     out,
	}

	deps := inventory.Deps{Metrics: a.metrics, Logger: log}
	if !machineMode {
		deps.Progress = a.progress
	}

	if opts.Remote {
		key, err := remote.LoadOrCreateKey(cfg.SSH.PrivateKey, cfg.SSH.PublicKey)
		if err != nil {
			st.Close()
			return nil, err
		}
		if key.Created {
			log.Info("generated fleet key %s", key.PrivatePath)
		}
		a.key = key

		coord := remote.NewCoordinator(remote.SettingsFrom(cfg.SSH), key, a.metrics, log.With("component", "remote"))
		if !machineMode {
			coord.OnChunk = func(p dispatch.ChunkProgress) {
				fmt.Fprintln(out, ui.ChunkLine(p.Size, p.First, p.Last, p.Remaining))
			}
		}
		deps.Remote = coord
	}

	a.svc = inventory.New(cfg, st, deps)
	return a, nil
}

func (a *app) progress(label string, total int) inventory.Reporter {
	return ui.NewProgress(a.out, label, total, ui.IsTerminal(a.out))
}

// Close writes the metrics textfile, if one is configured, and closes the
// store.
func (a *app) Close() error {
	path := metricsFile
	if path == "" {
		path = a.cfg.Metrics.Textfile
	}
	if path != "" {
		if err := a.metrics.WriteTextfile(path); err != nil {
			a.log.Warn("can't write metrics to %s: %v", path, err)
		}
	}
	return a.store.Close()
}

// emit prints data as JSON in machine mode, otherwise calls human.
func (a *app) emit(data interface{}, human func()) error {
	if machineMode {
		return WriteJSONSuccess(a.out, data)
	}
	human()
	return nil
}
