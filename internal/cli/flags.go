package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/rileyhilliard/fleet/internal/errors"
	"github.com/spf13/cobra"
)

// TuningFlags override the chunk size and timeout of one run.
type TuningFlags struct {
	ChunkSize int
	Timeout   string
}

// AddTuningFlags registers --chunk-size and --timeout on a command.
func AddTuningFlags(cmd *cobra.Command, flags *TuningFlags, timeoutHelp string) {
	cmd.Flags().IntVar(&flags.ChunkSize, "chunk-size", 0, "targets processed at once (default from config)")
	cmd.Flags().StringVar(&flags.Timeout, "timeout", "", timeoutHelp)
}

// Apply writes the flag values over the configured ones. Unset flags leave
// the configuration alone.
func (f TuningFlags) Apply(chunkSize *int, timeout *time.Duration) error {
	if f.ChunkSize != 0 {
		*chunkSize = f.ChunkSize
	}
	d, err := ParseTimeout(f.Timeout)
	if err != nil {
		return err
	}
	if d != 0 {
		*timeout = d
	}
	return nil
}

// ParseTimeout parses a timeout flag into a duration.
// Returns zero duration if the flag is empty.
func ParseTimeout(flag string) (time.Duration, error) {
	if flag == "" {
		return 0, nil
	}

	duration, err := time.ParseDuration(flag)
	if err != nil {
		return 0, errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("'%s' doesn't look like a valid timeout", flag),
			"Try something like 5s, 2m, or 500ms.")
	}
	if duration <= 0 {
		return 0, errors.New(errors.ErrConfig,
			fmt.Sprintf("Timeout must be positive, got %s", flag),
			"Try something like 5s, 2m, or 500ms.")
	}
	return duration, nil
}

// queryArg joins the words of a selection typed without quotes, e.g.
// `fleet hosts %prod & !%db`.
func queryArg(args []string) (string, error) {
	q := strings.TrimSpace(strings.Join(args, " "))
	if q == "" {
		return "", errors.New(errors.ErrQuery,
			"Which hosts?",
			"Give a selection like web1, %prod or %prod&!%db")
	}
	return q, nil
}
