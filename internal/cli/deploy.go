package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rileyhilliard/fleet/internal/errors"
	"github.com/rileyhilliard/fleet/internal/remote"
	"github.com/rileyhilliard/fleet/internal/ui"
	"github.com/spf13/cobra"
)

// DeployPasswordEnv supplies the deploy password without a prompt.
const DeployPasswordEnv = "FLEET_DEPLOY_PASSWORD"

var (
	deployFlags  TuningFlags
	deployPubkey string
)

var deployCmd = &cobra.Command{
	Use:   "deploy <selection>",
	Short: "Install the fleet key on the selected hosts",
	Long: `Append a public key (the fleet key by default) to ~/.ssh/authorized_keys
on every host of a selection, logging in with a password. The password is
asked once and used for every host; set FLEET_DEPLOY_PASSWORD to skip the
prompt.

Examples:
  fleet deploy %new
  fleet deploy web1 --pubkey ~/.ssh/id_ed25519.pub`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query, err := queryArg(args)
		if err != nil {
			return err
		}
		return withApp(cmd, appOptions{Remote: true, Override: sshOverride(deployFlags)}, func(ctx context.Context, a *app) error {
			return deployCommand(ctx, a, query, deployPubkey, passwordPrompt(a.cfg.SSH.User))
		})
	},
}

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Show the fleet key, creating it if needed",
	Long: `Print the fleet's SSH public key and its fingerprints. The key is
generated on first use at ssh.private_key.

The BLAKE2b fingerprint is the one written to logs of remote runs.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, appOptions{Remote: true}, func(ctx context.Context, a *app) error {
			return keyCommand(a)
		})
	},
}

func init() {
	AddTuningFlags(deployCmd, &deployFlags, "time allowed per host (e.g., 30s)")
	deployCmd.Flags().StringVar(&deployPubkey, "pubkey", "", "public key file to deploy instead of the fleet key")

	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(keyCmd)
}

// passwordPrompt reads the deploy password from the environment, or asks.
func passwordPrompt(user string) remote.PasswordFunc {
	return func() (string, error) {
		if pw := os.Getenv(DeployPasswordEnv); pw != "" {
			return pw, nil
		}
		return ui.PromptPassword(fmt.Sprintf("SSH password for %s", user))
	}
}

func deployCommand(ctx context.Context, a *app, query, pubkeyFile string, prompt remote.PasswordFunc) error {
	pubkey := ""
	switch {
	case pubkeyFile != "":
		data, err := os.ReadFile(pubkeyFile)
		if err != nil {
			return errors.WrapWithCode(err, errors.ErrSSH,
				"Can't read public key "+pubkeyFile, "Check the path, it should end in .pub")
		}
		pubkey = strings.TrimSpace(string(data))
	case a.key != nil:
		pubkey = a.key.AuthorizedKey()
	default:
		return errors.New(errors.ErrSSH, "No key to deploy", "Pass --pubkey or run 'fleet key'")
	}

	results, err := a.svc.Deploy(ctx, query, pubkey, prompt)
	return reportResults(a, results, err, false)
}

type keyJSON struct {
	PrivateKey    string `json:"private_key"`
	PublicKey     string `json:"public_key"`
	AuthorizedKey string `json:"authorized_key"`
	SHA256        string `json:"sha256"`
	Fingerprint   string `json:"fingerprint"`
	Created       bool   `json:"created"`
}

func keyCommand(a *app) error {
	k := a.key
	if k == nil {
		return errors.New(errors.ErrSSH, "The fleet key isn't loaded", "Check ssh.private_key in your config")
	}
	data := keyJSON{
		PrivateKey:    k.PrivatePath,
		PublicKey:     k.PublicPath,
		AuthorizedKey: k.AuthorizedKey(),
		SHA256:        k.SHA256(),
		Fingerprint:   k.Fingerprint(),
		Created:       k.Created,
	}
	return a.emit(data, func() {
		if k.Created {
			fmt.Fprintf(a.out, "%s Generated %s\n\n", ui.SuccessStyle().Render(ui.SymbolSuccess), k.PrivatePath)
		}
		fmt.Fprintln(a.out, k.AuthorizedKey())
		fmt.Fprintln(a.out)
		fmt.Fprintf(a.out, "%s %s\n", ui.MutedStyle().Render("private:"), k.PrivatePath)
		fmt.Fprintf(a.out, "%s %s\n", ui.MutedStyle().Render("public: "), k.PublicPath)
		fmt.Fprintf(a.out, "%s %s\n", ui.MutedStyle().Render("sha256: "), k.SHA256())
		fmt.Fprintf(a.out, "%s %s\n", ui.MutedStyle().Render("blake2b:"), k.Fingerprint())
	})
}
