// Command autorecordctl administers an autorecord daemon: it seals the
// signing key into the vault file and drives the admin API.
package main

import (
	"os"
	"os/user"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

type globalOptions struct {
	server    string
	token     string
	actor     string
	dbPath    string
	vaultPath string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "autorecordctl",
		Short: "Administer the autorecord ledger recording daemon",
		Long: `autorecordctl manages the encrypted signing key and talks to a running
autorecord daemon over its admin API.

Vault commands work on local files and must run on the daemon's host.
All other commands use --server and --token.`,
		Version:      Version,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.server, "server", envOr("AUTORECORD_SERVER", "http://127.0.0.1:8080"), "daemon base URL")
	pf.StringVar(&opts.token, "token", os.Getenv("AUTORECORD_ADMIN_TOKEN"), "admin API bearer token")
	pf.StringVar(&opts.actor, "actor", defaultActor(), "name recorded in the audit log")
	pf.StringVar(&opts.dbPath, "db", envOr("AUTORECORD_DB_PATH", "autorecord.db"), "database path (vault commands)")
	pf.StringVar(&opts.vaultPath, "vault", envOr("AUTORECORD_VAULT_PATH", "vault.json"), "vault file path")

	root.AddCommand(
		newVaultCmd(opts),
		newSessionCmd(opts),
		newPolicyCmd(opts),
		newCandidatesCmd(opts),
		newScanCmd(opts),
		newAuditCmd(opts),
		newStatusCmd(opts),
	)
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func defaultActor() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "cli"
}
