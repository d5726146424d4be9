package main

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	ethadapter "github.com/ericfisherdev/autorecord/internal/adapter/driven/ethereum"
	sqliteadapter "github.com/ericfisherdev/autorecord/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/autorecord/internal/adapter/driven/vaultfile"
	"github.com/ericfisherdev/autorecord/internal/application"
	"github.com/ericfisherdev/autorecord/internal/domain/model"
)

func newVaultCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vault",
		Short: "Manage the encrypted signing key",
	}
	cmd.AddCommand(newVaultInitCmd(opts), newVaultRotateCmd(opts), newVaultStatusCmd(opts))
	return cmd
}

func newVaultInitCmd(opts *globalOptions) *cobra.Command {
	var keyFile, wallet string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Seal a signing key into a new vault file",
		Long: `init encrypts a hex-encoded private key under a password and writes the
vault file. It refuses to overwrite an existing vault.

The key is read from --key-file, or prompted for without echo.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := newPrompter(cmd)

			var secret []byte
			var err error
			if keyFile != "" {
				secret, err = os.ReadFile(keyFile)
				if err != nil {
					return fmt.Errorf("read key file: %w", err)
				}
				secret = bytes.TrimSpace(secret)
			} else if secret, err = p.secret("Signing key (hex): "); err != nil {
				return err
			}
			defer clear(secret)

			password, err := p.newPassword("Vault password")
			if err != nil {
				return err
			}
			defer clear(password)

			vault := newLocalVault(opts, wallet)
			if err := vault.Initialize(cmd.Context(), password, secret); err != nil {
				return err
			}

			st, err := vault.Status(cmd.Context())
			if err != nil {
				return err
			}
			if err := recordAudit(cmd.Context(), opts, model.AuditVaultInit, "address="+st.Address); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Vault initialized for %s\n", st.Address)
			return nil
		},
	}
	cmd.Flags().StringVar(&keyFile, "key-file", "", "file holding the hex-encoded private key")
	cmd.Flags().StringVar(&wallet, "wallet", os.Getenv("AUTORECORD_WALLET_ADDRESS"), "expected wallet address")
	return cmd
}

func newVaultRotateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rotate",
		Short: "Re-encrypt the signing key under a new password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := newPrompter(cmd)

			oldPassword, err := p.secret("Current password: ")
			if err != nil {
				return err
			}
			defer clear(oldPassword)

			newPassword, err := p.newPassword("New password")
			if err != nil {
				return err
			}
			defer clear(newPassword)

			vault := newLocalVault(opts, "")
			if err := vault.Rotate(cmd.Context(), oldPassword, newPassword); err != nil {
				return err
			}
			if err := recordAudit(cmd.Context(), opts, model.AuditVaultRotated, ""); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Vault password rotated; unlock the daemon again with the new password")
			return nil
		},
	}
}

func newVaultStatusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the vault file metadata without decrypting it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := newLocalVault(opts, "").Status(cmd.Context())
			if err != nil {
				return err
			}
			if !st.Initialized {
				fmt.Fprintf(cmd.OutOrStdout(), "No vault at %s\n", opts.vaultPath)
				return nil
			}
			renderFields(cmd.OutOrStdout(), [][2]string{
				{"path", opts.vaultPath},
				{"version", fmt.Sprint(st.Version)},
				{"address", st.Address},
				{"created", formatLocal(st.CreatedAt)},
				{"rotated", formatLocal(st.RotatedAt)},
			})
			return nil
		},
	}
}

func newLocalVault(opts *globalOptions, wallet string) *application.Vault {
	return application.NewVault(vaultfile.New(opts.vaultPath), application.VaultConfig{
		Deriver:         ethadapter.Keys{},
		ExpectedAddress: wallet,
	})
}

// recordAudit appends a vault event to the daemon's audit table.
func recordAudit(ctx context.Context, opts *globalOptions, action model.AuditAction, detail string) error {
	db, err := sqliteadapter.NewDB(ctx, opts.dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	application.NewAuditLog(sqliteadapter.NewAuditRepo(db), nil).Record(ctx, action, opts.actor, detail)
	return nil
}
