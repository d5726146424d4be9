package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	httphandler "github.com/ericfisherdev/autorecord/internal/adapter/driving/http"
)

func newSessionCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Unlock, lock or inspect the daemon's signing session",
	}

	unlock := &cobra.Command{
		Use:   "unlock",
		Short: "Unlock the vault on the daemon for one session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := newPrompter(cmd).secret("Vault password: ")
			if err != nil {
				return err
			}
			req := httphandler.UnlockRequest{Password: string(password)}
			clear(password)

			var resp httphandler.SessionResponse
			if err := newAPIClient(opts).do(cmd.Context(), http.MethodPost, "/api/v1/session/unlock", req, &resp); err != nil {
				return err
			}
			printSession(cmd, resp)
			return nil
		},
	}

	lock := &cobra.Command{
		Use:   "lock",
		Short: "Discard the daemon's signing session immediately",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := newAPIClient(opts).do(cmd.Context(), http.MethodPost, "/api/v1/session/lock", nil, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Session locked")
			return nil
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show whether a signing session is active",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp httphandler.SessionResponse
			if err := newAPIClient(opts).do(cmd.Context(), http.MethodGet, "/api/v1/session", nil, &resp); err != nil {
				return err
			}
			printSession(cmd, resp)
			return nil
		},
	}

	cmd.AddCommand(unlock, lock, status)
	return cmd
}

func printSession(cmd *cobra.Command, resp httphandler.SessionResponse) {
	if !resp.Active {
		fmt.Fprintln(cmd.OutOrStdout(), "Session locked")
		return
	}
	remaining := time.Duration(resp.ExpiresInSeconds) * time.Second
	fmt.Fprintf(cmd.OutOrStdout(), "Session active, expires in %s\n", remaining)
}
