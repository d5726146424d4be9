package main

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	httphandler "github.com/ericfisherdev/autorecord/internal/adapter/driving/http"
)

func newScanCmd(opts *globalOptions) *cobra.Command {
	var maxAge time.Duration
	var limit int

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one scan on the daemon and show each outcome",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := httphandler.ScanRequest{MaxAgeSeconds: int64(maxAge / time.Second), Limit: limit}

			var resp httphandler.ScanResponse
			if err := newAPIClient(opts).do(cmd.Context(), http.MethodPost, "/api/v1/scan", req, &resp); err != nil {
				return err
			}

			rows := make([][]string, 0, len(resp.Outcomes))
			for _, o := range resp.Outcomes {
				rows = append(rows, []string{o.CandidateID, o.Outcome, o.Reason, o.TxRef})
			}
			renderTable(cmd.OutOrStdout(), []string{"CANDIDATE", "OUTCOME", "REASON", "TX"}, rows)
			fmt.Fprintf(cmd.OutOrStdout(), "found %d, errors %d, took %s\n",
				resp.Found, resp.Errors, time.Duration(resp.DurationMS)*time.Millisecond)
			return nil
		},
	}
	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "only candidates created within this window (server default 24h)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum candidates to process (server default 5)")
	return cmd
}

func newAuditCmd(opts *globalOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List recent administrative actions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp []httphandler.AuditEventResponse
			path := "/api/v1/audit?limit=" + strconv.Itoa(limit)
			if err := newAPIClient(opts).do(cmd.Context(), http.MethodGet, path, nil, &resp); err != nil {
				return err
			}

			rows := make([][]string, 0, len(resp))
			for _, ev := range resp {
				rows = append(rows, []string{formatRFC3339(ev.At), ev.Actor, ev.Action, ev.Detail})
			}
			renderTable(cmd.OutOrStdout(), []string{"AT", "ACTOR", "ACTION", "DETAIL"}, rows)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum events")
	return cmd
}

func newStatusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show vault, session, policy and schema state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var st httphandler.StatusResponse
			if err := newAPIClient(opts).do(cmd.Context(), http.MethodGet, "/api/v1/status", nil, &st); err != nil {
				return err
			}

			session := "locked"
			if st.Session.Active {
				session = "active, " + (time.Duration(st.Session.ExpiresInSeconds) * time.Second).String() + " left"
			}
			renderFields(cmd.OutOrStdout(), [][2]string{
				{"schema version", strconv.FormatUint(uint64(st.SchemaVersion), 10)},
				{"vault", strconv.FormatBool(st.Vault.Initialized)},
				{"wallet", st.Vault.Address},
				{"vault locked until", formatRFC3339(st.Vault.LockedUntil)},
				{"session", session},
				{"policy", st.Policy.Mode + " (enabled=" + strconv.FormatBool(st.Policy.Enabled) + ")"},
				{"max auto amount", "₹" + st.Policy.MaxAutoAmount},
			})
			return nil
		},
	}
}

// formatRFC3339 renders an API timestamp in local time. Unparseable values
// pass through.
func formatRFC3339(s string) string {
	if s == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return s
	}
	return formatLocal(t)
}

func formatLocal(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
