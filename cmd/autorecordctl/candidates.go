package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	httphandler "github.com/ericfisherdev/autorecord/internal/adapter/driving/http"
	"github.com/ericfisherdev/autorecord/internal/domain/model"
)

func newCandidatesCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "candidates",
		Aliases: []string{"candidate", "c"},
		Short:   "List, add, inspect and record candidates",
	}
	cmd.AddCommand(
		newCandidatesListCmd(opts),
		newCandidatesAddCmd(opts),
		newCandidatesShowCmd(opts),
		newCandidatesRecordCmd(opts),
	)
	return cmd
}

func newCandidatesListCmd(opts *globalOptions) *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List candidates, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			if status != "" {
				q.Set("status", status)
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			path := "/api/v1/candidates"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}

			var resp []httphandler.CandidateResponse
			if err := newAPIClient(opts).do(cmd.Context(), http.MethodGet, path, nil, &resp); err != nil {
				return err
			}

			rows := make([][]string, 0, len(resp))
			for _, c := range resp {
				rows = append(rows, []string{
					c.ID, c.Kind, c.Amount, c.Category, c.Status,
					strconv.Itoa(c.Attempts), c.FailureReason, shortRef(c.ConfirmedRef), formatRFC3339(c.CreatedAt),
				})
			}
			renderTable(cmd.OutOrStdout(),
				[]string{"ID", "KIND", "AMOUNT", "CATEGORY", "STATUS", "TRIES", "REASON", "TX", "CREATED"},
				rows, 2, 5)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "comma-separated statuses to include")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows (server default 50)")
	return cmd
}

func newCandidatesAddCmd(opts *globalOptions) *cobra.Command {
	var req httphandler.CreateCandidateRequest
	var amount string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a candidate for recording",
		Example: `  autorecordctl candidates add --kind donation --amount 500 --donor "Asha" --purpose meals --payment-ref UPI-1234
  autorecordctl candidates add --kind spending --amount 1200.50 --category shelter --payment-ref UPI-5678`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := model.ParseAmount(amount)
			if err != nil {
				return err
			}
			req.AmountMinor = a.Minor()

			var resp httphandler.CandidateResponse
			if err := newAPIClient(opts).do(cmd.Context(), http.MethodPost, "/api/v1/candidates", req, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created candidate %s (%s)\n", resp.ID, resp.Status)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.Kind, "kind", "", "donation or spending")
	f.StringVar(&amount, "amount", "", "amount in rupees, e.g. 1500.50")
	f.StringVar(&req.Category, "category", "", "spending category")
	f.StringVar(&req.Purpose, "purpose", "", "what the money is for")
	f.StringVar(&req.DonorName, "donor", "", "donor name (donations)")
	f.StringVar(&req.PaymentRef, "payment-ref", "", "unique upstream payment reference")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("payment-ref")
	return cmd
}

func newCandidatesShowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one candidate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var c httphandler.CandidateResponse
			path := "/api/v1/candidates/" + url.PathEscape(args[0])
			if err := newAPIClient(opts).do(cmd.Context(), http.MethodGet, path, nil, &c); err != nil {
				return err
			}
			renderFields(cmd.OutOrStdout(), [][2]string{
				{"id", c.ID},
				{"kind", c.Kind},
				{"amount", "₹" + c.Amount},
				{"category", c.Category},
				{"purpose", c.Purpose},
				{"donor", c.DonorName},
				{"payment ref", c.PaymentRef},
				{"status", c.Status},
				{"attempts", strconv.Itoa(c.Attempts)},
				{"failure reason", c.FailureReason},
				{"last error", c.LastError},
				{"signed tx", c.SignedRef},
				{"broadcast tx", c.AttemptedRef},
				{"confirmed tx", c.ConfirmedRef},
				{"explorer", c.ExplorerURL},
				{"sender", c.SenderAddress},
				{"next attempt", formatRFC3339(c.NextAttemptAt)},
				{"recorded", formatRFC3339(c.RecordedAt)},
				{"created", formatRFC3339(c.CreatedAt)},
			})
			return nil
		},
	}
}

func newCandidatesRecordCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "record <id>",
		Short: "Record a candidate now, bypassing the automatic policy",
		Long: `record makes an operator-initiated attempt. The enabled flag, mode and
amount limit are not checked, but a session must be unlocked and the
candidate must not already be recorded.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out httphandler.OutcomeResponse
			path := "/api/v1/candidates/" + url.PathEscape(args[0]) + "/record"
			if err := newAPIClient(opts).do(cmd.Context(), http.MethodPost, path, nil, &out); err != nil {
				return err
			}
			printOutcome(cmd, out)
			return nil
		},
	}
}

func printOutcome(cmd *cobra.Command, out httphandler.OutcomeResponse) {
	w := cmd.OutOrStdout()
	switch out.Outcome {
	case string(model.OutcomeRecorded):
		fmt.Fprintf(w, "%s recorded in %s\n", out.CandidateID, out.TxRef)
		if out.ExplorerURL != "" {
			fmt.Fprintln(w, out.ExplorerURL)
		}
	case "in_progress":
		fmt.Fprintf(w, "%s still recording; check it with: autorecordctl candidates show %s\n",
			out.CandidateID, out.CandidateID)
	default:
		fmt.Fprintf(w, "%s %s: %s\n", out.CandidateID, out.Outcome, out.Reason)
	}
}

func shortRef(ref string) string {
	if len(ref) <= 14 {
		return ref
	}
	return ref[:8] + "…" + ref[len(ref)-4:]
}
