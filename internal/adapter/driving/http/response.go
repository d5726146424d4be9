package httphandler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ericfisherdev/autorecord/internal/application"
	"github.com/ericfisherdev/autorecord/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
	Error  string `json:"error,omitempty"`
}

// PolicyResponse is the JSON representation of the recording policy.
type PolicyResponse struct {
	Enabled               bool   `json:"enabled"`
	Mode                  string `json:"mode"`
	MaxAutoAmountMinor    int64  `json:"max_auto_amount_minor"`
	MaxAutoAmount         string `json:"max_auto_amount"`
	SessionTimeoutSeconds int64  `json:"session_timeout_seconds"`
	LastModifiedBy        string `json:"last_modified_by,omitempty"`
	LastAuditAt           string `json:"last_audit_at,omitempty"`
}

// UpdatePolicyRequest is the JSON body for the policy update endpoint.
// Omitted fields keep their current value.
type UpdatePolicyRequest struct {
	Enabled               *bool   `json:"enabled,omitempty"`
	Mode                  *string `json:"mode,omitempty"`
	MaxAutoAmountMinor    *int64  `json:"max_auto_amount_minor,omitempty"`
	SessionTimeoutSeconds *int64  `json:"session_timeout_seconds,omitempty"`
}

// SessionResponse describes the signing session.
type SessionResponse struct {
	Active           bool  `json:"active"`
	ExpiresInSeconds int64 `json:"expires_in_seconds"`
}

// UnlockRequest is the JSON body for the session unlock endpoint.
type UnlockRequest struct {
	Password string `json:"password"`
}

// ScanRequest is the optional JSON body for the scan trigger endpoint.
type ScanRequest struct {
	MaxAgeSeconds int64 `json:"max_age_seconds"`
	Limit         int   `json:"limit"`
}

// ScanResponse summarizes one scan.
type ScanResponse struct {
	Found      int               `json:"found"`
	Errors     int               `json:"errors"`
	DurationMS int64             `json:"duration_ms"`
	Outcomes   []OutcomeResponse `json:"outcomes"`
}

// OutcomeResponse is the result of one recording attempt.
type OutcomeResponse struct {
	CandidateID string `json:"candidate_id"`
	Outcome     string `json:"outcome"`
	Reason      string `json:"reason,omitempty"`
	TxRef       string `json:"tx_ref,omitempty"`
	ExplorerURL string `json:"explorer_url,omitempty"`
}

// CandidateResponse is the JSON representation of a candidate.
type CandidateResponse struct {
	ID               string `json:"id"`
	Kind             string `json:"kind"`
	AmountMinor      int64  `json:"amount_minor"`
	Amount           string `json:"amount"`
	Category         string `json:"category"`
	Purpose          string `json:"purpose"`
	DonorName        string `json:"donor_name,omitempty"`
	PaymentRef       string `json:"payment_ref"`
	Status           string `json:"status"`
	SignedRef        string `json:"signed_ref,omitempty"`
	AttemptedRef     string `json:"attempted_ref,omitempty"`
	ConfirmedRef     string `json:"confirmed_ref,omitempty"`
	ExplorerURL      string `json:"explorer_url,omitempty"`
	SenderAddress    string `json:"sender_address,omitempty"`
	FailureReason    string `json:"failure_reason,omitempty"`
	LastError        string `json:"last_error,omitempty"`
	Attempts         int    `json:"attempts"`
	AttemptStartedAt string `json:"attempt_started_at,omitempty"`
	NextAttemptAt    string `json:"next_attempt_at,omitempty"`
	RecordedAt       string `json:"recorded_at,omitempty"`
	CreatedAt        string `json:"created_at"`
}

// CreateCandidateRequest is the JSON body for the create candidate endpoint.
type CreateCandidateRequest struct {
	Kind        string `json:"kind"`
	AmountMinor int64  `json:"amount_minor"`
	Category    string `json:"category"`
	Purpose     string `json:"purpose"`
	DonorName   string `json:"donor_name"`
	PaymentRef  string `json:"payment_ref"`
}

// AuditEventResponse is the JSON representation of an audit event.
type AuditEventResponse struct {
	ID     string `json:"id"`
	Action string `json:"action"`
	Actor  string `json:"actor"`
	Detail string `json:"detail,omitempty"`
	At     string `json:"at"`
}

// StatusResponse is the operator-facing system status.
type StatusResponse struct {
	SchemaVersion uint            `json:"schema_version"`
	Vault         VaultResponse   `json:"vault"`
	Session       SessionResponse `json:"session"`
	Policy        PolicyResponse  `json:"policy"`
}

// VaultResponse describes the stored Secret Record without its contents.
type VaultResponse struct {
	Initialized bool   `json:"initialized"`
	Version     int    `json:"version,omitempty"`
	Address     string `json:"address,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	RotatedAt   string `json:"rotated_at,omitempty"`
	LockedUntil string `json:"locked_until,omitempty"`
}

func (req UpdatePolicyRequest) toUpdate() (model.PolicyUpdate, error) {
	upd := model.PolicyUpdate{Enabled: req.Enabled}
	if req.Mode != nil {
		mode, err := model.ParseRecordingMode(*req.Mode)
		if err != nil {
			return model.PolicyUpdate{}, err
		}
		upd.Mode = &mode
	}
	if req.MaxAutoAmountMinor != nil {
		amount := model.Amount(*req.MaxAutoAmountMinor)
		upd.MaxAutoAmount = &amount
	}
	if req.SessionTimeoutSeconds != nil {
		timeout := time.Duration(*req.SessionTimeoutSeconds) * time.Second
		upd.SessionTimeout = &timeout
	}
	return upd, nil
}

func (req CreateCandidateRequest) toNewCandidate() (application.NewCandidate, error) {
	kind, err := model.ParseCandidateKind(req.Kind)
	if err != nil {
		return application.NewCandidate{}, err
	}
	category := model.CategoryOther
	if req.Category != "" {
		category, err = model.ParseCategory(req.Category)
		if err != nil {
			return application.NewCandidate{}, err
		}
	} else if kind == model.KindSpending {
		return application.NewCandidate{}, errors.New("category is required for spending")
	}
	return application.NewCandidate{
		Kind:       kind,
		Amount:     model.Amount(req.AmountMinor),
		Category:   category,
		Purpose:    req.Purpose,
		DonorName:  req.DonorName,
		PaymentRef: req.PaymentRef,
	}, nil
}

func toPolicyResponse(p model.Policy) PolicyResponse {
	return PolicyResponse{
		Enabled:               p.Enabled,
		Mode:                  string(p.Mode),
		MaxAutoAmountMinor:    p.MaxAutoAmount.Minor(),
		MaxAutoAmount:         p.MaxAutoAmount.String(),
		SessionTimeoutSeconds: int64(p.SessionTimeout / time.Second),
		LastModifiedBy:        p.LastModifiedBy,
		LastAuditAt:           formatTime(p.LastAuditAt),
	}
}

func toSessionResponse(remaining time.Duration) SessionResponse {
	return SessionResponse{
		Active:           remaining > 0,
		ExpiresInSeconds: int64(remaining.Round(time.Second) / time.Second),
	}
}

func toScanResponse(result application.ScanResult) ScanResponse {
	resp := ScanResponse{
		Found:      result.Found,
		Errors:     result.Errors,
		DurationMS: result.Duration.Milliseconds(),
		Outcomes:   make([]OutcomeResponse, 0, len(result.Outcomes)),
	}
	for _, co := range result.Outcomes {
		if co.CandidateID == "" {
			continue
		}
		resp.Outcomes = append(resp.Outcomes, OutcomeResponse{
			CandidateID: co.CandidateID,
			Outcome:     string(co.Outcome.Kind),
			Reason:      co.Outcome.Reason(),
			TxRef:       co.Outcome.TxRef,
		})
	}
	return resp
}

func (h *Handler) toOutcomeResponse(id string, out model.Outcome) OutcomeResponse {
	resp := OutcomeResponse{
		CandidateID: id,
		Outcome:     string(out.Kind),
		Reason:      out.Reason(),
		TxRef:       out.TxRef,
	}
	if out.Kind == model.OutcomeRecorded {
		resp.ExplorerURL = h.explorerURL(out.TxRef)
	}
	return resp
}

func (h *Handler) toCandidateResponse(c model.Candidate) CandidateResponse {
	return CandidateResponse{
		ID:               c.ID,
		Kind:             string(c.Kind),
		AmountMinor:      c.Amount.Minor(),
		Amount:           c.Amount.String(),
		Category:         c.Category.String(),
		Purpose:          c.Purpose,
		DonorName:        c.DonorName,
		PaymentRef:       c.PaymentRef,
		Status:           string(c.Status),
		SignedRef:        c.SignedRef,
		AttemptedRef:     c.AttemptedRef,
		ConfirmedRef:     c.ConfirmedRef,
		ExplorerURL:      h.explorerURL(c.ConfirmedRef),
		SenderAddress:    c.SenderAddress,
		FailureReason:    string(c.FailureReason),
		LastError:        c.LastError,
		Attempts:         c.Attempts,
		AttemptStartedAt: formatTime(c.AttemptStartedAt),
		NextAttemptAt:    formatTime(c.NextAttemptAt),
		RecordedAt:       formatTime(c.RecordedAt),
		CreatedAt:        formatTime(c.CreatedAt),
	}
}

func toAuditEventResponse(ev model.AuditEvent) AuditEventResponse {
	return AuditEventResponse{
		ID:     ev.ID,
		Action: string(ev.Action),
		Actor:  ev.Actor,
		Detail: ev.Detail,
		At:     formatTime(ev.At),
	}
}

func toStatusResponse(st application.SystemStatus) StatusResponse {
	vault := VaultResponse{
		Initialized: st.Vault.Initialized,
		Version:     st.Vault.Version,
		Address:     st.Vault.Address,
		CreatedAt:   formatTime(st.Vault.CreatedAt),
		RotatedAt:   formatTime(st.Vault.RotatedAt),
		LockedUntil: formatTime(st.Vault.LockedUntil),
	}
	return StatusResponse{
		SchemaVersion: st.SchemaVersion,
		Vault:         vault,
		Session:       toSessionResponse(st.SessionRemaining),
		Policy:        toPolicyResponse(st.Policy),
	}
}

// formatTime renders t as RFC 3339 in UTC, or "" for the zero time.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// String renders the request for the audit log.
func (req ScanRequest) String() string {
	return fmt.Sprintf("max_age=%ds limit=%d", req.MaxAgeSeconds, req.Limit)
}
