package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ericfisherdev/autorecord/internal/application"
	"github.com/ericfisherdev/autorecord/internal/domain/model"
	"github.com/ericfisherdev/autorecord/internal/domain/port/driven"
)

const (
	defaultListLimit  = 50
	maxListLimit      = 500
	defaultAuditLimit = 100
	maxBodyBytes      = 1 << 16
	defaultRecordWait = 10 * time.Second

	// outcomeInProgress reports a forced recording still running when the
	// response is written.
	outcomeInProgress = "in_progress"

	// actorHeader names the operator on whose behalf an admin call is made.
	actorHeader  = "X-Actor"
	defaultActor = "admin"
)

// Services groups the application services the API drives.
type Services struct {
	Candidates *application.CandidateService
	Recorder   *application.Recorder
	Worker     *application.ScanWorker
	Policy     *application.PolicyService
	Session    *application.SessionCache
	Health     *application.HealthService
	Audit      *application.AuditLog
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
}

// Options configures the HTTP surface.
type Options struct {
	// AdminToken, when set, is required as a bearer token on every /api/v1
	// route except health.
	AdminToken string
	// ExplorerTxURL is the block explorer prefix transaction hashes are
	// appended to, e.g. https://sepolia.etherscan.io/tx/.
	ExplorerTxURL string
	// RecordWait bounds how long a forced record holds its request. An
	// attempt still running after it continues in the background and the
	// response is 202 Accepted.
	RecordWait time.Duration
}

// Handler is the HTTP driving adapter that serves the admin API.
type Handler struct {
	svc    Services
	opts   Options
	logger *slog.Logger

	// bg outlives requests; forced recordings run under it until Close.
	bg       context.Context
	cancelBg context.CancelFunc
	inflight sync.WaitGroup
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(svc Services, opts Options, logger *slog.Logger) *Handler {
	if opts.RecordWait <= 0 {
		opts.RecordWait = defaultRecordWait
	}
	bg, cancel := context.WithCancel(context.Background())
	return &Handler{svc: svc, opts: opts, logger: logger, bg: bg, cancelBg: cancel}
}

// Close cancels forced recordings still running in the background and
// waits for them to persist their state.
func (h *Handler) Close() {
	h.cancelBg()
	h.inflight.Wait()
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging, recovery and token middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("GET /api/v1/status", h.Status)
	mux.HandleFunc("GET /api/v1/policy", h.GetPolicy)
	mux.HandleFunc("PUT /api/v1/policy", h.UpdatePolicy)
	mux.HandleFunc("GET /api/v1/session", h.GetSession)
	mux.HandleFunc("POST /api/v1/session/unlock", h.UnlockSession)
	mux.HandleFunc("POST /api/v1/session/lock", h.LockSession)
	mux.HandleFunc("POST /api/v1/scan", h.TriggerScan)
	mux.HandleFunc("GET /api/v1/candidates", h.ListCandidates)
	mux.HandleFunc("POST /api/v1/candidates", h.CreateCandidate)
	mux.HandleFunc("GET /api/v1/candidates/{id}", h.GetCandidate)
	mux.HandleFunc("POST /api/v1/candidates/{id}/record", h.RecordCandidate)
	mux.HandleFunc("GET /api/v1/audit", h.ListAudit)
	if h.svc.Metrics != nil {
		mux.Handle("GET /metrics", h.svc.Metrics)
	}

	// Recovery innermost so panics are caught before logging.
	wrapped := tokenMiddleware(h.opts.AdminToken, mux)
	wrapped = recoveryMiddleware(logger, wrapped)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// Health reports whether the daemon can serve.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC().Format(time.RFC3339)
	if err := h.svc.Health.Check(r.Context()); err != nil {
		h.logger.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Time: now, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Time: now})
}

// Status returns the vault, session, policy and schema state.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Health.Status(r.Context())
	if err != nil {
		h.writeAppError(w, "get status", err)
		return
	}
	writeJSON(w, http.StatusOK, toStatusResponse(*st))
}

// GetPolicy returns the policy in force.
func (h *Handler) GetPolicy(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toPolicyResponse(h.svc.Policy.Current()))
}

// UpdatePolicy applies a partial policy change.
func (h *Handler) UpdatePolicy(w http.ResponseWriter, r *http.Request) {
	var req UpdatePolicyRequest
	if !decodeBody(w, r, &req) {
		return
	}

	upd, err := req.toUpdate()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.svc.Policy.SetPolicy(r.Context(), upd, actorFrom(r))
	if err != nil {
		h.writeAppError(w, "update policy", err)
		return
	}
	writeJSON(w, http.StatusOK, toPolicyResponse(p))
}

// GetSession reports whether a signing session is live.
func (h *Handler) GetSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toSessionResponse(h.svc.Session.TimeRemaining()))
}

// UnlockSession decrypts the vault and starts a new session.
func (h *Handler) UnlockSession(w http.ResponseWriter, r *http.Request) {
	var req UnlockRequest
	if !decodeBody(w, r, &req) {
		return
	}
	password := []byte(req.Password)
	defer clear(password)

	actor := actorFrom(r)
	if _, err := h.svc.Session.Unlock(r.Context(), password); err != nil {
		h.svc.Audit.Record(r.Context(), model.AuditUnlockFailed, actor, application.Classify(err).String())
		h.writeAppError(w, "unlock session", err)
		return
	}
	h.svc.Audit.Record(r.Context(), model.AuditSessionUnlock, actor, "")

	writeJSON(w, http.StatusOK, toSessionResponse(h.svc.Session.TimeRemaining()))
}

// LockSession discards the session immediately.
func (h *Handler) LockSession(w http.ResponseWriter, r *http.Request) {
	h.svc.Session.Lock()
	h.svc.Audit.Record(r.Context(), model.AuditSessionLock, actorFrom(r), "")
	w.WriteHeader(http.StatusNoContent)
}

// TriggerScan runs one scan and returns its per-candidate outcomes.
func (h *Handler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	if req.MaxAgeSeconds < 0 || req.Limit < 0 {
		writeError(w, http.StatusBadRequest, "max_age_seconds and limit must not be negative")
		return
	}

	maxAge := time.Duration(req.MaxAgeSeconds) * time.Second
	h.svc.Audit.Record(r.Context(), model.AuditScanTriggered, actorFrom(r), req.String())

	result, err := h.svc.Worker.TriggerScan(r.Context(), maxAge, req.Limit)
	if err != nil {
		h.writeAppError(w, "trigger scan", err)
		return
	}
	writeJSON(w, http.StatusOK, toScanResponse(result))
}

// ListCandidates lists candidates, optionally filtered by status.
func (h *Handler) ListCandidates(w http.ResponseWriter, r *http.Request) {
	filter := model.CandidateFilter{Limit: defaultListLimit}

	if raw := r.URL.Query().Get("status"); raw != "" {
		for s := range strings.SplitSeq(raw, ",") {
			st, err := model.ParseCandidateStatus(strings.TrimSpace(s))
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}

	limit, ok := parseLimit(w, r, defaultListLimit, maxListLimit)
	if !ok {
		return
	}
	filter.Limit = limit

	cs, err := h.svc.Candidates.List(r.Context(), filter)
	if err != nil {
		h.writeAppError(w, "list candidates", err)
		return
	}

	resp := make([]CandidateResponse, 0, len(cs))
	for _, c := range cs {
		resp = append(resp, h.toCandidateResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateCandidate stores a new candidate and schedules an inline attempt.
func (h *Handler) CreateCandidate(w http.ResponseWriter, r *http.Request) {
	var req CreateCandidateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	in, err := req.toNewCandidate()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := h.svc.Candidates.Create(r.Context(), in)
	if err != nil {
		h.writeAppError(w, "create candidate", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toCandidateResponse(*c))
}

// GetCandidate returns one candidate, with an explorer link once recorded.
func (h *Handler) GetCandidate(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Candidates.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeAppError(w, "get candidate", err)
		return
	}
	writeJSON(w, http.StatusOK, h.toCandidateResponse(*c))
}

type recordResult struct {
	out model.Outcome
	err error
}

// RecordCandidate makes an operator-initiated recording attempt that
// bypasses the automatic policy gates. The attempt runs apart from the
// request; if it outlasts RecordWait the response is 202 and a later GET of
// the candidate shows the result.
func (h *Handler) RecordCandidate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	h.svc.Audit.Record(r.Context(), model.AuditRecordForced, actorFrom(r), "candidate="+id)

	done := make(chan recordResult, 1)
	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		out, err := h.svc.Recorder.ForceRecord(h.bg, id)
		done <- recordResult{out: out, err: err}
	}()

	timer := time.NewTimer(h.opts.RecordWait)
	defer timer.Stop()

	var res recordResult
	select {
	case res = <-done:
	case <-timer.C:
		writeJSON(w, http.StatusAccepted, OutcomeResponse{CandidateID: id, Outcome: outcomeInProgress})
		return
	case <-r.Context().Done():
		return
	}

	if res.err != nil {
		h.writeAppError(w, "record candidate", res.err)
		return
	}
	if res.out.Kind == model.OutcomeSkipped && res.out.Skip == model.SkipNotFound {
		writeError(w, http.StatusNotFound, "candidate not found")
		return
	}
	writeJSON(w, http.StatusOK, h.toOutcomeResponse(id, res.out))
}

// ListAudit returns recent administrative actions, newest first.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, defaultAuditLimit, maxListLimit)
	if !ok {
		return
	}

	events, err := h.svc.Audit.Recent(r.Context(), limit)
	if err != nil {
		h.writeAppError(w, "list audit events", err)
		return
	}

	resp := make([]AuditEventResponse, 0, len(events))
	for _, ev := range events {
		resp = append(resp, toAuditEventResponse(ev))
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeAppError maps an application error to a status code through its
// error class. Unknown errors are logged and hidden behind a 500.
func (h *Handler) writeAppError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, application.ErrCandidateNotFound):
		writeError(w, http.StatusNotFound, "candidate not found")
		return
	case errors.Is(err, driven.ErrDuplicatePaymentRef):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, application.ErrTooManyAttempts):
		writeError(w, http.StatusLocked, err.Error())
		return
	}

	switch application.Classify(err) {
	case application.ClassValidation:
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case application.ClassAuthentication:
		writeError(w, http.StatusUnauthorized, err.Error())
	case application.ClassConfiguration:
		writeError(w, http.StatusConflict, err.Error())
	case application.ClassNetwork:
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case application.ClassConcurrency:
		writeError(w, http.StatusLocked, err.Error())
	default:
		h.logger.Error("request failed", "op", op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) explorerURL(txRef string) string {
	if h.opts.ExplorerTxURL == "" || txRef == "" {
		return ""
	}
	return strings.TrimRight(h.opts.ExplorerTxURL, "/") + "/" + txRef
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func parseLimit(w http.ResponseWriter, r *http.Request, def, maxLimit int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	return min(n, maxLimit), true
}

func actorFrom(r *http.Request) string {
	if a := strings.TrimSpace(r.Header.Get(actorHeader)); a != "" {
		return a
	}
	return defaultActor
}
