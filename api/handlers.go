/*
handlers.go - HTTP API handlers for the deployment assistant

PURPOSE:
  Exposes the entitlement reconciliation engine via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to domain
  logic.

ENDPOINTS:
  Accounts:
    GET    /api/accounts                        List accounts with snapshot counts
    POST   /api/accounts/{id}/snapshots         Ingest a snapshot (capture path)
    GET    /api/accounts/{id}/history           Account history comparison
    GET    /api/accounts/{id}/expirations       Expiration risk (?window=30)
    GET    /api/accounts/{id}/products          Customer products date aggregation
    GET    /api/accounts/{id}/categories        Category tiles (?mode=union|per_snapshot)

  Monitoring:
    GET    /api/removals                        Cross-account removals feed
    GET    /api/analysis/runs                   Batch re-analysis run history
    POST   /api/analysis/refresh                Trigger batch re-analysis

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: Database access (snapshots, cache, runs)
  - Config: Monitor configuration (windows, candidate fields)
  - Removals / Expiry: The monitors
  - Log: Structured logging

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Account not found
  - 409: Conflict (duplicate snapshot id)
  - 422: Snapshot history without a resolvable order
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. The assistant runs on
  the internal ops network only.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - scheduler.go: Background batch re-analysis
*/
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/meridian/deploy-assistant/entitlement"
	"github.com/meridian/deploy-assistant/factory"
	"github.com/meridian/deploy-assistant/history"
	"github.com/meridian/deploy-assistant/logging"
	"github.com/meridian/deploy-assistant/monitor"
	"github.com/meridian/deploy-assistant/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  *sqlite.Store
	Config *factory.Config
	Log    *logging.Logger

	Removals  *monitor.RemovalsMonitor
	Expiry    *monitor.ExpiryMonitor
	Scheduler *AnalysisScheduler

	normalizer *entitlement.Normalizer
}

// NewHandler creates a new handler with the given store and config.
func NewHandler(store *sqlite.Store, cfg *factory.Config, log *logging.Logger) *Handler {
	normalizer := cfg.Normalizer()

	removals := monitor.NewRemovalsMonitor(store)
	removals.Normalizer = normalizer

	expiry := monitor.NewExpiryMonitor(store, store)
	expiry.Normalizer = normalizer

	return &Handler{
		Store:      store,
		Config:     cfg,
		Log:        log,
		Removals:   removals,
		Expiry:     expiry,
		normalizer: normalizer,
	}
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// ListAccounts returns all accounts with snapshot counts.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.Store.ListAccountSummaries(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list accounts", err)
		return
	}

	dtos := make([]AccountDTO, len(summaries))
	for i, s := range summaries {
		dtos[i] = AccountDTO{
			ID:             string(s.AccountID),
			SnapshotCount:  s.SnapshotCount,
			LastCapturedAt: s.LastCapturedAt.UTC().Format(time.RFC3339),
		}
	}

	writeJSON(w, http.StatusOK, dtos)
}

// IngestSnapshot stores one captured provisioning snapshot and
// invalidates the account's cached classifications.
func (h *Handler) IngestSnapshot(w http.ResponseWriter, r *http.Request) {
	accountID := entitlement.AccountID(chi.URLParam(r, "id"))

	var req IngestSnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.Payload) == 0 {
		writeError(w, http.StatusBadRequest, "Missing payload", nil)
		return
	}

	capturedAt := time.Now().UTC()
	if req.CapturedAt != "" {
		t, err := time.Parse(time.RFC3339, req.CapturedAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid captured_at format (use RFC3339)", err)
			return
		}
		capturedAt = t.UTC()
	}

	requestType := entitlement.RequestType(req.RequestType)
	if requestType == "" {
		requestType = entitlement.RequestUnknown
	}

	snap := entitlement.Snapshot{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		RequestID:   entitlement.RequestID(req.RequestID),
		RequestName: req.RequestName,
		RequestType: requestType,
		Timestamp:   capturedAt,
		RawPayload:  req.Payload,
	}

	ctx := r.Context()
	if err := h.Store.SaveSnapshot(ctx, snap); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save snapshot", err)
		return
	}

	// Stale classifications must not outlive new history.
	if err := h.Expiry.Invalidate(ctx, accountID); err != nil {
		h.Log.Warn("cache invalidation failed", "account", accountID, "error", err)
	}

	writeJSON(w, http.StatusCreated, IngestSnapshotResponse{SnapshotID: snap.ID})
}

// GetHistory returns the account history comparison view.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	accountID := entitlement.AccountID(chi.URLParam(r, "id"))

	tl, err := h.buildTimeline(r, accountID)
	if err != nil {
		writeDomainError(w, "Failed to build account history", err)
		return
	}

	report, err := history.Build(tl)
	if err != nil {
		writeDomainError(w, "Failed to build account history", err)
		return
	}

	writeJSON(w, http.StatusOK, toHistoryResponse(report))
}

// GetExpirations returns the expiration classification for an account,
// from cache when available.
func (h *Handler) GetExpirations(w http.ResponseWriter, r *http.Request) {
	accountID := entitlement.AccountID(chi.URLParam(r, "id"))

	windowDays := h.Config.DefaultWindowDays
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid window (use a positive day count)", err)
			return
		}
		if !h.Config.ValidWindow(parsed) {
			writeError(w, http.StatusBadRequest, "Window is not an allowed preset", nil)
			return
		}
		windowDays = parsed
	}

	entry, err := h.Expiry.Check(r.Context(), accountID, windowDays)
	if err != nil {
		writeDomainError(w, "Failed to classify expirations", err)
		return
	}

	writeJSON(w, http.StatusOK, toExpirationsResponse(entry))
}

// GetProducts returns the rolled-up cross-snapshot product view.
func (h *Handler) GetProducts(w http.ResponseWriter, r *http.Request) {
	accountID := entitlement.AccountID(chi.URLParam(r, "id"))

	tl, err := h.buildTimeline(r, accountID)
	if err != nil {
		writeDomainError(w, "Failed to build products view", err)
		return
	}

	writeJSON(w, http.StatusOK, ProductsResponse{
		AccountID: string(accountID),
		Products:  toEntitlementDTOs(tl.Products()),
	})
}

// GetCategories returns category tiles for an account. Mode defaults to
// union; ?mode=per_snapshot returns one tile set per snapshot.
func (h *Handler) GetCategories(w http.ResponseWriter, r *http.Request) {
	accountID := entitlement.AccountID(chi.URLParam(r, "id"))

	mode := entitlement.ModeUnion
	switch strings.ToLower(r.URL.Query().Get("mode")) {
	case "", "union":
	case "per_snapshot":
		mode = entitlement.ModePerSnapshot
	default:
		writeError(w, http.StatusBadRequest, "Invalid mode (use union or per_snapshot)", nil)
		return
	}

	tl, err := h.buildTimeline(r, accountID)
	if err != nil {
		writeDomainError(w, "Failed to aggregate categories", err)
		return
	}

	tiles, _ := entitlement.Aggregate(tl.Normalized, mode)
	writeJSON(w, http.StatusOK, CategoriesResponse{
		AccountID: string(accountID),
		Mode:      string(mode),
		Tiles:     toCategoryTileDTOs(tiles),
	})
}

// =============================================================================
// MONITORING HANDLERS
// =============================================================================

// ListRemovals returns the cross-account removals feed.
func (h *Handler) ListRemovals(w http.ResponseWriter, r *http.Request) {
	result, err := h.Removals.Scan(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to scan removals", err)
		return
	}
	writeJSON(w, http.StatusOK, toRemovalsResponse(result))
}

// ListAnalysisRuns returns the batch re-analysis run history.
func (h *Handler) ListAnalysisRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	runs, err := h.Store.ListAnalysisRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list analysis runs", err)
		return
	}

	dtos := make([]AnalysisRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toAnalysisRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// TriggerRefresh runs a batch re-analysis immediately.
func (h *Handler) TriggerRefresh(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "Scheduler not configured", nil)
		return
	}

	var req RefreshRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	windowDays := req.WindowDays
	if windowDays == 0 {
		windowDays = h.Config.DefaultWindowDays
	}
	if windowDays < 0 {
		writeError(w, http.StatusBadRequest, "Invalid window_days", nil)
		return
	}

	run, err := h.Scheduler.RunBatch(r.Context(), windowDays)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Batch re-analysis failed", err)
		return
	}

	writeJSON(w, http.StatusOK, toAnalysisRunDTO(*run))
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) buildTimeline(r *http.Request, accountID entitlement.AccountID) (*entitlement.Timeline, error) {
	snaps, err := h.Store.GetSnapshotsForAccount(r.Context(), accountID)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, entitlement.ErrAccountNotFound
	}
	return entitlement.BuildTimeline(accountID, snaps, h.normalizer), nil
}

// writeDomainError maps engine errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case entitlement.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Account not found", err)
	case entitlement.IsClientError(err):
		writeError(w, http.StatusUnprocessableEntity, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
