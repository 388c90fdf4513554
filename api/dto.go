/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Accounts:
    AccountDTO, IngestSnapshotRequest

  History:
    HistoryResponse, ChangeReportDTO, DiffDTO

  Expirations:
    ExpirationsResponse, ExpirationDTO, ExpirationGroupDTO

  Products / Categories:
    EntitlementDTO, CategoryTileDTO

  Monitoring:
    RemovalsResponse, AnalysisRunDTO

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - entitlement/types.go: The domain model behind them
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/meridian/deploy-assistant/entitlement"
	"github.com/meridian/deploy-assistant/history"
	"github.com/meridian/deploy-assistant/monitor"
	"github.com/meridian/deploy-assistant/store/sqlite"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// AccountDTO is one row of the account listing.
type AccountDTO struct {
	ID             string `json:"id"`
	SnapshotCount  int    `json:"snapshot_count"`
	LastCapturedAt string `json:"last_captured_at"`
}

// IngestSnapshotRequest is the capture path: one provisioning request's
// entitlement payload for an account.
type IngestSnapshotRequest struct {
	RequestID   string          `json:"request_id"`
	RequestName string          `json:"request_name,omitempty"`
	RequestType string          `json:"request_type,omitempty"`
	CapturedAt  string          `json:"captured_at"` // RFC3339
	Payload     json.RawMessage `json:"payload"`
}

// IngestSnapshotResponse returns the assigned snapshot id.
type IngestSnapshotResponse struct {
	SnapshotID string `json:"snapshot_id"`
}

// SnapshotRefDTO identifies a snapshot / provisioning request.
type SnapshotRefDTO struct {
	SnapshotID  string `json:"snapshot_id"`
	RequestID   string `json:"request_id"`
	RequestName string `json:"request_name,omitempty"`
	RequestType string `json:"request_type,omitempty"`
	CapturedAt  string `json:"captured_at"`
}

// EntitlementDTO is one rolled-up entitlement row.
type EntitlementDTO struct {
	ProductCode string  `json:"product_code"`
	DisplayName string  `json:"display_name,omitempty"`
	Category    string  `json:"category"`
	StartDate   *string `json:"start_date,omitempty"`
	EndDate     *string `json:"end_date,omitempty"` // absent = non-expiring
	Quantity    float64 `json:"quantity,omitempty"`
	SourceCount int     `json:"source_count,omitempty"`
}

// DiffDTO is one snapshot-to-snapshot comparison.
type DiffDTO struct {
	Previous  SnapshotRefDTO   `json:"previous"`
	Current   SnapshotRefDTO   `json:"current"`
	Added     []EntitlementDTO `json:"added"`
	Removed   []EntitlementDTO `json:"removed"`
	Unchanged []EntitlementDTO `json:"unchanged"`
}

// CategoryTileDTO is one category summary tile.
type CategoryTileDTO struct {
	Category       string                      `json:"category"`
	SnapshotID     string                      `json:"snapshot_id,omitempty"`
	UniqueProducts int                         `json:"unique_products"`
	TotalQuantity  float64                     `json:"total_quantity"`
	Sources        map[string][]SnapshotRefDTO `json:"sources,omitempty"`
}

// ChangeReportDTO is one request's entry in the account history.
type ChangeReportDTO struct {
	Request SnapshotRefDTO    `json:"request"`
	Diff    *DiffDTO          `json:"diff,omitempty"` // absent for the first request
	Tiles   []CategoryTileDTO `json:"tiles"`
}

// UnavailableDTO marks a captured snapshot that could not be analyzed.
type UnavailableDTO struct {
	Request SnapshotRefDTO `json:"request"`
	Reason  string         `json:"reason"`
}

// WarningDTO surfaces a data-quality finding.
type WarningDTO struct {
	Code       string `json:"code"`
	SnapshotID string `json:"snapshot_id,omitempty"`
	Category   string `json:"category,omitempty"`
	Field      string `json:"field,omitempty"`
	Value      string `json:"value,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// HistoryResponse is the account history comparison view.
type HistoryResponse struct {
	AccountID   string            `json:"account_id"`
	Reports     []ChangeReportDTO `json:"reports"`
	Unavailable []UnavailableDTO  `json:"unavailable,omitempty"`
	Warnings    []WarningDTO      `json:"warnings,omitempty"`
}

// ExpirationDTO is one product's expiration classification.
type ExpirationDTO struct {
	ProductCode string          `json:"product_code"`
	DisplayName string          `json:"display_name,omitempty"`
	Category    string          `json:"category"`
	EndDate     *string         `json:"end_date,omitempty"`
	Status      string          `json:"status"`
	Source      SnapshotRefDTO  `json:"source"`
	ExtendedBy  *SnapshotRefDTO `json:"extended_by,omitempty"`
}

// ExpirationGroupDTO is the request-level risk group.
type ExpirationGroupDTO struct {
	RequestID   string          `json:"request_id"`
	RequestName string          `json:"request_name,omitempty"`
	CapturedAt  string          `json:"captured_at"`
	Status      string          `json:"status"`
	Records     []ExpirationDTO `json:"records"`
}

// ExpirationsResponse is the risk panel payload for one account.
type ExpirationsResponse struct {
	AccountID  string               `json:"account_id"`
	WindowDays int                  `json:"window_days"`
	ComputedAt string               `json:"computed_at"`
	Records    []ExpirationDTO      `json:"records"`
	Groups     []ExpirationGroupDTO `json:"groups"`
}

// ProductsResponse is the customer products date aggregation view.
type ProductsResponse struct {
	AccountID string           `json:"account_id"`
	Products  []EntitlementDTO `json:"products"`
}

// CategoriesResponse carries category tiles for one account.
type CategoriesResponse struct {
	AccountID string            `json:"account_id"`
	Mode      string            `json:"mode"`
	Tiles     []CategoryTileDTO `json:"tiles"`
}

// RemovalEventDTO is one request dropping products.
type RemovalEventDTO struct {
	AccountID string           `json:"account_id"`
	Request   SnapshotRefDTO   `json:"request"`
	Previous  SnapshotRefDTO   `json:"previous"`
	Removed   []EntitlementDTO `json:"removed"`
}

// NotAvailableDTO marks an account the monitors could not analyze.
type NotAvailableDTO struct {
	AccountID string `json:"account_id"`
	Reason    string `json:"reason"`
}

// RemovalsResponse is the cross-account removals feed.
type RemovalsResponse struct {
	Events       []RemovalEventDTO `json:"events"`
	NotAvailable []NotAvailableDTO `json:"not_available,omitempty"`
}

// AnalysisRunDTO is one batch re-analysis run record.
type AnalysisRunDTO struct {
	ID             string `json:"id"`
	WindowDays     int    `json:"window_days"`
	Status         string `json:"status"`
	AccountsTotal  int    `json:"accounts_total"`
	AccountsFailed int    `json:"accounts_failed"`
	AtRisk         int    `json:"at_risk"`
	Extended       int    `json:"extended"`
	Error          string `json:"error,omitempty"`
	StartedAt      string `json:"started_at,omitempty"`
	CompletedAt    string `json:"completed_at,omitempty"`
}

// RefreshRequest triggers a batch re-analysis.
type RefreshRequest struct {
	WindowDays int `json:"window_days,omitempty"` // 0 = configured default
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toSnapshotRefDTO(ref entitlement.SnapshotRef) SnapshotRefDTO {
	return SnapshotRefDTO{
		SnapshotID:  ref.ID,
		RequestID:   string(ref.RequestID),
		RequestName: ref.RequestName,
		RequestType: string(ref.RequestType),
		CapturedAt:  ref.Timestamp.UTC().Format(time.RFC3339),
	}
}

func dateString(d *entitlement.Date) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func toEntitlementDTO(e entitlement.RolledUpEntitlement) EntitlementDTO {
	qty, _ := e.Quantity.Float64()
	return EntitlementDTO{
		ProductCode: e.ProductCode,
		DisplayName: e.DisplayName,
		Category:    string(e.Category),
		StartDate:   dateString(e.StartDate),
		EndDate:     dateString(e.EndDate),
		Quantity:    qty,
		SourceCount: e.SourceCount,
	}
}

func toEntitlementDTOs(es []entitlement.RolledUpEntitlement) []EntitlementDTO {
	dtos := make([]EntitlementDTO, len(es))
	for i, e := range es {
		dtos[i] = toEntitlementDTO(e)
	}
	return dtos
}

func toDiffDTO(d *entitlement.DiffResult) *DiffDTO {
	if d == nil {
		return nil
	}
	return &DiffDTO{
		Previous:  toSnapshotRefDTO(d.Previous),
		Current:   toSnapshotRefDTO(d.Current),
		Added:     toEntitlementDTOs(d.Added),
		Removed:   toEntitlementDTOs(d.Removed),
		Unchanged: toEntitlementDTOs(d.Unchanged),
	}
}

func toCategoryTileDTO(s entitlement.CategorySummary) CategoryTileDTO {
	qty, _ := s.TotalQuantity.Float64()
	dto := CategoryTileDTO{
		Category:       string(s.Category),
		SnapshotID:     s.SnapshotID,
		UniqueProducts: s.UniqueProductCount,
		TotalQuantity:  qty,
	}
	if len(s.SourceMap) > 0 {
		dto.Sources = make(map[string][]SnapshotRefDTO, len(s.SourceMap))
		for code, refs := range s.SourceMap {
			for _, ref := range refs {
				dto.Sources[code] = append(dto.Sources[code], toSnapshotRefDTO(ref))
			}
		}
	}
	return dto
}

func toCategoryTileDTOs(ss []entitlement.CategorySummary) []CategoryTileDTO {
	dtos := make([]CategoryTileDTO, len(ss))
	for i, s := range ss {
		dtos[i] = toCategoryTileDTO(s)
	}
	return dtos
}

func toWarningDTOs(ws []entitlement.Warning) []WarningDTO {
	dtos := make([]WarningDTO, len(ws))
	for i, w := range ws {
		dtos[i] = WarningDTO{
			Code:       string(w.Code),
			SnapshotID: w.SnapshotID,
			Category:   string(w.Category),
			Field:      w.Field,
			Value:      w.Value,
			Detail:     w.Detail,
		}
	}
	return dtos
}

func toHistoryResponse(h *history.AccountHistory) HistoryResponse {
	resp := HistoryResponse{
		AccountID: string(h.AccountID),
		Warnings:  toWarningDTOs(h.Warnings),
	}
	for _, r := range h.Reports {
		resp.Reports = append(resp.Reports, ChangeReportDTO{
			Request: toSnapshotRefDTO(r.Ref),
			Diff:    toDiffDTO(r.Diff),
			Tiles:   toCategoryTileDTOs(r.Tiles),
		})
	}
	for _, u := range h.Unavailable {
		resp.Unavailable = append(resp.Unavailable, UnavailableDTO{
			Request: toSnapshotRefDTO(u.Ref),
			Reason:  u.Reason,
		})
	}
	return resp
}

func toExpirationDTO(r entitlement.ExpirationRecord) ExpirationDTO {
	dto := ExpirationDTO{
		ProductCode: r.ProductCode,
		DisplayName: r.DisplayName,
		Category:    string(r.Category),
		EndDate:     dateString(r.EndDate),
		Status:      string(r.Status),
		Source:      toSnapshotRefDTO(r.Source),
	}
	if r.ExtendedBy != nil {
		ref := toSnapshotRefDTO(*r.ExtendedBy)
		dto.ExtendedBy = &ref
	}
	return dto
}

func toExpirationsResponse(entry *entitlement.CachedExpirations) ExpirationsResponse {
	resp := ExpirationsResponse{
		AccountID:  string(entry.AccountID),
		WindowDays: entry.WindowDays,
		ComputedAt: entry.ComputedAt.UTC().Format(time.RFC3339),
		Records:    make([]ExpirationDTO, 0, len(entry.Records)),
	}
	for _, r := range entry.Records {
		resp.Records = append(resp.Records, toExpirationDTO(r))
	}
	for _, g := range entitlement.GroupExpirations(entry.Records) {
		dto := ExpirationGroupDTO{
			RequestID:   string(g.RequestID),
			RequestName: g.RequestName,
			CapturedAt:  g.Timestamp.UTC().Format(time.RFC3339),
			Status:      string(g.Status),
		}
		for _, r := range g.Records {
			dto.Records = append(dto.Records, toExpirationDTO(r))
		}
		resp.Groups = append(resp.Groups, dto)
	}
	return resp
}

func toRemovalsResponse(result *monitor.ScanResult) RemovalsResponse {
	resp := RemovalsResponse{}
	for _, ev := range result.Events {
		resp.Events = append(resp.Events, RemovalEventDTO{
			AccountID: string(ev.AccountID),
			Request:   toSnapshotRefDTO(ev.Request),
			Previous:  toSnapshotRefDTO(ev.Previous),
			Removed:   toEntitlementDTOs(ev.Removed),
		})
	}
	for _, na := range result.NotAvailable {
		resp.NotAvailable = append(resp.NotAvailable, NotAvailableDTO{
			AccountID: string(na.AccountID),
			Reason:    na.Reason,
		})
	}
	return resp
}

func toAnalysisRunDTO(run sqlite.AnalysisRun) AnalysisRunDTO {
	dto := AnalysisRunDTO{
		ID:             run.ID,
		WindowDays:     run.WindowDays,
		Status:         run.Status,
		AccountsTotal:  run.AccountsTotal,
		AccountsFailed: run.AccountsFailed,
		AtRisk:         run.AtRisk,
		Extended:       run.Extended,
		Error:          run.Error,
	}
	if run.StartedAt != nil {
		dto.StartedAt = run.StartedAt.UTC().Format(time.RFC3339)
	}
	if run.CompletedAt != nil {
		dto.CompletedAt = run.CompletedAt.UTC().Format(time.RFC3339)
	}
	return dto
}
