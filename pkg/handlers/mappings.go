package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/canonform-inc/canonform-engine/pkg/apperrors"
	"github.com/canonform-inc/canonform-engine/pkg/models"
	"github.com/canonform-inc/canonform-engine/pkg/services"
)

// ============================================================================
// Request/Response Types
// ============================================================================

// DiscoverMappingsRequest for POST /api/tenants/{tenant}/mappings/discover
type DiscoverMappingsRequest struct {
	Columns []models.SourceColumn `json:"columns"`
}

// PendingMappingsResponse for GET /api/tenants/{tenant}/mappings/pending
type PendingMappingsResponse struct {
	Mappings []models.ColumnMapping `json:"mappings"`
	Total    int                    `json:"total"`
}

// MappingDecisionRequest for POST /api/mappings/{id}/decision
type MappingDecisionRequest struct {
	Decision        models.HITLDecision `json:"decision"`
	SelectedMapping string              `json:"selected_mapping,omitempty"`
	Feedback        string              `json:"feedback,omitempty"`
	Reviewer        string              `json:"reviewer"`
}

// ApprovePlanRequest for POST /api/plans/{id}/approve
type ApprovePlanRequest struct {
	ApprovedBy string `json:"approved_by"`
}

// ExecutePlanResponse for the execute endpoints.
type ExecutePlanResponse struct {
	Columns []string                `json:"columns"`
	Rows    []map[string]any        `json:"rows"`
	Result  *models.TransformResult `json:"result"`
}

// ============================================================================
// Handler
// ============================================================================

// MappingsHandler handles mapping discovery, review, and execution requests.
type MappingsHandler struct {
	mappingService   services.MappingService
	transformService services.TransformService
	logger           *zap.Logger
}

// NewMappingsHandler creates a new mappings handler.
func NewMappingsHandler(
	mappingService services.MappingService,
	transformService services.TransformService,
	logger *zap.Logger,
) *MappingsHandler {
	return &MappingsHandler{
		mappingService:   mappingService,
		transformService: transformService,
		logger:           logger,
	}
}

// RegisterRoutes registers the mappings handler's routes on the given mux.
func (h *MappingsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/tenants/{tenant}/mappings/discover", h.Discover)
	mux.HandleFunc("POST /api/tenants/{tenant}/mappings/resolve", h.ResolveTenant)
	mux.HandleFunc("GET /api/tenants/{tenant}/mappings/pending", h.Pending)
	mux.HandleFunc("POST /api/tenants/{tenant}/execute", h.ExecuteLatest)
	mux.HandleFunc("POST /api/mappings/{id}/decision", h.Decide)
	mux.HandleFunc("POST /api/plans/{id}/approve", h.Approve)
	mux.HandleFunc("POST /api/plans/{id}/execute", h.ExecutePlan)
}

// Discover handles POST /api/tenants/{tenant}/mappings/discover
func (h *MappingsHandler) Discover(w http.ResponseWriter, r *http.Request) {
	tenant := r.PathValue("tenant")

	var req DiscoverMappingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if len(req.Columns) == 0 {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "columns are required")
		return
	}

	plan, err := h.mappingService.DiscoverMappings(r.Context(), tenant, req.Columns)
	if err != nil {
		h.logger.Error("Failed to discover mappings",
			zap.String("tenant", tenant),
			zap.Error(err))
		h.writeServiceError(w, err, "discover_mappings_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, plan); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ResolveTenant handles POST /api/tenants/{tenant}/mappings/resolve
func (h *MappingsHandler) ResolveTenant(w http.ResponseWriter, r *http.Request) {
	tenant := r.PathValue("tenant")

	plan, err := h.mappingService.ResolveTenant(r.Context(), tenant)
	if err != nil {
		h.logger.Error("Failed to resolve tenant",
			zap.String("tenant", tenant),
			zap.Error(err))
		h.writeServiceError(w, err, "resolve_tenant_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, plan); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Pending handles GET /api/tenants/{tenant}/mappings/pending
func (h *MappingsHandler) Pending(w http.ResponseWriter, r *http.Request) {
	tenant := r.PathValue("tenant")

	mappings, err := h.mappingService.PendingReview(r.Context(), tenant)
	if err != nil {
		h.logger.Error("Failed to list pending mappings",
			zap.String("tenant", tenant),
			zap.Error(err))
		h.writeServiceError(w, err, "list_pending_failed")
		return
	}

	response := PendingMappingsResponse{
		Mappings: mappings,
		Total:    len(mappings),
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Decide handles POST /api/mappings/{id}/decision
func (h *MappingsHandler) Decide(w http.ResponseWriter, r *http.Request) {
	mappingID, ok := h.parseID(w, r)
	if !ok {
		return
	}

	var req MappingDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	err := h.mappingService.ApplyHumanDecision(r.Context(), models.HITLResponse{
		MappingID:       mappingID,
		Decision:        req.Decision,
		SelectedMapping: req.SelectedMapping,
		Feedback:        req.Feedback,
		Reviewer:        req.Reviewer,
	})
	if err != nil {
		h.logger.Error("Failed to apply decision",
			zap.String("mapping_id", mappingID.String()),
			zap.Error(err))
		h.writeServiceError(w, err, "apply_decision_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]string{"status": "applied"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Approve handles POST /api/plans/{id}/approve
func (h *MappingsHandler) Approve(w http.ResponseWriter, r *http.Request) {
	planID, ok := h.parseID(w, r)
	if !ok {
		return
	}

	var req ApprovePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	if err := h.mappingService.ApprovePlan(r.Context(), planID, req.ApprovedBy); err != nil {
		h.logger.Error("Failed to approve plan",
			zap.String("plan_id", planID.String()),
			zap.Error(err))
		h.writeServiceError(w, err, "approve_plan_failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]string{"status": "approved"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ExecutePlan handles POST /api/plans/{id}/execute
func (h *MappingsHandler) ExecutePlan(w http.ResponseWriter, r *http.Request) {
	planID, ok := h.parseID(w, r)
	if !ok {
		return
	}

	output, result, err := h.transformService.ExecutePlan(r.Context(), planID)
	if err != nil {
		h.logger.Error("Failed to execute plan",
			zap.String("plan_id", planID.String()),
			zap.Error(err))
		h.writeServiceError(w, err, "execute_plan_failed")
		return
	}

	response := ExecutePlanResponse{
		Columns: output.Columns,
		Rows:    output.Rows,
		Result:  result,
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ExecuteLatest handles POST /api/tenants/{tenant}/execute
func (h *MappingsHandler) ExecuteLatest(w http.ResponseWriter, r *http.Request) {
	tenant := r.PathValue("tenant")

	output, result, err := h.transformService.ExecuteLatest(r.Context(), tenant)
	if err != nil {
		h.logger.Error("Failed to execute latest plan",
			zap.String("tenant", tenant),
			zap.Error(err))
		h.writeServiceError(w, err, "execute_latest_failed")
		return
	}

	response := ExecutePlanResponse{
		Columns: output.Columns,
		Rows:    output.Rows,
		Result:  result,
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *MappingsHandler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_id", "invalid id in path")
		return uuid.Nil, false
	}
	return id, true
}

// writeServiceError maps service errors to HTTP status codes.
func (h *MappingsHandler) writeServiceError(w http.ResponseWriter, err error, errorCode string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperrors.ErrInvalidPolicy), errors.Is(err, apperrors.ErrUnknownField):
		status = http.StatusBadRequest
	case errors.Is(err, apperrors.ErrPlanNotApproved):
		status = http.StatusConflict
	}
	h.writeError(w, status, errorCode, err.Error())
}

func (h *MappingsHandler) writeError(w http.ResponseWriter, status int, errorCode, message string) {
	if err := ErrorResponse(w, status, errorCode, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
