package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	perrors "github.com/onayflow/be-approvals/internal/platform/errors"
	"github.com/onayflow/be-approvals/internal/platform/logger"
	"github.com/onayflow/be-approvals/internal/repository"
	"github.com/onayflow/be-approvals/internal/service"
)

// HTTPHandler exposes the approval engine over HTTP.
type HTTPHandler struct {
	registry *service.WorkflowRegistry
	builder  *service.ChainBuilder
	machine  *service.StateMachine
	log      *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(
	registry *service.WorkflowRegistry,
	builder *service.ChainBuilder,
	machine *service.StateMachine,
	log *logger.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		registry: registry,
		builder:  builder,
		machine:  machine,
		log:      log,
	}
}

// ── Submission ────────────────────────────────────────────────────────────────

// SubmitForApproval handles POST /api/v1/approvals/submit.
func (h *HTTPHandler) SubmitForApproval(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		CompanyID   string `json:"company_id"`
		ObjectType  string `json:"object_type"`
		ObjectID    string `json:"object_id"`
		Amount      int64  `json:"amount"`
		SubmittedBy string `json:"submitted_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.builder.SubmitForApproval(r.Context(),
		req.CompanyID,
		repository.ApprovalObjectType(req.ObjectType),
		req.ObjectID,
		req.Amount,
		req.SubmittedBy,
	)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, result)
}

// ── Decisions ─────────────────────────────────────────────────────────────────

// Decide handles POST /api/v1/approvals/decide.
func (h *HTTPHandler) Decide(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		ApprovalID string  `json:"approval_id"`
		ApproverID string  `json:"approver_id"`
		Action     string  `json:"action"`
		Comment    *string `json:"comment,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.machine.Decide(r.Context(),
		req.ApprovalID,
		req.ApproverID,
		service.DecisionAction(req.Action),
		req.Comment,
	)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// ── Queries ───────────────────────────────────────────────────────────────────

// GetChain handles GET /api/v1/approvals/chain?object_type=&object_id=.
func (h *HTTPHandler) GetChain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	objectType := r.URL.Query().Get("object_type")
	objectID := r.URL.Query().Get("object_id")
	if objectType == "" || objectID == "" {
		http.Error(w, "object_type and object_id are required", http.StatusBadRequest)
		return
	}

	chain, err := h.machine.GetChain(r.Context(), repository.ApprovalObjectType(objectType), objectID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"chain": chain})
}

// GetPendingApprovals handles GET /api/v1/approvals/pending?approver_id=&roles=.
// roles is a comma-separated list of the user's roles, resolved by the caller;
// it gates which unclaimed role-based steps show up in the inbox.
func (h *HTTPHandler) GetPendingApprovals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	approverID := r.URL.Query().Get("approver_id")
	if approverID == "" {
		http.Error(w, "approver_id is required", http.StatusBadRequest)
		return
	}

	var roles []string
	for _, role := range strings.Split(r.URL.Query().Get("roles"), ",") {
		if role = strings.TrimSpace(role); role != "" {
			roles = append(roles, role)
		}
	}

	pending, err := h.machine.GetPendingApprovalsFor(r.Context(), approverID, roles)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"pending": pending})
}

// GetAuditTrail handles GET /api/v1/approvals/audit?object_type=&object_id=.
func (h *HTTPHandler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	objectType := r.URL.Query().Get("object_type")
	objectID := r.URL.Query().Get("object_id")
	if objectType == "" || objectID == "" {
		http.Error(w, "object_type and object_id are required", http.StatusBadRequest)
		return
	}

	trail, err := h.machine.GetAuditTrail(r.Context(), repository.ApprovalObjectType(objectType), objectID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"audit": trail})
}

// ── Workflow configuration ────────────────────────────────────────────────────

// ListWorkflows handles GET /api/v1/workflows?company_id=.
func (h *HTTPHandler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	companyID := r.URL.Query().Get("company_id")
	if companyID == "" {
		http.Error(w, "company_id is required", http.StatusBadRequest)
		return
	}

	workflows, err := h.registry.ListWorkflows(r.Context(), companyID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"workflows": workflows})
}

// UpsertWorkflow handles POST /api/v1/workflows.
func (h *HTTPHandler) UpsertWorkflow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID         string                     `json:"id,omitempty"`
		CompanyID  string                     `json:"company_id"`
		ObjectType string                     `json:"object_type"`
		IsActive   *bool                      `json:"is_active,omitempty"`
		Rules      []repository.ThresholdRule `json:"threshold_rules"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	wf := &repository.ApprovalWorkflow{
		ID:         req.ID,
		CompanyID:  req.CompanyID,
		ObjectType: repository.ApprovalObjectType(req.ObjectType),
		IsActive:   active,
		Rules:      req.Rules,
	}

	if err := h.registry.UpsertWorkflow(r.Context(), wf); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, wf)
}

// GetActiveWorkflow handles GET /api/v1/workflows/active?company_id=&object_type=.
func (h *HTTPHandler) GetActiveWorkflow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	companyID := r.URL.Query().Get("company_id")
	objectType := r.URL.Query().Get("object_type")
	if companyID == "" || objectType == "" {
		http.Error(w, "company_id and object_type are required", http.StatusBadRequest)
		return
	}

	wf, err := h.registry.GetActiveWorkflow(r.Context(), companyID, repository.ApprovalObjectType(objectType))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"workflow": wf})
}

// DeactivateWorkflow handles POST /api/v1/workflows/deactivate.
func (h *HTTPHandler) DeactivateWorkflow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.registry.DeactivateWorkflow(r.Context(), req.ID); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

// ── Response helpers ──────────────────────────────────────────────────────────

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warn().Err(err).Msg("Failed to encode response")
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status := perrors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Request failed")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{ //nolint:errcheck
		"code":  perrors.CodeOf(err),
		"error": perrors.MessageOf(err),
	})
}
