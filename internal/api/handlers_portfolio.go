package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/portfolio-versioning/internal/models"
	"github.com/portfolio-versioning/internal/types"
)

const (
	actorHeader = "X-User-ID"

	defaultPageSize = 50
	maxPageSize     = 500
)

// handleListPortfolios handles GET /api/portfolios - List portfolios by symbol
func (s *Server) handleListPortfolios(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", defaultPageSize)
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset", 0)
	if !ok {
		return
	}
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}

	portfolios, err := s.portfolioService.ListPortfolios(r.Context(), limit, offset)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"portfolios": portfolios,
		"limit":      limit,
		"offset":     offset,
	})
}

// handleCreatePortfolio handles POST /api/portfolios - Create portfolio as version 1
func (s *Server) handleCreatePortfolio(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req createPortfolioRequest
	if err := decodeRequest(r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", validationDetails(err))
		return
	}
	input, err := req.toInput(actor)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid date", nil)
		return
	}

	result, err := s.portfolioService.CreatePortfolio(r.Context(), input)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, result)
}

// handleGetPortfolio handles GET /api/portfolios/{id} - Portfolio with holdings
func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	id, ok := portfolioID(w, r)
	if !ok {
		return
	}

	detail, err := s.portfolioService.GetPortfolio(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, detail)
}

// handleUpdatePortfolio handles PUT/PATCH /api/portfolios/{id} - Partial update
func (s *Server) handleUpdatePortfolio(w http.ResponseWriter, r *http.Request) {
	id, ok := portfolioID(w, r)
	if !ok {
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req updatePortfolioRequest
	if err := decodeRequest(r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", validationDetails(err))
		return
	}
	input, err := req.toInput(actor)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid date", nil)
		return
	}

	result, err := s.portfolioService.UpdatePortfolio(r.Context(), id, input)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleDeletePortfolio handles DELETE /api/portfolios/{id}
func (s *Server) handleDeletePortfolio(w http.ResponseWriter, r *http.Request) {
	id, ok := portfolioID(w, r)
	if !ok {
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	if err := s.portfolioService.DeletePortfolio(r.Context(), id, actor); err != nil {
		respondServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleAddConstituent handles POST /api/portfolios/{id}/constituents
func (s *Server) handleAddConstituent(w http.ResponseWriter, r *http.Request) {
	id, ok := portfolioID(w, r)
	if !ok {
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req addConstituentRequest
	if err := decodeRequest(r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", validationDetails(err))
		return
	}

	result, err := s.portfolioService.AddConstituent(r.Context(), id, req.toModel(), req.mutation(actor))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, result)
}

// handleRemoveConstituent handles DELETE /api/portfolios/{id}/constituents/{assetClass}/{assetId}
func (s *Server) handleRemoveConstituent(w http.ResponseWriter, r *http.Request) {
	id, ok := portfolioID(w, r)
	if !ok {
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	vars := mux.Vars(r)
	key := models.AssetKey{
		AssetClass: types.AssetClass(strings.ToUpper(vars["assetClass"])),
		AssetID:    vars["assetId"],
	}
	if !key.AssetClass.IsHolding() {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Asset class must be EQUITY or FIXED_INCOME", nil)
		return
	}

	var req auditRequest
	if err := decodeRequest(r, &req, true); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", validationDetails(err))
		return
	}

	result, err := s.portfolioService.RemoveConstituent(r.Context(), id, key, req.mutation(actor))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleRebalance handles POST /api/portfolios/{id}/rebalance
func (s *Server) handleRebalance(w http.ResponseWriter, r *http.Request) {
	id, ok := portfolioID(w, r)
	if !ok {
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req auditRequest
	if err := decodeRequest(r, &req, true); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", validationDetails(err))
		return
	}

	result, err := s.portfolioService.Rebalance(r.Context(), id, req.mutation(actor))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleManualEdit handles POST /api/portfolios/{id}/manual-edits
func (s *Server) handleManualEdit(w http.ResponseWriter, r *http.Request) {
	id, ok := portfolioID(w, r)
	if !ok {
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req manualEditRequest
	if err := decodeRequest(r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", validationDetails(err))
		return
	}

	result, err := s.portfolioService.RecordManualEdit(r.Context(), id, actor, req.ChangeReason, req.ApprovedBy)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, result)
}

// portfolioID parses the {id} path variable, writing a 400 when malformed
func portfolioID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Portfolio ID must be a UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}

// requireActor reads the caller identity recorded as created_by on versions
func requireActor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor := strings.TrimSpace(r.Header.Get(actorHeader))
	if actor == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "User ID required", nil)
		return "", false
	}
	return actor, true
}

func queryInt(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid "+name+" parameter", nil)
		return 0, false
	}
	return n, true
}
