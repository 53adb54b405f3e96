package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/portfolio-versioning/internal/service"
)

// handleListVersions handles GET /api/portfolios/{id}/versions - History, newest first
func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	id, ok := portfolioID(w, r)
	if !ok {
		return
	}

	versions, err := s.portfolioService.History(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"portfolioId": id,
		"versions":    versions,
	})
}

// handleLatestVersion handles GET /api/portfolios/{id}/versions/latest
func (s *Server) handleLatestVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := portfolioID(w, r)
	if !ok {
		return
	}

	version, err := s.portfolioService.LatestVersion(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, version)
}

// handleGetVersion handles GET /api/portfolios/{id}/versions/{version}
func (s *Server) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := portfolioID(w, r)
	if !ok {
		return
	}
	n, err := strconv.Atoi(mux.Vars(r)["version"])
	if err != nil || n < 1 {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Version number must be a positive integer", nil)
		return
	}

	version, err := s.portfolioService.GetVersion(r.Context(), id, n)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, version)
}

// handleCompareVersions handles GET /api/portfolios/{id}/versions/compare?from=&to=
func (s *Server) handleCompareVersions(w http.ResponseWriter, r *http.Request) {
	id, ok := portfolioID(w, r)
	if !ok {
		return
	}
	from, ok := queryInt(w, r, "from", 0)
	if !ok {
		return
	}
	to, ok := queryInt(w, r, "to", 0)
	if !ok {
		return
	}
	if from < 1 || to < 1 {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Both from and to versions are required", nil)
		return
	}

	diff, err := s.portfolioService.Compare(r.Context(), id, from, to)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, diff)
}

// handleRollback handles POST /api/portfolios/{id}/rollback - Restores a
// previous state as a new version
func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	id, ok := portfolioID(w, r)
	if !ok {
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req rollbackRequest
	if err := decodeRequest(r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", validationDetails(err))
		return
	}

	result, err := s.portfolioService.Rollback(r.Context(), id, req.TargetVersion, actor, req.ChangeReason)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, result)
}

// handleVerifyPortfolio handles GET /api/portfolios/{id}/versions/verify
func (s *Server) handleVerifyPortfolio(w http.ResponseWriter, r *http.Request) {
	id, ok := portfolioID(w, r)
	if !ok {
		return
	}

	report, err := s.portfolioService.VerifyIntegrity(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, report)
}

// integrityResponse adds the overall verdict to a verification summary
type integrityResponse struct {
	*service.IntegritySummary
	Valid bool `json:"valid"`
}

// handleVerifyAll handles GET /api/integrity - Verifies every portfolio
func (s *Server) handleVerifyAll(w http.ResponseWriter, r *http.Request) {
	concurrency := s.config.VerifyConcurrency
	if concurrency < 1 {
		concurrency = 4
	}

	summary, err := s.portfolioService.VerifyAll(r.Context(), concurrency)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, integrityResponse{IntegritySummary: summary, Valid: summary.Valid()})
}
