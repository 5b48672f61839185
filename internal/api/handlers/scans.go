package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/canslim/internal/contracts"
	"github.com/wonny/canslim/internal/scanner"
	"github.com/wonny/canslim/pkg/logger"
)

const (
	defaultRunLimit  = 20
	defaultLiveLimit = 100
)

// ScanHandler handles scan API endpoints
// ⭐ SSOT: 스캔 API 핸들러는 이 구조체에서만
type ScanHandler struct {
	scanner *scanner.Scanner
	baseCtx context.Context // background runs outlive the request
	logger  *logger.Logger
}

// NewScanHandler creates a new scan handler
func NewScanHandler(ctx context.Context, s *scanner.Scanner, log *logger.Logger) *ScanHandler {
	return &ScanHandler{
		scanner: s,
		baseCtx: ctx,
		logger:  log,
	}
}

// StartScanResponse is returned when a run was accepted
type StartScanResponse struct {
	RunID string `json:"run_id"`
}

// LiveResponse is the current accumulator
type LiveResponse struct {
	RunID     string                  `json:"run_id"`
	Version   int                     `json:"version"`
	UpdatedAt string                  `json:"updated_at,omitempty"`
	Total     int                     `json:"total"`
	Qualified int                     `json:"qualified"`
	Running   bool                    `json:"running"`
	Results   []contracts.ScoreResult `json:"results"`
}

// Start launches a background scan
// POST /api/scans {"mode":"incremental","universe":"all","provider":"yahoo"}
func (h *ScanHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req contracts.ScanRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	runID, err := h.scanner.Start(h.baseCtx, req)
	if err != nil {
		respondErr(w, h.logger, err, "Failed to start scan")
		return
	}

	h.logger.WithFields(map[string]interface{}{
		"run_id":   runID,
		"mode":     req.Mode,
		"universe": req.Universe,
		"provider": req.Provider,
	}).Info("Scan started via API")

	respondJSON(w, http.StatusAccepted, StartScanResponse{RunID: runID})
}

// List returns run history newest first
// GET /api/scans?limit=20
func (h *ScanHandler) List(w http.ResponseWriter, r *http.Request) {
	runs, err := h.scanner.ListRuns(r.Context(), intQuery(r, "limit", defaultRunLimit))
	if err != nil {
		respondErr(w, h.logger, err, "Failed to list scan runs")
		return
	}
	if runs == nil {
		runs = []contracts.ScanRun{}
	}
	respondJSON(w, http.StatusOK, runs)
}

// Status returns the scanner state
// GET /api/scans/status
func (h *ScanHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.scanner.Status())
}

// Live returns the current accumulator
// GET /api/scans/live?limit=100
func (h *ScanHandler) Live(w http.ResponseWriter, r *http.Request) {
	snap, err := h.scanner.Live(r.Context())
	if err != nil {
		respondErr(w, h.logger, err, "Failed to read live results")
		return
	}
	respondJSON(w, http.StatusOK, h.liveResponse(snap, intQuery(r, "limit", defaultLiveLimit)))
}

func (h *ScanHandler) liveResponse(snap *scanner.Snapshot, limit int) LiveResponse {
	resp := LiveResponse{
		RunID:     snap.RunID,
		Version:   snap.Version,
		Total:     snap.Len(),
		Qualified: snap.Qualified(),
		Running:   h.scanner.Running(),
		Results:   snap.Top(limit),
	}
	if !snap.UpdatedAt.IsZero() {
		resp.UpdatedAt = snap.UpdatedAt.UTC().Format(time.RFC3339)
	}
	if resp.Results == nil {
		resp.Results = []contracts.ScoreResult{}
	}
	return resp
}

// Results returns a run's ranked results
// GET /api/scans/{id}/results
func (h *ScanHandler) Results(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	results, err := h.scanner.GetResults(r.Context(), id)
	if err != nil {
		respondErr(w, h.logger, err, "Failed to get scan results")
		return
	}
	if results == nil {
		results = []contracts.ScoreResult{}
	}
	respondJSON(w, http.StatusOK, results)
}

// Export downloads a run's results
// GET /api/scans/{id}/export?format=csv
func (h *ScanHandler) Export(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = scanner.FormatCSV
	}

	data, err := h.scanner.Export(r.Context(), id, format)
	if err != nil {
		respondErr(w, h.logger, err, "Failed to export scan results")
		return
	}

	contentType := "text/csv"
	if format == scanner.FormatJSON {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="scan-`+id+`.`+format+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
