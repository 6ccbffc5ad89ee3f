package chi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/finrag/internal/usecase/pipeline"
)

const sinceLayout = "2006-01-02"

// EmbeddingRunRequest is the body of POST /v1/admin/embeddings. Mode
// defaults to incremental when Since is set and to full otherwise.
type EmbeddingRunRequest struct {
	EntityID string `json:"entity_id"`
	Mode     string `json:"mode,omitempty"`
	Since    string `json:"since,omitempty"`
}

// EmbeddingRunResponse acknowledges a started run.
type EmbeddingRunResponse struct {
	Status   string `json:"status"`
	EntityID string `json:"entity_id"`
	Mode     string `json:"mode"`
	Since    string `json:"since,omitempty"`
}

// EmbeddingStatusResponse is the body of GET /v1/admin/embeddings/status.
type EmbeddingStatusResponse struct {
	EntityID string `json:"entity_id"`
	Total    int64  `json:"total"`
	Missing  int64  `json:"missing"`
	Embedded int64  `json:"embedded"`
	Running  bool   `json:"running"`
}

// StartEmbeddingRun handles POST /v1/admin/embeddings. The run continues in
// the background after the 202; one run per entity at a time.
func (s *Server) StartEmbeddingRun(w http.ResponseWriter, r *http.Request) {
	var req EmbeddingRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	entity := strings.TrimSpace(req.EntityID)
	if entity == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "entity_id is required")
		return
	}

	var since time.Time
	if req.Since != "" {
		t, err := time.Parse(sinceLayout, req.Since)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeValidationFailed, "since must be YYYY-MM-DD")
			return
		}
		since = t
	}

	mode := pipeline.Mode(req.Mode)
	switch {
	case mode == "" && since.IsZero():
		mode = pipeline.ModeFull
	case mode == "":
		mode = pipeline.ModeIncremental
	case mode != pipeline.ModeFull && mode != pipeline.ModeIncremental:
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "mode must be full or incremental")
		return
	case mode == pipeline.ModeIncremental && since.IsZero():
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "incremental mode requires since")
		return
	}

	if !s.claimRun(entity) {
		writeError(w, http.StatusConflict, CodeConflict, "an embedding run for this entity is already in progress")
		return
	}

	s.runsWG.Add(1)
	go s.runEmbeddings(entity, mode, since)

	writeJSON(w, http.StatusAccepted, EmbeddingRunResponse{
		Status:   "accepted",
		EntityID: entity,
		Mode:     string(mode),
		Since:    req.Since,
	})
}

// EmbeddingStatus handles GET /v1/admin/embeddings/status?entity_id=X.
func (s *Server) EmbeddingStatus(w http.ResponseWriter, r *http.Request) {
	entity := strings.TrimSpace(r.URL.Query().Get("entity_id"))
	if entity == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "entity_id is required")
		return
	}

	st, err := s.runner.Status(r.Context(), entity)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	s.runsMu.Lock()
	_, running := s.running[entity]
	s.runsMu.Unlock()

	writeJSON(w, http.StatusOK, EmbeddingStatusResponse{
		EntityID: entity,
		Total:    st.Total,
		Missing:  st.Missing,
		Embedded: st.Total - st.Missing,
		Running:  running,
	})
}

func (s *Server) claimRun(entity string) bool {
	s.runsMu.Lock()
	defer s.runsMu.Unlock()
	if _, busy := s.running[entity]; busy {
		return false
	}
	s.running[entity] = struct{}{}
	return true
}

func (s *Server) runEmbeddings(entity string, mode pipeline.Mode, since time.Time) {
	defer s.runsWG.Done()
	defer func() {
		s.runsMu.Lock()
		delete(s.running, entity)
		s.runsMu.Unlock()
	}()

	log := s.logger.With(zap.String("entity", entity), zap.String("mode", string(mode)))
	log.Info("Embedding run started")

	var (
		report pipeline.Report
		err    error
	)
	if mode == pipeline.ModeIncremental {
		report, err = s.runner.RunIncremental(s.runCtx, entity, since)
	} else {
		report, err = s.runner.RunFull(s.runCtx, entity)
	}
	if err != nil {
		log.Error("Embedding run aborted",
			zap.Int("succeeded", report.Succeeded),
			zap.Int("failed", report.Failed),
			zap.Error(err))
		return
	}
	log.Info("Embedding run finished",
		zap.Int("pages", report.Pages),
		zap.Int("fetched", report.Fetched),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration))
}
