package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/leetbuddy/challenge-tracker/internal/application/tracking"
	"github.com/leetbuddy/challenge-tracker/internal/domain/report"
	"github.com/leetbuddy/challenge-tracker/internal/domain/sweep"
	"github.com/leetbuddy/challenge-tracker/internal/interface/http/handlers"
	"github.com/leetbuddy/challenge-tracker/pkg/logger"
)

const maxBodyBytes = 1 << 16

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

type healthResponse struct {
	handlers.HealthStatus
	Sweep sweepState `json:"sweep"`
}

type sweepState struct {
	Running    bool       `json:"running"`
	LastID     string     `json:"last_id,omitempty"`
	LastFinish *time.Time `json:"last_finished_at,omitempty"`
}

// handleHealth answers keep-alive pings. It is not wrapped in the envelope.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := handlers.HealthStatus{Status: handlers.StatusOK, Timestamp: time.Now().UTC()}
	if s.deps.Health != nil {
		status = s.deps.Health.Check(r.Context())
	}

	resp := healthResponse{HealthStatus: status}
	if s.deps.Sweeper != nil {
		resp.Sweep.Running = s.deps.Sweeper.Running()
		if last, ok := s.deps.Sweeper.LastResult(); ok {
			resp.Sweep.LastID = last.ID
			finished := last.FinishedAt
			resp.Sweep.LastFinish = &finished
		}
	}

	code := http.StatusOK
	if !status.Healthy() {
		code = http.StatusServiceUnavailable
	}
	encode(w, code, resp)
}

// ══════════════════════════════════════════════════════════════════════════════
// READS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	limit = min(limit, s.config.MaxLeaderboard)

	board := s.deps.Queries.Leaderboard(limit)
	writeJSONWithMeta(w, r, http.StatusOK, board, &ResponseMeta{TotalCount: len(board)})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.deps.Queries.Progress())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.deps.Queries.Stats())
}

func (s *Server) handlePersonalStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.deps.Queries.PersonalStatus(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, status)
}

func (s *Server) handleSweepHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 10)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	history, err := s.deps.Queries.SweepHistory(r.Context(), limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, history, &ResponseMeta{TotalCount: len(history)})
}

func (s *Server) handleLastSweep(w http.ResponseWriter, r *http.Request) {
	if last, ok := s.deps.Sweeper.LastResult(); ok {
		writeJSON(w, r, http.StatusOK, last.Summarize())
		return
	}
	if s.deps.Cache != nil {
		summary, err := s.deps.Cache.LastSweep(r.Context())
		if err == nil {
			writeJSON(w, r, http.StatusOK, summary)
			return
		}
		s.logger.Debug().Err(err).Msg("no cached sweep summary")
	}
	writeError(w, r, http.StatusNotFound, "not_found", "no sweep has run yet")
}

// ══════════════════════════════════════════════════════════════════════════════
// WRITES
// ══════════════════════════════════════════════════════════════════════════════

// sweepResponse is the body of a manual sweep.
type sweepResponse struct {
	Sweep  sweep.Summary           `json:"sweep"`
	Report report.IncompleteReport `json:"report"`
}

type registerRequest struct {
	ParticipantID string `json:"participant_id"`
	Username      string `json:"username"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeErrorWithDetails(w, r, http.StatusBadRequest, "invalid_body", "Request body must be a JSON object", err.Error())
		return
	}

	record, err := s.deps.Commands.Register(r.Context(), req.ParticipantID, req.Username)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, report.Personal(record))
}

func (s *Server) handleUnregister(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	removed, err := s.deps.Commands.Unregister(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if !removed {
		writeError(w, r, http.StatusNotFound, "not_found", "participant not found")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"participant_id": id, "removed": true})
}

// handleRunSweep runs a reporting sweep synchronously. The sweep outlives a
// disconnected client so one dropped request does not fail every fetch.
func (s *Server) handleRunSweep(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	result, err := s.deps.Sweeper.Run(ctx, tracking.TriggerAPI)
	if err != nil && result.ID == "" {
		writeDomainError(w, r, err)
		return
	}

	body := sweepResponse{Sweep: result.Summarize(), Report: s.deps.Queries.Report(result)}
	if err != nil {
		// Fetches finished but the registry could not be saved.
		zerolog.Ctx(r.Context()).Error().Err(err).Str(logger.KeySweepID, result.ID).Msg("manual sweep not persisted")
		encode(w, http.StatusInternalServerError, JSONResponse{
			Data:      body,
			Error:     &APIError{Code: "persist_failed", Message: "Sweep finished but results were not saved", Details: err.Error()},
			Meta:      &ResponseMeta{Timestamp: time.Now().UTC()},
			RequestID: getRequestID(r.Context()),
		})
		return
	}
	writeJSON(w, r, http.StatusOK, body)
}
