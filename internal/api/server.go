// Package api exposes the recitation engine over HTTP.
//
// Session lifecycle:
//
//	POST   /api/sessions                        — begin a phase for a learner
//	GET    /api/sessions/{learner}              — session metadata + state
//	DELETE /api/sessions/{learner}              — stop the session
//	POST   /api/sessions/{learner}/retry        — retry failed playback
//	POST   /api/sessions/{learner}/audio        — stream a PCM chunk
//
// Reference data and progress:
//
//	GET /api/passages                           — list passages
//	GET /api/passages/{id}                      — one passage with verses
//	GET /api/learners/{learner}/progress/{id}   — completed phases
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/qariapp/murajaah/internal/app"
	"github.com/qariapp/murajaah/internal/passage"
	"github.com/qariapp/murajaah/internal/progress"
	"github.com/qariapp/murajaah/internal/recite"
)

// maxAudioChunk bounds a single audio POST body.
const maxAudioChunk = 1 << 20

// Server holds the HTTP handlers over the session manager.
type Server struct {
	sessions *app.Manager
	passages *passage.File
	store    progress.Store
}

// NewServer creates a Server over the given subsystems.
func NewServer(sessions *app.Manager, passages *passage.File, store progress.Store) *Server {
	return &Server{sessions: sessions, passages: passages, store: store}
}

// Register adds all API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sessions", s.beginSession)
	mux.HandleFunc("GET /api/sessions/{learner}", s.sessionStatus)
	mux.HandleFunc("DELETE /api/sessions/{learner}", s.stopSession)
	mux.HandleFunc("POST /api/sessions/{learner}/retry", s.retryPlayback)
	mux.HandleFunc("POST /api/sessions/{learner}/audio", s.sendAudio)
	mux.HandleFunc("GET /api/passages", s.listPassages)
	mux.HandleFunc("GET /api/passages/{id}", s.getPassage)
	mux.HandleFunc("GET /api/learners/{learner}/progress/{id}", s.learnerProgress)
}

// beginRequest is the POST /api/sessions body.
type beginRequest struct {
	LearnerID  string `json:"learner_id"`
	PassageID  string `json:"passage_id"`
	PhaseLabel string `json:"phase_label"`
}

// sessionState is the wire form of a session snapshot.
type sessionState struct {
	Active          bool   `json:"active"`
	Step            string `json:"step"`
	VerseIndex      int    `json:"verse_index"`
	VerseCount      int    `json:"verse_count"`
	CurrentVerseID  int    `json:"current_verse_id,omitempty"`
	Feedback        string `json:"feedback"`
	FeedbackVisible bool   `json:"feedback_visible"`
	LastTranscript  string `json:"last_transcript,omitempty"`
	Diagnostic      string `json:"diagnostic,omitempty"`
	PlaybackFailed  bool   `json:"playback_failed"`
}

func toSessionState(snap recite.Snapshot) sessionState {
	return sessionState{
		Active:          snap.Active,
		Step:            snap.Step.String(),
		VerseIndex:      snap.VerseIndex,
		VerseCount:      snap.VerseCount,
		CurrentVerseID:  snap.CurrentVerseID,
		Feedback:        snap.Feedback.String(),
		FeedbackVisible: snap.FeedbackVisible,
		LastTranscript:  snap.LastTranscript,
		Diagnostic:      snap.Diagnostic,
		PlaybackFailed:  snap.PlaybackFailed,
	}
}

// sessionResponse pairs session metadata with its current state.
type sessionResponse struct {
	Session app.SessionInfo `json:"session"`
	State   sessionState    `json:"state"`
}

func (s *Server) beginSession(w http.ResponseWriter, r *http.Request) {
	var req beginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.LearnerID == "" || req.PassageID == "" || req.PhaseLabel == "" {
		writeError(w, http.StatusBadRequest, "learner_id, passage_id and phase_label are required")
		return
	}

	if err := s.sessions.Begin(req.LearnerID, req.PassageID, req.PhaseLabel); err != nil {
		switch {
		case errors.Is(err, app.ErrUnknownPassage), errors.Is(err, app.ErrUnknownPhase):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			slog.Error("begin session failed", "learner", req.LearnerID, "err", err)
			writeError(w, http.StatusInternalServerError, "failed to begin session")
		}
		return
	}

	info, snap, err := s.sessions.Status(req.LearnerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "session vanished")
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{Session: info, State: toSessionState(snap)})
}

func (s *Server) sessionStatus(w http.ResponseWriter, r *http.Request) {
	info, snap, err := s.sessions.Status(r.PathValue("learner"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: info, State: toSessionState(snap)})
}

func (s *Server) stopSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Stop(r.PathValue("learner")); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) retryPlayback(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.RetryPlayback(r.PathValue("learner")); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) sendAudio(w http.ResponseWriter, r *http.Request) {
	chunk, err := io.ReadAll(io.LimitReader(r.Body, maxAudioChunk))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read audio body")
		return
	}
	if len(chunk) == 0 {
		writeError(w, http.StatusBadRequest, "empty audio chunk")
		return
	}

	if err := s.sessions.SendAudio(r.PathValue("learner"), chunk); err != nil {
		if errors.Is(err, app.ErrNoSession) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		slog.Warn("audio forward failed", "learner", r.PathValue("learner"), "err", err)
		writeError(w, http.StatusInternalServerError, "failed to forward audio")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// passageSummary is the list form of a passage, without verse texts.
type passageSummary struct {
	ID         string   `json:"id"`
	Label      string   `json:"label"`
	VerseCount int      `json:"verse_count"`
	Phases     []string `json:"phases"`
}

func (s *Server) listPassages(w http.ResponseWriter, _ *http.Request) {
	out := make([]passageSummary, 0, len(s.passages.Passages))
	for i := range s.passages.Passages {
		p := &s.passages.Passages[i]
		phases := make([]string, len(p.Phases))
		for j, ph := range p.Phases {
			phases[j] = ph.Label
		}
		out = append(out, passageSummary{
			ID:         p.ID,
			Label:      p.Label,
			VerseCount: len(p.Verses),
			Phases:     phases,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"passages": out})
}

func (s *Server) getPassage(w http.ResponseWriter, r *http.Request) {
	p := s.passages.ByID(r.PathValue("id"))
	if p == nil {
		writeError(w, http.StatusNotFound, "unknown passage")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// phaseProgress is one completed phase in the progress listing.
type phaseProgress struct {
	PhaseLabel  string `json:"phase_label"`
	CompletedAt string `json:"completed_at"`
}

func (s *Server) learnerProgress(w http.ResponseWriter, r *http.Request) {
	learnerID := r.PathValue("learner")
	passageID := r.PathValue("id")
	if s.passages.ByID(passageID) == nil {
		writeError(w, http.StatusNotFound, "unknown passage")
		return
	}

	records, err := s.store.CompletedPhases(r.Context(), learnerID, passageID)
	if err != nil {
		slog.Error("progress lookup failed", "learner", learnerID, "passage", passageID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load progress")
		return
	}

	out := make([]phaseProgress, len(records))
	for i, rec := range records {
		out[i] = phaseProgress{
			PhaseLabel:  rec.PhaseLabel,
			CompletedAt: rec.CompletedAt.UTC().Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"learner_id": learnerID,
		"passage_id": passageID,
		"completed":  out,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encode failed", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
