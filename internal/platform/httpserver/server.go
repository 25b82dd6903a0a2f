package httpserver

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	votingengine "cliparena/contexts/tournament/voting-engine"
	votingerrors "cliparena/contexts/tournament/voting-engine/domain/errors"
	votingports "cliparena/contexts/tournament/voting-engine/ports"
	votinghttp "cliparena/contexts/tournament/voting-engine/transport/http"
	progressionservice "cliparena/contexts/tournament/progression-service"
	_ "cliparena/internal/platform/httpserver/docs"

	httpSwagger "github.com/swaggo/http-swagger"
)

type Server struct {
	mux         *http.ServeMux
	logger      *slog.Logger
	addr        string
	cronSecret  string
	voting      votingengine.Module
	progression progressionservice.Module
}

func New(
	voting votingengine.Module,
	progression progressionservice.Module,
	cronSecret string,
	logger *slog.Logger,
	addr string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:         http.NewServeMux(),
		logger:      logger,
		addr:        addr,
		cronSecret:  cronSecret,
		voting:      voting,
		progression: progression,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	return http.ListenAndServe(s.addr, s.mux)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	s.mux.HandleFunc("POST /vote", s.handleCastVote)
	s.mux.HandleFunc("DELETE /vote", s.handleRevokeVote)
	s.mux.HandleFunc("GET /vote", s.handleVotingState)

	s.mux.HandleFunc("GET /cron/progress", s.handleProgress)
	s.mux.HandleFunc("POST /cron/progress", s.handleProgress)

	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	identity, ok := resolveIdentity(r)
	if !ok {
		writeVotingError(w, http.StatusUnauthorized, "AUTH_REQUIRED", "voter identity is required")
		return
	}

	var req votinghttp.CastVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeVotingError(w, http.StatusBadRequest, "INVALID_REQUEST", "request body must be valid JSON")
		return
	}

	resp, err := s.voting.Handler.CastVoteHandler(r.Context(), identity, req)
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRevokeVote(w http.ResponseWriter, r *http.Request) {
	identity, ok := resolveIdentity(r)
	if !ok {
		writeVotingError(w, http.StatusUnauthorized, "AUTH_REQUIRED", "voter identity is required")
		return
	}

	var req votinghttp.RevokeVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeVotingError(w, http.StatusBadRequest, "INVALID_REQUEST", "request body must be valid JSON")
		return
	}

	resp, err := s.voting.Handler.RevokeVoteHandler(r.Context(), identity, req)
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVotingState(w http.ResponseWriter, r *http.Request) {
	identity, ok := resolveIdentity(r)
	if !ok {
		writeVotingError(w, http.StatusUnauthorized, "AUTH_REQUIRED", "voter identity is required")
		return
	}

	resp, err := s.voting.Handler.VotingStateHandler(r.Context(), identity)
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	if !s.authorizedCron(r) {
		writeVotingError(w, http.StatusUnauthorized, "UNAUTHORIZED", "cron secret is missing or wrong")
		return
	}

	resp, err := s.progression.Handler.ProgressHandler(r.Context())
	if err != nil {
		s.logger.Error("progression run failed",
			"event", "http_progression_failed",
			"module", "internal/platform/httpserver",
			"layer", "platform",
			"error", err.Error(),
		)
		writeVotingError(w, http.StatusInternalServerError, "PROGRESSION_FAILED", "progression run failed")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	health, err := s.voting.Handler.QueueHealthHandler(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "degraded",
			"error":  "queue health unavailable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"queue":  health,
	})
}

// authorizedCron requires a configured shared secret. An empty secret locks
// the endpoint rather than opening it.
func (s *Server) authorizedCron(r *http.Request) bool {
	if s.cronSecret == "" {
		return false
	}
	token := bearerToken(r)
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.cronSecret)) == 1
}

// resolveIdentity trusts the upstream identity resolver: an authenticated
// request carries a bearer subject, an anonymous one a device-derived key.
func resolveIdentity(r *http.Request) (votingports.VoterIdentity, bool) {
	banned := strings.TrimSpace(r.Header.Get("X-User-Banned")) == "true"

	if subject := bearerToken(r); subject != "" {
		return votingports.VoterIdentity{
			VoterKey: "user:" + subject,
			UserID:   subject,
			Banned:   banned,
		}, true
	}
	if voterKey := strings.TrimSpace(r.Header.Get("X-Voter-Key")); voterKey != "" {
		return votingports.VoterIdentity{
			VoterKey: voterKey,
			Banned:   banned,
		}, true
	}
	return votingports.VoterIdentity{}, false
}

func bearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return ""
	}
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}

func writeVotingDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, votingerrors.ErrAlreadyVoted):
		writeVotingError(w, http.StatusConflict, "ALREADY_VOTED", err.Error())
	case errors.Is(err, votingerrors.ErrSelfVoteForbidden):
		writeVotingError(w, http.StatusForbidden, "SELF_VOTE_NOT_ALLOWED", err.Error())
	case errors.Is(err, votingerrors.ErrInvalidClipStatus):
		writeVotingError(w, http.StatusBadRequest, "INVALID_CLIP_STATUS", err.Error())
	case errors.Is(err, votingerrors.ErrDailyLimit):
		writeVotingError(w, http.StatusTooManyRequests, "DAILY_LIMIT", err.Error())
	case errors.Is(err, votingerrors.ErrSuperLimit):
		writeVotingError(w, http.StatusTooManyRequests, "SUPER_LIMIT", err.Error())
	case errors.Is(err, votingerrors.ErrMegaLimit):
		writeVotingError(w, http.StatusTooManyRequests, "MEGA_LIMIT", err.Error())
	case errors.Is(err, votingerrors.ErrNoActiveSlot):
		writeVotingError(w, http.StatusBadRequest, "NO_ACTIVE_SLOT", err.Error())
	case errors.Is(err, votingerrors.ErrWrongSlot):
		writeVotingError(w, http.StatusBadRequest, "WRONG_SLOT", err.Error())
	case errors.Is(err, votingerrors.ErrVotingExpired):
		writeVotingError(w, http.StatusBadRequest, "VOTING_EXPIRED", err.Error())
	case errors.Is(err, votingerrors.ErrWaitingForClips):
		writeVotingError(w, http.StatusBadRequest, "WAITING_FOR_CLIPS", err.Error())
	case errors.Is(err, votingerrors.ErrAuthRequired):
		writeVotingError(w, http.StatusUnauthorized, "AUTH_REQUIRED", err.Error())
	case errors.Is(err, votingerrors.ErrUserBanned):
		writeVotingError(w, http.StatusForbidden, "USER_BANNED", err.Error())
	case errors.Is(err, votingerrors.ErrNotVoted):
		writeVotingError(w, http.StatusNotFound, "NOT_VOTED", err.Error())
	case errors.Is(err, votingerrors.ErrInvalidVoteInput):
		writeVotingError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, votingerrors.ErrClipNotFound):
		// Clip records live behind an RPC boundary upstream; an unknown clip
		// is indistinguishable from an unreachable clip service.
		writeVotingError(w, http.StatusServiceUnavailable, "RPC_NOT_FOUND", err.Error())
	case errors.Is(err, votingerrors.ErrStoreUnavailable):
		writeVotingError(w, http.StatusServiceUnavailable, "DB_ERROR", err.Error())
	default:
		writeVotingError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

func writeVotingError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, votinghttp.ErrorResponse{
		Success: false,
		Error:   message,
		Code:    code,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
