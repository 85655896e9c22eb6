package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/arcade-hub/internal/domain"
	"github.com/arcade-hub/internal/service"
	"github.com/arcade-hub/internal/websocket"
)

// Handler provides HTTP handlers for the arcade hub API
type Handler struct {
	service *service.HubService
	hub     *websocket.Hub
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(service *service.HubService, hub *websocket.Hub, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		hub:     hub,
		logger:  logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Legacy surface the arcade shells still probe on boot
	r.Get("/", h.Index)
	r.Get("/api/data", h.Data)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Registry and profile views
		r.Post("/users", h.RegisterUser)
		r.Route("/users/{username}", func(r chi.Router) {
			r.Get("/profile", h.GetProfile)
			r.Get("/achievements", h.GetAchievements)
			r.Get("/summary", h.GetSummary)
		})

		r.Get("/games", h.ListGames)

		// Score operations
		r.Post("/scores", h.SubmitScore)
		r.Post("/scores/batch", h.SubmitScoreBatch)

		r.Post("/achievements/rescan", h.RescanAchievements)

		// Per-game boards
		r.Route("/leaderboards/{game}", func(r chi.Router) {
			r.Get("/top", h.GetTop)
			r.Get("/live", h.GetLive)
			r.Get("/player/{username}", h.GetPlayerStats)
		})

		// Cross-game boards
		r.Route("/overall", func(r chi.Router) {
			r.Get("/top", h.GetOverallTop)
			r.Get("/live", h.GetLiveOverall)
			r.Get("/rank/{username}", h.GetOverallRank)
		})

		// Friend graph
		r.Route("/friends", func(r chi.Router) {
			r.Post("/requests", h.RequestFriend)
			r.Get("/requests/{username}", h.GetIncomingRequests)
			r.Post("/requests/{username}/accept", h.AcceptRequest)
			r.Get("/{username}", h.GetFriends)
		})

		// WebSocket info endpoint
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// parseLimit reads an optional positive limit query parameter. Zero means
// the caller wants the configured default.
func parseLimit(r *http.Request) (int, error) {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 0 {
		return 0, domain.ErrInvalidRequest
	}
	return limit, nil
}

// parsePolicy reads the total policy query parameter, defaulting to the
// lifetime sum
func parsePolicy(r *http.Request) (domain.TotalPolicy, error) {
	switch r.URL.Query().Get("policy") {
	case "", string(domain.TotalPolicySum):
		return domain.TotalPolicySum, nil
	case string(domain.TotalPolicyBests):
		return domain.TotalPolicyBests, nil
	default:
		return "", domain.ErrInvalidRequest
	}
}

// Index greets callers hitting the root path
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Welcome to the Arcade Hub!"))
}

// Data serves the static payload the legacy shell polls
func (h *Handler) Data(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "This is your data!"})
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns hub occupancy (connections plus per-game
// subscriber counts).
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, h.hub.Stats())
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

type registerRequest struct {
	Username string `json:"username"`
}

// RegisterUser registers a player, idempotently
func (h *Handler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if err := h.service.EnsureUser(r.Context(), req.Username); err != nil {
		if domain.IsValidationError(err) {
			h.writeError(w, http.StatusBadRequest, err)
			return
		}
		h.logger.Error("failed to register user", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	user, _, err := h.service.User(r.Context(), req.Username)
	if err != nil {
		h.logger.Error("failed to load registered user", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    user,
	})
}

type profileResponse struct {
	domain.Profile
	Rendered string `json:"rendered"`
}

// GetProfile returns a player's profile view along with its text
// rendering
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	profile, err := h.service.Profile(r.Context(), username)
	if err != nil {
		if domain.IsValidationError(err) {
			h.writeError(w, http.StatusBadRequest, err)
			return
		}
		h.logger.Error("failed to build profile", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, profileResponse{
		Profile:  profile,
		Rendered: profile.Render(),
	})
}

// GetAchievements returns a player's badges, most recent first
func (h *Handler) GetAchievements(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	achs, err := h.service.UserAchievements(r.Context(), username)
	if err != nil {
		h.logger.Error("failed to list achievements", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, achs)
}

// GetSummary returns a player's headline numbers
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	summary, err := h.service.Summary(r.Context(), username)
	if err != nil {
		if domain.IsValidationError(err) {
			h.writeError(w, http.StatusBadRequest, err)
			return
		}
		h.logger.Error("failed to build summary", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, summary)
}

// ListGames returns every game with at least one recorded run
func (h *Handler) ListGames(w http.ResponseWriter, r *http.Request) {
	games, err := h.service.Games(r.Context())
	if err != nil {
		h.logger.Error("failed to list games", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, games)
}

// SubmitScore handles score submission
func (h *Handler) SubmitScore(w http.ResponseWriter, r *http.Request) {
	var submission domain.ScoreSubmission
	if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if err := h.service.RecordScore(r.Context(), submission); err != nil {
		if domain.IsValidationError(err) {
			h.writeError(w, http.StatusBadRequest, err)
			return
		}
		h.logger.Error("failed to record score", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, map[string]string{"status": "accepted"})
}

// SubmitScoreBatch handles batch score submission
func (h *Handler) SubmitScoreBatch(w http.ResponseWriter, r *http.Request) {
	var batch domain.BatchScoreSubmission
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if len(batch.Scores) == 0 {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if err := h.service.RecordScoreBatch(r.Context(), batch.Scores); err != nil {
		h.logger.Error("failed to record score batch", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"status":   "accepted",
		"received": len(batch.Scores),
	})
}

// RescanAchievements re-runs the threshold checks over the whole ledger
func (h *Handler) RescanAchievements(w http.ResponseWriter, r *http.Request) {
	matched, err := h.service.RescanAchievements(r.Context())
	if err != nil {
		h.logger.Error("failed to rescan achievements", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, map[string]int64{"matched": matched})
}

// GetTop returns the persistent top N for a game
func (h *Handler) GetTop(w http.ResponseWriter, r *http.Request) {
	game := chi.URLParam(r, "game")

	limit, err := parseLimit(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	entries, err := h.service.Leaderboard(r.Context(), game, limit)
	if err != nil {
		if domain.IsValidationError(err) {
			h.writeError(w, http.StatusBadRequest, err)
			return
		}
		h.logger.Error("failed to get leaderboard", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, entries)
}

// GetLive returns the cached top N for a game, falling back to the store
func (h *Handler) GetLive(w http.ResponseWriter, r *http.Request) {
	game := chi.URLParam(r, "game")

	limit, err := parseLimit(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	entries, err := h.service.LiveLeaderboard(r.Context(), game, limit)
	if err != nil {
		if domain.IsValidationError(err) {
			h.writeError(w, http.StatusBadRequest, err)
			return
		}
		h.logger.Error("failed to get live leaderboard", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, entries)
}

type playerStatsResponse struct {
	Username  string `json:"username"`
	Game      string `json:"game"`
	BestScore int64  `json:"best_score"`
	GameTotal int64  `json:"game_total"`
	Ranked    bool   `json:"ranked"`
	Rank      int64  `json:"rank"`
}

// GetPlayerStats returns a player's best, total and rank for one game.
// Players with no recorded runs come back with ranked=false, not an
// error.
func (h *Handler) GetPlayerStats(w http.ResponseWriter, r *http.Request) {
	game := chi.URLParam(r, "game")
	username := chi.URLParam(r, "username")

	rank, err := h.service.RankForGame(r.Context(), username, game)
	if err != nil {
		if domain.IsValidationError(err) {
			h.writeError(w, http.StatusBadRequest, err)
			return
		}
		h.logger.Error("failed to get player rank", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	best, err := h.service.UserBestForGame(r.Context(), username, game)
	if err != nil {
		h.logger.Error("failed to get player best", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	total, err := h.service.UserGameTotal(r.Context(), username, game)
	if err != nil {
		h.logger.Error("failed to get player total", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, playerStatsResponse{
		Username:  username,
		Game:      game,
		BestScore: best,
		GameTotal: total,
		Ranked:    rank > 0,
		Rank:      rank,
	})
}

// GetOverallTop returns the cross-game board under the requested policy
func (h *Handler) GetOverallTop(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	policy, err := parsePolicy(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	entries, err := h.service.OverallLeaderboard(r.Context(), policy, limit)
	if err != nil {
		h.logger.Error("failed to get overall leaderboard", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, entries)
}

// GetLiveOverall returns the cached cross-game board under the requested
// policy, falling back to the store when the cache is cold
func (h *Handler) GetLiveOverall(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	policy, err := parsePolicy(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	entries, err := h.service.LiveOverall(r.Context(), policy, limit)
	if err != nil {
		h.logger.Error("failed to get live overall leaderboard", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, entries)
}

type overallRankResponse struct {
	Username string             `json:"username"`
	Policy   domain.TotalPolicy `json:"policy"`
	Ranked   bool               `json:"ranked"`
	Rank     int64              `json:"rank"`
}

// GetOverallRank returns a player's cross-game rank under the requested
// policy
func (h *Handler) GetOverallRank(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	policy, err := parsePolicy(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	rank, err := h.service.OverallRank(r.Context(), username, policy)
	if err != nil {
		h.logger.Error("failed to get overall rank", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, overallRankResponse{
		Username: username,
		Policy:   policy,
		Ranked:   rank > 0,
		Rank:     rank,
	})
}

type friendRequest struct {
	Username string `json:"username"`
	Friend   string `json:"friend"`
}

// RequestFriend records a pending friend request
func (h *Handler) RequestFriend(w http.ResponseWriter, r *http.Request) {
	var req friendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if err := h.service.RequestFriend(r.Context(), req.Username, req.Friend); err != nil {
		if domain.IsValidationError(err) {
			h.writeError(w, http.StatusBadRequest, err)
			return
		}
		h.logger.Error("failed to request friendship", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, map[string]string{"status": "requested"})
}

// GetIncomingRequests lists who is waiting on a player's acceptance
func (h *Handler) GetIncomingRequests(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	requests, err := h.service.IncomingRequests(r.Context(), username)
	if err != nil {
		if domain.IsValidationError(err) {
			h.writeError(w, http.StatusBadRequest, err)
			return
		}
		h.logger.Error("failed to list friend requests", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, requests)
}

type acceptFriendRequest struct {
	Friend string `json:"friend"`
}

// AcceptRequest accepts a pending friend request and makes the
// friendship mutual
func (h *Handler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	var req acceptFriendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if err := h.service.AcceptRequest(r.Context(), username, req.Friend); err != nil {
		if domain.IsValidationError(err) {
			h.writeError(w, http.StatusBadRequest, err)
			return
		}
		h.logger.Error("failed to accept friendship", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, map[string]string{"status": "accepted"})
}

// GetFriends lists a player's accepted friends
func (h *Handler) GetFriends(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	friends, err := h.service.Friends(r.Context(), username)
	if err != nil {
		if domain.IsValidationError(err) {
			h.writeError(w, http.StatusBadRequest, err)
			return
		}
		h.logger.Error("failed to list friends", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, friends)
}
