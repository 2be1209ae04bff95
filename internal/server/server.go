package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/JoaoVictor-C/ArenaRanking/internal/constants"
	"github.com/JoaoVictor-C/ArenaRanking/internal/domain"
	"github.com/JoaoVictor-C/ArenaRanking/internal/middleware"
	"github.com/JoaoVictor-C/ArenaRanking/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// Server exposes the operator-facing HTTP surface: ranking reads, player
// registration and the cycle/scan triggers.
type Server struct {
	scheduler *service.Scheduler
	scanner   *service.AnomalyScanner
	players   *service.PlayerService
	ranking   *service.RankingService
	logger    zerolog.Logger
}

func NewServer(
	scheduler *service.Scheduler,
	scanner *service.AnomalyScanner,
	players *service.PlayerService,
	ranking *service.RankingService,
	logger zerolog.Logger,
) *Server {
	return &Server{
		scheduler: scheduler,
		scanner:   scanner,
		players:   players,
		ranking:   ranking,
		logger:    logger,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID(s.logger))
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/refresh", s.handleRefresh)
		r.Post("/anomalies/scan", s.handleAnomalyScan)
		r.Get("/ranking", s.handleRanking)
		r.Post("/players", s.handleRegister)
		r.Get("/players/{puuid}", s.handleGetPlayer)
		r.Delete("/players/{puuid}", s.handleDeletePlayer)
	})

	return r
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	summary, err := s.scheduler.TriggerCycle(r.Context())
	if err != nil {
		if errors.Is(err, service.ErrCycleInFlight) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error().Err(err).Msg("manual cycle failed")
		writeError(w, http.StatusInternalServerError, "cycle failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"players_processed": summary.PlayersProcessed,
		"matches_settled":   summary.MatchesSettled,
		"errors":            summary.Errors,
		"duration_ms":       summary.Duration.Milliseconds(),
	})
}

func (s *Server) handleAnomalyScan(w http.ResponseWriter, r *http.Request) {
	anomalies, err := s.scanner.Scan(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("anomaly scan failed")
		writeError(w, http.StatusInternalServerError, "anomaly scan failed")
		return
	}

	out := make([]anomalyResponse, 0, len(anomalies))
	for _, a := range anomalies {
		out = append(out, anomalyResponse{
			Puuid:   a.Puuid,
			RiotID:  a.RiotID,
			Change:  a.Change,
			Matches: a.Matches,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"anomalies": out})
}

func (s *Server) handleRanking(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	pageSize := queryInt(r, "page_size", constants.DefaultRankingPageSize)
	if pageSize < 1 {
		pageSize = constants.DefaultRankingPageSize
	}
	if pageSize > constants.MaxRankingPageSize {
		pageSize = constants.MaxRankingPageSize
	}

	players, total, err := s.ranking.GetRanking(r.Context(), page, pageSize)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load ranking")
		writeError(w, http.StatusInternalServerError, "failed to load ranking")
		return
	}

	entries := make([]playerResponse, 0, len(players))
	for i, p := range players {
		entry := toPlayerResponse(&p)
		entry.Rank = (page-1)*pageSize + i + 1
		entries = append(entries, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ranking": entries,
		"total":   total,
		"page":    page,
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		Tag  string `json:"tag"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" || req.Tag == "" {
		writeError(w, http.StatusBadRequest, "name and tag are required")
		return
	}

	player, err := s.players.Register(r.Context(), req.Name, req.Tag)
	if err != nil {
		if errors.Is(err, service.ErrPlayerNotFound) {
			writeError(w, http.StatusNotFound, "riot id not found")
			return
		}
		s.logger.Error().Err(err).Str("name", req.Name).Str("tag", req.Tag).Msg("registration failed")
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	writeJSON(w, http.StatusCreated, toPlayerResponse(player))
}

func (s *Server) handleGetPlayer(w http.ResponseWriter, r *http.Request) {
	puuid := chi.URLParam(r, "puuid")

	player, history, err := s.players.GetWithHistory(r.Context(), puuid, 20)
	if err != nil {
		if errors.Is(err, service.ErrPlayerNotFound) {
			writeError(w, http.StatusNotFound, "player not found")
			return
		}
		s.logger.Error().Err(err).Str("puuid", puuid).Msg("failed to load player")
		writeError(w, http.StatusInternalServerError, "failed to load player")
		return
	}

	resp := struct {
		playerResponse
		History []historyResponse `json:"history"`
	}{playerResponse: toPlayerResponse(player)}
	for _, h := range history {
		resp.History = append(resp.History, historyResponse{
			MatchID: h.MatchID,
			MMR:     h.MMR,
			Date:    h.Date.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeletePlayer(w http.ResponseWriter, r *http.Request) {
	puuid := chi.URLParam(r, "puuid")

	if err := s.players.Remove(r.Context(), puuid); err != nil {
		if errors.Is(err, service.ErrPlayerNotFound) {
			writeError(w, http.StatusNotFound, "player not found")
			return
		}
		s.logger.Error().Err(err).Str("puuid", puuid).Msg("failed to delete player")
		writeError(w, http.StatusInternalServerError, "failed to delete player")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type playerResponse struct {
	Puuid        string  `json:"puuid"`
	RiotID       string  `json:"riot_id"`
	Name         string  `json:"name"`
	MMR          int     `json:"mmr"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	WinRate      float64 `json:"win_rate"`
	SessionDelta int     `json:"session_delta"`
	AutoCheck    bool    `json:"auto_check"`
	Rank         int     `json:"rank,omitempty"`
}

type historyResponse struct {
	MatchID string `json:"match_id"`
	MMR     int    `json:"mmr"`
	Date    string `json:"date"`
}

type anomalyResponse struct {
	Puuid   string `json:"puuid"`
	RiotID  string `json:"riot_id"`
	Change  int    `json:"change"`
	Matches int    `json:"matches"`
}

func toPlayerResponse(p *domain.Player) playerResponse {
	return playerResponse{
		Puuid:        p.Puuid,
		RiotID:       p.RiotID,
		Name:         p.Name,
		MMR:          p.MMR,
		Wins:         p.Wins,
		Losses:       p.Losses,
		WinRate:      p.WinRate(),
		SessionDelta: p.SessionDelta,
		AutoCheck:    p.AutoCheck,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
