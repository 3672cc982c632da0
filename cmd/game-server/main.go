package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v3"
	"github.com/rs/zerolog/log"

	"orbvale/internal/catalog"
	"orbvale/internal/config"
	"orbvale/internal/economy"
	"orbvale/internal/logging"
	"orbvale/internal/reel"
	"orbvale/internal/room"
	"orbvale/internal/session"
	"orbvale/internal/store"
	"orbvale/internal/ws"
)

func main() {
	cfg, err := config.LoadApp()
	if err != nil {
		panic(err)
	}
	logging.Init(cfg.Log)

	st, err := store.New(cfg.Server.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("store init failed")
	}
	if err := st.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("db ping failed")
	}

	reelCfg, err := reel.LoadConfig(cfg.Game.ReelConfigPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Fatal().Err(err).Str("path", cfg.Game.ReelConfigPath).Msg("reel config load failed")
		}
		log.Warn().Str("path", cfg.Game.ReelConfigPath).Msg("reel config missing, using built-in tuning")
		reelCfg = reel.DefaultConfig()
	}

	rooms := room.NewDirectory(cfg.Server.ReservedRooms, room.NewGridSpawnPicker(), nil)
	registry := session.NewRegistry()
	engine := reel.NewEngine(reelCfg)
	items := catalog.New(st)

	srv := ws.NewServer(cfg.Server, cfg.Game, rooms, registry, st, engine, items)
	authority := economy.NewAuthority(rooms, st, srv, cfg.Game.BalanceFloor)
	srv.SetAuthority(authority)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	sweeper := economy.NewSweeper(rooms, authority, cfg.Game.IdleRewardOrbs, cfg.Game.IdleRewardInterval)
	go sweeper.Run(sweepCtx)

	seedReservedRooms(rooms, srv)

	r := newRouter(st, cfg.Server, rooms, srv, items)
	server := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	log.Info().Str("addr", cfg.Server.HTTPAddr).Msg("http listening")
	log.Fatal().Err(server.ListenAndServe()).Msg("server stopped")
}

// seedReservedRooms drops a few ephemeral pickups into the permanent rooms
// and keeps them respawning.
func seedReservedRooms(rooms *room.Directory, srv *ws.Server) {
	for _, snap := range rooms.ListRooms() {
		rm, ok := rooms.Get(snap.RoomID)
		if !ok {
			continue
		}
		roomID := snap.RoomID
		rm.SpawnObject(&room.Object{Kind: room.ObjectPickup, X: 320, Y: 240, Reward: 25})
		rm.SpawnObject(&room.Object{
			Kind: room.ObjectShrine, X: 520, Y: 180,
			Reward: 250, MinBalance: 1000, Cooldown: 5 * time.Minute,
		})
		rm.StartSpawner(30*time.Second, func() *room.Object {
			return &room.Object{Kind: room.ObjectPickup, X: 320, Y: 240, Reward: 25}
		}, func(v room.ObjectView) {
			srv.ObjectSpawned(roomID, v)
		})
	}
}

func newRouter(st *store.Store, cfg config.ServerConfig, rooms *room.Directory, srv *ws.Server, items *catalog.Catalog) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.With(apiLogMiddleware()).Get("/healthz", healthHandler(st))
	r.Get("/ws", srv.HandleWS)

	r.Route("/api", func(r chi.Router) {
		r.Use(apiLogMiddleware())
		r.Get("/public/rooms", publicRoomsHandler(rooms))
		r.Get("/public/leaderboard", publicLeaderboardHandler(st))
		r.Get("/public/catalog/{itemID}", catalogItemHandler(items))

		r.Group(func(r chi.Router) {
			r.Use(adminAuthMiddleware(cfg.AdminAPIKey))
			r.Post("/topup", topupHandler(st))
		})
	})
	return r
}

func apiLogMiddleware() func(http.Handler) http.Handler {
	return httplog.RequestLogger(
		slog.New(slog.NewJSONHandler(logging.Writer(), &slog.HandlerOptions{})),
		&httplog.Options{
			Level:  slog.LevelInfo,
			Schema: httplog.Schema{ResponseStatus: "status", ResponseDuration: "duration_ms"},
			LogExtraAttrs: func(req *http.Request, _ string, _ int) []slog.Attr {
				return []slog.Attr{
					slog.String("request_id", chimw.GetReqID(req.Context())),
					slog.String("method", req.Method),
					slog.String("path", req.URL.Path),
				}
			},
		},
	)
}

func healthHandler(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := st.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "db": "down"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "db": "up"})
	}
}

func publicRoomsHandler(rooms *room.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := []map[string]any{}
		for _, snap := range rooms.ListRooms() {
			out = append(out, map[string]any{
				"id":       snap.RoomID,
				"map_kind": snap.MapKind,
				"members":  len(snap.Members),
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"items": out})
	}
}

func publicLeaderboardHandler(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				limit = n
			}
		}
		rows, err := st.Leaderboard(r.Context(), limit)
		if err != nil {
			writeHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		out := make([]map[string]any, 0, len(rows))
		for _, row := range rows {
			out = append(out, map[string]any{
				"player_id":    row.PlayerID,
				"name":         row.Name,
				"balance_orbs": row.Balance,
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"items": out})
	}
}

func catalogItemHandler(items *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		it, err := items.GetItem(r.Context(), chi.URLParam(r, "itemID"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeHTTPError(w, http.StatusNotFound, "not_found")
				return
			}
			writeHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		_ = json.NewEncoder(w).Encode(it)
	}
}

func topupHandler(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			PlayerID   string `json:"player_id"`
			AmountOrbs int64  `json:"amount_orbs"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if body.PlayerID == "" || body.AmountOrbs <= 0 {
			writeHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		refID := strconv.FormatInt(time.Now().UnixNano(), 10)
		bal, err := st.Credit(r.Context(), body.PlayerID, body.AmountOrbs, "topup_credit", "topup", refID)
		if err != nil {
			writeHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "balance_orbs": bal})
	}
}

func adminAuthMiddleware(adminKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminKey != "" {
				got := r.Header.Get("X-Admin-Key")
				if subtle.ConstantTimeCompare([]byte(got), []byte(adminKey)) != 1 {
					w.WriteHeader(http.StatusUnauthorized)
					_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "unauthorized"})
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeHTTPError(w http.ResponseWriter, status int, code string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": code})
}
