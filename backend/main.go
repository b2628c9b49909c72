package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	_ "go.uber.org/automaxprocs"

	"github.com/thekrainbow/deep2048/engine"
)

type StatusResponse struct {
	Settings        GameSettingsDTO   `json:"settings"`
	Config          Config            `json:"config"`
	Status          string            `json:"status"`
	Board           string            `json:"board"`
	Grid            [4][4]int         `json:"grid"`
	Seed            uint32            `json:"seed"`
	Score           int               `json:"score"`
	MaxTile         int               `json:"max_tile"`
	Turns           int               `json:"turns"`
	SearchState     string            `json:"search_state"`
	LastDirection   string            `json:"last_direction"`
	LastEndProb     float64           `json:"last_end_prob"`
	Message         string            `json:"message,omitempty"`
	Replay          string            `json:"replay,omitempty"`
	History         []historyEntryDTO `json:"history"`
	TurnStartedAtMs int64             `json:"turn_started_at_ms"`
}

type GameSettingsDTO struct {
	Seed    *uint32 `json:"seed,omitempty"`
	MaxRank *int    `json:"max_rank,omitempty"`
	Record  *bool   `json:"record,omitempty"`
}

type historyEntryDTO struct {
	Turn      int                `json:"turn"`
	Board     string             `json:"board"`
	Direction string             `json:"direction"`
	Score     float32            `json:"score"`
	EndProb   float32            `json:"end_prob"`
	Depth     int                `json:"depth"`
	Rounds    int                `json:"rounds"`
	ElapsedMs float64            `json:"elapsed_ms"`
	Stats     engine.SearchStats `json:"stats"`
}

type evaluateRequest struct {
	Board string     `json:"board,omitempty"`
	Grid  *[4][4]int `json:"grid,omitempty"`
	State string     `json:"state,omitempty"`
}

type evaluateResponse struct {
	Board     string             `json:"board"`
	Direction string             `json:"direction"`
	Score     float64            `json:"score"`
	EndProb   float64            `json:"end_prob"`
	Depth     int                `json:"depth"`
	Rounds    int                `json:"rounds"`
	State     string             `json:"state"`
	ElapsedMs float64            `json:"elapsed_ms"`
	Stats     engine.SearchStats `json:"stats"`
}

type app struct {
	controller *GameController
	hub        *Hub
	searchHub  *SearchHub
	batchHub   *BatchHub
	batch      *batchRunner
	replays    *replayStore
}

func main() {
	configPath := flag.String("config", os.Getenv("DEEP2048_CONFIG"), "path to a YAML config file")
	flag.Parse()

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading config")
	}
	configStore.Update(cfg)
	if level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel)); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := newApp(log.Logger)
	log.Info().
		Str("replay_dir", a.replays.Dir()).
		Int("search_workers", a.controller.Engine().Workers()).
		Int("min_depth", cfg.AiMinDepth).
		Int("max_depth", cfg.AiMaxDepth).
		Msg("backend configured")

	go a.hub.Run(ctx.Done())
	go a.searchHub.Run(ctx.Done())
	go a.batchHub.Run(ctx.Done())
	a.batch.Start(ctx)
	go a.tickLoop(ctx, time.Duration(cfg.TickMs)*time.Millisecond)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: a.routes(),
	}
	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
		close(serverErrCh)
	}()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	log.Info().Str("addr", cfg.ListenAddr).Msg("backend listening")
	var runErr error
	select {
	case <-sigCtx.Done():
		log.Info().Err(sigCtx.Err()).Msg("shutdown signal received")
	case err, ok := <-serverErrCh:
		if ok {
			runErr = err
			log.Error().Err(err).Msg("server error")
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("graceful shutdown failed")
		if closeErr := server.Close(); closeErr != nil && !errors.Is(closeErr, http.ErrServerClosed) {
			log.Error().Err(closeErr).Msg("forced close failed")
		}
	}

	cancel()
	_ = a.controller.Stop("shutdown")
	if runErr != nil {
		log.Error().Err(runErr).Msg("exiting after server error")
		os.Exit(1)
	}
}

func newApp(logger zerolog.Logger) *app {
	cfg := GetConfig()
	replays := newReplayStore(cfg.ReplayDir)
	controller := NewGameController(DefaultGameSettings(), replays, logger.With().Str("component", "game").Logger())
	a := &app{
		controller: controller,
		hub:        NewHub(),
		searchHub:  NewSearchHub(),
		batchHub:   NewBatchHub(),
		replays:    replays,
	}
	a.batch = newBatchRunner(controller.Engine, replays, logger.With().Str("component", "batch").Logger())
	a.batch.SetHub(a.batchHub)
	controller.SetSearchPublisher(a.searchHub.HasClients, a.searchHub.Publish)
	return a
}

func (a *app) tickLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !a.controller.Tick() {
				continue
			}
			if entry, ok := a.controller.LatestHistoryEntry(); ok {
				state := a.controller.State()
				a.hub.broadcastTurn <- turnPayload{
					Grid:   state.Board.Grid(),
					Status: state.Status.String(),
					Score:  state.Score(),
					Entry:  historyEntryToDTO(entry),
				}
			}
			if a.controller.State().Status.Finished() {
				a.hub.broadcastStatus <- controllerStatus(a.controller)
			}
		}
	}
}

func (a *app) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/api/ping", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	r.Get("/api/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, controllerStatus(a.controller))
	})

	r.Post("/api/start", func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Settings GameSettingsDTO `json:"settings"`
		}
		if err := decodeOptionalJSON(r, &payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
		settings := settingsFromDTO(payload.Settings, a.controller.Settings())
		a.controller.StartGame(settings)
		status := controllerStatus(a.controller)
		writeJSON(w, http.StatusOK, status)
		a.hub.broadcastReset <- resetPayload{Reason: "start", Status: status}
	})

	r.Post("/api/stop", func(w http.ResponseWriter, r *http.Request) {
		if err := a.controller.Stop("stopped by request"); err != nil {
			writeError(w, statusForError(err), err.Error())
			return
		}
		status := controllerStatus(a.controller)
		writeJSON(w, http.StatusOK, status)
		a.hub.broadcastStatus <- status
	})

	r.Post("/api/settings", func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Settings *GameSettingsDTO `json:"settings"`
			Config   *Config          `json:"config"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
		if payload.Config != nil {
			configStore.Update(*payload.Config)
			a.controller.ResetForConfigChange()
		}
		if payload.Settings != nil {
			a.controller.UpdateSettings(settingsFromDTO(*payload.Settings, a.controller.Settings()))
		}
		a.hub.broadcastSettings <- settingsPayload{Settings: settingsToDTO(a.controller.Settings())}
		writeJSON(w, http.StatusOK, controllerStatus(a.controller))
	})

	r.Get("/api/turns", func(w http.ResponseWriter, r *http.Request) {
		entries := historyToDTO(a.controller.History())
		offset, limit := pageParams(r, 50, 500)
		writeJSON(w, http.StatusOK, map[string]any{
			"items":  paginate(entries, offset, limit),
			"offset": offset,
			"limit":  limit,
			"total":  len(entries),
		})
	})

	r.Post("/api/evaluate", func(w http.ResponseWriter, r *http.Request) {
		var payload evaluateRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
		board, err := boardFromRequest(payload)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		state, err := parseSearchState(payload.State)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		res := a.controller.Evaluate(board, state)
		writeJSON(w, http.StatusOK, evaluateResponse{
			Board:     formatBoard(board),
			Direction: res.Direction.String(),
			Score:     finiteOrZero(res.Score),
			EndProb:   res.EndProb,
			Depth:     res.Depth,
			Rounds:    res.Rounds,
			State:     res.State.String(),
			ElapsedMs: float64(res.Elapsed.Microseconds()) / 1000,
			Stats:     res.Stats,
		})
	})

	r.Get("/api/batch", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"jobs": a.batch.Jobs()})
	})

	r.Post("/api/batch", func(w http.ResponseWriter, r *http.Request) {
		req := BatchRequest{Games: 1, MaxRank: GetConfig().MaxRank}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
		job, err := a.batch.Submit(req)
		if err != nil {
			writeError(w, statusForError(err), err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, job)
	})

	r.Get("/api/batch/{id}", func(w http.ResponseWriter, r *http.Request) {
		job, ok := a.batch.Job(chi.URLParam(r, "id"))
		if !ok {
			writeError(w, http.StatusNotFound, "unknown batch")
			return
		}
		writeJSON(w, http.StatusOK, job)
	})

	r.Get("/api/replays", func(w http.ResponseWriter, r *http.Request) {
		items, err := a.replays.List()
		if err != nil {
			writeError(w, statusForError(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	})

	r.Get("/api/replays/{name}", func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		summary, err := a.replays.Summary(name)
		if err != nil {
			writeError(w, statusForError(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"name": name, "summary": summary})
	})

	r.Get("/api/replays/{name}/records", func(w http.ResponseWriter, r *http.Request) {
		records, err := a.replays.Records(chi.URLParam(r, "name"))
		if err != nil {
			writeError(w, statusForError(err), err.Error())
			return
		}
		offset, limit := pageParams(r, 100, 1000)
		items := lo.Map(paginate(records, offset, limit), func(rec engine.TurnRecord, i int) historyEntryDTO {
			return recordToDTO(offset+i, rec)
		})
		writeJSON(w, http.StatusOK, map[string]any{
			"items":  items,
			"offset": offset,
			"limit":  limit,
			"total":  len(records),
		})
	})

	r.Get("/ws/", func(w http.ResponseWriter, r *http.Request) {
		serveWS(a.hub, a.controller, w, r)
	})
	r.Get("/ws/search", func(w http.ResponseWriter, r *http.Request) {
		serveSearchWS(a.searchHub, w, r)
	})
	r.Get("/ws/batch", func(w http.ResponseWriter, r *http.Request) {
		serveBatchWS(a.batchHub, a.batch, w, r)
	})
	return r
}

func serveWS(hub *Hub, controller *GameController, w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := &Client{hub: hub, send: make(chan []byte, 16)}
	hub.Register(client)

	client.sendJSON(wsMessage{Type: "status", Payload: mustMarshal(controllerStatus(controller))})

	go func() {
		defer conn.Close()
		_ = writeWSWithHeartbeat(conn, client.send)
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			hub.Unregister(client)
			return
		}
		var msg wsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "request_status":
			client.sendJSON(wsMessage{Type: "status", Payload: mustMarshal(controllerStatus(controller))})
		}
	}
}

func controllerStatus(controller *GameController) StatusResponse {
	state := controller.State()
	maxTile := 0
	if rank := state.Board.MaxRank(); rank > 0 {
		maxTile = 1 << rank
	}
	return StatusResponse{
		Settings:        settingsToDTO(controller.Settings()),
		Config:          GetConfig(),
		Status:          state.Status.String(),
		Board:           formatBoard(state.Board),
		Grid:            state.Board.Grid(),
		Seed:            state.Seed,
		Score:           state.Score(),
		MaxTile:         maxTile,
		Turns:           state.Turns,
		SearchState:     state.SearchState.String(),
		LastDirection:   state.LastDirection.String(),
		LastEndProb:     state.LastEndProb,
		Message:         state.LastMessage,
		Replay:          state.ReplayName,
		History:         historyToDTO(controller.History()),
		TurnStartedAtMs: controller.CurrentTurnStartedAtMs(),
	}
}

func settingsToDTO(settings GameSettings) GameSettingsDTO {
	return GameSettingsDTO{
		Seed:    lo.ToPtr(settings.Seed),
		MaxRank: lo.ToPtr(settings.MaxRank),
		Record:  lo.ToPtr(settings.Record),
	}
}

func historyToDTO(history MoveHistory) []historyEntryDTO {
	return lo.Map(history.All(), func(entry HistoryEntry, _ int) historyEntryDTO {
		return historyEntryToDTO(entry)
	})
}

func historyEntryToDTO(entry HistoryEntry) historyEntryDTO {
	dto := recordToDTO(entry.Turn, entry.Record)
	dto.ElapsedMs = entry.ElapsedMs
	dto.Stats = entry.Stats
	return dto
}

func recordToDTO(turn int, rec engine.TurnRecord) historyEntryDTO {
	return historyEntryDTO{
		Turn:      turn,
		Board:     formatBoard(rec.Board),
		Direction: engine.Direction(rec.Direction).String(),
		Score:     rec.Score,
		EndProb:   rec.EndProb,
		Depth:     int(rec.Depth),
		Rounds:    int(rec.Rounds),
	}
}

func formatBoard(b engine.Board) string {
	return "0x" + strconv.FormatUint(uint64(b), 16)
}

func parseBoard(raw string) (engine.Board, error) {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), "_", "")
	if raw == "" {
		return 0, errors.New("empty board")
	}
	if !strings.HasPrefix(raw, "0x") && !strings.HasPrefix(raw, "0X") {
		raw = "0x" + raw
	}
	v, err := strconv.ParseUint(raw, 0, 64)
	if err != nil {
		return 0, errors.New("board must be a 64-bit hex value")
	}
	return engine.Board(v), nil
}

// boardFromGrid takes tile values laid out as Board.Grid returns them.
func boardFromGrid(grid [4][4]int) (engine.Board, error) {
	var b engine.Board
	for n := 0; n < 16; n++ {
		v := grid[n/4][n%4]
		if v == 0 {
			continue
		}
		if v < 2 || v&(v-1) != 0 || v > 1<<15 {
			return 0, errors.New("grid tiles must be powers of two between 2 and 32768")
		}
		rank := 0
		for 1<<rank < v {
			rank++
		}
		b = b.SetTile(15-n, rank)
	}
	return b, nil
}

func boardFromRequest(req evaluateRequest) (engine.Board, error) {
	if req.Grid != nil {
		return boardFromGrid(*req.Grid)
	}
	return parseBoard(req.Board)
}

func parseSearchState(raw string) (engine.SearchState, error) {
	if raw == "" {
		return engine.ZeroProbDeath, nil
	}
	for _, s := range []engine.SearchState{engine.ZeroProbDeath, engine.LowProbDeath, engine.HighProbDeath, engine.VeryHighProbDeath} {
		if s.String() == raw {
			return s, nil
		}
	}
	return 0, errors.New("unknown search state " + strconv.Quote(raw))
}

func pageParams(r *http.Request, defLimit, maxLimit int) (int, int) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = defLimit
	}
	return max(offset, 0), min(limit, maxLimit)
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	return items[offset:min(offset+limit, len(items))]
}

// finiteOrZero keeps -Inf scores of boards without a move out of JSON.
func finiteOrZero(v float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}
	return v
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, ErrGameNotRunning):
		return http.StatusConflict
	case errors.Is(err, ErrUnknownReplay):
		return http.StatusNotFound
	case errors.Is(err, ErrBatchLimit):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrInvalidBatch):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeOptionalJSON(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func mustMarshal(v any) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
