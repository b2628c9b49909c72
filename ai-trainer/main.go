package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"
)

var (
	errTrainingRunning    = errors.New("training already running")
	errTrainingNotRunning = errors.New("no running training job")
)

type trainer struct {
	logger        zerolog.Logger
	apiAddr       string
	snapshotPath  string
	snapshotEvery int
	reportEvery   int
	maxGames      int
	pause         time.Duration
	learnerCfg    learnerConfig

	statusMu  sync.RWMutex
	status    trainerStatus
	jobMu     sync.Mutex
	jobCancel context.CancelFunc
	jobDone   chan struct{}
}

type trainerStatus struct {
	Running      bool          `json:"running"`
	Phase        string        `json:"phase"`
	Message      string        `json:"message"`
	StartedAt    string        `json:"started_at"`
	UpdatedAt    string        `json:"updated_at"`
	GamesPlayed  int           `json:"games_played"`
	AvgScore     float64       `json:"avg_score"`
	BestScore    int           `json:"best_score"`
	Alpha        float64       `json:"alpha"`
	LastGame     *gameOutcome  `json:"last_game,omitempty"`
	LastSnapshot string        `json:"last_snapshot,omitempty"`
	Config       learnerConfig `json:"config"`
}

func main() {
	logger, closeLog, err := buildLogger(getenv("TRAINER_LOG_PATH", "/logs/AITrainer.log"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	cfg := defaultLearnerConfig()
	cfg.AlphaStart = getenvFloat("TD_ALPHA_START", cfg.AlphaStart)
	cfg.AlphaDecrease = getenvFloat("TD_ALPHA_DECREASE", cfg.AlphaDecrease)
	cfg.AlphaRate = getenvFloat("TD_ALPHA_RATE", cfg.AlphaRate)
	cfg.ExploreFactor = getenvFloat("TD_EXPLORE_FACTOR", cfg.ExploreFactor)
	cfg.BestSymmetry = getenvBool("TD_BEST_SYMMETRY", false)
	cfg.AvgWindow = getenvInt("TD_AVG_WINDOW", cfg.AvgWindow)
	if cfg.AlphaDecrease <= 0 {
		cfg.AlphaDecrease = 5
	}
	if cfg.AlphaRate <= 0 {
		cfg.AlphaRate = 300000
	}

	t := &trainer{
		logger:        logger,
		apiAddr:       getenv("TRAINER_API_ADDR", ":8090"),
		snapshotPath:  getenv("TD_SNAPSHOT_PATH", "/cache_logs/td_tables.gob"),
		snapshotEvery: getenvInt("TD_SNAPSHOT_EVERY", 20000),
		reportEvery:   getenvInt("TD_REPORT_EVERY", 2000),
		maxGames:      getenvInt("TD_MAX_GAMES", 0),
		pause:         time.Duration(getenvInt("TD_PAUSE_MS", 0)) * time.Millisecond,
		learnerCfg:    cfg,
		status: trainerStatus{
			Phase:     "idle",
			Message:   "service ready",
			StartedAt: time.Now().UTC().Format(time.RFC3339),
			UpdatedAt: time.Now().UTC().Format(time.RFC3339),
			Config:    cfg,
		},
	}

	t.logger.Info().
		Str("api", t.apiAddr).
		Str("snapshot", t.snapshotPath).
		Bool("best_symmetry", cfg.BestSymmetry).
		Msg("TD trainer service started")

	server := &http.Server{Addr: t.apiAddr, Handler: t.routes()}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.logger.Error().Err(err).Msg("trainer api server error")
		}
	}()

	if getenvBool("TRAINER_AUTOSTART", false) {
		if err := t.startTraining(); err != nil {
			t.logger.Error().Err(err).Msg("autostart failed")
		}
	}

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()
	<-sigCtx.Done()
	_ = t.stopTraining("shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	t.logger.Info().Msg("trainer service stopping")
}

func (t *trainer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/api/trainer/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "running": t.getStatus().Running})
	})
	r.Get("/api/trainer/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, t.getStatus())
	})
	r.Post("/api/trainer/start", func(w http.ResponseWriter, r *http.Request) {
		if err := t.startTraining(); err != nil {
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, t.getStatus())
	})
	r.Post("/api/trainer/stop", func(w http.ResponseWriter, r *http.Request) {
		if err := t.stopTraining("requested via api"); err != nil {
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, t.getStatus())
	})
	return r
}

func (t *trainer) getStatus() trainerStatus {
	t.statusMu.RLock()
	defer t.statusMu.RUnlock()
	return t.status
}

func (t *trainer) updateStatus(mutator func(*trainerStatus)) {
	t.statusMu.Lock()
	defer t.statusMu.Unlock()
	mutator(&t.status)
	t.status.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
}

func (t *trainer) startTraining() error {
	t.jobMu.Lock()
	defer t.jobMu.Unlock()
	if t.jobCancel != nil {
		return errTrainingRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	t.jobCancel = cancel
	t.jobDone = done
	t.updateStatus(func(s *trainerStatus) {
		s.Running = true
		s.Phase = "starting"
		s.Message = "training starting"
	})
	go func() {
		defer close(done)
		if err := t.runTraining(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.logger.Error().Err(err).Msg("training failed")
			t.updateStatus(func(s *trainerStatus) {
				s.Phase = "error"
				s.Message = err.Error()
			})
		}
		t.updateStatus(func(s *trainerStatus) {
			s.Running = false
			if s.Phase != "error" {
				s.Phase = "idle"
				s.Message = "service ready"
			}
		})
		t.jobMu.Lock()
		t.jobCancel = nil
		t.jobDone = nil
		t.jobMu.Unlock()
	}()
	return nil
}

func (t *trainer) stopTraining(reason string) error {
	t.jobMu.Lock()
	cancel := t.jobCancel
	done := t.jobDone
	t.jobMu.Unlock()
	if cancel == nil {
		return errTrainingNotRunning
	}
	t.logger.Info().Str("reason", reason).Msg("stopping training")
	cancel()
	if done != nil {
		<-done
	}
	return nil
}

// runTraining plays self-play games until ctx is done or maxGames is
// reached, resuming from the snapshot when one exists. The tables are saved
// every snapshotEvery games and once more on the way out.
func (t *trainer) runTraining(ctx context.Context) error {
	l := newLearner(t.learnerCfg)
	if err := l.Load(t.snapshotPath); err != nil {
		if !errors.Is(err, errNoSnapshot) {
			return err
		}
		t.logger.Info().Msg("no snapshot, starting from empty tables")
	} else {
		t.logger.Info().Int("games", l.Games()).Msg("resumed from snapshot")
	}
	t.updateStatus(func(s *trainerStatus) {
		s.Phase = "running"
		s.Message = "self-play running"
		s.GamesPlayed = l.Games()
	})

	save := func() error {
		if t.snapshotPath == "" {
			return nil
		}
		if err := l.Save(t.snapshotPath); err != nil {
			return err
		}
		t.updateStatus(func(s *trainerStatus) {
			s.LastSnapshot = time.Now().UTC().Format(time.RFC3339)
		})
		return nil
	}

	started := l.Games()
	for {
		if err := ctx.Err(); err != nil {
			if saveErr := save(); saveErr != nil {
				return saveErr
			}
			return err
		}
		if t.maxGames > 0 && l.Games()-started >= t.maxGames {
			return save()
		}
		out := l.PlayGame()
		games := l.Games()
		t.updateStatus(func(s *trainerStatus) {
			s.GamesPlayed = games
			s.AvgScore = l.AvgScore()
			s.BestScore = max(s.BestScore, out.Score)
			s.Alpha = float64(l.alpha())
			s.LastGame = &out
		})
		if t.reportEvery > 0 && games%t.reportEvery == 0 {
			t.logger.Info().
				Int("games", games).
				Float64("avg_score", l.AvgScore()).
				Int("last_score", out.Score).
				Int("last_max_tile", 1<<out.MaxRank).
				Msg("training progress")
		}
		if t.snapshotEvery > 0 && games%t.snapshotEvery == 0 {
			if err := save(); err != nil {
				return err
			}
		}
		if t.pause > 0 && !sleepWithContext(ctx, t.pause) {
			continue
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// buildLogger logs to stdout and appends to the file at path.
func buildLogger(path string) (zerolog.Logger, func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return zerolog.Nop(), nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	out := io.MultiWriter(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.DateTime}, f)
	logger := zerolog.New(out).With().Timestamp().Str("service", "ai-trainer").Logger()
	return logger, func() { _ = f.Close() }, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func getenvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
