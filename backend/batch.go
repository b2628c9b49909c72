package main

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/thekrainbow/deep2048/engine"
)

var (
	ErrBatchLimit   = errors.New("batch queue full")
	ErrInvalidBatch = errors.New("invalid batch request")
)

type BatchRequest struct {
	Games   int    `json:"games"`
	MaxRank int    `json:"max_rank"`
	Seed    uint32 `json:"seed"`
	Record  bool   `json:"record"`
}

type BatchStatus string

const (
	BatchQueued    BatchStatus = "queued"
	BatchRunning   BatchStatus = "running"
	BatchDone      BatchStatus = "done"
	BatchCancelled BatchStatus = "cancelled"
	BatchFailed    BatchStatus = "failed"
)

type BatchSummary struct {
	Completed int     `json:"completed"`
	Reached   int     `json:"reached"`
	AvgScore  float64 `json:"avg_score"`
	MaxScore  int     `json:"max_score"`
	MaxRank   int     `json:"max_rank"`
	AvgTurns  float64 `json:"avg_turns"`
	ElapsedMs int64   `json:"elapsed_ms"`
}

type BatchJob struct {
	ID         string              `json:"id"`
	Request    BatchRequest        `json:"request"`
	Status     BatchStatus         `json:"status"`
	Results    []engine.GameResult `json:"results"`
	Summary    BatchSummary        `json:"summary"`
	Error      string              `json:"error,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
}

type batchEvent struct {
	Event string       `json:"event"`
	JobID string       `json:"job_id"`
	Game  int          `json:"game,omitempty"`
	Total int          `json:"total"`
	Score int          `json:"score,omitempty"`
	Job   BatchSummary `json:"summary"`
	At    int64        `json:"at_ms"`
}

// batchRunner plays queued batches of full games in the background. All
// batches share the engine handed out by engineFn, whose worker pool bounds
// the total search parallelism.
type batchRunner struct {
	mu       sync.Mutex
	jobs     map[string]*BatchJob
	order    []string
	queue    chan *BatchJob
	nextID   int
	engineFn func() *engine.Engine
	replays  *replayStore
	hub      *BatchHub
	log      zerolog.Logger
}

func newBatchRunner(engineFn func() *engine.Engine, replays *replayStore, logger zerolog.Logger) *batchRunner {
	return &batchRunner{
		jobs:     make(map[string]*BatchJob),
		queue:    make(chan *BatchJob, GetConfig().BatchQueueLimit),
		engineFn: engineFn,
		replays:  replays,
		log:      logger,
	}
}

func (r *batchRunner) SetHub(hub *BatchHub) {
	r.mu.Lock()
	r.hub = hub
	r.mu.Unlock()
}

func batchWorkerCount(config Config, cpuCount int) int {
	if cpuCount < 1 {
		cpuCount = 1
	}
	workers := config.BatchWorkers
	if workers <= 0 {
		workers = 1
	}
	if workers > cpuCount {
		workers = cpuCount
	}
	return workers
}

func (r *batchRunner) Start(ctx context.Context) {
	count := batchWorkerCount(GetConfig(), runtime.NumCPU())
	r.log.Info().Int("workers", count).Msg("starting batch workers")
	for i := 0; i < count; i++ {
		go r.worker(ctx)
	}
}

func (r *batchRunner) Submit(req BatchRequest) (BatchJob, error) {
	maxGames := GetConfig().BatchMaxGames
	if req.Games <= 0 || req.Games > maxGames {
		return BatchJob{}, fmt.Errorf("%w: games must be in [1, %d]", ErrInvalidBatch, maxGames)
	}
	if req.MaxRank < 0 || req.MaxRank > 15 {
		return BatchJob{}, fmt.Errorf("%w: max_rank must be in [0, 15]", ErrInvalidBatch)
	}

	r.mu.Lock()
	r.nextID++
	job := &BatchJob{
		ID:        fmt.Sprintf("batch-%d", r.nextID),
		Request:   req,
		Status:    BatchQueued,
		CreatedAt: time.Now(),
	}
	select {
	case r.queue <- job:
	default:
		r.mu.Unlock()
		return BatchJob{}, ErrBatchLimit
	}
	r.jobs[job.ID] = job
	r.order = append(r.order, job.ID)
	snapshot := r.snapshotLocked(job)
	r.mu.Unlock()

	r.log.Info().Str("job", job.ID).Int("games", req.Games).Int("max_rank", req.MaxRank).Msg("batch queued")
	r.publish(batchEvent{Event: "queued", JobID: job.ID, Total: req.Games})
	return snapshot, nil
}

func (r *batchRunner) Jobs() []BatchJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Map(r.order, func(id string, _ int) BatchJob {
		return r.snapshotLocked(r.jobs[id])
	})
}

func (r *batchRunner) Job(id string) (BatchJob, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return BatchJob{}, false
	}
	return r.snapshotLocked(job), true
}

func (r *batchRunner) snapshotLocked(job *BatchJob) BatchJob {
	out := *job
	out.Results = append([]engine.GameResult(nil), job.Results...)
	return out
}

func (r *batchRunner) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-r.queue:
			r.run(ctx, job)
		}
	}
}

func (r *batchRunner) run(ctx context.Context, job *BatchJob) {
	r.mu.Lock()
	job.Status = BatchRunning
	job.StartedAt = time.Now()
	req := job.Request
	r.mu.Unlock()
	r.publish(batchEvent{Event: "started", JobID: job.ID, Total: req.Games})

	eng := r.engineFn()
	status := BatchDone
	var runErr error
	for i := 0; i < req.Games; i++ {
		res, err := r.playOne(ctx, eng, req, i)
		if err != nil {
			runErr = err
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				status = BatchCancelled
			} else {
				status = BatchFailed
			}
			break
		}
		r.mu.Lock()
		job.Results = append(job.Results, res)
		job.Summary = summarizeBatch(job.Results, time.Since(job.StartedAt))
		summary := job.Summary
		r.mu.Unlock()
		r.publish(batchEvent{Event: "game", JobID: job.ID, Game: i + 1, Total: req.Games, Score: res.Score, Job: summary})
	}

	r.mu.Lock()
	job.Status = status
	job.FinishedAt = time.Now()
	job.Summary = summarizeBatch(job.Results, job.FinishedAt.Sub(job.StartedAt))
	if runErr != nil {
		job.Error = runErr.Error()
	}
	summary := job.Summary
	r.mu.Unlock()

	evt := r.log.Info()
	if status == BatchFailed {
		evt = r.log.Error().Err(runErr)
	}
	evt.Str("job", job.ID).
		Str("status", string(status)).
		Int("completed", summary.Completed).
		Int("reached", summary.Reached).
		Float64("avg_score", summary.AvgScore).
		Int("max_score", summary.MaxScore).
		Msg("batch finished")
	r.publish(batchEvent{Event: string(status), JobID: job.ID, Total: req.Games, Job: summary})
}

func (r *batchRunner) playOne(ctx context.Context, eng *engine.Engine, req BatchRequest, index int) (engine.GameResult, error) {
	game := engine.NewGame(batchSeed(req.Seed, index))
	var sink engine.TurnSink
	if req.Record && r.replays != nil {
		w, name, err := r.replays.Create(game.Seed())
		if err != nil {
			return engine.GameResult{}, fmt.Errorf("open replay: %w", err)
		}
		defer func() {
			if err := w.Close(); err != nil {
				r.log.Error().Err(err).Str("replay", name).Msg("closing replay failed")
			}
		}()
		sink = w
	}
	return game.Play(ctx, eng, req.MaxRank, sink)
}

// batchSeed gives game index of a batch its seed. A zero base draws a fresh
// random seed for every game.
func batchSeed(base uint32, index int) uint32 {
	if base == 0 {
		return randomSeed()
	}
	seed := base + uint32(index)
	if seed == 0 {
		seed = 1
	}
	return seed
}

func summarizeBatch(results []engine.GameResult, elapsed time.Duration) BatchSummary {
	summary := BatchSummary{
		Completed: len(results),
		ElapsedMs: elapsed.Milliseconds(),
	}
	if len(results) == 0 {
		return summary
	}
	n := float64(len(results))
	summary.Reached = lo.CountBy(results, func(r engine.GameResult) bool { return r.Reached })
	summary.AvgScore = float64(lo.SumBy(results, func(r engine.GameResult) int { return r.Score })) / n
	summary.AvgTurns = float64(lo.SumBy(results, func(r engine.GameResult) int { return r.Turns })) / n
	best := lo.MaxBy(results, func(a, b engine.GameResult) bool { return a.Score > b.Score })
	summary.MaxScore = best.Score
	summary.MaxRank = lo.Max(lo.Map(results, func(r engine.GameResult, _ int) int { return r.MaxRank }))
	return summary
}

func (r *batchRunner) publish(evt batchEvent) {
	r.mu.Lock()
	hub := r.hub
	r.mu.Unlock()
	if hub == nil {
		return
	}
	evt.At = time.Now().UnixMilli()
	hub.Publish(evt)
}
