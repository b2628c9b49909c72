package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/thekrainbow/deep2048/engine"
)

func TestBatchWorkerCountDefaultsToSingleWorker(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BatchWorkers = 0
	if got := batchWorkerCount(cfg, 8); got != 1 {
		t.Fatalf("expected 1 worker by default, got %d", got)
	}
}

func TestBatchWorkerCountCapsAtCPUCount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BatchWorkers = 64
	if got := batchWorkerCount(cfg, 6); got != 6 {
		t.Fatalf("expected worker count capped to cpu count, got %d", got)
	}
}

func TestBatchWorkerCountRespectsConfiguredValue(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BatchWorkers = 3
	if got := batchWorkerCount(cfg, 8); got != 3 {
		t.Fatalf("expected configured worker count, got %d", got)
	}
}

func TestBatchSeedIsSequentialFromBase(t *testing.T) {
	if got := batchSeed(100, 0); got != 100 {
		t.Fatalf("expected base seed, got %d", got)
	}
	if got := batchSeed(100, 4); got != 104 {
		t.Fatalf("expected base+index, got %d", got)
	}
	if got := batchSeed(^uint32(0), 1); got != 1 {
		t.Fatalf("expected wrapped zero seed to become 1, got %d", got)
	}
	if got := batchSeed(0, 3); got == 0 {
		t.Fatalf("expected random non-zero seed")
	}
}

func TestSummarizeBatch(t *testing.T) {
	results := []engine.GameResult{
		{Score: 100, Turns: 10, MaxRank: 5},
		{Score: 300, Turns: 30, MaxRank: 7, Reached: true},
		{Score: 200, Turns: 20, MaxRank: 6},
	}
	got := summarizeBatch(results, 1500*time.Millisecond)
	if got.Completed != 3 || got.Reached != 1 {
		t.Fatalf("unexpected counts %+v", got)
	}
	if got.AvgScore != 200 || got.AvgTurns != 20 {
		t.Fatalf("unexpected averages %+v", got)
	}
	if got.MaxScore != 300 || got.MaxRank != 7 {
		t.Fatalf("unexpected maxima %+v", got)
	}
	if got.ElapsedMs != 1500 {
		t.Fatalf("expected 1500ms, got %d", got.ElapsedMs)
	}
	if empty := summarizeBatch(nil, 0); empty.Completed != 0 || empty.AvgScore != 0 {
		t.Fatalf("unexpected empty summary %+v", empty)
	}
}

func TestBatchSubmitValidatesRequest(t *testing.T) {
	useFastConfig(t)
	r := newBatchRunner(func() *engine.Engine { return nil }, nil, testLogger())
	for _, req := range []BatchRequest{{Games: 0}, {Games: GetConfig().BatchMaxGames + 1}, {Games: 1, MaxRank: 16}} {
		if _, err := r.Submit(req); !errors.Is(err, ErrInvalidBatch) {
			t.Fatalf("expected ErrInvalidBatch for %+v, got %v", req, err)
		}
	}
	if len(r.Jobs()) != 0 {
		t.Fatalf("expected rejected jobs not to be listed")
	}
}

func TestBatchSubmitRejectsWhenQueueFull(t *testing.T) {
	cfg := useFastConfig(t)
	cfg.BatchQueueLimit = 1
	configStore.Update(cfg)

	r := newBatchRunner(func() *engine.Engine { return nil }, nil, testLogger())
	if _, err := r.Submit(BatchRequest{Games: 1}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := r.Submit(BatchRequest{Games: 1}); !errors.Is(err, ErrBatchLimit) {
		t.Fatalf("expected ErrBatchLimit, got %v", err)
	}
	jobs := r.Jobs()
	if len(jobs) != 1 || jobs[0].Status != BatchQueued {
		t.Fatalf("unexpected jobs %+v", jobs)
	}
}

func TestBatchRunPlaysEveryGame(t *testing.T) {
	useFastConfig(t)
	eng := engine.New(engineConfig(GetConfig(), testLogger()))
	store := newReplayStore(t.TempDir())
	r := newBatchRunner(func() *engine.Engine { return eng }, store, testLogger())

	job, err := r.Submit(BatchRequest{Games: 2, MaxRank: 6, Seed: 11, Record: true})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	r.run(context.Background(), <-r.queue)

	got, ok := r.Job(job.ID)
	if !ok {
		t.Fatalf("job %s not found", job.ID)
	}
	if got.Status != BatchDone {
		t.Fatalf("expected done, got %s (%s)", got.Status, got.Error)
	}
	if len(got.Results) != 2 || got.Summary.Completed != 2 {
		t.Fatalf("expected 2 results, got %d", len(got.Results))
	}
	if got.Results[0].Seed != 11 || got.Results[1].Seed != 12 {
		t.Fatalf("unexpected seeds %d, %d", got.Results[0].Seed, got.Results[1].Seed)
	}
	for _, res := range got.Results {
		if !res.Reached && res.MaxRank >= 6 {
			t.Fatalf("game reached rank %d without being flagged", res.MaxRank)
		}
	}
	if !got.Results[0].Reached {
		t.Fatalf("expected seed 11 to reach rank 6")
	}

	items, err := store.List()
	if err != nil {
		t.Fatalf("list replays: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected a replay per game, got %d", len(items))
	}
}

func TestBatchRunCancelled(t *testing.T) {
	useFastConfig(t)
	eng := engine.New(engineConfig(GetConfig(), testLogger()))
	r := newBatchRunner(func() *engine.Engine { return eng }, nil, testLogger())
	job, err := r.Submit(BatchRequest{Games: 3, Seed: 5})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.run(ctx, <-r.queue)

	got, _ := r.Job(job.ID)
	if got.Status != BatchCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}
	if len(got.Results) != 0 {
		t.Fatalf("expected no finished games, got %d", len(got.Results))
	}
}
