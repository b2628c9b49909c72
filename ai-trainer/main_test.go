package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestTrainer(t *testing.T) *trainer {
	t.Helper()
	return &trainer{
		logger:       zerolog.Nop(),
		snapshotPath: filepath.Join(t.TempDir(), "td.gob"),
		pause:        time.Millisecond,
		learnerCfg:   defaultLearnerConfig(),
		status:       trainerStatus{Phase: "idle"},
	}
}

// waitTraining blocks until the current job, if any, has finished.
func waitTraining(tr *trainer) {
	tr.jobMu.Lock()
	done := tr.jobDone
	tr.jobMu.Unlock()
	if done != nil {
		<-done
	}
}

func post(h http.Handler, path string) int {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
	return rec.Code
}

func TestTrainerStartStop(t *testing.T) {
	tr := newTestTrainer(t)
	h := tr.routes()

	if code := post(h, "/api/trainer/stop"); code != http.StatusConflict {
		t.Fatalf("expected 409 when idle, got %d", code)
	}
	if code := post(h, "/api/trainer/start"); code != http.StatusOK {
		t.Fatalf("expected 200 on start, got %d", code)
	}
	if code := post(h, "/api/trainer/start"); code != http.StatusConflict {
		t.Fatalf("expected 409 on second start, got %d", code)
	}
	if code := post(h, "/api/trainer/stop"); code != http.StatusOK {
		t.Fatalf("expected 200 on stop, got %d", code)
	}

	status := tr.getStatus()
	if status.Running || status.Phase != "idle" {
		t.Fatalf("expected idle after stop, got %+v", status)
	}
	if _, err := os.Stat(tr.snapshotPath); err != nil {
		t.Fatalf("expected snapshot on stop: %v", err)
	}
}

func TestTrainerMaxGames(t *testing.T) {
	tr := newTestTrainer(t)
	tr.maxGames = 3
	tr.pause = 0
	if err := tr.startTraining(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitTraining(tr)
	status := tr.getStatus()
	if status.GamesPlayed != 3 || status.LastGame == nil {
		t.Fatalf("unexpected status %+v", status)
	}

	// A second run resumes from the snapshot.
	if err := tr.startTraining(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	waitTraining(tr)
	if got := tr.getStatus().GamesPlayed; got != 6 {
		t.Fatalf("expected 6 games after resume, got %d", got)
	}
}

func TestGetenvHelpers(t *testing.T) {
	t.Setenv("TD_TEST_INT", "12")
	t.Setenv("TD_TEST_BAD", "x")
	t.Setenv("TD_TEST_FLOAT", "0.5")
	t.Setenv("TD_TEST_BOOL", "true")
	if getenvInt("TD_TEST_INT", 1) != 12 || getenvInt("TD_TEST_BAD", 1) != 1 {
		t.Fatalf("getenvInt mismatch")
	}
	if getenvFloat("TD_TEST_FLOAT", 1) != 0.5 || getenvFloat("TD_TEST_BAD", 2) != 2 {
		t.Fatalf("getenvFloat mismatch")
	}
	if !getenvBool("TD_TEST_BOOL", false) || getenvBool("TD_TEST_BAD", false) {
		t.Fatalf("getenvBool mismatch")
	}
	if getenv("TD_TEST_MISSING", "x") != "x" {
		t.Fatalf("getenv fallback mismatch")
	}
}
