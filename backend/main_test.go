package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/thekrainbow/deep2048/engine"
)

func doRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRoutesPing(t *testing.T) {
	useFastConfig(t)
	h := newApp(testLogger()).routes()
	rec := doRequest(t, h, http.MethodGet, "/api/ping", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRoutesStartStatusStop(t *testing.T) {
	useFastConfig(t)
	a := newApp(testLogger())
	h := a.routes()

	rec := doRequest(t, h, http.MethodPost, "/api/start", map[string]any{"settings": map[string]any{"seed": 11, "max_rank": 6}})
	if rec.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var status StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Status != "running" || status.Seed != 11 {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.Board != formatBoard(engine.NewGame(11).Board()) {
		t.Fatalf("unexpected opening board %s", status.Board)
	}

	if !a.controller.Tick() {
		t.Fatalf("expected a turn")
	}
	rec = doRequest(t, h, http.MethodGet, "/api/turns", nil)
	var turns struct {
		Items []historyEntryDTO `json:"items"`
		Total int               `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &turns); err != nil {
		t.Fatalf("decode turns: %v", err)
	}
	if turns.Total != 1 || len(turns.Items) != 1 || turns.Items[0].Depth != 1 {
		t.Fatalf("unexpected turns %+v", turns)
	}

	rec = doRequest(t, h, http.MethodPost, "/api/stop", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stop: expected 200, got %d", rec.Code)
	}
	rec = doRequest(t, h, http.MethodPost, "/api/stop", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second stop: expected 409, got %d", rec.Code)
	}
}

func TestRoutesEvaluate(t *testing.T) {
	useFastConfig(t)
	h := newApp(testLogger()).routes()

	rec := doRequest(t, h, http.MethodPost, "/api/evaluate", evaluateRequest{Board: "0x1234_5678_9abc_def1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res evaluateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Direction != engine.DirNone.String() || res.EndProb != 1 {
		t.Fatalf("expected no move on a dead board, got %+v", res)
	}

	grid := engine.Board(0x0000_0000_0000_1100).Grid()
	rec = doRequest(t, h, http.MethodPost, "/api/evaluate", evaluateRequest{Grid: &grid, State: "low"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Board != "0x1100" || res.Direction == engine.DirNone.String() {
		t.Fatalf("unexpected evaluation %+v", res)
	}

	for _, bad := range []evaluateRequest{{Board: "zz"}, {Board: ""}, {Board: "0x11", State: "panic"}} {
		rec = doRequest(t, h, http.MethodPost, "/api/evaluate", bad)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %+v, got %d", bad, rec.Code)
		}
	}
}

func TestRoutesBatchAndReplays(t *testing.T) {
	useFastConfig(t)
	h := newApp(testLogger()).routes()

	rec := doRequest(t, h, http.MethodPost, "/api/batch", BatchRequest{Games: 0})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty batch, got %d", rec.Code)
	}
	rec = doRequest(t, h, http.MethodPost, "/api/batch", BatchRequest{Games: 2, MaxRank: 5})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var job BatchJob
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	rec = doRequest(t, h, http.MethodGet, "/api/batch/"+job.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected queued job to be found, got %d", rec.Code)
	}
	rec = doRequest(t, h, http.MethodGet, "/api/batch/batch-999", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown batch, got %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/replays", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec = doRequest(t, h, http.MethodGet, "/api/replays/missing.replay", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestBoardFromGridRoundTrip(t *testing.T) {
	b := engine.Board(0x3201_4564_1232_2151)
	got, err := boardFromGrid(b.Grid())
	if err != nil {
		t.Fatalf("boardFromGrid: %v", err)
	}
	if got != b {
		t.Fatalf("expected %s, got %s", formatBoard(b), formatBoard(got))
	}
	if _, err := boardFromGrid([4][4]int{{3}}); err == nil {
		t.Fatalf("expected error for a non power of two")
	}
}

func TestParseSearchState(t *testing.T) {
	for _, s := range []engine.SearchState{engine.ZeroProbDeath, engine.LowProbDeath, engine.HighProbDeath, engine.VeryHighProbDeath} {
		got, err := parseSearchState(s.String())
		if err != nil || got != s {
			t.Fatalf("expected %s, got %s (%v)", s, got, err)
		}
	}
	if got, err := parseSearchState(""); err != nil || got != engine.ZeroProbDeath {
		t.Fatalf("expected empty state to mean zero, got %s (%v)", got, err)
	}
}

func TestPaginate(t *testing.T) {
	items := []int{0, 1, 2, 3, 4}
	if got := paginate(items, 1, 2); len(got) != 2 || got[0] != 1 {
		t.Fatalf("unexpected page %v", got)
	}
	if got := paginate(items, 4, 10); len(got) != 1 {
		t.Fatalf("unexpected tail page %v", got)
	}
	if got := paginate(items, 9, 10); len(got) != 0 {
		t.Fatalf("expected empty page, got %v", got)
	}
}
