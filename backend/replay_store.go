package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/thekrainbow/deep2048/engine"
	"github.com/thekrainbow/deep2048/replay"
)

var dockerCacheDir = "/cache_logs"

const replayExt = ".replay"

var ErrUnknownReplay = errors.New("unknown replay")

type replayStore struct {
	dir string
}

type replayInfo struct {
	Name       string `json:"name"`
	SizeBytes  int64  `json:"size_bytes"`
	Records    int64  `json:"records"`
	ModifiedAt string `json:"modified_at"`
}

func newReplayStore(dir string) *replayStore {
	return &replayStore{dir: resolveReplayDir(dir)}
}

func resolveReplayDir(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if stat, err := os.Stat(dockerCacheDir); err == nil && stat.IsDir() {
		return filepath.Join(dockerCacheDir, path)
	}
	return path
}

func (s *replayStore) Dir() string {
	return s.dir
}

func (s *replayStore) Create(seed uint32) (*replay.Writer, string, error) {
	if s.dir == "" {
		return nil, "", errors.New("replay dir not configured")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, "", fmt.Errorf("create replay dir: %w", err)
	}
	name := fmt.Sprintf("game-%s-%08x%s", time.Now().UTC().Format("20060102-150405.000"), seed, replayExt)
	w, err := replay.Create(filepath.Join(s.dir, name))
	if err != nil {
		return nil, "", err
	}
	return w, name, nil
}

// path maps a replay name onto the store directory. Names that could escape
// the directory are rejected as unknown.
func (s *replayStore) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, replayExt) {
		return "", fmt.Errorf("%w: %q", ErrUnknownReplay, name)
	}
	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %q", ErrUnknownReplay, name)
		}
		return "", err
	}
	return path, nil
}

func (s *replayStore) List() ([]replayInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []replayInfo{}, nil
		}
		return nil, fmt.Errorf("list replays: %w", err)
	}
	out := make([]replayInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), replayExt) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		out = append(out, replayInfo{
			Name:       entry.Name(),
			SizeBytes:  info.Size(),
			Records:    info.Size() / replay.RecordSize,
			ModifiedAt: info.ModTime().UTC().Format(time.RFC3339),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name > out[j].Name
	})
	return out, nil
}

func (s *replayStore) Records(name string) ([]engine.TurnRecord, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	return replay.ReadFile(path)
}

func (s *replayStore) Summary(name string) (replay.Summary, error) {
	records, err := s.Records(name)
	if err != nil {
		return replay.Summary{}, err
	}
	return replay.Summarize(records), nil
}
