package main

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

// useFastConfig installs a shallow search config for the duration of the
// test and keeps replays inside a temp dir.
func useFastConfig(t *testing.T) Config {
	t.Helper()
	prev := GetConfig()
	oldDocker := dockerCacheDir
	dockerCacheDir = filepath.Join(t.TempDir(), "missing")

	cfg := DefaultConfig()
	cfg.AiMinDepth = 1
	cfg.AiMaxDepth = 1
	cfg.AiWorkers = 2
	cfg.AiCacheMaxEntries = 1 << 12
	cfg.ReplayDir = t.TempDir()
	cfg.RecordReplays = false
	configStore.Update(cfg)
	t.Cleanup(func() {
		configStore.Update(prev)
		dockerCacheDir = oldDocker
	})
	return GetConfig()
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
