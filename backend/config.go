package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/exp/constraints"
	"gopkg.in/yaml.v3"

	"github.com/thekrainbow/deep2048/engine"
)

type Config struct {
	ListenAddr        string                  `json:"listen_addr" yaml:"listen_addr"`
	LogLevel          string                  `json:"log_level" yaml:"log_level"`
	AiLogSearchStats  bool                    `json:"ai_log_search_stats" yaml:"log_search_stats"`
	AiMinDepth        int                     `json:"ai_min_depth" yaml:"ai_min_depth"`
	AiMaxDepth        int                     `json:"ai_max_depth" yaml:"ai_max_depth"`
	AiProbCutoff      float64                 `json:"ai_prob_cutoff" yaml:"ai_prob_cutoff"`
	AiWorkers         int                     `json:"ai_workers" yaml:"ai_workers"`
	AiCacheMaxEntries int                     `json:"ai_cache_max_entries" yaml:"ai_cache_max_entries"`
	TickMs            int                     `json:"tick_ms" yaml:"tick_ms"`
	MaxRank           int                     `json:"max_rank" yaml:"max_rank"`
	Seed              uint32                  `json:"seed" yaml:"seed"`
	ReplayDir         string                  `json:"replay_dir" yaml:"replay_dir"`
	RecordReplays     bool                    `json:"record_replays" yaml:"record_replays"`
	BatchWorkers      int                     `json:"batch_workers" yaml:"batch_workers"`
	BatchQueueLimit   int                     `json:"batch_queue_limit" yaml:"batch_queue_limit"`
	BatchMaxGames     int                     `json:"batch_max_games" yaml:"batch_max_games"`
	HistoryLimit      int                     `json:"history_limit" yaml:"history_limit"`
	Heuristics        engine.HeuristicWeights `json:"heuristics" yaml:"heuristics"`
}

type ConfigStore struct {
	mu     sync.RWMutex
	config Config
}

func DefaultConfig() Config {
	return Config{
		ListenAddr:       ":8080",
		LogLevel:         "info",
		AiLogSearchStats: false,

		AiMinDepth:   engine.DefaultMinDepth,
		AiMaxDepth:   engine.DefaultMaxDepth,
		AiProbCutoff: engine.DefaultProbCutoff,
		// 0 follows GOMAXPROCS
		AiWorkers:         0,
		AiCacheMaxEntries: 1 << 20,

		TickMs:        50,
		MaxRank:       0,
		Seed:          0,
		ReplayDir:     "replays",
		RecordReplays: true,

		BatchWorkers:    1,
		BatchQueueLimit: 16,
		BatchMaxGames:   1000,
		HistoryLimit:    200,

		Heuristics: engine.DefaultHeuristicWeights(),
	}
}

var configStore = &ConfigStore{config: DefaultConfig()}

func GetConfig() Config {
	return configStore.Get()
}

func (c *ConfigStore) Get() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

func (c *ConfigStore) Update(newConfig Config) {
	c.mu.Lock()
	c.config = normalizeConfig(newConfig)
	c.mu.Unlock()
}

// LoadConfig builds the service configuration from defaults, an optional
// YAML file and DEEP2048_* environment overrides, in that order.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	applyEnvOverrides(&cfg, os.LookupEnv)
	return normalizeConfig(cfg), nil
}

func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup("DEEP2048_" + key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup("DEEP2048_" + key); ok {
			if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = parsed
			}
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup("DEEP2048_" + key); ok {
			if parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				*dst = parsed
			}
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup("DEEP2048_" + key); ok {
			if parsed, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				*dst = parsed
			}
		}
	}

	str("LISTEN_ADDR", &cfg.ListenAddr)
	str("LOG_LEVEL", &cfg.LogLevel)
	boolean("LOG_SEARCH_STATS", &cfg.AiLogSearchStats)
	integer("AI_MIN_DEPTH", &cfg.AiMinDepth)
	integer("AI_MAX_DEPTH", &cfg.AiMaxDepth)
	float("AI_PROB_CUTOFF", &cfg.AiProbCutoff)
	integer("AI_WORKERS", &cfg.AiWorkers)
	integer("AI_CACHE_MAX_ENTRIES", &cfg.AiCacheMaxEntries)
	integer("TICK_MS", &cfg.TickMs)
	integer("MAX_RANK", &cfg.MaxRank)
	str("REPLAY_DIR", &cfg.ReplayDir)
	boolean("RECORD_REPLAYS", &cfg.RecordReplays)
	integer("BATCH_WORKERS", &cfg.BatchWorkers)
	integer("BATCH_QUEUE_LIMIT", &cfg.BatchQueueLimit)
	integer("BATCH_MAX_GAMES", &cfg.BatchMaxGames)
	integer("HISTORY_LIMIT", &cfg.HistoryLimit)
	if v, ok := lookup("DEEP2048_SEED"); ok {
		if parsed, err := strconv.ParseUint(strings.TrimSpace(v), 0, 32); err == nil {
			cfg.Seed = uint32(parsed)
		}
	}
}

func clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func normalizeConfig(cfg Config) Config {
	def := DefaultConfig()
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = def.ListenAddr
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel)); err != nil || cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
	cfg.AiMinDepth = clamp(cfg.AiMinDepth, 1, engine.DefaultMaxDepth)
	cfg.AiMaxDepth = clamp(cfg.AiMaxDepth, cfg.AiMinDepth, 32)
	if cfg.AiProbCutoff <= 0 {
		cfg.AiProbCutoff = def.AiProbCutoff
	}
	cfg.AiProbCutoff = clamp(cfg.AiProbCutoff, 1e-9, 0.5)
	cfg.AiWorkers = clamp(cfg.AiWorkers, 0, 256)
	if cfg.AiCacheMaxEntries <= 0 {
		cfg.AiCacheMaxEntries = def.AiCacheMaxEntries
	}
	cfg.TickMs = clamp(cfg.TickMs, 1, 10000)
	cfg.MaxRank = clamp(cfg.MaxRank, 0, 15)
	cfg.BatchWorkers = clamp(cfg.BatchWorkers, 1, 64)
	if cfg.BatchQueueLimit <= 0 {
		cfg.BatchQueueLimit = def.BatchQueueLimit
	}
	if cfg.BatchMaxGames <= 0 {
		cfg.BatchMaxGames = def.BatchMaxGames
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}
	if cfg.Heuristics == (engine.HeuristicWeights{}) {
		cfg.Heuristics = def.Heuristics
	}
	return cfg
}

// engineConfig maps the service configuration onto the search engine.
func engineConfig(cfg Config, logger zerolog.Logger) engine.Config {
	heur := engine.DefaultHeuristicTable()
	if cfg.Heuristics != engine.DefaultHeuristicWeights() {
		heur = engine.NewHeuristicTable(cfg.Heuristics)
	}
	return engine.Config{
		Policy:          engine.DepthPolicy{MinDepth: cfg.AiMinDepth, MaxDepth: cfg.AiMaxDepth},
		Workers:         cfg.AiWorkers,
		CacheMaxEntries: cfg.AiCacheMaxEntries,
		ProbCutoff:      cfg.AiProbCutoff,
		Heuristic:       heur,
		LogSearchStats:  cfg.AiLogSearchStats,
		Logger:          logger,
	}
}
