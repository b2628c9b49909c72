package engine

type cacheEntry struct {
	depth   int
	score   float64
	endProb float64
	gen     uint64
}

// TranspositionCache memoizes chance-node results for one worker. It is not
// safe for concurrent use; every dispatch unit owns its cache exclusively.
type TranspositionCache struct {
	generation uint64
	entries    map[Board]cacheEntry
	maxEntries int
}

const defaultCacheMaxEntries = 1 << 20

func NewTranspositionCache(maxEntries int) *TranspositionCache {
	if maxEntries <= 0 {
		maxEntries = defaultCacheMaxEntries
	}
	return &TranspositionCache{
		entries:    make(map[Board]cacheEntry),
		maxEntries: maxEntries,
	}
}

// Begin switches the cache to gen. Entries tagged with another generation
// stop matching; the map itself is only emptied once it outgrows maxEntries.
func (c *TranspositionCache) Begin(gen uint64) {
	c.generation = gen
	if len(c.entries) > c.maxEntries {
		clear(c.entries)
	}
}

func (c *TranspositionCache) Probe(b Board, depth int) (float64, float64, bool) {
	entry, ok := c.entries[b]
	if !ok || entry.gen != c.generation || entry.depth < depth {
		return 0, 0, false
	}
	return entry.score, entry.endProb, true
}

func (c *TranspositionCache) Store(b Board, depth int, score, endProb float64) {
	c.entries[b] = cacheEntry{depth: depth, score: score, endProb: endProb, gen: c.generation}
}

func (c *TranspositionCache) Len() int {
	return len(c.entries)
}

func (c *TranspositionCache) Generation() uint64 {
	return c.generation
}
