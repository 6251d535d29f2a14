package orm

import (
	"fmt"
	"os"

	"github.com/c2h5oh/datasize"
	"github.com/pelletier/go-toml/v2"
)

// Config is the ORM facade's tunable surface: cache sizing, prefetch
// throttling, and the two policy knobs spec.md leaves to the
// implementer (how often to snapshot automatically, and whether batch
// mode is the default). Parsed with pelletier/go-toml/v2, the same
// ecosystem choice the rest of the domain stack's config-shaped types
// use (see SPEC_FULL.md's AMBIENT STACK).
type Config struct {
	// DataDir is where a disk-backed backend (backend/bolt) keeps its
	// database file and keyframe blob store. Unused by backend/memory.
	DataDir string `toml:"data_dir"`

	// CacheBudget caps the historical cache's working set (spec.md §1's
	// "bounded in-memory working set"), expressed with
	// c2h5oh/datasize so config files can say "256MB" instead of a bare
	// byte count. No component reads it at present: the cache-arranger
	// is throttled only by PrefetchRatePerSec and PrefetchBurst.
	CacheBudget datasize.ByteSize `toml:"cache_budget"`

	// KeyframeInterval is how many turns may pass on a branch before
	// SetTurn triggers an automatic SnapKeyframe for every open graph
	// (spec.md §4.4's keyframe policy is left to the implementer; zero
	// disables automatic snapshotting entirely).
	KeyframeInterval int64 `toml:"keyframe_interval"`

	// BatchDefault seeds ORM.batchMode at Open time; Batch's scoped
	// guard can still toggle it for the duration of a callback.
	BatchDefault bool `toml:"batch_default"`

	// PrefetchRatePerSec/PrefetchBurst configure the CacheArranger's
	// golang.org/x/time/rate limiter.
	PrefetchRatePerSec float64 `toml:"prefetch_rate_per_sec"`
	PrefetchBurst      int     `toml:"prefetch_burst"`
}

// DefaultConfig returns reasonable defaults for a fresh in-process store
// (the memory backend, tests, short-lived tools).
func DefaultConfig() Config {
	return Config{
		CacheBudget:        256 * datasize.MB,
		KeyframeInterval:   100,
		BatchDefault:       false,
		PrefetchRatePerSec: 10,
		PrefetchBurst:      20,
	}
}

// LoadConfig reads a TOML file at path over DefaultConfig, so a config
// file only needs to mention the fields it wants to override.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("orm: read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("orm: parse config %s: %w", path, err)
	}
	return cfg, nil
}
