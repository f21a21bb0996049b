package enricher

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"acestream-enricher/internal/platform/metrics"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

// Defaults for CacheConfig.
const (
	DefaultRefreshInterval = 300 * time.Second
	DefaultMaxPages        = 500
	DefaultConcurrency     = 4
)

// UnknownLabel returns the channel label used for a stream id that is not in
// the directory: "unknown_" followed by the first six characters of the
// lowercased id.
func UnknownLabel(id StreamID) string {
	s := strings.ToLower(string(id))
	if len(s) > 6 {
		s = s[:6]
	}
	return "unknown_" + s
}

// CacheConfig tunes a Cache. Zero values select the defaults.
type CacheConfig struct {
	RefreshInterval time.Duration
	MaxPages        int
	Concurrency     int

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// mapping is an immutable resolution snapshot. It is never modified after
// being stored in Cache.current.
type mapping struct {
	entries map[StreamID]string
	builtAt time.Time
}

// CacheInfo describes the current state of a Cache.
type CacheInfo struct {
	Entries     int       `json:"directory_entries"`
	BuiltAt     time.Time `json:"directory_built_at"`
	AttemptedAt time.Time `json:"directory_attempted_at"`
}

// Cache resolves stream ids to channel names from an in-memory snapshot of the
// directory. Resolve never blocks on the network; the snapshot is replaced
// wholesale by a successful rebuild and left untouched by a failed one.
//
// Resolve and Lookup are safe for concurrent use with rebuilds. Rebuilds are
// serialized.
type Cache struct {
	dir     Directory
	cfg     CacheConfig
	log     *slog.Logger
	metrics *metrics.Metrics

	current     atomic.Pointer[mapping]
	attemptedAt atomic.Int64 // unix nanos of the last rebuild attempt, 0 if none

	mu sync.Mutex // serializes rebuilds
}

// NewCache returns an empty Cache backed by dir. m may be nil.
func NewCache(dir Directory, cfg CacheConfig, log *slog.Logger, m *metrics.Metrics) *Cache {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	c := &Cache{
		dir:     dir,
		cfg:     cfg,
		log:     log.With("component", "directory_cache"),
		metrics: m,
	}
	c.current.Store(&mapping{entries: map[StreamID]string{}})
	return c
}

// Lookup returns the channel name for id and whether it was found.
// The lookup is case-insensitive.
func (c *Cache) Lookup(id StreamID) (string, bool) {
	name, ok := c.current.Load().entries[StreamID(strings.ToLower(string(id)))]
	return name, ok
}

// Resolve returns the channel name for id, or UnknownLabel(id) on a miss.
func (c *Cache) Resolve(id StreamID) string {
	if name, ok := c.Lookup(id); ok {
		return name
	}
	return UnknownLabel(id)
}

// Info reports the size and timestamps of the current snapshot.
func (c *Cache) Info() CacheInfo {
	m := c.current.Load()
	return CacheInfo{Entries: len(m.entries), BuiltAt: m.builtAt, AttemptedAt: c.lastAttempt()}
}

// RefreshIfDue rebuilds the cache if it is empty or if the refresh interval
// has elapsed since the later of the last successful build and the last
// attempt. It reports whether a rebuild was attempted.
func (c *Cache) RefreshIfDue(ctx context.Context, now time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.dueLocked(now) {
		return false, nil
	}
	return true, c.rebuildLocked(ctx, now)
}

// Rebuild unconditionally rebuilds the cache from the directory.
func (c *Cache) Rebuild(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rebuildLocked(ctx, c.cfg.Now())
}

func (c *Cache) dueLocked(now time.Time) bool {
	m := c.current.Load()
	if len(m.entries) == 0 {
		return true
	}
	last := m.builtAt
	if a := c.lastAttempt(); a.After(last) {
		last = a
	}
	return now.Sub(last) >= c.cfg.RefreshInterval
}

func (c *Cache) lastAttempt() time.Time {
	ns := c.attemptedAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// rebuildLocked walks the directory and swaps in a new mapping. A listing
// failure aborts without touching the current mapping; per-channel failures
// only drop that channel's entries.
// Caller must hold c.mu.
func (c *Cache) rebuildLocked(ctx context.Context, now time.Time) error {
	c.attemptedAt.Store(now.UnixNano())
	start := time.Now()

	channels, err := c.listAll(ctx)
	if err != nil {
		c.metrics.ObserveRebuild(false, 0, time.Time{})
		c.log.Error("directory rebuild aborted, keeping previous mapping",
			slog.String("error", err.Error()),
			slog.Int("entries", len(c.current.Load().entries)))
		return errors.Wrap(err, "list directory")
	}

	entries, failed := c.fetchStreams(ctx, channels)
	if err := ctx.Err(); err != nil {
		c.metrics.ObserveRebuild(false, 0, time.Time{})
		return errors.Wrap(err, "directory rebuild interrupted")
	}

	c.current.Store(&mapping{entries: entries, builtAt: now})
	c.metrics.ObserveRebuild(true, len(entries), now)
	c.metrics.AddChannelFetchFailures(failed)

	c.log.Info("directory rebuilt",
		slog.Int("channels", len(channels)),
		slog.Int("entries", len(entries)),
		slog.Int("failed_channels", failed),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return nil
}

// listAll collects every channel from the paginated listing, stopping at an
// empty page, at the declared last page, or at the page cap.
func (c *Cache) listAll(ctx context.Context) ([]Channel, error) {
	var channels []Channel
	for page := 1; ; page++ {
		if page > c.cfg.MaxPages {
			c.log.Warn("directory page cap reached, using channels listed so far",
				slog.Int("max_pages", c.cfg.MaxPages))
			return channels, nil
		}

		p, err := c.dir.ListChannels(ctx, page)
		if err != nil {
			return nil, errors.Wrapf(err, "page %d", page)
		}
		if len(p.Channels) == 0 {
			return channels, nil
		}
		channels = append(channels, p.Channels...)
		if p.TotalPages >= 0 && page >= p.TotalPages {
			return channels, nil
		}
	}
}

// fetchStreams resolves every channel's stream list with bounded
// concurrency and merges the results in listing order, so a stream id
// claimed by two channels maps to the later one. It returns the new entries
// and the number of channels whose fetch failed.
func (c *Cache) fetchStreams(ctx context.Context, channels []Channel) (map[StreamID]string, int) {
	results := make([][]StreamID, len(channels))
	errs := make([]error, len(channels))

	var g errgroup.Group
	g.SetLimit(c.cfg.Concurrency)
	for i, ch := range channels {
		if ch.ID == "" {
			continue
		}
		g.Go(func() error {
			results[i], errs[i] = c.dir.ChannelStreams(ctx, ch.ID)
			return nil
		})
	}
	_ = g.Wait()

	entries := make(map[StreamID]string)
	failed := 0
	for i, ch := range channels {
		if ch.ID == "" {
			continue
		}
		if errs[i] != nil {
			failed++
			c.log.Warn("channel stream fetch failed, omitting channel",
				slog.String("channel_id", string(ch.ID)),
				slog.String("error", errs[i].Error()))
			continue
		}
		name := strings.TrimSpace(ch.Name)
		if name == "" {
			name = "unknown_" + string(ch.ID)
		}
		for _, id := range results[i] {
			entries[StreamID(strings.ToLower(string(id)))] = name
		}
	}
	return entries, failed
}
