package enricher

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"acestream-enricher/internal/platform/metrics"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Service runs one scrape cycle: refresh the directory if due, fetch and
// parse the usage feed, aggregate against the cache, publish.
type Service struct {
	source  Source
	cache   *Cache
	pub     *Publisher
	log     *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu   sync.Mutex
	last CycleStatus

	// statusUsers is the user family from the last successful status fetch,
	// held over while the status endpoint is failing.
	statusUsers map[UserChannel]int
}

// NewService wires a Service. m may be nil.
func NewService(source Source, cache *Cache, pub *Publisher, log *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		source:  source,
		cache:   cache,
		pub:     pub,
		log:     log.With("component", "cycle"),
		metrics: m,
		now:     time.Now,
	}
}

// RunCycle performs one cycle. A usage feed failure returns an error marked
// ErrFetchFailed or ErrMalformedResponse and leaves the published gauges
// untouched. Directory and status failures are logged and do not fail the
// cycle.
func (s *Service) RunCycle(ctx context.Context) error {
	start := s.now()
	log := s.log.With(slog.String("cycle_id", uuid.NewString()))

	if rebuilt, err := s.cache.RefreshIfDue(ctx, start); err != nil {
		log.Warn("directory refresh failed, resolving against previous mapping",
			slog.String("error", err.Error()))
	} else if rebuilt {
		log.Debug("directory refreshed")
	}

	body, err := s.source.Usage(ctx)
	if err != nil {
		s.finish(start, metrics.CycleFetchError, 0)
		log.Error("usage feed fetch failed, skipping cycle", slog.String("error", err.Error()))
		return errors.Wrap(err, "fetch usage feed")
	}

	snap, unresolved := Aggregate(ParseExposition(body), s.cache.Lookup)

	statusObs, statusEnabled, statusErr := s.source.Status(ctx)
	switch {
	case statusErr != nil:
		log.Warn("status fetch failed, holding status-derived user gauges", slog.String("error", statusErr.Error()))
	case statusEnabled:
		statusSnap, missed := Aggregate(slices.Values(statusObs), s.cache.Lookup)
		s.statusUsers = statusSnap.UserChannels
		unresolved += missed
	default:
		s.statusUsers = nil
	}
	mergeMax(snap.UserChannels, s.statusUsers)

	s.pub.Publish(snap)
	s.metrics.SetUnresolved(unresolved)
	s.finish(start, metrics.CycleOK, len(snap.Channels))

	log.Debug("cycle published",
		slog.Int("channels", len(snap.Channels)),
		slog.Int("user_channels", len(snap.UserChannels)),
		slog.Int("unresolved", unresolved))
	return nil
}

// Recovered records a cycle that ended in a panic.
func (s *Service) Recovered(start time.Time) {
	s.finish(start, metrics.CycleError, 0)
}

// LastCycle returns the status of the most recent cycle.
func (s *Service) LastCycle() CycleStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Service) finish(start time.Time, result string, channels int) {
	s.metrics.ObserveCycle(result, s.now().Sub(start))
	s.mu.Lock()
	s.last = CycleStatus{At: start, Result: result, Channels: channels}
	s.mu.Unlock()
}
