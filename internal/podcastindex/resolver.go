package podcastindex

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/dgnsrekt/helipad/internal/metrics"
)

// Resolver memoizes directory lookups of remote items. Each distinct guid
// pair is fetched at most once while it stays in the cache, whether or not
// the lookup succeeded.
type Resolver struct {
	fetcher Fetcher
	cache   Cache
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewResolver(fetcher Fetcher, cache Cache, m *metrics.Metrics, logger *zap.Logger) *Resolver {
	return &Resolver{
		fetcher: fetcher,
		cache:   cache,
		metrics: m,
		logger:  logger,
	}
}

// Resolve returns a copy of the cached or freshly fetched episode.
func (r *Resolver) Resolve(ctx context.Context, podcastGUID, episodeGUID string) (*Episode, bool) {
	key := CacheKey(podcastGUID, episodeGUID)

	if ep, ok := r.cache.Get(key); ok {
		r.metrics.RemoteLookup("cache_hit")
		r.logger.Debug("remote podcast/episode from cache",
			zap.String("key", key),
			zap.Bool("found", ep != nil),
		)
		return copyEpisode(ep)
	}

	ep, err := r.fetcher.EpisodeByGUID(ctx, podcastGUID, episodeGUID)
	switch {
	case err == nil:
		r.metrics.RemoteLookup("fetched")
		r.logger.Info("remote podcast/episode from API",
			zap.String("podcastGuid", podcastGUID),
			zap.String("episodeGuid", episodeGUID),
			zap.String("podcast", ep.Podcast),
			zap.String("episode", ep.Episode),
		)
	case errors.Is(err, ErrNotFound):
		r.metrics.RemoteLookup("not_found")
		r.logger.Info("remote podcast/episode not found",
			zap.String("podcastGuid", podcastGUID),
			zap.String("episodeGuid", episodeGUID),
		)
		ep = nil
	default:
		r.metrics.RemoteLookup("failed")
		r.logger.Warn("error retrieving remote podcast/episode",
			zap.String("podcastGuid", podcastGUID),
			zap.String("episodeGuid", episodeGUID),
			zap.Error(err),
		)
		ep = nil
	}

	r.cache.Add(key, ep)
	return copyEpisode(ep)
}

func copyEpisode(ep *Episode) (*Episode, bool) {
	if ep == nil {
		return nil, false
	}
	c := *ep
	return &c, true
}
