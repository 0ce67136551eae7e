package podcastindex

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache stores resolved episodes by guid pair. A nil value records a lookup
// that found nothing so it is not repeated. Implementations must be safe for
// concurrent use.
type Cache interface {
	Get(key string) (*Episode, bool)
	Add(key string, ep *Episode)
	Len() int
}

// CacheKey joins the two guids with an underscore. Distinct pairs can map to
// the same key (podcast "a_b" with episode "c" and podcast "a" with episode
// "b_c"); such pairs share an entry.
func CacheKey(podcastGUID, episodeGUID string) string {
	return podcastGUID + "_" + episodeGUID
}

// LRUCache is a fixed-capacity least-recently-used Cache.
type LRUCache struct {
	entries *lru.Cache[string, *Episode]
}

func NewLRUCache(size int) (*LRUCache, error) {
	entries, err := lru.New[string, *Episode](size)
	if err != nil {
		return nil, fmt.Errorf("creating lru cache: %w", err)
	}
	return &LRUCache{entries: entries}, nil
}

func (c *LRUCache) Get(key string) (*Episode, bool) {
	return c.entries.Get(key)
}

func (c *LRUCache) Add(key string, ep *Episode) {
	c.entries.Add(key, ep)
}

func (c *LRUCache) Len() int {
	return c.entries.Len()
}
