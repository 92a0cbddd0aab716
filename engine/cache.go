package engine

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// adapterKey identifies one materialized adapter instance.
type adapterKey struct {
	kind        string // "stt", "diarization", "tts"
	engine      string
	modelPath   string
	device      string
	computeType string
}

func (k adapterKey) String() string {
	return fmt.Sprintf("%s:%s:%s:%s:%s", k.kind, k.engine, k.modelPath, k.device, k.computeType)
}

// Cache holds constructed adapter instances keyed by (kind, engine, model,
// device, compute type), evicting ones that have been idle past idleTimeout.
// This is what keeps a hot model resident across consecutive jobs without
// holding it forever once traffic for it stops.
type Cache struct {
	mu       sync.Mutex
	byString *lru.LRU[string, any]
}

// NewCache builds a Cache that evicts entries idle for longer than idleTimeout.
// size bounds how many distinct adapters can be resident at once.
func NewCache(size int, idleTimeout time.Duration) *Cache {
	if size < 1 {
		size = 1
	}
	return &Cache{byString: lru.NewLRU[string, any](size, func(key string, value any) {
		if closer, ok := value.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
	}, idleTimeout)}
}

// GetOrCreate returns the cached adapter for key, constructing it with build
// if absent. Touching an existing entry resets its idle timer.
func (c *Cache) GetOrCreate(kind, engine, modelPath, device, computeType string, build func() (any, error)) (any, error) {
	key := adapterKey{kind, engine, modelPath, device, computeType}.String()

	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.byString.Get(key); ok {
		c.byString.Add(key, v) // re-adding renews the entry's expiry
		return v, nil
	}
	v, err := build()
	if err != nil {
		return nil, err
	}
	c.byString.Add(key, v)
	return v, nil
}

// Len reports how many adapters are currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byString.Len()
}
