package images

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type cachedImage struct {
	data    []byte
	modTime time.Time
}

// Cached keeps recently read images in memory in front of a slower store.
// Saves go straight through and drop the cached copy.
type Cached struct {
	next Store
	lru  *expirable.LRU[string, cachedImage]

	// saves is bumped at the start and end of every Save. A read that
	// overlapped a save does not populate the cache.
	mu    sync.Mutex
	saves uint64
}

// NewCached wraps next with an LRU of up to size images, each kept for ttl.
// A zero ttl keeps entries until they are evicted by size.
func NewCached(next Store, size int, ttl time.Duration) *Cached {
	return &Cached{
		next: next,
		lru:  expirable.NewLRU[string, cachedImage](size, nil, ttl),
	}
}

func (c *Cached) Save(ctx context.Context, name string, src io.Reader) error {
	c.invalidate(name)
	err := c.next.Save(ctx, name, src)
	c.invalidate(name)
	return err
}

func (c *Cached) invalidate(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saves++
	c.lru.Remove(name)
}

func (c *Cached) Open(ctx context.Context, name string) (io.ReadSeekCloser, time.Time, error) {
	if img, ok := c.lru.Get(name); ok {
		return bytesFile{bytes.NewReader(img.data)}, img.modTime, nil
	}

	c.mu.Lock()
	seen := c.saves
	c.mu.Unlock()

	f, modTime, err := c.next.Open(ctx, name)
	if err != nil {
		return nil, modTime, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, time.Time{}, err
	}
	c.mu.Lock()
	if c.saves == seen {
		c.lru.Add(name, cachedImage{data: data, modTime: modTime})
	}
	c.mu.Unlock()
	return bytesFile{bytes.NewReader(data)}, modTime, nil
}

func (c *Cached) Close() error {
	c.lru.Purge()
	return c.next.Close()
}
