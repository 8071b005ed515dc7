package favorites

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryChannel is an in-process Channel with the same semantics as the
// Postgres implementation. Used in tests and when no remote store is
// configured; "remote" mutations are simply mutations from other goroutines.
type MemoryChannel struct {
	offered string

	mu       sync.Mutex
	identity string
	records  map[string]Favorite
	feed     chan []Favorite
	feedStop context.CancelFunc
}

// NewMemoryChannel creates an unauthenticated channel. A non-empty offered
// identity is reused on sign-in, mirroring the device-identity continuity of
// the remote implementation.
func NewMemoryChannel(offered string) *MemoryChannel {
	return &MemoryChannel{
		offered: offered,
		records: make(map[string]Favorite),
	}
}

func (c *MemoryChannel) SignIn(_ context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.identity != "" {
		return c.identity, nil
	}
	if c.offered != "" {
		c.identity = c.offered
	} else {
		c.identity = uuid.NewString()
	}
	return c.identity, nil
}

func (c *MemoryChannel) Add(_ context.Context, cityName, note string) (Favorite, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.identity == "" {
		return Favorite{}, ErrNotAuthenticated
	}

	fav := Favorite{
		ID:        uuid.NewString(),
		CityName:  cityName,
		Note:      note,
		CreatedAt: time.Now().UnixMilli(),
		Owner:     c.identity,
	}
	c.records[fav.ID] = fav
	c.broadcastLocked()
	return fav, nil
}

func (c *MemoryChannel) UpdateNote(_ context.Context, id, note string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.identity == "" {
		return ErrNotAuthenticated
	}

	fav, ok := c.records[id]
	if !ok || fav.Owner != c.identity {
		return nil
	}
	fav.Note = note
	c.records[id] = fav
	c.broadcastLocked()
	return nil
}

func (c *MemoryChannel) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.identity == "" {
		return ErrNotAuthenticated
	}

	fav, ok := c.records[id]
	if !ok || fav.Owner != c.identity {
		return nil
	}
	delete(c.records, id)
	c.broadcastLocked()
	return nil
}

func (c *MemoryChannel) Observe(ctx context.Context) (<-chan []Favorite, error) {
	c.mu.Lock()

	if c.identity == "" {
		c.mu.Unlock()
		return nil, ErrNotAuthenticated
	}

	// At most one live feed; cancel the previous one to avoid duplicate
	// delivery.
	if c.feedStop != nil {
		c.feedStop()
	}

	feedCtx, cancel := context.WithCancel(ctx)
	out := make(chan []Favorite, 1)
	c.feed = out
	c.feedStop = cancel

	// Initial snapshot so subscribers see the current collection immediately.
	out <- c.snapshotLocked()
	c.mu.Unlock()

	go func() {
		<-feedCtx.Done()

		c.mu.Lock()
		if c.feed == out {
			c.feed = nil
			c.feedStop = nil
		}
		c.mu.Unlock()
		close(out)
	}()

	return out, nil
}

func (c *MemoryChannel) Close() {
	c.mu.Lock()
	stop := c.feedStop
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// broadcastLocked pushes a fresh full-collection snapshot, replacing any
// undelivered one.
func (c *MemoryChannel) broadcastLocked() {
	if c.feed == nil {
		return
	}
	list := c.snapshotLocked()
	select {
	case c.feed <- list:
	default:
		select {
		case <-c.feed:
		default:
		}
		c.feed <- list
	}
}

func (c *MemoryChannel) snapshotLocked() []Favorite {
	list := make([]Favorite, 0, len(c.records))
	for _, fav := range c.records {
		if fav.Owner == c.identity {
			list = append(list, fav)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt != list[j].CreatedAt {
			return list[i].CreatedAt < list[j].CreatedAt
		}
		return list[i].ID < list[j].ID
	})
	return list
}
