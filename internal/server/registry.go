package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/liao/ragserve/internal/engine"
)

// EngineFactory builds the retrieval engine for one user id. Each user
// gets an isolated collection, so the factory is where per-user storage
// is wired up.
type EngineFactory func(userID string) (*engine.Engine, error)

// Registry hands out per-user engines from a bounded LRU cache. Evicted
// engines get a chance to persist before they are dropped; their on-disk
// collection survives and is reloaded on the next request.
type Registry struct {
	mu      sync.Mutex
	cache   *lru.Cache[string, *engine.Engine]
	factory EngineFactory
}

func NewRegistry(maxEngines int, factory EngineFactory) (*Registry, error) {
	if maxEngines <= 0 {
		return nil, fmt.Errorf("registry size must be positive, got %d", maxEngines)
	}

	cache, err := lru.NewWithEvict(maxEngines, func(userID string, eng *engine.Engine) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := eng.Close(ctx); err != nil {
			slog.Error("persist evicted engine failed", "user_id", userID, "error", err)
			return
		}
		slog.Info("evicted engine", "user_id", userID)
	})
	if err != nil {
		return nil, fmt.Errorf("create engine cache: %w", err)
	}
	return &Registry{cache: cache, factory: factory}, nil
}

// Get returns the cached engine for userID, building one on a miss. The
// lock covers the build so concurrent first requests for the same user
// cannot race two engines into existence.
func (r *Registry) Get(userID string) (*engine.Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if eng, ok := r.cache.Get(userID); ok {
		return eng, nil
	}

	eng, err := r.factory(userID)
	if err != nil {
		return nil, fmt.Errorf("build engine for user %s: %w", userID, err)
	}
	r.cache.Add(userID, eng)
	return eng, nil
}

// Remove drops a user's engine. The evict callback still runs, but
// persisting an emptied collection is a no-op so this is safe after a
// collection delete.
func (r *Registry) Remove(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Remove(userID)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.Len()
}
