package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Repository persists wizards between requests.
type Repository interface {
	Get(ctx context.Context, id string) (*Wizard, error)
	Save(ctx context.Context, w *Wizard) error
}

// RedisRepository keeps wizards as JSON strings with a TTL.
type RedisRepository struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisRepository creates a repository; every save refreshes the TTL.
func NewRedisRepository(client *redis.Client, ttl time.Duration) *RedisRepository {
	return &RedisRepository{client: client, prefix: "attendance:wizard:", ttl: ttl}
}

func (r *RedisRepository) Get(ctx context.Context, id string) (*Wizard, error) {
	raw, err := r.client.Get(ctx, r.prefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load wizard: %w", err)
	}
	var w Wizard
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode wizard %s: %w", id, err)
	}
	return &w, nil
}

func (r *RedisRepository) Save(ctx context.Context, w *Wizard) error {
	raw, err := json.Marshal(w)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.prefix+w.ID, raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("save wizard: %w", err)
	}
	return nil
}

// MemoryRepository keeps wizards in process with the same TTL semantics.
type MemoryRepository struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	items map[string]memoryItem
}

type memoryItem struct {
	w       Wizard
	expires time.Time
}

func NewMemoryRepository(ttl time.Duration) *MemoryRepository {
	return &MemoryRepository{ttl: ttl, now: time.Now, items: make(map[string]memoryItem)}
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (*Wizard, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	if r.ttl > 0 && r.now().After(it.expires) {
		delete(r.items, id)
		return nil, ErrNotFound
	}
	w := it.w
	return &w, nil
}

func (r *MemoryRepository) Save(ctx context.Context, w *Wizard) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[w.ID] = memoryItem{w: *w, expires: r.now().Add(r.ttl)}
	return nil
}
