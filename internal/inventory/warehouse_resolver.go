package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	defaultWarehouseKey = "fulfillment:inventory:default_warehouse"
	lookupTimeout       = 10 * time.Second
)

// WarehouseRepository lists warehouses.
type WarehouseRepository interface {
	ListActive(ctx context.Context) ([]Warehouse, error)
}

// SelectDefault picks the flagged default among active warehouses, falling back to the first active one.
func SelectDefault(warehouses []Warehouse) (Warehouse, error) {
	var fallback *Warehouse
	for i := range warehouses {
		w := warehouses[i]
		if !w.IsActive {
			continue
		}
		if w.IsDefault {
			return w, nil
		}
		if fallback == nil {
			fallback = &warehouses[i]
		}
	}
	if fallback == nil {
		return Warehouse{}, ErrNoDefaultWarehouse
	}
	return *fallback, nil
}

// WarehouseResolver resolves the default warehouse, caching it in Redis when a client is set.
type WarehouseResolver struct {
	repo   WarehouseRepository
	cache  redis.Cmdable
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

// NewWarehouseResolver builds a resolver. cache may be nil.
func NewWarehouseResolver(repo WarehouseRepository, cache redis.Cmdable, ttl time.Duration, logger *slog.Logger) *WarehouseResolver {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &WarehouseResolver{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

// DefaultWarehouse returns the warehouse reservations are booked against.
// Concurrent callers share one lookup. The lookup is detached from the caller
// that started it; each caller still stops waiting when its own ctx ends.
func (r *WarehouseResolver) DefaultWarehouse(ctx context.Context) (Warehouse, error) {
	if w, ok := r.cached(ctx); ok {
		return w, nil
	}
	ch := r.group.DoChan(defaultWarehouseKey, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		list, err := r.repo.ListActive(lookupCtx)
		if err != nil {
			return Warehouse{}, fmt.Errorf("list active warehouses: %w", err)
		}
		w, err := SelectDefault(list)
		if err != nil {
			return Warehouse{}, err
		}
		r.store(lookupCtx, w)
		return w, nil
	})
	select {
	case <-ctx.Done():
		return Warehouse{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Warehouse{}, res.Err
		}
		return res.Val.(Warehouse), nil
	}
}

// Invalidate drops the cached default warehouse.
func (r *WarehouseResolver) Invalidate(ctx context.Context) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Del(ctx, defaultWarehouseKey).Err()
}

func (r *WarehouseResolver) cached(ctx context.Context) (Warehouse, bool) {
	if r.cache == nil {
		return Warehouse{}, false
	}
	raw, err := r.cache.Get(ctx, defaultWarehouseKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("default warehouse cache read", slog.Any("error", err))
		}
		return Warehouse{}, false
	}
	var w Warehouse
	if err := json.Unmarshal(raw, &w); err != nil {
		r.logger.Warn("default warehouse cache decode", slog.Any("error", err))
		return Warehouse{}, false
	}
	return w, true
}

func (r *WarehouseResolver) store(ctx context.Context, w Warehouse) {
	if r.cache == nil {
		return
	}
	raw, err := json.Marshal(w)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, defaultWarehouseKey, raw, r.ttl).Err(); err != nil {
		r.logger.Warn("default warehouse cache write", slog.Any("error", err))
	}
}
