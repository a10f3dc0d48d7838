package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryWarehouses struct {
	warehouses []Warehouse
	err        error
	calls      int
}

func (m *memoryWarehouses) ListActive(context.Context) ([]Warehouse, error) {
	m.calls++
	return m.warehouses, m.err
}

func TestSelectDefault(t *testing.T) {
	w, err := SelectDefault([]Warehouse{
		{ID: 1, IsActive: false, IsDefault: true},
		{ID: 2, IsActive: true},
		{ID: 3, IsActive: true, IsDefault: true},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), w.ID)

	w, err = SelectDefault([]Warehouse{{ID: 4, IsActive: true}, {ID: 5, IsActive: true}})
	require.NoError(t, err)
	assert.Equal(t, int64(4), w.ID)

	_, err = SelectDefault([]Warehouse{{ID: 6}})
	assert.ErrorIs(t, err, ErrNoDefaultWarehouse)

	_, err = SelectDefault(nil)
	assert.ErrorIs(t, err, ErrNoDefaultWarehouse)
}

func TestWarehouseResolverCachesInRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := &memoryWarehouses{warehouses: []Warehouse{{ID: 7, Code: "MAIN", IsActive: true, IsDefault: true}}}
	resolver := NewWarehouseResolver(repo, client, time.Minute, discardLogger())

	w, err := resolver.DefaultWarehouse(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), w.ID)

	w, err = resolver.DefaultWarehouse(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "MAIN", w.Code)
	assert.Equal(t, 1, repo.calls)
	assert.True(t, mr.Exists(defaultWarehouseKey))

	mr.FastForward(2 * time.Minute)
	_, err = resolver.DefaultWarehouse(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)
}

func TestWarehouseResolverInvalidate(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := &memoryWarehouses{warehouses: []Warehouse{{ID: 7, IsActive: true}}}
	resolver := NewWarehouseResolver(repo, client, time.Minute, discardLogger())

	_, err := resolver.DefaultWarehouse(context.Background())
	require.NoError(t, err)

	repo.warehouses = []Warehouse{{ID: 8, IsActive: true, IsDefault: true}}
	require.NoError(t, resolver.Invalidate(context.Background()))

	w, err := resolver.DefaultWarehouse(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(8), w.ID)
}

func TestWarehouseResolverWithoutCache(t *testing.T) {
	repo := &memoryWarehouses{err: errors.New("db down")}
	resolver := NewWarehouseResolver(repo, nil, 0, discardLogger())

	_, err := resolver.DefaultWarehouse(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list active warehouses")
	require.NoError(t, resolver.Invalidate(context.Background()))
}

func TestWarehouseResolverSurvivesCacheOutage(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	t.Cleanup(func() { _ = client.Close() })

	repo := &memoryWarehouses{warehouses: []Warehouse{{ID: 3, IsActive: true}}}
	resolver := NewWarehouseResolver(repo, client, time.Minute, discardLogger())

	w, err := resolver.DefaultWarehouse(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), w.ID)
}

func TestWarehouseResolverFeedsApplierWarning(t *testing.T) {
	repo := &memoryWarehouses{}
	resolver := NewWarehouseResolver(repo, nil, time.Minute, discardLogger())
	levels := newMemoryLevels()
	applier := NewApplier(levels, resolver, ApplierConfig{AllowNegativeAvailable: true}, discardLogger())

	report, err := applier.Apply(context.Background(), AdjustmentRequest{
		Direction: DirectionReserve,
		Lines:     []AdjustmentLine{{ItemID: 1, Quantity: dec("2")}},
	})
	require.NoError(t, err)
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, WarningMissingWarehouse, report.Warnings[0].Code)
}

type gatedWarehouses struct {
	warehouses []Warehouse
	entered    chan struct{}
	release    chan struct{}

	mu   sync.Mutex
	seen []error
}

func newGatedWarehouses(warehouses ...Warehouse) *gatedWarehouses {
	return &gatedWarehouses{warehouses: warehouses, entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (g *gatedWarehouses) ListActive(ctx context.Context) ([]Warehouse, error) {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.release
	g.mu.Lock()
	g.seen = append(g.seen, ctx.Err())
	g.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.warehouses, nil
}

func TestWarehouseResolverLookupOutlivesCancelledCaller(t *testing.T) {
	repo := newGatedWarehouses(Warehouse{ID: 7, IsActive: true, IsDefault: true})
	resolver := NewWarehouseResolver(repo, nil, time.Minute, discardLogger())
	levels := newMemoryLevels()
	levels.put(5, 7, "10", "0", "10")
	applier := NewApplier(levels, resolver, ApplierConfig{AllowNegativeAvailable: true}, discardLogger())

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := resolver.DefaultWarehouse(first)
		firstErr <- err
	}()
	<-repo.entered

	type outcome struct {
		report AdjustmentReport
		err    error
	}
	second := make(chan outcome, 1)
	go func() {
		report, err := applier.Apply(context.Background(), AdjustmentRequest{
			Direction: DirectionReserve,
			Lines:     []AdjustmentLine{{ItemID: 5, Quantity: dec("3")}},
		})
		second <- outcome{report: report, err: err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)
	close(repo.release)

	got := <-second
	require.NoError(t, got.err)
	assert.Empty(t, got.report.Warnings)
	assert.True(t, got.report.Applied())
	assert.Equal(t, int64(7), got.report.WarehouseID)
	assert.True(t, levels.levels[key(5, 7)].Reserved.Equal(dec("3")))

	repo.mu.Lock()
	defer repo.mu.Unlock()
	for _, err := range repo.seen {
		assert.NoError(t, err, "lookup context must not inherit a caller's cancellation")
	}
}
