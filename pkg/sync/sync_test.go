package sync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/example/quickorder/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSource struct {
	mu         sync.Mutex
	productChs map[string]chan []models.Product
	orderChs   map[string]chan []models.Order
	cancelled  map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		productChs: make(map[string]chan []models.Product),
		orderChs:   make(map[string]chan []models.Order),
		cancelled:  make(map[string]int),
	}
}

func (f *fakeSource) Products(ctx context.Context, storeID string) (<-chan []models.Product, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan []models.Product, 8)
	f.productChs[storeID] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			f.cancelled[storeID]++
			f.mu.Unlock()
			close(ch)
		})
	}, nil
}

func (f *fakeSource) Orders(ctx context.Context, storeID string) (<-chan []models.Order, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan []models.Order, 8)
	f.orderChs[storeID] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			f.cancelled[storeID]++
			f.mu.Unlock()
			close(ch)
		})
	}, nil
}

func (f *fakeSource) pushProducts(storeID string, batch []models.Product) {
	f.mu.Lock()
	ch := f.productChs[storeID]
	f.mu.Unlock()
	ch <- batch
}

func (f *fakeSource) pushOrders(storeID string, batch []models.Order) {
	f.mu.Lock()
	ch := f.orderChs[storeID]
	f.mu.Unlock()
	ch <- batch
}

func (f *fakeSource) cancelCount(storeID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled[storeID]
}

func newTestSync(t *testing.T, source Source) (*Synchronizer, chan struct{}) {
	t.Helper()
	s := New(source, zap.NewNop())
	updated := make(chan struct{}, 16)
	s.OnUpdate = func() { updated <- struct{}{} }
	t.Cleanup(s.Close)
	return s, updated
}

func waitUpdate(t *testing.T, updated chan struct{}) {
	t.Helper()
	select {
	case <-updated:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a synchronizer update")
	}
}

func TestProductsSortedByDescendingSortKey(t *testing.T) {
	source := newFakeSource()
	s, updated := newTestSync(t, source)
	require.NoError(t, s.SetActiveStore(context.Background(), "acme"))

	source.pushProducts("acme", []models.Product{
		{ID: "a", SortKey: 100},
		{ID: "legacy"}, // no sort key: falls back to zero, sorts last
		{ID: "b", SortKey: 300},
		{ID: "c", SortKey: 200},
	})
	waitUpdate(t, updated)

	got := s.Products()
	require.Len(t, got, 4)
	assert.Equal(t, []string{"b", "c", "a", "legacy"},
		[]string{got[0].ID, got[1].ID, got[2].ID, got[3].ID})
}

func TestOrdersSortedNewestFirstWithPendingTimestampOnTop(t *testing.T) {
	source := newFakeSource()
	s, updated := newTestSync(t, source)
	require.NoError(t, s.SetActiveStore(context.Background(), "acme"))

	source.pushOrders("acme", []models.Order{
		{ID: "o1", OrderID: "ORD-1", CreatedAt: time.Now().Add(-2 * time.Hour)},
		{ID: "o3", OrderID: "ORD-3"}, // optimistic write, server timestamp unresolved
		{ID: "o2", OrderID: "ORD-2", CreatedAt: time.Now().Add(-1 * time.Hour)},
	})
	waitUpdate(t, updated)

	got := s.Orders()
	require.Len(t, got, 3)
	assert.Equal(t, "ORD-3", got[0].OrderID)
	assert.Equal(t, "ORD-2", got[1].OrderID)
	assert.Equal(t, "ORD-1", got[2].OrderID)
}

func TestTrackedOrderReconciliation(t *testing.T) {
	source := newFakeSource()
	s, updated := newTestSync(t, source)
	require.NoError(t, s.SetActiveStore(context.Background(), "acme"))

	placed := &models.Order{ID: "o1", OrderID: "ORD-1", Status: models.StatusPending}
	s.Track(placed)

	// Fresh copy in the batch replaces the held reference.
	source.pushOrders("acme", []models.Order{
		{ID: "o1", OrderID: "ORD-1", Status: models.StatusShipped, TrackingNumber: "IN12345", CreatedAt: time.Now()},
	})
	waitUpdate(t, updated)

	tracked := s.TrackedOrder()
	require.NotNil(t, tracked)
	assert.Equal(t, models.StatusShipped, tracked.Status)
	assert.Equal(t, "IN12345", tracked.TrackingNumber)

	// A transient batch without the order keeps the stale copy instead of
	// blanking the view.
	source.pushOrders("acme", []models.Order{})
	waitUpdate(t, updated)

	tracked = s.TrackedOrder()
	require.NotNil(t, tracked)
	assert.Equal(t, models.StatusShipped, tracked.Status)
}

func TestStoreSwitchTearsDownAndIsolatesTenants(t *testing.T) {
	source := newFakeSource()
	s, updated := newTestSync(t, source)
	require.NoError(t, s.SetActiveStore(context.Background(), "acme"))

	source.pushProducts("acme", []models.Product{{ID: "acme-p", StoreID: "acme", SortKey: 1}})
	waitUpdate(t, updated)
	require.Len(t, s.Products(), 1)

	require.NoError(t, s.SetActiveStore(context.Background(), "zen"))
	assert.Equal(t, 2, source.cancelCount("acme"))
	assert.Empty(t, s.Products(), "state must reset on store switch")
	assert.Nil(t, s.TrackedOrder())

	source.pushProducts("zen", []models.Product{{ID: "zen-p", StoreID: "zen", SortKey: 5}})
	waitUpdate(t, updated)

	got := s.Products()
	require.Len(t, got, 1)
	assert.Equal(t, "zen-p", got[0].ID)
	assert.Equal(t, "zen", s.StoreID())
}

func TestResubscribeYieldsSameSnapshot(t *testing.T) {
	source := newFakeSource()
	s, updated := newTestSync(t, source)

	batch := []models.Product{
		{ID: "a", SortKey: 10},
		{ID: "b", SortKey: 20},
	}

	require.NoError(t, s.SetActiveStore(context.Background(), "acme"))
	source.pushProducts("acme", append([]models.Product(nil), batch...))
	waitUpdate(t, updated)
	first := s.Products()

	// Teardown and re-create with no intervening writes.
	require.NoError(t, s.SetActiveStore(context.Background(), ""))
	require.NoError(t, s.SetActiveStore(context.Background(), "acme"))
	source.pushProducts("acme", append([]models.Product(nil), batch...))
	waitUpdate(t, updated)

	assert.Equal(t, first, s.Products())
}

func TestOrdersForUser(t *testing.T) {
	source := newFakeSource()
	s, updated := newTestSync(t, source)
	require.NoError(t, s.SetActiveStore(context.Background(), "acme"))

	source.pushOrders("acme", []models.Order{
		{ID: "o1", OrderID: "ORD-1", UserID: "u1", CreatedAt: time.Now()},
		{ID: "o2", OrderID: "ORD-2", UserID: "u2", CreatedAt: time.Now()},
		{ID: "o3", OrderID: "ORD-3", UserID: "u1", CreatedAt: time.Now()},
	})
	waitUpdate(t, updated)

	mine := s.OrdersForUser("u1")
	require.Len(t, mine, 2)
	for _, o := range mine {
		assert.Equal(t, "u1", o.UserID)
	}
}
