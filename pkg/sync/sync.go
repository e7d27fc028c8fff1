// Package sync keeps a viewer's local product/order state consistent with
// the store-scoped live feeds. Only one store is active at a time; switching
// stores tears down both subscriptions before new ones are established, so
// no batch from a previous tenant can ever land in the new view.
package sync

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/quickorder/pkg/models"
	"go.uber.org/zap"
)

// Source delivers live result-set batches for one store. Each batch is the
// full filtered result at some point in time; the two feeds carry no joint
// ordering guarantee. The returned cancel func tears the subscription down.
type Source interface {
	Products(ctx context.Context, storeID string) (<-chan []models.Product, func(), error)
	Orders(ctx context.Context, storeID string) (<-chan []models.Order, func(), error)
}

// Synchronizer holds the view state for the active store.
type Synchronizer struct {
	source Source
	logger *zap.Logger

	mu            sync.Mutex
	generation    uint64
	storeID       string
	products      []models.Product
	orders        []models.Order
	tracked       *models.Order
	cancelStreams []func()

	// OnUpdate, when set, fires after every applied batch.
	OnUpdate func()
}

func New(source Source, logger *zap.Logger) *Synchronizer {
	return &Synchronizer{source: source, logger: logger}
}

// SetActiveStore switches the synchronized tenant. Passing an empty id just
// clears state and subscriptions.
func (s *Synchronizer) SetActiveStore(ctx context.Context, storeID string) error {
	s.mu.Lock()
	s.teardownLocked()
	s.generation++
	gen := s.generation
	s.storeID = storeID
	s.products = nil
	s.orders = nil
	s.tracked = nil
	s.mu.Unlock()

	if storeID == "" {
		return nil
	}

	productCh, cancelProducts, err := s.source.Products(ctx, storeID)
	if err != nil {
		return err
	}
	orderCh, cancelOrders, err := s.source.Orders(ctx, storeID)
	if err != nil {
		cancelProducts()
		return err
	}

	s.mu.Lock()
	if gen != s.generation {
		// Someone switched stores while we were subscribing.
		s.mu.Unlock()
		cancelProducts()
		cancelOrders()
		return nil
	}
	s.cancelStreams = []func(){cancelProducts, cancelOrders}
	s.mu.Unlock()

	go func() {
		for batch := range productCh {
			s.applyProducts(gen, batch)
		}
	}()
	go func() {
		for batch := range orderCh {
			s.applyOrders(gen, batch)
		}
	}()
	return nil
}

// Close tears down the active subscriptions.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
	s.generation++
}

func (s *Synchronizer) teardownLocked() {
	for _, cancel := range s.cancelStreams {
		cancel()
	}
	s.cancelStreams = nil
}

func (s *Synchronizer) applyProducts(gen uint64, batch []models.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return
	}
	sort.SliceStable(batch, func(i, j int) bool {
		return batch[i].SortKey > batch[j].SortKey
	})
	s.products = batch
	s.notifyLocked()
}

func (s *Synchronizer) applyOrders(gen uint64, batch []models.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return
	}

	// An optimistic local write has no server timestamp yet; treat it as
	// newest until the authoritative copy arrives.
	now := time.Now()
	key := func(o models.Order) time.Time {
		if o.CreatedAt.IsZero() {
			return now
		}
		return o.CreatedAt
	}
	sort.SliceStable(batch, func(i, j int) bool {
		return key(batch[i]).After(key(batch[j]))
	})
	s.orders = batch

	// Reconcile the order the viewer is watching: prefer the fresh copy,
	// but never drop the held one during a transient empty query window.
	if s.tracked != nil {
		for i := range batch {
			if batch[i].OrderID == s.tracked.OrderID {
				fresh := batch[i]
				s.tracked = &fresh
				break
			}
		}
	}
	s.notifyLocked()
}

func (s *Synchronizer) notifyLocked() {
	if s.OnUpdate != nil {
		s.OnUpdate()
	}
}

// Track pins the order the viewer is following, typically the one just
// placed.
func (s *Synchronizer) Track(order *models.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if order == nil {
		s.tracked = nil
		return
	}
	copied := *order
	s.tracked = &copied
}

// TrackedOrder returns the latest reconciled copy of the pinned order.
func (s *Synchronizer) TrackedOrder() *models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tracked == nil {
		return nil
	}
	copied := *s.tracked
	return &copied
}

// StoreID returns the active tenant.
func (s *Synchronizer) StoreID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeID
}

// Products returns the current sorted catalog snapshot.
func (s *Synchronizer) Products() []models.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Product, len(s.products))
	copy(out, s.products)
	return out
}

// Orders returns the current sorted order snapshot.
func (s *Synchronizer) Orders() []models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Order, len(s.orders))
	copy(out, s.orders)
	return out
}

// OrdersForUser filters the snapshot to one customer's orders.
func (s *Synchronizer) OrdersForUser(userID string) []models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out
}
