package sync

import (
	"context"

	"github.com/example/quickorder/pkg/models"
	"github.com/example/quickorder/pkg/repository"
	"go.uber.org/zap"
)

// Catalog is the query side backing each subscription batch.
type Catalog interface {
	ProductsByStore(ctx context.Context, storeID string) ([]models.Product, error)
	OrdersByStore(ctx context.Context, storeID string) ([]models.Order, error)
}

// Streams implements Source over the document store plus the redis change
// bus: every notification triggers a re-query, and the full result set is
// delivered as one batch. An initial batch is delivered on subscribe.
type Streams struct {
	catalog Catalog
	bus     *repository.RedisRepository
	logger  *zap.Logger
}

func NewStreams(catalog Catalog, bus *repository.RedisRepository, logger *zap.Logger) *Streams {
	return &Streams{catalog: catalog, bus: bus, logger: logger}
}

func (s *Streams) Products(ctx context.Context, storeID string) (<-chan []models.Product, func(), error) {
	return stream(ctx, s.bus, repository.ProductsChannel(storeID), func(ctx context.Context) ([]models.Product, error) {
		return s.catalog.ProductsByStore(ctx, storeID)
	}, s.logger)
}

func (s *Streams) Orders(ctx context.Context, storeID string) (<-chan []models.Order, func(), error) {
	return stream(ctx, s.bus, repository.OrdersChannel(storeID), func(ctx context.Context) ([]models.Order, error) {
		return s.catalog.OrdersByStore(ctx, storeID)
	}, s.logger)
}

func stream[T any](_ context.Context, bus *repository.RedisRepository, channel string, query func(context.Context) ([]T, error), logger *zap.Logger) (<-chan []T, func(), error) {
	// The subscription outlives the subscribing call; its lifetime is owned
	// by the returned teardown func, not the caller's context.
	streamCtx, cancel := context.WithCancel(context.Background())
	sub := bus.Subscribe(streamCtx, channel)
	out := make(chan []T, 1)

	deliver := func() {
		batch, err := query(streamCtx)
		if err != nil {
			if streamCtx.Err() != nil {
				return
			}
			// Backend unavailable: surface an empty list rather than
			// stale or partial data.
			logger.Error("Subscription query failed",
				zap.String("channel", channel), zap.Error(err))
			batch = nil
		}
		select {
		case out <- batch:
		case <-streamCtx.Done():
		}
	}

	go func() {
		defer close(out)
		deliver()
		msgs := sub.Channel()
		for {
			select {
			case <-streamCtx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				deliver()
			}
		}
	}()

	teardown := func() {
		cancel()
		if err := sub.Close(); err != nil {
			logger.Warn("Failed to close subscription",
				zap.String("channel", channel), zap.Error(err))
		}
	}
	return out, teardown, nil
}
