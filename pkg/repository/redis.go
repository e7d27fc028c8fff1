package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/quickorder/pkg/config"
	"github.com/example/quickorder/pkg/models"
	"github.com/go-redis/redis/v8"
)

// RedisRepository carries the change-notification bus, the store cache and
// the per-user role-intent preference.
type RedisRepository struct {
	client *redis.Client
	config *config.RedisConfig
}

func NewRedisRepository(cfg *config.RedisConfig) *RedisRepository {
	return &RedisRepository{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
			PoolSize: cfg.PoolSize,
		}),
		config: cfg,
	}
}

func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}

// ProductsChannel is the change channel for one store's catalog.
func ProductsChannel(storeID string) string {
	return fmt.Sprintf("products:%s", storeID)
}

// OrdersChannel is the change channel for one store's orders.
func OrdersChannel(storeID string) string {
	return fmt.Sprintf("orders:%s", storeID)
}

// Publish emits a change notification on a store-scoped channel.
func (r *RedisRepository) Publish(ctx context.Context, channel, payload string) error {
	return r.client.Publish(ctx, channel, payload).Err()
}

// Subscribe opens a pub/sub subscription on a channel. The caller owns the
// returned handle and must Close it when its scope ends.
func (r *RedisRepository) Subscribe(ctx context.Context, channel string) *redis.PubSub {
	return r.client.Subscribe(ctx, channel)
}

func (r *RedisRepository) SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, expiration).Err()
}

func (r *RedisRepository) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := r.client.Get(ctx, key).Result()
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

// Store point-reads are cached briefly; deep links resolve the same store on
// every page load.
func (r *RedisRepository) CacheStore(ctx context.Context, store *models.Store) error {
	return r.SetJSON(ctx, fmt.Sprintf("store:%s", store.StoreID), store, 5*time.Minute)
}

func (r *RedisRepository) GetStoreCache(ctx context.Context, storeID string) (*models.Store, error) {
	var store models.Store
	if err := r.GetJSON(ctx, fmt.Sprintf("store:%s", storeID), &store); err != nil {
		return nil, err
	}
	return &store, nil
}

func (r *RedisRepository) InvalidateStoreCache(ctx context.Context, storeID string) error {
	return r.client.Del(ctx, fmt.Sprintf("store:%s", storeID)).Err()
}

// Role-intent preference. A UX default only, never an authorization input:
// resolution re-checks the allow-list and ownership on every sign-in.

func rolePrefKey(userID string) string {
	return fmt.Sprintf("rolepref:%s", userID)
}

func (r *RedisRepository) SetRolePreference(ctx context.Context, userID string, pref models.Role) error {
	return r.client.Set(ctx, rolePrefKey(userID), string(pref), 0).Err()
}

func (r *RedisRepository) GetRolePreference(ctx context.Context, userID string) (models.Role, error) {
	val, err := r.client.Get(ctx, rolePrefKey(userID)).Result()
	if err == redis.Nil {
		return models.RoleCustomer, nil
	}
	if err != nil {
		return models.RoleCustomer, err
	}
	return models.Role(val), nil
}

func (r *RedisRepository) ClearRolePreference(ctx context.Context, userID string) error {
	return r.client.Del(ctx, rolePrefKey(userID)).Err()
}
