// Package discovery registers storefront API replicas in etcd so peers and
// ops tooling can enumerate live instances.
package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/example/quickorder/pkg/config"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

const leaseTTLSeconds = 30

type Registry struct {
	client *clientv3.Client
	config *config.EtcdConfig
	logger *zap.Logger

	leaseID clientv3.LeaseID
	key     string
}

type Instance struct {
	Name string
	Host string
	Port int
}

func (i *Instance) addr() string {
	return net.JoinHostPort(i.Host, strconv.Itoa(i.Port))
}

func NewRegistry(cfg *config.EtcdConfig, logger *zap.Logger) (*Registry, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	return &Registry{
		client: cli,
		config: cfg,
		logger: logger,
	}, nil
}

// Register announces this instance under a leased key. The lease keeps the
// entry alive only while the process does; a crash expires it within the
// lease TTL.
func (r *Registry) Register(ctx context.Context, instance *Instance) error {
	key := fmt.Sprintf("%s%s/%s", r.config.Prefix, instance.Name, instance.addr())

	lease, err := r.client.Grant(ctx, leaseTTLSeconds)
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}

	if _, err := r.client.Put(ctx, key, instance.addr(), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return fmt.Errorf("failed to keep alive: %w", err)
	}

	r.leaseID = lease.ID
	r.key = key

	go func() {
		for range ch {
		}
		r.logger.Warn("Service lease keep-alive stopped", zap.String("key", key))
	}()

	r.logger.Info("Service registered",
		zap.String("key", key),
		zap.String("addr", instance.addr()))
	return nil
}

// Discover lists the live instances of a service.
func (r *Registry) Discover(ctx context.Context, serviceName string) ([]*Instance, error) {
	prefix := fmt.Sprintf("%s%s/", r.config.Prefix, serviceName)

	resp, err := r.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to discover service: %w", err)
	}

	var instances []*Instance
	for _, kv := range resp.Kvs {
		host, portStr, err := net.SplitHostPort(string(kv.Value))
		if err != nil {
			r.logger.Warn("Skipping malformed instance entry",
				zap.ByteString("value", kv.Value))
			continue
		}
		port, _ := strconv.Atoi(portStr)
		instances = append(instances, &Instance{
			Name: serviceName,
			Host: host,
			Port: port,
		})
	}
	return instances, nil
}

// Deregister revokes the lease, dropping the key immediately instead of
// waiting for TTL expiry.
func (r *Registry) Deregister(ctx context.Context) error {
	if r.leaseID == 0 {
		return nil
	}
	if _, err := r.client.Revoke(ctx, r.leaseID); err != nil {
		return fmt.Errorf("failed to deregister service: %w", err)
	}
	r.logger.Info("Service deregistered", zap.String("key", r.key))
	r.leaseID = 0
	return nil
}

func (r *Registry) Close() error {
	return r.client.Close()
}
