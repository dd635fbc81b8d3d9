// Package registry provides dataset discovery for dap clients.
//
// EtcdRegistry stores one key per (dataset, server) pair:
//
//	Key:   /mini-dap/{Dataset}/{Addr}
//	Value: JSON-encoded ServiceInstance
//
// Registration uses TTL-based leases: if the server crashes, the lease expires
// and the entry is automatically removed, so no stale instance is discovered.
package registry

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

const (
	keyPrefix      = "/mini-dap/"
	dialTimeout    = 3 * time.Second
	requestTimeout = 3 * time.Second
)

// EtcdRegistry implements the Registry interface using etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client // etcd client connection (thread-safe, shared across goroutines)
	log    *zap.Logger

	ctx    context.Context // Cancelled by Close; stops keep-alives and watches
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEtcdRegistry creates a new registry connected to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string, log *zap.Logger) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
		Logger:      log.Named("etcd"),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "connect etcd %v", endpoints)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &EtcdRegistry{client: c, log: log, ctx: ctx, cancel: cancel}, nil
}

// Ping checks that the first endpoint answers within ctx.
func (r *EtcdRegistry) Ping(ctx context.Context) error {
	eps := r.client.Endpoints()
	if len(eps) == 0 {
		return errors.New("no etcd endpoints")
	}
	_, err := r.client.Status(ctx, eps[0])
	return errors.Wrapf(err, "etcd %s", eps[0])
}

func key(dataset, addr string) string {
	return keyPrefix + dataset + "/" + addr
}

// Register adds a server instance for dataset with a TTL lease.
//
// Flow:
//  1. Create a lease with the given TTL (e.g., 10 seconds)
//  2. Put the key-value pair with the lease attached
//  3. Start KeepAlive to automatically renew the lease until Close
//
// leaseID stays a local variable so one EtcdRegistry can register many
// datasets from concurrent servers.
func (r *EtcdRegistry) Register(dataset string, instance ServiceInstance, ttl int64) error {
	ctx, cancel := context.WithTimeout(r.ctx, requestTimeout)
	defer cancel()

	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return errors.Wrap(err, "grant lease")
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return errors.WithStack(err)
	}

	_, err = r.client.Put(ctx, key(dataset, instance.Addr), string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return errors.Wrapf(err, "register %s at %s", dataset, instance.Addr)
	}

	// The keep-alive must outlive this call, so it runs on the registry context.
	ch, err := r.client.KeepAlive(r.ctx, lease.ID)
	if err != nil {
		return errors.Wrap(err, "keep lease alive")
	}

	// Consume KeepAlive responses to prevent the channel from filling up
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for range ch {
		}
		r.log.Debug("lease keep-alive stopped", zap.String("dataset", dataset), zap.String("addr", instance.Addr))
	}()
	return nil
}

// Deregister removes a server instance for dataset.
// Called during graceful shutdown before closing the listener.
func (r *EtcdRegistry) Deregister(dataset string, addr string) error {
	ctx, cancel := context.WithTimeout(r.ctx, requestTimeout)
	defer cancel()
	_, err := r.client.Delete(ctx, key(dataset, addr))
	return errors.Wrapf(err, "deregister %s at %s", dataset, addr)
}

// Watch monitors a dataset prefix in etcd and emits updated instance lists
// whenever changes occur (new registrations, deregistrations, lease expirations).
// The channel is closed by Close.
func (r *EtcdRegistry) Watch(dataset string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)
	prefix := keyPrefix + dataset + "/"

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(ch)
		watchChan := r.client.Watch(r.ctx, prefix, clientv3.WithPrefix())
		for range watchChan {
			// On any change, re-fetch the full instance list
			instances, err := r.Discover(dataset)
			if err != nil {
				r.log.Warn("watch refresh failed", zap.String("dataset", dataset), zap.Error(err))
				continue
			}
			select {
			case ch <- instances:
			case <-r.ctx.Done():
				return
			}
		}
	}()

	return ch
}

// Discover returns all currently registered instances for dataset.
func (r *EtcdRegistry) Discover(dataset string) ([]ServiceInstance, error) {
	ctx, cancel := context.WithTimeout(r.ctx, requestTimeout)
	defer cancel()

	resp, err := r.client.Get(ctx, keyPrefix+dataset+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, errors.Wrapf(err, "discover %s", dataset)
	}

	instances := make([]ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance ServiceInstance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			r.log.Warn("skipping malformed registry entry", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		instances = append(instances, instance)
	}
	if len(instances) == 0 {
		return nil, errors.Wrapf(ErrNoInstances, "dataset %q", dataset)
	}
	return instances, nil
}

// Close stops keep-alives and watches and closes the etcd client. Leases
// that are no longer renewed expire after their TTL.
func (r *EtcdRegistry) Close() error {
	r.cancel()
	err := r.client.Close()
	r.wg.Wait()
	return errors.WithStack(err)
}
