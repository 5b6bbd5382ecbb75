package locator

import (
	"context"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// keyPrefix mirrors the convention used by this codebase family's
// etcd-backed control-plane store: all keys live under a fixed prefix so a
// transport's endpoint registrations cannot collide with an unrelated
// tenant of the same etcd cluster.
const keyPrefix = "/strand-transport/v1/endpoints/"

// EtcdResolver resolves locator names to "host:port" strings stored in an
// etcd cluster. It performs discovery only: it never participates in the
// transport's poller loop. pkg/transport does not call Resolve; sessions are
// keyed by driver addresses the caller has already resolved.
type EtcdResolver struct {
	client *clientv3.Client
}

// NewEtcdResolver dials the etcd cluster at endpoints. The caller must call
// Close when finished.
func NewEtcdResolver(endpoints []string) (*EtcdResolver, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("locator: etcd dial: %w", err)
	}
	return &EtcdResolver{client: client}, nil
}

// Resolve looks up the "host:port" registered for name.
func (r *EtcdResolver) Resolve(ctx context.Context, name string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultResolveTimeout)
	defer cancel()

	resp, err := r.client.Get(ctx, keyPrefix+name)
	if err != nil {
		return "", fmt.Errorf("locator: etcd get %s: %w", name, err)
	}
	if len(resp.Kvs) == 0 {
		return "", fmt.Errorf("locator: no endpoint registered for %q", name)
	}
	return string(resp.Kvs[0].Value), nil
}

// Register publishes this endpoint's address under name so peers using an
// etcd: locator can find it. Intended for use by cmd/transportd at startup.
func (r *EtcdResolver) Register(ctx context.Context, name, addr string) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultResolveTimeout)
	defer cancel()
	_, err := r.client.Put(ctx, keyPrefix+name, addr)
	if err != nil {
		return fmt.Errorf("locator: etcd put %s: %w", name, err)
	}
	return nil
}

// Close releases the underlying etcd client connection.
func (r *EtcdResolver) Close() error {
	return r.client.Close()
}
