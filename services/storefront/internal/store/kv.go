// Package store persists cart snapshots, row-id registries and pending
// removals in a key-value backend.
package store

import (
	"context"
)

// KV is a string-keyed byte store.
type KV interface {
	// Get returns the value stored under key. A missing key yields an error
	// matching apperrors.ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// prefixedKV scopes every key of an underlying KV under a namespace.
type prefixedKV struct {
	kv KV
	ns string
}

// Prefixed returns a KV that stores every key of kv under ns. Each device
// session gets its own namespace so guest carts of different devices never
// collide.
func Prefixed(kv KV, ns string) KV {
	if p, ok := kv.(*prefixedKV); ok {
		return &prefixedKV{kv: p.kv, ns: p.ns + ns}
	}
	return &prefixedKV{kv: kv, ns: ns}
}

func (p *prefixedKV) Get(ctx context.Context, key string) ([]byte, error) {
	return p.kv.Get(ctx, p.ns+key)
}

func (p *prefixedKV) Set(ctx context.Context, key string, value []byte) error {
	return p.kv.Set(ctx, p.ns+key, value)
}

func (p *prefixedKV) Delete(ctx context.Context, key string) error {
	return p.kv.Delete(ctx, p.ns+key)
}

// DeviceNamespace returns the key namespace of a device session.
func DeviceNamespace(deviceID string) string {
	return "device:" + deviceID + ":"
}
