package storage

import (
	"context"
	"strings"
)

// Namespaced wraps a KV so every key is prefixed with a fixed namespace.
// Callers never see or escape the prefix.
func Namespaced(inner KV, namespace string) KV {
	ns := strings.TrimSpace(namespace)
	if ns == "" {
		return inner
	}
	if !strings.HasSuffix(ns, ".") {
		ns += "."
	}
	return &namespacedKV{inner: inner, prefix: ns}
}

type namespacedKV struct {
	inner  KV
	prefix string
}

func (n *namespacedKV) qualify(key string) string { return n.prefix + key }

func (n *namespacedKV) Write(ctx context.Context, key, value string) error {
	return n.inner.Write(ctx, n.qualify(key), value)
}

func (n *namespacedKV) Read(ctx context.Context, key string) (string, bool, error) {
	return n.inner.Read(ctx, n.qualify(key))
}

func (n *namespacedKV) Delete(ctx context.Context, key string) error {
	return n.inner.Delete(ctx, n.qualify(key))
}

func (n *namespacedKV) ContainsKey(ctx context.Context, key string) (bool, error) {
	return n.inner.ContainsKey(ctx, n.qualify(key))
}

func (n *namespacedKV) Close() error { return n.inner.Close() }
