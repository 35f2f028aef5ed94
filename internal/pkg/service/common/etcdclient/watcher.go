package etcdclient

import (
	"context"

	etcd "go.etcd.io/etcd/client/v3"
	etcdNamespace "go.etcd.io/etcd/client/v3/namespace"
)

// NewWatcher creates an etcd watcher with the namespace prefix.
// The namespace wrapper from the etcd library doesn't implement the RequestProgress method,
// the call ends with the "not implemented" error, so the method is routed to the original watcher.
func NewWatcher(c *etcd.Client, prefix string) etcd.Watcher {
	return &namespacedWatcher{
		Watcher: etcdNamespace.NewWatcher(c.Watcher, prefix),
		base:    c.Watcher,
	}
}

type namespacedWatcher struct {
	etcd.Watcher
	base etcd.Watcher
}

func (w *namespacedWatcher) RequestProgress(ctx context.Context) error {
	return w.base.RequestProgress(ctx)
}
