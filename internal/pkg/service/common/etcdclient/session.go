package etcdclient

import (
	"time"

	etcd "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/taskgrid/taskgrid/internal/pkg/log"
	"github.com/taskgrid/taskgrid/internal/pkg/service/common/servicectx"
	"github.com/taskgrid/taskgrid/internal/pkg/utils/errors"
)

// CreateConcurrencySession creates an etcd session with a keep-alive lease.
// Ephemeral keys created with the session lease are deleted when the node crashes,
// at the latest after the TTL seconds. Close of the session is registered to the process shutdown.
func CreateConcurrencySession(logger log.Logger, proc *servicectx.Process, client *etcd.Client, ttlSeconds int) (*concurrency.Session, error) {
	logger = logger.AddPrefix("[etcd-session]")

	startTime := time.Now()
	logger.Info("creating etcd session")
	session, err := concurrency.NewSession(client, concurrency.WithTTL(ttlSeconds))
	if err != nil {
		return nil, errors.Errorf("cannot create etcd session: %w", err)
	}
	logger.Infof("created etcd session | %s", time.Since(startTime))

	proc.OnShutdown(func() {
		startTime := time.Now()
		logger.Info("closing etcd session")
		if err := session.Close(); err != nil {
			logger.Warnf("cannot close etcd session: %s", err)
		} else {
			logger.Infof("closed etcd session | %s", time.Since(startTime))
		}
	})

	return session, nil
}
