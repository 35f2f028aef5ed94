package service

import (
	"context"
	"sync"

	"github.com/taskgrid/taskgrid/internal/pkg/log"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/worker/distribution"
)

// cleanupOwnerKey elects the cleanup owner node in the consistent hash ring.
// The other nodes skip the tick, the lock in etcd guards the rest, see the task.Manager.Cleanup method.
const cleanupOwnerKey = "tasks.cleanup"

// startCleanup triggers deletion of the records of the old finished tasks periodically.
// The ticker runs under the distribution executor, so it is restarted on each distribution change.
func (s *Service) startCleanup() error {
	return s.dist.StartExecutor("cleanup", func(ctx context.Context, wg *sync.WaitGroup, logger log.Logger, assigner *distribution.Assigner) error {
		// The ticker is created as a part of the work initialization, StartExecutor waits for it
		ticker := s.clock.Ticker(s.config.cleanupInterval)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if !assigner.MustCheckIsOwner(cleanupOwnerKey) {
						logger.Debug("skipped, the node is not the cleanup owner")
						continue
					}
					if err := s.tasks.Cleanup(); err != nil {
						logger.Errorf(`cleanup failed: %s`, err)
					}
				}
			}
		}()
		return nil
	})
}
