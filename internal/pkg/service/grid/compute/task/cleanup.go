package task

import (
	"context"
	"time"

	etcd "go.etcd.io/etcd/client/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/taskgrid/taskgrid/internal/pkg/service/common/etcdop/op"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/store/model"
	"github.com/taskgrid/taskgrid/internal/pkg/utils/errors"
)

const (
	CleanupTimeout              = 5 * time.Minute
	CleanupSuccessfulTasksAfter = 1 * time.Hour
	CleanupFailedTasksAfter     = 48 * time.Hour
	CleanupUnfinishedTasksAfter = 48 * time.Hour
)

// Cleanup deletes records of the old tasks, to free space in etcd.
// A cancel mark of a deleted task is deleted in the same transaction.
func (m *Manager) Cleanup() (err error) {
	logger := m.logger.AddPrefix("[cleanup]")

	// Block shutdown during the cleanup
	m.tasksWg.Add(1)
	defer m.tasksWg.Done()

	// Timeout
	ctx, cancel := context.WithTimeout(context.Background(), CleanupTimeout)
	defer cancel()

	// Get etcd session
	m.sessionLock.RLock()
	etcdSession := m.session
	m.sessionLock.RUnlock()

	// Prevent running the cleanup multiple times in the cluster, by an etcd transaction/lock
	lock := m.schema.Runtime().Lock().Task().LockKey("tasks.cleanup")
	if ok, err := lock.PutIfNotExists(m.nodeID, etcd.WithLease(etcdSession.Lease())).Do(m.tasksCtx, m.client); err != nil {
		return errors.Errorf(`cannot start: %w`, err)
	} else if !ok {
		logger.Infof(`skipped, the lock "%s" is in use`, lock.Key())
		return nil
	}
	logger.Debugf(`lock acquired "%s"`, lock.Key())

	// Release lock after the cleanup
	defer func() {
		// If release of the lock takes longer than the ttl, lease is expired anyway
		ctx, cancel := context.WithTimeout(m.tasksCtx, time.Duration(m.config.ttlSeconds)*time.Second)
		defer cancel()
		if ok, err := lock.DeleteIfExists().Do(ctx, m.client); err != nil {
			logger.Errorf(`cannot release lock: %s`, err)
			return
		} else if !ok {
			logger.Errorf(`cannot release lock "%s", not found`, lock.Key())
			return
		}
		logger.Debugf(`lock released "%s"`, lock.Key())
	}()

	// Setup telemetry
	ctx, span := m.tracer.Start(ctx, spanName, trace.WithAttributes(attribute.String("resource_name", "tasks.cleanup")))
	defer span.End(&err)

	// Go through tasks and delete old ones
	deletedTasksCount := int64(0)
	errs := errors.NewMultiError()
	kvs, err := m.schema.Tasks().GetAll().Do(ctx, m.client)
	if err != nil {
		errs.Append(err)
	}
	for _, kv := range kvs {
		if !m.isForCleanup(kv.Value) {
			continue
		}
		taskID := kv.Value.TaskID
		deleteTaskOp := op.MergeToTxn(
			m.schema.Tasks().ByID(taskID).Delete(),
			m.schema.Runtime().Cancel().ByTaskID(taskID).Delete(),
		)
		if err := deleteTaskOp.DoOrErr(ctx, m.client); err == nil {
			logger.Debugf(`deleted task "%s"`, taskID)
			deletedTasksCount++
		} else {
			errs.Append(err)
		}
	}

	logger.Infof(`deleted "%d" tasks`, deletedTasksCount)
	span.SetAttributes(attribute.Int64("task.cleanup.deletedTasksCount", deletedTasksCount))
	return errs.ErrorOrNil()
}

func (m *Manager) isForCleanup(t model.Task) bool {
	now := m.clock.Now()
	if t.IsProcessing() {
		taskAge := now.Sub(t.CreatedAt.Time())
		if taskAge >= CleanupUnfinishedTasksAfter {
			return true
		}
	} else {
		taskAge := now.Sub(t.FinishedAt.Time())
		if t.IsSuccessful() {
			if taskAge >= CleanupSuccessfulTasksAfter {
				return true
			}
		} else {
			if taskAge >= CleanupFailedTasksAfter {
				return true
			}
		}
	}
	return false
}
