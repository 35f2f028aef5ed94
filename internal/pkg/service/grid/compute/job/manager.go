// Package job provides a local registry of running jobs of distributed tasks.
//
// A job is a unit of work spawned on the node as a part of a task execution.
// The registry makes the jobs addressable by the task ID:
//   - CancelJob cancels the local jobs of a task.
//   - MasterLeaveLocal invokes the master-leave callbacks of the local jobs,
//     see the Future.CancelOnMasterLeave method in the task package.
//
// The manager also watches the cancel marks written by the task manager,
// so a cancellation started on any node cancels the local jobs on every node.
package job

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	etcd "go.etcd.io/etcd/client/v3"
	"go.opentelemetry.io/otel/metric"

	"github.com/taskgrid/taskgrid/internal/pkg/idgenerator"
	"github.com/taskgrid/taskgrid/internal/pkg/log"
	"github.com/taskgrid/taskgrid/internal/pkg/service/common/etcdop"
	"github.com/taskgrid/taskgrid/internal/pkg/service/common/servicectx"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/store/model"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/store/schema"
	"github.com/taskgrid/taskgrid/internal/pkg/telemetry"
	"github.com/taskgrid/taskgrid/internal/pkg/utils/errors"
)

type Manager struct {
	logger log.Logger
	client *etcd.Client
	schema *schema.Schema

	cancelledJobs metric.Int64Counter

	lock *sync.Mutex
	jobs map[model.TaskID]map[string]*Job
}

type dependencies interface {
	Logger() log.Logger
	Telemetry() telemetry.Telemetry
	Process() *servicectx.Process
	EtcdClient() *etcd.Client
	Schema() *schema.Schema
}

func NewManager(d dependencies) (*Manager, error) {
	m := &Manager{
		logger:        d.Logger().AddPrefix("[job]"),
		client:        d.EtcdClient(),
		schema:        d.Schema(),
		cancelledJobs: telemetry.Counter(d.Telemetry().Meter(), "taskgrid.job.cancelled", "Count of cancelled local jobs.", "count"),
		lock:          &sync.Mutex{},
		jobs:          make(map[model.TaskID]map[string]*Job),
	}

	// Graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	d.Process().OnShutdown(func() {
		m.logger.Info("received shutdown request")
		cancel()
		wg.Wait()
		m.logger.Info("shutdown done")
	})

	// Watch for the cancel marks
	m.watch(ctx, wg)

	return m, nil
}

// StartJob registers a new local job of the task, the job context is derived from the given context.
// The job must be finished by the Job.Finish method when its work is done.
func (m *Manager) StartJob(ctx context.Context, taskID model.TaskID, opts ...JobOption) *Job {
	jobCtx, cancel := context.WithCancelCause(ctx)
	j := &Job{
		id:     idgenerator.Random(10),
		taskID: taskID,
		ctx:    jobCtx,
		cancel: cancel,
	}
	for _, o := range opts {
		o(j)
	}

	m.lock.Lock()
	if m.jobs[taskID] == nil {
		m.jobs[taskID] = make(map[string]*Job)
	}
	m.jobs[taskID][j.id] = j
	m.lock.Unlock()

	finishOnce := &sync.Once{}
	j.finish = func() {
		finishOnce.Do(func() {
			m.lock.Lock()
			delete(m.jobs[taskID], j.id)
			if len(m.jobs[taskID]) == 0 {
				delete(m.jobs, taskID)
			}
			m.lock.Unlock()
			cancel(nil)
			m.logger.Debugf(`job "%s" of the task "%s" finished`, j.id, taskID)
		})
	}

	m.logger.Debugf(`started job "%s" of the task "%s"`, j.id, taskID)
	return j
}

// JobsCount returns the number of the registered local jobs of the task.
func (m *Manager) JobsCount(taskID model.TaskID) int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return len(m.jobs[taskID])
}

// CancelJob cancels the local jobs of the task and removes them from the registry.
// The reason, if any, is propagated to the job contexts as the cancellation cause.
// If collectStats is true, the cancelled jobs are counted in the metrics.
func (m *Manager) CancelJob(ctx context.Context, taskID model.TaskID, reason error, collectStats bool) {
	m.lock.Lock()
	jobs := m.jobs[taskID]
	delete(m.jobs, taskID)
	m.lock.Unlock()

	if len(jobs) == 0 {
		return
	}

	for _, j := range jobs {
		j.cancel(reason)
	}

	if collectStats {
		m.cancelledJobs.Add(ctx, int64(len(jobs)))
	}

	if reason != nil {
		m.logger.Infof(`cancelled "%d" jobs of the task "%s": %s`, len(jobs), taskID, reason)
	} else {
		m.logger.Infof(`cancelled "%d" jobs of the task "%s"`, len(jobs), taskID)
	}
}

// MasterLeaveLocal invokes the master-leave callbacks of the local jobs of the task.
// It is called before the jobs cancellation, when the master node of the task has left the cluster,
// see the Future.CancelOnMasterLeave method in the task package.
func (m *Manager) MasterLeaveLocal(taskID model.TaskID) {
	m.lock.Lock()
	jobs := make([]*Job, 0, len(m.jobs[taskID]))
	for _, j := range m.jobs[taskID] {
		jobs = append(jobs, j)
	}
	m.lock.Unlock()

	count := 0
	for _, j := range jobs {
		if j.onMasterLeave != nil {
			j.onMasterLeave()
			count++
		}
	}
	if count > 0 {
		m.logger.Infof(`master leave: notified "%d" jobs of the task "%s"`, count, taskID)
	}
}

// watch for the cancel marks and cancel the local jobs of the marked tasks.
func (m *Manager) watch(ctx context.Context, wg *sync.WaitGroup) {
	pfx := m.schema.Runtime().Cancel()

	wg.Add(1)
	go func() {
		defer wg.Done()
		m.logger.Info("watching for the cancel marks")

		b := newRetryBackoff()
		for {
			// Delete events of the marks cleanup are not needed, filter them out
			ch := pfx.GetAllAndWatch(ctx, m.client, m.onWatchErr, etcd.WithFilterDelete())

			// Channel is closed on the shutdown or on a fatal watch error
			for event := range ch {
				m.onMark(ctx, event)
			}
			if ctx.Err() != nil {
				return
			}

			// Re-create the watcher, existing marks are received again, the cancellation is idempotent
			delay := b.NextBackOff()
			m.logger.Warnf("re-creating watcher, backoff delay %s", delay)
			<-time.After(delay)
		}
	}()
}

func (m *Manager) onMark(ctx context.Context, event etcdop.EventT[model.CancelMark]) {
	if event.Type == etcdop.DeleteEvent {
		return
	}

	mark := event.Value
	var reason error
	if mark.Reason != "" {
		reason = errors.New(mark.Reason)
	}
	m.CancelJob(ctx, mark.TaskID, reason, true)
}

func (m *Manager) onWatchErr(err error) {
	m.logger.Errorf("watcher failed: %s", err)
}

func newRetryBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.RandomizationFactor = 0.2
	b.InitialInterval = 50 * time.Millisecond
	b.Multiplier = 2
	b.MaxInterval = 1 * time.Minute
	b.MaxElapsedTime = 0 // never stop
	b.Reset()
	return b
}
