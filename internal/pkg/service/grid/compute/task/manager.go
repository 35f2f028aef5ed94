// Package task provides execution of distributed tasks and their completion futures.
//
// The manager starts a task at most once in the whole cluster, the uniqueness
// is guaranteed by an etcd transaction with an exclusive lock, see Submit.
// The task record is stored in the etcd, so all nodes can observe the progress.
//
// Each execution is represented by the Future handle with two cancellation paths:
//   - Future.Cancel is cluster-wide, it is authorized and fanned out through the cancel marks.
//   - Future.CancelOnMasterLeave unwinds the local jobs after the task master left the cluster.
package task

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	etcd "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"

	"github.com/taskgrid/taskgrid/internal/pkg/encoding/json"
	"github.com/taskgrid/taskgrid/internal/pkg/log"
	"github.com/taskgrid/taskgrid/internal/pkg/service/common/etcdop"
	"github.com/taskgrid/taskgrid/internal/pkg/service/common/etcdop/op"
	"github.com/taskgrid/taskgrid/internal/pkg/service/common/servicectx"
	"github.com/taskgrid/taskgrid/internal/pkg/service/common/utctime"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/compute/future"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/compute/job"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/compute/security"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/compute/session"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/store/model"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/store/schema"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/worker/distribution"
	"github.com/taskgrid/taskgrid/internal/pkg/telemetry"
	"github.com/taskgrid/taskgrid/internal/pkg/utils/errors"
)

const (
	spanName = "taskgrid.task"
	// cancelReason is stored in the cancel mark and in the record of a cancelled task.
	cancelReason = "task cancelled"
)

// Manager runs tasks on the cluster node and owns the registry of their completion futures.
// See comments in the Submit method.
type Manager struct {
	deps   dependencies
	tracer telemetry.Tracer
	clock  clock.Clock
	logger log.Logger
	client *etcd.Client
	schema *schema.Schema

	tasksCtx context.Context
	tasksWg  *sync.WaitGroup

	sessionLock *sync.RWMutex
	session     *concurrency.Session

	nodeID     string
	config     managerConfig
	tasksCount *atomic.Int64

	runningTasks metric.Int64UpDownCounter
	taskDuration metric.Float64Histogram

	taskLocksMutex *sync.Mutex
	taskLocks      map[string]bool

	futuresLock *sync.Mutex
	futures     map[model.TaskID]*Future
}

type dependencies interface {
	Telemetry() telemetry.Telemetry
	Clock() clock.Clock
	Logger() log.Logger
	Process() *servicectx.Process
	EtcdClient() *etcd.Client
	Schema() *schema.Schema
	Authorizer() security.Authorizer
	DistributionNode() *distribution.Node
	JobManager() *job.Manager
	TaskManager() *Manager
}

func NewManager(d dependencies, opts ...Option) (*Manager, error) {
	// Apply options
	c := defaultConfig()
	for _, o := range opts {
		o(&c)
	}

	proc := d.Process()
	meter := d.Telemetry().Meter()

	m := &Manager{
		deps:           d,
		tracer:         d.Telemetry().Tracer(),
		clock:          d.Clock(),
		logger:         d.Logger().AddPrefix("[task]"),
		client:         d.EtcdClient(),
		schema:         d.Schema(),
		nodeID:         proc.UniqueID(),
		config:         c,
		tasksCount:     atomic.NewInt64(0),
		runningTasks:   telemetry.UpDownCounter(meter, "taskgrid.task.running", "Background running tasks count.", ""),
		taskDuration:   telemetry.Histogram(meter, "taskgrid.task.duration", "Background task duration.", "ms"),
		taskLocksMutex: &sync.Mutex{},
		taskLocks:      make(map[string]bool),
		futuresLock:    &sync.Mutex{},
		futures:        make(map[model.TaskID]*Future),
	}

	// Graceful shutdown
	var cancelTasks context.CancelFunc
	m.tasksWg = &sync.WaitGroup{}
	m.tasksCtx, cancelTasks = context.WithCancel(context.Background())
	sessionWg := &sync.WaitGroup{}
	sessionCtx, cancelSession := context.WithCancel(context.Background())
	proc.OnShutdown(func() {
		m.logger.Info("received shutdown request")
		if c := m.tasksCount.Load(); c > 0 {
			m.logger.Infof(`waiting for "%d" tasks to be finished`, c)
		}
		cancelTasks()
		m.tasksWg.Wait()
		cancelSession()
		sessionWg.Wait()
		m.logger.Info("shutdown done")
	})

	// Create etcd session
	m.sessionLock = &sync.RWMutex{}
	sessionInit := etcdop.ResistantSession(sessionCtx, sessionWg, m.logger, m.client, c.ttlSeconds, func(session *concurrency.Session) error {
		m.sessionLock.Lock()
		m.session = session
		m.sessionLock.Unlock()
		return nil
	})

	if err := <-sessionInit; err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Manager) TasksCount() int64 {
	return m.tasksCount.Load()
}

// Future returns the registered completion future of the task.
// Only tasks submitted on this node have a future here,
// the future is removed when the task reaches a terminal state.
func (m *Manager) Future(taskID model.TaskID) (*Future, bool) {
	m.futuresLock.Lock()
	defer m.futuresLock.Unlock()
	f, found := m.futures[taskID]
	return f, found
}

// Futures returns a snapshot of all registered completion futures.
func (m *Manager) Futures() []*Future {
	m.futuresLock.Lock()
	defer m.futuresLock.Unlock()
	out := make([]*Future, 0, len(m.futures))
	for _, f := range m.futures {
		out = append(out, f)
	}
	return out
}

// Submit starts a task backed by a local lock and an etcd transaction, so the task runs at most once in the cluster.
// The task record and the exclusive lock are written atomically,
// if the lock is already taken, the task is ignored and a nil future is returned.
// The completion future of a started task is registered in the manager, see the Future method.
func (m *Manager) Submit(cfg Config) (*Future, error) {
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	// Generate lock name if it is not set
	if cfg.Lock == "" {
		cfg.Lock = cfg.Type + "/" + cfg.Key
	}
	lock := m.schema.Runtime().Lock().Task().LockKey(cfg.Lock)

	// Lock task locally,
	// so locally can be determined that the task is already running.
	ok, unlock := m.lockTaskLocally(lock.Key())
	if !ok {
		return nil, nil
	}

	// Create task record
	taskID := model.NewTaskID()
	record := model.Task{
		TaskID:    taskID,
		Type:      cfg.Type,
		CreatedAt: utctime.From(m.clock.Now()),
		Node:      m.nodeID,
		Topology:  m.topologyOf(cfg),
		Lock:      lock,
	}

	// Get etcd session
	m.sessionLock.RLock()
	etcdSession := m.session
	m.sessionLock.RUnlock()

	// Create task and lock in etcd.
	// Atomicity: if the lock key already exists, then the transaction fails and the task is ignored.
	// Resistance to outages: if the node fails, the lock is released automatically by the lease, after the session TTL seconds.
	logger := m.logger.AddPrefix(fmt.Sprintf("[%s]", taskID))
	createTaskOp := op.MergeToTxn(
		m.schema.Tasks().ByID(taskID).Put(record),
		lock.PutIfNotExists(record.Node, etcd.WithLease(etcdSession.Lease())),
	)
	if resp, err := createTaskOp.Do(m.tasksCtx, m.client); err != nil {
		unlock()
		return nil, errors.Errorf(`cannot start task "%s": %w`, taskID, err)
	} else if !resp.Succeeded {
		unlock()
		logger.Infof(`task ignored, the lock "%s" is in use`, lock.Key())
		return nil, nil
	}

	// Register the completion future, it is removed when the task reaches a terminal state
	fut := New(m.deps, session.New(m.deps, record))
	m.register(taskID, fut)
	fut.cell.OnDone(func(*future.Future[Result]) {
		m.unregister(taskID)
	})

	// Run operation in the background
	logger.Infof(`started task`)
	logger.Debugf(`lock acquired "%s"`, record.Lock.Key())
	go func() {
		defer unlock()
		m.runTask(logger, fut, record, cfg)
	}()

	return fut, nil
}

// OnCancelled fans the task cancellation out to the whole cluster.
// It is invoked by the future on the won cancel transition, see Future.Cancel.
//
// A cancel mark is written to the etcd, every node watches the marks
// and cancels the local jobs of the task, see the job package.
// The task record is finalized as cancelled in the same transaction, the exclusive lock
// stays untouched, it is released by the operation unwind or by the lease expiration.
func (m *Manager) OnCancelled(ctx context.Context, taskID model.TaskID) error {
	now := utctime.From(m.clock.Now())
	mark := model.CancelMark{TaskID: taskID, Node: m.nodeID, Reason: cancelReason, CancelledAt: now}
	markOp := m.schema.Runtime().Cancel().ByTaskID(taskID).Put(mark)

	// Read the task record, it may be missing if it has been already cleaned up
	kv, err := m.schema.Tasks().ByID(taskID).Get().Do(ctx, m.client)
	if err != nil {
		return errors.Errorf(`cannot cancel task "%s": %w`, taskID, err)
	}

	// Write only the mark if there is no processing record to finalize
	if kv == nil || !kv.Value.IsProcessing() {
		if err := markOp.Do(ctx, m.client); err != nil {
			return errors.Errorf(`cannot cancel task "%s": %w`, taskID, err)
		}
		m.logger.Infof(`task "%s" cancelled`, taskID)
		return nil
	}

	// Finalize the task record and write the cancel mark atomically
	record := kv.Value
	duration := now.Time().Sub(record.CreatedAt.Time())
	record.FinishedAt = &now
	record.Duration = &duration
	record.Error = cancelReason
	record.Cancelled = true
	saveOp := op.MergeToTxn(markOp, m.schema.Tasks().ByID(taskID).Put(record))
	if err := saveOp.DoOrErr(ctx, m.client); err != nil {
		return errors.Errorf(`cannot cancel task "%s": %w`, taskID, err)
	}

	m.logger.Infof(`task "%s" cancelled`, taskID)
	return nil
}

func (m *Manager) runTask(logger log.Logger, fut *Future, record model.Task, cfg Config) {
	// Create task context
	ctx, cancel := cfg.Context()
	defer cancel()
	if _, ok := ctx.Deadline(); !ok {
		panic(errors.Errorf(`task "%s" context must have a deadline`, cfg.Type))
	}

	// Register the operation as a local job, so the cancel marks can reach it, see the job package
	opJob := m.deps.JobManager().StartJob(ctx, record.TaskID)
	defer opJob.Finish()
	ctx = opJob.Context()

	// Stop the operation immediately when the future is cancelled,
	// the cancel mark may be written before the job is registered
	fut.cell.OnDone(func(cell *future.Future[Result]) {
		if cell.IsCancelled() {
			opJob.Finish()
		}
	})

	// Setup telemetry
	ctx, span := m.tracer.Start(ctx, spanName+"."+cfg.Type, trace.WithAttributes(
		attribute.String("taskId", record.TaskID.String()),
		attribute.String("taskType", cfg.Type),
		attribute.String("lock", record.Lock.Key()),
		attribute.String("node", record.Node),
		attribute.String("createdAt", record.CreatedAt.String()),
	))

	// Process results in defer to catch panic
	var result Result
	defer span.End(&result.error)

	meterAttrs := metric.WithAttributes(attribute.String("task_type", cfg.Type))
	m.runningTasks.Add(ctx, 1, meterAttrs)
	defer func() {
		m.runningTasks.Add(ctx, -1, meterAttrs)
	}()

	// Do operation
	startTime := m.clock.Now()
	func() {
		defer func() {
			if panicErr := recover(); panicErr != nil {
				err := errors.Errorf("panic: %s, stacktrace: %s", panicErr, string(debug.Stack()))
				logger.Errorf(`task panic: %s`, err)
				if result.error == nil {
					result = ErrResult(err)
				}
			}
		}()
		result = cfg.Operation(ctx, logger)
	}()

	// Calculate duration
	endTime := m.clock.Now()
	finishedAt := utctime.From(endTime)
	duration := endTime.Sub(startTime)
	m.taskDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(
		attribute.String("task_type", cfg.Type),
		attribute.Bool("is_success", result.error == nil),
	))

	// Complete the future, the transition is lost if the task has been cancelled in the meantime
	if result.error == nil {
		fut.cell.TryComplete(result)
	} else {
		fut.cell.TryFail(result.error)
	}

	// The record of a cancelled task has been finalized by the cancellation, see OnCancelled,
	// so only the lock is released here
	if fut.cell.IsCancelled() {
		logger.Infof(`task cancelled (%s)`, duration)
		m.releaseTaskLock(logger, record.Lock)
		return
	}

	// Update fields
	record.FinishedAt = &finishedAt
	record.Duration = &duration
	record.Outputs = result.outputs
	if result.error == nil {
		record.Result = result.result
		if len(record.Outputs) > 0 {
			logger.Infof(`task succeeded (%s): %s outputs: %s`, duration, record.Result, json.MustEncodeString(record.Outputs, false))
		} else {
			logger.Infof(`task succeeded (%s): %s`, duration, record.Result)
		}
	} else {
		record.Error = result.error.Error()
		if result.IsUserError() {
			record.UserError = &model.Error{Name: result.ErrorType(), Message: record.Error}
		}
		if len(record.Outputs) > 0 {
			logger.Warnf(`task failed (%s): %s outputs: %s`, duration, errors.Format(result.error, errors.FormatWithStack()), json.MustEncodeString(record.Outputs, false))
		} else {
			logger.Warnf(`task failed (%s): %s`, duration, errors.Format(result.error, errors.FormatWithStack()))
		}
	}
	span.SetAttributes(
		attribute.Float64("duration", record.Duration.Seconds()),
		attribute.String("result", record.Result),
		attribute.String("finishedAt", record.FinishedAt.String()),
	)

	// If release of the lock takes longer than the ttl, lease is expired anyway
	opCtx, opCancel := context.WithTimeout(context.Background(), time.Duration(m.config.ttlSeconds)*time.Second)
	defer opCancel()

	// Update task and release lock in etcd
	finishTaskOp := op.MergeToTxn(
		m.schema.Tasks().ByID(record.TaskID).Put(record),
		record.Lock.DeleteIfExists(),
	)
	if resp, err := finishTaskOp.Do(opCtx, m.client); err != nil {
		logger.Errorf(`cannot update task and release lock: %s`, err)
		return
	} else if !resp.Succeeded {
		logger.Errorf(`cannot release task lock "%s", not found`, record.Lock.Key())
		return
	}
	logger.Debugf(`lock released "%s"`, record.Lock.Key())
}

func (m *Manager) releaseTaskLock(logger log.Logger, lock etcdop.Key) {
	// If release of the lock takes longer than the ttl, lease is expired anyway
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(m.config.ttlSeconds)*time.Second)
	defer cancel()

	if ok, err := lock.DeleteIfExists().Do(ctx, m.client); err != nil {
		logger.Errorf(`cannot release task lock: %s`, err)
		return
	} else if !ok {
		logger.Errorf(`cannot release task lock "%s", not found`, lock.Key())
		return
	}
	logger.Debugf(`lock released "%s"`, lock.Key())
}

// topologyOf returns the task topology, the submitting node is always the first member.
func (m *Manager) topologyOf(cfg Config) []string {
	topology := []string{m.nodeID}
	for _, nodeID := range cfg.Topology {
		if !slices.Contains(topology, nodeID) {
			topology = append(topology, nodeID)
		}
	}
	return topology
}

func (m *Manager) register(taskID model.TaskID, f *Future) {
	m.futuresLock.Lock()
	defer m.futuresLock.Unlock()
	m.futures[taskID] = f
}

func (m *Manager) unregister(taskID model.TaskID) {
	m.futuresLock.Lock()
	defer m.futuresLock.Unlock()
	delete(m.futures, taskID)
}

// lockTaskLocally guarantees that the task runs at most once on this node.
// Uniqueness within the cluster is guaranteed by the etcd transaction, see the Submit method.
func (m *Manager) lockTaskLocally(lock string) (ok bool, unlock func()) {
	m.taskLocksMutex.Lock()
	defer m.taskLocksMutex.Unlock()
	if m.taskLocks[lock] {
		return false, nil
	}

	m.tasksWg.Add(1)
	m.tasksCount.Inc()
	m.taskLocks[lock] = true

	return true, func() {
		m.taskLocksMutex.Lock()
		defer m.taskLocksMutex.Unlock()
		delete(m.taskLocks, lock)
		m.tasksCount.Dec()
		m.tasksWg.Done()
	}
}
