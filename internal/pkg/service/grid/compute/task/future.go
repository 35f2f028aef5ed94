package task

import (
	"context"

	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/compute/future"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/compute/security"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/compute/session"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/store/model"
	"github.com/taskgrid/taskgrid/internal/pkg/utils/errors"
)

// ErrNoSession is returned when an operation needs the session or the cluster collaborators,
// but the future handle does not carry them.
// Only futures obtained from the constructors carry them, see New, NewFinished and NewFromRecord.
var ErrNoSession = errors.New("session is not attached to the future")

// Future is the privileged handle of one task execution.
// It is held by the node internals, above all by the task manager.
// User code receives the restricted view instead, see the Public method.
//
// The handle completes exactly once, see the future package for the cell semantics.
// There are two cancellation paths with a different scope:
//   - Cancel is the cluster-wide path, it requires an authorization and notifies
//     the task manager, which fans the cancellation out to all nodes.
//   - CancelOnMasterLeave is the local path used when the task master left the cluster,
//     it unwinds the local jobs only, there is nobody left to notify.
//
// The zero value is a handle without the session and the collaborators,
// all operations on it fail with ErrNoSession, nothing panics.
type Future struct {
	deps    dependencies
	session session.Session
	cell    *future.Future[Result]
	public  *PublicFuture
}

// PublicFuture is the restricted view of the future for user code.
// Waiting and completion inspection are delegated to the underlying handle,
// the cluster collaborators and the transition primitives stay hidden.
// Cancel is the only privileged operation exposed, the authorization still applies.
type PublicFuture struct {
	internal *Future
}

// New creates the future of a running task.
func New(d dependencies, sess session.Session) *Future {
	if d == nil {
		panic(errors.New("dependencies cannot be nil"))
	}
	if sess == nil {
		panic(errors.New("session cannot be nil"))
	}
	f := &Future{deps: d, session: sess, cell: future.New[Result]()}
	f.public = &PublicFuture{internal: f}
	return f
}

// NewFinished creates a future born finished with the error.
// It is used for tasks that failed before they could be started,
// the future carries a closed session stub, so the callers work with a uniform shape.
func NewFinished(d dependencies, taskType string, err error) *Future {
	if err == nil {
		panic(errors.New("error cannot be nil"))
	}
	f := New(d, session.NewClosed(d.Clock(), taskType, d.Process().UniqueID()))
	f.cell.TryFail(err)
	return f
}

// NewFromRecord reconstructs a future handle from the task record.
// It is used on the nodes other than the task master, for example to unwind
// the local jobs when the master leaves the cluster, see the worker service.
// The reconstructed handle has its own cell, a record of a finished task
// yields a future in the matching terminal state.
func NewFromRecord(d dependencies, record model.Task) *Future {
	f := New(d, session.New(d, record))
	switch {
	case record.IsProcessing():
		// The future stays pending
	case record.IsCancelled():
		f.cell.TryCancel()
	case record.IsSuccessful():
		f.cell.TryComplete(Result{result: record.Result, outputs: record.Outputs})
	default:
		f.cell.TryFail(errors.New(record.Error))
	}
	return f
}

// Session returns the session of the task.
// ErrNoSession is returned if the handle does not carry the session.
func (f *Future) Session() (session.Session, error) {
	if f.session == nil {
		return nil, ErrNoSession
	}
	return f.session, nil
}

// Public returns the restricted view of the future.
// The view is created together with the future, all calls return the same instance.
func (f *Future) Public() *PublicFuture {
	return f.public
}

// Cancel moves the task to the cancelled state, cluster-wide.
//
// The caller must be authorized to cancel this task type, a denial is returned
// unchanged and the task state does not move. On the won transition the task manager
// is notified and it fans the cancellation out to the whole cluster, see Manager.OnCancelled.
// If the transition is won but the fan-out fails, true is returned together with the error.
//
// True without an error is reported if the task is cancelled now or was cancelled before.
// Losing the transition to a completed or failed task is not an error, false is reported.
func (f *Future) Cancel(ctx context.Context) (bool, error) {
	if err := f.checkValid(); err != nil {
		return false, err
	}

	// The task name for the permission check comes from the session
	if err := f.deps.Authorizer().Check(ctx, security.PermissionTaskCancel, f.session.TaskType()); err != nil {
		return false, err
	}

	if f.cell.TryCancel() {
		if err := f.deps.TaskManager().OnCancelled(ctx, f.session.TaskID()); err != nil {
			return true, err
		}
		return true, nil
	}

	// The transition was lost, report the current state
	return f.cell.IsCancelled(), nil
}

// CancelOnMasterLeave moves the task to the cancelled state after its master node left the cluster.
//
// Unlike Cancel, there is no authorization check and no cluster-wide notification,
// each surviving node unwinds its own jobs. On the won transition, for the local node
// of the task topology, the master-leave callbacks of the jobs are invoked
// and the local jobs are cancelled without statistics collection, see the job package.
//
// True is reported if the task is cancelled now or was cancelled before.
func (f *Future) CancelOnMasterLeave(ctx context.Context) (bool, error) {
	if err := f.checkValid(); err != nil {
		return false, err
	}

	if f.cell.TryCancel() {
		localNode := f.deps.Process().UniqueID()
		jobs := f.deps.JobManager()
		for _, nodeID := range f.deps.DistributionNode().NodesFor(f.session.Topology()) {
			if nodeID == localNode {
				jobs.MasterLeaveLocal(f.session.TaskID())
				jobs.CancelJob(ctx, f.session.TaskID(), nil, false)
			}
		}
		return true, nil
	}

	return f.cell.IsCancelled(), nil
}

func (f *Future) checkValid() error {
	if f.deps == nil || f.session == nil || f.cell == nil {
		return ErrNoSession
	}
	return nil
}

// Wait blocks until the task reaches a terminal state or the context is done.
// It returns the error of a failed task and future.ErrCancelled for a cancelled task.
func (f *PublicFuture) Wait(ctx context.Context) error {
	return f.internal.cell.Wait(ctx)
}

// Done channel is closed when the task reaches a terminal state.
func (f *PublicFuture) Done() <-chan struct{} {
	return f.internal.cell.Done()
}

func (f *PublicFuture) State() future.State {
	return f.internal.cell.State()
}

func (f *PublicFuture) IsPending() bool {
	return f.internal.cell.IsPending()
}

func (f *PublicFuture) IsCompleted() bool {
	return f.internal.cell.IsCompleted()
}

func (f *PublicFuture) IsFailed() bool {
	return f.internal.cell.IsFailed()
}

func (f *PublicFuture) IsCancelled() bool {
	return f.internal.cell.IsCancelled()
}

// Value returns the result of a completed task, otherwise the zero value.
func (f *PublicFuture) Value() Result {
	return f.internal.cell.Value()
}

// Err returns the error of a failed task, future.ErrCancelled for a cancelled task, otherwise nil.
func (f *PublicFuture) Err() error {
	return f.internal.cell.Err()
}

// OnDone registers a callback invoked when the task reaches a terminal state.
// See the future package for the invocation guarantees.
func (f *PublicFuture) OnDone(fn func(result Result, err error)) {
	f.internal.cell.OnDone(func(cell *future.Future[Result]) {
		fn(cell.Value(), cell.Err())
	})
}

// Cancel requests the cluster-wide cancellation of the task, see Future.Cancel.
func (f *PublicFuture) Cancel(ctx context.Context) (bool, error) {
	return f.internal.Cancel(ctx)
}

// Session returns the session of the task, see Future.Session.
func (f *PublicFuture) Session() (session.Session, error) {
	return f.internal.Session()
}
