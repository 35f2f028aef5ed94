package task_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskgrid/taskgrid/internal/pkg/service/common/dependencies"
	"github.com/taskgrid/taskgrid/internal/pkg/service/common/utctime"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/compute/future"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/compute/job"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/compute/security"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/compute/session"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/compute/task"
	gridDependencies "github.com/taskgrid/taskgrid/internal/pkg/service/grid/dependencies"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/store/model"
	"github.com/taskgrid/taskgrid/internal/pkg/utils/errors"
	"github.com/taskgrid/taskgrid/internal/pkg/utils/etcdhelper"
)

// restrictedDeps overrides the authorizer, so a cancellation can be denied in tests.
type restrictedDeps struct {
	gridDependencies.Mocked
	authorizer security.Authorizer
}

func (v *restrictedDeps) Authorizer() security.Authorizer {
	return v.authorizer
}

func TestFuture_New_Panics(t *testing.T) {
	t.Parallel()

	d := gridDependencies.NewMockedDeps(t)
	record := newTaskRecord(d, "some.task")

	assert.PanicsWithError(t, "dependencies cannot be nil", func() {
		task.New(nil, session.New(d, record))
	})
	assert.PanicsWithError(t, "session cannot be nil", func() {
		task.New(d, nil)
	})
	assert.PanicsWithError(t, "error cannot be nil", func() {
		task.NewFinished(d, "some.task", nil)
	})
}

func TestFuture_PublicView(t *testing.T) {
	t.Parallel()

	d := gridDependencies.NewMockedDeps(t)
	f := task.New(d, session.New(d, newTaskRecord(d, "some.task")))

	// The public view is a stable instance, repeated calls return the same pointer
	p := f.Public()
	assert.Same(t, p, f.Public())

	// The view reads the state of the underlying future
	assert.True(t, p.IsPending())
	assert.Equal(t, future.Pending, p.State())
	assert.NoError(t, p.Err())

	// The view exposes the session of the task
	sessFromView, err := p.Session()
	assert.NoError(t, err)
	sessFromFuture, err := f.Session()
	assert.NoError(t, err)
	assert.Same(t, sessFromView, sessFromFuture)
}

func TestFuture_ZeroValue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	// The zero value carries no session and no collaborators, all operations fail, nothing panics
	f := &task.Future{}

	_, err := f.Session()
	assert.ErrorIs(t, err, task.ErrNoSession)

	ok, err := f.Cancel(ctx)
	assert.False(t, ok)
	assert.ErrorIs(t, err, task.ErrNoSession)

	ok, err = f.CancelOnMasterLeave(ctx)
	assert.False(t, ok)
	assert.ErrorIs(t, err, task.ErrNoSession)

	assert.Nil(t, f.Public())
}

func TestFuture_NewFinished(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d := gridDependencies.NewMockedDeps(t)

	opErr := errors.New("task could not start")
	f := task.NewFinished(d, "some.task", opErr)

	// The future is terminal from the start
	p := f.Public()
	assert.True(t, p.IsFailed())
	assert.Equal(t, future.Failed, p.State())
	assert.Equal(t, opErr, p.Err())
	select {
	case <-p.Done():
	default:
		assert.Fail(t, "the done channel should be closed")
	}

	// Wait does not block
	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	assert.Equal(t, opErr, p.Wait(waitCtx))

	// The callback is invoked immediately
	callbackErr := make(chan error, 1)
	p.OnDone(func(result task.Result, err error) {
		callbackErr <- err
	})
	assert.Equal(t, opErr, <-callbackErr)

	// The future carries a closed session stub
	sess, err := f.Session()
	assert.NoError(t, err)
	assert.Equal(t, "some.task", sess.TaskType())
	assert.Equal(t, d.Process().UniqueID(), sess.Node())
	assert.Empty(t, sess.Topology())

	// The session has never been live, the start time equals the end time
	require.NotNil(t, sess.FinishedAt())
	assert.Equal(t, sess.StartedAt(), *sess.FinishedAt())

	// Storage operations fail on the closed session
	err = sess.SaveCheckpoint(ctx, session.CheckpointScopeSession, "snapshot", []byte("data"))
	assert.ErrorIs(t, err, session.ErrSessionClosed)
	_, err = sess.WaitForAttribute(ctx, "some-key", time.Second)
	assert.ErrorIs(t, err, session.ErrWaitInterrupted)
	assert.ErrorIs(t, err, session.ErrSessionClosed)

	// Cancellation of a failed future reports the current state, no transition happens
	ok, err := f.Cancel(ctx)
	assert.False(t, ok)
	assert.NoError(t, err)
	assert.True(t, p.IsFailed())
}

func TestFuture_NewFromRecord(t *testing.T) {
	t.Parallel()

	d := gridDependencies.NewMockedDeps(t)

	// A record of a running task yields a pending future
	record := newTaskRecord(d, "some.task")
	f := task.NewFromRecord(d, record)
	assert.True(t, f.Public().IsPending())
	sess, err := f.Session()
	assert.NoError(t, err)
	assert.Equal(t, record.TaskID, sess.TaskID())

	// A record of a successful task yields a completed future with the result and the outputs
	finishedAt := utctime.From(d.Clock().Now())
	record = newTaskRecord(d, "some.task")
	record.FinishedAt = &finishedAt
	record.Result = "some result"
	record.Outputs = model.Outputs{"rows": 123}
	f = task.NewFromRecord(d, record)
	assert.True(t, f.Public().IsCompleted())
	assert.Equal(t, "some result", f.Public().Value().Result())
	assert.Equal(t, map[string]any{"rows": 123}, f.Public().Value().Outputs())

	// A record of a failed task yields a failed future
	record = newTaskRecord(d, "some.task")
	record.FinishedAt = &finishedAt
	record.Error = "some error"
	f = task.NewFromRecord(d, record)
	assert.True(t, f.Public().IsFailed())
	assert.Equal(t, "some error", f.Public().Err().Error())

	// A record of a cancelled task yields a cancelled future
	record = newTaskRecord(d, "some.task")
	record.FinishedAt = &finishedAt
	record.Error = "task cancelled"
	record.Cancelled = true
	f = task.NewFromRecord(d, record)
	assert.True(t, f.Public().IsCancelled())
	assert.ErrorIs(t, f.Public().Err(), future.ErrCancelled)
}

func TestFuture_CancelUnauthorized(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d := gridDependencies.NewMockedDeps(t)
	restricted := &restrictedDeps{
		Mocked: d,
		authorizer: security.NewAuthorizer(security.Config{
			Enforce:          true,
			AllowedTaskTypes: "allowed.task",
		}),
	}

	// The denial is propagated unchanged and the future stays pending
	f := task.New(restricted, session.New(restricted, newTaskRecord(restricted, "forbidden.task")))
	ok, err := f.Cancel(ctx)
	assert.False(t, ok)
	var permErr *security.PermissionError
	assert.ErrorAs(t, err, &permErr)
	assert.Equal(t, `permission "task:cancel" denied for the task type "forbidden.task"`, err.Error())
	assert.True(t, f.Public().IsPending())

	// No cancel mark has been written
	etcdhelper.AssertKVsString(t, d.TestEtcdClient(), ``)

	// An allowed task type passes the check
	f = task.New(restricted, session.New(restricted, newTaskRecord(restricted, "allowed.task")))
	ok, err = f.Cancel(ctx)
	assert.True(t, ok)
	assert.NoError(t, err)
	assert.True(t, f.Public().IsCancelled())

	// The cancellation has been fanned out, there is no task record to finalize, only the mark
	etcdhelper.AssertKVsString(t, d.TestEtcdClient(), `
<<<<<
runtime/cancel/%s
-----
{
  "taskId": "%s",
  "node": "test-node",
  "reason": "task cancelled",
  "cancelledAt": "%s"
}
>>>>>
`)
}

func TestFuture_CancelOnMasterLeave(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	// The node2 is the only active node in the cluster, the master node1 has left
	d := gridDependencies.NewMockedDeps(t, dependencies.WithUniqueID("node2"))
	client := d.TestEtcdClient()
	_ = d.DistributionNode()
	jobs := d.JobManager()

	// Store a record of a task mastered by the departed node1
	record := newTaskRecord(d, "some.task")
	record.Node = "node1"
	record.Topology = []string{"node1", "node2"}
	require.NoError(t, d.Schema().Tasks().ByID(record.TaskID).Put(record).Do(ctx, d.EtcdClient()))

	// Register a local job of the task, with a master-leave callback
	leaveCalls := 0
	j := jobs.StartJob(ctx, record.TaskID, job.WithOnMasterLeave(func() { leaveCalls++ }))

	// Reconstruct the future from the record and unwind the local jobs
	f := task.NewFromRecord(d, record)
	assert.True(t, f.Public().IsPending())
	ok, err := f.CancelOnMasterLeave(ctx)
	assert.True(t, ok)
	assert.NoError(t, err)
	assert.True(t, f.Public().IsCancelled())

	// The callback has been invoked and the job has been cancelled, without a reason
	assert.Equal(t, 1, leaveCalls)
	assert.Error(t, j.Context().Err())
	assert.Equal(t, context.Canceled, context.Cause(j.Context()))

	// There is no cluster-wide notification, the task record is untouched and there is no cancel mark
	expectedState := `
<<<<<
runtime/nodes/active/node2 (lease)
-----
node2
>>>>>

<<<<<
task/%s
-----
{
  "taskId": "%s",
  "type": "some.task",
  "createdAt": "%s",
  "node": "node1",
  "topology": [
    "node1",
    "node2"
  ],
  "lock": "runtime/lock/task/some.task"
}
>>>>>
`
	etcdhelper.AssertKVsString(t, client, expectedState)

	// Repeated call reports the state, the callbacks are not invoked again
	ok, err = f.CancelOnMasterLeave(ctx)
	assert.True(t, ok)
	assert.NoError(t, err)
	assert.Equal(t, 1, leaveCalls)

	// The cluster-wide cancellation of an already cancelled future reports the state,
	// the task manager is not notified and no mark is written
	ok, err = f.Cancel(ctx)
	assert.True(t, ok)
	assert.NoError(t, err)
	etcdhelper.AssertKVsString(t, client, expectedState)
}

// newTaskRecord creates a record of a running task, as the Submit method does.
func newTaskRecord(d gridDependencies.Mocked, taskType string) model.Task {
	return model.Task{
		TaskID:    model.NewTaskID(),
		Type:      taskType,
		CreatedAt: utctime.From(d.Clock().Now()),
		Node:      d.Process().UniqueID(),
		Topology:  []string{d.Process().UniqueID()},
		Lock:      d.Schema().Runtime().Lock().Task().LockKey(taskType),
	}
}
