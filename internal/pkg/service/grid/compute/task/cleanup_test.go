package task_test

import (
	"context"
	"testing"
	"time"

	"github.com/keboola/go-utils/pkg/wildcards"
	"github.com/stretchr/testify/require"

	"github.com/taskgrid/taskgrid/internal/pkg/idgenerator"
	"github.com/taskgrid/taskgrid/internal/pkg/service/common/utctime"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/store/model"
	"github.com/taskgrid/taskgrid/internal/pkg/utils/etcdhelper"
	"github.com/taskgrid/taskgrid/internal/pkg/utils/ioutil"
)

func TestCleanup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	etcdNamespace := "unit-" + t.Name() + "-" + idgenerator.Random(8)
	client := etcdhelper.ClientForTestWithNamespace(t, etcdNamespace)
	logs := ioutil.NewAtomicWriter()

	// Create node
	node1, d := createNode(t, etcdNamespace, logs, "node1")
	logs.Truncate()

	// Store task records in all states, on both sides of the cleanup thresholds
	now := d.Clock().Now()
	successOldAt := utctime.From(now.Add(-2 * time.Hour))
	successNewAt := utctime.From(now.Add(-30 * time.Minute))
	cancelledOldAt := utctime.From(now.Add(-49 * time.Hour))
	failedNewAt := utctime.From(now.Add(-47 * time.Hour))
	duration := 2 * time.Second
	tasks := []model.Task{
		{
			TaskID:    "0001-unfinished",
			Type:      "some.task",
			CreatedAt: utctime.From(now.Add(-49 * time.Hour)),
			Node:      "node1",
			Topology:  []string{"node1"},
			Lock:      d.Schema().Runtime().Lock().Task().LockKey("some.task/key-1"),
		},
		{
			TaskID:     "0002-success-old",
			Type:       "some.task",
			CreatedAt:  utctime.From(successOldAt.Time().Add(-duration)),
			FinishedAt: &successOldAt,
			Node:       "node1",
			Topology:   []string{"node1"},
			Lock:       d.Schema().Runtime().Lock().Task().LockKey("some.task/key-2"),
			Result:     "some result",
			Duration:   &duration,
		},
		{
			TaskID:     "0003-success-new",
			Type:       "some.task",
			CreatedAt:  utctime.From(successNewAt.Time().Add(-duration)),
			FinishedAt: &successNewAt,
			Node:       "node1",
			Topology:   []string{"node1"},
			Lock:       d.Schema().Runtime().Lock().Task().LockKey("some.task/key-3"),
			Result:     "some result",
			Duration:   &duration,
		},
		{
			TaskID:     "0004-cancelled-old",
			Type:       "some.task",
			CreatedAt:  utctime.From(cancelledOldAt.Time().Add(-duration)),
			FinishedAt: &cancelledOldAt,
			Node:       "node1",
			Topology:   []string{"node1"},
			Lock:       d.Schema().Runtime().Lock().Task().LockKey("some.task/key-4"),
			Error:      "task cancelled",
			Cancelled:  true,
			Duration:   &duration,
		},
		{
			TaskID:     "0005-failed-new",
			Type:       "some.task",
			CreatedAt:  utctime.From(failedNewAt.Time().Add(-duration)),
			FinishedAt: &failedNewAt,
			Node:       "node1",
			Topology:   []string{"node1"},
			Lock:       d.Schema().Runtime().Lock().Task().LockKey("some.task/key-5"),
			Error:      "some error",
			Duration:   &duration,
		},
	}
	for _, r := range tasks {
		require.NoError(t, d.Schema().Tasks().ByID(r.TaskID).Put(r).Do(ctx, d.EtcdClient()))
	}

	// Store the cancel mark of the cancelled task
	mark := model.CancelMark{
		TaskID:      "0004-cancelled-old",
		Node:        "node1",
		Reason:      "task cancelled",
		CancelledAt: cancelledOldAt,
	}
	require.NoError(t, d.Schema().Runtime().Cancel().ByTaskID(mark.TaskID).Put(mark).Do(ctx, d.EtcdClient()))

	// Check etcd state before cleanup
	etcdhelper.AssertKVsString(t, client, `
<<<<<
runtime/cancel/0004-cancelled-old
-----
{
  "taskId": "0004-cancelled-old",
  "node": "node1",
  "reason": "task cancelled",
  "cancelledAt": "%s"
}
>>>>>

<<<<<
task/0001-unfinished
-----
{
  "taskId": "0001-unfinished",
  "type": "some.task",
  "createdAt": "%s",
  "node": "node1",
  "topology": [
    "node1"
  ],
  "lock": "runtime/lock/task/some.task/key-1"
}
>>>>>

<<<<<
task/0002-success-old
-----
{
  "taskId": "0002-success-old",
  "type": "some.task",
  "createdAt": "%s",
  "finishedAt": "%s",
  "node": "node1",
  "topology": [
    "node1"
  ],
  "lock": "runtime/lock/task/some.task/key-2",
  "result": "some result",
  "duration": 2000000000
}
>>>>>

<<<<<
task/0003-success-new
-----
{
  "taskId": "0003-success-new",
  "type": "some.task",
  "createdAt": "%s",
  "finishedAt": "%s",
  "node": "node1",
  "topology": [
    "node1"
  ],
  "lock": "runtime/lock/task/some.task/key-3",
  "result": "some result",
  "duration": 2000000000
}
>>>>>

<<<<<
task/0004-cancelled-old
-----
{
  "taskId": "0004-cancelled-old",
  "type": "some.task",
  "createdAt": "%s",
  "finishedAt": "%s",
  "node": "node1",
  "topology": [
    "node1"
  ],
  "lock": "runtime/lock/task/some.task/key-4",
  "error": "task cancelled",
  "cancelled": true,
  "duration": 2000000000
}
>>>>>

<<<<<
task/0005-failed-new
-----
{
  "taskId": "0005-failed-new",
  "type": "some.task",
  "createdAt": "%s",
  "finishedAt": "%s",
  "node": "node1",
  "topology": [
    "node1"
  ],
  "lock": "runtime/lock/task/some.task/key-5",
  "error": "some error",
  "duration": 2000000000
}
>>>>>
`)

	// Run cleanup
	require.NoError(t, node1.Cleanup())

	// Old tasks have been deleted, the cancel mark together with its task
	etcdhelper.AssertKVsString(t, client, `
<<<<<
task/0003-success-new
-----
{
  "taskId": "0003-success-new",
  "type": "some.task",
  "createdAt": "%s",
  "finishedAt": "%s",
  "node": "node1",
  "topology": [
    "node1"
  ],
  "lock": "runtime/lock/task/some.task/key-3",
  "result": "some result",
  "duration": 2000000000
}
>>>>>

<<<<<
task/0005-failed-new
-----
{
  "taskId": "0005-failed-new",
  "type": "some.task",
  "createdAt": "%s",
  "finishedAt": "%s",
  "node": "node1",
  "topology": [
    "node1"
  ],
  "lock": "runtime/lock/task/some.task/key-5",
  "error": "some error",
  "duration": 2000000000
}
>>>>>
`)

	// Check logs
	wildcards.Assert(t, `
[node1][task][cleanup]DEBUG  lock acquired "runtime/lock/task/tasks.cleanup"
[node1][task][cleanup]DEBUG  deleted task "0001-unfinished"
[node1][task][cleanup]DEBUG  deleted task "0002-success-old"
[node1][task][cleanup]DEBUG  deleted task "0004-cancelled-old"
[node1][task][cleanup]INFO  deleted "3" tasks
[node1][task][cleanup]DEBUG  lock released "runtime/lock/task/tasks.cleanup"
`, logs.String())
}

func TestCleanupLockInUse(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	etcdNamespace := "unit-" + t.Name() + "-" + idgenerator.Random(8)
	client := etcdhelper.ClientForTestWithNamespace(t, etcdNamespace)
	logs := ioutil.NewAtomicWriter()

	// Create node
	node1, d := createNode(t, etcdNamespace, logs, "node1")
	logs.Truncate()

	// The lock is taken, another node runs the cleanup right now
	lock := d.Schema().Runtime().Lock().Task().LockKey("tasks.cleanup")
	require.NoError(t, lock.Put("other-node").Do(ctx, d.EtcdClient()))

	// Store an old task record
	now := d.Clock().Now()
	record := model.Task{
		TaskID:    "0001-unfinished",
		Type:      "some.task",
		CreatedAt: utctime.From(now.Add(-49 * time.Hour)),
		Node:      "node1",
		Topology:  []string{"node1"},
		Lock:      d.Schema().Runtime().Lock().Task().LockKey("some.task/key-1"),
	}
	require.NoError(t, d.Schema().Tasks().ByID(record.TaskID).Put(record).Do(ctx, d.EtcdClient()))

	// Run cleanup, it is skipped
	require.NoError(t, node1.Cleanup())

	// Nothing has been deleted
	etcdhelper.AssertKVsString(t, client, `
<<<<<
runtime/lock/task/tasks.cleanup
-----
other-node
>>>>>

<<<<<
task/0001-unfinished
-----
{
  "taskId": "0001-unfinished",
  "type": "some.task",
  "createdAt": "%s",
  "node": "node1",
  "topology": [
    "node1"
  ],
  "lock": "runtime/lock/task/some.task/key-1"
}
>>>>>
`)

	// Check logs
	wildcards.Assert(t, `
[node1][task][cleanup]INFO  skipped, the lock "runtime/lock/task/tasks.cleanup" is in use
`, logs.String())
}
