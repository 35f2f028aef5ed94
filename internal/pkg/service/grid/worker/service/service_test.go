package service_test

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/keboola/go-utils/pkg/wildcards"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	etcd "go.etcd.io/etcd/client/v3"
	"go.uber.org/atomic"

	"github.com/taskgrid/taskgrid/internal/pkg/idgenerator"
	"github.com/taskgrid/taskgrid/internal/pkg/log"
	"github.com/taskgrid/taskgrid/internal/pkg/service/common/dependencies"
	"github.com/taskgrid/taskgrid/internal/pkg/service/common/utctime"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/compute/job"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/compute/task"
	gridDependencies "github.com/taskgrid/taskgrid/internal/pkg/service/grid/dependencies"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/store/model"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/worker/service"
	"github.com/taskgrid/taskgrid/internal/pkg/utils/errors"
	"github.com/taskgrid/taskgrid/internal/pkg/utils/etcdhelper"
	"github.com/taskgrid/taskgrid/internal/pkg/utils/ioutil"
	"github.com/taskgrid/taskgrid/internal/pkg/utils/testhelper"
)

func TestMasterLeaveMonitor(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	etcdNamespace := "unit-" + t.Name() + "-" + idgenerator.Random(8)
	client := etcdhelper.ClientForTestWithNamespace(t, etcdNamespace)
	logs := ioutil.NewAtomicWriter()

	// The node1 is the task master, only the node2 logs are asserted
	d1 := createDeps(t, clock.New(), etcdNamespace, nil, "node1")
	_ = d1.DistributionNode()
	_ = d1.JobManager()
	waitForWatcher(t, d1)
	tasks1 := d1.TaskManager()

	// The worker service runs on the node2, without the cleanup
	d2 := createDeps(t, clock.New(), etcdNamespace, logs, "node2")
	_ = d2.JobManager()
	waitForWatcher(t, d2)
	_, err := service.New(d2, service.WithCleanup(false))
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return strings.Contains(d2.DebugLogger().AllMessages(), "watching for the node leave events")
	}, 5*time.Second, 10*time.Millisecond)

	// Start a task on the node1, with the node2 in the topology
	opEntered := make(chan struct{})
	taskWork := make(chan struct{})
	taskDone := make(chan struct{})
	fut1, err := tasks1.Submit(task.Config{
		Type:     "some.task",
		Key:      "some-key",
		Topology: []string{"node2"},
		Context: func() (context.Context, context.CancelFunc) {
			return context.WithTimeout(context.Background(), time.Minute)
		},
		Operation: func(ctx context.Context, logger log.Logger) task.Result {
			defer close(taskDone)
			close(opEntered)
			<-taskWork
			return task.OkResult("some result")
		},
	})
	assert.NoError(t, err)
	require.NotNil(t, fut1)
	select {
	case <-time.After(5 * time.Second):
		assert.Fail(t, "timeout")
	case <-opEntered:
	}

	sess, err := fut1.Session()
	require.NoError(t, err)
	taskID := sess.TaskID()

	// Register a local job of the task on the node2, with a master-leave callback
	leaveCalls := atomic.NewInt64(0)
	j2 := d2.JobManager().StartJob(ctx, taskID, job.WithOnMasterLeave(func() { leaveCalls.Inc() }))
	logs.Truncate()

	// The node1 disappears without a goodbye, as if its lease expired
	_, err = d1.Schema().Runtime().Nodes().Active().Node("node1").Delete().Do(ctx, client)
	require.NoError(t, err)

	// The monitor on the node2 unwinds the local jobs of the task
	assert.Eventually(t, func() bool {
		return strings.Contains(logs.String(), `cancelled "1" tasks of the departed node "node1"`)
	}, 5*time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 1, leaveCalls.Load())
	<-j2.Context().Done()
	assert.Equal(t, context.Canceled, context.Cause(j2.Context()))

	// The cancellation is local, the task record is untouched and there is no cancel mark
	etcdhelper.AssertKVsString(t, client, `
<<<<<
runtime/lock/task/some.task/some-key (lease)
-----
node1
>>>>>

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
  "lock": "runtime/lock/task/some.task/some-key"
}
>>>>>
`)
	assert.True(t, fut1.Public().IsPending())

	// The operation on the master is unaffected, it finishes normally
	finishTaskAndWait(t, client, taskWork, taskDone)
	assert.NoError(t, fut1.Public().Wait(ctx))
	assert.True(t, fut1.Public().IsCompleted())
	assert.Equal(t, "some result", fut1.Public().Value().Result())

	// Check etcd state after task
	etcdhelper.AssertKVsString(t, client, `
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
  "finishedAt": "%s",
  "node": "node1",
  "topology": [
    "node1",
    "node2"
  ],
  "lock": "runtime/lock/task/some.task/some-key",
  "result": "some result",
  "duration": %d
}
>>>>>
`)

	// Check the node2 logs
	wildcards.Assert(t, `
[node2][distribution]INFO  the node "node1" gone
[node2][master-leave]DEBUG  cancelling the task "%s" of the departed node "node1"
[node2][job]INFO  master leave: notified "1" jobs of the task "%s"
[node2][job]INFO  cancelled "1" jobs of the task "%s"
[node2][master-leave]INFO  cancelled "1" tasks of the departed node "node1"
`, logs.String())
}

func TestServiceCleanup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := clock.NewMock()

	etcdNamespace := "unit-" + t.Name() + "-" + idgenerator.Random(8)
	client := etcdhelper.ClientForTestWithNamespace(t, etcdNamespace)
	logs := ioutil.NewAtomicWriter()

	// Create node
	d := createDeps(t, clk, etcdNamespace, logs, "node1")
	_ = d.DistributionNode()
	_ = d.TaskManager()

	// Store a record of an old successful task
	finishedAt := utctime.From(clk.Now().Add(-2 * time.Hour))
	duration := 2 * time.Second
	record := model.Task{
		TaskID:     "some-task",
		Type:       "some.task",
		CreatedAt:  utctime.From(finishedAt.Time().Add(-duration)),
		FinishedAt: &finishedAt,
		Node:       "node1",
		Topology:   []string{"node1"},
		Lock:       d.Schema().Runtime().Lock().Task().LockKey("some.task/some-key"),
		Result:     "some result",
		Duration:   &duration,
	}
	require.NoError(t, d.Schema().Tasks().ByID(record.TaskID).Put(record).Do(ctx, d.EtcdClient()))

	// Start the service, only the cleanup component
	logs.Truncate()
	_, err := service.New(d, service.WithMasterLeaveMonitor(false), service.WithCleanupInterval(time.Minute))
	require.NoError(t, err)

	// Check etcd state before the tick
	etcdhelper.AssertKVsString(t, client, `
<<<<<
runtime/nodes/active/node1 (lease)
-----
node1
>>>>>

<<<<<
task/some-task
-----
{
  "taskId": "some-task",
  "type": "some.task",
  "createdAt": "%s",
  "finishedAt": "%s",
  "node": "node1",
  "topology": [
    "node1"
  ],
  "lock": "runtime/lock/task/some.task/some-key",
  "result": "some result",
  "duration": 2000000000
}
>>>>>
`)

	// Advance the clock, the owner node triggers the cleanup
	clk.Add(time.Minute)
	assert.Eventually(t, func() bool {
		return strings.Contains(logs.String(), `lock released "runtime/lock/task/tasks.cleanup"`)
	}, 5*time.Second, 10*time.Millisecond)

	// The old task record is gone
	etcdhelper.AssertKVsString(t, client, `
<<<<<
runtime/nodes/active/node1 (lease)
-----
node1
>>>>>
`)

	// Check logs
	wildcards.Assert(t, `
[node1][distribution][cleanup]INFO  reset: initialization
[node1][task][cleanup]DEBUG  lock acquired "runtime/lock/task/tasks.cleanup"
[node1][task][cleanup]DEBUG  deleted task "some-task"
[node1][task][cleanup]INFO  deleted "1" tasks
[node1][task][cleanup]DEBUG  lock released "runtime/lock/task/tasks.cleanup"
`, logs.String())
}

func TestGracefulShutdown(t *testing.T) {
	t.Parallel()

	etcdNamespace := "unit-" + t.Name() + "-" + idgenerator.Random(8)
	client := etcdhelper.ClientForTestWithNamespace(t, etcdNamespace)
	logs := ioutil.NewAtomicWriter()

	// Create node with all the worker components
	d := createDeps(t, clock.New(), etcdNamespace, logs, "node1")
	_ = d.DistributionNode()
	_ = d.JobManager()
	waitForWatcher(t, d)
	_ = d.TaskManager()
	_, err := service.New(d)
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return strings.Contains(d.DebugLogger().AllMessages(), "watching for the node leave events")
	}, 5*time.Second, 10*time.Millisecond)
	logs.Truncate()

	// Shutdown
	d.Process().Shutdown(errors.New("bye bye"))
	d.Process().WaitForShutdown()

	// The components are stopped in the reverse order of the startup
	wildcards.Assert(t, `
[node1]INFO  exiting (bye bye)
[node1][distribution][cleanup]INFO  received shutdown request
[node1][distribution][cleanup]INFO  shutdown done
[node1][master-leave]INFO  received shutdown request
[node1][master-leave]INFO  shutdown done
[node1][task]INFO  received shutdown request
[node1][task][etcd-session]INFO  closing etcd session
[node1][task][etcd-session]INFO  closed etcd session | %s
[node1][task]INFO  shutdown done
[node1][job]INFO  received shutdown request
[node1][job]INFO  shutdown done
[node1][distribution][listeners]INFO  received shutdown request
[node1][distribution][listeners]INFO  shutdown done
[node1][distribution]INFO  received shutdown request
[node1][distribution]INFO  unregistering the node "node1"
[node1][distribution]INFO  the node "node1" unregistered | %s
[node1][distribution]INFO  shutdown done
[node1][distribution][etcd-session]INFO  closing etcd session
[node1][distribution][etcd-session]INFO  closed etcd session | %s
[node1]INFO  exited
`, logs.String())

	// The registration key has been removed
	etcdhelper.AssertKVsString(t, client, "")
}

func createDeps(t *testing.T, clk clock.Clock, etcdNamespace string, logs io.Writer, nodeName string) gridDependencies.Mocked {
	t.Helper()
	d := gridDependencies.NewMockedDeps(
		t,
		dependencies.WithClock(clk),
		dependencies.WithUniqueID(nodeName),
		dependencies.WithLoggerPrefix(fmt.Sprintf("[%s]", nodeName)),
		dependencies.WithEtcdNamespace(etcdNamespace),
	)
	if logs != nil {
		d.DebugLogger().ConnectTo(logs)
	}
	d.DebugLogger().ConnectTo(testhelper.VerboseStdout())
	return d
}

func waitForWatcher(t *testing.T, d gridDependencies.Mocked) {
	t.Helper()
	// The cancel marks watcher must be up before a test writes a mark
	assert.Eventually(t, func() bool {
		return strings.Contains(d.DebugLogger().AllMessages(), "watching for the cancel marks")
	}, 5*time.Second, 10*time.Millisecond)
}

func finishTaskAndWait(t *testing.T, client *etcd.Client, taskWork, taskDone chan struct{}) {
	t.Helper()

	// Wait for update of the task in etcd
	etcdhelper.ExpectModification(t, client, func() {
		// Finish work in the task
		close(taskWork)

		// Wait for goroutine
		select {
		case <-time.After(time.Second):
			assert.Fail(t, "timeout")
		case <-taskDone:
		}
	})
}
