package distribution_test

import (
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/keboola/go-utils/pkg/wildcards"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/stretchr/testify/assert"

	"github.com/taskgrid/taskgrid/internal/pkg/log"
	"github.com/taskgrid/taskgrid/internal/pkg/service/common/dependencies"
	"github.com/taskgrid/taskgrid/internal/pkg/service/common/servicectx"
	gridDependencies "github.com/taskgrid/taskgrid/internal/pkg/service/grid/dependencies"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/worker/distribution"
	"github.com/taskgrid/taskgrid/internal/pkg/utils/errors"
	"github.com/taskgrid/taskgrid/internal/pkg/utils/etcdhelper"
)

// eventsGroupInterval is the grouping interval for tests with the mocked clock,
// the clock must be advanced by this value to dispatch the buffered events.
const eventsGroupInterval = time.Second

func TestNodesDiscovery(t *testing.T) {
	t.Parallel()

	clk := clock.New() // use real clock

	etcdNamespace := "unit-" + t.Name() + "-" + gonanoid.Must(8)
	client := etcdhelper.ClientForTestWithNamespace(t, etcdNamespace)

	// Create 3 nodes and (pseudo) processes
	nodesCount := 3
	lock := &sync.Mutex{}
	nodes := make(map[int]*distribution.Node)
	loggers := make(map[int]log.DebugLogger)
	processes := make(map[int]*servicectx.Process)

	// Create nodes in parallel, as in a real cluster
	wg := &sync.WaitGroup{}
	for i := 0; i < nodesCount; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			node, d := createNode(t, clk, etcdNamespace, fmt.Sprintf("node%d", i+1))
			if node != nil {
				lock.Lock()
				nodes[i] = node
				processes[i] = d.Process()
				loggers[i] = d.DebugLogger()
				lock.Unlock()
			}
		}()
	}
	wg.Wait()

	// Wait for initialization. All nodes must know about all nodes.
	assert.Eventually(t, func() bool {
		for _, node := range nodes {
			if !reflect.DeepEqual(node.Nodes(), []string{"node1", "node2", "node3"}) {
				return false
			}
		}
		return true
	}, 10*time.Second, 100*time.Millisecond)

	// Check tasks distribution.
	// Distribution is random, it depends on the hash function.
	// But all nodes return the same location for the task.
	for _, node := range nodes {
		assert.Equal(t, "node2", node.MustGetNodeFor("foo1"))
		assert.Equal(t, "node3", node.MustGetNodeFor("foo2"))
		assert.Equal(t, "node3", node.MustGetNodeFor("foo3"))
		assert.Equal(t, "node1", node.MustGetNodeFor("foo4"))
	}
	assert.True(t, nodes[0].MustCheckIsOwner("foo4"))
	assert.True(t, nodes[1].MustCheckIsOwner("foo1"))
	assert.True(t, nodes[2].MustCheckIsOwner("foo3"))
	assert.False(t, nodes[0].MustCheckIsOwner("foo3"))
	assert.False(t, nodes[1].MustCheckIsOwner("foo2"))
	assert.False(t, nodes[2].MustCheckIsOwner("foo1"))

	// Check the live subset of a task topology
	assert.Equal(t, []string{"node1", "node3"}, nodes[0].NodesFor([]string{"node1", "node3", "node9"}))

	// Check etcd state
	etcdhelper.AssertKVsString(t, client, `
<<<<<
runtime/nodes/active/node1 (lease)
-----
node1
>>>>>

<<<<<
runtime/nodes/active/node2 (lease)
-----
node2
>>>>>

<<<<<
runtime/nodes/active/node3 (lease)
-----
node3
>>>>>
`)

	// Shutdown node1
	processes[0].Shutdown(errors.New("bye bye 1"))
	processes[0].WaitForShutdown()
	assert.Eventually(t, func() bool {
		return reflect.DeepEqual([]string{"node2", "node3"}, nodes[1].Nodes())
	}, time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return reflect.DeepEqual([]string{"node2", "node3"}, nodes[2].Nodes())
	}, time.Second, 10*time.Millisecond)

	// Check etcd state
	etcdhelper.AssertKVsString(t, client, `
<<<<<
runtime/nodes/active/node2 (lease)
-----
node2
>>>>>

<<<<<
runtime/nodes/active/node3 (lease)
-----
node3
>>>>>
`)

	// Check tasks distribution
	for i := 1; i < nodesCount; i++ {
		assert.Equal(t, "node2", nodes[i].MustGetNodeFor("foo1"))
		assert.Equal(t, "node3", nodes[i].MustGetNodeFor("foo2"))
		assert.Equal(t, "node3", nodes[i].MustGetNodeFor("foo3"))
		assert.Equal(t, "node2", nodes[i].MustGetNodeFor("foo4")) // 1 -> 2
	}
	assert.True(t, nodes[1].MustCheckIsOwner("foo1"))
	assert.True(t, nodes[2].MustCheckIsOwner("foo3"))
	assert.False(t, nodes[1].MustCheckIsOwner("foo2"))
	assert.False(t, nodes[2].MustCheckIsOwner("foo1"))

	// Shutdown node2
	processes[1].Shutdown(errors.New("bye bye 2"))
	processes[1].WaitForShutdown()
	assert.Eventually(t, func() bool {
		return reflect.DeepEqual([]string{"node3"}, nodes[2].Nodes())
	}, time.Second, 10*time.Millisecond)

	// Check etcd state
	etcdhelper.AssertKVsString(t, client, `
<<<<<
runtime/nodes/active/node3 (lease)
-----
node3
>>>>>
`)

	// Check tasks distribution
	assert.Equal(t, "node3", nodes[2].MustGetNodeFor("foo1"))
	assert.Equal(t, "node3", nodes[2].MustGetNodeFor("foo2"))
	assert.Equal(t, "node3", nodes[2].MustGetNodeFor("foo3"))
	assert.Equal(t, "node3", nodes[2].MustGetNodeFor("foo4"))
	assert.True(t, nodes[2].MustCheckIsOwner("foo1"))
	assert.True(t, nodes[2].MustCheckIsOwner("foo2"))
	assert.True(t, nodes[2].MustCheckIsOwner("foo3"))
	assert.True(t, nodes[2].MustCheckIsOwner("foo4"))

	// Shutdown node3
	processes[2].Shutdown(errors.New("bye bye 3"))
	processes[2].WaitForShutdown()
	etcdhelper.AssertKVsString(t, client, "")

	// Logs differ in the number of the "found a new node"/"the node gone" messages
	wildcards.Assert(t, `
[distribution][etcd-session]INFO  creating etcd session
[distribution][etcd-session]INFO  created etcd session | %s
[distribution]INFO  registering the node "node1"
[distribution]INFO  the node "node1" registered | %s
[distribution]INFO  watching for other nodes
[distribution]INFO  found a new node "node%d"
[distribution]INFO  found a new node "node%d"
[distribution]INFO  found a new node "node%d"
INFO  exiting (bye bye 1)
[distribution][listeners]INFO  received shutdown request
[distribution][listeners]INFO  shutdown done
[distribution]INFO  received shutdown request
[distribution]INFO  unregistering the node "node1"
[distribution]INFO  the node "node1" unregistered | %s
[distribution]INFO  shutdown done
[distribution][etcd-session]INFO  closing etcd session
[distribution][etcd-session]INFO  closed etcd session | %s
INFO  exited
`, loggers[0].AllMessages())

	wildcards.Assert(t, `
[distribution][etcd-session]INFO  creating etcd session
[distribution][etcd-session]INFO  created etcd session | %s
[distribution]INFO  registering the node "node2"
[distribution]INFO  the node "node2" registered | %s
[distribution]INFO  watching for other nodes
[distribution]INFO  found a new node "node%d"
[distribution]INFO  found a new node "node%d"
[distribution]INFO  found a new node "node%d"
[distribution]INFO  the node "node1" gone
INFO  exiting (bye bye 2)
[distribution][listeners]INFO  received shutdown request
[distribution][listeners]INFO  shutdown done
[distribution]INFO  received shutdown request
[distribution]INFO  unregistering the node "node2"
[distribution]INFO  the node "node2" unregistered | %s
[distribution]INFO  shutdown done
[distribution][etcd-session]INFO  closing etcd session
[distribution][etcd-session]INFO  closed etcd session | %s
INFO  exited
`, loggers[1].AllMessages())

	wildcards.Assert(t, `
[distribution][etcd-session]INFO  creating etcd session
[distribution][etcd-session]INFO  created etcd session | %s
[distribution]INFO  registering the node "node3"
[distribution]INFO  the node "node3" registered | %s
[distribution]INFO  watching for other nodes
[distribution]INFO  found a new node "node%d"
[distribution]INFO  found a new node "node%d"
[distribution]INFO  found a new node "node%d"
[distribution]INFO  the node "node1" gone
[distribution]INFO  the node "node2" gone
INFO  exiting (bye bye 3)
[distribution][listeners]INFO  received shutdown request
[distribution][listeners]INFO  shutdown done
[distribution]INFO  received shutdown request
[distribution]INFO  unregistering the node "node3"
[distribution]INFO  the node "node3" unregistered | %s
[distribution]INFO  shutdown done
[distribution][etcd-session]INFO  closing etcd session
[distribution][etcd-session]INFO  closed etcd session | %s
INFO  exited
`, loggers[2].AllMessages())

	// All nodes are off, start a new node
	node4, d4 := createNode(t, clk, etcdNamespace, "node4")
	process4 := d4.Process()
	assert.Eventually(t, func() bool {
		return reflect.DeepEqual([]string{"node4"}, node4.Nodes())
	}, time.Second, 10*time.Millisecond)

	// Check etcd state
	etcdhelper.AssertKVsString(t, client, `
<<<<<
runtime/nodes/active/node4 (lease)
-----
node4
>>>>>
`)

	// Shutdown node 4
	process4.Shutdown(errors.New("bye bye 4"))
	process4.WaitForShutdown()
	etcdhelper.AssertKVsString(t, client, "")

	wildcards.Assert(t, `
[distribution][etcd-session]INFO  creating etcd session
[distribution][etcd-session]INFO  created etcd session | %s
[distribution]INFO  registering the node "node4"
[distribution]INFO  the node "node4" registered | %s
[distribution]INFO  watching for other nodes
[distribution]INFO  found a new node "node4"
INFO  exiting (bye bye 4)
[distribution][listeners]INFO  received shutdown request
[distribution][listeners]INFO  shutdown done
[distribution]INFO  received shutdown request
[distribution]INFO  unregistering the node "node4"
[distribution]INFO  the node "node4" unregistered | %s
[distribution]INFO  shutdown done
[distribution][etcd-session]INFO  closing etcd session
[distribution][etcd-session]INFO  closed etcd session | %s
INFO  exited
`, d4.DebugLogger().AllMessages())
}

func createNode(t *testing.T, clk clock.Clock, etcdNamespace, nodeID string) (*distribution.Node, gridDependencies.Mocked) {
	t.Helper()

	// Create dependencies
	d := createDeps(t, clk, etcdNamespace, nodeID)

	// Speedup tests with the real clock.
	// Tests with the mocked clock advance the time manually by the eventsGroupInterval constant.
	groupInterval := eventsGroupInterval
	if _, ok := clk.(*clock.Mock); !ok {
		groupInterval = 10 * time.Millisecond
	}

	// Create node
	node, err := distribution.NewNode(
		d,
		distribution.WithStartupTimeout(time.Second),
		distribution.WithShutdownTimeout(time.Second),
		distribution.WithEventsGroupInterval(groupInterval),
	)
	assert.NoError(t, err)
	return node, d
}

func createDeps(t *testing.T, clk clock.Clock, etcdNamespace, nodeID string) gridDependencies.Mocked {
	t.Helper()
	return gridDependencies.NewMockedDeps(
		t,
		dependencies.WithClock(clk),
		dependencies.WithUniqueID(nodeID),
		dependencies.WithEtcdNamespace(etcdNamespace),
	)
}
