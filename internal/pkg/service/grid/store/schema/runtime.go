package schema

import (
	. "github.com/taskgrid/taskgrid/internal/pkg/service/common/etcdop"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/store/model"
)

type cancelMarks = PrefixT[model.CancelMark]

type RuntimeRoot struct {
	schema *Schema
	prefix
}

type Locks struct {
	prefix
}

type TaskLocks struct {
	prefix
}

type CancelMarks struct {
	cancelMarks
}

type Nodes struct {
	prefix
}

type ActiveNodes struct {
	prefix
}

func (v *Schema) Runtime() RuntimeRoot {
	return RuntimeRoot{schema: v, prefix: NewPrefix("runtime")}
}

func (v RuntimeRoot) Lock() Locks {
	return Locks{prefix: v.prefix.Add("lock")}
}

func (v Locks) Task() TaskLocks {
	return TaskLocks{prefix: v.prefix.Add("task")}
}

func (v TaskLocks) LockKey(lockName string) Key {
	return v.prefix.Key(lockName)
}

// Cancel marks fan the task cancellation out to all nodes, see the job manager.
func (v RuntimeRoot) Cancel() CancelMarks {
	return CancelMarks{cancelMarks: NewTypedPrefix[model.CancelMark](
		v.prefix.Add("cancel"),
		v.schema.serialization,
	)}
}

func (v CancelMarks) ByTaskID(id model.TaskID) KeyT[model.CancelMark] {
	return v.cancelMarks.Key(id.String())
}

func (v RuntimeRoot) Nodes() Nodes {
	return Nodes{prefix: v.prefix.Add("nodes")}
}

// Active prefix contains an ephemeral key per each active node in the cluster.
func (v Nodes) Active() ActiveNodes {
	return ActiveNodes{prefix: v.prefix.Add("active")}
}

func (v ActiveNodes) Node(nodeID string) Key {
	return v.prefix.Key(nodeID)
}
