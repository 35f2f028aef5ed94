package schema

import (
	. "github.com/taskgrid/taskgrid/internal/pkg/service/common/etcdop"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/store/model"
)

type checkpoints = PrefixT[model.Checkpoint]

type CheckpointsRoot struct {
	schema *Schema
	prefix
}

type SessionCheckpoints struct {
	checkpoints
}

type GlobalCheckpoints struct {
	checkpoints
}

func (v *Schema) Checkpoints() CheckpointsRoot {
	return CheckpointsRoot{schema: v, prefix: NewPrefix("checkpoint")}
}

// InSession checkpoints are scoped to one task, they are removed together with the task.
func (v CheckpointsRoot) InSession(id model.TaskID) SessionCheckpoints {
	return SessionCheckpoints{checkpoints: NewTypedPrefix[model.Checkpoint](
		v.prefix.Add("session").Add(id.String()),
		v.schema.serialization,
	)}
}

// Global checkpoints are shared between all tasks.
func (v CheckpointsRoot) Global() GlobalCheckpoints {
	return GlobalCheckpoints{checkpoints: NewTypedPrefix[model.Checkpoint](
		v.prefix.Add("global"),
		v.schema.serialization,
	)}
}

func (v SessionCheckpoints) ByName(name string) KeyT[model.Checkpoint] {
	return v.checkpoints.Key(name)
}

func (v GlobalCheckpoints) ByName(name string) KeyT[model.Checkpoint] {
	return v.checkpoints.Key(name)
}
