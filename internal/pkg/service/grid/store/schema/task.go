package schema

import (
	. "github.com/taskgrid/taskgrid/internal/pkg/service/common/etcdop"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/store/model"
)

type tasks = PrefixT[model.Task]

type TasksRoot struct {
	tasks
}

func (v *Schema) Tasks() TasksRoot {
	return TasksRoot{tasks: NewTypedPrefix[model.Task]("task", v.serialization)}
}

func (v TasksRoot) ByID(id model.TaskID) KeyT[model.Task] {
	return v.tasks.Key(id.String())
}
