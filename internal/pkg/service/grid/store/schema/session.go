package schema

import (
	. "github.com/taskgrid/taskgrid/internal/pkg/service/common/etcdop"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/store/model"
)

type SessionsRoot struct {
	prefix
}

type Attributes struct {
	prefix
}

type AttributesInTask struct {
	prefix
}

func (v *Schema) Sessions() SessionsRoot {
	return SessionsRoot{prefix: NewPrefix("session")}
}

// Attr prefix contains task session attributes, replicated between the nodes.
// The values are plain strings, without serialization.
func (v SessionsRoot) Attr() Attributes {
	return Attributes{prefix: v.prefix.Add("attr")}
}

func (v Attributes) InTask(id model.TaskID) AttributesInTask {
	return AttributesInTask{prefix: v.prefix.Add(id.String())}
}
