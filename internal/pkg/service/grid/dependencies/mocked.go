package dependencies

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"

	"github.com/taskgrid/taskgrid/internal/pkg/service/common/dependencies"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/compute/job"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/compute/security"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/compute/task"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/config"
	gridSchema "github.com/taskgrid/taskgrid/internal/pkg/service/grid/store/schema"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/worker/distribution"
)

// Mocked dependencies for tests of the worker components.
// The components are created lazily, on the first call of the accessor.
type Mocked interface {
	dependencies.Mocked
	Config() config.Config
	Schema() *gridSchema.Schema
	Authorizer() security.Authorizer
	DistributionNode() *distribution.Node
	JobManager() *job.Manager
	TaskManager() *task.Manager
}

type mocked struct {
	dependencies.Mocked
	t           *testing.T
	config      config.Config
	gridSchema  *gridSchema.Schema
	authorizer  security.Authorizer
	distNode    *distribution.Node
	jobManager  *job.Manager
	taskManager *task.Manager
}

func NewMockedDeps(t *testing.T, opts ...dependencies.MockedOption) Mocked {
	t.Helper()
	return &mocked{t: t, Mocked: dependencies.NewMockedDeps(t, opts...), config: config.NewConfig()}
}

func (v *mocked) Config() config.Config {
	return v.config
}

func (v *mocked) Schema() *gridSchema.Schema {
	if v.gridSchema == nil {
		v.gridSchema = gridSchema.New(v.EtcdSerialization())
	}
	return v.gridSchema
}

func (v *mocked) Authorizer() security.Authorizer {
	if v.authorizer == nil {
		v.authorizer = security.NewAuthorizer(v.config.Security)
	}
	return v.authorizer
}

func (v *mocked) DistributionNode() *distribution.Node {
	if v.distNode == nil {
		// Speedup tests with real clock,
		// and disable events grouping interval in tests with mocked clocks,
		// events will be processed immediately.
		groupingInterval := 10 * time.Millisecond
		if _, ok := v.Clock().(*clock.Mock); ok {
			groupingInterval = 0
		}

		var err error
		v.distNode, err = distribution.NewNode(v, distribution.WithEventsGroupInterval(groupingInterval))
		assert.NoError(v.t, err)
	}
	return v.distNode
}

func (v *mocked) JobManager() *job.Manager {
	if v.jobManager == nil {
		var err error
		v.jobManager, err = job.NewManager(v)
		assert.NoError(v.t, err)
	}
	return v.jobManager
}

func (v *mocked) TaskManager() *task.Manager {
	if v.taskManager == nil {
		var err error
		v.taskManager, err = task.NewManager(v)
		assert.NoError(v.t, err)
	}
	return v.taskManager
}
