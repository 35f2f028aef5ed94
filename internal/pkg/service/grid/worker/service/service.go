// Package service wires the node discovery, the job manager and the task manager
// into a long-lived worker process.
//
// On top of them run the optional components, see the config:
//   - The master-leave monitor cancels the local jobs of the tasks whose master node left the cluster.
//   - The cleanup deletes the records of the old finished tasks.
package service

import (
	"github.com/benbjohnson/clock"

	"github.com/taskgrid/taskgrid/internal/pkg/log"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/compute/task"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/dependencies"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/worker/distribution"
)

type Service struct {
	dependencies.ForWorker
	config config
	clock  clock.Clock
	logger log.Logger
	dist   *distribution.Node
	tasks  *task.Manager
}

func New(d dependencies.ForWorker, opts ...Option) (*Service, error) {
	s := &Service{
		ForWorker: d,
		config:    newConfig(opts),
		clock:     d.Clock(),
		logger:    d.Logger(),
		dist:      d.DistributionNode(),
		tasks:     d.TaskManager(),
	}

	if s.config.masterLeaveMonitor {
		if err := s.startMasterLeaveMonitor(); err != nil {
			return nil, err
		}
	}

	if s.config.cleanup {
		if err := s.startCleanup(); err != nil {
			return nil, err
		}
	}

	return s, nil
}
