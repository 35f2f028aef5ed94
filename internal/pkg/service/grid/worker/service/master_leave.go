package service

import (
	"context"
	"sort"
	"sync"

	"github.com/taskgrid/taskgrid/internal/pkg/log"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/compute/task"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/worker/distribution"
)

// masterLeaveMonitor cancels the tasks of departed master nodes.
// An affected task is found by a processing record whose originating node is no longer active.
// The cancellation is local, only the local jobs are unwound, the task record stays untouched,
// see the task.Future.CancelOnMasterLeave method.
type masterLeaveMonitor struct {
	*Service
	logger log.Logger
}

func (s *Service) startMasterLeaveMonitor() error {
	m := &masterLeaveMonitor{Service: s, logger: s.logger.AddPrefix("[master-leave]")}

	// Graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	s.Process().OnShutdown(func() {
		m.logger.Info("received shutdown request")
		cancel()
		wg.Wait()
		m.logger.Info("shutdown done")
	})

	// Process the grouped distribution change events
	listener := s.dist.OnChangeListener()
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer listener.Stop()
		m.logger.Info("watching for the node leave events")
		for {
			select {
			case <-ctx.Done():
				return
			case events := <-listener.C:
				m.onEvents(ctx, events)
			}
		}
	}()

	return nil
}

func (m *masterLeaveMonitor) onEvents(ctx context.Context, events distribution.Events) {
	// Collect the departed nodes
	departed := make(map[string]bool)
	for _, event := range events {
		if event.Type == distribution.EventTypeRemove {
			departed[event.NodeID] = true
		}
	}
	if len(departed) == 0 {
		return
	}

	// Find the processing tasks mastered by a departed node
	kvs, err := m.Schema().Tasks().GetAll().Do(ctx, m.EtcdClient())
	if err != nil {
		m.logger.Errorf(`cannot list the tasks: %s`, err)
		return
	}

	cancelledTasks := make(map[string]int)
	for _, kv := range kvs {
		record := kv.Value
		if !record.IsProcessing() || !departed[record.Node] {
			continue
		}

		// The task manager tracks the futures of the local tasks,
		// a task of a foreign master gets a fresh handle created from the record.
		fut, found := m.tasks.Future(record.TaskID)
		if !found {
			fut = task.NewFromRecord(m.ForWorker, record)
		}

		m.logger.Debugf(`cancelling the task "%s" of the departed node "%s"`, record.TaskID, record.Node)
		if won, err := fut.CancelOnMasterLeave(ctx); err != nil {
			m.logger.Errorf(`cannot cancel the task "%s": %s`, record.TaskID, err)
		} else if won {
			cancelledTasks[record.Node]++
		}
	}

	// Summary per the departed node
	nodeIDs := make([]string, 0, len(cancelledTasks))
	for nodeID := range cancelledTasks {
		nodeIDs = append(nodeIDs, nodeID)
	}
	sort.Strings(nodeIDs)
	for _, nodeID := range nodeIDs {
		m.logger.Infof(`cancelled "%d" tasks of the departed node "%s"`, cancelledTasks[nodeID], nodeID)
	}
}
