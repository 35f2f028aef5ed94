package session

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/taskgrid/taskgrid/internal/pkg/service/common/utctime"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/store/model"
	"github.com/taskgrid/taskgrid/internal/pkg/utils/errors"
)

// ErrSessionClosed is returned by all storage operations on a closed session.
var ErrSessionClosed = errors.New("session is closed")

// ErrWaitInterrupted is returned by waiting operations on a closed session.
var ErrWaitInterrupted = errors.Errorf("wait interrupted: %w", ErrSessionClosed)

// closedSession is a null object carried by futures born finished.
// It has a fresh random task ID, never shared with a live task,
// the start time equals the end time and the topology is empty.
type closedSession struct {
	taskID    model.TaskID
	taskType  string
	node      string
	createdAt utctime.UTCTime
}

// NewClosed creates a closed session for a future born finished.
func NewClosed(clk clock.Clock, taskType, node string) Session {
	return &closedSession{
		taskID:    model.NewTaskID(),
		taskType:  taskType,
		node:      node,
		createdAt: utctime.From(clk.Now()),
	}
}

func (s *closedSession) TaskID() model.TaskID {
	return s.taskID
}

func (s *closedSession) TaskType() string {
	return s.taskType
}

func (s *closedSession) Node() string {
	return s.node
}

func (s *closedSession) StartedAt() utctime.UTCTime {
	return s.createdAt
}

func (s *closedSession) FinishedAt() *utctime.UTCTime {
	return &s.createdAt
}

func (s *closedSession) Topology() []string {
	return nil
}

func (s *closedSession) SetAttribute(_ context.Context, key, _ string) error {
	return errors.Errorf(`cannot set the attribute "%s": %w`, key, ErrSessionClosed)
}

func (s *closedSession) SetAttributes(_ context.Context, _ map[string]string) error {
	return errors.Errorf(`cannot set attributes: %w`, ErrSessionClosed)
}

func (s *closedSession) Attribute(_ context.Context, key string) (string, bool, error) {
	return "", false, errors.Errorf(`cannot read the attribute "%s": %w`, key, ErrSessionClosed)
}

func (s *closedSession) WaitForAttribute(_ context.Context, _ string, _ time.Duration) (string, error) {
	return "", ErrWaitInterrupted
}

func (s *closedSession) SaveCheckpoint(_ context.Context, _ CheckpointScope, name string, _ []byte, _ ...CheckpointOption) error {
	return errors.Errorf(`cannot save the checkpoint "%s": %w`, name, ErrSessionClosed)
}

func (s *closedSession) LoadCheckpoint(_ context.Context, _ CheckpointScope, name string) (*model.Checkpoint, error) {
	return nil, errors.Errorf(`cannot load the checkpoint "%s": %w`, name, ErrSessionClosed)
}

func (s *closedSession) RemoveCheckpoint(_ context.Context, _ CheckpointScope, name string) (bool, error) {
	return false, errors.Errorf(`cannot remove the checkpoint "%s": %w`, name, ErrSessionClosed)
}

func (s *closedSession) Siblings() []string {
	return nil
}

func (s *closedSession) RefreshSiblings(_ context.Context) ([]string, error) {
	return nil, ErrSessionClosed
}
