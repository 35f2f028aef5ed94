package model

import (
	"time"

	"github.com/taskgrid/taskgrid/internal/pkg/service/common/etcdop"
	"github.com/taskgrid/taskgrid/internal/pkg/service/common/utctime"
)

// Task is a record about a task execution, see "task/<taskID>" keys.
type Task struct {
	TaskID     TaskID           `json:"taskId" validate:"required"`
	Type       string           `json:"type" validate:"required"`
	CreatedAt  utctime.UTCTime  `json:"createdAt" validate:"required"`
	FinishedAt *utctime.UTCTime `json:"finishedAt,omitempty"`
	// Node is the ID of the originating node, the master of the task.
	Node string `json:"node" validate:"required"`
	// Topology contains IDs of the nodes that participate in the task execution.
	Topology []string   `json:"topology,omitempty"`
	Lock     etcdop.Key `json:"lock" validate:"required"`
	Result   string     `json:"result,omitempty"`
	Error    string     `json:"error,omitempty"`
	// Cancelled is true if the task was finished by a cancellation, the Error field then contains the reason.
	Cancelled bool           `json:"cancelled,omitempty"`
	UserError *Error         `json:"userError,omitempty"`
	Outputs   Outputs        `json:"outputs,omitempty"`
	Duration  *time.Duration `json:"duration,omitempty"`
}

type Error struct {
	Name    string `json:"name,omitempty"`
	Message string `json:"message,omitempty"`
}

type Outputs map[string]any

// CancelMark is a record about a task cancellation, see "runtime/cancel/<taskID>" keys.
// Every node watches the marks and cancels the local jobs of the task.
type CancelMark struct {
	TaskID      TaskID          `json:"taskId" validate:"required"`
	Node        string          `json:"node" validate:"required"`
	Reason      string          `json:"reason,omitempty"`
	CancelledAt utctime.UTCTime `json:"cancelledAt" validate:"required"`
}

// Checkpoint is a named binary snapshot saved during a task execution,
// see "checkpoint/session/<taskID>/<name>" and "checkpoint/global/<name>" keys.
type Checkpoint struct {
	Name      string          `json:"name" validate:"required"`
	TaskID    TaskID          `json:"taskId,omitempty"`
	Data      []byte          `json:"data"`
	CreatedAt utctime.UTCTime `json:"createdAt" validate:"required"`
}

func (t *Task) IsProcessing() bool {
	return t.FinishedAt == nil
}

func (t *Task) IsSuccessful() bool {
	return !t.IsProcessing() && t.Error == ""
}

func (t *Task) IsFailed() bool {
	return !t.IsProcessing() && t.Error != ""
}

func (t *Task) IsCancelled() bool {
	return !t.IsProcessing() && t.Cancelled
}
