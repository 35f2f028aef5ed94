// Package model contains records stored in the etcd database.
package model

import (
	"github.com/gofrs/uuid/v5"
)

// TaskID is a unique identifier of a task in the cluster.
type TaskID string

func (v TaskID) String() string {
	return string(v)
}

// NewTaskID generates a time-ordered task ID,
// so the task records are sorted by the creation time in the database.
func NewTaskID() TaskID {
	return TaskID(uuid.Must(uuid.NewV7()).String())
}
