package job

import (
	"context"

	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/store/model"
)

// Job is a context-scoped unit of work running on the node as a part of a task execution.
// Jobs are registered in the Manager, so a task cancellation can reach them, see Manager.CancelJob.
type Job struct {
	id            string
	taskID        model.TaskID
	ctx           context.Context
	cancel        context.CancelCauseFunc
	onMasterLeave func()
	finish        func()
}

// JobOption modifies a job created by the Manager.StartJob method.
type JobOption func(*Job)

// WithOnMasterLeave registers a callback invoked when the master node of the task
// leaves the cluster. The callback runs before the job cancellation,
// so the job can unwind state tied to the departed node.
// See the Future.CancelOnMasterLeave method in the task package.
func WithOnMasterLeave(fn func()) JobOption {
	return func(j *Job) {
		j.onMasterLeave = fn
	}
}

func (j *Job) ID() string {
	return j.id
}

func (j *Job) TaskID() model.TaskID {
	return j.taskID
}

// Context of the job work.
// It is cancelled when the job is cancelled or finished,
// the cancellation reason is available via the context.Cause function.
func (j *Job) Context() context.Context {
	return j.ctx
}

// Finish removes the job from the registry and releases the job context.
// It must be called when the job work is done, repeated calls do nothing.
func (j *Job) Finish() {
	j.finish()
}
