package task

import (
	"context"

	"github.com/taskgrid/taskgrid/internal/pkg/log"
	"github.com/taskgrid/taskgrid/internal/pkg/utils/errors"
)

// Fn is the task operation, it runs in the background on the submitting node.
type Fn func(ctx context.Context, logger log.Logger) Result

// ContextFactory returns a context for the task operation, the context must have a deadline.
type ContextFactory func() (context.Context, context.CancelFunc)

// Config of one task submission, see the Manager.Submit method.
type Config struct {
	// Type of the task, for example "export.refresh".
	// It is used in logs, metrics, spans and authorization checks.
	Type string
	// Key determines the task identity, the default exclusive lock is composed from the Type and the Key.
	Key string
	// Lock name overrides the default lock composed from the Type and the Key.
	// Only one task with the same lock can run in the cluster at a time.
	Lock string
	// Topology contains IDs of the nodes participating in the task execution.
	// The submitting node is always a member, it does not have to be listed.
	Topology []string
	// Context factory provides a context for the task operation.
	Context ContextFactory
	// Operation is executed in the background, see the Fn signature.
	Operation Fn
}

func (c Config) Validate() error {
	errs := errors.NewMultiError()
	if c.Type == "" {
		errs.Append(errors.New("task type must be configured"))
	}
	if c.Key == "" && c.Lock == "" {
		errs.Append(errors.New("task key or lock name must be configured"))
	}
	if c.Context == nil {
		errs.Append(errors.New("task context factory must be configured"))
	}
	if c.Operation == nil {
		errs.Append(errors.New("task operation must be configured"))
	}
	return errs.ErrorOrNil()
}
