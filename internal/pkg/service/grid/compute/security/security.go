// Package security provides authorization of privileged task operations.
//
// The authorizer decides whether an operation is allowed for a task type.
// The policy is config-driven: if the enforcement is disabled, all operations
// are allowed, otherwise the task type must be present in the allow list.
package security

import (
	"context"
	"fmt"
	"strings"
)

type Permission string

const (
	// PermissionTaskCancel allows cancellation of a running task.
	PermissionTaskCancel Permission = "task:cancel"
)

// Authorizer checks a permission for a task type.
// A denial is reported as *PermissionError.
type Authorizer interface {
	Check(ctx context.Context, permission Permission, taskType string) error
}

// PermissionError is returned when the authorizer denies an operation.
type PermissionError struct {
	Permission Permission
	TaskType   string
}

func (e PermissionError) Error() string {
	return fmt.Sprintf(`permission "%s" denied for the task type "%s"`, e.Permission, e.TaskType)
}

type Config struct {
	// Enforce enables the permission checks, otherwise all operations are allowed.
	Enforce bool `mapstructure:"security-enforce" usage:"Enable authorization checks of privileged task operations."`
	// AllowedTaskTypes is a comma-separated list of task types that pass the checks, "*" allows all.
	AllowedTaskTypes string `mapstructure:"security-allowed-task-types" usage:"Comma-separated list of task types that pass authorization checks."`
}

func NewConfig() Config {
	return Config{Enforce: false, AllowedTaskTypes: "*"}
}

// authorizer implements the Authorizer interface on top of the Config policy.
type authorizer struct {
	enforce bool
	allowed map[string]bool
}

func NewAuthorizer(cfg Config) Authorizer {
	v := &authorizer{enforce: cfg.Enforce, allowed: make(map[string]bool)}
	for _, taskType := range strings.Split(cfg.AllowedTaskTypes, ",") {
		if taskType = strings.TrimSpace(taskType); taskType != "" {
			v.allowed[taskType] = true
		}
	}
	return v
}

func (v *authorizer) Check(_ context.Context, permission Permission, taskType string) error {
	if !v.enforce {
		return nil
	}
	if v.allowed["*"] || v.allowed[taskType] {
		return nil
	}
	return &PermissionError{Permission: permission, TaskType: taskType}
}
