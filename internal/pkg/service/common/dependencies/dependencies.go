// Package dependencies provides dependencies for other parts of the project.
//
// # Operations
//
// The [command design pattern] is used in this project.
//
// The keyword "operation" is used instead of the name "command", to avoid confusion with a CLI command.
//
// The operation (command) consists of:
//   - "dependencies" interface.
//   - "Run" function.
//   - Zero or more parameters (or options).
//
// Operations are easily composable and testable because:
//   - Parameters/options are static values.
//   - Only necessary dependencies are defined.
//   - Dependencies can be mocked, see [Mocked].
//
// # Common Dependencies
//
// This package contains the common parts of the dependencies implementation:
//   - [Base] interface provides basic dependencies (see [NewBaseDeps]).
//   - [Mocked] interface provides dependencies mocked for tests (see [NewMockedDeps]).
//
// The dependencies container for the worker service is in the separate package
// [pkg/github.com/taskgrid/taskgrid/internal/pkg/service/grid/dependencies],
// it extends this package with the etcd client, the database schema and the worker nodes.
//
// [command design pattern]: https://refactoring.guru/design-patterns/command
package dependencies

import (
	"github.com/benbjohnson/clock"
	etcd "go.etcd.io/etcd/client/v3"

	"github.com/taskgrid/taskgrid/internal/pkg/env"
	"github.com/taskgrid/taskgrid/internal/pkg/log"
	"github.com/taskgrid/taskgrid/internal/pkg/service/common/etcdop"
	"github.com/taskgrid/taskgrid/internal/pkg/service/common/servicectx"
	"github.com/taskgrid/taskgrid/internal/pkg/telemetry"
	"github.com/taskgrid/taskgrid/internal/pkg/validator"
)

// Base contains basic dependencies.
type Base interface {
	Clock() clock.Clock
	Envs() env.Provider
	Logger() log.Logger
	Telemetry() telemetry.Telemetry
	Validator() validator.Validator
}

// Mocked dependencies for tests.
// The container implements the common parts of the service dependencies,
// so the cluster nodes can be created in tests without a real service process.
type Mocked interface {
	Base
	Process() *servicectx.Process
	EtcdClient() *etcd.Client
	EtcdSerialization() etcdop.Serialization
	EtcdNamespace() string

	// DebugLogger provides access to the logged messages, see also WithDebugLogger.
	DebugLogger() log.DebugLogger
	// TestTelemetry provides access to the recorded spans.
	TestTelemetry() telemetry.ForTest
	// TestEtcdClient returns an etcd client for tests, for example to check etcd state.
	// This client does not log into the application logger, so tests are not affected.
	TestEtcdClient() *etcd.Client
}
