// Package dependencies provides dependencies for the Grid Worker.
//
// # Dependency Containers
//
// This package extends common dependencies from [pkg/github.com/taskgrid/taskgrid/internal/pkg/service/common/dependencies].
//
// These dependencies containers are implemented:
//   - [ForService] long-lived dependencies that exist during the entire run of the worker process.
//   - [ForWorker] dependencies of the worker components, created at startup after the service dependencies.
//
// Dependency containers creation:
//   - [ForService] is created at startup in the main.go of the grid-worker, see NewServiceDeps.
//   - [ForWorker] is created from [ForService], see NewWorkerDeps.
//   - The mocked container for tests is created by the NewMockedDeps function.
package dependencies

import (
	"context"

	etcd "go.etcd.io/etcd/client/v3"

	"github.com/taskgrid/taskgrid/internal/pkg/env"
	"github.com/taskgrid/taskgrid/internal/pkg/log"
	"github.com/taskgrid/taskgrid/internal/pkg/service/common/dependencies"
	"github.com/taskgrid/taskgrid/internal/pkg/service/common/etcdclient"
	"github.com/taskgrid/taskgrid/internal/pkg/service/common/etcdop"
	"github.com/taskgrid/taskgrid/internal/pkg/service/common/servicectx"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/compute/job"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/compute/security"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/compute/task"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/config"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/store/schema"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/worker/distribution"
	"github.com/taskgrid/taskgrid/internal/pkg/telemetry"
)

// ForService interface provides dependencies for the Grid Worker service.
// The container exists during the entire run of the worker process.
type ForService interface {
	dependencies.Base
	Config() config.Config
	Process() *servicectx.Process
	EtcdClient() *etcd.Client
	EtcdSerialization() etcdop.Serialization
	Schema() *schema.Schema
}

// ForWorker interface provides dependencies for the worker components.
type ForWorker interface {
	ForService
	Authorizer() security.Authorizer
	DistributionNode() *distribution.Node
	JobManager() *job.Manager
	TaskManager() *task.Manager
}

// NewServiceDeps creates the service dependencies, it connects to the etcd.
func NewServiceDeps(
	ctx context.Context,
	proc *servicectx.Process,
	cfg config.Config,
	envs env.Provider,
	logger log.Logger,
	tel telemetry.Telemetry,
) (d ForService, err error) {
	ctx, span := tel.Tracer().Start(ctx, "taskgrid.dependencies.NewServiceDeps")
	defer span.End(&err)

	baseDeps := dependencies.NewBaseDeps(envs, nil, tel, logger)

	etcdClient, err := etcdclient.New(
		ctx,
		proc,
		tel,
		cfg.Etcd,
		etcdclient.WithConnectTimeout(cfg.EtcdConnectTimeout),
		etcdclient.WithDebugOpLogs(cfg.DebugEtcd),
	)
	if err != nil {
		return nil, err
	}

	serialization := etcdop.NewJSONSerialization(baseDeps.Validator().Validate)

	return &forService{
		Base:          baseDeps,
		config:        cfg,
		proc:          proc,
		etcdClient:    etcdClient,
		serialization: serialization,
		schema:        schema.New(serialization),
	}, nil
}

// NewWorkerDeps creates the dependencies of the worker components.
// The distribution node registers itself to the cluster as a part of the call.
func NewWorkerDeps(ctx context.Context, serviceDeps ForService) (d ForWorker, err error) {
	ctx, span := serviceDeps.Telemetry().Tracer().Start(ctx, "taskgrid.dependencies.NewWorkerDeps")
	defer span.End(&err)

	workerDeps := &forWorker{
		ForService: serviceDeps,
		authorizer: security.NewAuthorizer(serviceDeps.Config().Security),
	}

	// Create distribution node, it joins the cluster
	workerDeps.distNode, err = distribution.NewNode(workerDeps)
	if err != nil {
		return nil, err
	}

	// Create job manager, it watches for the cancel marks
	workerDeps.jobManager, err = job.NewManager(workerDeps)
	if err != nil {
		return nil, err
	}

	// Create task manager
	workerDeps.taskManager, err = task.NewManager(workerDeps)
	if err != nil {
		return nil, err
	}

	return workerDeps, nil
}

// forService implements the ForService interface.
type forService struct {
	dependencies.Base
	config        config.Config
	proc          *servicectx.Process
	etcdClient    *etcd.Client
	serialization etcdop.Serialization
	schema        *schema.Schema
}

// forWorker implements the ForWorker interface.
type forWorker struct {
	ForService
	authorizer  security.Authorizer
	distNode    *distribution.Node
	jobManager  *job.Manager
	taskManager *task.Manager
}

func (v *forService) Config() config.Config {
	return v.config
}

func (v *forService) Process() *servicectx.Process {
	return v.proc
}

func (v *forService) EtcdClient() *etcd.Client {
	return v.etcdClient
}

func (v *forService) EtcdSerialization() etcdop.Serialization {
	return v.serialization
}

func (v *forService) Schema() *schema.Schema {
	return v.schema
}

func (v *forWorker) Authorizer() security.Authorizer {
	return v.authorizer
}

func (v *forWorker) DistributionNode() *distribution.Node {
	return v.distNode
}

func (v *forWorker) JobManager() *job.Manager {
	return v.jobManager
}

func (v *forWorker) TaskManager() *task.Manager {
	return v.taskManager
}
