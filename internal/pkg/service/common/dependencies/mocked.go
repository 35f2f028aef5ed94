package dependencies

import (
	"context"
	"fmt"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	etcd "go.etcd.io/etcd/client/v3"

	"github.com/taskgrid/taskgrid/internal/pkg/env"
	"github.com/taskgrid/taskgrid/internal/pkg/idgenerator"
	"github.com/taskgrid/taskgrid/internal/pkg/log"
	"github.com/taskgrid/taskgrid/internal/pkg/service/common/etcdclient"
	"github.com/taskgrid/taskgrid/internal/pkg/service/common/etcdop"
	"github.com/taskgrid/taskgrid/internal/pkg/service/common/servicectx"
	"github.com/taskgrid/taskgrid/internal/pkg/telemetry"
	"github.com/taskgrid/taskgrid/internal/pkg/utils/errors"
	"github.com/taskgrid/taskgrid/internal/pkg/utils/etcdhelper"
)

// mocked dependencies container implements Mocked interface.
type mocked struct {
	*base
	t              *testing.T
	config         *mockedConfig
	proc           *servicectx.Process
	etcdClient     *etcd.Client
	serialization  etcdop.Serialization
	testEtcdClient *etcd.Client
}

type mockedConfig struct {
	ctx           context.Context
	clock         clock.Clock
	telemetry     telemetry.ForTest
	debugLogger   log.DebugLogger
	loggerPrefix  string
	uniqueID      string
	etcdNamespace string
}

type MockedOption func(c *mockedConfig)

func WithCtx(v context.Context) MockedOption {
	return func(c *mockedConfig) {
		c.ctx = v
	}
}

func WithClock(v clock.Clock) MockedOption {
	return func(c *mockedConfig) {
		c.clock = v
	}
}

func WithTelemetry(v telemetry.ForTest) MockedOption {
	return func(c *mockedConfig) {
		c.telemetry = v
	}
}

func WithDebugLogger(v log.DebugLogger) MockedOption {
	return func(c *mockedConfig) {
		c.debugLogger = v
	}
}

// WithLoggerPrefix prefixes all logged messages, it simplifies tests with multiple nodes.
func WithLoggerPrefix(v string) MockedOption {
	return func(c *mockedConfig) {
		c.loggerPrefix = v
	}
}

// WithUniqueID sets the unique ID of the service process, it is used as the node ID in the cluster.
func WithUniqueID(v string) MockedOption {
	return func(c *mockedConfig) {
		c.uniqueID = v
	}
}

// WithEtcdNamespace allows multiple mocked dependencies in a test to share one etcd namespace,
// so multiple nodes can see each other.
func WithEtcdNamespace(v string) MockedOption {
	return func(c *mockedConfig) {
		c.etcdNamespace = v
	}
}

func NewMockedDeps(t *testing.T, opts ...MockedOption) Mocked {
	t.Helper()

	// Default values
	cfg := &mockedConfig{
		ctx:       context.Background(),
		clock:     clock.New(),
		telemetry: telemetry.NewForTest(t),
		uniqueID:  "test-node",
	}

	// Apply options
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.debugLogger == nil {
		cfg.debugLogger = log.NewDebugLogger()
	}
	if cfg.etcdNamespace == "" {
		cfg.etcdNamespace = fmt.Sprintf("unit-%s", idgenerator.EtcdNamespaceForTest())
	}

	// Normalize the namespace, the etcd client does the same,
	// so the TestEtcdClient sees the same keys as the service code.
	cfg.etcdNamespace = etcdhelper.NamespaceForTest(cfg.etcdNamespace)

	// Logger
	var logger log.Logger = cfg.debugLogger
	if cfg.loggerPrefix != "" {
		logger = logger.AddPrefix(cfg.loggerPrefix)
	}

	// Cancel the context after the test
	ctx, cancel := context.WithCancel(cfg.ctx)
	t.Cleanup(cancel)

	// Create service process
	proc, err := servicectx.New(ctx, cancel, logger, servicectx.WithUniqueID(cfg.uniqueID))
	require.NoError(t, err)
	t.Cleanup(func() {
		proc.Shutdown(errors.New("test cleanup"))
		proc.WaitForShutdown()
	})

	// Create dependencies container
	d := &mocked{t: t, config: cfg, proc: proc}
	d.base = newBaseDeps(env.Empty(), cfg.clock, cfg.telemetry, logger)
	d.serialization = etcdop.NewJSONSerialization(d.Validator().Validate)

	// Create etcd client
	credentials := etcdhelper.CredentialsForTest(t, cfg.etcdNamespace)
	d.etcdClient, err = etcdclient.New(
		ctx, proc, cfg.telemetry, credentials,
		etcdclient.WithDebugOpLogs(etcdhelper.VerboseTestLogs()),
	)
	require.NoError(t, err)

	// Clear logs generated by the initialization
	cfg.debugLogger.Truncate()

	return d
}

func (v *mocked) Process() *servicectx.Process {
	return v.proc
}

func (v *mocked) EtcdClient() *etcd.Client {
	return v.etcdClient
}

func (v *mocked) EtcdSerialization() etcdop.Serialization {
	return v.serialization
}

func (v *mocked) EtcdNamespace() string {
	return v.config.etcdNamespace
}

func (v *mocked) DebugLogger() log.DebugLogger {
	return v.config.debugLogger
}

func (v *mocked) TestTelemetry() telemetry.ForTest {
	return v.config.telemetry
}

func (v *mocked) TestEtcdClient() *etcd.Client {
	if v.testEtcdClient == nil {
		v.testEtcdClient = etcdhelper.ClientForTestWithNamespace(v.t, v.config.etcdNamespace)
	}
	return v.testEtcdClient
}
