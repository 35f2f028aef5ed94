package etcdhelper

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	etcd "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/namespace"
	"go.uber.org/zap"         //nolint: depguard
	"go.uber.org/zap/zapcore" //nolint: depguard
	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"

	"github.com/taskgrid/taskgrid/internal/pkg/env"
	"github.com/taskgrid/taskgrid/internal/pkg/idgenerator"
	"github.com/taskgrid/taskgrid/internal/pkg/log"
	"github.com/taskgrid/taskgrid/internal/pkg/service/common/etcdclient"
	"github.com/taskgrid/taskgrid/internal/pkg/utils/testhelper"
)

type testOrBenchmark interface {
	Cleanup(f func())
	Skipf(format string, args ...any)
	Fatalf(format string, args ...any)
}

func ClientForTest(t testOrBenchmark) *etcd.Client {
	return ClientForTestWithNamespace(t, fmt.Sprintf("unit-%s/", idgenerator.EtcdNamespaceForTest()))
}

// NamespaceForTest normalizes the namespace the same way as the etcd client credentials,
// so a test client and a service client in one test see the same keys.
func NamespaceForTest(v string) string {
	return strings.Trim(v, " /") + "/"
}

// VerboseTestLogs returns true if logging of each etcd operation is enabled for tests.
func VerboseTestLogs() bool {
	value, _ := os.LookupEnv("ETCD_VERBOSE")
	return value == "true"
}

// CredentialsForTest returns credentials of a test etcd database, limited to the given namespace.
func CredentialsForTest(t testOrBenchmark, namespacePrefix string) etcdclient.Credentials {
	envs, err := env.FromOs()
	if err != nil {
		t.Fatalf("cannot get envs: %s", err)
	}

	if envs.Get("UNIT_ETCD_ENABLED") == "false" {
		t.Skipf("etcd test is disabled by UNIT_ETCD_ENABLED=false")
	}

	endpoint := envs.Get("UNIT_ETCD_ENDPOINT")
	if endpoint == "" {
		t.Fatalf(`UNIT_ETCD_ENDPOINT is not set`)
	}

	return etcdclient.Credentials{
		Endpoint:  endpoint,
		Namespace: namespacePrefix,
		Username:  envs.Get("UNIT_ETCD_USERNAME"),
		Password:  envs.Get("UNIT_ETCD_PASSWORD"),
	}
}

// ClientForTestWithNamespace creates a client limited to the given namespace.
// It allows multiple clients in a test to share one namespace.
func ClientForTestWithNamespace(t testOrBenchmark, prefix string) *etcd.Client {
	ctx := context.Background()
	envs, err := env.FromOs()
	if err != nil {
		t.Fatalf("cannot get envs: %s", err)
	}

	if envs.Get("UNIT_ETCD_ENABLED") == "false" {
		t.Skipf("etcd test is disabled by UNIT_ETCD_ENABLED=false")
	}

	endpoint := envs.Get("UNIT_ETCD_ENDPOINT")
	if endpoint == "" {
		t.Fatalf(`UNIT_ETCD_ENDPOINT is not set`)
	}

	// Setup logger
	var logger *zap.Logger
	if testhelper.TestIsVerbose() {
		encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		logger = zap.New(log.NewCallbackCore(func(entry zapcore.Entry, fields []zapcore.Field) {
			if entry.Level > log.DebugLevel {
				bytes, _ := encoder.EncodeEntry(entry, fields)
				_, _ = os.Stdout.Write(bytes.Bytes())
			}
		}))
	}

	// Create etcd client
	etcdClient, err := etcd.New(etcd.Config{
		Context:              ctx,
		Endpoints:            []string{endpoint},
		DialTimeout:          2 * time.Second,
		DialKeepAliveTimeout: 2 * time.Second,
		DialKeepAliveTime:    10 * time.Second,
		Username:             envs.Get("UNIT_ETCD_USERNAME"), // optional
		Password:             envs.Get("UNIT_ETCD_PASSWORD"), // optional
		Logger:               logger,
		DialOptions: []grpc.DialOption{
			grpc.WithBlock(), // wait for the connection
			grpc.WithReturnConnectionError(),
			grpc.WithConnectParams(grpc.ConnectParams{
				Backoff: backoff.Config{
					BaseDelay:  100 * time.Millisecond,
					Multiplier: 1.5,
					Jitter:     0.2,
					MaxDelay:   15 * time.Second,
				},
			}),
		},
	})
	if err != nil {
		t.Fatalf("cannot create etcd client: %s", err)
	}

	// Create namespace
	originalKV := etcdClient.KV // not namespaced client for the cleanup
	etcdClient.KV = namespace.NewKV(etcdClient.KV, prefix)
	etcdClient.Lease = namespace.NewLease(etcdClient.Lease, prefix)
	etcdClient.Watcher = namespace.NewWatcher(etcdClient.Watcher, prefix)

	// Add operations logger
	etcdClient.KV = KVLogWrapper(etcdClient.KV, testhelper.VerboseStdout())

	// Cleanup namespace after the test
	t.Cleanup(func() {
		_, err := originalKV.Delete(ctx, prefix, etcd.WithPrefix())
		if err != nil {
			t.Fatalf(`cannot clear etcd namespace "%s" after test: %s`, prefix, err)
		}
	})

	return etcdClient
}
