// Package session provides the shared state of one distributed task.
//
// The session is created together with the task record, see the task package.
// It replicates small pieces of state between the nodes participating
// in the task execution:
//   - Attributes are plain string key/value pairs, a node can block
//     on an attribute until a sibling publishes it.
//   - Checkpoints are named binary snapshots with an optional TTL.
//   - Siblings are the jobs of the task, read from the task record.
//
// A future born finished carries a closed session instead, see NewClosed.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	etcd "go.etcd.io/etcd/client/v3"

	"github.com/taskgrid/taskgrid/internal/pkg/log"
	"github.com/taskgrid/taskgrid/internal/pkg/service/common/etcdop"
	"github.com/taskgrid/taskgrid/internal/pkg/service/common/etcdop/op"
	"github.com/taskgrid/taskgrid/internal/pkg/service/common/utctime"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/store/model"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/store/schema"
	"github.com/taskgrid/taskgrid/internal/pkg/utils/errors"
)

// CheckpointScope determines the key prefix and so the lifetime of a checkpoint.
type CheckpointScope string

const (
	// CheckpointScopeSession checkpoints belong to one task and are removed together with it.
	CheckpointScopeSession = CheckpointScope("session")
	// CheckpointScopeGlobal checkpoints are shared by all tasks.
	CheckpointScopeGlobal = CheckpointScope("global")
)

// Session is the etcd-backed shared state of a task.
// All methods are safe for concurrent use.
type Session interface {
	TaskID() model.TaskID
	TaskType() string
	// Node returns the ID of the originating node, the task master.
	Node() string
	StartedAt() utctime.UTCTime
	// FinishedAt returns nil while the task is running.
	FinishedAt() *utctime.UTCTime
	// Topology returns the node IDs participating in the task, as recorded on the task start.
	Topology() []string

	// SetAttribute stores one attribute of the task.
	SetAttribute(ctx context.Context, key, value string) error
	// SetAttributes stores several attributes in a single etcd transaction.
	SetAttributes(ctx context.Context, attrs map[string]string) error
	// Attribute reads an attribute, the second return value reports whether the key exists.
	Attribute(ctx context.Context, key string) (string, bool, error)
	// WaitForAttribute blocks until the attribute appears or the timeout elapses.
	WaitForAttribute(ctx context.Context, key string, timeout time.Duration) (string, error)

	// SaveCheckpoint stores a named binary snapshot.
	// By default an existing checkpoint is overwritten, see WithOverwrite.
	// A checkpoint with a TTL disappears when the lease expires, see WithTTL.
	SaveCheckpoint(ctx context.Context, scope CheckpointScope, name string, data []byte, opts ...CheckpointOption) error
	// LoadCheckpoint reads a checkpoint, nil is returned if it does not exist.
	LoadCheckpoint(ctx context.Context, scope CheckpointScope, name string) (*model.Checkpoint, error)
	// RemoveCheckpoint deletes a checkpoint and reports whether the key existed.
	RemoveCheckpoint(ctx context.Context, scope CheckpointScope, name string) (bool, error)

	// Siblings returns the jobs of the task, from the last known task record.
	Siblings() []string
	// RefreshSiblings re-reads the task record and returns the fresh jobs enumeration.
	RefreshSiblings(ctx context.Context) ([]string, error)
}

// CheckpointOption modifies the SaveCheckpoint behavior.
type CheckpointOption func(c *checkpointConfig)

type checkpointConfig struct {
	ttlSeconds int64
	overwrite  bool
}

// WithTTL attaches an etcd lease to the checkpoint, it disappears after the TTL.
func WithTTL(seconds int64) CheckpointOption {
	return func(c *checkpointConfig) {
		c.ttlSeconds = seconds
	}
}

// WithOverwrite enables or disables overwriting of an existing checkpoint.
func WithOverwrite(v bool) CheckpointOption {
	return func(c *checkpointConfig) {
		c.overwrite = v
	}
}

type dependencies interface {
	Clock() clock.Clock
	Logger() log.Logger
	EtcdClient() *etcd.Client
	Schema() *schema.Schema
}

type session struct {
	clock  clock.Clock
	logger log.Logger
	client *etcd.Client
	schema *schema.Schema

	taskID    model.TaskID
	taskType  string
	node      string
	startedAt utctime.UTCTime
	topology  []string

	lock       *sync.RWMutex
	siblings   []string
	finishedAt *utctime.UTCTime
}

// New creates a live session for the task record.
func New(d dependencies, task model.Task) Session {
	return &session{
		clock:      d.Clock(),
		logger:     d.Logger().AddPrefix("[session]"),
		client:     d.EtcdClient(),
		schema:     d.Schema(),
		taskID:     task.TaskID,
		taskType:   task.Type,
		node:       task.Node,
		startedAt:  task.CreatedAt,
		topology:   task.Topology,
		lock:       &sync.RWMutex{},
		siblings:   task.Topology,
		finishedAt: task.FinishedAt,
	}
}

func (s *session) TaskID() model.TaskID {
	return s.taskID
}

func (s *session) TaskType() string {
	return s.taskType
}

func (s *session) Node() string {
	return s.node
}

func (s *session) StartedAt() utctime.UTCTime {
	return s.startedAt
}

func (s *session) FinishedAt() *utctime.UTCTime {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.finishedAt
}

func (s *session) Topology() []string {
	out := make([]string, len(s.topology))
	copy(out, s.topology)
	return out
}

func (s *session) SetAttribute(ctx context.Context, key, value string) error {
	return s.attrs().Key(key).Put(value).Do(ctx, s.client)
}

func (s *session) SetAttributes(ctx context.Context, attrs map[string]string) error {
	if len(attrs) == 0 {
		return nil
	}

	ops := make([]op.Op, 0, len(attrs))
	for key, value := range attrs {
		ops = append(ops, s.attrs().Key(key).Put(value))
	}
	return op.MergeToTxn(ops...).DoOrErr(ctx, s.client)
}

func (s *session) Attribute(ctx context.Context, key string) (string, bool, error) {
	kv, err := s.attrs().Key(key).Get().Do(ctx, s.client)
	if err != nil {
		return "", false, err
	} else if kv == nil {
		return "", false, nil
	}
	return string(kv.Value), true, nil
}

func (s *session) WaitForAttribute(ctx context.Context, key string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Load the current attributes and watch for changes,
	// so the value is found regardless of whether it exists or appears later.
	expectedKey := s.attrs().Key(key).Key()
	ch := s.attrs().GetAllAndWatch(ctx, s.client, func(err error) {
		s.logger.Warnf(`attribute watcher failed: %s`, err)
	})

	for {
		select {
		case <-ctx.Done():
			return "", errors.Errorf(`timeout while waiting for the attribute "%s" of the task "%s": %w`, key, s.taskID, ctx.Err())
		case events, ok := <-ch:
			if !ok {
				return "", errors.Errorf(`timeout while waiting for the attribute "%s" of the task "%s": %w`, key, s.taskID, ctx.Err())
			}
			if err := events.InitErr; err != nil {
				return "", err
			}
			for _, event := range events.Events {
				if event.Type == etcdop.DeleteEvent {
					continue
				}
				if string(event.Kv.Key) == expectedKey {
					return string(event.Kv.Value), nil
				}
			}
		}
	}
}

func (s *session) SaveCheckpoint(ctx context.Context, scope CheckpointScope, name string, data []byte, opts ...CheckpointOption) error {
	c := checkpointConfig{overwrite: true}
	for _, o := range opts {
		o(&c)
	}

	checkpoint := model.Checkpoint{
		Name:      name,
		Data:      data,
		CreatedAt: utctime.From(s.clock.Now()),
	}
	if scope == CheckpointScopeSession {
		checkpoint.TaskID = s.taskID
	}

	var etcdOpts []etcd.OpOption
	if c.ttlSeconds > 0 {
		lease, err := s.client.Grant(ctx, c.ttlSeconds)
		if err != nil {
			return errors.Errorf(`cannot create lease for the checkpoint "%s": %w`, name, err)
		}
		etcdOpts = append(etcdOpts, etcd.WithLease(lease.ID))
	}

	key := s.checkpointKey(scope, name)
	if c.overwrite {
		return key.Put(checkpoint, etcdOpts...).Do(ctx, s.client)
	}

	ok, err := key.PutIfNotExists(checkpoint, etcdOpts...).Do(ctx, s.client)
	if err != nil {
		return err
	} else if !ok {
		return errors.Errorf(`checkpoint "%s" already exists`, name)
	}
	return nil
}

func (s *session) LoadCheckpoint(ctx context.Context, scope CheckpointScope, name string) (*model.Checkpoint, error) {
	kv, err := s.checkpointKey(scope, name).Get().Do(ctx, s.client)
	if err != nil {
		return nil, err
	} else if kv == nil {
		return nil, nil
	}
	return &kv.Value, nil
}

func (s *session) RemoveCheckpoint(ctx context.Context, scope CheckpointScope, name string) (bool, error) {
	key := etcdop.Key(s.checkpointKey(scope, name).Key())
	return key.Delete().Do(ctx, s.client)
}

func (s *session) Siblings() []string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	out := make([]string, len(s.siblings))
	copy(out, s.siblings)
	return out
}

func (s *session) RefreshSiblings(ctx context.Context) ([]string, error) {
	kv, err := s.schema.Tasks().ByID(s.taskID).Get().Do(ctx, s.client)
	if err != nil {
		return nil, err
	} else if kv == nil {
		return nil, errors.Errorf(`task "%s" not found`, s.taskID)
	}

	s.lock.Lock()
	s.siblings = kv.Value.Topology
	s.finishedAt = kv.Value.FinishedAt
	s.lock.Unlock()

	return s.Siblings(), nil
}

func (s *session) attrs() schema.AttributesInTask {
	return s.schema.Sessions().Attr().InTask(s.taskID)
}

func (s *session) checkpointKey(scope CheckpointScope, name string) etcdop.KeyT[model.Checkpoint] {
	switch scope {
	case CheckpointScopeSession:
		return s.schema.Checkpoints().InSession(s.taskID).ByName(name)
	case CheckpointScopeGlobal:
		return s.schema.Checkpoints().Global().ByName(name)
	default:
		panic(errors.Errorf(`unexpected checkpoint scope "%s"`, scope))
	}
}
