package etcdop

import (
	"context"

	"go.etcd.io/etcd/api/v3/etcdserverpb"
	"go.etcd.io/etcd/api/v3/mvccpb"
	etcd "go.etcd.io/etcd/client/v3"

	"github.com/taskgrid/taskgrid/internal/pkg/service/common/etcdop/op"
	"github.com/taskgrid/taskgrid/internal/pkg/utils/errors"
)

type EventType int32

const (
	CreateEvent EventType = iota
	UpdateEvent
	DeleteEvent
)

// Event is a watch event of an untyped key.
type Event struct {
	Kv     *mvccpb.KeyValue
	PrevKv *mvccpb.KeyValue
	Type   EventType
}

// Events is a batch of watch events.
// The Created flag is emitted once, by the etcd.WithCreatedNotify option,
// when the watcher is successfully created, so no further event can be missed.
// The InitErr field is set if the initial load in the GetAllAndWatch operation failed,
// in that case no further batch follows and the channel is closed.
type Events struct {
	Header  *etcdserverpb.ResponseHeader
	Events  []Event
	Created bool
	InitErr error
}

type EventT[T any] struct {
	op.KeyValueT[T]
	Type   EventType
	Header *etcdserverpb.ResponseHeader
}

func (v EventType) String() string {
	switch v {
	case CreateEvent:
		return "create"
	case UpdateEvent:
		return "update"
	case DeleteEvent:
		return "delete"
	default:
		panic(errors.Errorf(`unexpected event type "%d"`, int32(v)))
	}
}

func (e *EventT[T]) Rev() int64 {
	return e.Header.Revision
}

func (v Prefix) Watch(ctx context.Context, client etcd.Watcher, opts ...etcd.OpOption) etcd.WatchChan {
	opts = append([]etcd.OpOption{etcd.WithPrefix()}, opts...)
	return client.Watch(ctx, v.Prefix(), opts...)
}

// GetAllAndWatch loads all keys in the prefix and then watches for changes.
// Existing keys are emitted as one batch of CreateEvent events, before the watch phase starts.
func (v Prefix) GetAllAndWatch(ctx context.Context, client *etcd.Client, handleErr func(err error), opts ...etcd.OpOption) <-chan Events {
	outCh := make(chan Events)

	go func() {
		// GetAll phase
		resp, err := client.Get(ctx, v.Prefix(), etcd.WithPrefix())
		if err != nil {
			// GetAll error is fatal
			outCh <- Events{InitErr: err}
			close(outCh)
			return
		}

		if len(resp.Kvs) > 0 {
			batch := Events{Header: resp.Header}
			for _, kv := range resp.Kvs {
				batch.Events = append(batch.Events, Event{Kv: kv, Type: CreateEvent})
			}
			outCh <- batch
		}

		// Continue with Watch where GetAll ended
		opts = append(opts, etcd.WithRev(resp.Header.Revision+1))
		v.doWatch(ctx, client, handleErr, outCh, opts...)
	}()

	return outCh
}

func (v Prefix) doWatch(ctx context.Context, client *etcd.Client, handleErr func(err error), outCh chan Events, opts ...etcd.OpOption) {
	rawCh := v.Watch(ctx, client, opts...)
	go func() {
		for {
			select {
			case <-ctx.Done():
				// Close output channel on the shutdown,
				// so the consumer does not have to check the context.
				close(outCh)
				return
			case resp, ok := <-rawCh:
				if !ok {
					// Close output channel, if raw channel is closed
					close(outCh)
					return
				}

				if err := resp.Err(); err != nil {
					// Ignore the final response of a watch cancelled by the context
					if ctx.Err() == nil {
						handleErr(err)
					}
					continue
				}

				batch := Events{Header: &resp.Header, Created: resp.Created}
				for _, rawEvent := range resp.Events {
					event := Event{Kv: rawEvent.Kv, PrevKv: rawEvent.PrevKv}

					// Map event type
					switch rawEvent.Type {
					case mvccpb.PUT:
						if rawEvent.Kv.CreateRevision == rawEvent.Kv.ModRevision {
							event.Type = CreateEvent
						} else {
							event.Type = UpdateEvent
						}
					case mvccpb.DELETE:
						event.Type = DeleteEvent
					default:
						panic(errors.Errorf(`unexpected event type "%s"`, rawEvent.Type.String()))
					}

					batch.Events = append(batch.Events, event)
				}

				// An empty batch carries the Created flag
				if len(batch.Events) > 0 || batch.Created {
					outCh <- batch
				}
			}
		}
	}()
}

func (v PrefixT[T]) Watch(ctx context.Context, client *etcd.Client, handleErr func(err error), opts ...etcd.OpOption) <-chan EventT[T] {
	typedCh := make(chan EventT[T])
	v.doWatch(ctx, client, handleErr, typedCh, opts...)
	return typedCh
}

func (v PrefixT[T]) GetAllAndWatch(ctx context.Context, client *etcd.Client, handleErr func(err error), opts ...etcd.OpOption) <-chan EventT[T] {
	typedCh := make(chan EventT[T])

	go func() {
		// GetAll
		resp, err := client.Get(ctx, v.Prefix(), etcd.WithPrefix())
		if err != nil {
			// GetAll error is fatal
			handleErr(err)
			close(typedCh)
			return
		}

		for _, kv := range resp.Kvs {
			target := new(T)
			if err := v.serialization.decodeAndValidate(ctx, kv, target); err != nil {
				handleErr(invalidKeyError(string(kv.Key), err))
				continue
			}
			typedCh <- EventT[T]{
				KeyValueT: op.KeyValueT[T]{Value: *target, KV: kv},
				Type:      CreateEvent,
				Header:    resp.Header,
			}
		}

		// Continue with Watch where GetAll ended
		opts = append(opts, etcd.WithRev(resp.Header.Revision+1))
		v.doWatch(ctx, client, handleErr, typedCh, opts...)
	}()

	return typedCh
}

func (v PrefixT[T]) doWatch(ctx context.Context, client *etcd.Client, handleErr func(err error), typedCh chan EventT[T], opts ...etcd.OpOption) {
	rawCh := v.prefix.Watch(ctx, client, opts...)
	go func() {
		for {
			select {
			case <-ctx.Done():
				// Close typed channel on the shutdown,
				// so the consumer does not have to check the context.
				close(typedCh)
				return
			case resp, ok := <-rawCh:
				if !ok {
					// Close typed channel, if raw channel is closed
					close(typedCh)
					return
				}

				if err := resp.Err(); err != nil {
					// Ignore the final response of a watch cancelled by the context
					if ctx.Err() == nil {
						handleErr(err)
					}
					continue
				}

				for _, event := range resp.Events {
					typedEvent := EventT[T]{KeyValueT: op.KeyValueT[T]{KV: event.Kv}, Header: &resp.Header}

					// Map event type
					switch event.Type {
					case mvccpb.PUT:
						if event.Kv.CreateRevision == event.Kv.ModRevision {
							typedEvent.Type = CreateEvent
						} else {
							typedEvent.Type = UpdateEvent
						}
					case mvccpb.DELETE:
						typedEvent.Type = DeleteEvent
					default:
						panic(errors.Errorf(`unexpected event type "%s"`, event.Type.String()))
					}

					// We care for the value only in PUT operation
					if event.Type == mvccpb.PUT {
						target := new(T)
						if err := v.serialization.decodeAndValidate(ctx, event.Kv, target); err != nil {
							handleErr(invalidKeyError(string(event.Kv.Key), err))
							continue
						}
						typedEvent.Value = *target
					}
					typedCh <- typedEvent
				}
			}
		}
	}()
}
