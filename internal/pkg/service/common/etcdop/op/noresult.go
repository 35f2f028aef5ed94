package op

import (
	"context"

	etcd "go.etcd.io/etcd/client/v3"
)

// NoResultOp returns only an error, if any.
// It is implemented a little differently than other operations,
// because it has only one return value of the type error (not two).
type NoResultOp struct {
	factory Factory
	mapper  NoResultMapper
}

// NoResultMapper checks an etcd response and converts it to an error or nil.
type NoResultMapper func(ctx context.Context, r etcd.OpResponse) error

// NewNoResultOp wraps an operation, the result of which is an error or nil.
func NewNoResultOp(factory Factory, mapper NoResultMapper) NoResultOp {
	return NoResultOp{factory: factory, mapper: mapper}
}

// Op returns raw etcd.Op.
func (v NoResultOp) Op(ctx context.Context) (etcd.Op, error) {
	return v.factory(ctx)
}

// Do the operation.
func (v NoResultOp) Do(ctx context.Context, client etcd.KV) error {
	etcdOp, err := v.factory(ctx)
	if err != nil {
		return err
	}
	response, err := client.Do(ctx, etcdOp)
	if err != nil {
		return err
	}
	return v.mapper(ctx, response)
}

// DoOrErr the operation, an alias for the Do method, see the ForType type.
func (v NoResultOp) DoOrErr(ctx context.Context, client etcd.KV) error {
	return v.Do(ctx, client)
}

func (v NoResultOp) MapResponse(ctx context.Context, response etcd.OpResponse) (any, error) {
	return nil, v.mapper(ctx, response)
}
