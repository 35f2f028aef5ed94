// Package op wraps low-level etcd operations to more easily usable high-level operations.
package op

import (
	"context"

	etcd "go.etcd.io/etcd/client/v3"
)

// Op is a common interface for all operations in the package.
// Each operation also implements the Do method, but the return types differ,
// so it is not a part of the interface.
type Op interface {
	Op(ctx context.Context) (etcd.Op, error)
	// MapResponse maps a raw response to the operation result, it is used to process a transaction sub-response.
	MapResponse(ctx context.Context, response etcd.OpResponse) (result any, err error)
}

// Factory creates an etcd operation.
type Factory func(ctx context.Context) (etcd.Op, error)

// Op returns raw etcd.Op.
func (v Factory) Op(ctx context.Context) (etcd.Op, error) {
	return v(ctx)
}

// ForType is a generic operation with the result of the type R.
type ForType[R any] struct {
	factory Factory
	mapper  func(ctx context.Context, r etcd.OpResponse) (R, error)
}

// NewForType wraps an operation, the result of which is the type R.
func NewForType[R any](factory Factory, mapper func(ctx context.Context, r etcd.OpResponse) (R, error)) ForType[R] {
	return ForType[R]{factory: factory, mapper: mapper}
}

// Op returns raw etcd.Op.
func (v ForType[R]) Op(ctx context.Context) (etcd.Op, error) {
	return v.factory(ctx)
}

// Do the operation.
func (v ForType[R]) Do(ctx context.Context, client etcd.KV) (R, error) {
	var empty R
	etcdOp, err := v.factory(ctx)
	if err != nil {
		return empty, err
	}
	response, err := client.Do(ctx, etcdOp)
	if err != nil {
		return empty, err
	}
	return v.mapper(ctx, response)
}

// DoOrErr the operation, the result is ignored.
func (v ForType[R]) DoOrErr(ctx context.Context, client etcd.KV) error {
	_, err := v.Do(ctx, client)
	return err
}

func (v ForType[R]) MapResponse(ctx context.Context, response etcd.OpResponse) (any, error) {
	return v.mapper(ctx, response)
}
