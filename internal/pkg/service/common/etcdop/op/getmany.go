package op

import (
	"context"

	etcd "go.etcd.io/etcd/client/v3"
)

type GetManyOp = ForType[[]*KeyValue]

// GetManyMapper converts an etcd response to KV pairs.
type GetManyMapper func(ctx context.Context, r etcd.OpResponse) ([]*KeyValue, error)

// NewGetManyOp wraps an operation, the result of which is zero or more KV pairs.
func NewGetManyOp(factory Factory, mapper GetManyMapper) GetManyOp {
	return ForType[[]*KeyValue]{factory: factory, mapper: mapper}
}

// NewGetManyTOp wraps an operation, the result of which is zero or more KV pairs, the values are encoded as the type T.
func NewGetManyTOp[T any](factory Factory, mapper func(ctx context.Context, r etcd.OpResponse) (KeyValuesT[T], error)) ForType[KeyValuesT[T]] {
	return ForType[KeyValuesT[T]]{factory: factory, mapper: mapper}
}
