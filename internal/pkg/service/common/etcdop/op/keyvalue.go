package op

import (
	"go.etcd.io/etcd/api/v3/mvccpb"
)

// KeyValue is an etcd KV pair.
type KeyValue = mvccpb.KeyValue

// KeyValueT is an etcd KV pair with the decoded value of the type T.
type KeyValueT[T any] struct {
	Value T
	KV    *KeyValue
}

// KeyValuesT is a slice of the etcd KV pairs with the decoded values of the type T.
type KeyValuesT[T any] []KeyValueT[T]

func (kv KeyValueT[T]) Key() string {
	return string(kv.KV.Key)
}

// Values returns the decoded values.
func (kvs KeyValuesT[T]) Values() []T {
	out := make([]T, len(kvs))
	for i, kv := range kvs {
		out[i] = kv.Value
	}
	return out
}
