// Package schema defines the layout of the etcd database,
// it maps model structs to typed etcd keys and prefixes.
package schema

import (
	. "github.com/taskgrid/taskgrid/internal/pkg/service/common/etcdop"
)

type Schema struct {
	serialization Serialization
}

type prefix = Prefix

func New(s Serialization) *Schema {
	return &Schema{serialization: s}
}
