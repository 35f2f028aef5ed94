package etcdhelper

import (
	"context"
	"strings"

	"github.com/keboola/go-utils/pkg/orderedmap"
	etcd "go.etcd.io/etcd/client/v3"

	"github.com/taskgrid/taskgrid/internal/pkg/encoding/json"
)

type KV struct {
	Key   string
	Value string
	Lease int64
}

// DumpAllToString dumps all etcd KVs to a human readable format, see KVsToString.
func DumpAllToString(ctx context.Context, client etcd.KV) (string, error) {
	kvs, err := DumpAll(ctx, client)
	if err != nil {
		return "", err
	}
	return KVsToString(kvs), nil
}

// KVsToString converts the KVs to a string with "<<<<< key ----- value >>>>>" records.
// A key with a lease is marked with the " (lease)" suffix.
func KVsToString(kvs []KV) string {
	var b strings.Builder
	for _, kv := range kvs {
		key := kv.Key
		if kv.Lease > 0 {
			key += " (lease)"
		}
		b.WriteString("<<<<<\n")
		b.WriteString(key)
		b.WriteString("\n-----\n")
		b.WriteString(kv.Value)
		b.WriteString("\n>>>>>\n\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// ParseDump parses a string with "<<<<< key ----- value >>>>>" records, see KVsToString.
func ParseDump(dump string) (out []KV) {
	for _, part := range strings.Split(dump, ">>>>>") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		part = strings.TrimPrefix(part, "<<<<<")
		key, value, _ := strings.Cut(part, "-----")

		kv := KV{Key: strings.TrimSpace(key), Value: strings.TrimSpace(value)}
		if suffix := " (lease)"; strings.HasSuffix(kv.Key, suffix) {
			kv.Key = strings.TrimSuffix(kv.Key, suffix)
			kv.Lease = 1
		}

		out = append(out, kv)
	}
	return out
}

// DumpAll dumps all etcd KVs, a JSON value is pretty printed.
func DumpAll(ctx context.Context, client etcd.KV) (out []KV, err error) {
	r, err := client.Get(ctx, "", etcd.WithFromKey(), etcd.WithSort(etcd.SortByKey, etcd.SortAscend))
	if err != nil {
		return nil, err
	}

	for _, kv := range r.Kvs {
		value := string(kv.Value)

		// Pretty print a JSON document
		if strings.HasPrefix(value, "{") {
			target := orderedmap.New()
			if err := json.DecodeString(value, target); err == nil {
				value = json.MustEncodeString(target, true)
			}
		}

		out = append(out, KV{Key: string(kv.Key), Value: value, Lease: kv.Lease})
	}

	return out, nil
}

// DumpAllKeys dumps all etcd keys, without values.
func DumpAllKeys(ctx context.Context, client etcd.KV) (out []string, err error) {
	r, err := client.Get(ctx, "", etcd.WithFromKey(), etcd.WithKeysOnly(), etcd.WithSort(etcd.SortByKey, etcd.SortAscend))
	if err != nil {
		return nil, err
	}

	for _, kv := range r.Kvs {
		out = append(out, string(kv.Key))
	}

	return out, nil
}

// PutAllFromSnapshot puts all KVs parsed from the snapshot to the etcd, see ParseDump.
func PutAllFromSnapshot(ctx context.Context, client etcd.KV, snapshot string) error {
	for _, kv := range ParseDump(snapshot) {
		if _, err := client.Put(ctx, kv.Key, kv.Value); err != nil {
			return err
		}
	}
	return nil
}
