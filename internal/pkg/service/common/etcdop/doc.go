// Package etcdop provides a small framework on top of etcd low-level operations.
//
// See Key and Prefix types. Examples can be found in the tests.
//
// Goals:
// - Reduce the risk of an error when defining an operation.
// - Distinguish between operations over one key (Key type) and several keys (Prefix type).
package etcdop
