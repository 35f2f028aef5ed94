package etcdop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taskgrid/taskgrid/internal/pkg/utils/etcdhelper"
)

func TestKeyOperations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := etcdhelper.ClientForTest(t)
	k := prefixForTest().Key("key1")

	// Exists - the key does not exist
	found, err := k.Exists().Do(ctx, client)
	assert.NoError(t, err)
	assert.False(t, found)

	// Get - the key does not exist
	kv, err := k.Get().Do(ctx, client)
	assert.NoError(t, err)
	assert.Nil(t, kv)

	// Put
	assert.NoError(t, k.Put("foo").Do(ctx, client))

	// Exists - the key exists
	found, err = k.Exists().Do(ctx, client)
	assert.NoError(t, err)
	assert.True(t, found)

	// Get - the key exists
	kv, err = k.Get().Do(ctx, client)
	assert.NoError(t, err)
	assert.Equal(t, "my/prefix/key1", string(kv.Key))
	assert.Equal(t, "foo", string(kv.Value))

	// PutIfNotExists - the key exists, no change
	ok, err := k.PutIfNotExists("bar").Do(ctx, client)
	assert.NoError(t, err)
	assert.False(t, ok)
	kv, err = k.Get().Do(ctx, client)
	assert.NoError(t, err)
	assert.Equal(t, "foo", string(kv.Value))

	// Delete - the key exists
	ok, err = k.Delete().Do(ctx, client)
	assert.NoError(t, err)
	assert.True(t, ok)

	// Delete - the key does not exist
	ok, err = k.Delete().Do(ctx, client)
	assert.NoError(t, err)
	assert.False(t, ok)

	// PutIfNotExists - the key does not exist
	ok, err = k.PutIfNotExists("bar").Do(ctx, client)
	assert.NoError(t, err)
	assert.True(t, ok)

	// DeleteIfExists - the key exists
	ok, err = k.DeleteIfExists().Do(ctx, client)
	assert.NoError(t, err)
	assert.True(t, ok)

	// DeleteIfExists - the key does not exist
	ok, err = k.DeleteIfExists().Do(ctx, client)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestTypedKeyOperations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := etcdhelper.ClientForTest(t)
	k := typedPrefixForTest().Key("key1")

	// Get - the key does not exist
	kv, err := k.Get().Do(ctx, client)
	assert.NoError(t, err)
	assert.Nil(t, kv)

	// Put
	assert.NoError(t, k.Put("foo").Do(ctx, client))
	etcdhelper.AssertKVsString(t, client, `
<<<<<
my/prefix/key1
-----
"foo"
>>>>>
`)

	// Get - the key exists
	kv, err = k.Get().Do(ctx, client)
	assert.NoError(t, err)
	assert.Equal(t, "my/prefix/key1", kv.Key())
	assert.Equal(t, fooType("foo"), kv.Value)

	// PutIfNotExists - the key exists, no change
	ok, err := k.PutIfNotExists("bar").Do(ctx, client)
	assert.NoError(t, err)
	assert.False(t, ok)

	// Delete, the untyped operations are available too
	ok, err = k.Delete().Do(ctx, client)
	assert.NoError(t, err)
	assert.True(t, ok)

	// PutIfNotExists - the key does not exist
	ok, err = k.PutIfNotExists("bar").Do(ctx, client)
	assert.NoError(t, err)
	assert.True(t, ok)
	kv, err = k.Get().Do(ctx, client)
	assert.NoError(t, err)
	assert.Equal(t, fooType("bar"), kv.Value)
}
