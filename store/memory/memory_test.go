package memory

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syedhassaanahmed/log-storage-service/store"
)

func TestBackendPutStatGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := New()
	md := map[string]string{"checksum": "sha256:abc"}
	require.NoError(t, b.Put(ctx, &store.Object{Name: "a", ContentType: store.ContentTypeZip, Metadata: md}, strings.NewReader("data")))

	// Mutating the caller's map does not leak into the stored blob.
	md["checksum"] = "changed"

	obj, err := b.Stat(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(4), obj.Size)
	assert.Equal(t, "sha256:abc", obj.Metadata["checksum"])

	rc, got, err := b.Get(ctx, "a")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
	assert.Equal(t, store.ContentTypeZip, got.ContentType)
}

func TestBackendNotFound(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := New()

	_, err := b.Stat(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, _, err = b.Get(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	assert.False(t, b.Corrupt("missing", nil))
	assert.False(t, b.SetMetadata("missing", nil))
}

func TestBackendOverwrite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := New()
	require.NoError(t, b.Put(ctx, &store.Object{Name: "a", Metadata: map[string]string{"v": "1"}}, bytes.NewReader([]byte("one"))))
	require.NoError(t, b.Put(ctx, &store.Object{Name: "a", Metadata: map[string]string{"v": "2"}}, bytes.NewReader([]byte("second"))))

	obj, err := b.Stat(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "2", obj.Metadata["v"])
	assert.Equal(t, int64(6), obj.Size)
	assert.Equal(t, []string{"a"}, b.Names())
}

func TestBackendCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := New()
	require.ErrorIs(t, b.Put(ctx, &store.Object{Name: "a"}, strings.NewReader("x")), context.Canceled)
	_, err := b.Stat(ctx, "a")
	require.ErrorIs(t, err, context.Canceled)
}
