package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syedhassaanahmed/log-storage-service/store"
)

type fakeAPI struct {
	mu         sync.Mutex
	objects    map[string][]byte
	failPutKey string
	buckets    map[string]bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{objects: make(map[string][]byte), buckets: make(map[string]bool)}
}

func (f *fakeAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	key := aws.ToString(in.Key)
	if f.failPutKey != "" && strings.HasSuffix(key, f.failPutKey) {
		return nil, errors.New("injected put failure")
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeAPI) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("no such key")}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (f *fakeAPI) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeAPI) CreateBucket(_ context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.Bucket)
	if f.buckets[name] {
		return nil, &types.BucketAlreadyOwnedByYou{Message: aws.String("owned")}
	}
	f.buckets[name] = true
	return &s3.CreateBucketOutput{}, nil
}

func (f *fakeAPI) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func putString(t *testing.T, b *Backend, name, content string, md map[string]string) {
	t.Helper()
	err := b.Put(context.Background(), &store.Object{
		Name:        name,
		ContentType: store.ContentTypeZip,
		Size:        int64(len(content)),
		Metadata:    md,
	}, strings.NewReader(content))
	require.NoError(t, err)
}

func TestBackend_PutStatGet(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	b := NewWithAPI(api, "logs", "archives/")
	putString(t, b, "a.zip", "payload", map[string]string{"checksum": "sha256:x", "entryabc": "{}"})

	obj, err := b.Stat(context.Background(), "a.zip")
	require.NoError(t, err)
	assert.Equal(t, "a.zip", obj.Name)
	assert.Equal(t, store.ContentTypeZip, obj.ContentType)
	assert.Equal(t, int64(7), obj.Size)
	assert.Equal(t, "sha256:x", obj.Metadata["checksum"])

	rc, got, err := b.Get(context.Background(), "a.zip")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	assert.Equal(t, obj, got)

	keys := api.keys()
	require.Len(t, keys, 2)
	assert.Contains(t, keys, "archives/a.zip.meta.json")
	for _, k := range keys {
		assert.True(t, strings.HasPrefix(k, "archives/a.zip."))
	}
}

func TestBackend_NotFound(t *testing.T) {
	t.Parallel()

	b := NewWithAPI(newFakeAPI(), "logs", "")

	_, err := b.Stat(context.Background(), "missing.zip")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, _, err = b.Get(context.Background(), "missing.zip")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestBackend_ReplaceDeletesPreviousData(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	b := NewWithAPI(api, "logs", "")
	putString(t, b, "a.zip", "first", nil)
	putString(t, b, "a.zip", "second", map[string]string{"k": "v"})

	assert.Len(t, api.keys(), 2)

	rc, obj, err := b.Get(context.Background(), "a.zip")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
	assert.Equal(t, "v", obj.Metadata["k"])
}

func TestBackend_DescriptorFailureKeepsPrevious(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	b := NewWithAPI(api, "logs", "")
	putString(t, b, "a.zip", "first", nil)

	api.failPutKey = metaSuffix
	err := b.Put(context.Background(), &store.Object{Name: "a.zip", Size: 6}, strings.NewReader("second"))
	require.Error(t, err)
	api.failPutKey = ""

	assert.Len(t, api.keys(), 2)
	rc, _, err := b.Get(context.Background(), "a.zip")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
}

func TestBackend_BadDescriptor(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	api.objects["a.zip"+metaSuffix] = []byte(`{"size":1}`)
	b := NewWithAPI(api, "logs", "")

	_, err := b.Stat(context.Background(), "a.zip")
	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrNotFound)
}

func TestNew_RequiresBucket(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}

func TestIsNotFound(t *testing.T) {
	t.Parallel()

	assert.True(t, isNotFound(&types.NoSuchKey{}))
	assert.True(t, isNotFound(&types.NotFound{}))
	assert.False(t, isNotFound(errors.New("boom")))
}

func TestBackend_EnsureBucket(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	b := NewWithAPI(api, "logs", "")
	require.NoError(t, b.EnsureBucket(context.Background()))
	require.NoError(t, b.EnsureBucket(context.Background()), "existing bucket is not an error")
	assert.True(t, api.buckets["logs"])
}
