package oci

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"oras.land/oras-go/v2/errdef"
	"oras.land/oras-go/v2/registry/remote/errcode"

	"github.com/syedhassaanahmed/log-storage-service/store"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("accepts repository reference", func(t *testing.T) {
		t.Parallel()
		b, err := New("localhost:5000/team/logs", WithPlainHTTP(true))
		require.NoError(t, err)
		assert.Equal(t, "localhost:5000/team/logs", b.Repository())
		assert.True(t, b.plainHTTP)
		assert.Equal(t, "logstorage/1.0", b.userAgent)
		assert.NotNil(t, b.authClient)
	})

	t.Run("rejects tagged reference", func(t *testing.T) {
		t.Parallel()
		_, err := New("localhost:5000/logs:latest")
		require.ErrorIs(t, err, ErrInvalidReference)
	})

	t.Run("rejects malformed reference", func(t *testing.T) {
		t.Parallel()
		_, err := New("not a reference")
		require.ErrorIs(t, err, ErrInvalidReference)
	})

	t.Run("applies options", func(t *testing.T) {
		t.Parallel()
		b, err := New("example.com/logs",
			WithUserAgent("custom/2.0"),
			WithStaticCredentials("example.com", "user", "pass"),
			WithAnonymous())
		require.NoError(t, err)
		assert.Equal(t, "custom/2.0", b.userAgent)
		assert.True(t, b.anonymous)
		require.NotNil(t, b.credStore)

		cred, err := b.authClient.Credential(context.Background(), "example.com")
		require.NoError(t, err)
		assert.Empty(t, cred.Username, "anonymous skips the credential store")
	})
}

func TestAnnotationsRoundTrip(t *testing.T) {
	t.Parallel()

	md := map[string]string{
		store.MetaChecksum:       "sha256:abc",
		store.EncodeKey("a.log"): `{"name":"a.log","size":11,"modified":"2016-12-15T10:00:01Z"}`,
	}
	annotations := encodeAnnotations(md)
	for k := range annotations {
		assert.Contains(t, k, annotationPrefix)
	}

	annotations["org.opencontainers.image.created"] = "2024-01-01T00:00:00Z"
	assert.Equal(t, md, decodeAnnotations(annotations))
}

func TestValidateTag(t *testing.T) {
	t.Parallel()

	for _, tag := range []string{"logs.zip", "logs_2024-01-01.zip", "_x"} {
		require.NoError(t, validateTag(tag), tag)
	}
	for _, tag := range []string{"", ".hidden", "a/b", "sha256:abc"} {
		require.ErrorIs(t, validateTag(tag), ErrInvalidReference, tag)
	}
}

func TestValidateTagAcceptsNormalizedIDs(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"logs.zip", "my logs (1).zip", "../etc/passwd", "-flag", "журнал.zip"} {
		id, err := store.NormalizeArchiveID(name)
		require.NoError(t, err)
		assert.NoError(t, validateTag(id), "normalized %q to %q", name, id)
	}
}

func TestMapError(t *testing.T) {
	t.Parallel()

	t.Run("nil error returns nil", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, mapError(nil))
	})

	t.Run("errdef.ErrNotFound maps to store.ErrNotFound", func(t *testing.T) {
		t.Parallel()
		assert.ErrorIs(t, mapError(errdef.ErrNotFound), store.ErrNotFound)
	})

	t.Run("wrapped errdef.ErrNotFound maps to store.ErrNotFound", func(t *testing.T) {
		t.Parallel()
		err := mapError(fmt.Errorf("wrapped: %w", errdef.ErrNotFound))
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("status codes", func(t *testing.T) {
		t.Parallel()
		tests := []struct {
			status int
			want   error
		}{
			{404, store.ErrNotFound},
			{401, ErrUnauthorized},
			{403, ErrForbidden},
		}
		for _, tt := range tests {
			err := mapError(&errcode.ErrorResponse{StatusCode: tt.status})
			assert.ErrorIs(t, err, tt.want, "status %d", tt.status)
		}
	})

	t.Run("unknown error passes through", func(t *testing.T) {
		t.Parallel()
		original := errors.New("some random error")
		assert.Equal(t, original, mapError(original))
	})
}
