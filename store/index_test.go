package store

import (
	"strings"
	"testing"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syedhassaanahmed/log-storage-service/archive"
)

var testTime = time.Date(2016, time.December, 15, 10, 0, 1, 0, time.UTC)

func TestEncodeEntryIsASCII(t *testing.T) {
	t.Parallel()

	entries := []archive.Entry{
		{Name: "a.log", Size: 11, ModTime: testTime},
		{Name: "日本語.txt", Size: 3, ModTime: testTime},
		{Name: "emoji 🚀.log", Size: 0, ModTime: testTime},
		{Name: `quote " and \ slash`, Size: 1, ModTime: testTime},
	}
	for _, e := range entries {
		value, err := EncodeEntry(e)
		require.NoError(t, err)
		for i := 0; i < len(value); i++ {
			require.Less(t, value[i], byte(0x80), "value %q", value)
		}

		got, err := DecodeEntry(value)
		require.NoError(t, err)
		assert.Equal(t, e.Name, got.Name)
		assert.Equal(t, e.Size, got.Size)
		assert.True(t, e.ModTime.Equal(got.ModTime))
	}
}

func TestEncodeEntryFormat(t *testing.T) {
	t.Parallel()

	value, err := EncodeEntry(archive.Entry{Name: "a.log", Size: 11, ModTime: testTime})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"a.log","size":11,"modified":"2016-12-15T10:00:01Z"}`, value)
}

func TestDecodeEntryRejects(t *testing.T) {
	t.Parallel()

	for _, value := range []string{
		"",
		"not json",
		`{"name":"a","size":-1,"modified":"2016-12-15T10:00:01Z"}`,
		`{"name":"a","size":1,"modified":"yesterday"}`,
		`{"name":"a","size":1,"modified":"2016-12-15T10:00:01Z","extra":true}`,
	} {
		_, err := DecodeEntry(value)
		assert.Error(t, err, "value %q", value)
	}
}

func TestBuildAndParseIndex(t *testing.T) {
	t.Parallel()

	sum := digest.FromString("archive")
	entries := []archive.Entry{
		{Name: "z.log", Size: 3, ModTime: testTime},
		{Name: "a.log", Size: 11, ModTime: testTime},
		{Name: "a.log", Size: 99, ModTime: testTime},
		{Name: "dir/ü.log", Size: 5, ModTime: testTime},
	}
	md, count, err := buildMetadata("Logs ü.zip", sum, testTime, entries)
	require.NoError(t, err)
	assert.Equal(t, 3, count, "duplicate names keep the first entry")

	for key, value := range md {
		for _, s := range []string{key, value} {
			for i := 0; i < len(s); i++ {
				require.Less(t, s[i], byte(0x80), "metadata %q=%q", key, value)
			}
		}
		assert.Equal(t, strings.ToLower(key), key)
	}

	ix, err := parseIndex(&Object{Name: "Logs_u.zip", Size: 42, Metadata: md})
	require.NoError(t, err)
	assert.Equal(t, "Logs_u.zip", ix.ArchiveID)
	assert.Equal(t, "Logs ü.zip", ix.ArchiveName)
	assert.Equal(t, sum, ix.Checksum)
	assert.True(t, ix.UploadedAt.Equal(testTime))
	assert.Equal(t, int64(42), ix.Size)

	require.Equal(t, 3, ix.Len())
	names := []string{ix.Entries[0].Name, ix.Entries[1].Name, ix.Entries[2].Name}
	assert.Equal(t, []string{"a.log", "dir/ü.log", "z.log"}, names)

	e, ok := ix.Lookup(EncodeKey("a.log"))
	require.True(t, ok)
	assert.Equal(t, int64(11), e.Size)

	_, ok = ix.Lookup(EncodeKey("missing.log"))
	assert.False(t, ok)
	_, ok = ix.Lookup("garbage")
	assert.False(t, ok)
}

func TestBuildMetadataRejectsEmptyName(t *testing.T) {
	t.Parallel()

	_, _, err := buildMetadata("x", digest.FromString("x"), testTime, []archive.Entry{{Name: ""}})
	require.ErrorIs(t, err, ErrEmptyIndex)
}

func TestParseIndexInconsistent(t *testing.T) {
	t.Parallel()

	sum := digest.FromString("x").String()
	tests := []struct {
		name string
		md   map[string]string
	}{
		{"no metadata", nil},
		{"reserved keys only", map[string]string{MetaChecksum: sum, MetaIndexVersion: "1"}},
		{"undecodable value", map[string]string{EncodeKey("a.log"): "{"}},
		{"name mismatch", map[string]string{
			EncodeKey("a.log"): `{"name":"b.log","size":1,"modified":"2016-12-15T10:00:01Z"}`,
		}},
		{"future version", map[string]string{
			MetaIndexVersion:   "2",
			EncodeKey("a.log"): `{"name":"a.log","size":1,"modified":"2016-12-15T10:00:01Z"}`,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := parseIndex(&Object{Name: "x", Metadata: tt.md})
			require.ErrorIs(t, err, ErrInconsistentIndex)
		})
	}
}

func TestParseIndexIgnoresForeignKeys(t *testing.T) {
	t.Parallel()

	ix, err := parseIndex(&Object{Name: "x", Metadata: map[string]string{
		"owner":            "ops",
		"file_0":           "legacy",
		EncodeKey("a.log"): `{"name":"a.log","size":1,"modified":"2016-12-15T10:00:01Z"}`,
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, ix.Len())
	assert.Equal(t, "x", ix.ArchiveName, "display name defaults to the id")
}
