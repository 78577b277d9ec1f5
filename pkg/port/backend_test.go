package port

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nobletooth/evicache/pkg/cache"
	"github.com/nobletooth/evicache/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestBackend builds a backend from the current flags, recording discard announcements.
func newTestBackend(t *testing.T) (*CacheBackend, *bytes.Buffer) {
	t.Helper()
	announcements := &bytes.Buffer{}
	backend, err := newCacheBackendWith(announcements)
	require.NoError(t, err)
	return backend, announcements
}

// writeNamesDataset writes a three-row CSV dataset and returns its path.
func writeNamesDataset(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "names.csv")
	require.NoError(t, os.WriteFile(path, []byte("Year,Name\n2016,Ava\n2016,Noah\n2016,Mia\n"), 0o644))
	return path
}

func TestDiscardWriter(t *testing.T) {
	for _, tc := range []struct {
		output  string
		want    *os.File
		wantErr bool
	}{
		{output: "stdout", want: os.Stdout},
		{output: "stderr", want: os.Stderr},
		{output: "none"},
		{output: ""},
		{output: "file", wantErr: true},
	} {
		t.Run(tc.output, func(t *testing.T) {
			writer, err := discardWriter(tc.output)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tc.want == nil {
				assert.Nil(t, writer)
			} else {
				assert.Equal(t, tc.want, writer)
			}
		})
	}
}

func TestNewCacheBackend_InvalidFlags(t *testing.T) {
	t.Run("unknown_policy", func(t *testing.T) {
		config.SetTestFlag(t, "cache_policy", "random")
		_, err := newCacheBackendWith(nil)
		assert.Error(t, err)
	})
	t.Run("non_positive_capacity", func(t *testing.T) {
		config.SetTestFlag(t, "cache_capacity", "0")
		_, err := newCacheBackendWith(nil)
		assert.Error(t, err)
	})
	t.Run("unknown_discard_output", func(t *testing.T) {
		config.SetTestFlag(t, "discard_output", "somewhere")
		_, err := NewCacheBackend()
		assert.Error(t, err)
	})
}

func TestCacheBackend(t *testing.T) {
	config.SetTestFlag(t, "cache_policy", "FIFO")
	config.SetTestFlag(t, "cache_capacity", "2")
	backend, announcements := newTestBackend(t)

	assert.False(t, backend.Set("k1", "v1"))
	assert.False(t, backend.Set("k2", "v2"))
	value, found := backend.Get("k1")
	assert.True(t, found)
	assert.Equal(t, "v1", value)

	assert.True(t, backend.Set("k3", "v3"))
	assert.Equal(t, "DISCARD: k1\n", announcements.String())
	assert.EqualValues(t, 1, backend.Discarded())
	_, found = backend.Get("k1")
	assert.False(t, found)

	assert.Equal(t, 2, backend.Len())
	assert.Equal(t, 2, backend.Exists("k2", "k3", "k1"))
	assert.Equal(t, []string{"k2", "k3"}, backend.Keys("*"))
	assert.Equal(t, []string{"k3"}, backend.Keys("*3"))

	assert.Equal(t, 1, backend.Delete("k2", "missing"))
	assert.Equal(t, 1, backend.Len())

	backend.Flush()
	assert.Zero(t, backend.Len())
	assert.Equal(t, "DISCARD: k1\n", announcements.String(), "Delete and Flush must not announce anything")
}

func TestCacheBackend_ExistsDoesNotCountAsUse(t *testing.T) {
	config.SetTestFlag(t, "cache_policy", "lru")
	config.SetTestFlag(t, "cache_capacity", "2")
	backend, announcements := newTestBackend(t)

	backend.Set("a", "1")
	backend.Set("b", "2")
	assert.Equal(t, 1, backend.Exists("a"))
	backend.Set("c", "3")
	assert.Equal(t, "DISCARD: a\n", announcements.String())
}

func TestCacheBackend_Disabled(t *testing.T) {
	config.SetTestFlag(t, "cache_enabled", "false")
	backend, announcements := newTestBackend(t)

	assert.False(t, backend.Set("k", "v"))
	_, found := backend.Get("k")
	assert.False(t, found)
	assert.Zero(t, backend.Len())
	assert.Empty(t, announcements.String())
}

func TestCacheBackend_Unbounded(t *testing.T) {
	config.SetTestFlag(t, "cache_bounded", "false")
	config.SetTestFlag(t, "cache_capacity", "1")
	backend, announcements := newTestBackend(t)
	_, isUnbounded := backend.layer.(*cache.Unbounded[string, string])
	require.True(t, isUnbounded)

	for _, key := range []string{"a", "b", "c"} {
		assert.False(t, backend.Set(key, key))
	}
	assert.Equal(t, 3, backend.Len())
	assert.Empty(t, announcements.String())
	assert.Zero(t, backend.Discarded())
	assert.Equal(t, 1, backend.Delete("b"))
	assert.ElementsMatch(t, []string{"a", "c"}, backend.Keys("*"))
}

func TestCacheBackend_Sharded(t *testing.T) {
	config.SetTestFlag(t, "cache_shard_count", "4")
	config.SetTestFlag(t, "cache_capacity", "1")
	backend, announcements := newTestBackend(t)
	_, isSharded := backend.layer.(*cache.Sharded[string, string])
	require.True(t, isSharded)

	for _, key := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		backend.Set(key, key)
	}
	assert.LessOrEqual(t, backend.Len(), 4)
	discards := strings.Count(announcements.String(), "DISCARD: ")
	assert.Equal(t, 8-backend.Len(), discards)
	assert.EqualValues(t, discards, backend.Discarded())
}

func TestCacheBackend_Page(t *testing.T) {
	t.Run("no_dataset", func(t *testing.T) {
		backend, _ := newTestBackend(t)
		_, err := backend.Page(1, 10)
		assert.ErrorIs(t, err, errNoDataset)
		_, err = backend.Hyper(1, 10)
		assert.ErrorIs(t, err, errNoDataset)
		_, err = backend.HyperIndex(0, 10)
		assert.ErrorIs(t, err, errNoDataset)
		assert.ErrorIs(t, backend.DeleteRow(0), errNoDataset)
	})
	t.Run("dataset", func(t *testing.T) {
		config.SetTestFlag(t, "dataset_file", writeNamesDataset(t))
		backend, _ := newTestBackend(t)

		rows, err := backend.Page(1, 2)
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"2016", "Ava"}, {"2016", "Noah"}}, rows)
		rows, err = backend.Page(3, 2)
		require.NoError(t, err)
		assert.Empty(t, rows)
	})
}
