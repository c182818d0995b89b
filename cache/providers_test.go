package cache

import (
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testProviders builds one of each provider backed by temp storage.
func testProviders(t *testing.T) map[string]Provider {
	t.Helper()
	sqlite, err := NewSQLiteProvider(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	level, err := NewLevelDBProvider(filepath.Join(t.TempDir(), "leveldb"))
	require.NoError(t, err)
	t.Cleanup(func() { level.Close() })
	badger, err := NewBadgerProvider("")
	require.NoError(t, err)
	t.Cleanup(func() { badger.Close() })
	return map[string]Provider{
		"memory":  NewMemProvider(),
		"sqlite":  sqlite,
		"leveldb": level,
		"badger":  badger,
	}
}

func TestProviderConformance(t *testing.T) {
	for name, p := range testProviders(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := p.Get("missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, p.Put("gen-a\tGET:/one", []byte("one")))
			require.NoError(t, p.Put("gen-a\tGET:/two", []byte("two")))
			require.NoError(t, p.Put("gen-b\tGET:/one", []byte("other")))

			value, ok, err := p.Get("gen-a\tGET:/one")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, []byte("one"), value)

			// put overwrites
			require.NoError(t, p.Put("gen-a\tGET:/one", []byte("one'")))
			value, _, _ = p.Get("gen-a\tGET:/one")
			assert.Equal(t, []byte("one'"), value)

			var keys []string
			require.NoError(t, p.Keys("gen-a\t", func(key string) { keys = append(keys, key) }))
			sort.Strings(keys)
			assert.Equal(t, []string{"gen-a\tGET:/one", "gen-a\tGET:/two"}, keys)

			require.NoError(t, p.Delete("gen-a\tGET:/two"))
			_, ok, err = p.Get("gen-a\tGET:/two")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, p.DeletePrefix("gen-a\t"))
			_, ok, _ = p.Get("gen-a\tGET:/one")
			assert.False(t, ok)
			_, ok, _ = p.Get("gen-b\tGET:/one")
			assert.True(t, ok)
		})
	}
}
