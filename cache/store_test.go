package cache

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordedResponse(t *testing.T, status int, body string) *http.Response {
	t.Helper()
	rr := httptest.NewRecorder()
	rr.Header().Set("Content-Type", "text/html")
	rr.WriteHeader(status)
	_, err := rr.WriteString(body)
	require.NoError(t, err)
	return rr.Result()
}

func TestGenerationPutAndMatch(t *testing.T) {
	store := NewStore(NewMemProvider(), "sg-study-site-v1.0.0")
	gen := store.Current()

	res := recordedResponse(t, http.StatusOK, "<h1>Algebra</h1>")
	require.NoError(t, gen.PutResponse("GET:/pages/algebra", res))

	// the response stays readable after serialization
	remaining, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Equal(t, "<h1>Algebra</h1>", string(remaining))

	stored, ok, err := gen.Match("GET:/pages/algebra")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, stored.StatusCode)
	assert.Equal(t, "text/html", stored.Header.Get("Content-Type"))
	body, err := io.ReadAll(stored.Body)
	require.NoError(t, err)
	assert.Equal(t, "<h1>Algebra</h1>", string(body))
}

func TestMatchMiss(t *testing.T) {
	store := NewStore(NewMemProvider(), "sg-study-site-v1.0.0")
	_, ok, err := store.Current().Match("GET:/nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPutOverwrites(t *testing.T) {
	store := NewStore(NewMemProvider(), "sg-study-site-v1.0.0")
	gen := store.Current()

	require.NoError(t, gen.PutResponse("GET:/", recordedResponse(t, http.StatusOK, "old")))
	require.NoError(t, gen.PutResponse("GET:/", recordedResponse(t, http.StatusOK, "new")))

	stored, ok, err := gen.Match("GET:/")
	require.NoError(t, err)
	require.True(t, ok)
	body, _ := io.ReadAll(stored.Body)
	assert.Equal(t, "new", string(body))
}

func TestGenerationsAndEviction(t *testing.T) {
	store := NewStore(NewMemProvider(), "sg-study-site-v1.0.0")

	require.NoError(t, store.Current().Put("GET:/", []byte("current")))
	require.NoError(t, store.Open("sg-study-site-v0.9.0").Put("GET:/", []byte("stale")))
	require.NoError(t, store.Open("sg-study-site-v0.8.0").Put("GET:/", []byte("older")))

	gens, err := store.Generations()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"sg-study-site-v0.8.0",
		"sg-study-site-v0.9.0",
		"sg-study-site-v1.0.0",
	}, gens)

	require.NoError(t, store.DeleteGeneration("sg-study-site-v0.9.0"))

	gens, err = store.Generations()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"sg-study-site-v0.8.0",
		"sg-study-site-v1.0.0",
	}, gens)

	// eviction of one generation leaves the others untouched
	_, ok, err := store.Current().Match("GET:/")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGenerationsAreIsolated(t *testing.T) {
	store := NewStore(NewMemProvider(), "sg-study-site-v1.0.0")

	require.NoError(t, store.Open("sg-study-site-v0.9.0").Put("GET:/only-old", []byte("stale")))

	_, ok, err := store.Current().Match("GET:/only-old")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGenerationKeys(t *testing.T) {
	store := NewStore(NewMemProvider(), "sg-study-site-v1.0.0")
	gen := store.Current()
	require.NoError(t, gen.Put("GET:/a", []byte("a")))
	require.NoError(t, gen.Put("GET:/b", []byte("b")))

	keys := make(map[string]bool)
	require.NoError(t, gen.Keys(func(key string) { keys[key] = true }))
	assert.Equal(t, map[string]bool{"GET:/a": true, "GET:/b": true}, keys)
}

func TestMemProviderDeletePrefix(t *testing.T) {
	p := NewMemProvider()
	require.NoError(t, p.Put("a\t1", []byte("1")))
	require.NoError(t, p.Put("a\t2", []byte("2")))
	require.NoError(t, p.Put("b\t1", []byte("3")))

	require.NoError(t, p.DeletePrefix("a\t"))

	_, ok, _ := p.Get("a\t1")
	assert.False(t, ok)
	_, ok, _ = p.Get("b\t1")
	assert.True(t, ok)
}
