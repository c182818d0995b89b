package cache

import (
	"net/http"
	"sort"
	"strings"

	serializer "github.com/sg-study/study-worker/pkg/response-serializer"
)

// generationSeparator separates the generation id from the request key in
// provider keys. It must not appear in generation ids.
const generationSeparator = "\t"

// Store maps request keys to serialized responses inside named, versioned
// generations. Exactly one generation is current; all entries written during
// normal operation go there. Older generations stay on disk until evicted
// by DeleteGeneration.
type Store struct {
	provider Provider
	current  string
}

// NewStore creates a store writing to the given current generation id,
// e.g. "sg-study-site-v1.0.0".
func NewStore(provider Provider, currentGeneration string) *Store {
	return &Store{
		provider: provider,
		current:  currentGeneration,
	}
}

// CurrentID returns the current generation id.
func (s *Store) CurrentID() string {
	return s.current
}

// Open returns a handle to the given generation. The generation namespace is
// implicit in the key encoding, so opening never fails and creates nothing.
func (s *Store) Open(id string) *Generation {
	return &Generation{provider: s.provider, id: id}
}

// Current returns a handle to the current generation.
func (s *Store) Current() *Generation {
	return s.Open(s.current)
}

// Generations returns the sorted ids of all generations with at least one
// entry, the current one included.
func (s *Store) Generations() ([]string, error) {
	seen := make(map[string]bool)
	err := s.provider.Keys("", func(key string) {
		if id, _, ok := strings.Cut(key, generationSeparator); ok {
			seen[id] = true
		}
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// DeleteGeneration removes every entry of the given generation.
func (s *Store) DeleteGeneration(id string) error {
	return s.provider.DeletePrefix(id + generationSeparator)
}

// Generation is a handle to one generation's entries.
type Generation struct {
	provider Provider
	id       string
}

func (g *Generation) ID() string {
	return g.id
}

func (g *Generation) entryKey(key string) string {
	return g.id + generationSeparator + key
}

// Match returns the stored response for the given request key, if present.
func (g *Generation) Match(key string) (*http.Response, bool, error) {
	bts, ok, err := g.provider.Get(g.entryKey(key))
	if err != nil || !ok {
		return nil, false, err
	}
	res, err := serializer.BytesToResponse(bts, nil)
	if err != nil {
		return nil, false, err
	}
	return res, true, nil
}

// Put stores already-serialized response bytes under the given request key,
// overwriting any previous entry.
func (g *Generation) Put(key string, bts []byte) error {
	return g.provider.Put(g.entryKey(key), bts)
}

// PutResponse serializes and stores a response. The response body remains
// readable afterwards.
func (g *Generation) PutResponse(key string, res *http.Response) error {
	bts, err := serializer.ResponseToBytes(res)
	if err != nil {
		return err
	}
	return g.Put(key, bts)
}

// Delete removes the entry for the given request key.
func (g *Generation) Delete(key string) error {
	return g.provider.Delete(g.entryKey(key))
}

// Keys calls the callback for each request key stored in the generation.
func (g *Generation) Keys(cb func(key string)) error {
	prefix := g.id + generationSeparator
	return g.provider.Keys(prefix, func(key string) {
		cb(strings.TrimPrefix(key, prefix))
	})
}
