package booksync

import (
	"context"
	"strings"

	"github.com/mrlokans/booksync/internal/cachekeys"
)

// scopedStore confines a LocalStore to the keys under prefix. Keys are
// reported without the prefix, so callers see a private cache.
type scopedStore struct {
	base   LocalStore
	prefix string
}

func newScopedStore(base LocalStore, userID string) *scopedStore {
	return &scopedStore{base: base, prefix: cachekeys.UserScope(userID)}
}

func (s *scopedStore) Get(ctx context.Context, key string) (string, bool, error) {
	return s.base.Get(ctx, s.prefix+key)
}

func (s *scopedStore) Set(ctx context.Context, key, value string) error {
	return s.base.Set(ctx, s.prefix+key, value)
}

func (s *scopedStore) Remove(ctx context.Context, key string) error {
	return s.base.Remove(ctx, s.prefix+key)
}

func (s *scopedStore) Keys(ctx context.Context) ([]string, error) {
	all, err := s.base.Keys(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(all))
	for _, key := range all {
		if rest, ok := strings.CutPrefix(key, s.prefix); ok {
			keys = append(keys, rest)
		}
	}
	return keys, nil
}

// deniedStore is the cache of a caller without a user.
type deniedStore struct {
	err error
}

func (d deniedStore) Get(context.Context, string) (string, bool, error) { return "", false, d.err }
func (d deniedStore) Set(context.Context, string, string) error         { return d.err }
func (d deniedStore) Remove(context.Context, string) error              { return d.err }
func (d deniedStore) Keys(context.Context) ([]string, error)            { return nil, d.err }

// cacheOf returns the local cache of the user ctx resolves to. With
// SharedCache every caller sees the whole store.
func (c *Coordinator) cacheOf(ctx context.Context) LocalStore {
	if c.sharedCache {
		return c.local
	}
	userID, err := c.resolveUser(ctx, "")
	if err != nil {
		return deniedStore{err: err}
	}
	return newScopedStore(c.local, userID)
}
