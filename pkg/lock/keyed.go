// Package lock provides mutual exclusion scoped to string keys.
package lock

import (
	"context"
	"sort"
	"sync"
)

// Locker acquires exclusive ownership of a key until the returned release func is called.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

type slot struct {
	ch   chan struct{}
	refs int
}

// Keyed is an in-process Locker. Distinct keys never contend with each other.
type Keyed struct {
	mu    sync.Mutex
	slots map[string]*slot
}

// NewKeyed constructs an empty keyed mutex.
func NewKeyed() *Keyed {
	return &Keyed{slots: make(map[string]*slot)}
}

// Lock blocks until key is free or ctx is done.
func (k *Keyed) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	s, ok := k.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[key] = s
	}
	s.refs++
	k.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		k.drop(key, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			k.drop(key, s)
		})
	}, nil
}

func (k *Keyed) drop(key string, s *slot) {
	k.mu.Lock()
	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
	k.mu.Unlock()
}

// Size returns the number of keys currently held or awaited.
func (k *Keyed) Size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}

// LockAll acquires every key in a stable order so two callers locking overlapping sets cannot deadlock.
func LockAll(ctx context.Context, l Locker, keys ...string) (func(), error) {
	unique := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, key)
	}
	sort.Strings(unique)

	releases := make([]func(), 0, len(unique))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, key := range unique {
		release, err := l.Lock(ctx, key)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}
