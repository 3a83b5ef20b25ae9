package kvstore

import "sync"

// KeySet partitions a set of keys by keyspace. A transaction owns one
// read-set and one write-set KeySet, discarded when the transaction ends.
type KeySet[S comparable] struct {
	mu sync.Mutex
	m  map[S]map[string]struct{}
}

// NewKeySet returns an empty, keyspace-partitioned key set.
func NewKeySet[S comparable]() *KeySet[S] {
	return &KeySet[S]{m: make(map[S]map[string]struct{})}
}

// Add records key as belonging to space.
func (ks *KeySet[S]) Add(space S, key []byte) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	set, ok := ks.m[space]
	if !ok {
		set = make(map[string]struct{})
		ks.m[space] = set
	}
	set[string(key)] = struct{}{}
}

// ForEach calls f once per keyspace partition.
func (ks *KeySet[S]) ForEach(f func(space S, keys map[string]struct{})) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	for space, keys := range ks.m {
		f(space, keys)
	}
}

// Overlaps reports whether ks and other share a key within the same
// keyspace. To avoid acquiring both sets' locks in opposite orders on two
// threads, it snapshots this set first (releasing its own lock) and only
// then locks other, rather than holding both locks at once.
func (ks *KeySet[S]) Overlaps(other *KeySet[S]) bool {
	snapshot := ks.snapshot()

	other.mu.Lock()
	defer other.mu.Unlock()

	for space, keys := range snapshot {
		otherKeys, ok := other.m[space]
		if !ok {
			continue
		}
		for k := range keys {
			if _, ok := otherKeys[k]; ok {
				return true
			}
		}
	}
	return false
}

func (ks *KeySet[S]) snapshot() map[S]map[string]struct{} {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	out := make(map[S]map[string]struct{}, len(ks.m))
	for space, keys := range ks.m {
		cp := make(map[string]struct{}, len(keys))
		for k := range keys {
			cp[k] = struct{}{}
		}
		out[space] = cp
	}
	return out
}
