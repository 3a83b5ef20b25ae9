package kvstore

import "sync"

// KeySpace maps keys to the head VersionId of their version chain, backed
// by one VersionTable. A KeySpace is created once by Store.DefineKeySpace
// and lives for the process lifetime.
type KeySpace struct {
	keyMu sync.RWMutex
	keys  map[string]VersionId

	versions *VersionTable
}

// NewKeySpace returns an empty keyspace.
func NewKeySpace() *KeySpace {
	return &KeySpace{
		keys:     make(map[string]VersionId),
		versions: NewVersionTable(),
	}
}

// Get returns the value visible to t for key, or (nil, false) if absent or
// not visible.
func (ks *KeySpace) Get(t TxnId, key []byte) ([]byte, bool, error) {
	ks.keyMu.RLock()
	id, ok := ks.keys[string(key)]
	ks.keyMu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	return ks.versions.Retrieve(t, id)
}

// Set upserts an uncommitted version of key with val, either appending the
// first version, appending a new chain node, or (if t already holds the
// write lock on its own uncommitted version) overwriting it in place.
func (ks *KeySpace) Set(t TxnId, key []byte, val []byte) error {
	return ks.upsert(t, key, false, val)
}

// Delete upserts an uncommitted tombstone for key, following the same
// append/overwrite rule as Set.
func (ks *KeySpace) Delete(t TxnId, key []byte) error {
	return ks.upsert(t, key, true, nil)
}

func (ks *KeySpace) upsert(t TxnId, key []byte, deleted bool, val []byte) error {
	ks.keyMu.Lock()
	defer ks.keyMu.Unlock()

	k := string(key)
	prevID, exists := ks.keys[k]
	if !exists {
		id := ks.versions.AppendFirst(t, deleted, val)
		ks.keys[k] = id
		return nil
	}

	id, err := ks.versions.AppendNext(t, prevID, deleted, val)
	if err != nil {
		return err
	}
	ks.keys[k] = id
	return nil
}

// KeyCount returns the number of distinct keys currently tracked, live or
// tombstoned.
func (ks *KeySpace) KeyCount() int {
	ks.keyMu.RLock()
	defer ks.keyMu.RUnlock()
	return len(ks.keys)
}

// CommitKeys commits the head version of every key in keys at commitTs.
// Every key here was recorded on the transaction's write-set by a prior
// Set/Delete through this same keyspace, so its head must still be in
// ks.keys; a miss is an invariant violation and panics rather than
// returning an error.
func (ks *KeySpace) CommitKeys(keys map[string]struct{}, commitTs TxnId) error {
	ks.keyMu.RLock()
	defer ks.keyMu.RUnlock()

	for k := range keys {
		id, ok := ks.keys[k]
		if !ok {
			panic("kvstore: committed key has no head version")
		}
		ks.versions.Commit(id, commitTs)
	}
	return nil
}

// AbortKeys rolls back every key in keys: if the version chain had no
// predecessor the key is removed entirely, otherwise the head pointer rolls
// back to the committed predecessor. As in CommitKeys, a missing head for a
// key in the write-set is an invariant violation and panics.
func (ks *KeySpace) AbortKeys(keys map[string]struct{}) error {
	ks.keyMu.Lock()
	defer ks.keyMu.Unlock()

	for k := range keys {
		id, ok := ks.keys[k]
		if !ok {
			panic("kvstore: aborted key has no head version")
		}
		prev, hasPrev := ks.versions.Abort(id)
		if !hasPrev {
			delete(ks.keys, k)
		} else {
			ks.keys[k] = prev
		}
	}
	return nil
}
