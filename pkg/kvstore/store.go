package kvstore

import (
	"fmt"
	"sync"
)

// Store is the public entry point of the transactional engine: it defines
// keyspaces, begins/commits/aborts transactions, and routes gets/sets/
// deletes through the right keyspace while recording them on the
// transaction's read or write set.
//
// S is the application-defined keyspace identifier type: hashable,
// comparable, cheaply copyable, and otherwise uninterpreted by the core.
type Store[S comparable] struct {
	keyspacesMu sync.RWMutex
	keyspaces   map[S]*KeySpace

	txns *TxnManager[S]
}

// NewStore returns a Store with no keyspaces defined.
func NewStore[S comparable]() *Store[S] {
	return &Store[S]{
		keyspaces: make(map[S]*KeySpace),
		txns:      NewTxnManager[S](),
	}
}

// DefineKeySpace idempotently creates a keyspace under id. Calling it again
// for the same id is a no-op; the existing keyspace is left untouched.
func (s *Store[S]) DefineKeySpace(id S) {
	s.keyspacesMu.Lock()
	defer s.keyspacesMu.Unlock()
	if _, ok := s.keyspaces[id]; ok {
		return
	}
	s.keyspaces[id] = NewKeySpace()
}

// BeginTxn starts a new transaction and returns its identifier.
func (s *Store[S]) BeginTxn() TxnId {
	return s.txns.Begin()
}

// CommitTxn validates and commits t, as described in spec.md §4.5.
func (s *Store[S]) CommitTxn(t TxnId) error {
	return s.txns.Commit(t, s.commitKeys, s.abortKeys)
}

// AbortTxn discards t and reverts every key it wrote.
func (s *Store[S]) AbortTxn(t TxnId) error {
	return s.txns.Abort(t, s.abortKeys)
}

// Get looks up key in keyspace id under transaction t's snapshot. On
// success the read is recorded on t's read-set for later phantom
// validation.
func (s *Store[S]) Get(t TxnId, id S, key []byte) ([]byte, bool, error) {
	if !s.txns.IsActive(t) {
		return nil, false, ErrInvalidTxnId
	}
	ks, err := s.keyspace(id)
	if err != nil {
		return nil, false, err
	}

	val, ok, err := ks.Get(t, key)
	if err != nil {
		return nil, false, err
	}
	s.txns.RecordRead(t, id, key)
	return val, ok, nil
}

// Set writes val at key in keyspace id under transaction t. On success the
// write is recorded on t's write-set.
func (s *Store[S]) Set(t TxnId, id S, key, val []byte) error {
	if !s.txns.IsActive(t) {
		return ErrInvalidTxnId
	}
	ks, err := s.keyspace(id)
	if err != nil {
		return err
	}
	if err := ks.Set(t, key, val); err != nil {
		return err
	}
	s.txns.RecordWrite(t, id, key)
	return nil
}

// Delete tombstones key in keyspace id under transaction t. On success the
// write is recorded on t's write-set.
func (s *Store[S]) Delete(t TxnId, id S, key []byte) error {
	if !s.txns.IsActive(t) {
		return ErrInvalidTxnId
	}
	ks, err := s.keyspace(id)
	if err != nil {
		return err
	}
	if err := ks.Delete(t, key); err != nil {
		return err
	}
	s.txns.RecordWrite(t, id, key)
	return nil
}

// WithTxn runs body within an implicit transaction: it begins a
// transaction, invokes body with its id, commits on success, and aborts on
// error. body must not itself begin, commit, or abort a transaction, and
// must not nest WithTxn. Commit/abort errors are surfaced to the caller;
// on the failure path the original body error takes precedence over any
// abort error.
func (s *Store[S]) WithTxn(body func(t TxnId) error) error {
	t := s.BeginTxn()

	bodyErr := body(t)
	if bodyErr == nil {
		return s.CommitTxn(t)
	}

	// The body already failed; the abort is best-effort cleanup. The
	// original body error is what the caller needs to see, so it takes
	// precedence over whatever AbortTxn itself returns.
	_ = s.AbortTxn(t)
	return bodyErr
}

// StoreStats is a snapshot of occupancy counters, exposed over the HTTP
// status API and logged by the maintenance scheduler.
type StoreStats struct {
	KeySpaceCount          int            `json:"keyspace_count"`
	KeyCounts              map[string]int `json:"key_counts"`
	ActiveTxnCount         int            `json:"active_txn_count"`
	RecentlyCommittedCount int            `json:"recently_committed_count"`
}

// Stats returns a point-in-time snapshot of the store's occupancy. id is
// formatted with fmt.Sprint so it reads sensibly regardless of S.
func (s *Store[S]) Stats() StoreStats {
	s.keyspacesMu.RLock()
	defer s.keyspacesMu.RUnlock()

	counts := make(map[string]int, len(s.keyspaces))
	for id, ks := range s.keyspaces {
		counts[fmt.Sprint(id)] = ks.KeyCount()
	}

	return StoreStats{
		KeySpaceCount:          len(s.keyspaces),
		KeyCounts:              counts,
		ActiveTxnCount:         s.txns.ActiveCount(),
		RecentlyCommittedCount: s.txns.RecentlyCommittedCount(),
	}
}

func (s *Store[S]) keyspace(id S) (*KeySpace, error) {
	s.keyspacesMu.RLock()
	defer s.keyspacesMu.RUnlock()
	ks, ok := s.keyspaces[id]
	if !ok {
		return nil, ErrUndefinedKeySpace
	}
	return ks, nil
}

func (s *Store[S]) commitKeys(id S, keys map[string]struct{}, commitTs TxnId) error {
	ks, err := s.keyspace(id)
	if err != nil {
		return err
	}
	return ks.CommitKeys(keys, commitTs)
}

func (s *Store[S]) abortKeys(id S, keys map[string]struct{}) error {
	ks, err := s.keyspace(id)
	if err != nil {
		return err
	}
	return ks.AbortKeys(keys)
}
