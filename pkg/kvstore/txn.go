package kvstore

import (
	"sync"
	"sync/atomic"
)

// TxnId is a process-monotonic, never-reused identifier. It doubles as a
// transaction's begin timestamp and, after commit, a fresh TxnId is drawn
// from the same sequence to serve as its commit timestamp.
type TxnId uint64

// transaction is the manager's bookkeeping record for one live or
// recently-committed transaction.
type transaction[S comparable] struct {
	id       TxnId
	readSet  *KeySet[S]
	writeSet *KeySet[S]
}

// ApplyAbortFunc is invoked once per (keyspace, keys) partition of a
// transaction's write-set when it aborts or fails phantom validation.
type ApplyAbortFunc[S comparable] func(space S, keys map[string]struct{}) error

// ApplyCommitFunc is invoked once per (keyspace, keys) partition of a
// transaction's write-set once it has passed validation, with the freshly
// allocated commit timestamp.
type ApplyCommitFunc[S comparable] func(space S, keys map[string]struct{}, commitTs TxnId) error

// TxnManager allocates transaction identifiers and performs commit
// validation: phantom detection against recently-committed writes, and
// pruning of committed records that can no longer conflict with any active
// transaction.
type TxnManager[S comparable] struct {
	nextID uint64 // atomic

	activeMu sync.RWMutex
	active   map[TxnId]*transaction[S]

	recentMu         sync.Mutex
	recentlyCommitted map[TxnId]*transaction[S]
}

// NewTxnManager returns a manager with no active or committed transactions.
func NewTxnManager[S comparable]() *TxnManager[S] {
	return &TxnManager[S]{
		active:            make(map[TxnId]*transaction[S]),
		recentlyCommitted: make(map[TxnId]*transaction[S]),
	}
}

func (m *TxnManager[S]) nextId() TxnId {
	return TxnId(atomic.AddUint64(&m.nextID, 1) - 1)
}

// Begin allocates a new identifier and registers an active transaction with
// empty read/write sets.
func (m *TxnManager[S]) Begin() TxnId {
	id := m.nextId()

	m.activeMu.Lock()
	defer m.activeMu.Unlock()
	m.active[id] = &transaction[S]{
		id:       id,
		readSet:  NewKeySet[S](),
		writeSet: NewKeySet[S](),
	}
	return id
}

// IsActive reports whether t is a live, uncommitted, unaborted transaction.
func (m *TxnManager[S]) IsActive(t TxnId) bool {
	m.activeMu.RLock()
	defer m.activeMu.RUnlock()
	_, ok := m.active[t]
	return ok
}

// RecordRead adds key to t's read-set partition for space.
func (m *TxnManager[S]) RecordRead(t TxnId, space S, key []byte) {
	m.withActive(t, func(txn *transaction[S]) { txn.readSet.Add(space, key) })
}

// RecordWrite adds key to t's write-set partition for space.
func (m *TxnManager[S]) RecordWrite(t TxnId, space S, key []byte) {
	m.withActive(t, func(txn *transaction[S]) { txn.writeSet.Add(space, key) })
}

func (m *TxnManager[S]) withActive(t TxnId, f func(*transaction[S])) {
	m.activeMu.RLock()
	defer m.activeMu.RUnlock()
	txn, ok := m.active[t]
	if !ok {
		return
	}
	f(txn)
}

// Commit performs phantom-validating commit of t. applyCommit and
// applyAbort are invoked once per write-set partition: applyCommit to flip
// versions from OnlyTxn to SinceTs, applyAbort to revert in-place edits if
// validation fails.
//
// The active map and the recently-committed map are held exclusively for
// the whole operation, which serializes all commits and gives a consistent
// horizon for pruning: a committed record older than every active begin
// timestamp can never conflict with a future commit.
func (m *TxnManager[S]) Commit(t TxnId, applyCommit ApplyCommitFunc[S], applyAbort ApplyAbortFunc[S]) error {
	m.activeMu.Lock()
	defer m.activeMu.Unlock()
	m.recentMu.Lock()
	defer m.recentMu.Unlock()

	txn, ok := m.active[t]
	if !ok {
		return ErrInvalidTxnId
	}
	delete(m.active, t)

	beginTs := t
	minActive, hasMinActive := m.minActiveLocked()

	var discard []TxnId
	for committedID, committedTxn := range m.recentlyCommitted {
		if committedID > beginTs && txn.readSet.Overlaps(committedTxn.writeSet) {
			var abortErr error
			txn.writeSet.ForEach(func(space S, keys map[string]struct{}) {
				if err := applyAbort(space, keys); err != nil && abortErr == nil {
					abortErr = err
				}
			})
			if abortErr != nil {
				return abortErr
			}
			return ErrPhantomDetected
		}

		if hasMinActive && committedID < minActive {
			discard = append(discard, committedID)
		}
	}

	for _, id := range discard {
		delete(m.recentlyCommitted, id)
	}

	commitTs := m.nextId()

	var commitErr error
	txn.writeSet.ForEach(func(space S, keys map[string]struct{}) {
		if err := applyCommit(space, keys, commitTs); err != nil && commitErr == nil {
			commitErr = err
		}
	})
	if commitErr != nil {
		return commitErr
	}

	m.recentlyCommitted[commitTs] = txn
	return nil
}

// Abort removes t from the active set and invokes applyAbort for each of
// its write-set partitions.
func (m *TxnManager[S]) Abort(t TxnId, applyAbort ApplyAbortFunc[S]) error {
	m.activeMu.Lock()
	txn, ok := m.active[t]
	if !ok {
		m.activeMu.Unlock()
		return ErrInvalidTxnId
	}
	delete(m.active, t)
	m.activeMu.Unlock()

	var abortErr error
	txn.writeSet.ForEach(func(space S, keys map[string]struct{}) {
		if err := applyAbort(space, keys); err != nil && abortErr == nil {
			abortErr = err
		}
	})
	return abortErr
}

// ActiveCount returns the number of currently active transactions.
func (m *TxnManager[S]) ActiveCount() int {
	m.activeMu.RLock()
	defer m.activeMu.RUnlock()
	return len(m.active)
}

// RecentlyCommittedCount returns the number of commit records not yet
// pruned below the active horizon.
func (m *TxnManager[S]) RecentlyCommittedCount() int {
	m.recentMu.Lock()
	defer m.recentMu.Unlock()
	return len(m.recentlyCommitted)
}

// minActiveLocked returns the smallest still-active TxnId. Caller must hold
// activeMu.
func (m *TxnManager[S]) minActiveLocked() (TxnId, bool) {
	var min TxnId
	found := false
	for id := range m.active {
		if !found || id < min {
			min = id
			found = true
		}
	}
	return min, found
}
