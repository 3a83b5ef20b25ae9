package kvstore

import "sync"

// VersionId indexes a VersionEntry within one keyspace's VersionTable.
type VersionId int

// visibilityKind distinguishes the three visibility variants a committed or
// uncommitted version can be in.
type visibilityKind uint8

const (
	visOnlyTxn visibilityKind = iota
	visSinceTs
	visInterval
)

type visibility struct {
	kind  visibilityKind
	txnID TxnId // OnlyTxn
	begin TxnId // SinceTs, Interval
	end   TxnId // Interval
}

func onlyTxnVisibility(t TxnId) visibility {
	return visibility{kind: visOnlyTxn, txnID: t}
}

func sinceTsVisibility(begin TxnId) visibility {
	return visibility{kind: visSinceTs, begin: begin}
}

func intervalVisibility(begin, end TxnId) visibility {
	return visibility{kind: visInterval, begin: begin, end: end}
}

// versionEntry is a single node in a key's version chain. Callers must hold
// mu for the duration of any field access; the VersionTable is responsible
// for acquiring it in the right order relative to the table-wide lock.
type versionEntry struct {
	mu sync.RWMutex

	writeLocked bool
	lockTxn     TxnId

	vis visibility

	readTs TxnId

	hasPrevious bool
	previous    VersionId

	deleted    bool
	valueStart int
	valueEnd   int
}

func newUncommittedEntry(t TxnId, deleted bool, start, end int, hasPrev bool, prev VersionId) *versionEntry {
	return &versionEntry{
		writeLocked: true,
		lockTxn:     t,
		vis:         onlyTxnVisibility(t),
		readTs:      t,
		hasPrevious: hasPrev,
		previous:    prev,
		deleted:     deleted,
		valueStart:  start,
		valueEnd:    end,
	}
}

// isVisibleFor reports whether t may observe this version. Caller must hold
// at least a read lock.
func (e *versionEntry) isVisibleFor(t TxnId) bool {
	switch e.vis.kind {
	case visOnlyTxn:
		return t == e.vis.txnID
	case visSinceTs:
		return t >= e.vis.begin
	case visInterval:
		return t >= e.vis.begin && t <= e.vis.end
	default:
		return false
	}
}

// observeRead advances read_ts monotonically. Caller must hold the write
// lock (retrieval mutates read_ts even though it is logically a read).
func (e *versionEntry) observeRead(t TxnId) {
	if t > e.readTs {
		e.readTs = t
	}
}

// acquireWrite implements spec.md 4.1's acquire_write: fails with
// ErrReadWriteConflict if a later reader already observed this version,
// otherwise locks it for t or reports that t already held the lock. Caller
// must hold the write lock.
func (e *versionEntry) acquireWrite(t TxnId) (acquired bool, err error) {
	if e.readTs > t {
		return false, ErrReadWriteConflict
	}
	if !e.writeLocked {
		e.writeLocked = true
		e.lockTxn = t
		return true, nil
	}
	if e.lockTxn == t {
		return false, nil
	}
	return false, ErrWriteWriteConflict
}

// releaseWrite unlocks the entry and returns the txn that held it. Panics if
// the entry is already unlocked, mirroring the fatal invariant in spec.md
// 4.1. Caller must hold the write lock.
func (e *versionEntry) releaseWrite() TxnId {
	if !e.writeLocked {
		panic("kvstore: release_write called on an unlocked version")
	}
	t := e.lockTxn
	e.writeLocked = false
	return t
}

// commitToSince transitions OnlyTxn{t} -> SinceTs{t}. Caller must hold the
// write lock.
func (e *versionEntry) commitToSince() {
	if e.vis.kind != visOnlyTxn {
		panic("kvstore: commit_to_since called on a non-OnlyTxn version")
	}
	e.vis = sinceTsVisibility(e.vis.txnID)
}

// commitPredecessorToInterval transitions SinceTs{b} -> Interval{b, end}.
// Caller must hold the write lock.
func (e *versionEntry) commitPredecessorToInterval(end TxnId) {
	if e.vis.kind != visSinceTs {
		panic("kvstore: commit_predecessor_to_interval called on a non-SinceTs version")
	}
	e.vis = intervalVisibility(e.vis.begin, end)
}
