package kvstore

import "sync"

// VersionTable owns every VersionEntry for one keyspace plus the byte arena
// backing their values. Values are written exactly once, never freed
// individually, and referenced by an (start, end) range into the arena, per
// spec.md §3's recommended arena model.
type VersionTable struct {
	entriesMu sync.RWMutex
	entries   []*versionEntry

	arenaMu sync.RWMutex
	arena   []byte
}

// NewVersionTable returns an empty, append-only version table.
func NewVersionTable() *VersionTable {
	return &VersionTable{}
}

// AppendFirst encodes payload into the arena (or records a tombstone) and
// appends a fresh uncommitted entry with no predecessor.
func (vt *VersionTable) AppendFirst(t TxnId, deleted bool, payload []byte) VersionId {
	start, end := vt.store(deleted, payload)
	entry := newUncommittedEntry(t, deleted, start, end, false, 0)

	vt.entriesMu.Lock()
	defer vt.entriesMu.Unlock()
	vt.entries = append(vt.entries, entry)
	return VersionId(len(vt.entries) - 1)
}

// AppendNext implements spec.md §4.2's append_next_version: acquires the
// write lock on prevID, and either appends a new chain node (prev belonged
// to a different, already-committed txn) or overwrites prevID in place (t
// already held the write lock on an uncommitted version of its own).
func (vt *VersionTable) AppendNext(t TxnId, prevID VersionId, deleted bool, payload []byte) (VersionId, error) {
	acquired, err := vt.acquireWriteLock(t, prevID)
	if err != nil {
		return 0, err
	}

	if acquired {
		start, end := vt.store(deleted, payload)
		entry := newUncommittedEntry(t, deleted, start, end, true, prevID)

		vt.entriesMu.Lock()
		defer vt.entriesMu.Unlock()
		vt.entries = append(vt.entries, entry)
		return VersionId(len(vt.entries) - 1), nil
	}

	// Already held the write lock on our own uncommitted version: update it
	// in place instead of growing the chain.
	entry, err := vt.entryAt(prevID)
	if err != nil {
		return 0, err
	}
	start, end := vt.store(deleted, payload)

	entry.mu.Lock()
	entry.deleted = deleted
	entry.valueStart = start
	entry.valueEnd = end
	entry.mu.Unlock()

	return prevID, nil
}

// Retrieve walks the chain from id, taking an exclusive hold on each visited
// entry long enough to consult visibility and, if visible, bump read_ts.
// Returns (nil, false, nil) when no visible, non-deleted version exists.
func (vt *VersionTable) Retrieve(t TxnId, id VersionId) ([]byte, bool, error) {
	current := id
	for {
		entry, err := vt.entryAt(current)
		if err != nil {
			return nil, false, err
		}

		entry.mu.Lock()
		if entry.isVisibleFor(t) {
			entry.observeRead(t)
			deleted := entry.deleted
			start, end := entry.valueStart, entry.valueEnd
			entry.mu.Unlock()

			if deleted {
				return nil, false, nil
			}
			return vt.valueBytes(start, end), true, nil
		}

		hasPrev := entry.hasPrevious
		prev := entry.previous
		entry.mu.Unlock()

		if !hasPrev {
			return nil, false, nil
		}
		current = prev
	}
}

// Commit transitions id from OnlyTxn to SinceTs, releases its write lock,
// and if a predecessor exists, transitions it to Interval ending at
// commitTs and releases its write lock too. id (and its
// predecessor, if any) must already be in the table: the keyspace only ever
// commits a head it itself appended, so a miss here is an invariant
// violation, not a reportable error — it panics, per spec.md §7's "a
// version id present in the key map but missing from the version table" is
// reserved for panics, not a returned error kind.
func (vt *VersionTable) Commit(id VersionId, commitTs TxnId) {
	entry := vt.mustEntryAt(id)

	entry.mu.Lock()
	entry.commitToSince()
	entry.releaseWrite()
	hasPrev := entry.hasPrevious
	prev := entry.previous
	entry.mu.Unlock()

	if !hasPrev {
		return
	}

	prevEntry := vt.mustEntryAt(prev)
	prevEntry.mu.Lock()
	prevEntry.commitPredecessorToInterval(commitTs)
	prevEntry.releaseWrite()
	prevEntry.mu.Unlock()
}

// Abort releases the write lock on id's predecessor, if any, and returns
// that predecessor id so the keyspace can roll its head back (or delete the
// key entirely if there was none). It discards whatever is currently at id
// — the freshly appended node or the in-place-updated entry alike, per
// spec.md §9's resolution of the abort-after-in-place-write open question.
// As with Commit, a missing id is an invariant violation and panics rather
// than returning an error.
func (vt *VersionTable) Abort(id VersionId) (VersionId, bool) {
	entry := vt.mustEntryAt(id)

	entry.mu.RLock()
	hasPrev := entry.hasPrevious
	prev := entry.previous
	entry.mu.RUnlock()

	if !hasPrev {
		return 0, false
	}

	prevEntry := vt.mustEntryAt(prev)
	prevEntry.mu.Lock()
	prevEntry.releaseWrite()
	prevEntry.mu.Unlock()
	return prev, true
}

func (vt *VersionTable) acquireWriteLock(t TxnId, id VersionId) (bool, error) {
	entry, err := vt.entryAt(id)
	if err != nil {
		return false, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.acquireWrite(t)
}

func (vt *VersionTable) entryAt(id VersionId) (*versionEntry, error) {
	vt.entriesMu.RLock()
	defer vt.entriesMu.RUnlock()
	if int(id) < 0 || int(id) >= len(vt.entries) {
		return nil, ErrVersionNotFound
	}
	return vt.entries[id], nil
}

// mustEntryAt is entryAt's panicking variant, used only by Commit and
// Abort: both are always called with an id the keyspace itself appended,
// so a miss can only mean an internal invariant was broken.
func (vt *VersionTable) mustEntryAt(id VersionId) *versionEntry {
	entry, err := vt.entryAt(id)
	if err != nil {
		panic("kvstore: version id referenced by keyspace is missing from its version table")
	}
	return entry
}

func (vt *VersionTable) store(deleted bool, payload []byte) (start, end int) {
	if deleted {
		return 0, 0
	}
	vt.arenaMu.Lock()
	defer vt.arenaMu.Unlock()
	start = len(vt.arena)
	vt.arena = append(vt.arena, payload...)
	end = len(vt.arena)
	return start, end
}

func (vt *VersionTable) valueBytes(start, end int) []byte {
	vt.arenaMu.RLock()
	defer vt.arenaMu.RUnlock()
	out := make([]byte, end-start)
	copy(out, vt.arena[start:end])
	return out
}
