package kvstore

import "errors"

// Error sentinels for the transactional core. Conflicts and PhantomDetected
// are returned to the caller to retry; VersionNotFound indicates an internal
// invariant violation and is propagated rather than swallowed.
var (
	ErrUndefinedKeySpace = errors.New("kvstore: undefined keyspace")
	ErrInvalidTxnId      = errors.New("kvstore: invalid transaction id")
	ErrVersionNotFound   = errors.New("kvstore: version not found")
	ErrReadWriteConflict = errors.New("kvstore: read-write conflict")
	ErrWriteWriteConflict = errors.New("kvstore: write-write conflict")
	ErrPhantomDetected   = errors.New("kvstore: phantom detected")
)
