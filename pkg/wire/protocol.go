// Package wire is the on-the-wire protocol between an emberkv client and
// server: a length-prefixed, msgpack-encoded envelope around the core's
// transaction and keyspace operations. Payloads above compressionThreshold
// are zstd-compressed before they leave the process.
package wire

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// MsgType represents the type of a protocol message.
type MsgType uint8

const (
	MsgAuth   MsgType = 0x00 // authenticate the connection with an admin token
	MsgBegin  MsgType = 0x01 // begin a transaction
	MsgCommit MsgType = 0x02 // commit a transaction
	MsgAbort  MsgType = 0x03 // abort a transaction
	MsgGet    MsgType = 0x04 // read a key
	MsgSet    MsgType = 0x05 // write a key
	MsgDelete MsgType = 0x06 // tombstone a key

	MsgTxnID  MsgType = 0x10 // reply carrying a transaction id
	MsgOK     MsgType = 0x11 // reply: operation succeeded, no payload
	MsgValue  MsgType = 0x12 // reply carrying a Get result
	MsgError  MsgType = 0x13 // reply: error response

	MsgPing MsgType = 0x20
	MsgPong MsgType = 0x21
)

// compressionThreshold is the payload size, in bytes, above which a
// message body is zstd-compressed. Small control messages (begin/commit/
// ping) never clear it, so the common case pays no compression overhead.
const compressionThreshold = 256

// compressedFlag marks a Message whose Payload is zstd-compressed and must
// be inflated before msgpack-decoding.
const compressedFlag = 0x80

// Message is the envelope written to the wire, itself msgpack-encoded: a
// type (with the high bit reserved for the compressed flag) and a payload.
// The uint32 length prefix around each encoded envelope is written by the
// server and its clients, not by this package.
type Message struct {
	Type    MsgType
	Payload []byte
}

// KeySpaceRef identifies which keyspace an operation targets. Keyspace
// identifiers are opaque strings at the wire boundary regardless of what
// type the server's Store is instantiated with.
type KeySpaceRef = string

// AuthRequest presents an admin token to authorize a connection.
type AuthRequest struct {
	Token string `msgpack:"token"`
}

// CommitRequest requests that a transaction be committed.
type CommitRequest struct {
	TxnID uint64 `msgpack:"txn_id"`
}

// AbortRequest requests that a transaction be aborted.
type AbortRequest struct {
	TxnID uint64 `msgpack:"txn_id"`
}

// GetRequest reads a key under a transaction's snapshot.
type GetRequest struct {
	TxnID    uint64      `msgpack:"txn_id"`
	KeySpace KeySpaceRef `msgpack:"keyspace"`
	Key      []byte      `msgpack:"key"`
}

// SetRequest writes a key under a transaction.
type SetRequest struct {
	TxnID    uint64      `msgpack:"txn_id"`
	KeySpace KeySpaceRef `msgpack:"keyspace"`
	Key      []byte      `msgpack:"key"`
	Value    []byte      `msgpack:"value"`
}

// DeleteRequest tombstones a key under a transaction.
type DeleteRequest struct {
	TxnID    uint64      `msgpack:"txn_id"`
	KeySpace KeySpaceRef `msgpack:"keyspace"`
	Key      []byte      `msgpack:"key"`
}

// TxnIDResponse carries a newly begun transaction's identifier.
type TxnIDResponse struct {
	TxnID uint64 `msgpack:"txn_id"`
}

// ValueResponse carries the result of a Get.
type ValueResponse struct {
	Value []byte `msgpack:"value"`
	Found bool   `msgpack:"found"`
}

// ErrorResponse carries a failed operation's error.
type ErrorResponse struct {
	Code    int    `msgpack:"code"`
	Message string `msgpack:"message"`
}

// Error codes carried in ErrorResponse.Code.
const (
	ErrCodeProtocol     = 1 // malformed message
	ErrCodeDecode       = 2 // payload did not decode
	ErrCodeStore        = 3 // kvstore operation failed
	ErrCodeUnauthorized = 4 // connection has not presented a valid admin token
)

var encoderPool = sync.Pool{
	New: func() interface{} {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			panic(err)
		}
		return enc
	},
}

var decoderPool = sync.Pool{
	New: func() interface{} {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			panic(err)
		}
		return dec
	},
}

// Encode msgpack-encodes v.
func Encode(v interface{}) ([]byte, error) {
	return msgpack.Marshal(v)
}

// Decode msgpack-decodes data into v.
func Decode(data []byte, v interface{}) error {
	return msgpack.Unmarshal(data, v)
}

// EncodeMessage encodes payload, compresses it if it clears
// compressionThreshold, and wraps the result in a Message whose type bit
// 0x80 records whether compression was applied.
func EncodeMessage(msgType MsgType, payload interface{}) ([]byte, error) {
	var body []byte
	var err error
	if payload != nil {
		body, err = Encode(payload)
		if err != nil {
			return nil, err
		}
	}

	outType := msgType
	if len(body) > compressionThreshold {
		enc := encoderPool.Get().(*zstd.Encoder)
		compressed := enc.EncodeAll(body, nil)
		encoderPool.Put(enc)
		body = compressed
		outType |= compressedFlag
	}

	return Encode(Message{Type: outType, Payload: body})
}

// DecodeMessage decodes the envelope and, if the compressed flag is set,
// inflates its payload before returning it.
func DecodeMessage(data []byte) (*Message, error) {
	var msg Message
	if err := Decode(data, &msg); err != nil {
		return nil, err
	}

	if msg.Type&compressedFlag != 0 {
		dec := decoderPool.Get().(*zstd.Decoder)
		plain, err := dec.DecodeAll(msg.Payload, nil)
		decoderPool.Put(dec)
		if err != nil {
			return nil, fmt.Errorf("wire: zstd decode: %w", err)
		}
		msg.Type &^= compressedFlag
		msg.Payload = plain
	}

	return &msg, nil
}

// NewErrorMessage builds the payload for an error reply.
func NewErrorMessage(code int, message string) *ErrorResponse {
	return &ErrorResponse{Code: code, Message: message}
}
