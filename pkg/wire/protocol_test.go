package wire

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeMessageRoundTrip(t *testing.T) {
	req := &SetRequest{TxnID: 7, KeySpace: "users", Key: []byte("k"), Value: []byte("v")}

	data, err := EncodeMessage(MsgSet, req)
	require.NoError(t, err)

	msg, err := DecodeMessage(data)
	require.NoError(t, err)
	assert.Equal(t, MsgSet, msg.Type)

	var got SetRequest
	require.NoError(t, Decode(msg.Payload, &got))
	assert.Equal(t, req.TxnID, got.TxnID)
	assert.Equal(t, req.KeySpace, got.KeySpace)
	assert.Equal(t, req.Key, got.Key)
	assert.Equal(t, req.Value, got.Value)
}

func TestEncodeMessageCompressesLargePayloads(t *testing.T) {
	big := &SetRequest{
		TxnID:    1,
		KeySpace: "ks",
		Key:      []byte("k"),
		Value:    []byte(strings.Repeat("x", compressionThreshold*4)),
	}

	data, err := EncodeMessage(MsgSet, big)
	require.NoError(t, err)

	var raw Message
	require.NoError(t, Decode(data, &raw))
	assert.Equal(t, MsgSet|compressedFlag, raw.Type, "the encoded envelope must carry the compressed flag")

	msg, err := DecodeMessage(data)
	require.NoError(t, err)
	assert.Equal(t, MsgSet, msg.Type, "the compressed flag bit must be cleared on decode")

	var got SetRequest
	require.NoError(t, Decode(msg.Payload, &got))
	assert.Equal(t, big.Value, got.Value)
}

func TestEncodeMessageSmallPayloadUncompressed(t *testing.T) {
	small := &GetRequest{TxnID: 1, KeySpace: "ks", Key: []byte("k")}

	data, err := EncodeMessage(MsgGet, small)
	require.NoError(t, err)

	var raw Message
	require.NoError(t, Decode(data, &raw))
	assert.Equal(t, MsgGet, raw.Type, "a small payload must not carry the compressed flag")

	msg, err := DecodeMessage(data)
	require.NoError(t, err)
	assert.Equal(t, MsgGet, msg.Type)
}

func TestDecodeMessageInvalidData(t *testing.T) {
	_, err := DecodeMessage([]byte{0xff, 0xff, 0xff})
	assert.Error(t, err)
}

func TestNewErrorMessage(t *testing.T) {
	e := NewErrorMessage(ErrCodeStore, "boom")
	assert.Equal(t, ErrCodeStore, e.Code)
	assert.Equal(t, "boom", e.Message)
}
