package encode

import (
	"encoding/binary"
	"math"
	"unicode/utf8"
)

// Encoder writes its own little-endian representation to w.
type Encoder interface {
	Encode(w *BytesWriter)
}

// Decoder reads its own little-endian representation from r.
type Decoder interface {
	Decode(r *BytesReader) error
}

// Bool encodes a boolean as a single byte (0 or 1).
type Bool bool

func (b Bool) Encode(w *BytesWriter) {
	if b {
		w.Write([]byte{1})
	} else {
		w.Write([]byte{0})
	}
}

func (b *Bool) Decode(r *BytesReader) error {
	buf, err := r.Read(1)
	if err != nil {
		return err
	}
	*b = buf[0] != 0
	return nil
}

// U8 encodes a single unsigned byte.
type U8 uint8

func (v U8) Encode(w *BytesWriter) { w.Write([]byte{byte(v)}) }

func (v *U8) Decode(r *BytesReader) error {
	buf, err := r.Read(1)
	if err != nil {
		return err
	}
	*v = U8(buf[0])
	return nil
}

// U16 encodes a little-endian uint16.
type U16 uint16

func (v U16) Encode(w *BytesWriter) {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], uint16(v))
	w.Write(buf[:])
}

func (v *U16) Decode(r *BytesReader) error {
	buf, err := r.Read(2)
	if err != nil {
		return err
	}
	*v = U16(binary.LittleEndian.Uint16(buf))
	return nil
}

// I16 encodes a little-endian int16.
type I16 int16

func (v I16) Encode(w *BytesWriter) {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], uint16(v))
	w.Write(buf[:])
}

func (v *I16) Decode(r *BytesReader) error {
	buf, err := r.Read(2)
	if err != nil {
		return err
	}
	*v = I16(binary.LittleEndian.Uint16(buf))
	return nil
}

// U32 encodes a little-endian uint32.
type U32 uint32

func (v U32) Encode(w *BytesWriter) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	w.Write(buf[:])
}

func (v *U32) Decode(r *BytesReader) error {
	buf, err := r.Read(4)
	if err != nil {
		return err
	}
	*v = U32(binary.LittleEndian.Uint32(buf))
	return nil
}

// I32 encodes a little-endian int32.
type I32 int32

func (v I32) Encode(w *BytesWriter) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	w.Write(buf[:])
}

func (v *I32) Decode(r *BytesReader) error {
	buf, err := r.Read(4)
	if err != nil {
		return err
	}
	*v = I32(binary.LittleEndian.Uint32(buf))
	return nil
}

// U64 encodes a little-endian uint64.
type U64 uint64

func (v U64) Encode(w *BytesWriter) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	w.Write(buf[:])
}

func (v *U64) Decode(r *BytesReader) error {
	buf, err := r.Read(8)
	if err != nil {
		return err
	}
	*v = U64(binary.LittleEndian.Uint64(buf))
	return nil
}

// I64 encodes a little-endian int64.
type I64 int64

func (v I64) Encode(w *BytesWriter) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	w.Write(buf[:])
}

func (v *I64) Decode(r *BytesReader) error {
	buf, err := r.Read(8)
	if err != nil {
		return err
	}
	*v = I64(binary.LittleEndian.Uint64(buf))
	return nil
}

// Usize encodes a usize as 8 bytes, as required by spec: lengths and counts
// always occupy a fixed 8 bytes regardless of host word size.
type Usize uint64

func (v Usize) Encode(w *BytesWriter) { U64(v).Encode(w) }

func (v *Usize) Decode(r *BytesReader) error {
	var u U64
	if err := u.Decode(r); err != nil {
		return err
	}
	*v = Usize(u)
	return nil
}

// EncodeBytes writes a usize length prefix followed by the raw bytes.
func EncodeBytes(w *BytesWriter, b []byte) {
	Usize(len(b)).Encode(w)
	w.Write(b)
}

// DecodeBytes reads a usize length prefix followed by that many raw bytes.
func DecodeBytes(r *BytesReader) ([]byte, error) {
	var n Usize
	if err := n.Decode(r); err != nil {
		return nil, err
	}
	if n > math.MaxInt32 {
		return nil, ErrLengthPrefixTooLarge
	}
	return r.Read(int(n))
}

// EncodeString writes a string as its length-prefixed UTF-8 bytes.
func EncodeString(w *BytesWriter, s string) {
	EncodeBytes(w, []byte(s))
}

// DecodeString reads a length-prefixed byte sequence and validates it as
// UTF-8, per the spec's InvalidFormat("Invalid UTF8 string bytes") contract.
func DecodeString(r *BytesReader) (string, error) {
	b, err := DecodeBytes(r)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", ErrInvalidUTF8
	}
	return string(b), nil
}
