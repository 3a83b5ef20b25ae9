package encode

// EncodeSlice writes a usize count followed by each element's own encoding,
// matching the spec's "sequences of T" contract.
func EncodeSlice[T Encoder](w *BytesWriter, items []T) {
	Usize(len(items)).Encode(w)
	for _, item := range items {
		item.Encode(w)
	}
}

// DecodeSlice reads a usize count followed by that many decoded elements.
// Each element is decoded into a fresh, zero-valued T through its *T
// Decoder method.
func DecodeSlice[T any, PT interface {
	*T
	Decoder
}](r *BytesReader) ([]T, error) {
	var n Usize
	if err := n.Decode(r); err != nil {
		return nil, err
	}
	items := make([]T, 0, n)
	for i := Usize(0); i < n; i++ {
		var item T
		if err := PT(&item).Decode(r); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}
