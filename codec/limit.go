package codec

import "fmt"

// LimitCodec refuses to decode payloads longer than MaxDecode bytes before
// Inner sees them. Id lists come from an untrusted document store, so a
// poisoned entry is rejected (and self-healed) instead of allocated.
// MaxDecode <= 0 turns the cap off.
type LimitCodec[V any] struct {
	Inner     Codec[V]
	MaxDecode int
}

func (c LimitCodec[V]) Encode(v V) ([]byte, error) { return c.Inner.Encode(v) }
func (c LimitCodec[V]) Decode(b []byte) (V, error) {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		var zero V
		return zero, fmt.Errorf("codec: payload of %d bytes exceeds cap %d", len(b), c.MaxDecode)
	}
	return c.Inner.Decode(b)
}
