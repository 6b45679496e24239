package codec

import (
	"errors"

	"github.com/fxamacker/cbor/v2"
)

// CBOR serializes values with fxamacker/cbor. Build it with NewCBOR; the zero
// value has no modes and fails every call.
//
// Cached payloads come from an untrusted store, so decoding rejects duplicate
// map keys and caps container sizes.
type CBOR[V any] struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var _ Codec[bool] = CBOR[bool]{}

const cborMaxElements = 1 << 16

var errZeroCBOR = errors.New("codec: CBOR codec not initialized; use NewCBOR")

// NewCBOR returns a CBOR codec. deterministic selects Core Deterministic
// Encoding (RFC 8949) so equal facts encode to equal bytes.
func NewCBOR[V any](deterministic bool) (CBOR[V], error) {
	eo := cbor.PreferredUnsortedEncOptions()
	if deterministic {
		eo = cbor.CoreDetEncOptions()
	}
	eo.Time = cbor.TimeRFC3339Nano
	em, err := eo.EncMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	dm, err := cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		MaxArrayElements: cborMaxElements,
		MaxMapPairs:      cborMaxElements,
	}.DecMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	return CBOR[V]{enc: em, dec: dm}, nil
}

func (c CBOR[V]) Encode(v V) ([]byte, error) {
	if c.enc == nil {
		return nil, errZeroCBOR
	}
	return c.enc.Marshal(v)
}

func (c CBOR[V]) Decode(b []byte) (V, error) {
	var v V
	if c.dec == nil {
		return v, errZeroCBOR
	}
	err := c.dec.Unmarshal(b, &v)
	return v, err
}
