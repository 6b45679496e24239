package codec

import "fmt"

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// ByName returns the codec registered under name for V.
// "json" | "msgpack" | "cbor" work for any V; "protobuf" only for the value
// shapes this module caches (bool, string, []string).
func ByName[V any](name string) (Codec[V], error) {
	switch name {
	case "", "json":
		return JSON[V]{}, nil
	case "msgpack":
		return Msgpack[V]{}, nil
	case "cbor":
		return NewCBOR[V](true)
	case "protobuf":
		var zero V
		var c any
		switch any(zero).(type) {
		case bool:
			c = ProtoBool{}
		case string:
			c = ProtoString{}
		case []string:
			c = ProtoStrings{}
		default:
			return nil, fmt.Errorf("codec: protobuf does not support %T", zero)
		}
		return c.(Codec[V]), nil
	default:
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
}
