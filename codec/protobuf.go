// Protobuf codecs for the value shapes cached here. Each shape maps to a
// well-known type so the bytes stay readable by any protobuf tooling.

package codec

import (
	"errors"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

var errNotString = errors.New("codec: list member is not a string")

// ProtoBool frames an edge fact as google.protobuf.BoolValue.
type ProtoBool struct{}

func (ProtoBool) Encode(v bool) ([]byte, error) { return proto.Marshal(wrapperspb.Bool(v)) }
func (ProtoBool) Decode(b []byte) (bool, error) {
	var m wrapperspb.BoolValue
	if err := proto.Unmarshal(b, &m); err != nil {
		return false, err
	}
	return m.GetValue(), nil
}

// ProtoString frames a string fact as google.protobuf.StringValue.
type ProtoString struct{}

func (ProtoString) Encode(v string) ([]byte, error) { return proto.Marshal(wrapperspb.String(v)) }
func (ProtoString) Decode(b []byte) (string, error) {
	var m wrapperspb.StringValue
	if err := proto.Unmarshal(b, &m); err != nil {
		return "", err
	}
	return m.GetValue(), nil
}

// ProtoStrings frames an id list as google.protobuf.ListValue of strings.
// Non-string members are rejected on decode.
type ProtoStrings struct{}

func (ProtoStrings) Encode(v []string) ([]byte, error) {
	vals := make([]*structpb.Value, len(v))
	for i, s := range v {
		vals[i] = structpb.NewStringValue(s)
	}
	return proto.Marshal(&structpb.ListValue{Values: vals})
}

func (ProtoStrings) Decode(b []byte) ([]string, error) {
	var m structpb.ListValue
	if err := proto.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(m.GetValues()))
	for _, v := range m.GetValues() {
		s, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, errNotString
		}
		out = append(out, s.StringValue)
	}
	return out, nil
}
