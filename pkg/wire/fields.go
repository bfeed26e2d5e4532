package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Small helpers over protowire for the scalar/repeated field shapes the
// Command and FailureDetection messages use. Each append* helper skips
// zero-valued fields the way protoc-gen-go's generated marshalers do.

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytes(b []byte, num protowire.Number, data []byte) []byte {
	if len(data) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, data)
}

func appendUint64(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendUint32(b []byte, num protowire.Number, v uint32) []byte {
	return appendUint64(b, num, uint64(v))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, 1)
}

func appendStrings(b []byte, num protowire.Number, vs []string) []byte {
	for _, s := range vs {
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendString(b, s)
	}
	return b
}

// appendMessage wraps an already-encoded nested message under num, as a
// oneof-of-message field is encoded on the wire.
func appendMessage(b []byte, num protowire.Number, nested []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, nested)
}

// fieldVisitor is called once per top-level field found in b, with b
// starting just after the field's tag (walkFields has consumed the tag).
// It returns the number of value bytes consumed, or an error.
type fieldVisitor func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

// walkFields drives a fieldVisitor across every (tag, value) pair in b.
func walkFields(b []byte, visit fieldVisitor) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("wire: invalid tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		consumed, err := visit(num, typ, b)
		if err != nil {
			return err
		}
		if consumed < 0 || consumed > len(b) {
			return fmt.Errorf("wire: field %d consumed out of range", num)
		}
		b = b[consumed:]
	}
	return nil
}

func consumeString(typ protowire.Type, b []byte) (string, int, error) {
	if typ != protowire.BytesType {
		return "", 0, fmt.Errorf("wire: expected bytes wire type, got %d", typ)
	}
	s, n := protowire.ConsumeString(b)
	if n < 0 {
		return "", 0, fmt.Errorf("wire: invalid string: %w", protowire.ParseError(n))
	}
	return s, n, nil
}

func consumeBytes(typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, fmt.Errorf("wire: expected bytes wire type, got %d", typ)
	}
	data, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, fmt.Errorf("wire: invalid bytes: %w", protowire.ParseError(n))
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, n, nil
}

func consumeVarint(typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, fmt.Errorf("wire: expected varint wire type, got %d", typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, fmt.Errorf("wire: invalid varint: %w", protowire.ParseError(n))
	}
	return v, n, nil
}

func consumeMessage(typ protowire.Type, b []byte) ([]byte, int, error) {
	return consumeBytes(typ, b)
}
