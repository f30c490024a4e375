// Package wire holds the small protobuf encoding helpers shared by the
// hand-maintained MCS and checkin message packages.
package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// FieldFunc decodes the value of one field starting at b. It returns the number
// of bytes consumed, 0 to skip the field as unknown, or a negative protowire
// error code.
type FieldFunc func(num protowire.Number, typ protowire.Type, b []byte) int

// Walk iterates over every field in b.
func Walk(b []byte, fn FieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("wire: tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		m := fn(num, typ, b)
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
		}
		if m < 0 {
			return fmt.Errorf("wire: field %d: %w", num, protowire.ParseError(m))
		}
		b = b[m:]
	}
	return nil
}

// String consumes a length-delimited string. A type mismatch reports 0 so the
// field is skipped.
func String(typ protowire.Type, b []byte, dst *string) int {
	if typ != protowire.BytesType {
		return 0
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return n
	}
	*dst = string(v)
	return n
}

// Bytes consumes a length-delimited field into a fresh slice.
func Bytes(typ protowire.Type, b []byte, dst *[]byte) int {
	if typ != protowire.BytesType {
		return 0
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return n
	}
	*dst = append([]byte(nil), v...)
	return n
}

// Message consumes an embedded message and hands its bytes to decode.
func Message(typ protowire.Type, b []byte, decode func([]byte) error) int {
	if typ != protowire.BytesType {
		return 0
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return n
	}
	if err := decode(v); err != nil {
		return -1
	}
	return n
}

// Int64 consumes a varint-encoded int64.
func Int64(typ protowire.Type, b []byte, dst *int64) int {
	if typ != protowire.VarintType {
		return 0
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return n
	}
	*dst = int64(v)
	return n
}

// Int32 consumes a varint-encoded int32 (or enum).
func Int32(typ protowire.Type, b []byte, dst *int32) int {
	var v int64
	n := Int64(typ, b, &v)
	if n > 0 {
		*dst = int32(v)
	}
	return n
}

// Bool consumes a varint-encoded bool.
func Bool(typ protowire.Type, b []byte, dst *bool) int {
	var v int64
	n := Int64(typ, b, &v)
	if n > 0 {
		*dst = v != 0
	}
	return n
}

// Fixed64 consumes a fixed64 field.
func Fixed64(typ protowire.Type, b []byte, dst *uint64) int {
	if typ != protowire.Fixed64Type {
		return 0
	}
	v, n := protowire.ConsumeFixed64(b)
	if n < 0 {
		return n
	}
	*dst = v
	return n
}

// AppendString appends a string field.
func AppendString(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// AppendOptString appends a string field only when it is non-empty.
func AppendOptString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	return AppendString(b, num, v)
}

// AppendBytes appends a bytes field only when it is non-empty.
func AppendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// AppendMessage appends an embedded message.
func AppendMessage(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// AppendVarint appends an int64/int32/enum field.
func AppendVarint(b []byte, num protowire.Number, v int64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

// AppendOptVarint appends a varint field only when it is non-zero.
func AppendOptVarint(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	return AppendVarint(b, num, v)
}

// AppendBool appends a bool field.
func AppendBool(b []byte, num protowire.Number, v bool) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

// AppendFixed64 appends a fixed64 field.
func AppendFixed64(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, v)
}
