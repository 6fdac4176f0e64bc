// Package resp implements the wire protocol spoken by respkv clients: an
// incremental, streaming decoder and a symmetric encoder for the RESP-style
// frame grammar (simple strings, errors, integers, bulk strings, arrays).
package resp

import "strconv"

// Kind identifies which of the five frame shapes a Value represents.
type Kind int

const (
	SimpleString Kind = iota
	Error
	Integer
	BulkString
	Array
)

// Value is a decoded (or to-be-encoded) RESP frame. Only the fields relevant
// to Kind are meaningful; the zero Value is not a valid frame on its own.
//
// BulkString and Array are nullable: Null distinguishes "$-1\r\n" / "*-1\r\n"
// from an empty-but-present bulk string ("$0\r\n\r\n") or array ("*0\r\n").
type Value struct {
	Kind  Kind
	Str   string  // SimpleString, Error
	Int   int64   // Integer
	Bulk  []byte  // BulkString payload; meaningless when Null
	Elems []Value // Array elements; meaningless when Null
	Null  bool    // null bulk string / null array
}

func NewSimpleString(s string) Value { return Value{Kind: SimpleString, Str: s} }
func NewError(s string) Value        { return Value{Kind: Error, Str: s} }
func NewInteger(n int64) Value       { return Value{Kind: Integer, Int: n} }

func NewBulkString(b []byte) Value { return Value{Kind: BulkString, Bulk: b} }
func NewBulkStringFromString(s string) Value {
	return Value{Kind: BulkString, Bulk: []byte(s)}
}
func NewNullBulk() Value { return Value{Kind: BulkString, Null: true} }

func NewArray(elems []Value) Value { return Value{Kind: Array, Elems: elems} }
func NewNullArray() Value          { return Value{Kind: Array, Null: true} }

// IsNull reports whether v is a null bulk string or null array.
func (v Value) IsNull() bool {
	return (v.Kind == BulkString || v.Kind == Array) && v.Null
}

// String renders a Value for debugging only; it is not the wire encoding.
func (v Value) String() string {
	switch v.Kind {
	case SimpleString:
		return "+" + v.Str
	case Error:
		return "-" + v.Str
	case Integer:
		return ":" + strconv.FormatInt(v.Int, 10)
	case BulkString:
		if v.Null {
			return "$-1"
		}
		return "$" + strconv.Itoa(len(v.Bulk)) + " " + string(v.Bulk)
	case Array:
		if v.Null {
			return "*-1"
		}
		return "*" + strconv.Itoa(len(v.Elems))
	default:
		return "<invalid>"
	}
}
