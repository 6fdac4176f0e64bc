package resp

import (
	"strconv"
)

// Encode serializes v into its wire representation. Encoding never fails:
// any Value constructed through this package's constructors is well-formed.
func Encode(v Value) []byte {
	buf := make([]byte, 0, 64)
	return appendValue(buf, v)
}

func appendValue(buf []byte, v Value) []byte {
	switch v.Kind {
	case SimpleString:
		buf = append(buf, '+')
		buf = append(buf, v.Str...)
		return appendCRLF(buf)
	case Error:
		buf = append(buf, '-')
		buf = append(buf, v.Str...)
		return appendCRLF(buf)
	case Integer:
		buf = append(buf, ':')
		buf = strconv.AppendInt(buf, v.Int, 10)
		return appendCRLF(buf)
	case BulkString:
		if v.Null {
			return append(buf, "$-1\r\n"...)
		}
		buf = append(buf, '$')
		buf = strconv.AppendInt(buf, int64(len(v.Bulk)), 10)
		buf = appendCRLF(buf)
		buf = append(buf, v.Bulk...)
		return appendCRLF(buf)
	case Array:
		if v.Null {
			return append(buf, "*-1\r\n"...)
		}
		buf = append(buf, '*')
		buf = strconv.AppendInt(buf, int64(len(v.Elems)), 10)
		buf = appendCRLF(buf)
		for _, elem := range v.Elems {
			buf = appendValue(buf, elem)
		}
		return buf
	default:
		return buf
	}
}

func appendCRLF(buf []byte) []byte {
	return append(buf, '\r', '\n')
}
