package resp_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ashgrove/respkv/resp"
)

func TestDecodeComplete(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want resp.Value
		n    int
	}{
		{"simple string", "+OK\r\n", resp.NewSimpleString("OK"), 5},
		{"error", "-ERR bad\r\n", resp.NewError("ERR bad"), 10},
		{"integer", ":1000\r\n", resp.NewInteger(1000), 7},
		{"negative integer", ":-5\r\n", resp.NewInteger(-5), 5},
		{"bulk string", "$5\r\nhello\r\n", resp.NewBulkStringFromString("hello"), 11},
		{"empty bulk string", "$0\r\n\r\n", resp.NewBulkStringFromString(""), 6},
		{"null bulk", "$-1\r\n", resp.NewNullBulk(), 5},
		{"empty array", "*0\r\n", resp.NewArray([]resp.Value{}), 4},
		{"null array", "*-1\r\n", resp.NewNullArray(), 5},
		{
			"array of bulk strings",
			"*2\r\n$3\r\nfoo\r\n$3\r\nbar\r\n",
			resp.NewArray([]resp.Value{
				resp.NewBulkStringFromString("foo"),
				resp.NewBulkStringFromString("bar"),
			}),
			22,
		},
		{
			"nested array",
			"*1\r\n*1\r\n:1\r\n",
			resp.NewArray([]resp.Value{
				resp.NewArray([]resp.Value{resp.NewInteger(1)}),
			}),
			12,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := resp.NewDecoder()
			d.Feed([]byte(tt.in))
			got, n, err := d.Decode()
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if n != tt.n {
				t.Errorf("n = %d, want %d", n, tt.n)
			}
			if !valuesEqual(got, tt.want) {
				t.Errorf("Decode() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestDecodeIncomplete(t *testing.T) {
	t.Parallel()

	tests := []string{
		"",
		"+OK",
		"+OK\r",
		"$5\r\n",
		"$5\r\nhel",
		"$5\r\nhello",
		"$5\r\nhello\r",
		"*2\r\n$3\r\nfoo\r\n",
		":10",
	}

	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			t.Parallel()
			d := resp.NewDecoder()
			d.Feed([]byte(in))
			_, _, err := d.Decode()
			if !errors.Is(err, resp.ErrIncomplete) {
				t.Errorf("Decode(%q) error = %v, want ErrIncomplete", in, err)
			}
		})
	}
}

func TestDecodeProtocolError(t *testing.T) {
	t.Parallel()

	tests := []string{
		"!unknown\r\n",
		"$abc\r\n",
		"$-2\r\n",
		"*-2\r\n",
		"$3\r\nfoo\rX",     // missing trailing CRLF after payload
		"$3\r\nfooXX",      // missing CRLF entirely, but enough bytes buffered
		":abc\r\n",
	}

	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			t.Parallel()
			d := resp.NewDecoder()
			d.Feed([]byte(in))
			_, _, err := d.Decode()
			var perr *resp.ProtocolError
			if !errors.As(err, &perr) {
				t.Errorf("Decode(%q) error = %v, want *ProtocolError", in, err)
			}
		})
	}
}

func TestDecoderIsRestartable(t *testing.T) {
	t.Parallel()

	full := "*2\r\n$3\r\nfoo\r\n$3\r\nbar\r\n"
	d := resp.NewDecoder()

	for i := 0; i < len(full); i++ {
		d.Feed([]byte{full[i]})
		v, n, err := d.Decode()
		if i < len(full)-1 {
			if !errors.Is(err, resp.ErrIncomplete) {
				t.Fatalf("at byte %d: err = %v, want ErrIncomplete", i, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("final byte: err = %v", err)
		}
		if n != len(full) {
			t.Fatalf("n = %d, want %d", n, len(full))
		}
		if len(v.Elems) != 2 {
			t.Fatalf("elems = %d, want 2", len(v.Elems))
		}
	}
}

func TestDecodeThenConsumeThenDecodeAgain(t *testing.T) {
	t.Parallel()

	d := resp.NewDecoder()
	d.Feed([]byte("+OK\r\n:5\r\n"))

	v1, n1, err := d.Decode()
	if err != nil {
		t.Fatalf("first Decode() error = %v", err)
	}
	d.Consume(n1)

	v2, n2, err := d.Decode()
	if err != nil {
		t.Fatalf("second Decode() error = %v", err)
	}
	d.Consume(n2)

	if v1.Str != "OK" || v2.Int != 5 {
		t.Fatalf("got v1=%v v2=%v", v1, v2)
	}
	if d.Buffered() != 0 {
		t.Fatalf("Buffered() = %d, want 0", d.Buffered())
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	values := []resp.Value{
		resp.NewSimpleString("PONG"),
		resp.NewError("ERR boom"),
		resp.NewInteger(42),
		resp.NewInteger(-42),
		resp.NewBulkStringFromString("hello world"),
		resp.NewBulkStringFromString(""),
		resp.NewNullBulk(),
		resp.NewArray([]resp.Value{}),
		resp.NewNullArray(),
		resp.NewArray([]resp.Value{
			resp.NewBulkStringFromString("SET"),
			resp.NewBulkStringFromString("k"),
			resp.NewBulkStringFromString("v"),
		}),
	}

	for _, v := range values {
		encoded := resp.Encode(v)
		d := resp.NewDecoder()
		d.Feed(encoded)
		got, n, err := d.Decode()
		if err != nil {
			t.Fatalf("Decode(Encode(%v)) error = %v", v, err)
		}
		if n != len(encoded) {
			t.Errorf("n = %d, want %d (all bytes consumed)", n, len(encoded))
		}
		if !valuesEqual(got, v) {
			t.Errorf("round trip mismatch: got %#v, want %#v", got, v)
		}
	}
}

func TestEncodeDecodeRoundTripByteAtATime(t *testing.T) {
	t.Parallel()

	v := resp.NewArray([]resp.Value{
		resp.NewBulkStringFromString("BLPOP"),
		resp.NewBulkStringFromString("mylist"),
		resp.NewBulkStringFromString("0"),
	})
	encoded := resp.Encode(v)

	d := resp.NewDecoder()
	for i := 0; i < len(encoded); i++ {
		d.Feed(encoded[i : i+1])
		_, _, err := d.Decode()
		if i < len(encoded)-1 {
			if !errors.Is(err, resp.ErrIncomplete) {
				t.Fatalf("byte %d: err = %v, want ErrIncomplete", i, err)
			}
		} else if err != nil {
			t.Fatalf("final byte: err = %v", err)
		}
	}
}

func valuesEqual(a, b resp.Value) bool {
	if a.Kind != b.Kind || a.Null != b.Null {
		return false
	}
	switch a.Kind {
	case resp.SimpleString, resp.Error:
		return a.Str == b.Str
	case resp.Integer:
		return a.Int == b.Int
	case resp.BulkString:
		if a.Null {
			return true
		}
		return bytes.Equal(a.Bulk, b.Bulk)
	case resp.Array:
		if a.Null {
			return true
		}
		if len(a.Elems) != len(b.Elems) {
			return false
		}
		for i := range a.Elems {
			if !valuesEqual(a.Elems[i], b.Elems[i]) {
				return false
			}
		}
		return true
	}
	return false
}
