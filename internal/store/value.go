// Package store implements the typed, in-memory keyspace: a single
// exclusion domain guarding string/list/stream values with lazy
// expiration, plus the FIFO blocking-wait coordinator for BLPOP.
package store

import (
	"container/list"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind identifies which shape a key's value currently holds. A key has
// exactly one kind for the lifetime of its existence.
type Kind int

const (
	KindString Kind = iota
	KindList
	KindStream
)

// String renders the kind the way TYPE reports it.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindStream:
		return "stream"
	default:
		return "none"
	}
}

// ErrWrongType is returned whenever a command targets a key whose stored
// kind does not match what the command requires.
var ErrWrongType = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")

// EntryID is a stream entry identifier: a pair of unsigned 64-bit
// integers totally ordered first by Ms then by Seq.
type EntryID struct {
	Ms  uint64
	Seq uint64
}

// Compare returns -1, 0, or 1 as a is less than, equal to, or greater
// than b.
func (a EntryID) Compare(b EntryID) int {
	switch {
	case a.Ms < b.Ms:
		return -1
	case a.Ms > b.Ms:
		return 1
	case a.Seq < b.Seq:
		return -1
	case a.Seq > b.Seq:
		return 1
	default:
		return 0
	}
}

func (a EntryID) String() string {
	return strconv.FormatUint(a.Ms, 10) + "-" + strconv.FormatUint(a.Seq, 10)
}

// IsZero reports whether id is the (0,0) sentinel, never a valid stored id.
func (a EntryID) IsZero() bool { return a.Ms == 0 && a.Seq == 0 }

// ParseEntryID parses the textual "ms-seq" form used by XADD/XRANGE/XREAD.
func ParseEntryID(s string) (EntryID, error) {
	ms, seq, found := strings.Cut(s, "-")
	if !found {
		return EntryID{}, fmt.Errorf("missing '-' separator")
	}
	msv, err := strconv.ParseUint(ms, 10, 64)
	if err != nil {
		return EntryID{}, fmt.Errorf("invalid ms component %q", ms)
	}
	seqv, err := strconv.ParseUint(seq, 10, 64)
	if err != nil {
		return EntryID{}, fmt.Errorf("invalid seq component %q", seq)
	}
	return EntryID{Ms: msv, Seq: seqv}, nil
}

// Field is one name/value pair within a stream Entry.
type Field struct {
	Key   string
	Value string
}

// Entry is a single stream record.
type Entry struct {
	ID     EntryID
	Fields []Field
}

// storedValue is the internal representation of one keyspace slot. Only
// the fields matching kind are meaningful.
type storedValue struct {
	kind Kind

	str string

	listVal *list.List // of string, front = head

	stream []Entry // ascending by ID

	hasExpiry bool
	expireAt  time.Time
}

func newStringValue(s string) *storedValue {
	return &storedValue{kind: KindString, str: s}
}

func newListValue() *storedValue {
	return &storedValue{kind: KindList, listVal: list.New()}
}

func newStreamValue() *storedValue {
	return &storedValue{kind: KindStream}
}

func (v *storedValue) expired(now time.Time) bool {
	return v.hasExpiry && !now.Before(v.expireAt)
}

func (v *storedValue) topID() EntryID {
	if len(v.stream) == 0 {
		return EntryID{}
	}
	return v.stream[len(v.stream)-1].ID
}
