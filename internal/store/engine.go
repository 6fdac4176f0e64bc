package store

import (
	"container/list"
	"errors"
	"sync"
	"time"
)

// Errors returned by stream commands. Wire text matches the literal
// strings clients are expected to compare against.
var (
	ErrInvalidStreamID   = errors.New("ERR Invalid stream ID specified as stream command argument")
	ErrStreamIDNotPositive = errors.New("ERR The ID specified in XADD must be greater than 0-0")
	ErrStreamIDNotGreater  = errors.New("ERR The ID specified in XADD is equal or smaller than the target stream top item")
)

// Engine is the thread-safe keyspace plus blocking-wait coordinator. Both
// the keyspace map and the waiter queue sit behind the same mutex: BLPOP's
// check-then-enqueue step and every push's wakeup step must be atomic
// across both structures (see waiter handling below). The exclusion is
// never held across a blocking channel receive.
type Engine struct {
	mu      sync.Mutex
	data    map[string]*storedValue
	waiters *list.List // of *waiterEntry, front = oldest
}

// NewEngine returns an empty keyspace.
func NewEngine() *Engine {
	return &Engine{
		data:    make(map[string]*storedValue),
		waiters: list.New(),
	}
}

// waiterEntry is one parked BLPOP call.
type waiterEntry struct {
	keys    []string
	ch      chan blpopDelivery // buffered 1, at most one send ever happens
	elem    *list.Element
	removed bool
}

type blpopDelivery struct {
	key   string
	value string
}

// resolveLocked looks up key, lazily deleting it if its expiry has
// passed. Must be called with mu held.
func (e *Engine) resolveLocked(key string, now time.Time) (*storedValue, bool) {
	v, ok := e.data[key]
	if !ok {
		return nil, false
	}
	if v.expired(now) {
		delete(e.data, key)
		return nil, false
	}
	return v, true
}

// ---- String commands ----

// Set unconditionally stores value as a String, overwriting any previous
// value and kind. expireAt, if non-nil, is an absolute wall-clock deadline.
func (e *Engine) Set(key, value string, expireAt *time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v := newStringValue(value)
	if expireAt != nil {
		v.hasExpiry = true
		v.expireAt = *expireAt
	}
	e.data[key] = v
}

// Get returns the stored string, or ok=false if absent/expired.
func (e *Engine) Get(key string) (string, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, ok := e.resolveLocked(key, time.Now())
	if !ok {
		return "", false, nil
	}
	if v.kind != KindString {
		return "", false, ErrWrongType
	}
	return v.str, true, nil
}

// Del removes keys, returning how many existed (and were not already
// expired).
func (e *Engine) Del(keys ...string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	n := 0
	for _, k := range keys {
		if _, ok := e.resolveLocked(k, now); ok {
			delete(e.data, k)
			n++
		}
	}
	return n
}

// Exists returns how many of keys are present (and unexpired); a key
// repeated in the argument list counts once per occurrence.
func (e *Engine) Exists(keys ...string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	n := 0
	for _, k := range keys {
		if _, ok := e.resolveLocked(k, now); ok {
			n++
		}
	}
	return n
}

// KeyCount returns the number of live (unexpired) keys currently stored,
// used by the observability dashboard's stats snapshot.
func (e *Engine) KeyCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	n := 0
	for k := range e.data {
		if _, ok := e.resolveLocked(k, now); ok {
			n++
		}
	}
	return n
}

// TypeOf returns "string", "list", "stream", or "none".
func (e *Engine) TypeOf(key string) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, ok := e.resolveLocked(key, time.Now())
	if !ok {
		return "none"
	}
	return v.kind.String()
}

// ---- List commands ----

// lpopOneLocked removes and returns the head of key's list, deleting the
// key if the pop empties it. ok is false if key is absent, expired, or
// not a list, or its list is empty.
func (e *Engine) lpopOneLocked(key string) (string, bool) {
	v, ok := e.resolveLocked(key, time.Now())
	if !ok || v.kind != KindList || v.listVal.Len() == 0 {
		return "", false
	}
	front := v.listVal.Front()
	val := front.Value.(string)
	v.listVal.Remove(front)
	if v.listVal.Len() == 0 {
		delete(e.data, key)
	}
	return val, true
}

// wakeupOnceLocked implements one iteration of the wakeup protocol for a
// successful push to key: the first waiter (front to back) whose key set
// contains key is popped for; on success it is delivered to and removed
// from the queue. A waiter whose pop races to empty (list already
// consumed by something else) is skipped in favor of the next matching
// waiter, per the "move to next matching waiter" rule.
func (e *Engine) wakeupOnceLocked(key string) {
	for el := e.waiters.Front(); el != nil; {
		next := el.Next()
		w := el.Value.(*waiterEntry)

		if !containsKey(w.keys, key) {
			el = next
			continue
		}
		val, ok := e.lpopOneLocked(key)
		if !ok {
			el = next
			continue
		}
		e.waiters.Remove(el)
		w.removed = true
		w.ch <- blpopDelivery{key: key, value: val}
		return
	}
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

// pushLocked creates key's list if absent (erroring on type mismatch),
// applies insert for each value in order, and attempts one wakeup per
// pushed element.
func (e *Engine) pushLocked(key string, values []string, front bool) (int, error) {
	v, ok := e.resolveLocked(key, time.Now())
	if !ok {
		v = newListValue()
		e.data[key] = v
	} else if v.kind != KindList {
		return 0, ErrWrongType
	}

	for _, val := range values {
		if e.data[key] != v {
			// A wakeup for an earlier value popped the list empty and
			// deleted the key; the remaining values start a fresh list.
			v = newListValue()
			e.data[key] = v
		}
		if front {
			v.listVal.PushFront(val)
		} else {
			v.listVal.PushBack(val)
		}
		e.wakeupOnceLocked(key)
	}
	return v.listVal.Len(), nil
}

// RPush appends values at the tail, in order.
func (e *Engine) RPush(key string, values ...string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pushLocked(key, values, false)
}

// LPush prepends values one at a time at the head, so the last argument
// ends up at index 0.
func (e *Engine) LPush(key string, values ...string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pushLocked(key, values, true)
}

func listElements(v *storedValue) []string {
	out := make([]string, 0, v.listVal.Len())
	for el := v.listVal.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(string))
	}
	return out
}

// LRange returns list[s'..=e'] after negative-index normalization.
func (e *Engine) LRange(key string, start, end int64) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, ok := e.resolveLocked(key, time.Now())
	if !ok {
		return []string{}, nil
	}
	if v.kind != KindList {
		return nil, ErrWrongType
	}

	n := int64(v.listVal.Len())
	s, en := normalizeRange(start, end, n)
	if s > en || s >= n {
		return []string{}, nil
	}

	all := listElements(v)
	return all[s : en+1], nil
}

func normalizeRange(start, end, n int64) (int64, int64) {
	var s, e int64
	if start < 0 {
		s = start + n
		if s < 0 {
			s = 0
		}
	} else {
		s = start
	}
	if end < 0 {
		e = end + n
		if e < 0 {
			e = 0
		}
	} else {
		e = end
		if e > n-1 {
			e = n - 1
		}
	}
	return s, e
}

// LLen returns the list length, or 0 if key is absent.
func (e *Engine) LLen(key string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, ok := e.resolveLocked(key, time.Now())
	if !ok {
		return 0, nil
	}
	if v.kind != KindList {
		return 0, ErrWrongType
	}
	return v.listVal.Len(), nil
}

// LPop removes and returns the head of key's list. found is false when
// the key is absent.
func (e *Engine) LPop(key string) (string, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, ok := e.resolveLocked(key, time.Now())
	if !ok {
		return "", false, nil
	}
	if v.kind != KindList {
		return "", false, ErrWrongType
	}
	val, _ := e.lpopOneLocked(key)
	return val, true, nil
}

// LPopN removes and returns up to count values from the head. found is
// false when the key is absent; count must be >= 0 (callers reject
// negative counts before calling).
func (e *Engine) LPopN(key string, count int64) ([]string, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, ok := e.resolveLocked(key, time.Now())
	if !ok {
		return nil, false, nil
	}
	if v.kind != KindList {
		return nil, false, ErrWrongType
	}
	if count == 0 {
		return []string{}, true, nil
	}

	out := make([]string, 0, count)
	for int64(len(out)) < count {
		val, ok := e.lpopOneLocked(key)
		if !ok {
			break
		}
		out = append(out, val)
	}
	return out, true, nil
}

// BLPop blocks until an element is available on one of keys, or timeout
// elapses. timeout <= 0 means wait forever. On success ok is true and
// (key, value) identify the delivered element; on timeout ok is false.
func (e *Engine) BLPop(keys []string, timeout time.Duration) (key, value string, ok bool, err error) {
	e.mu.Lock()
	now := time.Now()

	for _, k := range keys {
		if v, found := e.resolveLocked(k, now); found && v.kind != KindList {
			e.mu.Unlock()
			return "", "", false, ErrWrongType
		}
	}

	for _, k := range keys {
		if val, popped := e.lpopOneLocked(k); popped {
			e.mu.Unlock()
			return k, val, true, nil
		}
	}

	w := &waiterEntry{keys: keys, ch: make(chan blpopDelivery, 1)}
	w.elem = e.waiters.PushBack(w)
	e.mu.Unlock()

	return e.blpopWait(w, timeout)
}

func (e *Engine) blpopWait(w *waiterEntry, timeout time.Duration) (string, string, bool, error) {
	if timeout <= 0 {
		d := <-w.ch
		return d.key, d.value, true, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case d := <-w.ch:
		return d.key, d.value, true, nil
	case <-timer.C:
		e.mu.Lock()
		if !w.removed {
			e.waiters.Remove(w.elem)
			w.removed = true
			e.mu.Unlock()
			return "", "", false, nil
		}
		e.mu.Unlock()
		// A concurrent wakeup already removed us from the queue and is
		// in the process of delivering (or has delivered); the send is
		// guaranteed since the channel is buffered and sent at most once.
		d := <-w.ch
		return d.key, d.value, true, nil
	}
}

// ---- Stream commands ----

// XAdd appends a new entry. idSpec is either "*" (server-assigned id) or
// a literal "ms-seq" string.
func (e *Engine) XAdd(key, idSpec string, fields []Field) (EntryID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, ok := e.resolveLocked(key, time.Now())
	if ok && v.kind != KindStream {
		return EntryID{}, ErrWrongType
	}

	var top EntryID
	if ok {
		top = v.topID()
	}

	var id EntryID
	if idSpec == "*" {
		ms := uint64(time.Now().UnixMilli())
		seq := uint64(0)
		if ms <= top.Ms {
			seq = top.Seq + 1
		}
		id = EntryID{Ms: ms, Seq: seq}
		if ms < top.Ms {
			// Clock moved backward relative to the stream's own top; fall
			// back to strictly incrementing the top so monotonicity holds.
			id = EntryID{Ms: top.Ms, Seq: top.Seq + 1}
		}
	} else {
		parsed, perr := ParseEntryID(idSpec)
		if perr != nil {
			return EntryID{}, ErrInvalidStreamID
		}
		id = parsed
		if id.IsZero() {
			return EntryID{}, ErrStreamIDNotPositive
		}
		if ok && len(v.stream) > 0 && id.Compare(top) <= 0 {
			return EntryID{}, ErrStreamIDNotGreater
		}
	}

	if !ok {
		v = newStreamValue()
		e.data[key] = v
	}
	v.stream = append(v.stream, Entry{ID: id, Fields: fields})
	return id, nil
}

// XRange returns entries with id in [start, end], ascending.
func (e *Engine) XRange(key string, start, end EntryID) ([]Entry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, ok := e.resolveLocked(key, time.Now())
	if !ok {
		return []Entry{}, nil
	}
	if v.kind != KindStream {
		return nil, ErrWrongType
	}

	out := make([]Entry, 0, len(v.stream))
	for _, ent := range v.stream {
		if ent.ID.Compare(start) >= 0 && ent.ID.Compare(end) <= 0 {
			out = append(out, ent)
		}
	}
	return out, nil
}

// StreamResult is one stream's contribution to an XREAD reply.
type StreamResult struct {
	Stream  string
	Entries []Entry
}

// XRead returns, for each stream with entries strictly greater than its
// corresponding id, a StreamResult; streams with no such entries are
// omitted entirely.
func (e *Engine) XRead(streams []string, ids []EntryID) ([]StreamResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	results := make([]StreamResult, 0, len(streams))
	for i, key := range streams {
		v, ok := e.resolveLocked(key, now)
		if !ok {
			continue
		}
		if v.kind != KindStream {
			return nil, ErrWrongType
		}
		after := ids[i]
		var matched []Entry
		for _, ent := range v.stream {
			if ent.ID.Compare(after) > 0 {
				matched = append(matched, ent)
			}
		}
		if len(matched) > 0 {
			results = append(results, StreamResult{Stream: key, Entries: matched})
		}
	}
	return results, nil
}
