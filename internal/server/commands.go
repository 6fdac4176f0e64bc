package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/ashgrove/respkv/internal/store"
	"github.com/ashgrove/respkv/resp"
)

// handlerFunc executes one dispatched command against the engine. key is
// the primary key the command addressed, if any, used only for activity
// tagging — it is reported even when err is non-nil.
type handlerFunc func(e *store.Engine, args [][]byte) (reply resp.Value, key string, err error)

var handlers = map[string]handlerFunc{
	"PING":   cmdPing,
	"ECHO":   cmdEcho,
	"SET":    cmdSet,
	"GET":    cmdGet,
	"RPUSH":  cmdRPush,
	"LPUSH":  cmdLPush,
	"LRANGE": cmdLRange,
	"LLEN":   cmdLLen,
	"LPOP":   cmdLPop,
	"BLPOP":  cmdBLPop,
	"TYPE":   cmdType,
	"XADD":   cmdXAdd,
	"XRANGE": cmdXRange,
	"XREAD":  cmdXRead,
	"DEL":    cmdDel,
	"EXISTS": cmdExists,
}

func cmdPing(e *store.Engine, args [][]byte) (resp.Value, string, error) {
	if len(args) != 1 {
		return resp.Value{}, "", argCountErr("ping")
	}
	return resp.NewSimpleString("PONG"), "", nil
}

func cmdEcho(e *store.Engine, args [][]byte) (resp.Value, string, error) {
	if len(args) != 2 {
		return resp.Value{}, "", argCountErr("echo")
	}
	return resp.NewBulkString(args[1]), "", nil
}

func cmdSet(e *store.Engine, args [][]byte) (resp.Value, string, error) {
	key := ""
	if len(args) > 1 {
		key = string(args[1])
	}
	if len(args) != 3 && len(args) != 5 {
		return resp.Value{}, key, argCountErr("set")
	}
	value := string(args[2])

	var expireAt *time.Time
	if len(args) == 5 {
		opt := strings.ToUpper(string(args[3]))
		if opt != "EX" && opt != "PX" {
			return resp.Value{}, key, syntaxErr()
		}
		n, perr := strconv.ParseInt(string(args[4]), 10, 64)
		if perr != nil || n <= 0 {
			return resp.Value{}, key, invalidExpireErr()
		}
		var d time.Duration
		if opt == "EX" {
			d = time.Duration(n) * time.Second
		} else {
			d = time.Duration(n) * time.Millisecond
		}
		t := time.Now().Add(d)
		expireAt = &t
	}

	e.Set(key, value, expireAt)
	return resp.NewSimpleString("OK"), key, nil
}

func cmdGet(e *store.Engine, args [][]byte) (resp.Value, string, error) {
	if len(args) != 2 {
		return resp.Value{}, "", argCountErr("get")
	}
	key := string(args[1])
	val, ok, err := e.Get(key)
	if err != nil {
		return resp.Value{}, key, err
	}
	if !ok {
		return resp.NewNullBulk(), key, nil
	}
	return resp.NewBulkStringFromString(val), key, nil
}

func cmdRPush(e *store.Engine, args [][]byte) (resp.Value, string, error) {
	return pushCommand(e, args, "rpush", false)
}

func cmdLPush(e *store.Engine, args [][]byte) (resp.Value, string, error) {
	return pushCommand(e, args, "lpush", true)
}

func pushCommand(e *store.Engine, args [][]byte, name string, front bool) (resp.Value, string, error) {
	if len(args) < 3 {
		return resp.Value{}, "", argCountErr(name)
	}
	key := string(args[1])
	values := make([]string, len(args)-2)
	for i, a := range args[2:] {
		values[i] = string(a)
	}
	var n int
	var err error
	if front {
		n, err = e.LPush(key, values...)
	} else {
		n, err = e.RPush(key, values...)
	}
	if err != nil {
		return resp.Value{}, key, err
	}
	return resp.NewInteger(int64(n)), key, nil
}

func cmdLRange(e *store.Engine, args [][]byte) (resp.Value, string, error) {
	if len(args) != 4 {
		return resp.Value{}, "", argCountErr("lrange")
	}
	key := string(args[1])
	start, serr := strconv.ParseInt(string(args[2]), 10, 64)
	end, eerr := strconv.ParseInt(string(args[3]), 10, 64)
	if serr != nil || eerr != nil {
		return resp.Value{}, key, valueOutOfRangeErr()
	}
	vals, err := e.LRange(key, start, end)
	if err != nil {
		return resp.Value{}, key, err
	}
	return bulkArray(vals), key, nil
}

func cmdLLen(e *store.Engine, args [][]byte) (resp.Value, string, error) {
	if len(args) != 2 {
		return resp.Value{}, "", argCountErr("llen")
	}
	key := string(args[1])
	n, err := e.LLen(key)
	if err != nil {
		return resp.Value{}, key, err
	}
	return resp.NewInteger(int64(n)), key, nil
}

func cmdLPop(e *store.Engine, args [][]byte) (resp.Value, string, error) {
	if len(args) != 2 && len(args) != 3 {
		return resp.Value{}, "", argCountErr("lpop")
	}
	key := string(args[1])

	if len(args) == 2 {
		val, found, err := e.LPop(key)
		if err != nil {
			return resp.Value{}, key, err
		}
		if !found {
			return resp.NewNullBulk(), key, nil
		}
		return resp.NewBulkStringFromString(val), key, nil
	}

	count, perr := strconv.ParseInt(string(args[2]), 10, 64)
	if perr != nil || count < 0 {
		return resp.Value{}, key, valueOutOfRangeErr()
	}
	vals, found, err := e.LPopN(key, count)
	if err != nil {
		return resp.Value{}, key, err
	}
	if !found {
		return resp.NewNullBulk(), key, nil
	}
	return bulkArray(vals), key, nil
}

func cmdBLPop(e *store.Engine, args [][]byte) (resp.Value, string, error) {
	if len(args) < 3 {
		return resp.Value{}, "", argCountErr("blpop")
	}
	keys := make([]string, len(args)-2)
	for i, a := range args[1 : len(args)-1] {
		keys[i] = string(a)
	}
	key := strings.Join(keys, ",")

	secs, perr := strconv.ParseFloat(string(args[len(args)-1]), 64)
	if perr != nil || secs < 0 {
		return resp.Value{}, key, valueOutOfRangeErr()
	}
	timeout := time.Duration(secs * float64(time.Second))

	gotKey, val, ok, err := e.BLPop(keys, timeout)
	if err != nil {
		return resp.Value{}, key, err
	}
	if !ok {
		return resp.NewNullArray(), key, nil
	}
	return resp.NewArray([]resp.Value{
		resp.NewBulkStringFromString(gotKey),
		resp.NewBulkStringFromString(val),
	}), key, nil
}

func cmdType(e *store.Engine, args [][]byte) (resp.Value, string, error) {
	if len(args) != 2 {
		return resp.Value{}, "", argCountErr("type")
	}
	key := string(args[1])
	return resp.NewSimpleString(e.TypeOf(key)), key, nil
}

func cmdXAdd(e *store.Engine, args [][]byte) (resp.Value, string, error) {
	if len(args) < 5 {
		return resp.Value{}, "", argCountErr("xadd")
	}
	key := string(args[1])
	idSpec := string(args[2])
	rest := args[3:]
	if len(rest)%2 != 0 {
		return resp.Value{}, key, argCountErr("xadd")
	}
	fields := make([]store.Field, len(rest)/2)
	for i := range fields {
		fields[i] = store.Field{Key: string(rest[2*i]), Value: string(rest[2*i+1])}
	}
	id, err := e.XAdd(key, idSpec, fields)
	if err != nil {
		return resp.Value{}, key, err
	}
	return resp.NewBulkStringFromString(id.String()), key, nil
}

func cmdXRange(e *store.Engine, args [][]byte) (resp.Value, string, error) {
	if len(args) != 4 {
		return resp.Value{}, "", argCountErr("xrange")
	}
	key := string(args[1])
	start, serr := store.ParseEntryID(string(args[2]))
	end, eerr := store.ParseEntryID(string(args[3]))
	if serr != nil || eerr != nil {
		return resp.Value{}, key, store.ErrInvalidStreamID
	}
	entries, err := e.XRange(key, start, end)
	if err != nil {
		return resp.Value{}, key, err
	}
	return entryArray(entries), key, nil
}

func cmdXRead(e *store.Engine, args [][]byte) (resp.Value, string, error) {
	if len(args) < 4 || !strings.EqualFold(string(args[1]), "STREAMS") {
		return resp.Value{}, "", syntaxErr()
	}
	rest := args[2:]
	if len(rest)%2 != 0 {
		return resp.Value{}, "", syntaxErr()
	}
	n := len(rest) / 2
	streamKeys := rest[:n]
	idArgs := rest[n:]

	keys := make([]string, n)
	ids := make([]store.EntryID, n)
	for i := 0; i < n; i++ {
		keys[i] = string(streamKeys[i])
		id, perr := store.ParseEntryID(string(idArgs[i]))
		if perr != nil {
			return resp.Value{}, "", store.ErrInvalidStreamID
		}
		ids[i] = id
	}

	results, err := e.XRead(keys, ids)
	if err != nil {
		return resp.Value{}, strings.Join(keys, ","), err
	}

	out := make([]resp.Value, len(results))
	for i, r := range results {
		out[i] = resp.NewArray([]resp.Value{
			resp.NewBulkStringFromString(r.Stream),
			entryArray(r.Entries),
		})
	}
	return resp.NewArray(out), strings.Join(keys, ","), nil
}

func cmdDel(e *store.Engine, args [][]byte) (resp.Value, string, error) {
	if len(args) < 2 {
		return resp.Value{}, "", argCountErr("del")
	}
	keys := make([]string, len(args)-1)
	for i, a := range args[1:] {
		keys[i] = string(a)
	}
	return resp.NewInteger(int64(e.Del(keys...))), strings.Join(keys, ","), nil
}

func cmdExists(e *store.Engine, args [][]byte) (resp.Value, string, error) {
	if len(args) < 2 {
		return resp.Value{}, "", argCountErr("exists")
	}
	keys := make([]string, len(args)-1)
	for i, a := range args[1:] {
		keys[i] = string(a)
	}
	return resp.NewInteger(int64(e.Exists(keys...))), strings.Join(keys, ","), nil
}

func bulkArray(vals []string) resp.Value {
	elems := make([]resp.Value, len(vals))
	for i, v := range vals {
		elems[i] = resp.NewBulkStringFromString(v)
	}
	return resp.NewArray(elems)
}

func entryArray(entries []store.Entry) resp.Value {
	elems := make([]resp.Value, len(entries))
	for i, ent := range entries {
		fields := make([]resp.Value, 0, len(ent.Fields)*2)
		for _, f := range ent.Fields {
			fields = append(fields,
				resp.NewBulkStringFromString(f.Key),
				resp.NewBulkStringFromString(f.Value))
		}
		elems[i] = resp.NewArray([]resp.Value{
			resp.NewBulkStringFromString(ent.ID.String()),
			resp.NewArray(fields),
		})
	}
	return resp.NewArray(elems)
}
