// Package shape groups executed commands by "shape" — command name, key
// argument(s), and a folded stand-in for everything else — the same
// byte-scanning idea the teacher's query normalizer uses to fold SQL
// literals to '?', retargeted here to fold command value arguments
// instead of SQL literals.
package shape

import "strings"

// Of returns the shape of a command invocation: its name, the key
// argument(s) it addresses, and "?" in place of any value arguments, so
// that e.g. "SET k v1" and "SET k v2" collapse to the same shape while
// "SET k1 v" and "SET k2 v" do not.
func Of(cmd string, args [][]byte) string {
	upper := strings.ToUpper(cmd)

	switch upper {
	case "PING":
		return upper
	case "DEL", "EXISTS":
		if len(args) < 2 {
			return upper
		}
		return upper + " " + joinBytes(args[1:])
	case "BLPOP":
		if len(args) < 3 {
			return upper
		}
		keys := args[1 : len(args)-1] // last argument is the timeout, not a key
		return upper + " " + joinBytes(keys) + " ?"
	case "XREAD":
		keys := xreadKeys(args)
		if len(keys) == 0 {
			return upper
		}
		return upper + " " + joinBytes(keys) + " ?"
	default:
		if len(args) < 2 {
			return upper
		}
		var b strings.Builder
		b.WriteString(upper)
		b.WriteByte(' ')
		b.Write(args[1])
		if len(args) > 2 {
			b.WriteString(" ?")
		}
		return b.String()
	}
}

// xreadKeys extracts the key list out of "XREAD STREAMS k1 k2 id1 id2".
func xreadKeys(args [][]byte) [][]byte {
	streamsIdx := -1
	for i, a := range args {
		if strings.EqualFold(string(a), "STREAMS") {
			streamsIdx = i
			break
		}
	}
	if streamsIdx < 0 {
		return nil
	}
	rest := args[streamsIdx+1:]
	if len(rest)%2 != 0 || len(rest) == 0 {
		return nil
	}
	return rest[:len(rest)/2]
}

func joinBytes(parts [][]byte) string {
	strs := make([]string, len(parts))
	for i, p := range parts {
		strs[i] = string(p)
	}
	return strings.Join(strs, ",")
}
