package server

import (
	"fmt"
	"strings"
)

func argCountErr(cmd string) error {
	return fmt.Errorf("ERR wrong number of arguments for '%s' command", strings.ToLower(cmd))
}

func syntaxErr() error {
	return fmt.Errorf("ERR syntax error")
}

func invalidExpireErr() error {
	return fmt.Errorf("ERR invalid expire time in 'SET' command")
}

func valueOutOfRangeErr() error {
	return fmt.Errorf("ERR value is not an integer or out of range")
}

func unknownCommandErr(name string) error {
	return fmt.Errorf("ERR unknown command: '%s'", name)
}

func invalidCommandFormatErr() error {
	return fmt.Errorf("ERR Invalid command format")
}
