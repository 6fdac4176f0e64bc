// Package highlight renders typed command lines with ANSI terminal syntax
// highlighting for the TUI console view, the same chroma+lipgloss
// pipeline the teacher uses for SQL text.
package highlight

import (
	"bytes"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

var (
	lexer     chroma.Lexer
	formatter chroma.Formatter
	style     *chroma.Style
)

func init() {
	// chroma's lexer catalog does not guarantee "redis" support across
	// versions the way it guarantees "sql"; fall back to a no-op plain
	// text lexer so Command degrades to returning its input unchanged
	// rather than panicking on a nil lexer.
	lexer = lexers.Get("redis")
	if lexer == nil {
		lexer = lexers.Get("plaintext")
	}
	formatter = formatters.Get("terminal256")
	style = styles.Get("monokai")
}

// Command returns s with ANSI terminal syntax highlighting applied. If no
// usable lexer was found at startup, or tokenising/formatting fails, s is
// returned unchanged.
func Command(s string) string {
	if s == "" || lexer == nil {
		return s
	}

	iterator, err := lexer.Tokenise(nil, s)
	if err != nil {
		return s
	}

	var buf bytes.Buffer
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return s
	}

	return strings.TrimRight(buf.String(), "\n")
}
