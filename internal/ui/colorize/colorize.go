// Package colorize highlights single report lines for the terminal with
// chroma. Setting CSA_NO_COLOR turns every function into the identity.
package colorize

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// EnvNoColor disables colouring when non-empty.
const EnvNoColor = "CSA_NO_COLOR"

// Disabled reports whether colouring is turned off.
func Disabled() bool {
	return os.Getenv(EnvNoColor) != ""
}

func firstLexer(names ...string) chroma.Lexer {
	for _, name := range names {
		if lexer := lexers.Get(name); lexer != nil {
			return lexer
		}
	}
	return nil
}

func style() *chroma.Style {
	if s := styles.Get(StyleName); s != nil {
		return s
	}
	return styles.Fallback
}

func formatter() chroma.Formatter {
	for _, name := range []string{"terminal16m", "terminal256"} {
		if f := formatters.Get(name); f != nil {
			return f
		}
	}
	return formatters.Fallback
}

// highlight runs one line through lexer. Any failure returns line as is.
func highlight(lexer chroma.Lexer, line string) string {
	if lexer == nil || line == "" {
		return line
	}
	it, err := lexer.Tokenise(nil, line)
	if err != nil {
		return line
	}
	var buf strings.Builder
	if err := formatter().Format(&buf, style(), it); err != nil {
		return line
	}
	// lexers may append a newline token
	return strings.ReplaceAll(buf.String(), "\n", "")
}

// Member highlights a type-tree line such as "\tSystem.Int32 count" or
// "\tSystem.Void Main(System.String[] args)". Leading indentation is kept.
func Member(line string) string {
	if Disabled() {
		return line
	}
	body := strings.TrimLeft(line, "\t ")
	indent := line[:len(line)-len(body)]
	return indent + highlight(firstLexer("csharp", "c#"), body)
}

// Instruction highlights an entry stub line of the form
// "<hex address>  <mnemonic> <operands>", with the address dimmed.
func Instruction(line string) string {
	if Disabled() {
		return line
	}
	addr, rest, ok := strings.Cut(line, " ")
	if !ok || !isHex(addr) {
		return highlight(firstLexer("nasm", "gas", "armasm"), line)
	}
	return fmt.Sprintf("\033[38;2;79;79;79m%s\033[0m %s", addr, highlight(firstLexer("nasm", "gas", "armasm"), rest))
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}

// Strip removes ANSI SGR sequences.
func Strip(s string) string {
	var b strings.Builder
	inEscape := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			inEscape = true
		case inEscape:
			if r == 'm' {
				inEscape = false
			}
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
