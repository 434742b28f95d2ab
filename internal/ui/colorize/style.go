package colorize

import (
	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/styles"
)

// StyleName is the chroma style registered by this package.
const StyleName = "csa-dark"

// CSADark colours C# member lines and entry stub disassembly.
var CSADark = styles.Register(chroma.MustNewStyle(StyleName, chroma.StyleEntries{
	chroma.Text:       "#D4D4D4",
	chroma.Background: "bg:#1e1e1e",
	chroma.Comment:    "#6A9955",

	// C#: System.String, Sample.Program
	chroma.Name:         "#4EC9B0",
	chroma.NameClass:    "#4EC9B0",
	chroma.NameFunction: "#DCDCAA",
	chroma.NameBuiltin:  "#9CDCFE",
	chroma.NameVariable: "#9CDCFE",
	chroma.NameLabel:    "#FFD700",
	chroma.Keyword:      "#569CD6",
	chroma.KeywordType:  "#569CD6",

	// nasm registers come through as builtins, mnemonics as functions
	chroma.KeywordPseudo: "#D4D4D4",

	chroma.LiteralNumber:        "#FF5F87",
	chroma.LiteralNumberHex:     "#FF5F87",
	chroma.LiteralNumberInteger: "#FF5F87",

	chroma.Operator:    "#D4D4D4",
	chroma.Punctuation: "#D4D4D4",
	chroma.String:      "#EACD53",
}))
