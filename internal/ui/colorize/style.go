// Package colorize provides syntax highlighting for trace and script
// output. Shares the same color scheme as ~/re/reverse for consistency.
package colorize

import (
	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/styles"
)

func init() {
	// Register our custom script style on package initialization
	_ = ScriptDark
}

// IDA-style theme colors
const (
	IDAAddress  = "#808080" // Gray for addresses
	IDAKeyword  = "#FFFFFF" // White for keywords
	IDAName     = "#87CEEB" // Light blue for identifiers
	IDANumber   = "#FF80C0" // Light pink for numbers
	IDALabel    = "#FFC800" // Yellow for labels/function names
	IDAComment  = "#FF8000" // Orange for comments
	IDAString   = "#00FF00" // Green for strings
	IDAHexBytes = "#646464" // Dark gray for hex bytes
)

// ScriptDark is a custom style for hook scripts - IDA Pro style
var ScriptDark = styles.Register(chroma.MustNewStyle("script-dark", chroma.StyleEntries{
	chroma.Text:           "#FFFFFF",    // White default
	chroma.Background:     "bg:#000000", // Pure black background
	chroma.Comment:        "#FF8000",    // Orange comments
	chroma.CommentSingle:  "#FF8000",    // Same for line comments
	chroma.CommentPreproc: "#FF8000",    // Same for preprocessor comments

	// For the JavaScript lexer mappings
	chroma.Keyword:            "#FFFFFF", // function, var, return in white
	chroma.KeywordDeclaration: "#FFFFFF", // let, const in white
	chroma.Name:               "#87CEEB", // Identifiers in cyan
	chroma.NameBuiltin:        "#87CEEB", // Builtins in cyan
	chroma.NameOther:          "#87CEEB", // Other names in cyan

	// Numbers - pink like IDA
	chroma.LiteralNumber:        "#FF80C0", // Decimal numbers in pink
	chroma.LiteralNumberHex:     "#FF80C0", // Hex numbers in pink
	chroma.LiteralNumberBin:     "#FF80C0", // Binary numbers in pink
	chroma.LiteralNumberOct:     "#FF80C0", // Octal numbers in pink
	chroma.LiteralNumberInteger: "#FF80C0", // Integer literals in pink
	chroma.LiteralNumberFloat:   "#FF80C0", // Float literals in pink

	// Labels and symbols
	chroma.NameLabel:    "#FFC800", // Labels in yellow
	chroma.NameFunction: "#FFC800", // Hook names in yellow

	// Operators and punctuation
	chroma.Operator:    "#FFFFFF", // Operators in white
	chroma.Punctuation: "#FFFFFF", // Punctuation in white

	// Strings
	chroma.String:       "#00FF00", // Strings in green
	chroma.StringSingle: "#00FF00", // Single-quoted too
	chroma.StringDouble: "#00FF00", // Double-quoted too
}))
