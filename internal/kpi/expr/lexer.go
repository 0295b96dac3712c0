// Package expr parses and evaluates KPI formulas over a closed arithmetic
// grammar: numeric literals, identifiers, unary +/-, the binary operators
// + - * / % ** // and calls to registered functions. Anything else is a
// syntax error.
package expr

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokPercent
	tokPower
	tokFloorDiv
	tokLParen
	tokRParen
	tokComma
)

var tokenNames = map[tokenKind]string{
	tokEOF:      "end of input",
	tokNumber:   "number",
	tokIdent:    "identifier",
	tokPlus:     "'+'",
	tokMinus:    "'-'",
	tokStar:     "'*'",
	tokSlash:    "'/'",
	tokPercent:  "'%'",
	tokPower:    "'**'",
	tokFloorDiv: "'//'",
	tokLParen:   "'('",
	tokRParen:   "')'",
	tokComma:    "','",
}

func (k tokenKind) String() string {
	return tokenNames[k]
}

type token struct {
	kind tokenKind
	text string
	pos  int
}

// reserved words that would change meaning in a general expression language
var reserved = map[string]bool{
	"and": true, "or": true, "not": true, "if": true, "else": true,
	"for": true, "in": true, "is": true, "lambda": true, "import": true,
	"None": true, "True": true, "False": true,
}

func tokenize(src string) ([]token, error) {
	var tokens []token
	runes := []rune(src)

	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case unicode.IsDigit(r) || (r == '.' && i+1 < len(runes) && unicode.IsDigit(runes[i+1])):
			start := i
			i = scanNumber(runes, i)
			tokens = append(tokens, token{kind: tokNumber, text: string(runes[start:i]), pos: start})
		case r == '_' || unicode.IsLetter(r):
			start := i
			for i < len(runes) && (runes[i] == '_' || unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i])) {
				i++
			}
			word := string(runes[start:i])
			if reserved[word] {
				return nil, &SyntaxError{Pos: start, Msg: fmt.Sprintf("%q is not allowed", word)}
			}
			tokens = append(tokens, token{kind: tokIdent, text: word, pos: start})
		default:
			kind, width := operator(runes, i)
			if width == 0 {
				return nil, &SyntaxError{Pos: i, Msg: fmt.Sprintf("unexpected character %q", r)}
			}
			tokens = append(tokens, token{kind: kind, text: string(runes[i : i+width]), pos: i})
			i += width
		}
	}

	return append(tokens, token{kind: tokEOF, pos: len(runes)}), nil
}

func scanNumber(runes []rune, i int) int {
	for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
		i++
	}
	if i < len(runes) && (runes[i] == 'e' || runes[i] == 'E') {
		j := i + 1
		if j < len(runes) && (runes[j] == '+' || runes[j] == '-') {
			j++
		}
		if j < len(runes) && unicode.IsDigit(runes[j]) {
			for j < len(runes) && unicode.IsDigit(runes[j]) {
				j++
			}
			i = j
		}
	}
	return i
}

func operator(runes []rune, i int) (tokenKind, int) {
	next := rune(0)
	if i+1 < len(runes) {
		next = runes[i+1]
	}
	switch runes[i] {
	case '+':
		return tokPlus, 1
	case '-':
		return tokMinus, 1
	case '*':
		if next == '*' {
			return tokPower, 2
		}
		return tokStar, 1
	case '/':
		if next == '/' {
			return tokFloorDiv, 2
		}
		return tokSlash, 1
	case '%':
		return tokPercent, 1
	case '(':
		return tokLParen, 1
	case ')':
		return tokRParen, 1
	case ',':
		return tokComma, 1
	}
	return tokEOF, 0
}

// stripAssignment drops an optional "name =" prefix.
func stripAssignment(src string) string {
	if idx := strings.Index(src, "="); idx >= 0 {
		return strings.TrimSpace(src[idx+1:])
	}
	return strings.TrimSpace(src)
}
