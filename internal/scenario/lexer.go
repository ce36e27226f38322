package scenario

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

type tokKind uint8

const (
	tokEOF tokKind = iota
	tokIdent
	tokNumber
	tokPunct
)

type token struct {
	kind tokKind
	text string
	pos  int
}

func (t token) String() string {
	if t.kind == tokEOF {
		return "end of input"
	}
	return fmt.Sprintf("%q", t.text)
}

// punctuators, longest first.
var puncts = []string{"...", "->", "::", "*", "&", "[", "]", "<", ">", ",", "(", ")"}

// lex splits a type expression into tokens. Identifiers are NFC-normalized
// so that canonically equivalent spellings name the same entity.
func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		r, sz := utf8.DecodeRuneInString(src[i:])
		switch {
		case unicode.IsSpace(r):
			i += sz
		case r == '_' || unicode.IsLetter(r):
			start := i
			for i < len(src) {
				r, sz = utf8.DecodeRuneInString(src[i:])
				if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
					break
				}
				i += sz
			}
			toks = append(toks, token{kind: tokIdent, text: norm.NFC.String(src[start:i]), pos: start})
		case r >= '0' && r <= '9' || r == '-' && i+1 < len(src) && src[i+1] >= '0' && src[i+1] <= '9':
			start := i
			i++
			for i < len(src) && src[i] >= '0' && src[i] <= '9' {
				i++
			}
			toks = append(toks, token{kind: tokNumber, text: src[start:i], pos: start})
		default:
			matched := false
			for _, p := range puncts {
				if len(src)-i >= len(p) && src[i:i+len(p)] == p {
					toks = append(toks, token{kind: tokPunct, text: p, pos: i})
					i += len(p)
					matched = true
					break
				}
			}
			if !matched {
				return nil, fmt.Errorf("unexpected character %q at offset %d", r, i)
			}
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(src)}), nil
}

// normalizeName applies the same normalization lex uses to identifiers.
func normalizeName(s string) string {
	return norm.NFC.String(s)
}
