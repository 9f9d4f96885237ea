package sql

import (
	"strings"

	"github.com/turingworks/prismdb/internal/errorx"
)

// Lexer tokenizes SQL text.
type Lexer struct {
	src []byte
	pos int
}

// NewLexer creates a lexer over the SQL text.
func NewLexer(src string) *Lexer {
	return &Lexer{src: []byte(src)}
}

func (l *Lexer) peek() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) peekAt(off int) byte {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *Lexer) skipSpace() {
	for l.pos < len(l.src) {
		switch l.src[l.pos] {
		case ' ', '\t', '\r', '\n':
			l.pos++
		case '-':
			// Line comment.
			if l.peekAt(1) == '-' {
				for l.pos < len(l.src) && l.src[l.pos] != '\n' {
					l.pos++
				}
				continue
			}
			return
		default:
			return
		}
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// Scan returns the next token.
func (l *Lexer) Scan() (Token, error) {
	l.skipSpace()
	start := l.pos
	if l.pos >= len(l.src) {
		return Token{Type: tokEOF, Pos: start}, nil
	}
	c := l.src[l.pos]
	switch {
	case isIdentStart(c):
		for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
			l.pos++
		}
		text := string(l.src[start:l.pos])
		if isKeyword(text) {
			return Token{Type: tokKeyword, Text: strings.ToUpper(text), Pos: start}, nil
		}
		return Token{Type: tokIdent, Text: text, Pos: start}, nil
	case isDigit(c) || (c == '.' && isDigit(l.peekAt(1))):
		seenDot := false
		for l.pos < len(l.src) {
			ch := l.src[l.pos]
			if ch == '.' && !seenDot {
				seenDot = true
				l.pos++
				continue
			}
			if !isDigit(ch) && ch != 'e' && ch != 'E' {
				break
			}
			if ch == 'e' || ch == 'E' {
				l.pos++
				if l.peek() == '+' || l.peek() == '-' {
					l.pos++
				}
				continue
			}
			l.pos++
		}
		return Token{Type: tokNumber, Text: string(l.src[start:l.pos]), Pos: start}, nil
	case c == '\'':
		l.pos++
		var b strings.Builder
		for {
			if l.pos >= len(l.src) {
				return Token{}, errorx.Parsef("unterminated string literal at offset %d", start)
			}
			ch := l.src[l.pos]
			if ch == '\'' {
				// Doubled quote escapes a quote.
				if l.peekAt(1) == '\'' {
					b.WriteByte('\'')
					l.pos += 2
					continue
				}
				l.pos++
				break
			}
			b.WriteByte(ch)
			l.pos++
		}
		return Token{Type: tokString, Text: b.String(), Pos: start}, nil
	case c == '"':
		// Quoted identifier.
		l.pos++
		end := l.pos
		for end < len(l.src) && l.src[end] != '"' {
			end++
		}
		if end >= len(l.src) {
			return Token{}, errorx.Parsef("unterminated quoted identifier at offset %d", start)
		}
		text := string(l.src[l.pos:end])
		l.pos = end + 1
		return Token{Type: tokIdent, Text: text, Pos: start}, nil
	}
	one := func(t TokenType) (Token, error) {
		l.pos++
		return Token{Type: t, Text: string(c), Pos: start}, nil
	}
	switch c {
	case ',':
		return one(tokComma)
	case '(':
		return one(tokLParen)
	case ')':
		return one(tokRParen)
	case '.':
		return one(tokDot)
	case ';':
		return one(tokSemicolon)
	case '*':
		return one(tokStar)
	case '+':
		return one(tokPlus)
	case '-':
		return one(tokMinus)
	case '/':
		return one(tokSlash)
	case '%':
		return one(tokPercent)
	case '?':
		return one(tokParam)
	case '=':
		return one(tokEq)
	case '!':
		if l.peekAt(1) == '=' {
			l.pos += 2
			return Token{Type: tokNotEq, Text: "!=", Pos: start}, nil
		}
	case '<':
		switch l.peekAt(1) {
		case '=':
			l.pos += 2
			return Token{Type: tokLessEq, Text: "<=", Pos: start}, nil
		case '>':
			l.pos += 2
			return Token{Type: tokNotEq, Text: "<>", Pos: start}, nil
		}
		return one(tokLess)
	case '>':
		if l.peekAt(1) == '=' {
			l.pos += 2
			return Token{Type: tokGreaterEq, Text: ">=", Pos: start}, nil
		}
		return one(tokGreater)
	}
	return Token{}, errorx.Parsef("unexpected character %q at offset %d", string(c), start)
}

// Tokenize scans the whole input.
func Tokenize(src string) ([]Token, error) {
	l := NewLexer(src)
	var out []Token
	for {
		tok, err := l.Scan()
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
		if tok.Type == tokEOF {
			return out, nil
		}
	}
}
