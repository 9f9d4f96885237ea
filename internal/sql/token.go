// Package sql is the engine's front door: a hand-written lexer, a
// recursive-descent parser producing an AST, and a binder that resolves
// names against the catalog and emits bound physical plans.
package sql

import "strings"

// TokenType is a lexical token type.
type TokenType uint8

const (
	tokIllegal TokenType = iota
	tokEOF

	tokIdent
	tokNumber
	tokString
	tokParam // ? placeholder

	tokComma
	tokLParen
	tokRParen
	tokDot
	tokSemicolon
	tokStar

	tokPlus
	tokMinus
	tokSlash
	tokPercent
	tokEq
	tokNotEq
	tokLess
	tokLessEq
	tokGreater
	tokGreaterEq

	tokKeyword
)

// Token is one scanned token.
type Token struct {
	Type TokenType
	// Text preserves the original spelling; keywords are upper-cased.
	Text string
	Pos  int
}

// keywords recognized by the dialect. Identifiers are matched
// case-insensitively against this set.
var keywords = map[string]struct{}{
	"SELECT": {}, "FROM": {}, "WHERE": {}, "GROUP": {}, "BY": {}, "HAVING": {},
	"ORDER": {}, "LIMIT": {}, "OFFSET": {}, "AS": {}, "AND": {}, "OR": {},
	"NOT": {}, "NULL": {}, "IS": {}, "IN": {}, "EXISTS": {}, "BETWEEN": {},
	"CASE": {}, "WHEN": {}, "THEN": {}, "ELSE": {}, "END": {}, "CAST": {},
	"JOIN": {}, "INNER": {}, "LEFT": {}, "RIGHT": {}, "FULL": {}, "OUTER": {},
	"SEMI": {}, "ANTI": {}, "CROSS": {}, "ON": {}, "USING": {},
	"UNION": {}, "INTERSECT": {}, "EXCEPT": {}, "ALL": {}, "DISTINCT": {},
	"WITH": {}, "RECURSIVE": {}, "QUALIFY": {},
	"CREATE": {}, "TABLE": {}, "DROP": {}, "INSERT": {}, "INTO": {}, "VALUES": {},
	"ASC": {}, "DESC": {}, "NULLS": {}, "FIRST": {}, "LAST": {},
	"OVER": {}, "PARTITION": {}, "ROWS": {}, "RANGE": {}, "GROUPS": {},
	"PRECEDING": {}, "FOLLOWING": {}, "CURRENT": {}, "ROW": {}, "UNBOUNDED": {},
	"TRUE": {}, "FALSE": {},
	"BOOLEAN": {}, "TINYINT": {}, "SMALLINT": {}, "INTEGER": {}, "INT": {},
	"BIGINT": {}, "HUGEINT": {}, "FLOAT": {}, "REAL": {}, "DOUBLE": {},
	"DECIMAL": {}, "NUMERIC": {}, "VARCHAR": {}, "TEXT": {}, "BLOB": {},
	"DATE": {}, "TIME": {}, "TIMESTAMP": {},
	"CHECKPOINT": {},
}

func isKeyword(ident string) bool {
	_, ok := keywords[strings.ToUpper(ident)]
	return ok
}

// Is reports whether the token is the given keyword.
func (t Token) Is(keyword string) bool {
	return t.Type == tokKeyword && t.Text == keyword
}
