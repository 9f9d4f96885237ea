package sql

import (
	"strconv"
	"strings"

	"github.com/turingworks/prismdb/internal/errorx"
	"github.com/turingworks/prismdb/internal/types"
)

// Parser is a recursive-descent parser over the token stream.
type Parser struct {
	toks       []Token
	pos        int
	paramCount int
}

// Parse parses one statement (an optional trailing semicolon is consumed).
func Parse(src string) (Statement, error) {
	toks, err := Tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &Parser{toks: toks}
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	if p.cur().Type == tokSemicolon {
		p.pos++
	}
	if p.cur().Type != tokEOF {
		return nil, errorx.Parsef("unexpected trailing input %q", p.cur().Text)
	}
	return stmt, nil
}

func (p *Parser) cur() Token {
	if p.pos >= len(p.toks) {
		return Token{Type: tokEOF}
	}
	return p.toks[p.pos]
}

func (p *Parser) peek(off int) Token {
	if p.pos+off >= len(p.toks) {
		return Token{Type: tokEOF}
	}
	return p.toks[p.pos+off]
}

func (p *Parser) advance() Token {
	tok := p.cur()
	p.pos++
	return tok
}

func (p *Parser) accept(keyword string) bool {
	if p.cur().Is(keyword) {
		p.pos++
		return true
	}
	return false
}

func (p *Parser) expectKeyword(keyword string) error {
	if !p.accept(keyword) {
		return errorx.Parsef("expected %s, found %q", keyword, p.cur().Text)
	}
	return nil
}

func (p *Parser) expectType(t TokenType, what string) (Token, error) {
	if p.cur().Type != t {
		return Token{}, errorx.Parsef("expected %s, found %q", what, p.cur().Text)
	}
	return p.advance(), nil
}

func (p *Parser) parseStatement() (Statement, error) {
	switch {
	case p.cur().Is("CREATE"):
		return p.parseCreateTable()
	case p.cur().Is("DROP"):
		return p.parseDropTable()
	case p.cur().Is("INSERT"):
		return p.parseInsert()
	case p.cur().Is("CHECKPOINT"):
		p.pos++
		return &CheckpointStmt{}, nil
	case p.cur().Is("SELECT"), p.cur().Is("WITH"), p.cur().Type == tokLParen:
		return p.parseSelect()
	}
	return nil, errorx.Parsef("unsupported statement starting with %q", p.cur().Text)
}

func (p *Parser) parseCreateTable() (Statement, error) {
	p.pos++ // CREATE
	if err := p.expectKeyword("TABLE"); err != nil {
		return nil, err
	}
	name, err := p.expectType(tokIdent, "table name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expectType(tokLParen, "("); err != nil {
		return nil, err
	}
	var cols []ColumnDef
	for {
		colName, err := p.expectType(tokIdent, "column name")
		if err != nil {
			return nil, err
		}
		typ, err := p.parseTypeName()
		if err != nil {
			return nil, err
		}
		cols = append(cols, ColumnDef{Name: colName.Text, Type: typ})
		if p.cur().Type == tokComma {
			p.pos++
			continue
		}
		break
	}
	if _, err := p.expectType(tokRParen, ")"); err != nil {
		return nil, err
	}
	return &CreateTableStmt{Name: name.Text, Columns: cols}, nil
}

func (p *Parser) parseTypeName() (types.LogicalType, error) {
	tok := p.cur()
	if tok.Type != tokKeyword {
		return types.TypeInvalid, errorx.Parsef("expected type name, found %q", tok.Text)
	}
	p.pos++
	switch tok.Text {
	case "BOOLEAN":
		return types.TypeBoolean, nil
	case "TINYINT":
		return types.TypeTinyInt, nil
	case "SMALLINT":
		return types.TypeSmallInt, nil
	case "INTEGER", "INT":
		return types.TypeInteger, nil
	case "BIGINT":
		return types.TypeBigInt, nil
	case "HUGEINT":
		return types.TypeHugeInt, nil
	case "FLOAT", "REAL":
		return types.TypeFloat, nil
	case "DOUBLE":
		return types.TypeDouble, nil
	case "VARCHAR", "TEXT":
		// An optional length modifier parses and is ignored.
		if p.cur().Type == tokLParen {
			p.pos++
			if _, err := p.expectType(tokNumber, "length"); err != nil {
				return types.TypeInvalid, err
			}
			if _, err := p.expectType(tokRParen, ")"); err != nil {
				return types.TypeInvalid, err
			}
		}
		return types.TypeVarchar, nil
	case "BLOB":
		return types.TypeBlob, nil
	case "DATE":
		return types.TypeDate, nil
	case "TIME":
		return types.TypeTime, nil
	case "TIMESTAMP":
		return types.TypeTimestamp, nil
	case "DECIMAL", "NUMERIC":
		precision, scale := uint8(18), uint8(3)
		if p.cur().Type == tokLParen {
			p.pos++
			ptok, err := p.expectType(tokNumber, "precision")
			if err != nil {
				return types.TypeInvalid, err
			}
			pv, _ := strconv.Atoi(ptok.Text)
			precision = uint8(pv)
			if p.cur().Type == tokComma {
				p.pos++
				stok, err := p.expectType(tokNumber, "scale")
				if err != nil {
					return types.TypeInvalid, err
				}
				sv, _ := strconv.Atoi(stok.Text)
				scale = uint8(sv)
			}
			if _, err := p.expectType(tokRParen, ")"); err != nil {
				return types.TypeInvalid, err
			}
		}
		return types.MakeDecimal(precision, scale), nil
	}
	return types.TypeInvalid, errorx.Parsef("unknown type %q", tok.Text)
}

func (p *Parser) parseDropTable() (Statement, error) {
	p.pos++ // DROP
	if err := p.expectKeyword("TABLE"); err != nil {
		return nil, err
	}
	name, err := p.expectType(tokIdent, "table name")
	if err != nil {
		return nil, err
	}
	return &DropTableStmt{Name: name.Text}, nil
}

func (p *Parser) parseInsert() (Statement, error) {
	p.pos++ // INSERT
	if err := p.expectKeyword("INTO"); err != nil {
		return nil, err
	}
	name, err := p.expectType(tokIdent, "table name")
	if err != nil {
		return nil, err
	}
	stmt := &InsertStmt{Table: name.Text}
	if p.cur().Type == tokLParen {
		p.pos++
		for {
			col, err := p.expectType(tokIdent, "column name")
			if err != nil {
				return nil, err
			}
			stmt.Columns = append(stmt.Columns, col.Text)
			if p.cur().Type == tokComma {
				p.pos++
				continue
			}
			break
		}
		if _, err := p.expectType(tokRParen, ")"); err != nil {
			return nil, err
		}
	}
	if err := p.expectKeyword("VALUES"); err != nil {
		return nil, err
	}
	for {
		if _, err := p.expectType(tokLParen, "("); err != nil {
			return nil, err
		}
		var row []Expr
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			row = append(row, e)
			if p.cur().Type == tokComma {
				p.pos++
				continue
			}
			break
		}
		if _, err := p.expectType(tokRParen, ")"); err != nil {
			return nil, err
		}
		stmt.Rows = append(stmt.Rows, row)
		if p.cur().Type == tokComma {
			p.pos++
			continue
		}
		break
	}
	return stmt, nil
}

func (p *Parser) parseSelect() (*SelectStmt, error) {
	var with []CTE
	if p.accept("WITH") {
		if p.accept("RECURSIVE") {
			return nil, errorx.NotImplementedf("WITH RECURSIVE")
		}
		for {
			name, err := p.expectType(tokIdent, "CTE name")
			if err != nil {
				return nil, err
			}
			if err := p.expectKeyword("AS"); err != nil {
				return nil, err
			}
			if _, err := p.expectType(tokLParen, "("); err != nil {
				return nil, err
			}
			body, err := p.parseSelect()
			if err != nil {
				return nil, err
			}
			if _, err := p.expectType(tokRParen, ")"); err != nil {
				return nil, err
			}
			with = append(with, CTE{Name: name.Text, Select: body})
			if p.cur().Type == tokComma {
				p.pos++
				continue
			}
			break
		}
	}
	stmt, err := p.parseSetOpArm()
	if err != nil {
		return nil, err
	}
	stmt.With = append(with, stmt.With...)
	// Chained set operations attach to the leftmost select; ORDER BY and
	// LIMIT after the chain apply to the combined result.
	for {
		var op string
		switch {
		case p.cur().Is("UNION"):
			op = "UNION"
		case p.cur().Is("INTERSECT"):
			op = "INTERSECT"
		case p.cur().Is("EXCEPT"):
			op = "EXCEPT"
		default:
			op = ""
		}
		if op == "" {
			break
		}
		p.pos++
		all := p.accept("ALL")
		p.accept("DISTINCT")
		right, err := p.parseSetOpArm()
		if err != nil {
			return nil, err
		}
		stmt.SetOps = append(stmt.SetOps, SetOpClause{Op: op, All: all, Right: right})
	}
	if p.cur().Is("ORDER") {
		p.pos++
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		for {
			item, err := p.parseOrderItem()
			if err != nil {
				return nil, err
			}
			stmt.OrderBy = append(stmt.OrderBy, item)
			if p.cur().Type == tokComma {
				p.pos++
				continue
			}
			break
		}
	}
	if p.accept("LIMIT") {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Limit = e
	}
	if p.accept("OFFSET") {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Offset = e
	}
	return stmt, nil
}

func (p *Parser) parseOrderItem() (OrderItem, error) {
	item := OrderItem{}
	e, err := p.parseExpr()
	if err != nil {
		return OrderItem{}, err
	}
	item.Expr = e
	if p.accept("DESC") {
		item.Desc = true
	} else {
		p.accept("ASC")
	}
	if p.accept("NULLS") {
		first := p.accept("FIRST")
		if !first {
			if err := p.expectKeyword("LAST"); err != nil {
				return OrderItem{}, err
			}
		}
		item.NullsFirst = &first
	}
	return item, nil
}

// parseSetOpArm parses one arm of a (possible) set-operation chain: either
// a parenthesized full select or a bare select core.
func (p *Parser) parseSetOpArm() (*SelectStmt, error) {
	if p.cur().Type == tokLParen {
		p.pos++
		inner, err := p.parseSelect()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectType(tokRParen, ")"); err != nil {
			return nil, err
		}
		return inner, nil
	}
	return p.parseCoreSelect()
}

// parseCoreSelect parses SELECT ... [FROM ... WHERE ... GROUP BY ...
// HAVING ... QUALIFY ...] without set operations, ORDER BY, or LIMIT.
func (p *Parser) parseCoreSelect() (*SelectStmt, error) {
	stmt := &SelectStmt{}
	if err := p.expectKeyword("SELECT"); err != nil {
		return nil, err
	}
	if p.accept("DISTINCT") {
		stmt.Distinct = true
	} else {
		p.accept("ALL")
	}
	for {
		item, err := p.parseSelectItem()
		if err != nil {
			return nil, err
		}
		stmt.Items = append(stmt.Items, item)
		if p.cur().Type == tokComma {
			p.pos++
			continue
		}
		break
	}
	if p.accept("FROM") {
		from, err := p.parseTableRef()
		if err != nil {
			return nil, err
		}
		stmt.From = from
	}
	if p.accept("WHERE") {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = e
	}
	if p.cur().Is("GROUP") {
		p.pos++
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			stmt.GroupBy = append(stmt.GroupBy, e)
			if p.cur().Type == tokComma {
				p.pos++
				continue
			}
			break
		}
	}
	if p.accept("HAVING") {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Having = e
	}
	if p.accept("QUALIFY") {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Qualify = e
	}
	return stmt, nil
}

func (p *Parser) parseSelectItem() (SelectItem, error) {
	if p.cur().Type == tokStar {
		p.pos++
		return SelectItem{Star: true}, nil
	}
	if p.cur().Type == tokIdent && p.peek(1).Type == tokDot && p.peek(2).Type == tokStar {
		table := p.cur().Text
		p.pos += 3
		return SelectItem{Star: true, StarTable: table}, nil
	}
	e, err := p.parseExpr()
	if err != nil {
		return SelectItem{}, err
	}
	item := SelectItem{Expr: e}
	if p.accept("AS") {
		alias, err := p.expectType(tokIdent, "alias")
		if err != nil {
			return SelectItem{}, err
		}
		item.Alias = alias.Text
	} else if p.cur().Type == tokIdent {
		item.Alias = p.advance().Text
	}
	return item, nil
}

func (p *Parser) parseTableRef() (TableRef, error) {
	left, err := p.parseTableFactor()
	if err != nil {
		return nil, err
	}
	for {
		joinType := ""
		switch {
		case p.cur().Is("INNER"):
			p.pos++
			joinType = "INNER"
		case p.cur().Is("LEFT"):
			p.pos++
			p.accept("OUTER")
			joinType = "LEFT"
		case p.cur().Is("RIGHT"):
			p.pos++
			p.accept("OUTER")
			joinType = "RIGHT"
		case p.cur().Is("FULL"):
			p.pos++
			p.accept("OUTER")
			joinType = "FULL"
		case p.cur().Is("SEMI"):
			p.pos++
			joinType = "SEMI"
		case p.cur().Is("ANTI"):
			p.pos++
			joinType = "ANTI"
		case p.cur().Is("CROSS"):
			p.pos++
			joinType = "CROSS"
		case p.cur().Is("JOIN"):
			joinType = "INNER"
		case p.cur().Type == tokComma:
			// Comma join is a cross join.
			p.pos++
			right, err := p.parseTableFactor()
			if err != nil {
				return nil, err
			}
			left = &JoinRef{Left: left, Right: right, Type: "CROSS"}
			continue
		default:
			return left, nil
		}
		if err := p.expectKeyword("JOIN"); err != nil {
			return nil, err
		}
		right, err := p.parseTableFactor()
		if err != nil {
			return nil, err
		}
		join := &JoinRef{Left: left, Right: right, Type: joinType}
		if joinType != "CROSS" {
			if err := p.expectKeyword("ON"); err != nil {
				return nil, err
			}
			on, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			join.On = on
		}
		left = join
	}
}

func (p *Parser) parseTableFactor() (TableRef, error) {
	if p.cur().Type == tokLParen {
		p.pos++
		inner, err := p.parseSelect()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectType(tokRParen, ")"); err != nil {
			return nil, err
		}
		alias := ""
		p.accept("AS")
		if p.cur().Type == tokIdent {
			alias = p.advance().Text
		}
		return &SubqueryTable{Select: inner, Alias: alias}, nil
	}
	name, err := p.expectType(tokIdent, "table name")
	if err != nil {
		return nil, err
	}
	ref := &BaseTable{Name: name.Text}
	p.accept("AS")
	if p.cur().Type == tokIdent {
		ref.Alias = p.advance().Text
	}
	return ref, nil
}

// Expression parsing, precedence climbing: OR < AND < NOT < comparison /
// IS / IN / BETWEEN < additive < multiplicative < unary < primary.

func (p *Parser) parseExpr() (Expr, error) {
	return p.parseOr()
}

func (p *Parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.accept("OR") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "OR", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.accept("AND") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "AND", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNot() (Expr, error) {
	if p.accept("NOT") {
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: "NOT", X: x}, nil
	}
	return p.parseComparison()
}

func (p *Parser) parseComparison() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		switch p.cur().Type {
		case tokEq, tokNotEq, tokLess, tokLessEq, tokGreater, tokGreaterEq:
			op := p.advance().Text
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = &BinaryExpr{Op: op, Left: left, Right: right}
			continue
		}
		switch {
		case p.cur().Is("IS"):
			p.pos++
			negated := p.accept("NOT")
			if err := p.expectKeyword("NULL"); err != nil {
				return nil, err
			}
			left = &IsNullExpr{X: left, Negated: negated}
			continue
		case p.cur().Is("BETWEEN"):
			p.pos++
			lo, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			if err := p.expectKeyword("AND"); err != nil {
				return nil, err
			}
			hi, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = &BetweenExpr{X: left, Lo: lo, Hi: hi}
			continue
		case p.cur().Is("NOT") && (p.peek(1).Is("IN") || p.peek(1).Is("BETWEEN")):
			p.pos++
			if p.cur().Is("BETWEEN") {
				p.pos++
				lo, err := p.parseAdditive()
				if err != nil {
					return nil, err
				}
				if err := p.expectKeyword("AND"); err != nil {
					return nil, err
				}
				hi, err := p.parseAdditive()
				if err != nil {
					return nil, err
				}
				left = &BetweenExpr{X: left, Lo: lo, Hi: hi, Negated: true}
				continue
			}
			in, err := p.parseInTail(left, true)
			if err != nil {
				return nil, err
			}
			left = in
			continue
		case p.cur().Is("IN"):
			in, err := p.parseInTail(left, false)
			if err != nil {
				return nil, err
			}
			left = in
			continue
		}
		return left, nil
	}
}

func (p *Parser) parseInTail(left Expr, negated bool) (Expr, error) {
	if err := p.expectKeyword("IN"); err != nil {
		return nil, err
	}
	if _, err := p.expectType(tokLParen, "("); err != nil {
		return nil, err
	}
	if p.cur().Is("SELECT") || p.cur().Is("WITH") {
		sub, err := p.parseSelect()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectType(tokRParen, ")"); err != nil {
			return nil, err
		}
		return &InExpr{X: left, Select: sub, Negated: negated}, nil
	}
	var list []Expr
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		list = append(list, e)
		if p.cur().Type == tokComma {
			p.pos++
			continue
		}
		break
	}
	if _, err := p.expectType(tokRParen, ")"); err != nil {
		return nil, err
	}
	return &InExpr{X: left, List: list, Negated: negated}, nil
}

func (p *Parser) parseAdditive() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch p.cur().Type {
		case tokPlus:
			op = "+"
		case tokMinus:
			op = "-"
		default:
			return left, nil
		}
		p.pos++
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseMultiplicative() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch p.cur().Type {
		case tokStar:
			op = "*"
		case tokSlash:
			op = "/"
		case tokPercent:
			op = "%"
		default:
			return left, nil
		}
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseUnary() (Expr, error) {
	switch p.cur().Type {
	case tokMinus:
		p.pos++
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: "-", X: x}, nil
	case tokPlus:
		p.pos++
		return p.parseUnary()
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Expr, error) {
	tok := p.cur()
	switch tok.Type {
	case tokNumber:
		p.pos++
		return &NumberLit{Text: tok.Text}, nil
	case tokString:
		p.pos++
		return &StringLit{Value: tok.Text}, nil
	case tokParam:
		p.pos++
		p.paramCount++
		return &ParamExpr{Ordinal: p.paramCount - 1}, nil
	case tokLParen:
		p.pos++
		if p.cur().Is("SELECT") || p.cur().Is("WITH") {
			sub, err := p.parseSelect()
			if err != nil {
				return nil, err
			}
			if _, err := p.expectType(tokRParen, ")"); err != nil {
				return nil, err
			}
			return &SubqueryExpr{Select: sub}, nil
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectType(tokRParen, ")"); err != nil {
			return nil, err
		}
		return e, nil
	case tokKeyword:
		switch tok.Text {
		case "NULL":
			p.pos++
			return &NullLit{}, nil
		case "TRUE":
			p.pos++
			return &BoolLit{Value: true}, nil
		case "FALSE":
			p.pos++
			return &BoolLit{Value: false}, nil
		case "CAST":
			p.pos++
			if _, err := p.expectType(tokLParen, "("); err != nil {
				return nil, err
			}
			x, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectKeyword("AS"); err != nil {
				return nil, err
			}
			typ, err := p.parseTypeName()
			if err != nil {
				return nil, err
			}
			if _, err := p.expectType(tokRParen, ")"); err != nil {
				return nil, err
			}
			return &CastExpr{X: x, Type: typ}, nil
		case "CASE":
			return p.parseCase()
		case "EXISTS":
			p.pos++
			if _, err := p.expectType(tokLParen, "("); err != nil {
				return nil, err
			}
			sub, err := p.parseSelect()
			if err != nil {
				return nil, err
			}
			if _, err := p.expectType(tokRParen, ")"); err != nil {
				return nil, err
			}
			return &ExistsExpr{Select: sub}, nil
		case "NOT":
			p.pos++
			if p.cur().Is("EXISTS") {
				p.pos++
				if _, err := p.expectType(tokLParen, "("); err != nil {
					return nil, err
				}
				sub, err := p.parseSelect()
				if err != nil {
					return nil, err
				}
				if _, err := p.expectType(tokRParen, ")"); err != nil {
					return nil, err
				}
				return &ExistsExpr{Select: sub, Negated: true}, nil
			}
			x, err := p.parseNot()
			if err != nil {
				return nil, err
			}
			return &UnaryExpr{Op: "NOT", X: x}, nil
		case "DATE", "TIMESTAMP", "TIME":
			// Typed literals: DATE '2024-01-01'.
			if p.peek(1).Type == tokString {
				kind := tok.Text
				p.pos++
				lit := p.advance()
				typ := types.TypeDate
				switch kind {
				case "TIMESTAMP":
					typ = types.TypeTimestamp
				case "TIME":
					typ = types.TypeTime
				}
				return &CastExpr{X: &StringLit{Value: lit.Text}, Type: typ}, nil
			}
		case "LEFT", "RIGHT", "FIRST", "LAST":
			// Function names that collide with keywords.
			if p.peek(1).Type == tokLParen {
				return p.parseFuncCall(strings.ToLower(tok.Text))
			}
		}
		return nil, errorx.Parsef("unexpected keyword %q in expression", tok.Text)
	case tokIdent:
		if p.peek(1).Type == tokLParen {
			return p.parseFuncCall(tok.Text)
		}
		parts := []string{tok.Text}
		p.pos++
		for p.cur().Type == tokDot {
			p.pos++
			part, err := p.expectType(tokIdent, "identifier")
			if err != nil {
				return nil, err
			}
			parts = append(parts, part.Text)
		}
		return &Ident{Parts: parts}, nil
	}
	return nil, errorx.Parsef("unexpected token %q in expression", tok.Text)
}

func (p *Parser) parseCase() (Expr, error) {
	p.pos++ // CASE
	c := &CaseExpr{}
	if !p.cur().Is("WHEN") {
		operand, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		c.Operand = operand
	}
	for p.accept("WHEN") {
		when, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("THEN"); err != nil {
			return nil, err
		}
		then, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		c.Whens = append(c.Whens, when)
		c.Thens = append(c.Thens, then)
	}
	if len(c.Whens) == 0 {
		return nil, errorx.Parsef("CASE requires at least one WHEN arm")
	}
	if p.accept("ELSE") {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		c.ElseExpr = e
	}
	if err := p.expectKeyword("END"); err != nil {
		return nil, err
	}
	return c, nil
}

func (p *Parser) parseFuncCall(name string) (Expr, error) {
	p.pos++ // name
	p.pos++ // (
	call := &FuncCall{Name: strings.ToLower(name)}
	if p.cur().Type == tokStar {
		p.pos++
		call.Star = true
	} else if p.cur().Type != tokRParen {
		if p.accept("DISTINCT") {
			call.Distinct = true
		}
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, e)
			if p.cur().Type == tokComma {
				p.pos++
				continue
			}
			break
		}
	}
	if _, err := p.expectType(tokRParen, ")"); err != nil {
		return nil, err
	}
	if p.accept("OVER") {
		over, err := p.parseWindowDef()
		if err != nil {
			return nil, err
		}
		call.Over = over
	}
	return call, nil
}

func (p *Parser) parseWindowDef() (*WindowDef, error) {
	if _, err := p.expectType(tokLParen, "("); err != nil {
		return nil, err
	}
	def := &WindowDef{}
	if p.cur().Is("PARTITION") {
		p.pos++
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			def.PartitionBy = append(def.PartitionBy, e)
			if p.cur().Type == tokComma {
				p.pos++
				continue
			}
			break
		}
	}
	if p.cur().Is("ORDER") {
		p.pos++
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		for {
			item := OrderItem{}
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			item.Expr = e
			if p.accept("DESC") {
				item.Desc = true
			} else {
				p.accept("ASC")
			}
			if p.accept("NULLS") {
				first := p.accept("FIRST")
				if !first {
					if err := p.expectKeyword("LAST"); err != nil {
						return nil, err
					}
				}
				item.NullsFirst = &first
			}
			def.OrderBy = append(def.OrderBy, item)
			if p.cur().Type == tokComma {
				p.pos++
				continue
			}
			break
		}
	}
	if p.cur().Is("ROWS") || p.cur().Is("RANGE") || p.cur().Is("GROUPS") {
		frame := &FrameDef{Mode: p.advance().Text}
		if err := p.expectKeyword("BETWEEN"); err != nil {
			return nil, err
		}
		start, startOff, err := p.parseFrameBound()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("AND"); err != nil {
			return nil, err
		}
		end, endOff, err := p.parseFrameBound()
		if err != nil {
			return nil, err
		}
		frame.StartKind, frame.StartOffset = start, startOff
		frame.EndKind, frame.EndOffset = end, endOff
		def.Frame = frame
	}
	if _, err := p.expectType(tokRParen, ")"); err != nil {
		return nil, err
	}
	return def, nil
}

func (p *Parser) parseFrameBound() (string, Expr, error) {
	switch {
	case p.accept("UNBOUNDED"):
		if p.accept("PRECEDING") {
			return "UNBOUNDED_PRECEDING", nil, nil
		}
		if p.accept("FOLLOWING") {
			return "UNBOUNDED_FOLLOWING", nil, nil
		}
		return "", nil, errorx.Parsef("expected PRECEDING or FOLLOWING after UNBOUNDED")
	case p.accept("CURRENT"):
		if err := p.expectKeyword("ROW"); err != nil {
			return "", nil, err
		}
		return "CURRENT", nil, nil
	default:
		off, err := p.parseAdditive()
		if err != nil {
			return "", nil, err
		}
		if p.accept("PRECEDING") {
			return "PRECEDING", off, nil
		}
		if p.accept("FOLLOWING") {
			return "FOLLOWING", off, nil
		}
		return "", nil, errorx.Parsef("expected PRECEDING or FOLLOWING in frame bound")
	}
}
