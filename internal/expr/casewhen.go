package expr

import (
	"fmt"
	"strings"

	"github.com/turingworks/prismdb/internal/types"
	"github.com/turingworks/prismdb/internal/vector"
)

// CaseBranch is one WHEN condition THEN result arm.
type CaseBranch struct {
	When Expression
	Then Expression
}

// CaseWhen evaluates branches in order per row; the first branch whose
// condition is true wins, otherwise Else (or NULL without one). All result
// arms are coerced to one type at bind time.
type CaseWhen struct {
	Branches []CaseBranch
	Else     Expression
	Type     types.LogicalType
}

// ReturnType implements Expression.
func (c *CaseWhen) ReturnType() types.LogicalType { return c.Type }

// Eval implements Expression.
func (c *CaseWhen) Eval(ctx *Context, chunk *vector.DataChunk) (*vector.Vector, error) {
	n := chunk.Cardinality()
	conds := make([]*vector.Vector, len(c.Branches))
	thens := make([]*vector.Vector, len(c.Branches))
	for i, br := range c.Branches {
		v, err := br.When.Eval(ctx, chunk)
		if err != nil {
			return nil, err
		}
		conds[i] = v
		t, err := br.Then.Eval(ctx, chunk)
		if err != nil {
			return nil, err
		}
		thens[i] = t
	}
	var elseVec *vector.Vector
	if c.Else != nil {
		v, err := c.Else.Eval(ctx, chunk)
		if err != nil {
			return nil, err
		}
		elseVec = v
	}
	out := vector.NewFlat(c.Type, n)
	for row := 0; row < n; row++ {
		matched := false
		for i := range c.Branches {
			// A NULL condition does not match.
			if !conds[i].IsNull(row) && conds[i].MustGet(row).Bool() {
				if err := out.Append(thens[i].MustGet(row)); err != nil {
					return nil, err
				}
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		v := types.NewNull(c.Type)
		if elseVec != nil {
			v = elseVec.MustGet(row)
		}
		if err := out.Append(v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (c *CaseWhen) String() string {
	var b strings.Builder
	b.WriteString("CASE")
	for _, br := range c.Branches {
		fmt.Fprintf(&b, " WHEN %s THEN %s", br.When, br.Then)
	}
	if c.Else != nil {
		fmt.Fprintf(&b, " ELSE %s", c.Else)
	}
	b.WriteString(" END")
	return b.String()
}
