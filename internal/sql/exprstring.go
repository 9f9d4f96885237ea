package sql

import (
	"fmt"
	"strings"
)

// exprText renders a parsed expression canonically. The binder matches
// GROUP BY items and repeated window calls structurally through this
// rendering, so equal spellings bind to the same computed column.
func exprText(e Expr) string {
	switch x := e.(type) {
	case *Ident:
		return strings.ToLower(strings.Join(x.Parts, "."))
	case *NumberLit:
		return x.Text
	case *StringLit:
		return "'" + x.Value + "'"
	case *BoolLit:
		return fmt.Sprintf("%t", x.Value)
	case *NullLit:
		return "null"
	case *ParamExpr:
		return fmt.Sprintf("?%d", x.Ordinal)
	case *BinaryExpr:
		return "(" + exprText(x.Left) + " " + strings.ToLower(x.Op) + " " + exprText(x.Right) + ")"
	case *UnaryExpr:
		return "(" + strings.ToLower(x.Op) + " " + exprText(x.X) + ")"
	case *IsNullExpr:
		if x.Negated {
			return "(" + exprText(x.X) + " is not null)"
		}
		return "(" + exprText(x.X) + " is null)"
	case *BetweenExpr:
		neg := ""
		if x.Negated {
			neg = "not "
		}
		return "(" + exprText(x.X) + " " + neg + "between " + exprText(x.Lo) + " and " + exprText(x.Hi) + ")"
	case *InExpr:
		var parts []string
		for _, item := range x.List {
			parts = append(parts, exprText(item))
		}
		neg := ""
		if x.Negated {
			neg = "not "
		}
		if x.Select != nil {
			return "(" + exprText(x.X) + " " + neg + "in (subquery))"
		}
		return "(" + exprText(x.X) + " " + neg + "in (" + strings.Join(parts, ", ") + "))"
	case *ExistsExpr:
		if x.Negated {
			return "(not exists (subquery))"
		}
		return "(exists (subquery))"
	case *SubqueryExpr:
		return "(subquery)"
	case *CastExpr:
		return "cast(" + exprText(x.X) + " as " + x.Type.String() + ")"
	case *CaseExpr:
		var b strings.Builder
		b.WriteString("case")
		if x.Operand != nil {
			b.WriteString(" " + exprText(x.Operand))
		}
		for i := range x.Whens {
			b.WriteString(" when " + exprText(x.Whens[i]) + " then " + exprText(x.Thens[i]))
		}
		if x.ElseExpr != nil {
			b.WriteString(" else " + exprText(x.ElseExpr))
		}
		b.WriteString(" end")
		return b.String()
	case *FuncCall:
		var parts []string
		if x.Star {
			parts = append(parts, "*")
		}
		for _, a := range x.Args {
			parts = append(parts, exprText(a))
		}
		s := x.Name + "("
		if x.Distinct {
			s += "distinct "
		}
		s += strings.Join(parts, ", ") + ")"
		if x.Over != nil {
			s += " over (" + windowText(x.Over) + ")"
		}
		return s
	default:
		return fmt.Sprintf("%T", e)
	}
}

func windowText(w *WindowDef) string {
	var parts []string
	if len(w.PartitionBy) > 0 {
		var ps []string
		for _, e := range w.PartitionBy {
			ps = append(ps, exprText(e))
		}
		parts = append(parts, "partition by "+strings.Join(ps, ", "))
	}
	if len(w.OrderBy) > 0 {
		var os []string
		for _, o := range w.OrderBy {
			s := exprText(o.Expr)
			if o.Desc {
				s += " desc"
			}
			if o.NullsFirst != nil {
				if *o.NullsFirst {
					s += " nulls first"
				} else {
					s += " nulls last"
				}
			}
			os = append(os, s)
		}
		parts = append(parts, "order by "+strings.Join(os, ", "))
	}
	if w.Frame != nil {
		parts = append(parts, strings.ToLower(w.Frame.Mode)+" frame")
	}
	return strings.Join(parts, " ")
}
