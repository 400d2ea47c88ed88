package lmisdp

import "sort"

// ============================================================
// Expansion
// ============================================================

// Expand distributes products over sums and raises sums to small
// non-negative integer powers, then merges like terms.
func Expand(e Expr) Expr { return expandExpr(e).Simplify() }

func expandExpr(e Expr) Expr {
	switch v := e.(type) {
	case *Add:
		newTerms := make([]Expr, len(v.terms))
		for i, t := range v.terms {
			newTerms[i] = expandExpr(t)
		}
		return AddOf(newTerms...)
	case *Mul:
		result := Expr(N(1))
		for _, f := range v.factors {
			result = distribute(result, expandExpr(f))
		}
		return result
	case *Pow:
		base := expandExpr(v.base)
		if n, ok := v.exp.(*Num); ok && n.IsInteger() {
			exp := n.val.Num().Int64()
			if exp >= 0 && exp <= 10 {
				result := Expr(N(1))
				for i := int64(0); i < exp; i++ {
					result = distribute(result, base)
				}
				return result
			}
		}
		return PowOf(base, expandExpr(v.exp))
	case *Func:
		return funcOf(v.name, expandExpr(v.arg)).Simplify()
	}
	return e
}

// distribute multiplies two expanded expressions term by term.
func distribute(a, b Expr) Expr {
	left, right := addTerms(a), addTerms(b)
	products := make([]Expr, 0, len(left)*len(right))
	for _, l := range left {
		for _, r := range right {
			products = append(products, MulOf(l, r))
		}
	}
	return AddOf(products...)
}

func addTerms(e Expr) []Expr {
	if a, ok := e.(*Add); ok {
		return a.terms
	}
	return []Expr{e}
}

// ============================================================
// Free Symbols
// ============================================================

func FreeSymbols(e Expr) map[string]struct{} {
	result := map[string]struct{}{}
	collectSymbols(e, result)
	return result
}

// SortedSymbols returns the free symbols of all given expressions,
// deduplicated and ordered by name.
func SortedSymbols(exprs ...Expr) []*Sym {
	names := map[string]struct{}{}
	for _, e := range exprs {
		if e != nil {
			collectSymbols(e, names)
		}
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)
	return Syms(sorted...)
}

func collectSymbols(e Expr, out map[string]struct{}) {
	switch v := e.(type) {
	case *Sym:
		out[v.name] = struct{}{}
	case *Add:
		for _, t := range v.terms {
			collectSymbols(t, out)
		}
	case *Mul:
		for _, f := range v.factors {
			collectSymbols(f, out)
		}
	case *Pow:
		collectSymbols(v.base, out)
		collectSymbols(v.exp, out)
	case *Func:
		collectSymbols(v.arg, out)
	}
}
