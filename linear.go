package lmisdp

import (
	"fmt"
	"math"
	"math/big"

	"gonum.org/v1/gonum/mat"
)

// ============================================================
// Linear coefficient extraction
// ============================================================

// LinearCoeffs decomposes expr as const + Σ coeffs[i]·vars[i].
//
// Every term of expr must be a numeric constant or a numeric multiple of
// exactly one variable. Expressions that only reach that form after
// distributing products, such as 2*(x+1), are expanded once and retried.
// Anything else, including symbols not listed in vars, fails with a
// *NonLinearExpressionError.
func LinearCoeffs(expr Expr, vars []*Sym) ([]float64, float64, error) {
	coeffs, c, err := LinearCoeffsExact(expr, vars)
	if err != nil {
		return nil, 0, err
	}
	out := make([]float64, len(coeffs))
	for i, r := range coeffs {
		f, ok := ratFloat(r)
		if !ok {
			return nil, 0, fmt.Errorf("%w: coefficient of %s in %s", ErrNonFinite, vars[i].name, expr)
		}
		out[i] = f
	}
	cf, ok := ratFloat(c)
	if !ok {
		return nil, 0, fmt.Errorf("%w: constant term of %s", ErrNonFinite, expr)
	}
	return out, cf, nil
}

// ratFloat converts r to the nearest float64, failing on overflow.
func ratFloat(r *big.Rat) (float64, bool) {
	f, _ := r.Float64()
	return f, !math.IsInf(f, 0)
}

// LinearCoeffsExact is LinearCoeffs without the final float64 conversion.
func LinearCoeffsExact(expr Expr, vars []*Sym) ([]*big.Rat, *big.Rat, error) {
	idx, err := variableIndex(vars)
	if err != nil {
		return nil, nil, err
	}
	coeffs, c, ok := linearDecompose(expr, idx)
	if !ok {
		return nil, nil, &NonLinearExpressionError{Expr: expr}
	}
	return coeffs, c, nil
}

// variableIndex maps variable names to their position. Variables must be
// non-nil and distinct.
func variableIndex(vars []*Sym) (map[string]int, error) {
	idx := make(map[string]int, len(vars))
	for i, v := range vars {
		if v == nil {
			return nil, fmt.Errorf("%w: variable %d is nil", ErrDuplicateVariable, i)
		}
		if j, seen := idx[v.name]; seen {
			return nil, fmt.Errorf("%w: %q at positions %d and %d", ErrDuplicateVariable, v.name, j, i)
		}
		idx[v.name] = i
	}
	return idx, nil
}

func linearDecompose(expr Expr, idx map[string]int) ([]*big.Rat, *big.Rat, bool) {
	if expr == nil {
		expr = N(0)
	}
	simplified := expr.Simplify()
	if coeffs, c, ok := linearTerms(simplified, idx); ok {
		return coeffs, c, true
	}
	return linearTerms(Expand(simplified), idx)
}

func linearTerms(e Expr, idx map[string]int) ([]*big.Rat, *big.Rat, bool) {
	coeffs := make([]*big.Rat, len(idx))
	for i := range coeffs {
		coeffs[i] = new(big.Rat)
	}
	c := new(big.Rat)
	for _, t := range addTerms(e) {
		coeff, v, ok := linearTerm(t, idx)
		if !ok {
			return nil, nil, false
		}
		if v < 0 {
			c.Add(c, coeff)
		} else {
			coeffs[v].Add(coeffs[v], coeff)
		}
	}
	return coeffs, c, true
}

// linearTerm splits a single term into its numeric multiplier and the
// index of its variable, or -1 for a constant term. Factors without free
// symbols that evaluate numerically fold into the multiplier.
func linearTerm(t Expr, idx map[string]int) (*big.Rat, int, bool) {
	if n, ok := t.(*Num); ok {
		return n.Rat(), -1, true
	}
	coeff, rest := splitCoeff(t)
	r := coeff.Rat()
	v := -1
	for _, f := range mulFactors(rest) {
		if s, ok := f.(*Sym); ok {
			i, known := idx[s.name]
			if !known || v >= 0 {
				return nil, 0, false
			}
			v = i
			continue
		}
		if len(FreeSymbols(f)) > 0 {
			return nil, 0, false
		}
		n, ok := f.Eval()
		if !ok {
			return nil, 0, false
		}
		r.Mul(r, n.val)
	}
	return r, v, true
}

func mulFactors(e Expr) []Expr {
	if m, ok := e.(*Mul); ok {
		return m.factors
	}
	return []Expr{e}
}

// ============================================================
// Matrix coefficient extraction
// ============================================================

// MatrixCoeffs applies LinearCoeffs to every entry of m. It returns one
// coefficient matrix per variable and the constant matrix, all shaped
// like m. A failing entry aborts the call with *NonLinearMatrixError.
func MatrixCoeffs(m *Matrix, vars []*Sym) ([]*mat.Dense, *mat.Dense, error) {
	return matrixCoeffs("MatrixCoeffs", m, vars)
}

func matrixCoeffs(op string, m *Matrix, vars []*Sym) ([]*mat.Dense, *mat.Dense, error) {
	if m == nil || m.rows == 0 || m.cols == 0 {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrEmptyMatrix)
	}
	idx, err := variableIndex(vars)
	if err != nil {
		return nil, nil, err
	}
	coeffs := make([]*mat.Dense, len(vars))
	for i := range coeffs {
		coeffs[i] = mat.NewDense(m.rows, m.cols, nil)
	}
	constant := mat.NewDense(m.rows, m.cols, nil)
	for i := 0; i < m.rows; i++ {
		for j := 0; j < m.cols; j++ {
			cell := m.data[i][j]
			cs, c, ok := linearDecompose(cell, idx)
			if !ok {
				return nil, nil, &NonLinearMatrixError{
					Op:     op,
					Matrix: m,
					Row:    i,
					Col:    j,
					Err:    &NonLinearExpressionError{Expr: cell},
				}
			}
			cf, ok := ratFloat(c)
			if !ok {
				return nil, nil, fmt.Errorf("%s: entry [%d,%d]: %w: constant term", op, i, j, ErrNonFinite)
			}
			constant.Set(i, j, cf)
			for v, r := range cs {
				f, ok := ratFloat(r)
				if !ok {
					return nil, nil, fmt.Errorf("%s: entry [%d,%d]: %w: coefficient of %s", op, i, j, ErrNonFinite, vars[v].name)
				}
				coeffs[v].Set(i, j, f)
			}
		}
	}
	return coeffs, constant, nil
}

// CoeffsToMatrix rebuilds Const + Σ vars[i]·coeffs[i] as a symbolic
// matrix. It is the inverse of MatrixCoeffs.
func CoeffsToMatrix(coeffs []*mat.Dense, constant *mat.Dense, vars []*Sym) (*Matrix, error) {
	if len(coeffs) != len(vars) {
		return nil, fmt.Errorf("%w: %d coefficient matrices for %d variables", ErrShapeMismatch, len(coeffs), len(vars))
	}
	if constant == nil {
		return nil, ErrEmptyMatrix
	}
	if _, err := variableIndex(vars); err != nil {
		return nil, err
	}
	r, c := constant.Dims()
	if err := checkFinite("constant", constant); err != nil {
		return nil, err
	}
	for k, cm := range coeffs {
		if cr, cc := cm.Dims(); cr != r || cc != c {
			return nil, fmt.Errorf("%w: coefficient %d is %dx%d, constant is %dx%d", ErrShapeMismatch, k, cr, cc, r, c)
		}
		if err := checkFinite("coefficient of "+vars[k].name, cm); err != nil {
			return nil, err
		}
	}
	m := NewMatrix(r, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			terms := []Expr{NFloat(constant.At(i, j))}
			for k, v := range vars {
				terms = append(terms, MulOf(NFloat(coeffs[k].At(i, j)), v))
			}
			m.data[i][j] = AddOf(terms...)
		}
	}
	return m, nil
}

func checkFinite(what string, d mat.Matrix) error {
	r, c := d.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := d.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: %s entry [%d,%d] is %v", ErrNonFinite, what, i, j, v)
			}
		}
	}
	return nil
}
