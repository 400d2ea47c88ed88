package lmisdp_test

import (
	"errors"
	"math"
	"math/big"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/njchilds90/lmisdp"
)

func TestLinearCoeffs(t *testing.T) {
	vars := lmisdp.Syms("x", "y", "z")
	tests := []struct {
		name   string
		expr   string
		coeffs []float64
		c      float64
	}{
		{"constant", "5", []float64{0, 0, 0}, 5},
		{"single variable", "x", []float64{1, 0, 0}, 0},
		{"scaled variable", "-3*y", []float64{0, -3, 0}, 0},
		{"mixed", "1.2 + x - 3.4*y", []float64{1, -3.4, 0}, 1.2},
		{"needs expansion", "2*(x + 1) - (x - y)", []float64{1, 1, 0}, 2},
		{"cancelling product", "x*y - y*x + z", []float64{0, 0, 1}, 0},
		{"cancelling square", "(x + 1)^2 - x^2", []float64{2, 0, 0}, 1},
		{"division by constant", "z/4 + 1/2", []float64{0, 0, 0.25}, 0.5},
		{"repeated variable", "x + x + x", []float64{3, 0, 0}, 0},
		{"square of square root", "sqrt(x)^2", []float64{1, 0, 0}, 0},
		{"cube root of cube", "(y^3)^(1/3) + 1", []float64{0, 1, 0}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coeffs, c, err := lmisdp.LinearCoeffs(lmisdp.MustParse(tt.expr), vars)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.coeffs, coeffs); diff != "" {
				t.Errorf("coeffs mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, tt.c, c)
		})
	}
}

func TestLinearCoeffs_IrrationalConstantFactor(t *testing.T) {
	vars := lmisdp.Syms("x")
	coeffs, c, err := lmisdp.LinearCoeffs(lmisdp.MustParse("sqrt(2)*x + sin(0)"), vars)
	require.NoError(t, err)
	assert.InDelta(t, 1.41421356, coeffs[0], 1e-8)
	assert.Zero(t, c)
}

func TestLinearCoeffs_NilIsZero(t *testing.T) {
	coeffs, c, err := lmisdp.LinearCoeffs(nil, lmisdp.Syms("x", "y"))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, coeffs)
	assert.Zero(t, c)
}

func TestLinearCoeffs_NoVariables(t *testing.T) {
	coeffs, c, err := lmisdp.LinearCoeffs(lmisdp.MustParse("3/4"), nil)
	require.NoError(t, err)
	assert.Empty(t, coeffs)
	assert.Equal(t, 0.75, c)
}

func TestLinearCoeffs_NonLinear(t *testing.T) {
	vars := lmisdp.Syms("x", "y", "z")
	for _, in := range []string{"x*y", "x^2", "sin(x)", "1/x", "x*y + 1", "w", "sqrt(x)", "2^x",
		"sqrt(x^2)", "(x^4)^(1/4)", "((x - y)^2)^(1/2) + 1"} {
		t.Run(in, func(t *testing.T) {
			e := lmisdp.MustParse(in)
			_, _, err := lmisdp.LinearCoeffs(e, vars)
			require.Error(t, err)
			assert.True(t, errors.Is(err, lmisdp.ErrNonLinearExpression))

			var nle *lmisdp.NonLinearExpressionError
			require.True(t, errors.As(err, &nle))
			assert.True(t, nle.Expr.Equal(e), "error should carry the offending expression")
		})
	}
}

func TestLinearCoeffs_DuplicateVariables(t *testing.T) {
	_, _, err := lmisdp.LinearCoeffs(lmisdp.S("x"), lmisdp.Syms("x", "y", "x"))
	assert.ErrorIs(t, err, lmisdp.ErrDuplicateVariable)

	_, _, err = lmisdp.LinearCoeffs(lmisdp.S("x"), []*lmisdp.Sym{lmisdp.S("x"), nil})
	assert.Error(t, err)
}

// Random affine expressions with shuffled terms must decompose back into
// exactly the rationals they were built from.
func TestLinearCoeffsExact_RandomAffine(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	vars := lmisdp.Syms("a", "b", "c", "d")
	for iter := 0; iter < 200; iter++ {
		want := make([]*big.Rat, len(vars))
		terms := []lmisdp.Expr{}
		for i, v := range vars {
			want[i] = big.NewRat(rng.Int63n(41)-20, rng.Int63n(9)+1)
			terms = append(terms, lmisdp.MulOf(lmisdp.NRat(want[i]), v))
		}
		wantC := big.NewRat(rng.Int63n(201)-100, rng.Int63n(7)+1)
		terms = append(terms, lmisdp.NRat(wantC))
		rng.Shuffle(len(terms), func(i, j int) { terms[i], terms[j] = terms[j], terms[i] })

		coeffs, c, err := lmisdp.LinearCoeffsExact(lmisdp.AddOf(terms...), vars)
		require.NoError(t, err)
		for i := range want {
			if coeffs[i].Cmp(want[i]) != 0 {
				t.Fatalf("iter %d: coeff %s: want %s, got %s", iter, vars[i].Name(), want[i].RatString(), coeffs[i].RatString())
			}
		}
		if c.Cmp(wantC) != 0 {
			t.Fatalf("iter %d: const: want %s, got %s", iter, wantC.RatString(), c.RatString())
		}
	}
}

func TestMatrixCoeffs(t *testing.T) {
	vars := lmisdp.Syms("x", "y", "z")
	m, err := lmisdp.ParseMatrix([][]string{{"x", "y"}, {"y", "z + 1"}})
	require.NoError(t, err)

	coeffs, constant, err := lmisdp.MatrixCoeffs(m, vars)
	require.NoError(t, err)
	require.Len(t, coeffs, 3)

	want := [][][]float64{
		{{1, 0}, {0, 0}},
		{{0, 1}, {1, 0}},
		{{0, 0}, {0, 1}},
	}
	for i := range want {
		if diff := cmp.Diff(want[i], lmisdp.DenseToRows(coeffs[i])); diff != "" {
			t.Errorf("coefficient of %s mismatch (-want +got):\n%s", vars[i].Name(), diff)
		}
	}
	if diff := cmp.Diff([][]float64{{0, 0}, {0, 1}}, lmisdp.DenseToRows(constant)); diff != "" {
		t.Errorf("constant mismatch (-want +got):\n%s", diff)
	}
}

func TestMatrixCoeffs_NonSquare(t *testing.T) {
	m, err := lmisdp.ParseMatrix([][]string{{"x", "2*y", "3"}})
	require.NoError(t, err)
	coeffs, constant, err := lmisdp.MatrixCoeffs(m, lmisdp.Syms("x", "y"))
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0, 2, 0}}, lmisdp.DenseToRows(coeffs[1]))
	assert.Equal(t, [][]float64{{0, 0, 3}}, lmisdp.DenseToRows(constant))
}

func TestMatrixCoeffs_NonLinearEntry(t *testing.T) {
	m, err := lmisdp.ParseMatrix([][]string{{"x", "x*y"}, {"x*y", "1"}})
	require.NoError(t, err)

	_, _, err = lmisdp.MatrixCoeffs(m, lmisdp.Syms("x", "y"))
	require.Error(t, err)
	assert.ErrorIs(t, err, lmisdp.ErrNonLinearMatrix)
	assert.ErrorIs(t, err, lmisdp.ErrNonLinearExpression)

	var nlm *lmisdp.NonLinearMatrixError
	require.ErrorAs(t, err, &nlm)
	assert.Equal(t, "MatrixCoeffs", nlm.Op)
	assert.Equal(t, 0, nlm.Row)
	assert.Equal(t, 1, nlm.Col)
	assert.True(t, nlm.Matrix.Equal(m))
}

func TestMatrixCoeffs_Empty(t *testing.T) {
	_, _, err := lmisdp.MatrixCoeffs(lmisdp.NewMatrix(0, 0), lmisdp.Syms("x"))
	assert.ErrorIs(t, err, lmisdp.ErrEmptyMatrix)

	_, _, err = lmisdp.MatrixCoeffs(nil, lmisdp.Syms("x"))
	assert.ErrorIs(t, err, lmisdp.ErrEmptyMatrix)
}

// Rebuilding a matrix from random coefficient matrices and extracting
// them again is the identity.
func TestCoeffsToMatrix_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	vars := lmisdp.Syms("p", "q", "r")
	for iter := 0; iter < 50; iter++ {
		n := rng.Intn(4) + 1
		coeffs := make([]*mat.Dense, len(vars))
		for k := range coeffs {
			coeffs[k] = randomDense(rng, n)
		}
		constant := randomDense(rng, n)

		m, err := lmisdp.CoeffsToMatrix(coeffs, constant, vars)
		require.NoError(t, err)
		gotCoeffs, gotConst, err := lmisdp.MatrixCoeffs(m, vars)
		require.NoError(t, err)

		for k := range coeffs {
			assert.Truef(t, mat.Equal(coeffs[k], gotCoeffs[k]), "iter %d: coefficient %d changed", iter, k)
		}
		assert.Truef(t, mat.Equal(constant, gotConst), "iter %d: constant changed", iter)
	}
}

func TestCoeffsToMatrix_ShapeMismatch(t *testing.T) {
	vars := lmisdp.Syms("x", "y")
	_, err := lmisdp.CoeffsToMatrix([]*mat.Dense{mat.NewDense(2, 2, nil)}, mat.NewDense(2, 2, nil), vars)
	assert.ErrorIs(t, err, lmisdp.ErrShapeMismatch)

	_, err = lmisdp.CoeffsToMatrix(
		[]*mat.Dense{mat.NewDense(2, 2, nil), mat.NewDense(3, 3, nil)},
		mat.NewDense(2, 2, nil), vars)
	assert.ErrorIs(t, err, lmisdp.ErrShapeMismatch)
}

func TestCoeffsToMatrix_NonFinite(t *testing.T) {
	vars := lmisdp.Syms("x")
	constant := mat.NewDense(1, 1, []float64{math.NaN()})
	_, err := lmisdp.CoeffsToMatrix([]*mat.Dense{mat.NewDense(1, 1, nil)}, constant, vars)
	assert.ErrorIs(t, err, lmisdp.ErrNonFinite)

	coeff := mat.NewDense(2, 2, []float64{1, 0, 0, math.Inf(-1)})
	_, err = lmisdp.CoeffsToMatrix([]*mat.Dense{coeff}, mat.NewDense(2, 2, nil), vars)
	assert.ErrorIs(t, err, lmisdp.ErrNonFinite)
	assert.Contains(t, err.Error(), "coefficient of x entry [1,1]")

	p := lmisdp.PreparedLMI{Coeffs: []*mat.Dense{coeff}, Const: mat.NewDense(2, 2, nil)}
	_, err = p.Symbolic(vars)
	assert.ErrorIs(t, err, lmisdp.ErrNonFinite)
}

func TestLinearCoeffs_Overflow(t *testing.T) {
	vars := lmisdp.Syms("x")

	_, _, err := lmisdp.LinearCoeffs(lmisdp.MustParse("1e308*10*x"), vars)
	assert.ErrorIs(t, err, lmisdp.ErrNonFinite)
	assert.NotErrorIs(t, err, lmisdp.ErrNonLinearExpression)

	_, _, err = lmisdp.LinearCoeffs(lmisdp.MustParse("x - 1e308*10"), vars)
	assert.ErrorIs(t, err, lmisdp.ErrNonFinite)

	coeffs, _, err := lmisdp.LinearCoeffsExact(lmisdp.MustParse("1e308*10*x"), vars)
	require.NoError(t, err)
	assert.Equal(t, 0, coeffs[0].Cmp(new(big.Rat).SetFrac(new(big.Int).Exp(big.NewInt(10), big.NewInt(309), nil), big.NewInt(1))))

	_, _, err = lmisdp.MatrixCoeffs(mustMatrix(t, []string{"x", "0"}, []string{"0", "1e308*10*x"}), vars)
	assert.ErrorIs(t, err, lmisdp.ErrNonFinite)
	assert.Contains(t, err.Error(), "entry [1,1]")
}

func randomDense(rng *rand.Rand, n int) *mat.Dense {
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if rng.Intn(3) == 0 {
				continue
			}
			d.Set(i, j, rng.NormFloat64()*10)
		}
	}
	return d
}
