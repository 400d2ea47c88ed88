package lmisdp

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// ============================================================
// Matrix: symbolic matrix
// ============================================================

// Matrix is a dense rows×cols grid of expressions. A Matrix used as an
// LMI reads as M ⪰ 0.
type Matrix struct {
	rows, cols int
	data       [][]Expr
}

func NewMatrix(rows, cols int) *Matrix {
	if rows < 0 || cols < 0 {
		panic(fmt.Sprintf("lmisdp: negative matrix dimensions %dx%d", rows, cols))
	}
	data := make([][]Expr, rows)
	for i := range data {
		data[i] = make([]Expr, cols)
		for j := range data[i] {
			data[i][j] = N(0)
		}
	}
	return &Matrix{rows: rows, cols: cols, data: data}
}

func MatrixFromSlice(rows, cols int, entries []Expr) *Matrix {
	if len(entries) != rows*cols {
		panic(fmt.Sprintf("lmisdp: MatrixFromSlice needs %d entries, got %d", rows*cols, len(entries)))
	}
	m := NewMatrix(rows, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			m.data[i][j] = entries[i*cols+j]
		}
	}
	return m
}

// MatrixFromRows builds a matrix from row slices. All rows must have
// the same length.
func MatrixFromRows(rows [][]Expr) (*Matrix, error) {
	if len(rows) == 0 {
		return NewMatrix(0, 0), nil
	}
	cols := len(rows[0])
	m := NewMatrix(len(rows), cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: row %d has %d entries, want %d", ErrShapeMismatch, i, len(row), cols)
		}
		for j, e := range row {
			if e == nil {
				e = N(0)
			}
			m.data[i][j] = e
		}
	}
	return m, nil
}

// Identity returns the n×n identity matrix.
func Identity(n int) *Matrix {
	m := NewMatrix(n, n)
	for i := 0; i < n; i++ {
		m.data[i][i] = N(1)
	}
	return m
}

func (m *Matrix) checkBounds(row, col int) {
	if row < 0 || row >= m.rows || col < 0 || col >= m.cols {
		panic(fmt.Sprintf("lmisdp: matrix index out of range [%d,%d] for %dx%d", row, col, m.rows, m.cols))
	}
}

func (m *Matrix) Get(row, col int) Expr {
	m.checkBounds(row, col)
	return m.data[row][col]
}
func (m *Matrix) Set(row, col int, val Expr) {
	m.checkBounds(row, col)
	m.data[row][col] = val
}
func (m *Matrix) Rows() int        { return m.rows }
func (m *Matrix) Cols() int        { return m.cols }
func (m *Matrix) Dims() (int, int) { return m.rows, m.cols }
func (m *Matrix) IsSquare() bool   { return m.rows == m.cols }

// GreaterSide returns m itself: a bare matrix is its own greater side.
func (m *Matrix) GreaterSide() *Matrix { return m }

func (m *Matrix) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i := 0; i < m.rows; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("[")
		for j := 0; j < m.cols; j++ {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(m.data[i][j].String())
		}
		sb.WriteString("]")
	}
	sb.WriteString("]")
	return sb.String()
}

func (m *Matrix) LaTeX() string {
	var sb strings.Builder
	sb.WriteString("\\begin{pmatrix}")
	for i := 0; i < m.rows; i++ {
		if i > 0 {
			sb.WriteString(" \\\\ ")
		}
		for j := 0; j < m.cols; j++ {
			if j > 0 {
				sb.WriteString(" & ")
			}
			sb.WriteString(m.data[i][j].LaTeX())
		}
	}
	sb.WriteString("\\end{pmatrix}")
	return sb.String()
}

func (m *Matrix) Equal(other *Matrix) bool {
	if other == nil || m.rows != other.rows || m.cols != other.cols {
		return false
	}
	for i := 0; i < m.rows; i++ {
		for j := 0; j < m.cols; j++ {
			if !m.data[i][j].Equal(other.data[i][j]) {
				return false
			}
		}
	}
	return true
}

func (m *Matrix) sameShape(other *Matrix) bool {
	return m.rows == other.rows && m.cols == other.cols
}

func (m *Matrix) MatSub(other *Matrix) *Matrix {
	if !m.sameShape(other) {
		panic("lmisdp: matrix dimension mismatch in MatSub")
	}
	result := NewMatrix(m.rows, m.cols)
	for i := 0; i < m.rows; i++ {
		for j := 0; j < m.cols; j++ {
			result.data[i][j] = AddOf(m.data[i][j], Neg(other.data[i][j]))
		}
	}
	return result
}

// Scale multiplies every entry by scalar.
func (m *Matrix) Scale(scalar Expr) *Matrix {
	result := NewMatrix(m.rows, m.cols)
	for i := 0; i < m.rows; i++ {
		for j := 0; j < m.cols; j++ {
			result.data[i][j] = MulOf(scalar, m.data[i][j])
		}
	}
	return result
}

func (m *Matrix) Transpose() *Matrix {
	result := NewMatrix(m.cols, m.rows)
	for i := 0; i < m.rows; i++ {
		for j := 0; j < m.cols; j++ {
			result.data[j][i] = m.data[i][j]
		}
	}
	return result
}

// Slice returns the half-open submatrix [r0,r1)×[c0,c1).
func (m *Matrix) Slice(r0, r1, c0, c1 int) *Matrix {
	if r0 < 0 || r1 > m.rows || r0 > r1 || c0 < 0 || c1 > m.cols || c0 > c1 {
		panic(fmt.Sprintf("lmisdp: slice [%d:%d, %d:%d] out of range for %dx%d", r0, r1, c0, c1, m.rows, m.cols))
	}
	result := NewMatrix(r1-r0, c1-c0)
	for i := r0; i < r1; i++ {
		copy(result.data[i-r0], m.data[i][c0:c1])
	}
	return result
}

// IsSymmetric reports whether m is square and entry (i,j) equals (j,i)
// after expansion.
func (m *Matrix) IsSymmetric() bool {
	if !m.IsSquare() {
		return false
	}
	for i := 0; i < m.rows; i++ {
		for j := i + 1; j < m.cols; j++ {
			if !Expand(m.data[i][j]).Equal(Expand(m.data[j][i])) {
				return false
			}
		}
	}
	return true
}

// ApplySub substitutes value for varName in every entry.
func (m *Matrix) ApplySub(varName string, value Expr) *Matrix {
	result := NewMatrix(m.rows, m.cols)
	for i := 0; i < m.rows; i++ {
		for j := 0; j < m.cols; j++ {
			result.data[i][j] = Sub(m.data[i][j], varName, value)
		}
	}
	return result
}

// Evaluate substitutes numeric values for symbols and returns the
// resulting numeric matrix. Every entry must reduce to a number.
func (m *Matrix) Evaluate(values map[string]float64) (*mat.Dense, error) {
	if m.rows == 0 || m.cols == 0 {
		return nil, ErrEmptyMatrix
	}
	out := mat.NewDense(m.rows, m.cols, nil)
	for i := 0; i < m.rows; i++ {
		for j := 0; j < m.cols; j++ {
			e := m.data[i][j]
			for name, v := range values {
				e = e.Sub(name, NFloat(v))
			}
			n, ok := e.Simplify().Eval()
			if !ok {
				return nil, fmt.Errorf("lmisdp: entry [%d,%d] = %s does not evaluate to a number", i, j, e.Simplify())
			}
			out.Set(i, j, n.Float64())
		}
	}
	return out, nil
}

// Symbols returns the free symbols of every entry, ordered by name.
func (m *Matrix) Symbols() []*Sym {
	exprs := make([]Expr, 0, m.rows*m.cols)
	for _, row := range m.data {
		exprs = append(exprs, row...)
	}
	return SortedSymbols(exprs...)
}
