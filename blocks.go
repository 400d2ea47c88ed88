package lmisdp

import (
	"gonum.org/v1/gonum/mat"
)

// ============================================================
// Block-diagonal splitting
// ============================================================

// DiagBlockIndexes returns the exclusive end index of every diagonal
// block of the square matrix m. Blocks are the finest contiguous
// partition such that no structurally nonzero entry, in either triangle,
// links two different blocks. Only a literal numeric zero counts as
// structurally zero. The last index is always the matrix size.
func DiagBlockIndexes(m *Matrix) ([]int, error) {
	if m == nil {
		return nil, ErrEmptyMatrix
	}
	if !m.IsSquare() {
		return nil, &NonSquareMatrixError{Rows: m.rows, Cols: m.cols}
	}
	return blockBounds(m.rows, func(i, j int) bool {
		n, ok := m.data[i][j].(*Num)
		return !ok || !n.IsZero()
	}), nil
}

// DenseDiagBlockIndexes is DiagBlockIndexes for numeric matrices, where
// only an exact 0 is structurally zero.
func DenseDiagBlockIndexes(d mat.Matrix) ([]int, error) {
	r, c := d.Dims()
	if r != c {
		return nil, &NonSquareMatrixError{Rows: r, Cols: c}
	}
	return blockBounds(r, func(i, j int) bool { return d.At(i, j) != 0 }), nil
}

// SplitByDiagBlocks cuts m into its diagonal blocks, in order.
func SplitByDiagBlocks(m *Matrix) ([]*Matrix, error) {
	bounds, err := DiagBlockIndexes(m)
	if err != nil {
		return nil, err
	}
	blocks := make([]*Matrix, 0, len(bounds))
	start := 0
	for _, end := range bounds {
		blocks = append(blocks, m.Slice(start, end, start, end))
		start = end
	}
	return blocks, nil
}

// blockBounds grows each block from its first index until no member has
// a nonzero link past the current end.
func blockBounds(n int, nonzero func(i, j int) bool) []int {
	var bounds []int
	for start := 0; start < n; {
		end := start + 1
		for k := start; k < end; k++ {
			for l := n - 1; l >= end; l-- {
				if nonzero(l, k) || nonzero(k, l) {
					end = l + 1
					break
				}
			}
		}
		bounds = append(bounds, end)
		start = end
	}
	return bounds
}
