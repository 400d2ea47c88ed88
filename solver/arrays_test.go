package solver_test

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/njchilds90/lmisdp"
	"github.com/njchilds90/lmisdp/solver"
)

func matrix(t *testing.T, rows ...[]string) *lmisdp.Matrix {
	t.Helper()
	m, err := lmisdp.ParseMatrix(rows)
	require.NoError(t, err)
	return m
}

// exampleProblem is max 1.2 + x - 3.4y subject to a coupled 2x2 PSD
// constraint and a diagonal NSD bound.
func exampleProblem(t *testing.T) (lmisdp.Expr, []lmisdp.LMI, []*lmisdp.Sym) {
	t.Helper()
	psd, err := lmisdp.NewPSD(
		matrix(t, []string{"x", "y"}, []string{"y", "z + 1"}),
		matrix(t, []string{"0", "1"}, []string{"1", "2"}),
	)
	require.NoError(t, err)
	nsd, err := lmisdp.NewNSD(
		matrix(t, []string{"y", "0"}, []string{"0", "2*x"}),
		matrix(t, []string{"30", "0"}, []string{"0", "40"}),
	)
	require.NoError(t, err)
	return lmisdp.MustParse("1.2 + x - 3.4*y"), []lmisdp.LMI{psd, nsd}, lmisdp.Syms("x", "y", "z")
}

func TestLayout_Example(t *testing.T) {
	obj, lmis, vars := exampleProblem(t)
	a, err := solver.Layout(obj, lmis, vars, lmisdp.Maximize, lmisdp.WithDiagBlocks(true))
	require.NoError(t, err)

	e := a.Export()
	assert.Equal(t, []string{"x", "y", "z"}, e.Vars)
	assert.Equal(t, []float64{-1, 3.4, 0}, e.C)
	require.Len(t, e.Gs, 3)
	require.Len(t, e.Hs, 3)

	type dense struct {
		Rows, Cols int
		Data       []float64
	}
	gotG := make([]dense, len(e.Gs))
	gotH := make([]dense, len(e.Hs))
	for i := range e.Gs {
		gotG[i] = dense{e.Gs[i].Rows, e.Gs[i].Cols, e.Gs[i].Data}
		gotH[i] = dense{e.Hs[i].Rows, e.Hs[i].Cols, e.Hs[i].Data}
	}
	wantG := []dense{
		{4, 3, []float64{-1, 0, 0, 0, 0, -1, -1, 0, 0, 0, 0, -1}},
		{1, 3, []float64{0, 1, 0}},
		{1, 3, []float64{2, 0, 0}},
	}
	wantH := []dense{
		{2, 2, []float64{0, -1, -1, -1}},
		{1, 1, []float64{30}},
		{1, 1, []float64{40}},
	}
	if diff := cmp.Diff(wantG, gotG); diff != "" {
		t.Errorf("Gs mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantH, gotH); diff != "" {
		t.Errorf("hs mismatch (-want +got):\n%s", diff)
	}
}

// An asymmetric coefficient shows the column-major flattening order.
func TestLayout_ColumnMajor(t *testing.T) {
	vars := lmisdp.Syms("x")
	m := matrix(t, []string{"x", "2*x"}, []string{"0", "x + 5"})
	a, err := solver.Layout(lmisdp.S("x"), []lmisdp.LMI{m}, vars, lmisdp.Minimize)
	require.NoError(t, err)

	require.Len(t, a.Gs, 1)
	r, c := a.Gs[0].Dims()
	assert.Equal(t, 4, r)
	assert.Equal(t, 1, c)
	assert.Equal(t, []float64{-1, 0, -2, -1}, solver.ColumnMajor(a.Gs[0]))
	assert.Equal(t, []float64{0, 0, 0, 5}, solver.ColumnMajor(a.Hs[0]))
	assert.Equal(t, 1.0, a.C.AtVec(0))
}

func TestLayout_Errors(t *testing.T) {
	obj, lmis, vars := exampleProblem(t)

	_, err := solver.Layout(obj, lmis, nil, lmisdp.Minimize)
	assert.ErrorIs(t, err, solver.ErrNoVariables)

	_, err = solver.Layout(lmisdp.MustParse("x*y"), lmis, vars, lmisdp.Minimize)
	assert.ErrorIs(t, err, lmisdp.ErrNonLinearExpression)

	rect := matrix(t, []string{"x", "y", "z"})
	_, err = solver.Layout(obj, []lmisdp.LMI{rect}, vars, lmisdp.Minimize)
	assert.ErrorIs(t, err, lmisdp.ErrNonSquareMatrix)
}

func TestFromPrepared_Errors(t *testing.T) {
	_, err := solver.FromPrepared(nil, nil)
	assert.ErrorIs(t, err, solver.ErrNoVariables)

	block := lmisdp.PreparedLMI{
		Coeffs: []*mat.Dense{mat.NewDense(2, 2, nil)},
		Const:  mat.NewDense(2, 2, nil),
	}
	_, err = solver.FromPrepared([]float64{1, 2}, []lmisdp.PreparedLMI{block})
	assert.ErrorIs(t, err, lmisdp.ErrShapeMismatch)

	a, err := solver.FromPrepared([]float64{1}, []lmisdp.PreparedLMI{block})
	require.NoError(t, err)
	assert.Len(t, a.Gs, 1)
	assert.Empty(t, a.Vars)
}

func TestArrays_ProtoRoundTrip(t *testing.T) {
	obj, lmis, vars := exampleProblem(t)
	a, err := solver.Layout(obj, lmis, vars, lmisdp.Maximize, lmisdp.WithDiagBlocks(true))
	require.NoError(t, err)

	b, err := a.MarshalProto()
	require.NoError(t, err)
	back, err := solver.UnmarshalProto(b)
	require.NoError(t, err)

	if diff := cmp.Diff(a.Export(), back.Export()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
	for i := range a.Gs {
		assert.True(t, mat.Equal(a.Gs[i], back.Gs[i]))
	}
}

func TestArrays_MarshalProtoJSON(t *testing.T) {
	obj, lmis, vars := exampleProblem(t)
	a, err := solver.Layout(obj, lmis, vars, lmisdp.Minimize)
	require.NoError(t, err)

	b, err := a.MarshalProtoJSON()
	require.NoError(t, err)

	var decoded struct {
		Vars []string          `json:"vars"`
		C    []float64         `json:"c"`
		Gs   []json.RawMessage `json:"Gs"`
		Hs   []json.RawMessage `json:"hs"`
	}
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, []string{"x", "y", "z"}, decoded.Vars)
	assert.Equal(t, []float64{1, -3.4, 0}, decoded.C)
	assert.Len(t, decoded.Gs, 2)
	assert.Len(t, decoded.Hs, 2)
}

func TestFromProto_Invalid(t *testing.T) {
	tests := map[string]map[string]interface{}{
		"no objective": {
			"c": []interface{}{},
		},
		"short data": {
			"c":  []interface{}{1.0},
			"Gs": []interface{}{map[string]interface{}{"rows": 2.0, "cols": 1.0, "data": []interface{}{1.0}}},
			"hs": []interface{}{map[string]interface{}{"rows": 1.0, "cols": 1.0, "data": []interface{}{0.0}}},
		},
		"block count": {
			"c":  []interface{}{1.0},
			"Gs": []interface{}{map[string]interface{}{"rows": 1.0, "cols": 1.0, "data": []interface{}{1.0}}},
			"hs": []interface{}{},
		},
	}
	for name, fields := range tests {
		t.Run(name, func(t *testing.T) {
			s, err := structpb.NewStruct(fields)
			require.NoError(t, err)
			_, err = solver.FromProto(s)
			assert.Error(t, err)
		})
	}
}
