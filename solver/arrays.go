// Package solver lays out prepared LMIs in the dense array convention of
// cvxopt's solvers.sdp and drives registered SDP backends.
package solver

import (
	"context"
	"fmt"

	"github.com/golang/glog"
	"gonum.org/v1/gonum/mat"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/njchilds90/lmisdp"
)

// Arrays is an SDP in cvxopt form:
//
//	minimize    cᵀx
//	subject to  Σ x[i]·G_k[:,i] + s_k = h_k,  s_k ⪰ 0
//
// where column i of G_k is the column-major flattening of -Coeffs[i] of
// block k, and H_k is the block's constant matrix.
type Arrays struct {
	C    *mat.VecDense
	Gs   []*mat.Dense
	Hs   []*mat.Dense
	Vars []string
}

// ToCVXOPT builds the cvxopt arrays for an objective and constraints.
// It fails with *UnavailableError when the cvxopt backend is not
// registered or cannot run in this environment.
func ToCVXOPT(ctx context.Context, obj lmisdp.Expr, lmis []lmisdp.LMI, vars []*lmisdp.Sym, dir lmisdp.Direction, opts ...lmisdp.PrepareOption) (*Arrays, error) {
	if err := available(ctx, CVXOPTName, "ToCVXOPT"); err != nil {
		return nil, err
	}
	return Layout(obj, lmis, vars, dir, opts...)
}

// Layout is ToCVXOPT without the backend check.
func Layout(obj lmisdp.Expr, lmis []lmisdp.LMI, vars []*lmisdp.Sym, dir lmisdp.Direction, opts ...lmisdp.PrepareOption) (*Arrays, error) {
	if len(vars) == 0 {
		return nil, ErrNoVariables
	}
	c, err := lmisdp.PrepareObjective(obj, vars, dir)
	if err != nil {
		return nil, fmt.Errorf("objective: %w", err)
	}
	prepared, err := lmisdp.PrepareLMIs(lmis, vars, opts...)
	if err != nil {
		return nil, err
	}
	a, err := FromPrepared(c, prepared)
	if err != nil {
		return nil, err
	}
	a.Vars = lmisdp.SymNames(vars)
	glog.V(1).Infof("solver: laid out %d variables, %d blocks", len(c), len(a.Gs))
	return a, nil
}

// FromPrepared converts an objective vector and prepared blocks into
// cvxopt arrays. Every block must be square with one coefficient matrix
// per objective entry.
func FromPrepared(c []float64, prepared []lmisdp.PreparedLMI) (*Arrays, error) {
	n := len(c)
	if n == 0 {
		return nil, ErrNoVariables
	}
	a := &Arrays{
		C:  mat.NewVecDense(n, append([]float64(nil), c...)),
		Gs: make([]*mat.Dense, len(prepared)),
		Hs: make([]*mat.Dense, len(prepared)),
	}
	for k, p := range prepared {
		r, cols := p.Const.Dims()
		if r != cols {
			return nil, fmt.Errorf("block %d: %w", k, &lmisdp.NonSquareMatrixError{Rows: r, Cols: cols})
		}
		if len(p.Coeffs) != n {
			return nil, fmt.Errorf("block %d: %w: %d coefficient matrices for %d variables", k, lmisdp.ErrShapeMismatch, len(p.Coeffs), n)
		}
		g := mat.NewDense(r*r, n, nil)
		for i, coeff := range p.Coeffs {
			for col := 0; col < r; col++ {
				for row := 0; row < r; row++ {
					g.Set(col*r+row, i, -coeff.At(row, col))
				}
			}
		}
		a.Gs[k] = g
		a.Hs[k] = mat.DenseCopyOf(p.Const)
	}
	return a, nil
}

// ColumnMajor flattens m column by column, the storage order cvxopt
// matrices use.
func ColumnMajor(m mat.Matrix) []float64 {
	r, c := m.Dims()
	out := make([]float64, 0, r*c)
	for j := 0; j < c; j++ {
		for i := 0; i < r; i++ {
			out = append(out, m.At(i, j))
		}
	}
	return out
}

type denseSpec struct {
	Rows int       `json:"rows" yaml:"rows"`
	Cols int       `json:"cols" yaml:"cols"`
	Data []float64 `json:"data" yaml:"data"`
}

func newDenseSpec(m mat.Matrix) denseSpec {
	r, c := m.Dims()
	return denseSpec{Rows: r, Cols: c, Data: ColumnMajor(m)}
}

// Export is the serializable form of Arrays, with every matrix stored
// column-major.
type Export struct {
	Vars []string    `json:"vars,omitempty" yaml:"vars,omitempty"`
	C    []float64   `json:"c" yaml:"c"`
	Gs   []denseSpec `json:"Gs" yaml:"Gs"`
	Hs   []denseSpec `json:"hs" yaml:"hs"`
}

// Export returns the serializable form of a.
func (a *Arrays) Export() Export {
	e := Export{
		Vars: a.Vars,
		C:    make([]float64, a.C.Len()),
		Gs:   make([]denseSpec, len(a.Gs)),
		Hs:   make([]denseSpec, len(a.Hs)),
	}
	for i := range e.C {
		e.C[i] = a.C.AtVec(i)
	}
	for i, g := range a.Gs {
		e.Gs[i] = newDenseSpec(g)
	}
	for i, h := range a.Hs {
		e.Hs[i] = newDenseSpec(h)
	}
	return e
}

func specsValue(specs []denseSpec) []interface{} {
	out := make([]interface{}, len(specs))
	for i, s := range specs {
		data := make([]interface{}, len(s.Data))
		for k, v := range s.Data {
			data[k] = v
		}
		out[i] = map[string]interface{}{"rows": float64(s.Rows), "cols": float64(s.Cols), "data": data}
	}
	return out
}

// Proto encodes the arrays as a protobuf Struct with fields vars, c, Gs
// and hs. Matrices are {rows, cols, data} with column-major data.
func (a *Arrays) Proto() (*structpb.Struct, error) {
	e := a.Export()
	c := make([]interface{}, len(e.C))
	for i, v := range e.C {
		c[i] = v
	}
	vars := make([]interface{}, len(e.Vars))
	for i, v := range e.Vars {
		vars[i] = v
	}
	return structpb.NewStruct(map[string]interface{}{
		"vars": vars,
		"c":    c,
		"Gs":   specsValue(e.Gs),
		"hs":   specsValue(e.Hs),
	})
}

// MarshalProto returns the protobuf wire encoding of Proto().
func (a *Arrays) MarshalProto() ([]byte, error) {
	s, err := a.Proto()
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

// MarshalProtoJSON returns the canonical protobuf JSON encoding of
// Proto().
func (a *Arrays) MarshalProtoJSON() ([]byte, error) {
	s, err := a.Proto()
	if err != nil {
		return nil, err
	}
	return protojson.MarshalOptions{Multiline: true}.Marshal(s)
}

// UnmarshalProto decodes arrays produced by MarshalProto.
func UnmarshalProto(b []byte) (*Arrays, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return FromProto(&s)
}

// FromProto is the inverse of Proto.
func FromProto(s *structpb.Struct) (*Arrays, error) {
	fields := s.GetFields()
	cList := fields["c"].GetListValue().GetValues()
	if len(cList) == 0 {
		return nil, ErrNoVariables
	}
	c := make([]float64, len(cList))
	for i, v := range cList {
		c[i] = v.GetNumberValue()
	}
	a := &Arrays{C: mat.NewVecDense(len(c), c)}
	for _, v := range fields["vars"].GetListValue().GetValues() {
		a.Vars = append(a.Vars, v.GetStringValue())
	}
	var err error
	if a.Gs, err = densesFromProto("Gs", fields["Gs"]); err != nil {
		return nil, err
	}
	if a.Hs, err = densesFromProto("hs", fields["hs"]); err != nil {
		return nil, err
	}
	if len(a.Gs) != len(a.Hs) {
		return nil, fmt.Errorf("%w: %d G blocks, %d h blocks", lmisdp.ErrShapeMismatch, len(a.Gs), len(a.Hs))
	}
	return a, nil
}

func densesFromProto(field string, v *structpb.Value) ([]*mat.Dense, error) {
	values := v.GetListValue().GetValues()
	out := make([]*mat.Dense, len(values))
	for i, item := range values {
		f := item.GetStructValue().GetFields()
		r := int(f["rows"].GetNumberValue())
		c := int(f["cols"].GetNumberValue())
		data := f["data"].GetListValue().GetValues()
		if r <= 0 || c <= 0 || len(data) != r*c {
			return nil, fmt.Errorf("%s[%d]: %w: %dx%d with %d values", field, i, lmisdp.ErrShapeMismatch, r, c, len(data))
		}
		d := mat.NewDense(r, c, nil)
		for k, x := range data {
			d.Set(k%r, k/r, x.GetNumberValue())
		}
		out[i] = d
	}
	return out, nil
}
