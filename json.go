package lmisdp

import (
	"encoding/json"
	"fmt"
	"math/big"

	"gonum.org/v1/gonum/mat"
)

// ============================================================
// JSON Serialization
// ============================================================

func ToJSON(e Expr) (string, error) {
	b, err := json.Marshal(e.toJSON())
	return string(b), err
}

// ToJSONValue returns the expression tree as plain maps, ready to be
// embedded in a larger JSON document.
func ToJSONValue(e Expr) map[string]interface{} { return e.toJSON() }

func FromJSON(data map[string]interface{}) (Expr, error) {
	if data == nil {
		return nil, fmt.Errorf("expression must be an object")
	}
	typAny, ok := data["type"]
	if !ok {
		return nil, fmt.Errorf("missing 'type' field")
	}
	typ, ok := typAny.(string)
	if !ok || typ == "" {
		return nil, fmt.Errorf("field 'type' must be a non-empty string")
	}

	subObj := func(field string) (map[string]interface{}, error) {
		v, ok := data[field]
		if !ok {
			return nil, fmt.Errorf("%s: missing %q", typ, field)
		}
		m, ok := v.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%s: %q must be an object", typ, field)
		}
		return m, nil
	}

	subExprs := func(field string) ([]Expr, error) {
		v, ok := data[field]
		if !ok {
			return nil, fmt.Errorf("%s: missing %q", typ, field)
		}
		raw, ok := v.([]interface{})
		if !ok {
			return nil, fmt.Errorf("%s: %q must be an array", typ, field)
		}
		out := make([]Expr, len(raw))
		for i, it := range raw {
			m, ok := it.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("%s: %q[%d] must be an object", typ, field, i)
			}
			e, err := FromJSON(m)
			if err != nil {
				return nil, fmt.Errorf("%s: %s[%d]: %w", typ, field, i, err)
			}
			out[i] = e
		}
		return out, nil
	}

	subString := func(field string) (string, error) {
		v, ok := data[field]
		if !ok {
			return "", fmt.Errorf("%s: missing %q", typ, field)
		}
		s, ok := v.(string)
		if !ok || s == "" {
			return "", fmt.Errorf("%s: %q must be a non-empty string", typ, field)
		}
		return s, nil
	}

	switch typ {
	case "num":
		val, err := subString("value")
		if err != nil {
			return nil, err
		}
		r := new(big.Rat)
		if _, ok := r.SetString(val); !ok {
			return nil, fmt.Errorf("invalid num value: %s", val)
		}
		return &Num{val: r}, nil

	case "sym":
		name, err := subString("name")
		if err != nil {
			return nil, err
		}
		return S(name), nil

	case "add":
		terms, err := subExprs("terms")
		if err != nil {
			return nil, err
		}
		return AddOf(terms...), nil

	case "mul":
		factors, err := subExprs("factors")
		if err != nil {
			return nil, err
		}
		return MulOf(factors...), nil

	case "pow":
		baseM, err := subObj("base")
		if err != nil {
			return nil, err
		}
		expM, err := subObj("exp")
		if err != nil {
			return nil, err
		}
		base, err := FromJSON(baseM)
		if err != nil {
			return nil, fmt.Errorf("pow: base: %w", err)
		}
		exp, err := FromJSON(expM)
		if err != nil {
			return nil, fmt.Errorf("pow: exp: %w", err)
		}
		return PowOf(base, exp), nil

	case "func":
		name, err := subString("name")
		if err != nil {
			return nil, err
		}
		argM, err := subObj("arg")
		if err != nil {
			return nil, err
		}
		arg, err := FromJSON(argM)
		if err != nil {
			return nil, fmt.Errorf("func: arg: %w", err)
		}
		return FuncOf(name, arg)
	}
	return nil, fmt.Errorf("unknown expression type: %s", typ)
}

// ExprFromValue decodes a JSON-decoded value: an expression object, an
// infix string, or a number.
func ExprFromValue(v interface{}) (Expr, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		return FromJSON(val)
	case string:
		return Parse(val)
	case float64:
		return NFloat(val), nil
	case int:
		return N(int64(val)), nil
	case json.Number:
		return Parse(val.String())
	}
	return nil, fmt.Errorf("expression must be an object, string or number, got %T", v)
}

// ============================================================
// Matrix JSON
// ============================================================

// MatrixToJSON encodes m as {rows, cols, entries} with entries in
// row-major order.
func MatrixToJSON(m *Matrix) map[string]interface{} {
	entries := make([]interface{}, 0, m.rows*m.cols)
	for _, row := range m.data {
		for _, e := range row {
			entries = append(entries, e.toJSON())
		}
	}
	return map[string]interface{}{"rows": m.rows, "cols": m.cols, "entries": entries}
}

// MatrixFromValue decodes either {rows, cols, entries:[...]} with
// row-major entries or a nested array of rows. Entries may be anything
// ExprFromValue accepts.
func MatrixFromValue(v interface{}) (*Matrix, error) {
	switch raw := v.(type) {
	case []interface{}:
		rows := make([][]Expr, len(raw))
		for i, r := range raw {
			cells, ok := r.([]interface{})
			if !ok {
				return nil, fmt.Errorf("matrix row %d must be an array", i)
			}
			rows[i] = make([]Expr, len(cells))
			for j, c := range cells {
				e, err := ExprFromValue(c)
				if err != nil {
					return nil, fmt.Errorf("matrix entry [%d,%d]: %w", i, j, err)
				}
				rows[i][j] = e
			}
		}
		return MatrixFromRows(rows)
	case map[string]interface{}:
		rowsF, ok := raw["rows"].(float64)
		if !ok {
			return nil, fmt.Errorf("matrix.rows must be a number")
		}
		colsF, ok := raw["cols"].(float64)
		if !ok {
			return nil, fmt.Errorf("matrix.cols must be a number")
		}
		rows, cols := int(rowsF), int(colsF)
		if rows <= 0 || cols <= 0 {
			return nil, fmt.Errorf("matrix dimensions must be positive")
		}
		entriesRaw, ok := raw["entries"].([]interface{})
		if !ok {
			return nil, fmt.Errorf("matrix.entries must be an array")
		}
		if len(entriesRaw) != rows*cols {
			return nil, fmt.Errorf("%w: matrix has %d entries, want %d", ErrShapeMismatch, len(entriesRaw), rows*cols)
		}
		entries := make([]Expr, rows*cols)
		for i, er := range entriesRaw {
			e, err := ExprFromValue(er)
			if err != nil {
				return nil, fmt.Errorf("matrix entry %d: %w", i, err)
			}
			entries[i] = e
		}
		return MatrixFromSlice(rows, cols, entries), nil
	}
	return nil, fmt.Errorf("matrix must be an object or an array of rows, got %T", v)
}

// LMIFromValue decodes a constraint: {kind, lhs, rhs?} for a relation,
// or any matrix encoding for a bare M ⪰ 0.
func LMIFromValue(v interface{}) (LMI, error) {
	raw, isObj := v.(map[string]interface{})
	kindAny, hasKind := raw["kind"]
	if !isObj || !hasKind {
		m, err := MatrixFromValue(v)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	kindStr, ok := kindAny.(string)
	if !ok {
		return nil, fmt.Errorf("constraint kind must be a string")
	}
	kind, err := ParseKind(kindStr)
	if err != nil {
		return nil, err
	}
	lhs, err := MatrixFromValue(raw["lhs"])
	if err != nil {
		return nil, fmt.Errorf("lhs: %w", err)
	}
	var rhs *Matrix
	if r, ok := raw["rhs"]; ok && r != nil {
		if rhs, err = MatrixFromValue(r); err != nil {
			return nil, fmt.Errorf("rhs: %w", err)
		}
	}
	rel, err := NewRelation(kind, lhs, rhs)
	if err != nil {
		return nil, err
	}
	return rel, nil
}

// DenseToRows converts a numeric matrix to nested rows for JSON output.
func DenseToRows(d mat.Matrix) [][]float64 {
	r, c := d.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = make([]float64, c)
		for j := range out[i] {
			out[i][j] = d.At(i, j)
		}
	}
	return out
}

// PreparedToJSON encodes prepared blocks as {"coeffs": [...], "const": ...}
// with nested-row matrices.
func PreparedToJSON(prepared []PreparedLMI) []map[string]interface{} {
	out := make([]map[string]interface{}, len(prepared))
	for i, p := range prepared {
		coeffs := make([][][]float64, len(p.Coeffs))
		for k, c := range p.Coeffs {
			coeffs[k] = DenseToRows(c)
		}
		out[i] = map[string]interface{}{"coeffs": coeffs, "const": DenseToRows(p.Const)}
	}
	return out
}
