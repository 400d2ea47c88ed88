package lmisdp

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ============================================================
// MCP Tool Interface
// ============================================================

// Params holds the decoded JSON parameters of a tool call.
type Params map[string]interface{}

type ToolRequest struct {
	Tool   string `json:"tool"`
	Params Params `json:"params"`
}

type ToolResponse struct {
	Result interface{} `json:"result,omitempty"`
	LaTeX  string      `json:"latex,omitempty"`
	String string      `json:"string,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// ErrorResponse wraps err as a tool response.
func ErrorResponse(err error) ToolResponse { return ToolResponse{Error: err.Error()} }

func (p Params) Has(key string) bool {
	v, ok := p[key]
	return ok && v != nil
}

func (p Params) get(key string) (interface{}, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, fmt.Errorf("missing param: %s", key)
	}
	return v, nil
}

// Expr decodes an expression object, infix string or number.
func (p Params) Expr(key string) (Expr, error) {
	v, err := p.get(key)
	if err != nil {
		return nil, err
	}
	e, err := ExprFromValue(v)
	if err != nil {
		return nil, fmt.Errorf("param %s: %w", key, err)
	}
	return e, nil
}

func (p Params) Matrix(key string) (*Matrix, error) {
	v, err := p.get(key)
	if err != nil {
		return nil, err
	}
	m, err := MatrixFromValue(v)
	if err != nil {
		return nil, fmt.Errorf("param %s: %w", key, err)
	}
	return m, nil
}

// LMIs decodes an array of constraints. A single constraint object is
// accepted as a one-element list.
func (p Params) LMIs(key string) ([]LMI, error) {
	v, err := p.get(key)
	if err != nil {
		return nil, err
	}
	raw, ok := v.([]interface{})
	if !ok || isRowArray(raw) {
		lmi, err := LMIFromValue(v)
		if err != nil {
			return nil, fmt.Errorf("param %s: %w", key, err)
		}
		return []LMI{lmi}, nil
	}
	out := make([]LMI, len(raw))
	for i, r := range raw {
		lmi, err := LMIFromValue(r)
		if err != nil {
			return nil, fmt.Errorf("param %s[%d]: %w", key, i, err)
		}
		out[i] = lmi
	}
	return out, nil
}

// isRowArray reports whether raw is a nested-row matrix rather than a
// list of constraints.
func isRowArray(raw []interface{}) bool {
	if len(raw) == 0 {
		return false
	}
	row, ok := raw[0].([]interface{})
	if !ok || len(row) == 0 {
		return false
	}
	_, nested := row[0].([]interface{})
	return !nested
}

// Variables decodes an ordered list of variable names.
func (p Params) Variables(key string) ([]*Sym, error) {
	v, err := p.get(key)
	if err != nil {
		return nil, err
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("param %s must be array", key)
	}
	names := make([]string, len(raw))
	for i, r := range raw {
		s, ok := r.(string)
		if !ok || s == "" {
			return nil, fmt.Errorf("param %s[%d] must be a non-empty string", key, i)
		}
		names[i] = s
	}
	return Syms(names...), nil
}

func (p Params) String(key string) (string, error) {
	v, err := p.get(key)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("param %s must be a string", key)
	}
	return s, nil
}

// Bool returns def when key is absent.
func (p Params) Bool(key string, def bool) (bool, error) {
	if !p.Has(key) {
		return def, nil
	}
	b, ok := p[key].(bool)
	if !ok {
		return false, fmt.Errorf("param %s must be a boolean", key)
	}
	return b, nil
}

// Int returns def when key is absent.
func (p Params) Int(key string, def int) (int, error) {
	if !p.Has(key) {
		return def, nil
	}
	f, ok := p[key].(float64)
	if !ok || f != float64(int(f)) {
		return 0, fmt.Errorf("param %s must be an integer", key)
	}
	return int(f), nil
}

// VariablesOr decodes key if present, otherwise discovers the variables
// of the given objective and constraints.
func (p Params) VariablesOr(key string, objective Expr, lmis ...LMI) ([]*Sym, error) {
	if p.Has(key) {
		return p.Variables(key)
	}
	return Variables(objective, lmis...), nil
}

func symNames(vars []*Sym) []string {
	names := make([]string, len(vars))
	for i, v := range vars {
		names[i] = v.name
	}
	return names
}

// SymNames returns the names of vars in order.
func SymNames(vars []*Sym) []string { return symNames(vars) }

func HandleToolCall(req ToolRequest) ToolResponse {
	p := req.Params
	respond := func(e Expr) ToolResponse {
		return ToolResponse{Result: e.toJSON(), LaTeX: LaTeX(e), String: String(e)}
	}
	respondMatrix := func(m *Matrix) ToolResponse {
		return ToolResponse{Result: MatrixToJSON(m), LaTeX: m.LaTeX(), String: m.String()}
	}

	switch req.Tool {
	case "parse":
		s, err := p.String("input")
		if err != nil {
			return ErrorResponse(err)
		}
		e, err := Parse(s)
		if err != nil {
			return ErrorResponse(err)
		}
		return respond(e)

	case "simplify":
		e, err := p.Expr("expr")
		if err != nil {
			return ErrorResponse(err)
		}
		return respond(Simplify(e))

	case "expand":
		e, err := p.Expr("expr")
		if err != nil {
			return ErrorResponse(err)
		}
		return respond(Expand(e))

	case "to_latex":
		e, err := p.Expr("expr")
		if err != nil {
			return ErrorResponse(err)
		}
		return ToolResponse{Result: LaTeX(e), LaTeX: LaTeX(e), String: String(e)}

	case "free_symbols":
		e, err := p.Expr("expr")
		if err != nil {
			return ErrorResponse(err)
		}
		names := symNames(SortedSymbols(e))
		return ToolResponse{Result: names, String: strings.Join(names, ", ")}

	case "linear_coeffs":
		e, err := p.Expr("expr")
		if err != nil {
			return ErrorResponse(err)
		}
		vars, err := p.VariablesOr("vars", e)
		if err != nil {
			return ErrorResponse(err)
		}
		coeffs, c, err := LinearCoeffs(e, vars)
		if err != nil {
			return ErrorResponse(err)
		}
		return ToolResponse{
			Result: map[string]interface{}{"coeffs": coeffs, "const": c, "vars": symNames(vars)},
			String: fmt.Sprintf("coeffs=%v const=%v", coeffs, c),
		}

	case "matrix_coeffs":
		m, err := p.Matrix("matrix")
		if err != nil {
			return ErrorResponse(err)
		}
		vars, err := p.VariablesOr("vars", nil, m)
		if err != nil {
			return ErrorResponse(err)
		}
		coeffs, c, err := MatrixCoeffs(m, vars)
		if err != nil {
			return ErrorResponse(err)
		}
		prepared := PreparedToJSON([]PreparedLMI{{Coeffs: coeffs, Const: c}})[0]
		prepared["vars"] = symNames(vars)
		return ToolResponse{Result: prepared, String: m.String()}

	case "split_blocks":
		m, err := p.Matrix("matrix")
		if err != nil {
			return ErrorResponse(err)
		}
		bounds, err := DiagBlockIndexes(m)
		if err != nil {
			return ErrorResponse(err)
		}
		blocks, err := SplitByDiagBlocks(m)
		if err != nil {
			return ErrorResponse(err)
		}
		encoded := make([]interface{}, len(blocks))
		strs := make([]string, len(blocks))
		for i, b := range blocks {
			encoded[i] = MatrixToJSON(b)
			strs[i] = b.String()
		}
		return ToolResponse{
			Result: map[string]interface{}{"bounds": bounds, "blocks": encoded},
			String: strings.Join(strs, "; "),
		}

	case "prepare_lmi":
		lmis, err := p.LMIs("lmis")
		if err != nil {
			return ErrorResponse(err)
		}
		vars, err := p.VariablesOr("vars", nil, lmis...)
		if err != nil {
			return ErrorResponse(err)
		}
		split, err := p.Bool("split_blocks", false)
		if err != nil {
			return ErrorResponse(err)
		}
		prepared, err := PrepareLMIs(lmis, vars, WithDiagBlocks(split))
		if err != nil {
			return ErrorResponse(err)
		}
		return ToolResponse{
			Result: map[string]interface{}{"blocks": PreparedToJSON(prepared), "vars": symNames(vars)},
			String: fmt.Sprintf("%d blocks over %d variables", len(prepared), len(vars)),
		}

	case "prepare_objective":
		e, err := p.Expr("expr")
		if err != nil {
			return ErrorResponse(err)
		}
		vars, err := p.VariablesOr("vars", e)
		if err != nil {
			return ErrorResponse(err)
		}
		dirStr := "min"
		if p.Has("direction") {
			if dirStr, err = p.String("direction"); err != nil {
				return ErrorResponse(err)
			}
		}
		dir, err := ParseDirection(dirStr)
		if err != nil {
			return ErrorResponse(err)
		}
		c, err := PrepareObjective(e, vars, dir)
		if err != nil {
			return ErrorResponse(err)
		}
		return ToolResponse{
			Result: map[string]interface{}{"c": c, "vars": symNames(vars)},
			String: fmt.Sprintf("%v", c),
		}

	case "variables":
		var obj Expr
		if p.Has("objective") {
			e, err := p.Expr("objective")
			if err != nil {
				return ErrorResponse(err)
			}
			obj = e
		}
		var lmis []LMI
		if p.Has("lmis") {
			l, err := p.LMIs("lmis")
			if err != nil {
				return ErrorResponse(err)
			}
			lmis = l
		}
		names := symNames(Variables(obj, lmis...))
		return ToolResponse{Result: names, String: strings.Join(names, ", ")}

	case "substitute":
		v, err := p.String("var")
		if err != nil {
			return ErrorResponse(err)
		}
		val, err := p.Expr("value")
		if err != nil {
			return ErrorResponse(err)
		}
		if p.Has("matrix") {
			m, err := p.Matrix("matrix")
			if err != nil {
				return ErrorResponse(err)
			}
			return respondMatrix(m.ApplySub(v, val))
		}
		e, err := p.Expr("expr")
		if err != nil {
			return ErrorResponse(err)
		}
		return respond(Sub(e, v, val))

	case "matrix_latex":
		m, err := p.Matrix("matrix")
		if err != nil {
			return ErrorResponse(err)
		}
		return respondMatrix(m)

	case "mcp_spec":
		return ToolResponse{Result: MCPToolSpec(), String: "MCP tool specification"}
	}

	return ToolResponse{Error: fmt.Sprintf("unknown tool: %s", req.Tool)}
}

// ============================================================
// MCP spec
// ============================================================

const (
	descExpr   = "expression object, infix string or number"
	descMatrix = "{rows,cols,entries:[...]} or nested rows"
	descLMIs   = "array of {kind:psd|pd|nsd|nd, lhs, rhs?} or bare matrices (M >= 0)"
	descVars   = "ordered variable names; discovered and sorted when omitted"
)

// CoreToolSpecs lists the schemas of the tools HandleToolCall serves.
func CoreToolSpecs() []map[string]interface{} {
	return []map[string]interface{}{
		ToolSchema("parse", "Parse an infix expression", []string{"input"}, map[string]string{"input": "string"}),
		ToolSchema("simplify", "Simplify a symbolic expression", []string{"expr"}, map[string]string{"expr": descExpr}),
		ToolSchema("expand", "Algebraically expand expression", []string{"expr"}, map[string]string{"expr": descExpr}),
		ToolSchema("to_latex", "Convert to LaTeX", []string{"expr"}, map[string]string{"expr": descExpr}),
		ToolSchema("free_symbols", "Return free symbol names, sorted", []string{"expr"}, map[string]string{"expr": descExpr}),
		ToolSchema("substitute", "Substitute var with value in expr, or in every entry of matrix", []string{"var", "value"}, map[string]string{"expr": descExpr, "matrix": descMatrix, "var": "string", "value": descExpr}),
		ToolSchema("linear_coeffs", "Coefficients and constant of an affine expression", []string{"expr"}, map[string]string{"expr": descExpr, "vars": descVars}),
		ToolSchema("matrix_coeffs", "Per-variable coefficient matrices and constant matrix of an affine matrix", []string{"matrix"}, map[string]string{"matrix": descMatrix, "vars": descVars}),
		ToolSchema("split_blocks", "Split a square matrix into its diagonal blocks", []string{"matrix"}, map[string]string{"matrix": descMatrix}),
		ToolSchema("prepare_lmi", "Prepare LMIs for an SDP solver. Optional: split_blocks (bool)", []string{"lmis"}, map[string]string{"lmis": descLMIs, "vars": descVars, "split_blocks": "boolean"}),
		ToolSchema("prepare_objective", "Objective coefficient vector; direction min|max (default min)", []string{"expr"}, map[string]string{"expr": descExpr, "vars": descVars, "direction": "string"}),
		ToolSchema("variables", "Free variables of an objective and constraints, sorted", []string{}, map[string]string{"objective": descExpr, "lmis": descLMIs}),
		ToolSchema("matrix_latex", "Render a symbolic matrix", []string{"matrix"}, map[string]string{"matrix": descMatrix}),
		ToolSchema("mcp_spec", "Return this tool schema", []string{}, map[string]string{}),
	}
}

// MCPToolSpec renders the core tool schemas plus any extra ones.
func MCPToolSpec(extra ...map[string]interface{}) string {
	tools := append(CoreToolSpecs(), extra...)
	spec := map[string]interface{}{"tools": tools}
	b, _ := json.MarshalIndent(spec, "", "  ")
	return string(b)
}

// ToolSchema builds one tool entry. props maps a parameter name to its
// JSON type, or to a short description for polymorphic parameters.
func ToolSchema(name, description string, required []string, props map[string]string) map[string]interface{} {
	properties := map[string]interface{}{}
	for k, typ := range props {
		switch typ {
		case "string", "number", "integer", "boolean", "object", "array":
			properties[k] = map[string]interface{}{"type": typ}
		default:
			properties[k] = map[string]interface{}{"description": typ}
		}
	}
	return map[string]interface{}{
		"name":        name,
		"description": description,
		"inputSchema": map[string]interface{}{
			"type":       "object",
			"properties": properties,
			"required":   required,
		},
	}
}
