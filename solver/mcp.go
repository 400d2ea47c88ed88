package solver

import (
	"context"
	"fmt"
	"time"

	"github.com/njchilds90/lmisdp"
)

// ToolTimeout bounds backend work started from a tool call.
var ToolTimeout = 2 * time.Minute

// ToolSpecs lists the schemas of the tools HandleToolCall serves.
func ToolSpecs() []map[string]interface{} {
	props := map[string]string{
		"objective":    "objective expression; infix string or expression object",
		"lmis":         "array of {kind:psd|pd|nsd|nd, lhs, rhs?} or bare matrices (M >= 0)",
		"vars":         "ordered variable names; discovered and sorted when omitted",
		"direction":    "string",
		"split_blocks": "boolean",
	}
	solveProps := map[string]string{"backend": "string"}
	for k, v := range props {
		solveProps[k] = v
	}
	return []map[string]interface{}{
		lmisdp.ToolSchema("to_cvxopt", "cvxopt solvers.sdp arrays (c, Gs, hs); fails when cvxopt is unavailable", []string{"objective", "lmis"}, props),
		lmisdp.ToolSchema("layout", "Same as to_cvxopt without the solver availability check", []string{"objective", "lmis"}, props),
		lmisdp.ToolSchema("solve", "Solve the SDP with a registered backend (default cvxopt)", []string{"objective", "lmis"}, solveProps),
		lmisdp.ToolSchema("backends", "List registered solver backends", []string{}, map[string]string{}),
	}
}

// HandleToolCall serves the solver tools. The second result is false
// when req.Tool is not a solver tool.
func HandleToolCall(ctx context.Context, req lmisdp.ToolRequest) (lmisdp.ToolResponse, bool) {
	switch req.Tool {
	case "to_cvxopt", "layout", "solve":
	case "backends":
		return lmisdp.ToolResponse{Result: Backends()}, true
	default:
		return lmisdp.ToolResponse{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, ToolTimeout)
	defer cancel()

	p := req.Params
	obj, err := p.Expr("objective")
	if err != nil {
		return lmisdp.ErrorResponse(err), true
	}
	lmis, err := p.LMIs("lmis")
	if err != nil {
		return lmisdp.ErrorResponse(err), true
	}
	vars, err := p.VariablesOr("vars", obj, lmis...)
	if err != nil {
		return lmisdp.ErrorResponse(err), true
	}
	dirStr := "min"
	if p.Has("direction") {
		if dirStr, err = p.String("direction"); err != nil {
			return lmisdp.ErrorResponse(err), true
		}
	}
	dir, err := lmisdp.ParseDirection(dirStr)
	if err != nil {
		return lmisdp.ErrorResponse(err), true
	}
	split, err := p.Bool("split_blocks", false)
	if err != nil {
		return lmisdp.ErrorResponse(err), true
	}

	var a *Arrays
	if req.Tool == "to_cvxopt" {
		a, err = ToCVXOPT(ctx, obj, lmis, vars, dir, lmisdp.WithDiagBlocks(split))
	} else {
		a, err = Layout(obj, lmis, vars, dir, lmisdp.WithDiagBlocks(split))
	}
	if err != nil {
		return lmisdp.ErrorResponse(err), true
	}
	if req.Tool != "solve" {
		return lmisdp.ToolResponse{
			Result: a.Export(),
			String: fmt.Sprintf("%d variables, %d blocks", a.C.Len(), len(a.Gs)),
		}, true
	}

	backend := CVXOPTName
	if p.Has("backend") {
		if backend, err = p.String("backend"); err != nil {
			return lmisdp.ErrorResponse(err), true
		}
	}
	sol, err := Solve(ctx, backend, a)
	if err != nil {
		return lmisdp.ErrorResponse(err), true
	}
	sol.Orient(dir)
	return lmisdp.ToolResponse{
		Result: map[string]interface{}{"solution": sol, "values": sol.Values(a.Vars)},
		String: fmt.Sprintf("%s: %v", sol.Status, sol.X),
	}, true
}
