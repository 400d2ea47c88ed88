package solver_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/njchilds90/lmisdp"
	"github.com/njchilds90/lmisdp/solver"
)

type fakeBackend struct {
	availErr error
	solveErr error
	sol      solver.Solution
	got      *solver.Arrays
}

func (f *fakeBackend) Available(context.Context) error { return f.availErr }

func (f *fakeBackend) Solve(_ context.Context, a *solver.Arrays) (*solver.Solution, error) {
	f.got = a
	if f.solveErr != nil {
		return nil, f.solveErr
	}
	sol := f.sol
	return &sol, nil
}

// install registers b under name for the duration of the test.
func install(t *testing.T, name string, b solver.Backend) {
	t.Helper()
	prev := solver.Register(name, b)
	t.Cleanup(func() { solver.Register(name, prev) })
}

func TestToCVXOPT_NotRegistered(t *testing.T) {
	install(t, solver.CVXOPTName, nil)
	obj, lmis, vars := exampleProblem(t)

	_, err := solver.ToCVXOPT(context.Background(), obj, lmis, vars, lmisdp.Maximize)
	require.Error(t, err)
	assert.ErrorIs(t, err, solver.ErrUnavailable)
	assert.ErrorIs(t, err, solver.ErrNotRegistered)

	var ue *solver.UnavailableError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "ToCVXOPT", ue.Func)
	assert.Equal(t, solver.CVXOPTName, ue.Backend)
	assert.Contains(t, err.Error(), "function ToCVXOPT not available since cvxopt backend was not found")
}

func TestToCVXOPT_BackendCannotRun(t *testing.T) {
	missing := errors.New("no module named cvxopt")
	install(t, solver.CVXOPTName, &fakeBackend{availErr: missing})
	obj, lmis, vars := exampleProblem(t)

	_, err := solver.ToCVXOPT(context.Background(), obj, lmis, vars, lmisdp.Maximize)
	assert.ErrorIs(t, err, solver.ErrUnavailable)
	assert.ErrorIs(t, err, missing)
}

func TestToCVXOPT_Available(t *testing.T) {
	install(t, solver.CVXOPTName, &fakeBackend{})
	obj, lmis, vars := exampleProblem(t)

	got, err := solver.ToCVXOPT(context.Background(), obj, lmis, vars, lmisdp.Maximize, lmisdp.WithDiagBlocks(true))
	require.NoError(t, err)
	want, err := solver.Layout(obj, lmis, vars, lmisdp.Maximize, lmisdp.WithDiagBlocks(true))
	require.NoError(t, err)
	assert.Equal(t, want.Export(), got.Export())
}

func TestSolve(t *testing.T) {
	fake := &fakeBackend{sol: solver.Solution{Status: "optimal", X: []float64{1, 2}, PrimalObjective: -3, Iterations: 7}}
	install(t, "fake", fake)
	a, err := solver.FromPrepared([]float64{1, 1}, nil)
	require.NoError(t, err)

	sol, err := solver.Solve(context.Background(), "fake", a)
	require.NoError(t, err)
	assert.Same(t, a, fake.got)
	assert.True(t, sol.Optimal())
	assert.Equal(t, map[string]float64{"p": 1, "q": 2}, sol.Values([]string{"p", "q"}))

	sol.Orient(lmisdp.Maximize)
	assert.Equal(t, 3.0, sol.PrimalObjective)
}

func TestSolve_Errors(t *testing.T) {
	a, err := solver.FromPrepared([]float64{1}, nil)
	require.NoError(t, err)

	_, err = solver.Solve(context.Background(), "nope", a)
	assert.ErrorIs(t, err, solver.ErrNotRegistered)

	boom := errors.New("boom")
	install(t, "broken", &fakeBackend{solveErr: boom})
	_, err = solver.Solve(context.Background(), "broken", a)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, solver.ErrUnavailable)
}

func TestRegistry(t *testing.T) {
	b := &fakeBackend{}
	install(t, "zz-test", b)
	assert.Contains(t, solver.Backends(), "zz-test")
	assert.Contains(t, solver.Backends(), solver.CVXOPTName)

	got, ok := solver.Lookup("zz-test")
	require.True(t, ok)
	assert.Same(t, b, got)

	prev := solver.Register("zz-test", nil)
	assert.Same(t, b, prev)
	_, ok = solver.Lookup("zz-test")
	assert.False(t, ok)
}

func TestSolution_ValuesShortX(t *testing.T) {
	sol := &solver.Solution{X: []float64{4}}
	assert.Equal(t, map[string]float64{"a": 4}, sol.Values([]string{"a", "b"}))
}

func TestCVXOPT_MissingInterpreter(t *testing.T) {
	b := &solver.CVXOPT{Python: "lmisdp-no-such-python"}
	assert.Error(t, b.Available(context.Background()))
}

// Runs only where python3 with cvxopt is installed.
func TestCVXOPT_Solve(t *testing.T) {
	b := solver.NewCVXOPT()
	if err := b.Available(context.Background()); err != nil {
		t.Skipf("cvxopt not available: %v", err)
	}
	// maximize x subject to [[1 - x]] >= 0
	m := matrix(t, []string{"1 - x"})
	a, err := solver.Layout(lmisdp.S("x"), []lmisdp.LMI{m}, lmisdp.Syms("x"), lmisdp.Maximize)
	require.NoError(t, err)

	sol, err := b.Solve(context.Background(), a)
	require.NoError(t, err)
	require.True(t, sol.Optimal(), "status %s", sol.Status)
	assert.InDelta(t, 1, sol.X[0], 1e-6)
}

func call(t *testing.T, body string) (lmisdp.ToolResponse, bool) {
	t.Helper()
	var req lmisdp.ToolRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	return solver.HandleToolCall(context.Background(), req)
}

func TestHandleToolCall_Layout(t *testing.T) {
	resp, ok := call(t, `{"tool":"layout","params":{
		"objective":"1.2 + x - 3.4*y",
		"lmis":[{"kind":"nsd","lhs":[["y","0"],["0","2*x"]],"rhs":[["30","0"],["0","40"]]}],
		"vars":["x","y","z"],
		"direction":"max",
		"split_blocks":true}}`)
	require.True(t, ok)
	require.Empty(t, resp.Error)
	e := resp.Result.(solver.Export)
	assert.Equal(t, []float64{-1, 3.4, 0}, e.C)
	assert.Len(t, e.Gs, 2)
	assert.Equal(t, "3 variables, 2 blocks", resp.String)
}

func TestHandleToolCall_ToCVXOPTUnavailable(t *testing.T) {
	install(t, solver.CVXOPTName, nil)
	resp, ok := call(t, `{"tool":"to_cvxopt","params":{"objective":"x","lmis":[["x"]]}}`)
	require.True(t, ok)
	assert.Contains(t, resp.Error, "not available")
}

func TestHandleToolCall_Solve(t *testing.T) {
	install(t, "fake", &fakeBackend{sol: solver.Solution{Status: "optimal", X: []float64{1}, PrimalObjective: -1}})
	resp, ok := call(t, `{"tool":"solve","params":{"objective":"x","lmis":[["1 - x"]],"direction":"max","backend":"fake"}}`)
	require.True(t, ok)
	require.Empty(t, resp.Error)

	result := resp.Result.(map[string]interface{})
	sol := result["solution"].(*solver.Solution)
	assert.Equal(t, 1.0, sol.PrimalObjective)
	assert.Equal(t, map[string]float64{"x": 1}, result["values"])
}

func TestHandleToolCall_Routing(t *testing.T) {
	_, ok := call(t, `{"tool":"parse","params":{"input":"x"}}`)
	assert.False(t, ok)

	resp, ok := call(t, `{"tool":"backends","params":{}}`)
	require.True(t, ok)
	assert.Contains(t, resp.Result, solver.CVXOPTName)

	resp, ok = call(t, `{"tool":"layout","params":{"objective":"x"}}`)
	require.True(t, ok)
	assert.Contains(t, resp.Error, "missing param: lmis")
}
