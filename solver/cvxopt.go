package solver

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// CVXOPTName is the registry name of the bundled cvxopt backend.
const CVXOPTName = "cvxopt"

// PythonEnv overrides the interpreter used by the cvxopt backend.
const PythonEnv = "LMISDP_PYTHON"

//go:embed cvxopt_sdp.py
var cvxoptScript string

func init() {
	Register(CVXOPTName, NewCVXOPT())
}

// CVXOPT runs cvxopt's solvers.sdp in a Python subprocess.
type CVXOPT struct {
	// Python is the interpreter to run.
	Python string
	// Options are copied into cvxopt.solvers.options.
	Options map[string]interface{}
}

// NewCVXOPT uses $LMISDP_PYTHON, or python3 when unset.
func NewCVXOPT() *CVXOPT {
	python := os.Getenv(PythonEnv)
	if python == "" {
		python = "python3"
	}
	return &CVXOPT{Python: python}
}

// Available checks that the interpreter exists and can import cvxopt.
func (c *CVXOPT) Available(ctx context.Context) error {
	path, err := exec.LookPath(c.Python)
	if err != nil {
		return err
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, "-c", "import cvxopt")
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("cvxopt package not found by %s: %w: %s", path, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

type cvxoptRequest struct {
	Export
	Options map[string]interface{} `json:"options,omitempty"`
}

type cvxoptResponse struct {
	Status          string    `json:"status"`
	X               []float64 `json:"x"`
	PrimalObjective *float64  `json:"primal_objective"`
	DualObjective   *float64  `json:"dual_objective"`
	Gap             *float64  `json:"gap"`
	Iterations      int       `json:"iterations"`
}

// The script reports non-finite numbers as null.
func orZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func (r *cvxoptResponse) solution() *Solution {
	return &Solution{
		Status:          r.Status,
		X:               r.X,
		PrimalObjective: orZero(r.PrimalObjective),
		DualObjective:   orZero(r.DualObjective),
		Gap:             orZero(r.Gap),
		Iterations:      r.Iterations,
	}
}

// Solve pipes the arrays to the embedded script and decodes its answer.
func (c *CVXOPT) Solve(ctx context.Context, a *Arrays) (*Solution, error) {
	payload, err := json.Marshal(cvxoptRequest{Export: a.Export(), Options: c.Options})
	if err != nil {
		return nil, err
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Python, "-c", cvxoptScript)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("cvxopt: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	var resp cvxoptResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("cvxopt: decode result: %w", err)
	}
	return resp.solution(), nil
}
