// Package config loads SDP problems described in YAML files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/njchilds90/lmisdp"
)

// Problem is the file form of an SDP: a linear objective and a list of
// matrix constraints over named variables.
type Problem struct {
	// Variables fixes the variable order. Discovered and sorted by name
	// when empty.
	Variables []string `yaml:"variables,omitempty"`
	// Objective is an infix expression; empty means 0.
	Objective string `yaml:"objective"`
	// Direction is min, minimize, max or maximize.
	Direction       string       `yaml:"direction"`
	SplitDiagBlocks bool         `yaml:"split_diag_blocks"`
	Parallelism     int          `yaml:"parallelism"`
	Solver          SolverConfig `yaml:"solver"`
	Constraints     []Constraint `yaml:"constraints"`
}

// SolverConfig selects and tunes the SDP backend.
type SolverConfig struct {
	Backend string        `yaml:"backend"`
	Python  string        `yaml:"python,omitempty"`
	Timeout time.Duration `yaml:"timeout"`
	// Options are passed through to the backend.
	Options map[string]interface{} `yaml:"options,omitempty"`
}

// Constraint is LHS ∘ RHS. A missing RHS is the zero matrix.
type Constraint struct {
	Name string    `yaml:"name,omitempty"`
	Kind string    `yaml:"kind"`
	LHS  [][]Entry `yaml:"lhs"`
	RHS  [][]Entry `yaml:"rhs,omitempty"`
	// RHSIdentity sets RHS to this expression times the identity, as in
	// X >= t*I. It excludes RHS and needs a square LHS.
	RHSIdentity Entry `yaml:"rhs_identity,omitempty"`
}

// Entry is one matrix cell in infix syntax. YAML numbers are accepted
// verbatim, so 0.1 stays the exact decimal 1/10.
type Entry string

func (e *Entry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: matrix entry must be a scalar", node.Line)
	}
	*e = Entry(node.Value)
	return nil
}

// DefaultProblem returns the settings used for keys a file omits.
func DefaultProblem() *Problem {
	return &Problem{
		Direction:   "min",
		Parallelism: 1,
		Solver: SolverConfig{
			Backend: "cvxopt",
			Timeout: 2 * time.Minute,
		},
	}
}

// ExampleProblem is a small problem with two constraints, one of them
// block-diagonal.
func ExampleProblem() *Problem {
	p := DefaultProblem()
	p.Variables = []string{"x", "y", "z"}
	p.Objective = "1.2 + x - 3.4*y"
	p.Direction = "max"
	p.SplitDiagBlocks = true
	p.Constraints = []Constraint{
		{
			Name: "coupling",
			Kind: "psd",
			LHS:  [][]Entry{{"x", "y"}, {"y", "z + 1"}},
			RHS:  [][]Entry{{"0", "1"}, {"1", "2"}},
		},
		{
			Name: "bounds",
			Kind: "nsd",
			LHS:  [][]Entry{{"y", "0"}, {"0", "2*x"}},
			RHS:  [][]Entry{{"30", "0"}, {"0", "40"}},
		},
	}
	return p
}

// Validate checks the problem without parsing expressions.
func (p *Problem) Validate() error {
	if _, err := lmisdp.ParseDirection(p.Direction); err != nil {
		return err
	}
	if p.Parallelism < 0 {
		return fmt.Errorf("parallelism must be >= 0")
	}
	if p.Solver.Timeout < 0 {
		return fmt.Errorf("solver.timeout must be >= 0")
	}
	if len(p.Constraints) == 0 {
		return fmt.Errorf("at least one constraint is required")
	}
	seen := map[string]bool{}
	for _, v := range p.Variables {
		if v == "" {
			return fmt.Errorf("variables: empty name")
		}
		if seen[v] {
			return fmt.Errorf("variables: %w: %q", lmisdp.ErrDuplicateVariable, v)
		}
		seen[v] = true
	}
	for i, c := range p.Constraints {
		if err := c.validate(); err != nil {
			return fmt.Errorf("constraint %s: %w", c.label(i), err)
		}
	}
	return nil
}

func (c Constraint) label(i int) string {
	if c.Name != "" {
		return fmt.Sprintf("%d (%s)", i, c.Name)
	}
	return fmt.Sprint(i)
}

func (c Constraint) kind() (lmisdp.Kind, error) {
	if c.Kind == "" {
		return lmisdp.PSD, nil
	}
	return lmisdp.ParseKind(c.Kind)
}

func (c Constraint) validate() error {
	if _, err := c.kind(); err != nil {
		return err
	}
	r, cols, err := gridShape(c.LHS)
	if err != nil {
		return fmt.Errorf("lhs: %w", err)
	}
	if c.RHSIdentity != "" {
		if len(c.RHS) > 0 {
			return fmt.Errorf("rhs and rhs_identity are mutually exclusive")
		}
		if r != cols {
			return &lmisdp.NonSquareMatrixError{Rows: r, Cols: cols}
		}
		return nil
	}
	if len(c.RHS) == 0 {
		return nil
	}
	rr, rc, err := gridShape(c.RHS)
	if err != nil {
		return fmt.Errorf("rhs: %w", err)
	}
	if rr != r || rc != cols {
		return fmt.Errorf("%w: lhs is %dx%d, rhs is %dx%d", lmisdp.ErrShapeMismatch, r, cols, rr, rc)
	}
	return nil
}

func gridShape(grid [][]Entry) (int, int, error) {
	if len(grid) == 0 || len(grid[0]) == 0 {
		return 0, 0, lmisdp.ErrEmptyMatrix
	}
	cols := len(grid[0])
	for i, row := range grid {
		if len(row) != cols {
			return 0, 0, fmt.Errorf("%w: row %d has %d entries, want %d", lmisdp.ErrShapeMismatch, i, len(row), cols)
		}
	}
	return len(grid), cols, nil
}

func parseGrid(grid [][]Entry) (*lmisdp.Matrix, error) {
	rows := make([][]string, len(grid))
	for i, row := range grid {
		rows[i] = make([]string, len(row))
		for j, e := range row {
			rows[i][j] = string(e)
		}
	}
	return lmisdp.ParseMatrix(rows)
}

// Model is a problem with every expression parsed.
type Model struct {
	Objective   lmisdp.Expr
	Constraints []lmisdp.LMI
	Names       []string
	Vars        []*lmisdp.Sym
	Direction   lmisdp.Direction
	Problem     *Problem
}

// Build validates p and parses its expressions.
func (p *Problem) Build() (*Model, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	m := &Model{Problem: p, Objective: lmisdp.N(0)}
	m.Direction, _ = lmisdp.ParseDirection(p.Direction)
	if p.Objective != "" {
		obj, err := lmisdp.Parse(p.Objective)
		if err != nil {
			return nil, fmt.Errorf("objective: %w", err)
		}
		m.Objective = obj
	}
	for i, c := range p.Constraints {
		kind, _ := c.kind()
		lhs, err := parseGrid(c.LHS)
		if err != nil {
			return nil, fmt.Errorf("constraint %s: lhs: %w", c.label(i), err)
		}
		var rhs *lmisdp.Matrix
		switch {
		case c.RHSIdentity != "":
			scale, err := lmisdp.Parse(string(c.RHSIdentity))
			if err != nil {
				return nil, fmt.Errorf("constraint %s: rhs_identity: %w", c.label(i), err)
			}
			rhs = lmisdp.Identity(lhs.Rows()).Scale(scale)
		case len(c.RHS) > 0:
			if rhs, err = parseGrid(c.RHS); err != nil {
				return nil, fmt.Errorf("constraint %s: rhs: %w", c.label(i), err)
			}
		}
		rel, err := lmisdp.NewRelation(kind, lhs, rhs)
		if err != nil {
			return nil, fmt.Errorf("constraint %s: %w", c.label(i), err)
		}
		m.Constraints = append(m.Constraints, rel)
		m.Names = append(m.Names, c.Name)
	}
	if len(p.Variables) > 0 {
		m.Vars = lmisdp.Syms(p.Variables...)
	} else {
		m.Vars = lmisdp.Variables(m.Objective, m.Constraints...)
	}
	return m, nil
}

// PrepareOptions returns the preparation settings of the problem.
func (m *Model) PrepareOptions() []lmisdp.PrepareOption {
	return []lmisdp.PrepareOption{
		lmisdp.WithDiagBlocks(m.Problem.SplitDiagBlocks),
		lmisdp.WithParallelism(m.Problem.Parallelism),
	}
}

// Prepare runs the LMI preparation with the problem's settings.
func (m *Model) Prepare() ([]lmisdp.PreparedLMI, error) {
	return lmisdp.PrepareLMIs(m.Constraints, m.Vars, m.PrepareOptions()...)
}

// PrepareObjective returns the objective vector in minimization form.
func (m *Model) PrepareObjective() ([]float64, error) {
	return lmisdp.PrepareObjective(m.Objective, m.Vars, m.Direction)
}

// Parse decodes a problem from YAML on top of DefaultProblem. Unknown
// keys are rejected.
func Parse(data []byte) (*Problem, error) {
	p := DefaultProblem()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse problem: %w", err)
	}
	return p, nil
}

// LoadFromFile reads and parses a problem file.
func LoadFromFile(path string) (*Problem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read problem file: %w", err)
	}
	return Parse(data)
}

// SaveToFile writes p as YAML, creating parent directories.
func (p *Problem) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create problem directory: %w", err)
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal problem: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write problem file: %w", err)
	}
	return nil
}
