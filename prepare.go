package lmisdp

import (
	"fmt"
	"strings"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// ============================================================
// SDP preparation
// ============================================================

// PreparedLMI is one block constraint Const + Σ xᵢ·Coeffs[i] ⪰ 0.
type PreparedLMI struct {
	Coeffs []*mat.Dense
	Const  *mat.Dense
}

// Size returns the block dimension.
func (p PreparedLMI) Size() int {
	r, _ := p.Const.Dims()
	return r
}

// Symbolic rebuilds the block as a symbolic matrix over vars.
func (p PreparedLMI) Symbolic(vars []*Sym) (*Matrix, error) {
	return CoeffsToMatrix(p.Coeffs, p.Const, vars)
}

type prepareConfig struct {
	diagBlocks  bool
	parallelism int
}

// PrepareOption configures PrepareLMIs.
type PrepareOption func(*prepareConfig)

// WithDiagBlocks splits every constraint into its independent diagonal
// blocks before extraction.
func WithDiagBlocks(split bool) PrepareOption {
	return func(c *prepareConfig) { c.diagBlocks = split }
}

// WithParallelism extracts up to n blocks concurrently. n <= 1 runs
// sequentially.
func WithParallelism(n int) PrepareOption {
	return func(c *prepareConfig) { c.parallelism = n }
}

// PrepareLMIs turns each constraint's greater side into numeric
// coefficient and constant matrices. Results follow input order and,
// within a split constraint, block order.
func PrepareLMIs(lmis []LMI, vars []*Sym, opts ...PrepareOption) ([]PreparedLMI, error) {
	cfg := prepareConfig{parallelism: 1}
	for _, opt := range opts {
		opt(&cfg)
	}
	if _, err := variableIndex(vars); err != nil {
		return nil, err
	}

	var blocks []*Matrix
	for i, lmi := range lmis {
		if lmi == nil {
			return nil, fmt.Errorf("%w: constraint %d is nil", ErrEmptyMatrix, i)
		}
		gts := lmi.GreaterSide()
		if gts == nil {
			return nil, fmt.Errorf("%w: constraint %d has no matrix", ErrEmptyMatrix, i)
		}
		if !cfg.diagBlocks {
			blocks = append(blocks, gts)
			continue
		}
		parts, err := SplitByDiagBlocks(gts)
		if err != nil {
			return nil, fmt.Errorf("constraint %d: %w", i, err)
		}
		if glog.V(2) {
			glog.Infof("lmisdp: constraint %d (%dx%d) split into %d blocks", i, gts.rows, gts.cols, len(parts))
		}
		blocks = append(blocks, parts...)
	}

	prepared := make([]PreparedLMI, len(blocks))
	extract := func(k int) error {
		coeffs, constant, err := matrixCoeffs("PrepareLMIs", blocks[k], vars)
		if err != nil {
			return err
		}
		prepared[k] = PreparedLMI{Coeffs: coeffs, Const: constant}
		return nil
	}

	if cfg.parallelism <= 1 {
		for k := range blocks {
			if err := extract(k); err != nil {
				return nil, err
			}
		}
	} else {
		var g errgroup.Group
		g.SetLimit(cfg.parallelism)
		for k := range blocks {
			k := k
			g.Go(func() error { return extract(k) })
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	glog.V(1).Infof("lmisdp: prepared %d constraints into %d blocks over %d variables", len(lmis), len(prepared), len(vars))
	return prepared, nil
}

// PrepareLMI is PrepareLMIs for a single constraint.
func PrepareLMI(lmi LMI, vars []*Sym, opts ...PrepareOption) ([]PreparedLMI, error) {
	return PrepareLMIs([]LMI{lmi}, vars, opts...)
}

// Direction is the sense of optimization.
type Direction int

const (
	Minimize Direction = iota
	Maximize
)

func (d Direction) String() string {
	switch d {
	case Minimize:
		return "min"
	case Maximize:
		return "max"
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

// ParseDirection accepts "min", "minimize", "max" and "maximize" in any
// case.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "min", "minimize":
		return Minimize, nil
	case "max", "maximize":
		return Maximize, nil
	}
	return 0, &InvalidDirectionError{Value: s}
}

// PrepareObjective returns the objective's coefficients over vars in
// minimization form: a maximized objective is negated first. The
// objective's constant term is discarded.
func PrepareObjective(obj Expr, vars []*Sym, dir Direction) ([]float64, error) {
	if obj == nil {
		obj = N(0)
	}
	switch dir {
	case Minimize:
	case Maximize:
		obj = Neg(obj)
	default:
		return nil, &InvalidDirectionError{Value: dir.String()}
	}
	coeffs, _, err := LinearCoeffs(obj, vars)
	if err != nil {
		return nil, err
	}
	return coeffs, nil
}

// Variables returns every free symbol of the objective and the
// constraints' greater sides, ordered by name. A nil objective is
// ignored.
func Variables(objective Expr, lmis ...LMI) []*Sym {
	exprs := []Expr{}
	if objective != nil {
		exprs = append(exprs, objective)
	}
	for _, lmi := range lmis {
		if lmi == nil {
			continue
		}
		gts := lmi.GreaterSide()
		if gts == nil {
			continue
		}
		for _, row := range gts.data {
			exprs = append(exprs, row...)
		}
	}
	return SortedSymbols(exprs...)
}
