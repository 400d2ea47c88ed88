package solver

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/golang/glog"

	"github.com/njchilds90/lmisdp"
)

// Backend is an external SDP solver.
type Backend interface {
	// Available returns nil when the solver can run in this environment.
	Available(ctx context.Context) error
	// Solve minimizes cᵀx subject to the arrays' constraints.
	Solve(ctx context.Context, a *Arrays) (*Solution, error)
}

// Solution is a backend's answer.
type Solution struct {
	Status          string    `json:"status" yaml:"status"`
	X               []float64 `json:"x" yaml:"x"`
	PrimalObjective float64   `json:"primal_objective" yaml:"primal_objective"`
	DualObjective   float64   `json:"dual_objective" yaml:"dual_objective"`
	Gap             float64   `json:"gap" yaml:"gap"`
	Iterations      int       `json:"iterations" yaml:"iterations"`
}

// Optimal reports whether the backend claims an optimal solution.
func (s *Solution) Optimal() bool { return s.Status == "optimal" }

// Values maps variable names to their solved values.
func (s *Solution) Values(vars []string) map[string]float64 {
	out := make(map[string]float64, len(vars))
	for i, name := range vars {
		if i < len(s.X) {
			out[name] = s.X[i]
		}
	}
	return out
}

// Orient reports the objective values in the sense of dir. Backends
// minimize, so a maximized objective was negated before solving.
func (s *Solution) Orient(dir lmisdp.Direction) {
	if dir == lmisdp.Maximize {
		s.PrimalObjective, s.DualObjective = -s.PrimalObjective, -s.DualObjective
	}
}

var (
	mu       sync.RWMutex
	backends = map[string]Backend{}
)

// Register installs b under name and returns the backend it replaced.
// A nil b removes the registration.
func Register(name string, b Backend) Backend {
	mu.Lock()
	defer mu.Unlock()
	prev := backends[name]
	if b == nil {
		delete(backends, name)
	} else {
		backends[name] = b
	}
	return prev
}

// Lookup returns the backend registered under name.
func Lookup(name string) (Backend, bool) {
	mu.RLock()
	defer mu.RUnlock()
	b, ok := backends[name]
	return b, ok
}

// Backends lists registered backend names, sorted.
func Backends() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func available(ctx context.Context, name, fn string) error {
	b, ok := Lookup(name)
	if !ok {
		return &UnavailableError{Func: fn, Backend: name, Err: ErrNotRegistered}
	}
	if err := b.Available(ctx); err != nil {
		glog.V(1).Infof("solver: %s backend unavailable for %s: %v", name, fn, err)
		return &UnavailableError{Func: fn, Backend: name, Err: err}
	}
	return nil
}

// Solve runs the named backend on a, after checking it is available.
func Solve(ctx context.Context, name string, a *Arrays) (*Solution, error) {
	if err := available(ctx, name, "Solve"); err != nil {
		return nil, err
	}
	b, _ := Lookup(name)
	sol, err := b.Solve(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("solver: %s: %w", name, err)
	}
	glog.V(1).Infof("solver: %s finished with status %s after %d iterations", name, sol.Status, sol.Iterations)
	return sol, nil
}
