package lmisdp

import (
	"fmt"
	"strings"
)

// ============================================================
// Matrix relations
// ============================================================

// Kind is the semidefinite ordering a Relation asserts.
type Kind int

const (
	PSD Kind = iota // LHS ⪰ RHS
	PD              // LHS ≻ RHS
	NSD             // LHS ⪯ RHS
	ND              // LHS ≺ RHS
)

var kindNames = [...]string{PSD: "psd", PD: "pd", NSD: "nsd", ND: "nd"}
var kindOps = [...]string{PSD: ">=", PD: ">", NSD: "<=", ND: "<"}
var kindLaTeX = [...]string{PSD: "\\succeq", PD: "\\succ", NSD: "\\preceq", ND: "\\prec"}

func (k Kind) valid() bool { return k >= PSD && k <= ND }

func (k Kind) String() string {
	if !k.valid() {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Op returns the infix operator of k, such as ">=" for PSD.
func (k Kind) Op() string {
	if !k.valid() {
		return "?"
	}
	return kindOps[k]
}

// Strict reports whether k excludes the boundary (PD, ND).
func (k Kind) Strict() bool { return k == PD || k == ND }

// ParseKind accepts a kind name ("psd", "pd", "nsd", "nd") or an
// operator (">=", ">", "<=", "<").
func ParseKind(s string) (Kind, error) {
	t := strings.ToLower(strings.TrimSpace(s))
	for k := PSD; k <= ND; k++ {
		if t == kindNames[k] || t == kindOps[k] {
			return k, nil
		}
	}
	return 0, fmt.Errorf("lmisdp: unknown relation kind %q", s)
}

// LMI is anything that can be read as G ⪰ 0 for a symbolic matrix G.
type LMI interface {
	GreaterSide() *Matrix
}

// Relation is LHS ∘ RHS for ∘ in {⪰, ≻, ⪯, ≺}.
type Relation struct {
	Kind Kind
	LHS  *Matrix
	RHS  *Matrix
}

// NewRelation builds a relation. A nil rhs is the zero matrix of lhs's
// shape; otherwise the shapes must match.
func NewRelation(kind Kind, lhs, rhs *Matrix) (*Relation, error) {
	if !kind.valid() {
		return nil, fmt.Errorf("lmisdp: invalid relation kind %d", int(kind))
	}
	if lhs == nil {
		return nil, fmt.Errorf("%w: relation has no left-hand side", ErrEmptyMatrix)
	}
	if rhs == nil {
		rhs = NewMatrix(lhs.rows, lhs.cols)
	}
	if !lhs.sameShape(rhs) {
		return nil, fmt.Errorf("%w: lhs is %dx%d, rhs is %dx%d", ErrShapeMismatch, lhs.rows, lhs.cols, rhs.rows, rhs.cols)
	}
	return &Relation{Kind: kind, LHS: lhs, RHS: rhs}, nil
}

func NewPSD(lhs, rhs *Matrix) (*Relation, error) { return NewRelation(PSD, lhs, rhs) }
func NewPD(lhs, rhs *Matrix) (*Relation, error)  { return NewRelation(PD, lhs, rhs) }
func NewNSD(lhs, rhs *Matrix) (*Relation, error) { return NewRelation(NSD, lhs, rhs) }
func NewND(lhs, rhs *Matrix) (*Relation, error)  { return NewRelation(ND, lhs, rhs) }

// Canonical rewrites r against a zero side: (LHS−RHS) ∘ 0 for PSD and
// PD, 0 ∘ (RHS−LHS) for NSD and ND. A nil side is the zero matrix of
// the other side's shape.
func (r *Relation) Canonical() *Relation {
	lhs, rhs := r.sides()
	if lhs == nil {
		return &Relation{Kind: r.Kind}
	}
	zero := NewMatrix(lhs.rows, lhs.cols)
	switch r.Kind {
	case NSD, ND:
		return &Relation{Kind: r.Kind, LHS: zero, RHS: rhs.MatSub(lhs)}
	default:
		return &Relation{Kind: r.Kind, LHS: lhs.MatSub(rhs), RHS: zero}
	}
}

// sides returns LHS and RHS with a nil side replaced by zeros. Both are
// nil when the relation has no matrix at all.
func (r *Relation) sides() (lhs, rhs *Matrix) {
	lhs, rhs = r.LHS, r.RHS
	switch {
	case lhs == nil && rhs == nil:
		return nil, nil
	case lhs == nil:
		lhs = NewMatrix(rhs.rows, rhs.cols)
	case rhs == nil:
		rhs = NewMatrix(lhs.rows, lhs.cols)
	}
	return lhs, rhs
}

// GTS returns the greater-than side of the canonical relation, or nil
// for a relation without matrices.
func (r *Relation) GTS() *Matrix {
	if r == nil {
		return nil
	}
	c := r.Canonical()
	if r.Kind == NSD || r.Kind == ND {
		return c.RHS
	}
	return c.LHS
}

// GreaterSide implements LMI.
func (r *Relation) GreaterSide() *Matrix { return r.GTS() }

func (r *Relation) String() string {
	lhs, rhs := r.sides()
	return sideString(lhs) + " " + r.Kind.Op() + " " + sideString(rhs)
}

func (r *Relation) LaTeX() string {
	op := "?"
	if r.Kind.valid() {
		op = kindLaTeX[r.Kind]
	}
	lhs, rhs := r.sides()
	if lhs == nil {
		return "0 " + op + " 0"
	}
	return lhs.LaTeX() + " " + op + " " + rhs.LaTeX()
}

// sideString prints an all-zero or missing side as 0.
func sideString(m *Matrix) string {
	if m == nil {
		return "0"
	}
	for _, row := range m.data {
		for _, e := range row {
			if !isNumEqual(e, 0) {
				return m.String()
			}
		}
	}
	return "0"
}
