package lmisdp

import (
	"errors"
	"fmt"
)

// Sentinel errors. Every typed error below unwraps to one of these, so
// callers can test with errors.Is and inspect details with errors.As.
var (
	ErrNonLinearExpression = errors.New("lmisdp: expression is not linear in the variables")
	ErrNonLinearMatrix     = errors.New("lmisdp: matrix is not linear in the variables")
	ErrNonSquareMatrix     = errors.New("lmisdp: matrix is not square")
	ErrInvalidDirection    = errors.New("lmisdp: invalid optimization direction")
	ErrDuplicateVariable   = errors.New("lmisdp: duplicate variable")
	ErrEmptyMatrix         = errors.New("lmisdp: empty matrix")
	ErrShapeMismatch       = errors.New("lmisdp: shape mismatch")
	ErrParse               = errors.New("lmisdp: parse error")
	ErrNonFinite           = errors.New("lmisdp: value is not finite")
)

// NonLinearExpressionError reports an expression that is not of the
// form const + Σ cᵢ·xᵢ over the given variables.
type NonLinearExpressionError struct {
	Expr Expr
}

func (e *NonLinearExpressionError) Error() string {
	return fmt.Sprintf("lmisdp: expression %s is not linear in the variables", e.Expr)
}

func (e *NonLinearExpressionError) Unwrap() error { return ErrNonLinearExpression }

// NonLinearMatrixError names the matrix and cell whose entry failed
// linear extraction. Err holds the cell's *NonLinearExpressionError.
type NonLinearMatrixError struct {
	Op       string
	Matrix   *Matrix
	Row, Col int
	Err      error
}

func (e *NonLinearMatrixError) Error() string {
	return fmt.Sprintf("lmisdp: %s: matrix %s is not linear in the variables (entry [%d,%d]: %v)",
		e.Op, e.Matrix, e.Row, e.Col, e.Err)
}

func (e *NonLinearMatrixError) Unwrap() []error { return []error{ErrNonLinearMatrix, e.Err} }

// NonSquareMatrixError reports a rows×cols matrix where a square one is
// required.
type NonSquareMatrixError struct {
	Rows, Cols int
}

func (e *NonSquareMatrixError) Error() string {
	return fmt.Sprintf("lmisdp: matrix is %dx%d, want square", e.Rows, e.Cols)
}

func (e *NonSquareMatrixError) Unwrap() error { return ErrNonSquareMatrix }

// InvalidDirectionError reports an unknown objective direction.
type InvalidDirectionError struct {
	Value string
}

func (e *InvalidDirectionError) Error() string {
	return fmt.Sprintf("lmisdp: invalid direction %q, want \"min\" or \"max\"", e.Value)
}

func (e *InvalidDirectionError) Unwrap() error { return ErrInvalidDirection }

// ParseError locates a syntax error in an infix expression.
type ParseError struct {
	Input  string
	Offset int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("lmisdp: parse %q at offset %d: %s", e.Input, e.Offset, e.Msg)
}

func (e *ParseError) Unwrap() error { return ErrParse }
