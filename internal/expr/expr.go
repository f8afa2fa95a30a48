// Package expr parses and evaluates layer scoring expressions.
//
// The grammar is deliberately small: number and boolean literals, variable
// references, unary minus and the binary operators + - * / with
// parentheses. Sources are parsed with the CEL parser and lowered into a
// private tree; anything outside the grammar is a SyntaxError.
package expr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/operators"
	exprpb "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// ErrDivisionByZero is returned by Eval when a divisor evaluates to zero
var ErrDivisionByZero = errors.New("division by zero")

// SyntaxError reports a source outside the supported grammar
type SyntaxError struct {
	Source string
	Reason string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid expression %q: %s", e.Source, e.Reason)
}

// UnboundVariableError reports a variable with no value
type UnboundVariableError struct {
	Name string
}

func (e *UnboundVariableError) Error() string {
	return fmt.Sprintf("variable %q is not bound", e.Name)
}

// TypeError reports booleans used in arithmetic
type TypeError struct {
	Op string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("operator %s requires numbers", e.Op)
}

var celEnv = sync.OnceValues(func() (*cel.Env, error) {
	return cel.NewEnv()
})

// Expression is a parsed scoring expression
type Expression struct {
	source string
	root   node
	vars   []string
}

// Parse parses a scoring expression. Sources are case-insensitive.
func Parse(source string) (*Expression, error) {
	normalized := strings.ToLower(strings.TrimSpace(source))
	if normalized == "" {
		return nil, &SyntaxError{Source: source, Reason: "empty expression"}
	}
	env, err := celEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create expression environment: %w", err)
	}
	parsed, issues := env.Parse(normalized)
	if issues != nil && issues.Err() != nil {
		return nil, &SyntaxError{Source: source, Reason: issues.Err().Error()}
	}

	//nolint:staticcheck // the proto form is the stable way to walk a parsed AST
	root, err := lower(parsed.Expr())
	if err != nil {
		return nil, &SyntaxError{Source: source, Reason: err.Error()}
	}

	seen := make(map[string]bool)
	var vars []string
	walk(root, func(n node) {
		if v, ok := n.(variable); ok && !seen[v.name] {
			seen[v.name] = true
			vars = append(vars, v.name)
		}
	})
	sort.Strings(vars)

	return &Expression{source: normalized, root: root, vars: vars}, nil
}

// String returns the normalized source
func (e *Expression) String() string {
	return e.source
}

// Variables returns the referenced variable names, sorted
func (e *Expression) Variables() []string {
	return append([]string{}, e.vars...)
}

// IsStatic reports whether the expression references no variables
func (e *Expression) IsStatic() bool {
	return len(e.vars) == 0
}

// CheckBound returns an UnboundVariableError for the first referenced
// variable missing from bound
func (e *Expression) CheckBound(bound func(name string) bool) error {
	for _, name := range e.vars {
		if !bound(name) {
			return &UnboundVariableError{Name: name}
		}
	}
	return nil
}

// Eval evaluates the expression with the given variable values
func (e *Expression) Eval(vars map[string]float64) (Value, error) {
	return e.root.eval(vars)
}

func lower(e *exprpb.Expr) (node, error) {
	if e == nil {
		return nil, errors.New("empty expression")
	}
	switch k := e.ExprKind.(type) {
	case *exprpb.Expr_ConstExpr:
		switch c := k.ConstExpr.ConstantKind.(type) {
		case *exprpb.Constant_Int64Value:
			return literal{Number(float64(c.Int64Value))}, nil
		case *exprpb.Constant_Uint64Value:
			return literal{Number(float64(c.Uint64Value))}, nil
		case *exprpb.Constant_DoubleValue:
			return literal{Number(c.DoubleValue)}, nil
		case *exprpb.Constant_BoolValue:
			return literal{Bool(c.BoolValue)}, nil
		}
		return nil, errors.New("only number and boolean literals are supported")
	case *exprpb.Expr_IdentExpr:
		return variable{name: k.IdentExpr.Name}, nil
	case *exprpb.Expr_CallExpr:
		call := k.CallExpr
		if call.Target != nil {
			return nil, fmt.Errorf("method calls are not supported")
		}
		switch call.Function {
		case operators.Negate:
			if len(call.Args) != 1 {
				return nil, errors.New("malformed negation")
			}
			operand, err := lower(call.Args[0])
			if err != nil {
				return nil, err
			}
			return negation{operand: operand}, nil
		case operators.Add, operators.Subtract, operators.Multiply, operators.Divide:
			if len(call.Args) != 2 {
				return nil, fmt.Errorf("malformed operator %s", call.Function)
			}
			left, err := lower(call.Args[0])
			if err != nil {
				return nil, err
			}
			right, err := lower(call.Args[1])
			if err != nil {
				return nil, err
			}
			return binary{op: opSymbol(call.Function), left: left, right: right}, nil
		}
		return nil, fmt.Errorf("operator or function %s is not supported", displayName(call.Function))
	}
	return nil, errors.New("only arithmetic over variables and literals is supported")
}

func opSymbol(function string) byte {
	switch function {
	case operators.Add:
		return '+'
	case operators.Subtract:
		return '-'
	case operators.Multiply:
		return '*'
	default:
		return '/'
	}
}

func displayName(function string) string {
	if name, ok := operators.FindReverse(function); ok {
		return name
	}
	return function
}
