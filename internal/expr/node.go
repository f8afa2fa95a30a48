package expr

import "strconv"

// Kind tags the type of a Value
type Kind int

const (
	KindNumber Kind = iota
	KindBool
)

// Value is the result of evaluating an expression
type Value struct {
	Kind Kind
	Num  float64
	Bool bool
}

// Number wraps a number
func Number(v float64) Value { return Value{Kind: KindNumber, Num: v} }

// Bool wraps a boolean
func Bool(v bool) Value { return Value{Kind: KindBool, Bool: v} }

// Score renders the value as a layer score: numbers in shortest form,
// booleans as "1" and "0"
func (v Value) Score() string {
	if v.Kind == KindBool {
		if v.Bool {
			return "1"
		}
		return "0"
	}
	return strconv.FormatFloat(v.Num, 'f', -1, 64)
}

// Float returns the numeric value, with booleans as 1 and 0
func (v Value) Float() float64 {
	if v.Kind == KindBool {
		if v.Bool {
			return 1
		}
		return 0
	}
	return v.Num
}

type node interface {
	eval(vars map[string]float64) (Value, error)
	children() []node
}

type literal struct {
	value Value
}

type variable struct {
	name string
}

type negation struct {
	operand node
}

type binary struct {
	op          byte
	left, right node
}

func (n literal) eval(map[string]float64) (Value, error) { return n.value, nil }
func (n literal) children() []node                       { return nil }

func (n variable) eval(vars map[string]float64) (Value, error) {
	v, ok := vars[n.name]
	if !ok {
		return Value{}, &UnboundVariableError{Name: n.name}
	}
	return Number(v), nil
}
func (n variable) children() []node { return nil }

func (n negation) eval(vars map[string]float64) (Value, error) {
	v, err := n.operand.eval(vars)
	if err != nil {
		return Value{}, err
	}
	if v.Kind != KindNumber {
		return Value{}, &TypeError{Op: "-"}
	}
	return Number(-v.Num), nil
}
func (n negation) children() []node { return []node{n.operand} }

func (n binary) eval(vars map[string]float64) (Value, error) {
	l, err := n.left.eval(vars)
	if err != nil {
		return Value{}, err
	}
	r, err := n.right.eval(vars)
	if err != nil {
		return Value{}, err
	}
	if l.Kind != KindNumber || r.Kind != KindNumber {
		return Value{}, &TypeError{Op: string(n.op)}
	}
	switch n.op {
	case '+':
		return Number(l.Num + r.Num), nil
	case '-':
		return Number(l.Num - r.Num), nil
	case '*':
		return Number(l.Num * r.Num), nil
	default:
		if r.Num == 0 {
			return Value{}, ErrDivisionByZero
		}
		return Number(l.Num / r.Num), nil
	}
}
func (n binary) children() []node { return []node{n.left, n.right} }

func walk(n node, fn func(node)) {
	fn(n)
	for _, c := range n.children() {
		walk(c, fn)
	}
}
