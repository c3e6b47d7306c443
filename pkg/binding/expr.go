// Package binding drives morph target weights from control parameters and
// joint samples through small arithmetic expressions.
//
// Expressions are built from a closed operator set: parameter and joint
// references, numeric literals, +, -, *, unary minus, min, max and clamp.
// There is no general evaluation engine behind them.
package binding

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/chewxy/math32"
)

// ErrUnresolvedReference is matched by UnresolvedReferenceError.
var ErrUnresolvedReference = errors.New("unresolved reference")

// ErrUnknownOperator is returned when a Binary carries an Op outside + - *.
var ErrUnknownOperator = errors.New("unknown operator")

// RefKind distinguishes parameter and joint references.
type RefKind int

const (
	RefParam RefKind = iota
	RefJoint
)

func (k RefKind) String() string {
	if k == RefJoint {
		return "joint"
	}
	return "parameter"
}

// Ref names one external input of an expression.
type Ref struct {
	Kind RefKind
	Name string
}

func (r Ref) String() string {
	return r.Kind.String() + " " + strconv.Quote(r.Name)
}

// UnresolvedReferenceError reports a binding whose input does not exist.
// Target is empty when returned directly from Expr.Eval.
type UnresolvedReferenceError struct {
	Target string
	Ref    Ref
}

func (e *UnresolvedReferenceError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("%v: %s", ErrUnresolvedReference, e.Ref)
	}
	return fmt.Sprintf("binding %q: %v: %s", e.Target, ErrUnresolvedReference, e.Ref)
}

func (e *UnresolvedReferenceError) Is(target error) bool { return target == ErrUnresolvedReference }

// Env resolves references during evaluation.
type Env interface {
	Param(name string) (float32, bool)
	Joint(name string) (JointSample, bool)
}

// Expr is a pure function of its environment.
type Expr interface {
	Eval(env Env) (float32, error)
	// Refs appends the expression's references to dst.
	Refs(dst []Ref) []Ref
	String() string
	prec() int
}

// Operator precedence used when printing.
const (
	precSum = iota + 1
	precProduct
	precUnary
	precAtom
)

// Const is a numeric literal.
type Const float32

func (c Const) Eval(Env) (float32, error) { return float32(c), nil }
func (c Const) Refs(dst []Ref) []Ref      { return dst }
func (c Const) prec() int                 { return precAtom }

func (c Const) String() string {
	return strconv.FormatFloat(float64(c), 'g', -1, 32)
}

// Param reads a control parameter.
type Param string

func (p Param) Eval(env Env) (float32, error) {
	v, ok := env.Param(string(p))
	if !ok {
		return 0, &UnresolvedReferenceError{Ref: Ref{Kind: RefParam, Name: string(p)}}
	}
	return v, nil
}

func (p Param) Refs(dst []Ref) []Ref { return append(dst, Ref{Kind: RefParam, Name: string(p)}) }
func (p Param) String() string       { return string(p) }
func (p Param) prec() int            { return precAtom }

// JointRef reads one channel of a joint sample.
type JointRef struct {
	Joint   string
	Channel Channel
}

func (j JointRef) Eval(env Env) (float32, error) {
	s, ok := env.Joint(j.Joint)
	if !ok {
		return 0, &UnresolvedReferenceError{Ref: Ref{Kind: RefJoint, Name: j.Joint}}
	}
	return s.Value(j.Channel), nil
}

func (j JointRef) Refs(dst []Ref) []Ref { return append(dst, Ref{Kind: RefJoint, Name: j.Joint}) }
func (j JointRef) prec() int            { return precAtom }

func (j JointRef) String() string {
	return fmt.Sprintf("joint(%s).%s", strconv.Quote(j.Joint), j.Channel)
}

// Op is a binary arithmetic operator.
type Op byte

const (
	OpAdd Op = '+'
	OpSub Op = '-'
	OpMul Op = '*'
)

// Binary applies Op to two operands.
type Binary struct {
	Op   Op
	L, R Expr
}

func (b Binary) Eval(env Env) (float32, error) {
	l, err := b.L.Eval(env)
	if err != nil {
		return 0, err
	}
	r, err := b.R.Eval(env)
	if err != nil {
		return 0, err
	}
	switch b.Op {
	case OpAdd:
		return l + r, nil
	case OpSub:
		return l - r, nil
	case OpMul:
		return l * r, nil
	default:
		return 0, fmt.Errorf("%w %q", ErrUnknownOperator, rune(b.Op))
	}
}

func (b Binary) Refs(dst []Ref) []Ref { return b.R.Refs(b.L.Refs(dst)) }

func (b Binary) prec() int {
	if b.Op == OpMul {
		return precProduct
	}
	return precSum
}

func (b Binary) String() string {
	p := b.prec()
	l := b.L.String()
	if b.L.prec() < p {
		l = "(" + l + ")"
	}
	r := b.R.String()
	// Right operands of equal precedence need parentheses for left associativity.
	if b.R.prec() < p || (b.R.prec() == p && b.Op == OpSub) {
		r = "(" + r + ")"
	}
	return l + " " + string(b.Op) + " " + r
}

// Negate is unary minus.
type Negate struct {
	X Expr
}

func (n Negate) Eval(env Env) (float32, error) {
	v, err := n.X.Eval(env)
	return -v, err
}

func (n Negate) Refs(dst []Ref) []Ref { return n.X.Refs(dst) }
func (n Negate) prec() int            { return precUnary }

func (n Negate) String() string {
	if n.X.prec() < precUnary {
		return "-(" + n.X.String() + ")"
	}
	return "-" + n.X.String()
}

// Extremum is min or max over one or more arguments.
type Extremum struct {
	Max  bool
	Args []Expr
}

func (e Extremum) Eval(env Env) (float32, error) {
	var out float32
	for i, a := range e.Args {
		v, err := a.Eval(env)
		if err != nil {
			return 0, err
		}
		switch {
		case i == 0:
			out = v
		case e.Max:
			out = math32.Max(out, v)
		default:
			out = math32.Min(out, v)
		}
	}
	return out, nil
}

func (e Extremum) Refs(dst []Ref) []Ref {
	for _, a := range e.Args {
		dst = a.Refs(dst)
	}
	return dst
}

func (e Extremum) prec() int { return precAtom }

func (e Extremum) String() string {
	name := "min"
	if e.Max {
		name = "max"
	}
	return name + "(" + joinExprs(e.Args) + ")"
}

// ClampExpr limits X to [Lo, Hi].
type ClampExpr struct {
	X, Lo, Hi Expr
}

func (c ClampExpr) Eval(env Env) (float32, error) {
	x, err := c.X.Eval(env)
	if err != nil {
		return 0, err
	}
	lo, err := c.Lo.Eval(env)
	if err != nil {
		return 0, err
	}
	hi, err := c.Hi.Eval(env)
	if err != nil {
		return 0, err
	}
	return math32.Max(lo, math32.Min(hi, x)), nil
}

func (c ClampExpr) Refs(dst []Ref) []Ref { return c.Hi.Refs(c.Lo.Refs(c.X.Refs(dst))) }
func (c ClampExpr) prec() int            { return precAtom }

func (c ClampExpr) String() string {
	return "clamp(" + joinExprs([]Expr{c.X, c.Lo, c.Hi}) + ")"
}

func joinExprs(args []Expr) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	return strings.Join(parts, ", ")
}

// Constructors used by authoring code.

// P references a control parameter.
func P(name string) Expr { return Param(name) }

// C is a numeric literal.
func C(v float32) Expr { return Const(v) }

// J references a joint channel.
func J(joint string, ch Channel) Expr { return JointRef{Joint: joint, Channel: ch} }

// Add sums its operands left to right.
func Add(a Expr, rest ...Expr) Expr { return fold(OpAdd, a, rest) }

// Sub subtracts b from a.
func Sub(a, b Expr) Expr { return Binary{Op: OpSub, L: a, R: b} }

// Mul multiplies its operands left to right.
func Mul(a Expr, rest ...Expr) Expr { return fold(OpMul, a, rest) }

// Neg negates x.
func Neg(x Expr) Expr { return Negate{X: x} }

// Min is the smallest of its operands.
func Min(a Expr, rest ...Expr) Expr { return Extremum{Args: append([]Expr{a}, rest...)} }

// Max is the largest of its operands.
func Max(a Expr, rest ...Expr) Expr { return Extremum{Max: true, Args: append([]Expr{a}, rest...)} }

// Clamp limits x to [lo, hi].
func Clamp(x, lo, hi Expr) Expr { return ClampExpr{X: x, Lo: lo, Hi: hi} }

// Unit clamps x to [0, 1].
func Unit(x Expr) Expr { return Clamp(x, C(0), C(1)) }

func fold(op Op, a Expr, rest []Expr) Expr {
	out := a
	for _, r := range rest {
		out = Binary{Op: op, L: out, R: r}
	}
	return out
}

// Refs returns the distinct references of e in first-use order.
func Refs(e Expr) []Ref {
	all := e.Refs(nil)
	seen := make(map[Ref]bool, len(all))
	out := all[:0]
	for _, r := range all {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}
