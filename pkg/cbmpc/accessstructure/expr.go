package accessstructure

import (
	"errors"
	"fmt"

	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc"
)

// Expr is an access-structure expression, turned into native nodes by Build.
type Expr interface {
	isExpr()
}

type leafExpr struct {
	name string
}

type gateExpr struct {
	kind     Kind
	k        int
	children []Expr
}

func (leafExpr) isExpr() {}
func (gateExpr) isExpr() {}

// Leaf is a party identified by name.
func Leaf(name string) Expr {
	return leafExpr{name: name}
}

// And requires all children.
func And(children ...Expr) Expr {
	return gateExpr{kind: KindAnd, children: children}
}

// Or requires any child.
func Or(children ...Expr) Expr {
	return gateExpr{kind: KindOr, children: children}
}

// Threshold requires k of the children.
func Threshold(k int, children ...Expr) Expr {
	return gateExpr{kind: KindThreshold, k: k, children: children}
}

// Build allocates the tree for e and returns its root. Nothing is leaked on
// error.
func Build(lib *cbmpc.Library, e Expr) (*Node, error) {
	if e == nil {
		return nil, errors.New("nil expression")
	}
	return build(lib, e)
}

func build(lib *cbmpc.Library, e Expr) (*Node, error) {
	switch expr := e.(type) {
	case leafExpr:
		return NewNode(lib, KindLeaf, expr.name, 0)

	case gateExpr:
		if len(expr.children) == 0 {
			return nil, fmt.Errorf("%s gate requires at least one child", expr.kind)
		}
		if expr.kind == KindThreshold && expr.k > len(expr.children) {
			return nil, fmt.Errorf("threshold k (%d) cannot exceed number of children (%d)", expr.k, len(expr.children))
		}
		node, err := NewNode(lib, expr.kind, "", expr.k)
		if err != nil {
			return nil, err
		}
		for _, c := range expr.children {
			child, err := build(lib, c)
			if err != nil {
				_ = node.Close()
				return nil, err
			}
			if err := AddChild(node, child); err != nil {
				_ = child.Close()
				_ = node.Close()
				return nil, err
			}
		}
		return node, nil

	default:
		return nil, errors.New("unknown expression type")
	}
}
