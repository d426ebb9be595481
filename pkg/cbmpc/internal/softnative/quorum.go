package softnative

import (
	"fmt"
	"unsafe"

	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/backend"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/cmem"
)

// node is an access-structure node. A node with a parent belongs to that
// parent's tree and is freed with its root.
type node struct {
	kind      backend.NodeKind
	name      string
	threshold int32
	parent    *node
	children  []*node
}

func (e *Engine) NewNode(kind backend.NodeKind, name cmem.Mem, threshold int32) unsafe.Pointer {
	switch kind {
	case backend.NodeLeaf, backend.NodeAnd, backend.NodeOr:
	case backend.NodeThreshold:
		if threshold < 1 {
			return nil
		}
	default:
		return nil
	}
	n := &node{kind: kind, name: string(cmem.Copy(name)), threshold: threshold}
	return e.track(unsafe.Pointer(n), n)
}

// AddChild attaches child, which must be a root, under parent.
func (e *Engine) AddChild(parentRef, childRef unsafe.Pointer) backend.Status {
	parent, ok := lookup[node](e, parentRef)
	if !ok {
		return backend.StatusParam
	}
	child, ok := lookup[node](e, childRef)
	if !ok || child.parent != nil || parent.kind == backend.NodeLeaf {
		return backend.StatusParam
	}
	for a := parent; a != nil; a = a.parent {
		if a == child {
			return backend.StatusParam
		}
	}
	child.parent = parent
	parent.children = append(parent.children, child)
	return backend.StatusOK
}

// FreeNode releases a root and its whole subtree. Freeing an attached node,
// or a reference that is not a live node, panics.
func (e *Engine) FreeNode(ref unsafe.Pointer) {
	if ref == nil {
		return
	}
	n, ok := lookup[node](e, ref)
	if !ok {
		panic(fmt.Errorf("%w: free of %p, which is not a live node", cmem.ErrContractViolation, ref))
	}
	if n.parent != nil {
		panic(fmt.Errorf("%w: free of attached node %q", cmem.ErrContractViolation, n.name))
	}
	e.untrack(ref)
	var drop func(*node)
	drop = func(n *node) {
		for _, c := range n.children {
			e.untrack(unsafe.Pointer(c))
			drop(c)
		}
	}
	drop(n)
}

// validate checks the tree shape and returns its leaves in depth-first
// order.
func (n *node) validate() ([]*node, error) {
	var leaves []*node
	seen := map[string]bool{}
	var walk func(*node) error
	walk = func(n *node) error {
		switch n.kind {
		case backend.NodeLeaf:
			if len(n.children) != 0 {
				return fail(backend.StatusParam, "leaf %q has children", n.name)
			}
			if n.name == "" || seen[n.name] {
				return fail(backend.StatusParam, "leaf name %q is empty or repeated", n.name)
			}
			seen[n.name] = true
			leaves = append(leaves, n)
			return nil
		case backend.NodeAnd, backend.NodeOr:
			if len(n.children) == 0 {
				return fail(backend.StatusParam, "%s node %q has no children", n.kind, n.name)
			}
		case backend.NodeThreshold:
			if n.threshold < 1 || int(n.threshold) > len(n.children) {
				return fail(backend.StatusParam, "threshold %d of %d at %q", n.threshold, len(n.children), n.name)
			}
		default:
			return fail(backend.StatusParam, "node %q has no type", n.name)
		}
		for _, c := range n.children {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(n); err != nil {
		return nil, err
	}
	return leaves, nil
}

// share splits secret down the tree and records each leaf's share.
func (n *node) share(secret *scalar, out map[*node]*scalar) error {
	switch n.kind {
	case backend.NodeLeaf:
		s := *secret
		out[n] = &s
	case backend.NodeOr:
		for _, c := range n.children {
			if err := c.share(secret, out); err != nil {
				return err
			}
		}
	case backend.NodeAnd:
		last := *secret
		for _, c := range n.children[:len(n.children)-1] {
			r, err := randScalar()
			if err != nil {
				return err
			}
			if err := c.share(r, out); err != nil {
				return err
			}
			last.Add(new(scalar).NegateVal(r))
		}
		return n.children[len(n.children)-1].share(&last, out)
	case backend.NodeThreshold:
		shares, err := shamirSplit(secret, int(n.threshold), len(n.children))
		if err != nil {
			return err
		}
		for i, c := range n.children {
			if err := c.share(shares[i], out); err != nil {
				return err
			}
		}
	}
	return nil
}

// reconstruct rebuilds the secret of n from the opened leaf shares, or reports
// that the opened leaves do not satisfy n.
func (n *node) reconstruct(opened map[*node]*scalar) (*scalar, bool) {
	switch n.kind {
	case backend.NodeLeaf:
		s, ok := opened[n]
		return s, ok
	case backend.NodeOr:
		for _, c := range n.children {
			if s, ok := c.reconstruct(opened); ok {
				return s, true
			}
		}
		return nil, false
	case backend.NodeAnd:
		var sum scalar
		for _, c := range n.children {
			s, ok := c.reconstruct(opened)
			if !ok {
				return nil, false
			}
			sum.Add(s)
		}
		return &sum, true
	case backend.NodeThreshold:
		xs := make([]int64, 0, n.threshold)
		ys := make([]*scalar, 0, n.threshold)
		for i, c := range n.children {
			if s, ok := c.reconstruct(opened); ok {
				xs = append(xs, int64(i+1))
				ys = append(ys, s)
				if len(xs) == int(n.threshold) {
					return shamirCombine(xs, ys), true
				}
			}
		}
		return nil, false
	}
	return nil, false
}
