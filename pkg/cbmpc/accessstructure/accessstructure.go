package accessstructure

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"unsafe"

	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/backend"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/cmem"
)

// Kind is the gate type of a node.
type Kind int32

const (
	KindLeaf      = Kind(backend.NodeLeaf)
	KindAnd       = Kind(backend.NodeAnd)
	KindOr        = Kind(backend.NodeOr)
	KindThreshold = Kind(backend.NodeThreshold)
)

func (k Kind) String() string { return backend.NodeKind(k).String() }

var (
	// ErrClosed is returned when using a node whose tree was freed.
	ErrClosed = errors.New("access structure node closed")
	// ErrAttached is returned when attaching a node that already has a parent.
	ErrAttached = errors.New("node already attached")
)

// treeMu guards the links and refs of every tree.
var treeMu sync.Mutex

// Node is one native access-structure node together with its Go-side shape.
type Node struct {
	eng       backend.Engine
	ref       unsafe.Pointer
	kind      Kind
	name      string
	threshold int
	parent    *Node
	children  []*Node
}

// NewNode allocates a detached node. threshold is only used by KindThreshold.
func NewNode(lib *cbmpc.Library, kind Kind, name string, threshold int) (*Node, error) {
	if lib == nil {
		return nil, cbmpc.ErrLibraryClosed
	}
	switch kind {
	case KindLeaf:
		if name == "" {
			return nil, errors.New("empty leaf name")
		}
	case KindAnd, KindOr:
	case KindThreshold:
		if threshold < 1 {
			return nil, fmt.Errorf("threshold k must be positive, got %d", threshold)
		}
	default:
		return nil, fmt.Errorf("unknown node kind %d", kind)
	}
	eng, err := lib.Engine()
	if err != nil {
		return nil, err
	}
	ref := eng.NewNode(backend.NodeKind(kind), cmem.View([]byte(name)), int32(threshold))
	if ref == nil {
		return nil, cbmpc.StatusError("new_node", backend.StatusParam)
	}
	n := &Node{eng: eng, ref: ref, kind: kind, name: name, threshold: threshold}
	runtime.SetFinalizer(n, func(n *Node) {
		_ = n.Close()
	})
	return n, nil
}

// AddChild attaches child under parent. On success the parent owns child: the
// child's Close becomes a no-op and the tree is freed through its root.
func AddChild(parent, child *Node) error {
	if parent == nil || child == nil {
		return errors.New("nil node")
	}
	treeMu.Lock()
	defer treeMu.Unlock()
	if parent.ref == nil || child.ref == nil {
		return ErrClosed
	}
	if child.parent != nil {
		return ErrAttached
	}
	if parent.eng != child.eng {
		return errors.New("nodes belong to different libraries")
	}
	if parent.kind == KindLeaf {
		return errors.New("leaf nodes cannot have children")
	}
	st := parent.eng.AddChild(parent.ref, child.ref)
	runtime.KeepAlive(parent)
	runtime.KeepAlive(child)
	if err := cbmpc.StatusError("add", st); err != nil {
		return err
	}
	child.parent = parent
	parent.children = append(parent.children, child)
	runtime.SetFinalizer(child, nil)
	return nil
}

// Close frees the tree rooted at n. Closing an attached node does nothing.
// It is safe to call more than once.
func (n *Node) Close() error {
	if n == nil {
		return nil
	}
	treeMu.Lock()
	defer treeMu.Unlock()
	if n.ref == nil || n.parent != nil {
		return nil
	}
	n.eng.FreeNode(n.ref)
	n.forget()
	runtime.SetFinalizer(n, nil)
	return nil
}

func (n *Node) forget() {
	n.ref = nil
	for _, c := range n.children {
		c.forget()
	}
}

// Kind returns the gate type of n.
func (n *Node) Kind() Kind { return n.kind }

// Name returns the node name.
func (n *Node) Name() string { return n.name }

// Threshold returns the threshold of a KindThreshold node and 0 otherwise.
func (n *Node) Threshold() int {
	if n.kind != KindThreshold {
		return 0
	}
	return n.threshold
}

// Leaves returns the leaf names of the subtree in depth-first order. Quorum
// PVE keys are aligned with this order.
func (n *Node) Leaves() []string {
	treeMu.Lock()
	defer treeMu.Unlock()
	var out []string
	var walk func(*Node)
	walk = func(n *Node) {
		if n.kind == KindLeaf {
			out = append(out, n.name)
			return
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(n)
	return out
}

// String renders the subtree, e.g. "threshold(2)[alice, bob, or[carol, dave]]".
func (n *Node) String() string {
	treeMu.Lock()
	defer treeMu.Unlock()
	var b strings.Builder
	n.render(&b)
	return b.String()
}

func (n *Node) render(b *strings.Builder) {
	switch n.kind {
	case KindLeaf:
		b.WriteString(n.name)
		return
	case KindThreshold:
		fmt.Fprintf(b, "threshold(%d)", n.threshold)
	default:
		b.WriteString(n.kind.String())
	}
	b.WriteByte('[')
	for i, c := range n.children {
		if i > 0 {
			b.WriteString(", ")
		}
		c.render(b)
	}
	b.WriteByte(']')
}

// Ptr returns the native root reference. It is exported for use by protocol
// subpackages and fails if n is attached or closed.
func (n *Node) Ptr() (unsafe.Pointer, error) {
	if n == nil {
		return nil, ErrClosed
	}
	treeMu.Lock()
	defer treeMu.Unlock()
	if n.ref == nil {
		return nil, ErrClosed
	}
	if n.parent != nil {
		return nil, errors.New("node is not a root")
	}
	return n.ref, nil
}

// Engine returns the engine that owns the node.
func (n *Node) Engine() backend.Engine { return n.eng }
