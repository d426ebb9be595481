// Package accessstructure builds the quorum trees used by quorum PVE.
//
// A tree is made of AND, OR and THRESHOLD gates over named leaves. Nodes are
// native objects: create them with NewNode, attach them with AddChild and
// release the whole tree by closing its root.
//
//	root, _ := ac.NewNode(lib, ac.KindThreshold, "", 2)
//	defer root.Close()
//	for _, name := range []string{"alice", "bob", "charlie"} {
//	    leaf, _ := ac.NewNode(lib, ac.KindLeaf, name, 0)
//	    if err := ac.AddChild(root, leaf); err != nil {
//	        leaf.Close()
//	        return err
//	    }
//	}
//
// Attaching a node transfers it to the parent. Closing an attached node does
// nothing; the tree is freed once, through its root.
//
// The expression DSL builds the same tree in one call:
//
//	root, err := ac.Build(lib, ac.And(
//	    ac.Leaf("alice"),
//	    ac.Or(ac.Leaf("bob"), ac.Threshold(2, ac.Leaf("carol"), ac.Leaf("dave"), ac.Leaf("eve"))),
//	))
//
// Leaf names must be non-empty and unique within a tree. Keys passed to
// quorum PVE are aligned with Leaves.
package accessstructure
