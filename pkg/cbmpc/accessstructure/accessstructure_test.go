package accessstructure_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc"
	ac "github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/accessstructure"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/internal/softnative"
)

func openLib(t *testing.T) (*cbmpc.Library, *softnative.Engine) {
	t.Helper()
	lib, err := cbmpc.Open(cbmpc.Config{Engine: cbmpc.EngineSoft})
	require.NoError(t, err)
	t.Cleanup(func() { _ = lib.Close() })
	eng, err := lib.Engine()
	require.NoError(t, err)
	return lib, eng.(*softnative.Engine)
}

func TestAddChildTransfersOwnership(t *testing.T) {
	lib, eng := openLib(t)

	root, err := ac.NewNode(lib, ac.KindThreshold, "root", 2)
	require.NoError(t, err)
	names := []string{"alice", "bob", "charlie"}
	leaves := make([]*ac.Node, len(names))
	for i, name := range names {
		leaves[i], err = ac.NewNode(lib, ac.KindLeaf, name, 0)
		require.NoError(t, err)
		require.NoError(t, ac.AddChild(root, leaves[i]))
	}
	require.Equal(t, 4, eng.Live())
	require.Equal(t, names, root.Leaves())
	require.Equal(t, 2, root.Threshold())
	require.Equal(t, "threshold(2)[alice, bob, charlie]", root.String())

	// Attached nodes are owned by the root.
	require.NoError(t, leaves[0].Close())
	require.Equal(t, 4, eng.Live())
	_, err = leaves[0].Ptr()
	require.Error(t, err)

	require.NoError(t, root.Close())
	require.Equal(t, 0, eng.Live())
	require.NoError(t, root.Close())
	require.NoError(t, leaves[1].Close())

	_, err = root.Ptr()
	require.ErrorIs(t, err, ac.ErrClosed)
}

func TestAddChildRejections(t *testing.T) {
	lib, eng := openLib(t)

	root, err := ac.NewNode(lib, ac.KindAnd, "", 0)
	require.NoError(t, err)
	defer root.Close()
	other, err := ac.NewNode(lib, ac.KindOr, "", 0)
	require.NoError(t, err)
	defer other.Close()
	leaf, err := ac.NewNode(lib, ac.KindLeaf, "alice", 0)
	require.NoError(t, err)

	require.NoError(t, ac.AddChild(root, leaf))
	require.ErrorIs(t, ac.AddChild(other, leaf), ac.ErrAttached)

	orphan, err := ac.NewNode(lib, ac.KindLeaf, "bob", 0)
	require.NoError(t, err)
	require.Error(t, ac.AddChild(leaf, orphan))
	require.NoError(t, orphan.Close())
	require.ErrorIs(t, ac.AddChild(root, orphan), ac.ErrClosed)

	// A root cannot be attached below its own descendant.
	gate, err := ac.NewNode(lib, ac.KindOr, "", 0)
	require.NoError(t, err)
	require.NoError(t, ac.AddChild(root, gate))
	err = ac.AddChild(gate, root)
	require.True(t, cbmpc.HasCode(err, cbmpc.CodeParam))

	require.Error(t, ac.AddChild(nil, gate))
	require.Equal(t, 4, eng.Live())
}

func TestNewNodeValidation(t *testing.T) {
	lib, eng := openLib(t)

	_, err := ac.NewNode(lib, ac.KindLeaf, "", 0)
	require.Error(t, err)
	_, err = ac.NewNode(lib, ac.KindThreshold, "", 0)
	require.Error(t, err)
	_, err = ac.NewNode(lib, ac.Kind(42), "x", 0)
	require.Error(t, err)
	_, err = ac.NewNode(nil, ac.KindLeaf, "x", 0)
	require.ErrorIs(t, err, cbmpc.ErrLibraryClosed)
	require.Equal(t, 0, eng.Live())

	require.NoError(t, lib.Close())
	_, err = ac.NewNode(lib, ac.KindLeaf, "x", 0)
	require.ErrorIs(t, err, cbmpc.ErrLibraryClosed)
}

func TestBuildNested(t *testing.T) {
	lib, eng := openLib(t)

	root, err := ac.Build(lib, ac.And(
		ac.Leaf("alice"),
		ac.Or(
			ac.Leaf("bob"),
			ac.Threshold(2, ac.Leaf("charlie"), ac.Leaf("dave"), ac.Leaf("eve")),
		),
	))
	require.NoError(t, err)
	require.Equal(t, []string{"alice", "bob", "charlie", "dave", "eve"}, root.Leaves())
	require.Equal(t, "and[alice, or[bob, threshold(2)[charlie, dave, eve]]]", root.String())
	require.Equal(t, 8, eng.Live())

	require.NoError(t, root.Close())
	require.Equal(t, 0, eng.Live())
}

func TestBuildCleansUpOnError(t *testing.T) {
	lib, eng := openLib(t)

	cases := map[string]ac.Expr{
		"empty leaf":        ac.And(ac.Leaf("alice"), ac.Leaf("")),
		"empty gate":        ac.Or(ac.Leaf("alice"), ac.And()),
		"threshold too big": ac.And(ac.Leaf("alice"), ac.Threshold(3, ac.Leaf("bob"), ac.Leaf("carol"))),
		"zero threshold":    ac.Threshold(0, ac.Leaf("bob")),
	}
	for name, expr := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ac.Build(lib, expr)
			require.Error(t, err)
			require.Equal(t, 0, eng.Live())
		})
	}

	_, err := ac.Build(lib, nil)
	require.Error(t, err)
}
