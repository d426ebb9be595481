package internalcheck

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/tools/go/packages"
)

const (
	modulePath  = "github.com/coinbase/cb-mpc-bridge-go"
	backendPath = modulePath + "/pkg/cbmpc/internal/backend"
)

var (
	loadOnce sync.Once
	loaded   []*packages.Package
	loadErr  error
)

func load(t *testing.T) []*packages.Package {
	t.Helper()
	loadOnce.Do(func() {
		cfg := &packages.Config{
			Mode: packages.NeedName | packages.NeedFiles | packages.NeedSyntax |
				packages.NeedTypes | packages.NeedTypesInfo,
		}
		loaded, loadErr = packages.Load(cfg, modulePath+"/pkg/cbmpc/...")
	})
	require.NoError(t, loadErr)
	require.NotEmpty(t, loaded)
	return loaded
}

func report(t *testing.T, policy string, findings []string) {
	t.Helper()
	if len(findings) > 0 {
		t.Fatalf("%s policy violation:\n%s", policy, strings.Join(findings, "\n"))
	}
}

func TestOnlyBackendImportsC(t *testing.T) {
	var findings []string
	for _, pkg := range load(t) {
		if pkg.PkgPath == backendPath {
			continue
		}
		// IgnoredFiles covers files excluded by the current build tags.
		files := append(append([]string{}, pkg.GoFiles...), pkg.IgnoredFiles...)
		fset := token.NewFileSet()
		for _, name := range files {
			if !strings.HasSuffix(name, ".go") {
				continue
			}
			f, err := parser.ParseFile(fset, name, nil, parser.ImportsOnly)
			require.NoError(t, err)
			for _, imp := range f.Imports {
				if imp.Path.Value == `"C"` {
					findings = append(findings, fmt.Sprintf("%s: cgo outside %s", fset.Position(imp.Pos()), backendPath))
				}
			}
		}
	}
	report(t, "cgo boundary", findings)
}

func TestNoHexFormatting(t *testing.T) {
	var findings []string
	for _, pkg := range load(t) {
		for _, file := range pkg.Syntax {
			ast.Inspect(file, func(n ast.Node) bool {
				call, ok := n.(*ast.CallExpr)
				if !ok {
					return true
				}
				sel, ok := call.Fun.(*ast.SelectorExpr)
				if !ok {
					return true
				}
				obj := pkg.TypesInfo.Uses[sel.Sel]
				if obj == nil || obj.Pkg() == nil {
					return true
				}
				idx, ok := formatIndex(obj.Pkg().Path(), obj.Name())
				if !ok || len(call.Args) <= idx {
					return true
				}
				lit, ok := call.Args[idx].(*ast.BasicLit)
				if !ok || lit.Kind != token.STRING {
					return true
				}
				value, err := strconv.Unquote(lit.Value)
				if err == nil && containsHexVerb(value) {
					findings = append(findings, fmt.Sprintf("%s: avoid %%x formatting of secrets", pkg.Fset.Position(lit.Pos())))
				}
				return true
			})
		}
	}
	report(t, "secret logging", findings)
}

func TestNoDirectByteComparison(t *testing.T) {
	var findings []string
	for _, pkg := range load(t) {
		for _, file := range pkg.Syntax {
			ast.Inspect(file, func(n ast.Node) bool {
				be, ok := n.(*ast.BinaryExpr)
				if !ok || (be.Op != token.EQL && be.Op != token.NEQ) {
					return true
				}
				if isBytes(pkg.TypesInfo.TypeOf(be.X)) && isBytes(pkg.TypesInfo.TypeOf(be.Y)) {
					findings = append(findings, fmt.Sprintf("%s: avoid == on byte arrays; use crypto/subtle", pkg.Fset.Position(be.Pos())))
				}
				return true
			})
		}
	}
	report(t, "constant-time", findings)
}

func formatIndex(pkgPath, name string) (int, bool) {
	switch pkgPath {
	case "fmt":
		switch name {
		case "Errorf", "Printf", "Sprintf":
			return 0, true
		case "Fprintf":
			return 1, true
		}
	case "log":
		switch name {
		case "Printf", "Fatalf", "Panicf":
			return 0, true
		}
	}
	return 0, false
}

func containsHexVerb(s string) bool {
	return strings.Contains(s, "%x") || strings.Contains(s, "%X")
}

func isBytes(typ types.Type) bool {
	switch tt := typ.(type) {
	case *types.Slice:
		return isByte(tt.Elem())
	case *types.Array:
		return isByte(tt.Elem())
	case *types.Pointer:
		return isBytes(tt.Elem())
	case *types.Named:
		return isBytes(tt.Underlying())
	default:
		return false
	}
}

func isByte(t types.Type) bool {
	basic, ok := t.(*types.Basic)
	return ok && basic.Kind() == types.Byte
}

func TestHelpers(t *testing.T) {
	require.True(t, containsHexVerb("key=%x"))
	require.False(t, containsHexVerb("code %d"))
	_, ok := formatIndex("fmt", "Errorf")
	require.True(t, ok)
	idx, ok := formatIndex("fmt", "Fprintf")
	require.True(t, ok)
	require.Equal(t, 1, idx)
	_, ok = formatIndex("strings", "Join")
	require.False(t, ok)

	require.True(t, isBytes(types.NewSlice(types.Typ[types.Byte])))
	require.True(t, isBytes(types.NewArray(types.Typ[types.Uint8], 32)))
	require.False(t, isBytes(types.NewSlice(types.Typ[types.Int])))
	require.False(t, isBytes(nil))
}
