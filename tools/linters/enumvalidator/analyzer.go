// Package enumvalidator flags assignments of raw string literals to struct
// fields whose type is a named string enum. Writing i.Provider = "bitbucket"
// bypasses the declared constants and silently admits values the rest of the
// code never handles.
package enumvalidator

import (
	"go/ast"
	"go/token"
	"go/types"

	"golang.org/x/tools/go/analysis"
)

var Analyzer = &analysis.Analyzer{
	Name: "enumvalidator",
	Doc:  "reports string literals assigned to enum-typed struct fields",
	Run:  run,
}

func run(pass *analysis.Pass) (any, error) {
	for _, file := range pass.Files {
		ast.Inspect(file, func(n ast.Node) bool {
			assign, ok := n.(*ast.AssignStmt)
			if !ok {
				return true
			}
			if len(assign.Lhs) != len(assign.Rhs) {
				return true
			}
			for i, lhs := range assign.Lhs {
				checkAssignment(pass, lhs, assign.Rhs[i])
			}
			return true
		})
	}
	return nil, nil
}

func checkAssignment(pass *analysis.Pass, lhs, rhs ast.Expr) {
	lit, ok := rhs.(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING {
		return
	}

	sel, ok := lhs.(*ast.SelectorExpr)
	if !ok {
		return
	}

	fieldType := pass.TypesInfo.TypeOf(sel)
	if fieldType == nil {
		return
	}

	named, ok := fieldType.(*types.Named)
	if !ok {
		return
	}

	basic, ok := named.Underlying().(*types.Basic)
	if !ok || basic.Kind() != types.String {
		return
	}

	if !hasConstants(named) {
		return
	}

	pass.Reportf(lhs.Pos(), "enum field %s assigned string literal", sel.Sel.Name)
}

// hasConstants reports whether the type's defining package declares at least
// one constant of the type. A named string type without constants is just an
// alias, not an enum.
func hasConstants(named *types.Named) bool {
	obj := named.Obj()
	if obj == nil || obj.Pkg() == nil {
		return false
	}

	scope := obj.Pkg().Scope()
	for _, name := range scope.Names() {
		c, ok := scope.Lookup(name).(*types.Const)
		if !ok {
			continue
		}
		if types.Identical(c.Type(), named) {
			return true
		}
	}
	return false
}
