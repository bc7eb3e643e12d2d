// Package validator checks generated implementations against the structural
// contract every method artifact must satisfy.
package validator

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"strconv"

	"golang.org/x/tools/go/ast/inspector"

	"github.com/i-dream-of-ai/sparkmango/pkg/models"
)

// Rule names a structural requirement.
type Rule string

const (
	RuleSyntax        Rule = "syntax"
	RuleEntryPoint    Rule = "entry_point"
	RuleErrorHandling Rule = "error_handling"
	RuleCallResult    Rule = "call_result"
	RuleTransaction   Rule = "transaction"
	RuleParameters    Rule = "parameters"
)

// TransactionTag is the "type" value of a state-changing method's result.
const TransactionTag = "transaction_to_sign"

// Result is the verdict on one implementation. Rule and Reason are empty when accepted.
type Result struct {
	Accepted bool   `json:"accepted"`
	Rule     Rule   `json:"rule,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func reject(rule Rule, format string, args ...any) Result {
	return Result{Rule: rule, Reason: fmt.Sprintf(format, args...)}
}

// reserved are package-scope names a method file cannot declare: its imports,
// the generated registry, and init, which Go forbids to take arguments.
var reserved = map[string]bool{
	"_":        true,
	"init":     true,
	"context":  true,
	"fmt":      true,
	"runtime":  true,
	"Registry": true,
}

// usableName reports whether name can be declared as a function in the
// generated methods package without breaking it.
func usableName(name string) bool {
	return token.IsIdentifier(name) && !reserved[name] && types.Universe.Lookup(name) == nil
}

// Validate parses text as a list of Go declarations and checks the entry point
// for sig. Checks run in a fixed order and the first failure is reported.
func Validate(sig models.FunctionSignature, text string) Result {
	if !usableName(sig.Name) {
		return reject(RuleEntryPoint, "function name %q cannot be declared in a Go package", sig.Name)
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "artifact.go", "package methods\n\n"+text, parser.SkipObjectResolution)
	if err != nil {
		return reject(RuleSyntax, "does not parse: %v", err)
	}

	fn := entryPoint(file, sig.Name)
	if fn == nil {
		return reject(RuleEntryPoint, "missing entry point func %s", sig.Name)
	}
	stateName, argsName, res := checkSignature(fn)
	if !res.Accepted {
		return res
	}

	// Inspect only the entry point, helpers may do anything.
	in := inspector.New([]*ast.File{{Name: file.Name, Decls: []ast.Decl{fn}}})
	f := collect(in, stateName, argsName)

	if !f.errorHandler {
		return reject(RuleErrorHandling, "missing error handling: no `if err != nil` block that returns")
	}

	if sig.Mutability.ReadOnly() {
		switch {
		case !f.calls["Call"]:
			return reject(RuleCallResult, "missing %s.Call on contract state", stateName)
		case f.calls["BuildTransaction"] || f.calls["EstimateGas"]:
			return reject(RuleCallResult, "%s function must not build a transaction", sig.Mutability)
		case !f.returnedKeys["result"]:
			return reject(RuleCallResult, `missing "result" field in returned result`)
		}
	} else {
		switch {
		case !f.calls["EstimateGas"]:
			return reject(RuleTransaction, "missing %s.EstimateGas call", stateName)
		case !f.calls["BuildTransaction"]:
			return reject(RuleTransaction, "missing %s.BuildTransaction call", stateName)
		case !f.txTag:
			return reject(RuleTransaction, "missing %q tag", TransactionTag)
		case !f.returnedKeys["transaction"]:
			return reject(RuleTransaction, `missing "transaction" field in returned result`)
		case f.sendsValue && !sig.Mutability.Payable():
			return reject(RuleTransaction, "%s function must not send value", sig.Mutability)
		}
	}

	for _, name := range sig.ArgNames() {
		if !f.names[name] {
			return reject(RuleParameters, "parameter %q is not used", name)
		}
	}

	return Result{Accepted: true}
}

func entryPoint(file *ast.File, name string) *ast.FuncDecl {
	for _, d := range file.Decls {
		if fn, ok := d.(*ast.FuncDecl); ok && fn.Recv == nil && fn.Name.Name == name {
			return fn
		}
	}
	return nil
}

// checkSignature requires (ctx context.Context, st *runtime.State, ...) and
// returns the names bound to the state and args parameters.
func checkSignature(fn *ast.FuncDecl) (string, string, Result) {
	type param struct {
		name string
		typ  ast.Expr
	}
	var params []param
	for _, field := range fn.Type.Params.List {
		if len(field.Names) == 0 {
			params = append(params, param{typ: field.Type})
			continue
		}
		for _, n := range field.Names {
			params = append(params, param{name: n.Name, typ: field.Type})
		}
	}

	if len(params) < 1 || !isSelector(params[0].typ, "context", "Context") {
		return "", "", reject(RuleEntryPoint, "entry point %s must take context.Context as its first parameter", fn.Name.Name)
	}
	if len(params) < 2 {
		return "", "", reject(RuleEntryPoint, "entry point %s must take *runtime.State as its second parameter", fn.Name.Name)
	}
	star, ok := params[1].typ.(*ast.StarExpr)
	if !ok || !isSelector(star.X, "runtime", "State") {
		return "", "", reject(RuleEntryPoint, "entry point %s must take *runtime.State as its second parameter", fn.Name.Name)
	}
	if params[1].name == "" || params[1].name == "_" {
		return "", "", reject(RuleEntryPoint, "entry point %s must name its state parameter", fn.Name.Name)
	}
	var argsName string
	if len(params) > 2 {
		argsName = params[2].name
	}
	return params[1].name, argsName, Result{Accepted: true}
}

func isSelector(e ast.Expr, pkg, name string) bool {
	sel, ok := e.(*ast.SelectorExpr)
	if !ok {
		return false
	}
	id, ok := sel.X.(*ast.Ident)
	return ok && id.Name == pkg && sel.Sel.Name == name
}

type facts struct {
	errorHandler bool
	calls        map[string]bool
	returnedKeys map[string]bool
	txTag        bool
	sendsValue   bool
	names        map[string]bool
}

func collect(in *inspector.Inspector, stateName, argsName string) facts {
	f := facts{
		calls:        make(map[string]bool),
		returnedKeys: make(map[string]bool),
		names:        make(map[string]bool),
	}

	filter := []ast.Node{
		(*ast.IfStmt)(nil),
		(*ast.CallExpr)(nil),
		(*ast.ReturnStmt)(nil),
		(*ast.Ident)(nil),
		(*ast.BasicLit)(nil),
	}
	in.Preorder(filter, func(n ast.Node) {
		switch n := n.(type) {
		case *ast.IfStmt:
			if isErrCheck(n.Cond) && containsReturn(n.Body) {
				f.errorHandler = true
			}
		case *ast.CallExpr:
			if sel, ok := n.Fun.(*ast.SelectorExpr); ok {
				if id, ok := sel.X.(*ast.Ident); ok {
					switch {
					case id.Name == stateName:
						f.calls[sel.Sel.Name] = true
					case id.Name == argsName && sel.Sel.Name == "Value":
						f.sendsValue = true
					}
				}
			}
		case *ast.ReturnStmt:
			for _, r := range n.Results {
				lit, ok := r.(*ast.CompositeLit)
				if !ok {
					continue
				}
				for _, elt := range lit.Elts {
					kv, ok := elt.(*ast.KeyValueExpr)
					if !ok {
						continue
					}
					key, ok := stringLit(kv.Key)
					if !ok {
						continue
					}
					f.returnedKeys[key] = true
					if v, ok := stringLit(kv.Value); ok && key == "type" && v == TransactionTag {
						f.txTag = true
					}
				}
			}
		case *ast.Ident:
			f.names[n.Name] = true
		case *ast.BasicLit:
			if s, ok := stringLit(n); ok {
				f.names[s] = true
			}
		}
	})
	return f
}

func isErrCheck(cond ast.Expr) bool {
	bin, ok := cond.(*ast.BinaryExpr)
	if !ok || bin.Op != token.NEQ {
		return false
	}
	x, ok1 := bin.X.(*ast.Ident)
	y, ok2 := bin.Y.(*ast.Ident)
	return ok1 && ok2 && x.Name == "err" && y.Name == "nil"
}

func containsReturn(block *ast.BlockStmt) bool {
	found := false
	ast.Inspect(block, func(n ast.Node) bool {
		if _, ok := n.(*ast.ReturnStmt); ok {
			found = true
		}
		return !found
	})
	return found
}

func stringLit(e ast.Expr) (string, bool) {
	lit, ok := e.(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING {
		return "", false
	}
	s, err := strconv.Unquote(lit.Value)
	return s, err == nil
}
