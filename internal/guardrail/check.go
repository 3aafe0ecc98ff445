package guardrail

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/mod/modfile"
	"golang.org/x/tools/go/ast/inspector"
)

// CheckModule reads the module path from root/go.mod and checks the module
// against DefaultPolicy
func CheckModule(root string) ([]Violation, error) {
	data, err := os.ReadFile(filepath.Join(root, "go.mod"))
	if err != nil {
		return nil, fmt.Errorf("failed to read go.mod: %w", err)
	}
	module := modfile.ModulePath(data)
	if module == "" {
		return nil, fmt.Errorf("no module path in %s", filepath.Join(root, "go.mod"))
	}
	return Check(root, DefaultPolicy(module))
}

// Check parses every non-test Go file below root and reports writes that
// break policy. Directories the go tool ignores (testdata, vendor, names
// starting with . or _) are skipped.
func Check(root string, policy Policy) ([]Violation, error) {
	fset := token.NewFileSet()
	var violations []Violation

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && ignoredDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(p, ".go") || strings.HasSuffix(p, "_test.go") {
			return nil
		}
		rel, err := filepath.Rel(root, filepath.Dir(p))
		if err != nil {
			return err
		}
		pkg := policy.Module
		if rel != "." {
			pkg = path.Join(policy.Module, filepath.ToSlash(rel))
		}
		file, err := parser.ParseFile(fset, p, nil, parser.SkipObjectResolution)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", p, err)
		}
		violations = append(violations, checkFile(fset, file, pkg, policy)...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(violations, func(i, j int) bool {
		a, b := violations[i].Pos, violations[j].Pos
		if a.Filename != b.Filename {
			return a.Filename < b.Filename
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})
	return violations, nil
}

func ignoredDir(name string) bool {
	return name == "testdata" || name == "vendor" || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}

type fileChecker struct {
	fset       *token.FileSet
	pkg        string
	rules      []Rule // rules the package does not own
	imports    map[string]string
	writeSQL   map[string]*regexp.Regexp
	violations []Violation
}

func checkFile(fset *token.FileSet, file *ast.File, pkg string, policy Policy) []Violation {
	c := &fileChecker{
		fset:     fset,
		pkg:      pkg,
		imports:  importNames(file),
		writeSQL: make(map[string]*regexp.Regexp),
	}
	for _, r := range policy.Rules {
		if !r.ownedBy(pkg) {
			c.rules = append(c.rules, r)
			c.writeSQL[r.Name] = writeStatement(r.Tables)
		}
	}
	if len(c.rules) == 0 {
		return nil
	}

	in := inspector.New([]*ast.File{file})
	in.Preorder([]ast.Node{
		(*ast.BasicLit)(nil),
		(*ast.CallExpr)(nil),
		(*ast.CompositeLit)(nil),
	}, func(n ast.Node) {
		switch n := n.(type) {
		case *ast.BasicLit:
			c.checkSQL(n)
		case *ast.CallExpr:
			c.checkCall(n)
		case *ast.CompositeLit:
			c.checkLiteral(n.Type, n.Pos(), "constructs")
		}
	})
	return c.violations
}

// writeStatement matches INSERT, UPDATE, DELETE and TRUNCATE on any of tables
func writeStatement(tables []string) *regexp.Regexp {
	quoted := make([]string, len(tables))
	for i, t := range tables {
		quoted[i] = regexp.QuoteMeta(t)
	}
	name := `"?(` + strings.Join(quoted, "|") + `)(?:"|\b)`
	return regexp.MustCompile(`(?is)\b(insert\s+into\s+` + name + `|update\s+` + name + `\s+set\b|delete\s+from\s+` + name +
		`|truncate\s+(table\s+)?` + name + `)`)
}

func (c *fileChecker) checkSQL(lit *ast.BasicLit) {
	if lit.Kind != token.STRING {
		return
	}
	s, err := strconv.Unquote(lit.Value)
	if err != nil {
		return
	}
	for _, r := range c.rules {
		if m := c.writeSQL[r.Name].FindString(s); m != "" {
			c.report(lit.Pos(), r, fmt.Sprintf("writes with SQL %q", strings.Join(strings.Fields(m), " ")))
		}
	}
}

// checkCall catches table handles such as db.Table("stock_batches") and
// allocations such as new(inventory.StockBatch)
func (c *fileChecker) checkCall(call *ast.CallExpr) {
	switch fn := call.Fun.(type) {
	case *ast.SelectorExpr:
		if fn.Sel.Name != "Table" || len(call.Args) == 0 {
			return
		}
		lit, ok := call.Args[0].(*ast.BasicLit)
		if !ok || lit.Kind != token.STRING {
			return
		}
		table, err := strconv.Unquote(lit.Value)
		if err != nil {
			return
		}
		fields := strings.Fields(table)
		if len(fields) == 0 {
			return
		}
		for _, r := range c.rules {
			for _, t := range r.Tables {
				if fields[0] == t {
					c.report(call.Pos(), r, fmt.Sprintf("opens a handle on table %s", t))
				}
			}
		}
	case *ast.Ident:
		if fn.Name == "new" && len(call.Args) == 1 {
			c.checkLiteral(call.Args[0], call.Pos(), "allocates")
		}
	}
}

func (c *fileChecker) checkLiteral(typ ast.Expr, pos token.Pos, verb string) {
	if typ == nil {
		return
	}
	if star, ok := typ.(*ast.StarExpr); ok {
		typ = star.X
	}
	sel, ok := typ.(*ast.SelectorExpr)
	if !ok {
		return
	}
	ident, ok := sel.X.(*ast.Ident)
	if !ok {
		return
	}
	pkgPath, ok := c.imports[ident.Name]
	if !ok {
		return
	}
	for _, r := range c.rules {
		if r.hasType(pkgPath, sel.Sel.Name) {
			c.report(pos, r, fmt.Sprintf("%s %s.%s", verb, ident.Name, sel.Sel.Name))
		}
	}
}

func (c *fileChecker) report(pos token.Pos, r Rule, reason string) {
	c.violations = append(c.violations, Violation{
		Pos:     c.fset.Position(pos),
		Package: c.pkg,
		Rule:    r.Name,
		Reason:  reason,
	})
}

// importNames maps the local name of each import to its path. Without an
// explicit name the last path element is assumed.
func importNames(file *ast.File) map[string]string {
	names := make(map[string]string, len(file.Imports))
	for _, spec := range file.Imports {
		p, err := strconv.Unquote(spec.Path.Value)
		if err != nil {
			continue
		}
		name := path.Base(p)
		if spec.Name != nil {
			name = spec.Name.Name
		}
		if name == "_" || name == "." {
			continue
		}
		names[name] = p
	}
	return names
}
