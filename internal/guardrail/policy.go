// Package guardrail checks the single-writer rule on source code: only the
// FIFO engine may write stock tables and only the posting gateway may write
// ledger entries. It runs from go test and needs no build.
package guardrail

import (
	"fmt"
	"go/token"
	"strings"
)

// Rule gives a set of tables and entity types to the packages that own them
type Rule struct {
	Name string
	// Owners are import paths; a package owns the rule when its path equals
	// one of them or lies below it.
	Owners []string
	Tables []string
	// Types are entity types as "import/path.Name"
	Types []string
}

// Policy is the set of rules checked for one module
type Policy struct {
	Module string
	Rules  []Rule
}

// DefaultPolicy returns the stockledger ownership rules for module
func DefaultPolicy(module string) Policy {
	inventory := module + "/internal/domain/inventory"
	finance := module + "/internal/domain/finance"
	return Policy{
		Module: module,
		Rules: []Rule{
			{
				Name:   "stock",
				Owners: []string{module + "/internal/application/inventory", inventory},
				Tables: []string{"stock_batches", "stock_movements", "inventory_balances", "inventory_transactions"},
				Types: []string{
					inventory + ".StockBatch",
					inventory + ".StockMovement",
					inventory + ".InventoryBalance",
					inventory + ".InventoryTransaction",
				},
			},
			{
				Name:   "ledger",
				Owners: []string{module + "/internal/application/finance", finance},
				Tables: []string{"accounting_entries"},
				Types:  []string{finance + ".AccountingEntry"},
			},
		},
	}
}

func (r Rule) ownedBy(pkg string) bool {
	for _, owner := range r.Owners {
		if pkg == owner || strings.HasPrefix(pkg, owner+"/") {
			return true
		}
	}
	return false
}

func (r Rule) hasType(pkgPath, name string) bool {
	for _, t := range r.Types {
		if t == pkgPath+"."+name {
			return true
		}
	}
	return false
}

// Violation is one write to an owned table or entity outside its owner
type Violation struct {
	Pos     token.Position
	Package string
	Rule    string
	Reason  string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s rule: %s (package %s)", v.Pos, v.Rule, v.Reason, v.Package)
}
