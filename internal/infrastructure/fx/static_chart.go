package fx

import (
	"github.com/erp/stockledger/internal/domain/finance"
)

// StaticChart is a ChartOfAccounts loaded from configuration
type StaticChart struct {
	accounts      map[string]struct{}
	legalEntities map[string]struct{}
}

// NewStaticChart creates a chart from account codes and legal entity IDs
func NewStaticChart(accounts, legalEntities []string) *StaticChart {
	c := &StaticChart{
		accounts:      make(map[string]struct{}, len(accounts)),
		legalEntities: make(map[string]struct{}, len(legalEntities)),
	}
	for _, a := range accounts {
		c.accounts[a] = struct{}{}
	}
	for _, le := range legalEntities {
		c.legalEntities[le] = struct{}{}
	}
	return c
}

// HasAccount reports whether code is in the chart
func (c *StaticChart) HasAccount(code string) bool {
	_, ok := c.accounts[code]
	return ok
}

// HasLegalEntity reports whether id is a configured legal entity
func (c *StaticChart) HasLegalEntity(id string) bool {
	_, ok := c.legalEntities[id]
	return ok
}

var _ finance.ChartOfAccounts = (*StaticChart)(nil)
