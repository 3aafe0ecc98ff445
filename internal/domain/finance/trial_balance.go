package finance

import (
	"sort"

	"github.com/shopspring/decimal"
)

// TrialBalanceStatus represents the result status of a trial balance check
type TrialBalanceStatus string

const (
	TrialBalanceStatusBalanced   TrialBalanceStatus = "BALANCED"   // Debit equals Credit
	TrialBalanceStatusUnbalanced TrialBalanceStatus = "UNBALANCED" // Debit does not equal Credit
)

// IsValid checks if the status is a valid TrialBalanceStatus
func (s TrialBalanceStatus) IsValid() bool {
	return s == TrialBalanceStatusBalanced || s == TrialBalanceStatusUnbalanced
}

// String returns the string representation
func (s TrialBalanceStatus) String() string {
	return string(s)
}

// IsBalanced returns true if the trial balance is balanced
func (s TrialBalanceStatus) IsBalanced() bool {
	return s == TrialBalanceStatusBalanced
}

// AccountBalance is the base-currency position of one account in one legal entity.
// Balance is debit minus credit.
type AccountBalance struct {
	LegalEntityID string          `json:"legal_entity_id"`
	Account       string          `json:"account"`
	Debit         decimal.Decimal `json:"debit"`
	Credit        decimal.Decimal `json:"credit"`
	Balance       decimal.Decimal `json:"balance"`
}

// NewAccountBalance creates an AccountBalance from side totals
func NewAccountBalance(legalEntityID, account string, debit, credit decimal.Decimal) AccountBalance {
	return AccountBalance{
		LegalEntityID: legalEntityID,
		Account:       account,
		Debit:         debit,
		Credit:        credit,
		Balance:       debit.Sub(credit),
	}
}

// TrialBalance lists every account of a legal entity with its totals
type TrialBalance struct {
	LegalEntityID string             `json:"legal_entity_id"`
	Accounts      []AccountBalance   `json:"accounts"`
	TotalDebit    decimal.Decimal    `json:"total_debit"`
	TotalCredit   decimal.Decimal    `json:"total_credit"`
	Status        TrialBalanceStatus `json:"status"`
}

// NewTrialBalance sums accounts and sets the status against epsilon
func NewTrialBalance(legalEntityID string, accounts []AccountBalance, epsilon decimal.Decimal) *TrialBalance {
	sorted := make([]AccountBalance, len(accounts))
	copy(sorted, accounts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Account < sorted[j].Account })

	tb := &TrialBalance{
		LegalEntityID: legalEntityID,
		Accounts:      sorted,
		TotalDebit:    decimal.Zero,
		TotalCredit:   decimal.Zero,
	}
	for _, a := range sorted {
		tb.TotalDebit = tb.TotalDebit.Add(a.Debit)
		tb.TotalCredit = tb.TotalCredit.Add(a.Credit)
	}
	tb.Status = TrialBalanceStatusBalanced
	if tb.TotalDebit.Sub(tb.TotalCredit).Abs().GreaterThan(epsilon) {
		tb.Status = TrialBalanceStatusUnbalanced
	}
	return tb
}

// IsBalanced returns true if total debit equals total credit within epsilon
func (tb *TrialBalance) IsBalanced() bool {
	return tb.Status.IsBalanced()
}
