package finance

import (
	"fmt"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// UnbalancedPostingError reports a transaction whose debit and credit totals
// differ by more than the allowed epsilon in base currency. It is an input
// error; retrying the same payload fails the same way.
type UnbalancedPostingError struct {
	DocType     string
	DocID       string
	DebitTotal  decimal.Decimal
	CreditTotal decimal.Decimal
	Epsilon     decimal.Decimal
}

// Difference returns debit minus credit
func (e *UnbalancedPostingError) Difference() decimal.Decimal {
	return e.DebitTotal.Sub(e.CreditTotal)
}

// Error implements the error interface
func (e *UnbalancedPostingError) Error() string {
	return fmt.Sprintf("unbalanced posting %s/%s: debit %s, credit %s (difference %s, epsilon %s)",
		e.DocType, e.DocID, e.DebitTotal, e.CreditTotal, e.Difference(), e.Epsilon)
}

// Unwrap allows errors.Is(err, shared.ErrUnbalancedPosting)
func (e *UnbalancedPostingError) Unwrap() error {
	return shared.ErrUnbalancedPosting
}

// Totals returns the base-currency debit and credit totals of entries
func Totals(entries []*AccountingEntry) (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, e := range entries {
		if e.IsDebit() {
			debit = debit.Add(e.AmountBase)
		}
		if e.IsCredit() {
			credit = credit.Add(e.AmountBase)
		}
	}
	return debit, credit
}

// CheckBalance fails with *UnbalancedPostingError when |debit - credit| > epsilon
func CheckBalance(docType, docID string, entries []*AccountingEntry, epsilon decimal.Decimal) error {
	debit, credit := Totals(entries)
	if debit.Sub(credit).Abs().GreaterThan(epsilon) {
		return &UnbalancedPostingError{
			DocType:     docType,
			DocID:       docID,
			DebitTotal:  debit,
			CreditTotal: credit,
			Epsilon:     epsilon,
		}
	}
	return nil
}
