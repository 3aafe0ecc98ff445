package finance

import (
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
)

// NewReversal builds the equal and opposite transaction of a posted entry set.
// Debit and credit accounts are swapped; amounts and rates are kept so that
// every base amount cancels exactly.
func NewReversal(original []*AccountingEntry, reversalDocID string, postingDate time.Time) (PostingTransaction, error) {
	if len(original) == 0 {
		return PostingTransaction{}, fmt.Errorf("%w: nothing to reverse", shared.ErrNotFound)
	}
	if original[0].ReversesDocID != "" {
		return PostingTransaction{}, fmt.Errorf("%w: %s/%s is itself a reversal",
			shared.ErrInvalidState, original[0].DocType, original[0].DocID)
	}
	if reversalDocID == "" || reversalDocID == original[0].DocID {
		return PostingTransaction{}, fmt.Errorf("%w: reversal needs its own document id", shared.ErrInvalidInput)
	}

	tx := PostingTransaction{
		DocType:         original[0].DocType,
		DocID:           reversalDocID,
		PostingDate:     postingDate,
		ReversesDocType: original[0].DocType,
		ReversesDocID:   original[0].DocID,
		Lines:           make([]PostingLine, 0, len(original)),
	}
	for _, e := range original {
		tx.Lines = append(tx.Lines, PostingLine{
			LineNumber:    e.LineNumber,
			DebitAccount:  e.CreditAccount,
			CreditAccount: e.DebitAccount,
			Amount:        e.Amount,
			Currency:      e.Currency,
			FxRateToBase:  e.FxRateToBase,
			LegalEntityID: e.LegalEntityID,
			Memo:          "reversal of " + e.DocType + "/" + e.DocID,
		})
	}
	return tx, nil
}
