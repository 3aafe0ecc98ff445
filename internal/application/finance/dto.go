package finance

import (
	"time"

	"github.com/erp/stockledger/internal/domain/finance"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryResponse represents a ledger line in responses
type EntryResponse struct {
	ID              uuid.UUID       `json:"id"`
	IdempotencyKey  string          `json:"idempotency_key"`
	DocType         string          `json:"doc_type"`
	DocID           string          `json:"doc_id"`
	LineNumber      int             `json:"line_number"`
	PostingDate     time.Time       `json:"posting_date"`
	DebitAccount    string          `json:"debit_account,omitempty"`
	CreditAccount   string          `json:"credit_account,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	FxRateToBase    decimal.Decimal `json:"fx_rate_to_base"`
	AmountBase      decimal.Decimal `json:"amount_base"`
	BaseCurrency    string          `json:"base_currency"`
	LegalEntityID   string          `json:"legal_entity_id"`
	Memo            string          `json:"memo,omitempty"`
	ReversesDocType string          `json:"reverses_doc_type,omitempty"`
	ReversesDocID   string          `json:"reverses_doc_id,omitempty"`
}

// PostingResult is returned by Post and Reverse. Replayed is true when the
// entries had been written by an earlier call with the same payload.
type PostingResult struct {
	IdempotencyKey string          `json:"idempotency_key"`
	Entries        []EntryResponse `json:"entries"`
	TotalBase      decimal.Decimal `json:"total_base"`
	Replayed       bool            `json:"replayed"`
}

// ToEntryResponse converts a domain entry to a response
func ToEntryResponse(e *finance.AccountingEntry) EntryResponse {
	return EntryResponse{
		ID:              e.ID,
		IdempotencyKey:  e.IdempotencyKey,
		DocType:         e.DocType,
		DocID:           e.DocID,
		LineNumber:      e.LineNumber,
		PostingDate:     e.PostingDate,
		DebitAccount:    e.DebitAccount,
		CreditAccount:   e.CreditAccount,
		Amount:          e.Amount,
		Currency:        e.Currency,
		FxRateToBase:    e.FxRateToBase,
		AmountBase:      e.AmountBase,
		BaseCurrency:    e.BaseCurrency,
		LegalEntityID:   e.LegalEntityID,
		Memo:            e.Memo,
		ReversesDocType: e.ReversesDocType,
		ReversesDocID:   e.ReversesDocID,
	}
}

// ToEntryResponses converts a slice of domain entries
func ToEntryResponses(entries []*finance.AccountingEntry) []EntryResponse {
	out := make([]EntryResponse, len(entries))
	for i, e := range entries {
		out[i] = ToEntryResponse(e)
	}
	return out
}

func newPostingResult(entries []*finance.AccountingEntry, replayed bool) *PostingResult {
	debit, _ := finance.Totals(entries)
	result := &PostingResult{
		Entries:   ToEntryResponses(entries),
		TotalBase: debit,
		Replayed:  replayed,
	}
	if len(entries) > 0 {
		result.IdempotencyKey = entries[0].IdempotencyKey
	}
	return result
}
