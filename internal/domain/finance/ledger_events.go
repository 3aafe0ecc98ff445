package finance

import (
	"sort"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AggregateTypeLedgerTransaction is the aggregate type of ledger events
const AggregateTypeLedgerTransaction = "LedgerTransaction"

// EventTypeEntriesPosted is raised once per newly written entry set
const EventTypeEntriesPosted = "finance.entries_posted"

// TransactionID derives a stable aggregate id from a posting key
func TransactionID(idempotencyKey string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(idempotencyKey))
}

// EntriesPostedEvent is raised after the entries of a document were written
type EntriesPostedEvent struct {
	shared.BaseDomainEvent
	IdempotencyKey string          `json:"idempotency_key"`
	DocType        string          `json:"doc_type"`
	DocID          string          `json:"doc_id"`
	LineCount      int             `json:"line_count"`
	TotalBase      decimal.Decimal `json:"total_base"`
	LegalEntityIDs []string        `json:"legal_entity_ids"`
	ReversesDocID  string          `json:"reverses_doc_id,omitempty"`
}

// NewEntriesPostedEvent creates a new EntriesPostedEvent
func NewEntriesPostedEvent(entries []*AccountingEntry) *EntriesPostedEvent {
	first := entries[0]
	debit, _ := Totals(entries)
	seen := map[string]struct{}{}
	var entities []string
	for _, e := range entries {
		if _, ok := seen[e.LegalEntityID]; !ok {
			seen[e.LegalEntityID] = struct{}{}
			entities = append(entities, e.LegalEntityID)
		}
	}
	sort.Strings(entities)
	return &EntriesPostedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeEntriesPosted, AggregateTypeLedgerTransaction, TransactionID(first.IdempotencyKey)),
		IdempotencyKey:  first.IdempotencyKey,
		DocType:         first.DocType,
		DocID:           first.DocID,
		LineCount:       len(entries),
		TotalBase:       debit,
		LegalEntityIDs:  entities,
		ReversesDocID:   first.ReversesDocID,
	}
}
