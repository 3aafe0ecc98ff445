package finance

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/shared/idemkey"
	"github.com/erp/stockledger/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// AmountScale is the number of decimal places stored for line amounts, in
// document and in base currency
const AmountScale int32 = 4

// AccountingEntry is one immutable double-entry ledger line.
// A line carries a debit account, a credit account, or both.
type AccountingEntry struct {
	shared.BaseEntity
	IdempotencyKey  string
	Fingerprint     string
	DocType         string
	DocID           string
	LineNumber      int
	PostingDate     time.Time
	DebitAccount    string
	CreditAccount   string
	Amount          decimal.Decimal
	Currency        string
	FxRateToBase    decimal.Decimal
	AmountBase      decimal.Decimal
	BaseCurrency    string
	LegalEntityID   string
	Memo            string
	ReversesDocType string
	ReversesDocID   string
}

// IsDebit returns true when the line contributes to the debit side
func (e *AccountingEntry) IsDebit() bool {
	return e.DebitAccount != ""
}

// IsCredit returns true when the line contributes to the credit side
func (e *AccountingEntry) IsCredit() bool {
	return e.CreditAccount != ""
}

// PostingLine is one proposed ledger line.
// A zero FxRateToBase means the rate is resolved by the currency converter.
type PostingLine struct {
	LineNumber    int
	DebitAccount  string
	CreditAccount string
	Amount        decimal.Decimal
	Currency      string
	FxRateToBase  decimal.Decimal
	LegalEntityID string
	Memo          string
}

// PostingTransaction is the set of lines posted for one source document.
// A zero PostingDate is booked on the day the posting is normalized.
type PostingTransaction struct {
	DocType         string
	DocID           string
	PostingDate     time.Time
	Lines           []PostingLine
	ReversesDocType string
	ReversesDocID   string

	dateDefaulted bool
}

// IdempotencyKey returns the transaction-level key of the posting
func (t PostingTransaction) IdempotencyKey() string {
	return idemkey.PostingKey(t.DocType, t.DocID)
}

// LockKey returns the critical-section key of the posting
func (t PostingTransaction) LockKey() string {
	return shared.LockKey("posting", t.DocType, t.DocID)
}

// Fingerprint hashes the canonical payload. Conversion rates are excluded so
// that a retry resolving a fresh rate is still recognised as the same posting.
// A posting date the caller left empty is excluded too: a retry on a later
// day must match the first attempt.
func (t PostingTransaction) Fingerprint() string {
	date := ""
	if !t.PostingDate.IsZero() && !t.dateDefaulted {
		date = t.PostingDate.UTC().Format("2006-01-02")
	}
	fields := []string{
		t.DocType,
		t.DocID,
		date,
		t.ReversesDocType,
		t.ReversesDocID,
	}
	for _, l := range t.Lines {
		fields = append(fields,
			strconv.Itoa(l.LineNumber),
			l.DebitAccount,
			l.CreditAccount,
			l.Amount.String(),
			strings.ToUpper(l.Currency),
			l.LegalEntityID,
		)
	}
	return idemkey.Fingerprint(fields...)
}

// Normalize orders lines by line number and numbers them 1..n.
// Lines without numbers are numbered by position; supplied numbers must be exactly 1..n.
func (t PostingTransaction) Normalize() (PostingTransaction, error) {
	if len(t.Lines) == 0 {
		return t, fmt.Errorf("%w: posting has no lines", shared.ErrInvalidInput)
	}
	lines := make([]PostingLine, len(t.Lines))
	copy(lines, t.Lines)

	numbered := 0
	for _, l := range lines {
		if l.LineNumber != 0 {
			numbered++
		}
	}
	switch numbered {
	case 0:
		for i := range lines {
			lines[i].LineNumber = i + 1
		}
	case len(lines):
		sort.SliceStable(lines, func(i, j int) bool { return lines[i].LineNumber < lines[j].LineNumber })
		for i, l := range lines {
			if l.LineNumber != i+1 {
				return t, fmt.Errorf("%w: line numbers must be 1..%d without gaps", shared.ErrInvalidInput, len(lines))
			}
		}
	default:
		return t, fmt.Errorf("%w: either all or no lines carry a line number", shared.ErrInvalidInput)
	}

	t.Lines = lines
	t = t.WithDefaultDate(time.Now())
	t.PostingDate = t.PostingDate.UTC().Truncate(24 * time.Hour)
	return t, nil
}

// WithDefaultDate books a posting without a date on the day of now. The
// defaulted date is left out of the fingerprint.
func (t PostingTransaction) WithDefaultDate(now time.Time) PostingTransaction {
	if t.PostingDate.IsZero() {
		t.PostingDate = now
		t.dateDefaulted = true
	}
	return t
}

// Validate checks the document identity and every line. It does not check balance.
func (t PostingTransaction) Validate(chart ChartOfAccounts) error {
	if strings.TrimSpace(t.DocType) == "" || strings.TrimSpace(t.DocID) == "" {
		return fmt.Errorf("%w: docType and docId are required", shared.ErrInvalidInput)
	}
	if strings.Contains(t.DocType+t.DocID, ":") {
		return fmt.Errorf("%w: docType and docId must not contain ':'", shared.ErrInvalidInput)
	}
	if t.PostingDate.IsZero() {
		return fmt.Errorf("%w: posting date is required", shared.ErrInvalidInput)
	}
	for _, l := range t.Lines {
		if err := l.validate(chart); err != nil {
			return err
		}
	}
	return nil
}

func (l PostingLine) validate(chart ChartOfAccounts) error {
	if strings.TrimSpace(l.LegalEntityID) == "" {
		return fmt.Errorf("%w: line %d", shared.ErrMissingLegalEntity, l.LineNumber)
	}
	if chart != nil && !chart.HasLegalEntity(l.LegalEntityID) {
		return fmt.Errorf("%w: line %d: %s", shared.ErrUnknownLegalEntity, l.LineNumber, l.LegalEntityID)
	}
	if !l.Amount.IsPositive() {
		return fmt.Errorf("%w: line %d: amount must be positive", shared.ErrInvalidInput, l.LineNumber)
	}
	if !valueobject.FitsScale(l.Amount, AmountScale) {
		return fmt.Errorf("%w: line %d: amount %s has more than %d decimal places",
			shared.ErrInvalidInput, l.LineNumber, l.Amount, AmountScale)
	}
	if _, err := valueobject.ParseCurrency(l.Currency); err != nil {
		return fmt.Errorf("%w: line %d: %v", shared.ErrInvalidInput, l.LineNumber, err)
	}
	if l.FxRateToBase.IsNegative() {
		return fmt.Errorf("%w: line %d: conversion rate cannot be negative", shared.ErrInvalidInput, l.LineNumber)
	}
	if l.DebitAccount == "" && l.CreditAccount == "" {
		return fmt.Errorf("%w: line %d: a debit or credit account is required", shared.ErrInvalidInput, l.LineNumber)
	}
	if l.DebitAccount != "" && l.DebitAccount == l.CreditAccount {
		return fmt.Errorf("%w: line %d: debit and credit account must differ", shared.ErrInvalidInput, l.LineNumber)
	}
	if chart != nil {
		for _, acc := range []string{l.DebitAccount, l.CreditAccount} {
			if acc != "" && !chart.HasAccount(acc) {
				return fmt.Errorf("%w: line %d: %s", shared.ErrUnknownAccount, l.LineNumber, acc)
			}
		}
	}
	return nil
}

// BuildEntries converts a normalized, validated transaction into ledger entries.
// rates[i] is the base conversion rate of line i; amounts are rounded half-even to scale.
func BuildEntries(t PostingTransaction, rates []decimal.Decimal, baseCurrency valueobject.Currency, scale int32) ([]*AccountingEntry, error) {
	if len(rates) != len(t.Lines) {
		return nil, fmt.Errorf("%w: %d rates for %d lines", shared.ErrInvalidInput, len(rates), len(t.Lines))
	}
	key := t.IdempotencyKey()
	fingerprint := t.Fingerprint()

	entries := make([]*AccountingEntry, 0, len(t.Lines))
	for i, l := range t.Lines {
		currency, err := valueobject.ParseCurrency(l.Currency)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", shared.ErrInvalidInput, l.LineNumber, err)
		}
		amount, err := valueobject.NewMoney(l.Amount, currency)
		if err != nil {
			return nil, err
		}
		rate := rates[i]
		if currency == baseCurrency {
			rate = decimal.NewFromInt(1)
		}
		base, err := amount.ConvertTo(baseCurrency, rate, scale)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", shared.ErrInvalidInput, l.LineNumber, err)
		}
		entries = append(entries, &AccountingEntry{
			BaseEntity:      shared.NewBaseEntity(),
			IdempotencyKey:  key,
			Fingerprint:     fingerprint,
			DocType:         t.DocType,
			DocID:           t.DocID,
			LineNumber:      l.LineNumber,
			PostingDate:     t.PostingDate,
			DebitAccount:    l.DebitAccount,
			CreditAccount:   l.CreditAccount,
			Amount:          l.Amount,
			Currency:        currency.String(),
			FxRateToBase:    rate,
			AmountBase:      base.Amount(),
			BaseCurrency:    baseCurrency.String(),
			LegalEntityID:   l.LegalEntityID,
			Memo:            l.Memo,
			ReversesDocType: t.ReversesDocType,
			ReversesDocID:   t.ReversesDocID,
		})
	}
	return entries, nil
}

// CheckReplay compares stored entries with an incoming fingerprint
func CheckReplay(stored []*AccountingEntry, fingerprint string) error {
	if len(stored) == 0 {
		return nil
	}
	if stored[0].Fingerprint != fingerprint {
		return shared.NewIdempotencyConflictError(stored[0].IdempotencyKey, stored[0].Fingerprint, fingerprint)
	}
	return nil
}
