package finance

type AccountingEntry struct{ DocID string }

type TrialBalance struct{ LegalEntityID string }
