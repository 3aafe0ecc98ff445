package finance

// ChartOfAccounts answers existence checks for accounts and legal entities.
// It is static configuration; managing it is out of scope for the ledger.
type ChartOfAccounts interface {
	HasAccount(code string) bool
	HasLegalEntity(id string) bool
}
