// Package migrations holds the postgres schema of the stock and ledger tables
package migrations

import "embed"

// FS contains the numbered up/down migration pairs
//
//go:embed *.sql
var FS embed.FS
