// Package idemkey derives deterministic idempotency keys from source-document identity.
//
// Keys are plain strings built only from their inputs, so they are stable across
// process restarts. Two families exist:
//
//	transaction-level: {namespace}:{version}:{docType}:{docId}:{operation}[:{lineId}]
//	movement-level:    {namespace}:{version}:{docType}:{docId}:{direction}:{itemId}:{warehouseId}[:{batchId}][:part{N}][:{lineId}]
package idemkey

import (
	"strconv"
	"strings"
)

// Version is the key format version. Bump it only with a data migration.
const Version = "v1"

// Namespaces for the key families.
const (
	NamespaceInventoryTransaction = "invtx"
	NamespaceStockMovement        = "invm"
	NamespaceAccounting           = "acc"
)

// Operation identifies the logical operation of a transaction-level key.
type Operation string

const (
	OperationIn     Operation = "IN"
	OperationOut    Operation = "OUT"
	OperationAdjust Operation = "ADJUST"
	OperationPost   Operation = "POST"
)

// TransactionKeyParams identifies a coarse-grained operation on a source document.
type TransactionKeyParams struct {
	Namespace     string
	SourceDocType string
	SourceDocID   string
	Operation     Operation
	LineID        string
}

// MovementKeyParams identifies one FIFO movement part of a stock operation.
// PartN is a pointer so that part 0 is distinguishable from "no part".
type MovementKeyParams struct {
	SourceDocType string
	SourceDocID   string
	Direction     Operation
	ItemID        string
	WarehouseID   string
	BatchID       string
	PartN         *int
	LineID        string
}

// TransactionKey builds a transaction-level key. An empty namespace defaults to invtx.
func TransactionKey(p TransactionKeyParams) string {
	ns := p.Namespace
	if ns == "" {
		ns = NamespaceInventoryTransaction
	}
	parts := []string{ns, Version, p.SourceDocType, p.SourceDocID, string(p.Operation)}
	if p.LineID != "" {
		parts = append(parts, p.LineID)
	}
	return strings.Join(parts, ":")
}

// MovementKey builds a movement-level key.
func MovementKey(p MovementKeyParams) string {
	parts := []string{
		NamespaceStockMovement,
		Version,
		p.SourceDocType,
		p.SourceDocID,
		string(p.Direction),
		p.ItemID,
		p.WarehouseID,
	}
	if p.BatchID != "" {
		parts = append(parts, p.BatchID)
	}
	if p.PartN != nil {
		parts = append(parts, "part"+strconv.Itoa(*p.PartN))
	}
	if p.LineID != "" {
		parts = append(parts, p.LineID)
	}
	return strings.Join(parts, ":")
}

// PostingKey builds the ledger transaction key for a (docType, docId) pair.
func PostingKey(docType, docID string) string {
	return TransactionKey(TransactionKeyParams{
		Namespace:     NamespaceAccounting,
		SourceDocType: docType,
		SourceDocID:   docID,
		Operation:     OperationPost,
	})
}

// Part returns a pointer to n, for MovementKeyParams.PartN.
func Part(n int) *int {
	return &n
}
