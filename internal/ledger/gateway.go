// Package ledger is the typed adapter over the remote ledger node.
//
// The core only depends on the Gateway interface; Client is the REST
// implementation used in production and ledgertest provides an in-memory one.
package ledger

import (
	"context"
	"encoding/json"
	"strings"
)

// Gateway is the read/confirm surface of the ledger. Submission goes through
// a signer, which owns the account key.
type Gateway interface {
	// GetResource returns the resource's data object. A missing account or
	// resource is ErrNotFound.
	GetResource(ctx context.Context, address, resourceType string) (json.RawMessage, error)
	// GetTableItem returns the stored value. A missing key is ErrNotFound.
	GetTableItem(ctx context.Context, req TableItemRequest) (json.RawMessage, error)
	CallView(ctx context.Context, req ViewRequest) ([]json.RawMessage, error)
	// WaitForTransaction blocks until the transaction is committed, the
	// context ends or the confirmation timeout elapses. A committed but
	// failed transaction returns the receipt together with an *AbortedError.
	WaitForTransaction(ctx context.Context, hash string) (*Receipt, error)
	GetSpendableBalance(ctx context.Context, address string) (uint64, error)
}

type TableItemRequest struct {
	Handle    string `json:"-"`
	KeyType   string `json:"key_type"`
	ValueType string `json:"value_type"`
	Key       any    `json:"key"`
}

type ViewRequest struct {
	Function      string   `json:"function"`
	TypeArguments []string `json:"type_arguments"`
	Arguments     []any    `json:"arguments"`
}

// TransactionIntent is an entry function call before it is signed.
type TransactionIntent struct {
	Function      string   `json:"function"`
	TypeArguments []string `json:"type_arguments"`
	Arguments     []any    `json:"arguments"`
}

// EntryFunction returns the last path segment of Function, e.g.
// "buy_game_license".
func (t TransactionIntent) EntryFunction() string {
	if i := strings.LastIndex(t.Function, "::"); i >= 0 {
		return t.Function[i+2:]
	}
	return t.Function
}

type PendingTransaction struct {
	Hash string `json:"hash"`
}

type Receipt struct {
	Hash     string `json:"hash"`
	Version  uint64 `json:"version"`
	Success  bool   `json:"success"`
	VMStatus string `json:"vm_status"`
	GasUsed  uint64 `json:"gas_used"`
}

// FunctionID builds "<address>::<module>::<name>".
func FunctionID(address, module, name string) string {
	return address + "::" + module + "::" + name
}

// TableHandle is the "handle" field of a Move Table embedded in a resource.
type TableHandle struct {
	Handle string `json:"handle"`
}
