// Package signer submits entry function calls on behalf of one account.
package signer

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/quantumauth-io/gamevault-client/internal/ledger"
)

var (
	// ErrUserCancelled means the holder of the key declined the request.
	ErrUserCancelled = errors.New("signer: request declined")

	// ErrNotReady means there is no key to sign with: no keystore, locked
	// keystore or no connected wallet.
	ErrNotReady = errors.New("signer: not ready")
)

// Signer is the external signing capability. Implementations return a
// pending transaction as soon as the node accepted it.
type Signer interface {
	Address() string
	SignAndSubmit(ctx context.Context, intent ledger.TransactionIntent) (ledger.PendingTransaction, error)
}

// ConfirmFunc is asked before anything is signed. Returning false cancels.
type ConfirmFunc func(ctx context.Context, intent ledger.TransactionIntent) (bool, error)

// Unavailable is a Signer with no key. Reads still work; writes fail with
// ErrNotReady.
type Unavailable struct{}

func (Unavailable) Address() string { return "" }

func (Unavailable) SignAndSubmit(context.Context, ledger.TransactionIntent) (ledger.PendingTransaction, error) {
	return ledger.PendingTransaction{}, ErrNotReady
}

// Ready reports whether s can sign at all.
func Ready(s Signer) bool {
	return s != nil && s.Address() != ""
}
