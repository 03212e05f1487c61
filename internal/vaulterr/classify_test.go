package vaulterr

import (
	"context"
	"net/http"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/quantumauth-io/gamevault-client/internal/ledger"
	"github.com/quantumauth-io/gamevault-client/internal/signer"
)

func TestClassify(t *testing.T) {
	require.NoError(t, Classify("purchase", nil))

	cases := []struct {
		name string
		in   error
		want Kind
	}{
		{"declined", errors.Wrap(signer.ErrUserCancelled, "wallet"), KindUserCancelled},
		{"wallet text", errors.New("User rejected the request"), KindUserCancelled},
		{"not ready", signer.ErrNotReady, KindSignerUnavailable},
		{"abort", &ledger.AbortedError{Hash: "0x1", VMStatus: "Move abort in 0x1::coin: EINSUFFICIENT_BALANCE(0x10006)"}, KindInsufficientFunds},
		{"submit rejected", &ledger.APIError{StatusCode: 400, Code: "vm_error", Message: "Invalid transaction: INSUFFICIENT_BALANCE_FOR_TRANSACTION_FEE"}, KindInsufficientFunds},
		{"other abort", &ledger.AbortedError{Hash: "0x2", VMStatus: "Move abort: ENOT_OWNER"}, KindTransactionFailed},
		{"network", errors.New("dial tcp: connection refused"), KindTransactionFailed},
		{"timeout", errors.Wrap(ledger.ErrConfirmationTimeout, "hash 0x3"), KindTransactionFailed},
		{"passthrough", &ListingUnavailable{GameID: "7", Reason: "inactive"}, KindListingUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, KindOf(Classify("purchase", tc.in)))
		})
	}
}

func TestClassify_KeepsHash(t *testing.T) {
	err := Classify("transfer", &ledger.AbortedError{Hash: "0xabc", VMStatus: "Move abort: ENOT_TRANSFERABLE"})
	var tf *TransactionFailed
	require.True(t, errors.As(err, &tf))
	require.Equal(t, "0xabc", tf.Hash)
	require.Equal(t, "transfer", tf.Op)
	require.True(t, Retryable(err))
}

func TestRetryableAndSilent(t *testing.T) {
	require.True(t, Retryable(&TransactionFailed{Op: "purchase"}))
	require.False(t, Retryable(&UserCancelled{Op: "purchase"}))
	require.False(t, Retryable(NewInsufficientFunds(10, 5)))
	require.False(t, Retryable(&RegistryUnavailable{}))
	require.True(t, Retryable(&ledger.APIError{StatusCode: http.StatusBadGateway}))
	require.False(t, Retryable(&ledger.APIError{StatusCode: http.StatusBadRequest}))
	require.True(t, Retryable(context.DeadlineExceeded))

	require.True(t, Silent(errors.Wrap(&UserCancelled{Op: "x"}, "ctx")))
	require.False(t, Silent(&TransactionFailed{}))
}

func TestInsufficientFunds(t *testing.T) {
	e := NewInsufficientFunds(599_000_000, 300_000_000)
	require.Equal(t, uint64(299_000_000), e.Shortfall)
	require.True(t, e.Known())

	msg := UserMessage(e)
	require.Contains(t, msg, "5.99 APT")
	require.Contains(t, msg, "3 APT")
	require.Contains(t, msg, "2.99 APT")

	require.Equal(t, uint64(0), NewInsufficientFunds(1, 5).Shortfall)
	require.Contains(t, UserMessage(&InsufficientFunds{}), "Insufficient balance")
}

func TestCodes(t *testing.T) {
	require.Equal(t, "insufficient_funds", Code(NewInsufficientFunds(2, 1)))
	require.Equal(t, "not_transferable", Code(&NotTransferable{LicenseID: 4}))
	require.Equal(t, "internal", Code(errors.New("boom")))
	require.Equal(t, "invalid_argument", Code(InvalidArg("title", "must not be empty")))
	require.Equal(t, "Invalid title: must not be empty.", UserMessage(InvalidArg("title", "must not be empty")))
	require.Equal(t, "", UserMessage(nil))
}
