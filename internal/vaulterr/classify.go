package vaulterr

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/quantumauth-io/gamevault-client/internal/codec"
	"github.com/quantumauth-io/gamevault-client/internal/ledger"
	"github.com/quantumauth-io/gamevault-client/internal/signer"
)

// Markers the ledger and wallets put in vm_status or error messages.
var (
	insufficientMarkers = []string{
		"INSUFFICIENT_BALANCE",
		"EINSUFFICIENT_BALANCE",
	}
	rejectedMarkers = []string{
		"USER_REJECTED",
		"USER REJECTED",
		"REJECTED BY USER",
	}
)

// Classify maps a failure from the gateway or signer during op onto the
// taxonomy. Errors that already belong to it pass through unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindUnknown {
		return err
	}

	switch {
	case errors.Is(err, signer.ErrUserCancelled):
		return &UserCancelled{Op: op}
	case errors.Is(err, signer.ErrNotReady):
		return &SignerUnavailable{Reason: "no signing key", Cause: err}
	}

	text := strings.ToUpper(err.Error())
	if containsAny(text, rejectedMarkers) {
		return &UserCancelled{Op: op}
	}
	if containsAny(text, insufficientMarkers) {
		return &InsufficientFunds{}
	}

	tf := &TransactionFailed{Op: op, Cause: err}
	var aborted *ledger.AbortedError
	if errors.As(err, &aborted) {
		tf.Hash = aborted.Hash
	}
	return tf
}

// WithHash records the submitted transaction hash on a TransactionFailed
// that does not carry one yet.
func WithHash(err error, hash string) error {
	var tf *TransactionFailed
	if errors.As(err, &tf) && tf.Hash == "" {
		tf.Hash = hash
	}
	return err
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// Retryable reports whether repeating the same operation may succeed.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTransactionFailed:
		return true
	case KindUnknown:
		var apiErr *ledger.APIError
		if errors.As(err, &apiErr) {
			return apiErr.Transient()
		}
		return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ledger.ErrConfirmationTimeout)
	default:
		return false
	}
}

// Silent reports errors that should not be shown as failures.
func Silent(err error) bool {
	return KindOf(err) == KindUserCancelled
}

// Code is the stable machine code for err.
func Code(err error) string {
	return KindOf(err).String()
}

// UserMessage is a short sentence suitable for the UI.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var (
		fi *InsufficientFunds
		ia *InvalidArgument
		su *SignerUnavailable
	)
	switch KindOf(err) {
	case KindInsufficientFunds:
		_ = errors.As(err, &fi)
		if !fi.Known() {
			return "Insufficient balance to complete the transaction."
		}
		return "Insufficient balance: this purchase requires " + codec.FormatAmount(fi.Required) +
			" but only " + codec.FormatAmount(fi.Available) + " is available (short " + codec.FormatAmount(fi.Shortfall) + ")."
	case KindListingUnavailable:
		return "This game is not available for purchase."
	case KindNotTransferable:
		return "This license cannot be transferred."
	case KindUserCancelled:
		return "Request cancelled."
	case KindRegistryUnavailable:
		return "The license registry is unavailable. Try again later."
	case KindTransactionFailed:
		return "The transaction failed. You can try again."
	case KindSignerUnavailable:
		_ = errors.As(err, &su)
		return "Wallet not ready: " + su.Reason + "."
	case KindInvalidArgument:
		_ = errors.As(err, &ia)
		return "Invalid " + ia.Field + ": " + ia.Reason + "."
	case KindDecode:
		return "Some data could not be read."
	default:
		return "Something went wrong."
	}
}
