// Package vaulterr is the error taxonomy shared by the registry, listing and
// license components. Every error that leaves the core is one of these types,
// so callers can decide between retrying, prompting and staying silent.
package vaulterr

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindRegistryUnavailable
	KindListingUnavailable
	KindInsufficientFunds
	KindUserCancelled
	KindTransactionFailed
	KindDecode
	KindNotTransferable
	KindSignerUnavailable
	KindInvalidArgument
)

var kindCodes = map[Kind]string{
	KindUnknown:             "internal",
	KindRegistryUnavailable: "registry_unavailable",
	KindListingUnavailable:  "listing_unavailable",
	KindInsufficientFunds:   "insufficient_funds",
	KindUserCancelled:       "user_cancelled",
	KindTransactionFailed:   "transaction_failed",
	KindDecode:              "decode_error",
	KindNotTransferable:     "not_transferable",
	KindSignerUnavailable:   "signer_unavailable",
	KindInvalidArgument:     "invalid_argument",
}

// String returns the stable machine code used in API responses.
func (k Kind) String() string {
	if c, ok := kindCodes[k]; ok {
		return c
	}
	return kindCodes[KindUnknown]
}

// RegistryUnavailable: the registry resource could not be read or created.
// Nothing that depends on it can proceed.
type RegistryUnavailable struct {
	Cause error
}

func (e *RegistryUnavailable) Error() string {
	if e.Cause == nil {
		return "license registry unavailable"
	}
	return "license registry unavailable: " + e.Cause.Error()
}

func (e *RegistryUnavailable) Unwrap() error { return e.Cause }

type ListingUnavailable struct {
	GameID string
	Reason string
}

func (e *ListingUnavailable) Error() string {
	return fmt.Sprintf("listing %q unavailable: %s", e.GameID, e.Reason)
}

// InsufficientFunds amounts are in Octas. A zero Required means the ledger
// rejected the transaction for funds but the amounts are not known.
type InsufficientFunds struct {
	Required  uint64
	Available uint64
	Shortfall uint64
}

func NewInsufficientFunds(required, available uint64) *InsufficientFunds {
	e := &InsufficientFunds{Required: required, Available: available}
	if required > available {
		e.Shortfall = required - available
	}
	return e
}

func (e *InsufficientFunds) Error() string {
	if e.Required == 0 {
		return "insufficient funds"
	}
	return fmt.Sprintf("insufficient funds: required %d, available %d, shortfall %d", e.Required, e.Available, e.Shortfall)
}

func (e *InsufficientFunds) Known() bool { return e.Required > 0 }

type UserCancelled struct {
	Op string
}

func (e *UserCancelled) Error() string {
	return e.Op + ": cancelled by user"
}

// TransactionFailed covers rejected submissions, aborted executions, network
// failures and unconfirmed waits. A retry is permitted.
type TransactionFailed struct {
	Op    string
	Hash  string
	Cause error
}

func (e *TransactionFailed) Error() string {
	msg := e.Op + " failed"
	if e.Hash != "" {
		msg += " (tx " + e.Hash + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *TransactionFailed) Unwrap() error { return e.Cause }

// DecodeError is logged and the affected field rendered empty. It never
// aborts a read.
type DecodeError struct {
	Field string
	Cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Field, e.Cause)
}

func (e *DecodeError) Unwrap() error { return e.Cause }

type NotTransferable struct {
	LicenseID  uint64
	ObservedAt time.Time
}

func (e *NotTransferable) Error() string {
	return fmt.Sprintf("license %d is not transferable", e.LicenseID)
}

// SignerUnavailable: no signer, locked key, or a signer for a different
// account than the one the operation names.
type SignerUnavailable struct {
	Reason string
	Cause  error
}

func (e *SignerUnavailable) Error() string {
	if e.Cause != nil {
		return "signer unavailable: " + e.Reason + ": " + e.Cause.Error()
	}
	return "signer unavailable: " + e.Reason
}

func (e *SignerUnavailable) Unwrap() error { return e.Cause }

type InvalidArgument struct {
	Field  string
	Reason string
}

func (e *InvalidArgument) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func InvalidArg(field, reason string) *InvalidArgument {
	return &InvalidArgument{Field: field, Reason: reason}
}

// KindOf classifies err by the most specific taxonomy error in its chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var (
		ru *RegistryUnavailable
		lu *ListingUnavailable
		fi *InsufficientFunds
		uc *UserCancelled
		tf *TransactionFailed
		de *DecodeError
		nt *NotTransferable
		su *SignerUnavailable
		ia *InvalidArgument
	)
	switch {
	case errors.As(err, &uc):
		return KindUserCancelled
	case errors.As(err, &fi):
		return KindInsufficientFunds
	case errors.As(err, &nt):
		return KindNotTransferable
	case errors.As(err, &lu):
		return KindListingUnavailable
	case errors.As(err, &su):
		return KindSignerUnavailable
	case errors.As(err, &ia):
		return KindInvalidArgument
	case errors.As(err, &ru):
		return KindRegistryUnavailable
	case errors.As(err, &tf):
		return KindTransactionFailed
	case errors.As(err, &de):
		return KindDecode
	default:
		return KindUnknown
	}
}
