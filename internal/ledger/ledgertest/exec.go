package ledgertest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/quantumauth-io/gamevault-client/internal/codec"
	"github.com/quantumauth-io/gamevault-client/internal/constants"
	"github.com/quantumauth-io/gamevault-client/internal/ledger"
	"github.com/quantumauth-io/gamevault-client/internal/signer"
)

// Signer submits straight into a Ledger as one account.
type Signer struct {
	ledger  *Ledger
	address string

	// Decline makes every request fail with signer.ErrUserCancelled.
	Decline bool
	// Err, when set, is returned instead of submitting.
	Err error
}

var _ signer.Signer = (*Signer)(nil)

func (l *Ledger) Signer(address string) *Signer {
	return &Signer{ledger: l, address: norm(address)}
}

func (s *Signer) Address() string { return s.address }

func (s *Signer) SignAndSubmit(ctx context.Context, intent ledger.TransactionIntent) (ledger.PendingTransaction, error) {
	if err := ctx.Err(); err != nil {
		return ledger.PendingTransaction{}, err
	}
	if s.Decline {
		return ledger.PendingTransaction{}, signer.ErrUserCancelled
	}
	if s.Err != nil {
		return ledger.PendingTransaction{}, s.Err
	}
	return s.ledger.submit(s.address, intent)
}

func (l *Ledger) submit(sender string, intent ledger.TransactionIntent) (ledger.PendingTransaction, error) {
	l.mu.Lock()
	l.submissions = append(l.submissions, intent)
	hook := l.submitHook
	l.mu.Unlock()

	if hook != nil {
		if err := hook(sender, intent); err != nil {
			return ledger.PendingTransaction{}, err
		}
	}

	l.mu.Lock()
	l.txCount++
	hash := fmt.Sprintf("0x%064x", l.txCount)
	vmStatus := "Executed successfully"
	abort := l.executeLocked(sender, intent)
	if abort != "" {
		vmStatus = "Move abort in " + l.abortLocation(abort) + ": " + abort
	}
	l.receipts[hash] = &ledger.Receipt{
		Hash:     hash,
		Version:  uint64(l.txCount),
		Success:  abort == "",
		VMStatus: vmStatus,
	}
	after := l.afterExecute
	l.mu.Unlock()

	if after != nil {
		after(sender, intent)
	}
	return ledger.PendingTransaction{Hash: hash}, nil
}

func (l *Ledger) abortLocation(code string) string {
	if strings.HasPrefix(code, "EINSUFFICIENT_BALANCE") {
		return "0x1::coin"
	}
	return l.module + "::" + constants.LicenseModule
}

// executeLocked applies an entry function and returns the abort code, or ""
// on success. Aborted transactions leave state untouched.
func (l *Ledger) executeLocked(sender string, intent ledger.TransactionIntent) string {
	if !l.isModuleFunction(intent.Function) {
		return "EFUNCTION_NOT_FOUND"
	}
	args := intent.Arguments
	name := intent.EntryFunction()

	if name == constants.FnInitializeRegistry {
		if l.registry {
			return "EREGISTRY_ALREADY_EXISTS"
		}
		l.registry = true
		return ""
	}
	if !l.registry {
		return "EREGISTRY_NOT_INITIALIZED"
	}

	switch name {
	case constants.FnRegisterGame:
		if len(args) != 4 {
			return "EINVALID_ARGUMENTS"
		}
		price, err := argU64(args[0])
		if err != nil {
			return "EINVALID_ARGUMENTS"
		}
		var text [3]string
		for i := range text {
			b, err := argBytes(args[i+1])
			if err != nil {
				return "EINVALID_ARGUMENTS"
			}
			text[i] = string(b)
		}
		l.addGameLocked(Game{
			Seller:      sender,
			Title:       text[0],
			Description: text[1],
			MetadataURI: text[2],
			Price:       price,
			Active:      true,
		})
		return ""

	case constants.FnSetGameActive:
		if len(args) != 2 {
			return "EINVALID_ARGUMENTS"
		}
		id, err := argU64(args[0])
		if err != nil {
			return "EINVALID_ARGUMENTS"
		}
		active, err := argBool(args[1])
		if err != nil {
			return "EINVALID_ARGUMENTS"
		}
		g, ok := l.games[id]
		if !ok {
			return "EGAME_NOT_FOUND"
		}
		if g.Seller != sender {
			return "ENOT_SELLER"
		}
		g.Active = active
		return ""

	case constants.FnBuyGameLicense:
		if len(args) != 4 {
			return "EINVALID_ARGUMENTS"
		}
		gidBytes, err := argBytes(args[0])
		if err != nil {
			return "EINVALID_ARGUMENTS"
		}
		expiry, err := argU64(args[1])
		if err != nil {
			return "EINVALID_ARGUMENTS"
		}
		transferable, err := argBool(args[2])
		if err != nil {
			return "EINVALID_ARGUMENTS"
		}
		metadata, err := argBytes(args[3])
		if err != nil {
			return "EINVALID_ARGUMENTS"
		}
		id, err := argU64(string(gidBytes))
		if err != nil {
			return "EGAME_NOT_FOUND"
		}
		g, ok := l.games[id]
		if !ok {
			return "EGAME_NOT_FOUND"
		}
		if !g.Active {
			return "EGAME_INACTIVE"
		}
		if l.balances[sender] < g.Price {
			return "EINSUFFICIENT_BALANCE(0x10006)"
		}
		l.balances[sender] -= g.Price
		l.balances[g.Seller] += g.Price
		l.grantLocked(License{
			GameID:       string(gidBytes),
			Owner:        sender,
			Expiry:       expiry,
			Transferable: transferable,
			Metadata:     metadata,
		})
		return ""

	case constants.FnTransferLicense:
		if len(args) != 2 {
			return "EINVALID_ARGUMENTS"
		}
		to := norm(fmt.Sprint(args[0]))
		id, err := argU64(args[1])
		if err != nil {
			return "EINVALID_ARGUMENTS"
		}
		lic, ok := l.licenses[id]
		if !ok {
			return "ELICENSE_NOT_FOUND"
		}
		if lic.Owner != sender {
			return "ENOT_OWNER"
		}
		if !lic.Transferable {
			return "ENOT_TRANSFERABLE"
		}
		l.userLicenses[sender] = without(l.userLicenses[sender], id)
		lic.Owner = to
		l.userLicenses[to] = append(l.userLicenses[to], id)
		return ""

	default:
		return "EFUNCTION_NOT_FOUND"
	}
}

func without(ids []uint64, id uint64) []uint64 {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// splitFunction returns the address and module of "addr::module::name".
func splitFunction(fn string) (string, string) {
	parts := strings.Split(fn, "::")
	if len(parts) != 3 {
		return "", ""
	}
	return parts[0], parts[1]
}

func functionName(fn string) string {
	parts := strings.Split(fn, "::")
	if len(parts) != 3 {
		return ""
	}
	return parts[2]
}

// Arguments are normalized through JSON so the fake accepts exactly what
// the REST node would receive.

func argU64(v any) (uint64, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	var out codec.U64
	if err := json.Unmarshal(b, &out); err != nil {
		return 0, errors.Wrapf(err, "u64 argument %s", b)
	}
	return uint64(out), nil
}

func argBool(v any) (bool, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return false, err
	}
	var out bool
	if err := json.Unmarshal(b, &out); err != nil {
		return false, errors.Wrapf(err, "bool argument %s", b)
	}
	return out, nil
}

func argBytes(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var raw codec.Raw
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	return raw.Bytes()
}
