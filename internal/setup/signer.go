package setup

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/quantumauth-io/quantum-go-utils/log"

	clientconfig "github.com/quantumauth-io/gamevault-client/cmd/gamevault-client/config"
	"github.com/quantumauth-io/gamevault-client/internal/constants"
	"github.com/quantumauth-io/gamevault-client/internal/helpers"
	"github.com/quantumauth-io/gamevault-client/internal/ledger"
	"github.com/quantumauth-io/gamevault-client/internal/securefile"
	"github.com/quantumauth-io/gamevault-client/internal/signer"
)

// KeystorePath returns the configured keystore, or the first existing
// candidate, or the preferred location for a new one.
func KeystorePath(settings clientconfig.SignerSettings) (string, error) {
	if p := strings.TrimSpace(settings.Keystore); p != "" {
		return p, nil
	}
	candidates, err := securefile.PathCandidates(constants.AppName, constants.KeystoreFile)
	if err != nil {
		return "", err
	}
	for _, p := range candidates {
		if securefile.Exists(p) {
			return p, nil
		}
	}
	return candidates[0], nil
}

func openSigner(node signer.Node, settings clientconfig.SignerSettings, p *helpers.Prompter) (signer.Signer, error) {
	if settings.ReadOnly {
		log.Info("signer disabled, running read-only")
		return signer.Unavailable{}, nil
	}

	path, err := KeystorePath(settings)
	if err != nil {
		return nil, err
	}
	ks := signer.Keystore{Path: path}
	if !ks.Exists() {
		log.Warn("no keystore found, running read-only", "path", path)
		return signer.Unavailable{}, nil
	}
	if p == nil {
		log.Warn("no prompt available to unlock keystore, running read-only", "path", path)
		return signer.Unavailable{}, nil
	}

	return UnlockSigner(node, ks, settings, p)
}

// UnlockSigner asks for the keystore password and builds a LocalSigner.
func UnlockSigner(node signer.Node, ks signer.Keystore, settings clientconfig.SignerSettings, p *helpers.Prompter) (*signer.LocalSigner, error) {
	pw, err := p.Password("Keystore password: ")
	if err != nil {
		return nil, err
	}
	defer helpers.ZeroBytes(pw)

	seed, addr, err := ks.Unlock(pw)
	if err != nil {
		return nil, errors.Wrap(err, "unlock keystore")
	}
	defer helpers.ZeroBytes(seed)

	opts := signer.Options{
		MaxGasAmount:     settings.MaxGasAmount,
		GasUnitPrice:     settings.GasUnitPrice,
		ExpirationWindow: settings.Expiration,
	}
	if settings.Confirm {
		opts.Confirm = ConfirmWith(p)
	}

	s, err := signer.NewLocalSigner(node, seed, opts)
	if err != nil {
		return nil, err
	}
	log.Info("keystore unlocked", "address", addr, "path", ks.Path)
	return s, nil
}

// ConfirmWith asks y/N on the prompter before each signature.
func ConfirmWith(p *helpers.Prompter) signer.ConfirmFunc {
	return func(ctx context.Context, intent ledger.TransactionIntent) (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		return p.YesNo(describeIntent(intent))
	}
}

func describeIntent(intent ledger.TransactionIntent) string {
	args := make([]string, 0, len(intent.Arguments))
	for _, a := range intent.Arguments {
		args = append(args, fmt.Sprint(a))
	}
	return fmt.Sprintf("Sign %s(%s)? [y/N]: ", intent.EntryFunction(), strings.Join(args, ", "))
}
