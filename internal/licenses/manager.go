// Package licenses buys, transfers and queries game licenses.
package licenses

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/gamevault-client/internal/codec"
	"github.com/quantumauth-io/gamevault-client/internal/constants"
	"github.com/quantumauth-io/gamevault-client/internal/ledger"
	"github.com/quantumauth-io/gamevault-client/internal/listings"
	"github.com/quantumauth-io/gamevault-client/internal/ownership"
	"github.com/quantumauth-io/gamevault-client/internal/registry"
	"github.com/quantumauth-io/gamevault-client/internal/signer"
	"github.com/quantumauth-io/gamevault-client/internal/vaulterr"
)

const (
	opOwns     = "check license"
	opPurchase = "purchase license"
	opTransfer = "transfer license"
	opLicenses = "list licenses"
	opBalance  = "read balance"
)

// DefaultKnowledgeTTL bounds how long a transferable=false observation may
// reject a transfer without re-reading it.
const DefaultKnowledgeTTL = 30 * time.Second

type Config struct {
	Cache        *ownership.Cache
	KnowledgeTTL time.Duration
	Now          func() time.Time
}

type PurchaseRequest struct {
	Account      string `json:"account"`
	GameID       string `json:"game_id"`
	Expiry       uint64 `json:"expiry"`
	Transferable bool   `json:"transferable"`
}

type Purchased struct {
	Hash   string `json:"hash"`
	GameID string `json:"game_id"`
	Price  uint64 `json:"price"`
}

type TransferRequest struct {
	Account   string `json:"account"`
	LicenseID uint64 `json:"license_id"`
	To        string `json:"to"`
}

type Transferred struct {
	Hash      string `json:"hash"`
	LicenseID uint64 `json:"license_id"`
	GameID    string `json:"game_id,omitempty"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// observation is what this session last saw of a license.
type observation struct {
	gameID       string
	transferable bool
	observedAt   time.Time
}

// Manager is safe for concurrent use.
type Manager struct {
	reg   *registry.Manager
	dir   *listings.Directory
	gw    ledger.Gateway
	cache *ownership.Cache

	knowledgeTTL time.Duration
	now          func() time.Time

	mu       sync.Mutex
	observed map[uint64]observation
}

func New(reg *registry.Manager, dir *listings.Directory, cfg Config) *Manager {
	if cfg.Cache == nil {
		cfg.Cache = ownership.New(ownership.Config{})
	}
	if cfg.KnowledgeTTL <= 0 {
		cfg.KnowledgeTTL = DefaultKnowledgeTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		reg:          reg,
		dir:          dir,
		gw:           reg.Gateway(),
		cache:        cfg.Cache,
		knowledgeTTL: cfg.KnowledgeTTL,
		now:          cfg.Now,
		observed:     map[uint64]observation{},
	}
}

func (m *Manager) Cache() *ownership.Cache { return m.cache }

// OwnsLicense answers from the cache when it can and asks the ledger
// otherwise. A failed remote check is an error, never false.
func (m *Manager) OwnsLicense(ctx context.Context, account, gameID string) (bool, error) {
	addr, err := normalizeAccount("account", account)
	if err != nil {
		return false, err
	}
	gameID = strings.TrimSpace(gameID)
	if gameID == "" {
		return false, vaulterr.InvalidArg("game_id", "must not be empty")
	}

	if owned, found := m.cache.Get(addr, gameID); found {
		return owned, nil
	}
	tok := m.cache.Token()

	results, err := m.gw.CallView(ctx, ledger.ViewRequest{
		Function:      m.reg.Function(constants.ViewHasGameLicense),
		TypeArguments: []string{},
		Arguments:     []any{addr, codec.EncodeIdentifierHex(gameID)},
	})
	if err != nil {
		return false, vaulterr.Classify(opOwns, err)
	}
	if len(results) == 0 {
		return false, &vaulterr.TransactionFailed{Op: opOwns, Cause: errors.New("empty view result")}
	}

	var owned bool
	if err := json.Unmarshal(results[0], &owned); err != nil {
		return false, &vaulterr.DecodeError{Field: "has_game_license result", Cause: err}
	}
	if !m.cache.SetIfCurrent(addr, gameID, owned, tok) {
		// A purchase or transfer settled while the view was in flight.
		if cached, found := m.cache.Get(addr, gameID); found {
			return cached, nil
		}
	}
	return owned, nil
}

func (m *Manager) Balance(ctx context.Context, account string) (uint64, error) {
	addr, err := normalizeAccount("account", account)
	if err != nil {
		return 0, err
	}
	bal, err := m.gw.GetSpendableBalance(ctx, addr)
	if err != nil {
		return 0, vaulterr.Classify(opBalance, err)
	}
	return bal, nil
}

// Purchase buys a license for req.Account. Ownership is cached only after
// the transaction is confirmed.
func (m *Manager) Purchase(ctx context.Context, req PurchaseRequest) (Purchased, error) {
	addr, err := normalizeAccount("account", req.Account)
	if err != nil {
		return Purchased{}, err
	}
	gameID := strings.TrimSpace(req.GameID)

	s, err := m.signerFor(addr)
	if err != nil {
		return Purchased{}, err
	}
	if req.Expiry != 0 && req.Expiry <= uint64(m.now().Unix()) {
		return Purchased{}, vaulterr.InvalidArg("expiry", "must be 0 or in the future")
	}

	listing, err := m.dir.Listing(ctx, gameID)
	if err != nil {
		return Purchased{}, err
	}
	if !listing.Active {
		return Purchased{}, &vaulterr.ListingUnavailable{GameID: gameID, Reason: "not for sale"}
	}

	if listing.Price > 0 {
		bal, err := m.gw.GetSpendableBalance(ctx, addr)
		if err != nil {
			return Purchased{}, vaulterr.Classify(opPurchase, err)
		}
		if bal < listing.Price {
			return Purchased{}, vaulterr.NewInsufficientFunds(listing.Price, bal)
		}
	}

	metadata, err := metadataFor(listing)
	if err != nil {
		return Purchased{}, &vaulterr.DecodeError{Field: "purchase metadata", Cause: err}
	}

	pending, err := s.SignAndSubmit(ctx, ledger.TransactionIntent{
		Function:      m.reg.Function(constants.FnBuyGameLicense),
		TypeArguments: []string{},
		Arguments: []any{
			codec.EncodeIdentifierHex(gameID),
			strconv.FormatUint(req.Expiry, 10),
			req.Transferable,
			codec.EncodeHex(metadata),
		},
	})
	if err != nil {
		m.cache.Invalidate(addr, gameID)
		return Purchased{}, m.purchaseFailure(ctx, addr, listing.Price, err, "")
	}

	if _, err := m.gw.WaitForTransaction(ctx, pending.Hash); err != nil {
		// The transaction may still land; drop what we know so the next
		// query goes remote.
		m.cache.Invalidate(addr, gameID)
		return Purchased{Hash: pending.Hash}, m.purchaseFailure(ctx, addr, listing.Price, err, pending.Hash)
	}

	m.cache.Set(addr, gameID, true)
	log.Info("license purchased", "account", addr, "game_id", gameID, "price", listing.Price, "hash", pending.Hash)
	return Purchased{Hash: pending.Hash, GameID: gameID, Price: listing.Price}, nil
}

// purchaseFailure classifies err. A remote funds rejection carries no
// amounts, so the balance is read again to fill them in.
func (m *Manager) purchaseFailure(ctx context.Context, account string, price uint64, err error, hash string) error {
	classified := vaulterr.WithHash(vaulterr.Classify(opPurchase, err), hash)

	var fi *vaulterr.InsufficientFunds
	if errors.As(classified, &fi) && !fi.Known() && price > 0 {
		bal, berr := m.gw.GetSpendableBalance(ctx, account)
		if berr != nil {
			log.Warn("balance re-read after funds rejection failed", "account", account, "error", berr)
			return classified
		}
		return vaulterr.NewInsufficientFunds(price, bal)
	}
	if !vaulterr.Silent(classified) {
		log.Warn("purchase failed", "account", account, "hash", hash, "error", classified)
	}
	return classified
}

// Transfer moves a license to another account. A license this session saw
// recently as non-transferable is rejected locally; an older observation
// is re-read first. Otherwise the ledger decides.
func (m *Manager) Transfer(ctx context.Context, req TransferRequest) (Transferred, error) {
	from, err := normalizeAccount("account", req.Account)
	if err != nil {
		return Transferred{}, err
	}
	to, err := normalizeAccount("to", req.To)
	if err != nil {
		return Transferred{}, err
	}
	if from == to {
		return Transferred{}, vaulterr.InvalidArg("to", "recipient is the current owner")
	}

	s, err := m.signerFor(from)
	if err != nil {
		return Transferred{}, err
	}

	obs, known := m.observation(req.LicenseID)
	if known && !obs.transferable && !m.fresh(obs) {
		if _, err := m.LicensesForAccount(ctx, from); err != nil {
			return Transferred{}, err
		}
		obs, known = m.observation(req.LicenseID)
	}
	if known && !obs.transferable && m.fresh(obs) {
		return Transferred{}, &vaulterr.NotTransferable{LicenseID: req.LicenseID, ObservedAt: obs.observedAt}
	}

	out := Transferred{LicenseID: req.LicenseID, From: from, To: to}
	if known {
		out.GameID = obs.gameID
	}

	pending, err := s.SignAndSubmit(ctx, ledger.TransactionIntent{
		Function:      m.reg.Function(constants.FnTransferLicense),
		TypeArguments: []string{},
		Arguments:     []any{to, strconv.FormatUint(req.LicenseID, 10)},
	})
	if err != nil {
		return out, vaulterr.Classify(opTransfer, err)
	}
	out.Hash = pending.Hash

	_, err = m.gw.WaitForTransaction(ctx, pending.Hash)
	m.invalidateParties(out)
	if err != nil {
		return out, vaulterr.WithHash(vaulterr.Classify(opTransfer, err), pending.Hash)
	}

	m.forget(req.LicenseID)
	log.Info("license transferred", "license_id", req.LicenseID, "from", from, "to", to, "hash", pending.Hash)
	return out, nil
}

func (m *Manager) invalidateParties(t Transferred) {
	if t.GameID != "" {
		m.cache.Invalidate(t.From, t.GameID)
		m.cache.Invalidate(t.To, t.GameID)
		return
	}
	m.cache.InvalidateAccount(t.From)
	m.cache.InvalidateAccount(t.To)
}

// LicensesForAccount returns every license the account holds joined with
// its listing, using one license view and one bulk listing read.
func (m *Manager) LicensesForAccount(ctx context.Context, account string) ([]LicenseView, error) {
	addr, err := normalizeAccount("account", account)
	if err != nil {
		return nil, err
	}

	owned, err := m.fetchLicenses(ctx, addr)
	if err != nil {
		return nil, err
	}
	if len(owned) == 0 {
		return []LicenseView{}, nil
	}

	all, err := m.dir.AllListings(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*listings.Listing, len(all))
	for i := range all {
		byID[all[i].GameID] = &all[i]
	}

	out := make([]LicenseView, 0, len(owned))
	for _, lic := range owned {
		l := byID[lic.GameID]
		if l == nil {
			log.Warn("license references a listing not visible yet", "license_id", lic.LicenseID, "game_id", lic.GameID)
		}
		out = append(out, join(lic, l))
	}
	return out, nil
}

// OwnedGameIDs is the sorted set of game ids the account holds a license
// for, expired or not.
func (m *Manager) OwnedGameIDs(ctx context.Context, account string) ([]string, error) {
	addr, err := normalizeAccount("account", account)
	if err != nil {
		return nil, err
	}
	owned, err := m.fetchLicenses(ctx, addr)
	if err != nil {
		return nil, err
	}

	seen := map[string]struct{}{}
	out := make([]string, 0, len(owned))
	for _, lic := range owned {
		if _, dup := seen[lic.GameID]; dup || lic.GameID == "" {
			continue
		}
		seen[lic.GameID] = struct{}{}
		out = append(out, lic.GameID)
	}
	sort.Strings(out)
	return out, nil
}

// CanLaunch reports whether the account holds an unexpired license for
// the game.
func (m *Manager) CanLaunch(ctx context.Context, account, gameID string) (bool, error) {
	addr, err := normalizeAccount("account", account)
	if err != nil {
		return false, err
	}
	gameID = strings.TrimSpace(gameID)
	owned, err := m.fetchLicenses(ctx, addr)
	if err != nil {
		return false, err
	}
	now := m.now()
	for _, lic := range owned {
		if lic.GameID == gameID && !lic.Expired(now) {
			return true, nil
		}
	}
	return false, nil
}

// fetchLicenses reads the account's licenses, records what it saw about
// transferability and warms the ownership cache.
func (m *Manager) fetchLicenses(ctx context.Context, addr string) ([]License, error) {
	exists, err := m.reg.Status(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	results, err := m.gw.CallView(ctx, ledger.ViewRequest{
		Function:      m.reg.Function(constants.ViewGetUserLicense),
		TypeArguments: []string{},
		Arguments:     []any{addr},
	})
	if err != nil {
		return nil, vaulterr.Classify(opLicenses, err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(results[0], &raws); err != nil {
		return nil, &vaulterr.DecodeError{Field: "get_user_licenses result", Cause: err}
	}

	now := m.now()
	out := make([]License, 0, len(raws))
	m.mu.Lock()
	for i, raw := range raws {
		lic, err := decodeLicense(raw)
		if err != nil {
			log.Warn("skipping undecodable license", "account", addr, "index", i, "error", err)
			continue
		}
		m.observed[lic.LicenseID] = observation{gameID: lic.GameID, transferable: lic.Transferable, observedAt: now}
		out = append(out, lic)
	}
	m.mu.Unlock()

	for _, lic := range out {
		if lic.GameID != "" {
			m.cache.Set(addr, lic.GameID, true)
		}
	}
	return out, nil
}

func (m *Manager) observation(licenseID uint64) (observation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.observed[licenseID]
	return o, ok
}

func (m *Manager) forget(licenseID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.observed, licenseID)
}

func (m *Manager) fresh(o observation) bool {
	return m.now().Sub(o.observedAt) <= m.knowledgeTTL
}

// signerFor returns the configured signer if it acts for account.
func (m *Manager) signerFor(account string) (signer.Signer, error) {
	s := m.reg.Signer()
	if !signer.Ready(s) {
		return nil, &vaulterr.SignerUnavailable{Reason: "no signing key", Cause: signer.ErrNotReady}
	}
	if !codec.SameAddress(s.Address(), account) {
		return nil, &vaulterr.SignerUnavailable{Reason: "signer is for account " + s.Address()}
	}
	return s, nil
}

func normalizeAccount(field, account string) (string, error) {
	addr, err := codec.NormalizeAddress(account)
	if err != nil {
		return "", vaulterr.InvalidArg(field, err.Error())
	}
	return addr, nil
}
