// Package ledgertest is an in-memory ledger that executes the license module's
// entry functions and serves the same JSON shapes as the REST node. It also
// records calls and lets tests inject failures and read-after-write lag.
package ledgertest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/quantumauth-io/gamevault-client/internal/codec"
	"github.com/quantumauth-io/gamevault-client/internal/constants"
	"github.com/quantumauth-io/gamevault-client/internal/ledger"
)

const (
	GamesHandle        = "0x6a6d"
	DevGamesHandle     = "0x6467"
	UserLicensesHandle = "0x756c"
)

type Game struct {
	ID          uint64
	Seller      string
	Title       string
	Description string
	MetadataURI string
	Price       uint64
	Active      bool
}

type License struct {
	ID           uint64
	GameID       string
	Owner        string
	Expiry       uint64
	Transferable bool
	Metadata     []byte
}

// Ledger implements ledger.Gateway. The zero value is not usable; call New.
type Ledger struct {
	module string

	mu           sync.Mutex
	registry     bool
	games        map[uint64]*Game
	devGames     map[string][]uint64
	licenses     map[uint64]*License
	userLicenses map[string][]uint64
	balances     map[string]uint64
	nextGame     uint64
	nextLicense  uint64
	receipts     map[string]*ledger.Receipt
	txCount      int

	submissions   []ledger.TransactionIntent
	viewCalls     map[string]int
	tableReads    int
	resourceReads int

	hidden       map[uint64]bool
	resourceErr  error
	viewErrs     map[string]error
	tableErr     func(handle string, key string) error
	waitErr      error
	balanceErr   error
	submitHook   func(sender string, intent ledger.TransactionIntent) error
	afterExecute func(sender string, intent ledger.TransactionIntent)
}

var _ ledger.Gateway = (*Ledger)(nil)

func New(moduleAddress string) *Ledger {
	return &Ledger{
		module:       norm(moduleAddress),
		games:        map[uint64]*Game{},
		devGames:     map[string][]uint64{},
		licenses:     map[uint64]*License{},
		userLicenses: map[string][]uint64{},
		balances:     map[string]uint64{},
		nextGame:     1,
		nextLicense:  1,
		receipts:     map[string]*ledger.Receipt{},
		viewCalls:    map[string]int{},
		hidden:       map[uint64]bool{},
		viewErrs:     map[string]error{},
	}
}

func (l *Ledger) ModuleAddress() string { return l.module }

func (l *Ledger) RegistryType() string { return l.registryTypeLocked() }

// ---- seeding

func (l *Ledger) InitRegistry() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.registry = true
}

func (l *Ledger) RegistryExists() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.registry
}

func (l *Ledger) SetBalance(addr string, octas uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[norm(addr)] = octas
}

func (l *Ledger) BalanceOf(addr string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[norm(addr)]
}

// AddGame stores a listing directly, bypassing register_game.
func (l *Ledger) AddGame(g Game) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.registry = true
	return l.addGameLocked(g)
}

func (l *Ledger) addGameLocked(g Game) uint64 {
	g.ID = l.nextGame
	g.Seller = norm(g.Seller)
	l.nextGame++
	l.games[g.ID] = &g
	l.devGames[g.Seller] = append(l.devGames[g.Seller], g.ID)
	return g.ID
}

// GrantLicense stores a license directly, bypassing buy_game_license.
func (l *Ledger) GrantLicense(lic License) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.registry = true
	return l.grantLocked(lic)
}

func (l *Ledger) grantLocked(lic License) uint64 {
	lic.ID = l.nextLicense
	lic.Owner = norm(lic.Owner)
	l.nextLicense++
	l.licenses[lic.ID] = &lic
	l.userLicenses[lic.Owner] = append(l.userLicenses[lic.Owner], lic.ID)
	return lic.ID
}

func (l *Ledger) LicenseOwner(id uint64) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lic, ok := l.licenses[id]; ok {
		return lic.Owner
	}
	return ""
}

func (l *Ledger) Game(id uint64) (Game, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	g, ok := l.games[id]
	if !ok {
		return Game{}, false
	}
	return *g, true
}

// ---- failure injection

// HideGame makes a listing invisible to reads, as if its write had not
// propagated to the node serving reads yet.
func (l *Ledger) HideGame(id uint64, hidden bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hidden[id] = hidden
}

func (l *Ledger) FailResource(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resourceErr = err
}

// FailView makes the named view (e.g. "get_all_games") return err.
func (l *Ledger) FailView(name string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.viewErrs, name)
		return
	}
	l.viewErrs[name] = err
}

// FailTableItem is consulted on every table read with the decoded key.
func (l *Ledger) FailTableItem(fn func(handle, key string) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tableErr = fn
}

// FailWait makes WaitForTransaction return err. Submitted transactions still
// execute, so the effect is visible once the failure is cleared.
func (l *Ledger) FailWait(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.waitErr = err
}

func (l *Ledger) FailBalance(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balanceErr = err
}

// OnSubmit runs before execution; a non-nil error rejects the submission
// and nothing executes.
func (l *Ledger) OnSubmit(fn func(sender string, intent ledger.TransactionIntent) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.submitHook = fn
}

// AfterExecute runs after a transaction was applied, outside the lock.
func (l *Ledger) AfterExecute(fn func(sender string, intent ledger.TransactionIntent)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.afterExecute = fn
}

// ---- call accounting

func (l *Ledger) Submissions() []ledger.TransactionIntent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ledger.TransactionIntent(nil), l.submissions...)
}

// SubmissionsOf counts submitted calls to one entry function.
func (l *Ledger) SubmissionsOf(fn string) int {
	n := 0
	for _, s := range l.Submissions() {
		if s.EntryFunction() == fn {
			n++
		}
	}
	return n
}

func (l *Ledger) ViewCalls(name string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.viewCalls[name]
}

func (l *Ledger) TableReads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tableReads
}

func (l *Ledger) ResourceReads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resourceReads
}

// ---- Gateway

func (l *Ledger) GetResource(ctx context.Context, address, resourceType string) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resourceReads++

	if l.resourceErr != nil {
		return nil, l.resourceErr
	}
	if norm(address) != l.module || normType(resourceType) != l.registryTypeLocked() || !l.registry {
		return nil, notFound("resource_not_found", "Resource not found by Address("+address+"), Struct tag("+resourceType+")")
	}

	return json.Marshal(map[string]any{
		"games":           map[string]string{"handle": GamesHandle},
		"dev_games":       map[string]string{"handle": DevGamesHandle},
		"user_licenses":   map[string]string{"handle": UserLicensesHandle},
		"next_game_id":    strconv.FormatUint(l.nextGame, 10),
		"next_license_id": strconv.FormatUint(l.nextLicense, 10),
	})
}

// registryTypeLocked only reads the immutable module address.
func (l *Ledger) registryTypeLocked() string {
	return l.module + "::" + constants.LicenseModule + "::" + constants.RegistryResourceName
}

func (l *Ledger) GetTableItem(ctx context.Context, req ledger.TableItemRequest) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tableReads++

	keyText := fmt.Sprint(req.Key)
	if l.tableErr != nil {
		if err := l.tableErr(req.Handle, keyText); err != nil {
			return nil, err
		}
	}
	if !l.registry {
		return nil, notFound("table_item_not_found", "table not found")
	}

	switch req.Handle {
	case GamesHandle:
		id, err := argU64(req.Key)
		if err != nil {
			return nil, badRequest(err.Error())
		}
		g, ok := l.games[id]
		if !ok || l.hidden[id] {
			return nil, notFound("table_item_not_found", "Table Item not found by Table handle("+req.Handle+") and Table key("+keyText+")")
		}
		return json.Marshal(gameJSON(g))
	case DevGamesHandle:
		ids, ok := l.devGames[norm(keyText)]
		if !ok {
			return nil, notFound("table_item_not_found", "no games for "+keyText)
		}
		return json.Marshal(u64Strings(ids))
	case UserLicensesHandle:
		ids, ok := l.userLicenses[norm(keyText)]
		if !ok {
			return nil, notFound("table_item_not_found", "no licenses for "+keyText)
		}
		return json.Marshal(u64Strings(ids))
	default:
		return nil, notFound("table_not_found", "unknown table handle "+req.Handle)
	}
}

func (l *Ledger) CallView(ctx context.Context, req ledger.ViewRequest) ([]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	name := req.Function
	if fid := functionName(req.Function); fid != "" {
		name = fid
	}
	l.viewCalls[name]++
	if err := l.viewErrs[name]; err != nil {
		return nil, err
	}

	if req.Function == constants.CoinBalanceView {
		if len(req.Arguments) != 1 {
			return nil, badRequest("balance takes one argument")
		}
		return rawList(strconv.FormatUint(l.balances[norm(fmt.Sprint(req.Arguments[0]))], 10))
	}

	if !l.isModuleFunction(req.Function) {
		return nil, badRequest("unknown view function " + req.Function)
	}
	if !l.registry {
		return nil, l.abortAsAPIError("EREGISTRY_NOT_INITIALIZED")
	}

	switch name {
	case constants.ViewHasGameLicense:
		if len(req.Arguments) != 2 {
			return nil, badRequest("has_game_license takes two arguments")
		}
		owner := norm(fmt.Sprint(req.Arguments[0]))
		gid, err := argBytes(req.Arguments[1])
		if err != nil {
			return nil, badRequest(err.Error())
		}
		owned := false
		for _, id := range l.userLicenses[owner] {
			if l.licenses[id].GameID == string(gid) {
				owned = true
				break
			}
		}
		return rawList(owned)
	case constants.ViewGetUserLicense:
		if len(req.Arguments) != 1 {
			return nil, badRequest("get_user_licenses takes one argument")
		}
		owner := norm(fmt.Sprint(req.Arguments[0]))
		out := make([]map[string]any, 0)
		for _, id := range l.userLicenses[owner] {
			out = append(out, licenseJSON(l.licenses[id]))
		}
		return rawList(out)
	case constants.ViewGetAllGames:
		ids := make([]uint64, 0, len(l.games))
		for id := range l.games {
			if !l.hidden[id] {
				ids = append(ids, id)
			}
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		out := make([]map[string]any, 0, len(ids))
		for _, id := range ids {
			out = append(out, gameJSON(l.games[id]))
		}
		return rawList(out)
	default:
		return nil, badRequest("unknown view function " + req.Function)
	}
}

func (l *Ledger) WaitForTransaction(ctx context.Context, hash string) (*ledger.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.waitErr != nil {
		return nil, l.waitErr
	}
	r, ok := l.receipts[hash]
	if !ok {
		return nil, notFound("transaction_not_found", "Transaction not found by Transaction hash("+hash+")")
	}
	out := *r
	if !out.Success {
		return &out, &ledger.AbortedError{Hash: out.Hash, VMStatus: out.VMStatus}
	}
	return &out, nil
}

func (l *Ledger) GetSpendableBalance(ctx context.Context, address string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balanceErr != nil {
		return 0, l.balanceErr
	}
	return l.balances[norm(address)], nil
}

// ---- helpers

func (l *Ledger) isModuleFunction(fn string) bool {
	addr, module := splitFunction(fn)
	return addr != "" && norm(addr) == l.module && module == constants.LicenseModule
}

func (l *Ledger) abortAsAPIError(code string) error {
	return &ledger.APIError{
		StatusCode: http.StatusBadRequest,
		Code:       "vm_error",
		Message:    "Move abort in " + l.module + "::" + constants.LicenseModule + ": " + code,
	}
}

func gameJSON(g *Game) map[string]any {
	return map[string]any{
		"id":           strconv.FormatUint(g.ID, 10),
		"seller":       g.Seller,
		"title":        codec.EncodeIdentifierHex(g.Title),
		"description":  codec.EncodeIdentifierHex(g.Description),
		"metadata_uri": codec.EncodeIdentifierHex(g.MetadataURI),
		"price":        strconv.FormatUint(g.Price, 10),
		"is_active":    g.Active,
	}
}

func licenseJSON(lic *License) map[string]any {
	return map[string]any{
		"license_id":   strconv.FormatUint(lic.ID, 10),
		"game_id":      codec.EncodeIdentifierHex(lic.GameID),
		"owner":        lic.Owner,
		"expiry":       strconv.FormatUint(lic.Expiry, 10),
		"transferable": lic.Transferable,
		"metadata_uri": codec.EncodeHex(lic.Metadata),
	}
}

func u64Strings(ids []uint64) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strconv.FormatUint(id, 10)
	}
	return out
}

func rawList(v any) ([]json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []json.RawMessage{b}, nil
}

func notFound(code, msg string) error {
	return &ledger.APIError{StatusCode: http.StatusNotFound, Code: code, Message: msg}
}

func badRequest(msg string) error {
	return &ledger.APIError{StatusCode: http.StatusBadRequest, Code: "invalid_input", Message: msg}
}

// normType normalizes the address part of "addr::module::Struct".
func normType(t string) string {
	if i := strings.Index(t, "::"); i > 0 {
		return norm(t[:i]) + t[i:]
	}
	return t
}

func norm(addr string) string {
	if n, err := codec.NormalizeAddress(addr); err == nil {
		return n
	}
	return addr
}
