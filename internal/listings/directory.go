// Package listings reads and writes game listings in the license registry.
package listings

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/gamevault-client/internal/codec"
	"github.com/quantumauth-io/gamevault-client/internal/constants"
	"github.com/quantumauth-io/gamevault-client/internal/ledger"
	"github.com/quantumauth-io/gamevault-client/internal/registry"
	"github.com/quantumauth-io/gamevault-client/internal/signer"
	"github.com/quantumauth-io/gamevault-client/internal/vaulterr"
)

const (
	opRegister  = "register listing"
	opSetActive = "update listing"
	opBySeller  = "list seller listings"
	opLookup    = "look up listing"
	opListAll   = "list listings"
)

// NewListing is the input to RegisterListing. Price is in Octas.
type NewListing struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	MetadataURI string `json:"metadata_uri"`
	Price       uint64 `json:"price"`
}

// Registered is the outcome of a confirmed registration. GameID is empty
// when the new listing was not yet visible to the read after confirmation.
type Registered struct {
	Hash   string `json:"hash"`
	GameID string `json:"game_id,omitempty"`
}

type Directory struct {
	reg *registry.Manager
	gw  ledger.Gateway
}

func NewDirectory(reg *registry.Manager) *Directory {
	return &Directory{reg: reg, gw: reg.Gateway()}
}

// RegisterListing submits register_game from the configured signer and
// waits for it to commit.
func (d *Directory) RegisterListing(ctx context.Context, in NewListing) (Registered, error) {
	title := strings.TrimSpace(in.Title)
	description := strings.TrimSpace(in.Description)
	if title == "" {
		return Registered{}, vaulterr.InvalidArg("title", "must not be empty")
	}
	if description == "" {
		return Registered{}, vaulterr.InvalidArg("description", "must not be empty")
	}

	s := d.reg.Signer()
	if !signer.Ready(s) {
		return Registered{}, &vaulterr.SignerUnavailable{Reason: "no signing key", Cause: signer.ErrNotReady}
	}
	if err := d.reg.EnsureInitialized(ctx); err != nil {
		return Registered{}, err
	}

	pending, err := s.SignAndSubmit(ctx, ledger.TransactionIntent{
		Function:      d.reg.Function(constants.FnRegisterGame),
		TypeArguments: []string{},
		Arguments: []any{
			strconv.FormatUint(in.Price, 10),
			codec.EncodeIdentifierHex(title),
			codec.EncodeIdentifierHex(description),
			codec.EncodeIdentifierHex(strings.TrimSpace(in.MetadataURI)),
		},
	})
	if err != nil {
		return Registered{}, vaulterr.Classify(opRegister, err)
	}
	if _, err := d.gw.WaitForTransaction(ctx, pending.Hash); err != nil {
		return Registered{Hash: pending.Hash}, vaulterr.WithHash(vaulterr.Classify(opRegister, err), pending.Hash)
	}

	out := Registered{Hash: pending.Hash}
	ids, err := d.sellerGameIDs(ctx, s.Address())
	if err != nil {
		log.Warn("registered listing not readable yet", "hash", pending.Hash, "error", err)
	} else if len(ids) > 0 {
		out.GameID = strconv.FormatUint(ids[len(ids)-1], 10)
	}

	log.Info("listing registered", "hash", pending.Hash, "game_id", out.GameID, "seller", s.Address(), "price", in.Price)
	return out, nil
}

// SetActive toggles a listing. Only the seller may do this; the ledger
// enforces it.
func (d *Directory) SetActive(ctx context.Context, gameID string, active bool) (string, error) {
	id, err := parseGameID(gameID)
	if err != nil {
		return "", err
	}

	s := d.reg.Signer()
	if !signer.Ready(s) {
		return "", &vaulterr.SignerUnavailable{Reason: "no signing key", Cause: signer.ErrNotReady}
	}
	if err := d.reg.EnsureInitialized(ctx); err != nil {
		return "", err
	}

	pending, err := s.SignAndSubmit(ctx, ledger.TransactionIntent{
		Function:      d.reg.Function(constants.FnSetGameActive),
		TypeArguments: []string{},
		Arguments:     []any{strconv.FormatUint(id, 10), active},
	})
	if err != nil {
		return "", vaulterr.Classify(opSetActive, err)
	}
	if _, err := d.gw.WaitForTransaction(ctx, pending.Hash); err != nil {
		return pending.Hash, vaulterr.WithHash(vaulterr.Classify(opSetActive, err), pending.Hash)
	}
	log.Info("listing updated", "game_id", gameID, "active", active, "hash", pending.Hash)
	return pending.Hash, nil
}

// ListingsBySeller resolves the seller's ids and then each listing. A
// listing that cannot be read is skipped.
func (d *Directory) ListingsBySeller(ctx context.Context, account string) ([]Listing, error) {
	seller, err := codec.NormalizeAddress(account)
	if err != nil {
		return nil, vaulterr.InvalidArg("account", err.Error())
	}

	handles, err := d.reg.Handles(ctx)
	if err != nil {
		return nil, err
	}

	ids, err := d.idsFromDevTable(ctx, handles, seller)
	if err != nil {
		return nil, err
	}

	out := make([]Listing, 0, len(ids))
	for _, id := range ids {
		l, err := d.readListing(ctx, handles, id)
		if err != nil {
			log.Warn("skipping unreadable listing", "seller", seller, "game_id", id, "error", err)
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

// Listing looks up one listing by id. A miss is ListingUnavailable.
func (d *Directory) Listing(ctx context.Context, gameID string) (Listing, error) {
	id, err := parseGameID(gameID)
	if err != nil {
		return Listing{}, &vaulterr.ListingUnavailable{GameID: gameID, Reason: "unknown game id"}
	}

	handles, err := d.reg.Handles(ctx)
	if err != nil {
		return Listing{}, err
	}

	l, err := d.readListing(ctx, handles, id)
	switch {
	case err == nil:
		return l, nil
	case errors.Is(err, ledger.ErrNotFound):
		return Listing{}, &vaulterr.ListingUnavailable{GameID: gameID, Reason: "not found"}
	default:
		return Listing{}, vaulterr.Classify(opLookup, err)
	}
}

// AllActiveListings is the marketplace view. It degrades to an empty list
// when the registry cannot be read.
func (d *Directory) AllActiveListings(ctx context.Context) ([]Listing, error) {
	exists, err := d.reg.Status(ctx)
	if err != nil {
		log.Warn("registry unreachable, showing no listings", "error", err)
		return []Listing{}, nil
	}
	if !exists {
		return []Listing{}, nil
	}

	all, err := d.AllListings(ctx)
	if err != nil {
		log.Warn("listing query failed, showing no listings", "error", err)
		return []Listing{}, nil
	}

	out := make([]Listing, 0, len(all))
	for _, l := range all {
		if l.Active {
			out = append(out, l)
		}
	}
	return out, nil
}

// AllListings returns every listing, active or not, with one bulk view call.
func (d *Directory) AllListings(ctx context.Context) ([]Listing, error) {
	results, err := d.gw.CallView(ctx, ledger.ViewRequest{
		Function:      d.reg.Function(constants.ViewGetAllGames),
		TypeArguments: []string{},
		Arguments:     []any{},
	})
	if err != nil {
		return nil, vaulterr.Classify(opListAll, err)
	}
	if len(results) == 0 {
		return []Listing{}, nil
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(results[0], &raws); err != nil {
		return nil, &vaulterr.DecodeError{Field: "get_all_games result", Cause: err}
	}

	out := make([]Listing, 0, len(raws))
	for i, raw := range raws {
		l, err := decodeListing(raw)
		if err != nil {
			log.Warn("skipping undecodable listing", "index", i, "error", err)
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return gameIDLess(out[i].GameID, out[j].GameID) })
	return out, nil
}

func (d *Directory) sellerGameIDs(ctx context.Context, seller string) ([]uint64, error) {
	handles, err := d.reg.Handles(ctx)
	if err != nil {
		return nil, err
	}
	n, err := codec.NormalizeAddress(seller)
	if err != nil {
		return nil, err
	}
	return d.idsFromDevTable(ctx, handles, n)
}

func (d *Directory) idsFromDevTable(ctx context.Context, handles registry.Handles, seller string) ([]uint64, error) {
	raw, err := d.gw.GetTableItem(ctx, ledger.TableItemRequest{
		Handle:    handles.DevGames,
		KeyType:   "address",
		ValueType: "vector<u64>",
		Key:       seller,
	})
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, vaulterr.Classify(opBySeller, err)
	}

	var ids []codec.U64
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, &vaulterr.DecodeError{Field: "dev_games entry", Cause: err}
	}
	out := make([]uint64, len(ids))
	for i, id := range ids {
		out[i] = uint64(id)
	}
	return out, nil
}

func (d *Directory) readListing(ctx context.Context, handles registry.Handles, id uint64) (Listing, error) {
	raw, err := d.gw.GetTableItem(ctx, ledger.TableItemRequest{
		Handle:    handles.Games,
		KeyType:   "u64",
		ValueType: d.reg.StructType(constants.GameInfoStruct),
		Key:       strconv.FormatUint(id, 10),
	})
	if err != nil {
		return Listing{}, err
	}
	return decodeListing(raw)
}

func parseGameID(gameID string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(gameID), 10, 64)
	if err != nil {
		return 0, vaulterr.InvalidArg("game_id", "must be a decimal listing id")
	}
	return id, nil
}

// ParseGameID exposes the listing id format to callers that key tables by it.
func ParseGameID(gameID string) (uint64, error) { return parseGameID(gameID) }

func gameIDLess(a, b string) bool {
	ai, aerr := strconv.ParseUint(a, 10, 64)
	bi, berr := strconv.ParseUint(b, 10, 64)
	if aerr == nil && berr == nil {
		return ai < bi
	}
	return a < b
}
