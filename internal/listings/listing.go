package listings

import (
	"encoding/json"
	"strconv"

	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/gamevault-client/internal/codec"
	"github.com/quantumauth-io/gamevault-client/internal/vaulterr"
)

// Listing is a game offered for sale. Only Active changes after
// registration; listings are never deleted.
type Listing struct {
	GameID       string `json:"game_id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	MetadataURI  string `json:"metadata_uri"`
	Price        uint64 `json:"price"`
	PriceDisplay string `json:"price_display"`
	Seller       string `json:"seller"`
	Active       bool   `json:"active"`
}

// gameInfo is the GameInfo struct as the node serializes it.
type gameInfo struct {
	ID          codec.U64 `json:"id"`
	Seller      string    `json:"seller"`
	Title       codec.Raw `json:"title"`
	Description codec.Raw `json:"description"`
	MetadataURI codec.Raw `json:"metadata_uri"`
	Price       codec.U64 `json:"price"`
	IsActive    bool      `json:"is_active"`
}

// decodeListing never fails on field content: malformed byte fields are
// logged and rendered empty.
func decodeListing(raw json.RawMessage) (Listing, error) {
	var g gameInfo
	if err := json.Unmarshal(raw, &g); err != nil {
		return Listing{}, &vaulterr.DecodeError{Field: "GameInfo", Cause: err}
	}

	id := strconv.FormatUint(uint64(g.ID), 10)
	seller := g.Seller
	if n, err := codec.NormalizeAddress(g.Seller); err == nil {
		seller = n
	}
	return Listing{
		GameID:       id,
		Title:        decodeField(id, "title", g.Title),
		Description:  decodeField(id, "description", g.Description),
		MetadataURI:  decodeField(id, "metadata_uri", g.MetadataURI),
		Price:        uint64(g.Price),
		PriceDisplay: codec.FormatAmount(uint64(g.Price)),
		Seller:       seller,
		Active:       g.IsActive,
	}, nil
}

func decodeField(gameID, field string, r codec.Raw) string {
	s, err := codec.DecodeIdentifierStrict(r)
	if err != nil {
		log.Warn("malformed listing field", "game_id", gameID, "field", field, "error", &vaulterr.DecodeError{Field: field, Cause: err})
	}
	return s
}
