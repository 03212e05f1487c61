package licenses

import (
	"encoding/json"
	"time"

	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/gamevault-client/internal/codec"
	"github.com/quantumauth-io/gamevault-client/internal/listings"
	"github.com/quantumauth-io/gamevault-client/internal/vaulterr"
)

// License is a buyer's right to one listing. Expiry is unix seconds, 0 means
// perpetual.
type License struct {
	LicenseID    uint64 `json:"license_id"`
	GameID       string `json:"game_id"`
	Owner        string `json:"owner"`
	Expiry       uint64 `json:"expiry"`
	Transferable bool   `json:"transferable"`
	MetadataURI  string `json:"metadata_uri"`
}

// Expired reports whether the license has lapsed at now. Expired licenses
// stay queryable.
func (l License) Expired(now time.Time) bool {
	return l.Expiry != 0 && uint64(now.Unix()) >= l.Expiry
}

// LicenseView is a license joined with its listing. ListingResolved is false
// when the listing was not visible in the bulk read, in which case the
// listing fields are zero.
type LicenseView struct {
	License
	Title           string `json:"title"`
	Description     string `json:"description"`
	Price           uint64 `json:"price"`
	PriceDisplay    string `json:"price_display"`
	Seller          string `json:"seller"`
	Active          bool   `json:"active"`
	ListingResolved bool   `json:"listing_resolved"`
}

func (v LicenseView) Valid(now time.Time) bool { return !v.Expired(now) }

func join(lic License, l *listings.Listing) LicenseView {
	v := LicenseView{License: lic}
	if l == nil {
		return v
	}
	v.Title = l.Title
	v.Description = l.Description
	v.Price = l.Price
	v.PriceDisplay = l.PriceDisplay
	v.Seller = l.Seller
	v.Active = l.Active
	v.ListingResolved = true
	return v
}

// licenseInfo is the License struct as the node serializes it.
type licenseInfo struct {
	LicenseID    codec.U64 `json:"license_id"`
	GameID       codec.Raw `json:"game_id"`
	Owner        string    `json:"owner"`
	Expiry       codec.U64 `json:"expiry"`
	Transferable bool      `json:"transferable"`
	MetadataURI  codec.Raw `json:"metadata_uri"`
}

func decodeLicense(raw json.RawMessage) (License, error) {
	var li licenseInfo
	if err := json.Unmarshal(raw, &li); err != nil {
		return License{}, &vaulterr.DecodeError{Field: "License", Cause: err}
	}

	owner := li.Owner
	if n, err := codec.NormalizeAddress(li.Owner); err == nil {
		owner = n
	}
	out := License{
		LicenseID:    uint64(li.LicenseID),
		Owner:        owner,
		Expiry:       uint64(li.Expiry),
		Transferable: li.Transferable,
	}
	out.GameID = decodeField(out.LicenseID, "game_id", li.GameID)
	out.MetadataURI = decodeField(out.LicenseID, "metadata_uri", li.MetadataURI)
	return out, nil
}

func decodeField(licenseID uint64, field string, r codec.Raw) string {
	s, err := codec.DecodeIdentifierStrict(r)
	if err != nil {
		log.Warn("malformed license field", "license_id", licenseID, "field", field, "error", &vaulterr.DecodeError{Field: field, Cause: err})
	}
	return s
}

// purchaseMetadata is stored with the license as its metadata blob.
type purchaseMetadata struct {
	Name        string `json:"name"`
	Image       string `json:"image"`
	Description string `json:"description"`
	Developer   string `json:"developer"`
	GameID      string `json:"game_id"`
}

// marshalMetadata is swapped in tests.
var marshalMetadata = json.Marshal

func metadataFor(l listings.Listing) ([]byte, error) {
	return marshalMetadata(purchaseMetadata{
		Name:        l.Title,
		Image:       l.MetadataURI,
		Description: l.Description,
		Developer:   l.Seller,
		GameID:      l.GameID,
	})
}
