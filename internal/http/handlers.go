// Package http is the loopback API the browser UI talks to.
package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quantumauth-io/gamevault-client/internal/codec"
	"github.com/quantumauth-io/gamevault-client/internal/licenses"
	"github.com/quantumauth-io/gamevault-client/internal/listings"
	"github.com/quantumauth-io/gamevault-client/internal/registry"
	"github.com/quantumauth-io/gamevault-client/internal/vaulterr"
)

type Handler struct {
	registry *registry.Manager
	listings *listings.Directory
	licenses *licenses.Manager
	version  string
	now      func() time.Time
}

func NewHandler(reg *registry.Manager, dir *listings.Directory, lic *licenses.Manager, version string) *Handler {
	return &Handler{
		registry: reg,
		listings: dir,
		licenses: lic,
		version:  version,
		now:      time.Now,
	}
}

// -------- DTOs for local client API --------

type registerListingReq struct {
	Title       string `json:"title"        binding:"required"`
	Description string `json:"description"  binding:"required"`
	MetadataURI string `json:"metadata_uri"`
	// Price is a decimal coin amount, e.g. "5.99". Empty means free.
	Price string `json:"price"`
}

type setActiveReq struct {
	Active *bool `json:"active" binding:"required"`
}

type purchaseReq struct {
	Account      string `json:"account"      binding:"required"`
	GameID       string `json:"game_id"      binding:"required"`
	Expiry       uint64 `json:"expiry"`
	Transferable bool   `json:"transferable"`
}

type transferReq struct {
	Account   string `json:"account"    binding:"required"`
	LicenseID string `json:"license_id" binding:"required"`
	To        string `json:"to"         binding:"required"`
}

type licenseRes struct {
	licenses.LicenseView
	Valid bool `json:"valid"`
}

// GET /api/health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		JSONKeyStatus:   "ok",
		JSONKeyVersion:  h.version,
		JSONKeyRegistry: h.registry.State().String(),
		JSONKeySigner:   h.registry.Signer().Address(),
	})
}

// GET /api/registry
func (h *Handler) RegistryStatus(c *gin.Context) {
	info, err := h.registry.Describe(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// POST /api/registry/init
func (h *Handler) RegistryInit(c *gin.Context) {
	if err := h.registry.EnsureInitialized(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	h.RegistryStatus(c)
}

// GET /api/listings[?all=true]
func (h *Handler) AllListings(c *gin.Context) {
	var (
		out []listings.Listing
		err error
	)
	if all, _ := strconv.ParseBool(c.Query("all")); all {
		out, err = h.listings.AllListings(c.Request.Context())
	} else {
		out, err = h.listings.AllActiveListings(c.Request.Context())
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// POST /api/listings
func (h *Handler) RegisterListing(c *gin.Context) {
	var req registerListingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	var price uint64
	if req.Price != "" {
		p, err := codec.ParseAmount(req.Price)
		if err != nil {
			writeError(c, vaulterr.InvalidArg("price", err.Error()))
			return
		}
		price = p
	}

	res, err := h.listings.RegisterListing(c.Request.Context(), listings.NewListing{
		Title:       req.Title,
		Description: req.Description,
		MetadataURI: req.MetadataURI,
		Price:       price,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// GET /api/listings/:gameId
func (h *Handler) GetListing(c *gin.Context) {
	l, err := h.listings.Listing(c.Request.Context(), c.Param(ParamGameID))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

// PATCH /api/listings/:gameId
func (h *Handler) SetListingActive(c *gin.Context) {
	var req setActiveReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	hash, err := h.listings.SetActive(c.Request.Context(), c.Param(ParamGameID), *req.Active)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{JSONKeyHash: hash, JSONKeyGameID: c.Param(ParamGameID), "active": *req.Active})
}

// GET /api/sellers/:account/listings
func (h *Handler) SellerListings(c *gin.Context) {
	out, err := h.listings.ListingsBySeller(c.Request.Context(), c.Param(ParamAccount))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// GET /api/accounts/:account/licenses
func (h *Handler) AccountLicenses(c *gin.Context) {
	views, err := h.licenses.LicensesForAccount(c.Request.Context(), c.Param(ParamAccount))
	if err != nil {
		writeError(c, err)
		return
	}
	now := h.now()
	out := make([]licenseRes, 0, len(views))
	for _, v := range views {
		out = append(out, licenseRes{LicenseView: v, Valid: v.Valid(now)})
	}
	c.JSON(http.StatusOK, out)
}

// GET /api/accounts/:account/games
func (h *Handler) OwnedGames(c *gin.Context) {
	ids, err := h.licenses.OwnedGameIDs(c.Request.Context(), c.Param(ParamAccount))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{JSONKeyAccount: c.Param(ParamAccount), JSONKeyGameIDs: ids})
}

// GET /api/accounts/:account/owns/:gameId
func (h *Handler) OwnsLicense(c *gin.Context) {
	owned, err := h.licenses.OwnsLicense(c.Request.Context(), c.Param(ParamAccount), c.Param(ParamGameID))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{JSONKeyGameID: c.Param(ParamGameID), JSONKeyOwned: owned})
}

// GET /api/accounts/:account/launch/:gameId
func (h *Handler) CanLaunch(c *gin.Context) {
	ok, err := h.licenses.CanLaunch(c.Request.Context(), c.Param(ParamAccount), c.Param(ParamGameID))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{JSONKeyGameID: c.Param(ParamGameID), JSONKeyCanLaunch: ok})
}

// GET /api/accounts/:account/balance
func (h *Handler) Balance(c *gin.Context) {
	bal, err := h.licenses.Balance(c.Request.Context(), c.Param(ParamAccount))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		JSONKeyAccount: c.Param(ParamAccount),
		JSONKeyBalance: strconv.FormatUint(bal, 10),
		JSONKeyDisplay: codec.FormatAmount(bal),
	})
}

// POST /api/purchases
func (h *Handler) Purchase(c *gin.Context) {
	var req purchaseReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	res, err := h.licenses.Purchase(c.Request.Context(), licenses.PurchaseRequest{
		Account:      req.Account,
		GameID:       req.GameID,
		Expiry:       req.Expiry,
		Transferable: req.Transferable,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// POST /api/transfers
func (h *Handler) Transfer(c *gin.Context) {
	var req transferReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	id, err := strconv.ParseUint(req.LicenseID, 10, 64)
	if err != nil {
		writeError(c, vaulterr.InvalidArg("license_id", "must be a decimal license id"))
		return
	}
	res, err := h.licenses.Transfer(c.Request.Context(), licenses.TransferRequest{
		Account:   req.Account,
		LicenseID: id,
		To:        req.To,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
