package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/quantumauth-io/gamevault-client/internal/ledger"
	"github.com/quantumauth-io/gamevault-client/internal/ledger/ledgertest"
	"github.com/quantumauth-io/gamevault-client/internal/licenses"
	"github.com/quantumauth-io/gamevault-client/internal/listings"
	"github.com/quantumauth-io/gamevault-client/internal/registry"
)

const (
	moduleAddr = "0xcafe"
	devAddr    = "0xd1"
	buyer      = "0xb0b"
	recipient  = "0xa11ce"
)

type apiFixture struct {
	l      *ledgertest.Ledger
	s      *ledgertest.Signer
	router *gin.Engine
}

func newAPI(t *testing.T, signerAddr string) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	l := ledgertest.New(moduleAddr)
	s := l.Signer(signerAddr)
	reg, err := registry.New(l, s, moduleAddr)
	require.NoError(t, err)
	dir := listings.NewDirectory(reg)
	lic := licenses.New(reg, dir, licenses.Config{})

	return &apiFixture{
		l:      l,
		s:      s,
		router: NewRouter(NewHandler(reg, dir, lic, "test"), RouterConfig{}),
	}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "127.0.0.1:50123"
	req.Host = "127.0.0.1:6138"
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	f := newAPI(t, devAddr)
	w := f.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, w.Header().Get(RequestIDHeader))

	res := decode[map[string]string](t, w)
	require.Equal(t, "ok", res[JSONKeyStatus])
	require.Equal(t, "test", res[JSONKeyVersion])
}

func TestLoopbackGuard(t *testing.T) {
	f := newAPI(t, devAddr)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.RemoteAddr = "10.0.0.7:4444"
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.RemoteAddr = "127.0.0.1:4444"
	req.Host = "evil.example:6138"
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestCORS(t *testing.T) {
	f := newAPI(t, devAddr)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.RemoteAddr = "127.0.0.1:4444"
	req.Host = "localhost:6138"
	req.Header.Set("Origin", "http://localhost:6137")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "http://localhost:6137", w.Header().Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://phish.example")
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestRegistryInitAndStatus(t *testing.T) {
	f := newAPI(t, devAddr)

	w := f.do(t, http.MethodGet, "/api/registry", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.False(t, decode[registry.Info](t, w).Initialized)

	w = f.do(t, http.MethodPost, "/api/registry/init", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, decode[registry.Info](t, w).Initialized)
	require.True(t, f.l.RegistryExists())
}

func TestListingsFlow(t *testing.T) {
	f := newAPI(t, devAddr)

	w := f.do(t, http.MethodPost, "/api/listings", map[string]any{
		"title":        "Celeste",
		"description":  "Climb",
		"metadata_uri": "ipfs://celeste",
		"price":        "5.99",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	reg := decode[listings.Registered](t, w)
	require.Equal(t, "1", reg.GameID)

	w = f.do(t, http.MethodGet, "/api/listings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	all := decode[[]listings.Listing](t, w)
	require.Len(t, all, 1)
	require.Equal(t, uint64(599_000_000), all[0].Price)

	w = f.do(t, http.MethodGet, "/api/listings/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "Celeste", decode[listings.Listing](t, w).Title)

	w = f.do(t, http.MethodPatch, "/api/listings/1", map[string]any{"active": false})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodGet, "/api/listings", nil)
	require.Empty(t, decode[[]listings.Listing](t, w))
	w = f.do(t, http.MethodGet, "/api/listings?all=true", nil)
	require.Len(t, decode[[]listings.Listing](t, w), 1)

	w = f.do(t, http.MethodGet, "/api/sellers/"+devAddr+"/listings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decode[[]listings.Listing](t, w), 1)
}

func TestErrorMapping(t *testing.T) {
	f := newAPI(t, devAddr)
	f.l.InitRegistry()

	w := f.do(t, http.MethodGet, "/api/listings/42", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	res := decode[errorResponse](t, w)
	require.Equal(t, "listing_unavailable", res.Code)
	require.False(t, res.Retryable)

	w = f.do(t, http.MethodPost, "/api/listings", map[string]any{"title": "x"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "invalid_argument", decode[errorResponse](t, w).Code)

	w = f.do(t, http.MethodPost, "/api/listings", map[string]any{"title": "x", "description": "y", "price": "1.123456789"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	f.l.FailView("has_game_license", &ledger.APIError{StatusCode: http.StatusServiceUnavailable, Message: "down"})
	w = f.do(t, http.MethodGet, "/api/accounts/"+buyer+"/owns/1", nil)
	require.Equal(t, http.StatusBadGateway, w.Code)
	res = decode[errorResponse](t, w)
	require.Equal(t, "transaction_failed", res.Code)
	require.True(t, res.Retryable)
}

func TestPurchaseInsufficientFunds(t *testing.T) {
	f := newAPI(t, buyer)
	f.l.AddGame(ledgertest.Game{Seller: devAddr, Title: "Hades", Description: "Roguelike", Price: 599_000_000, Active: true})
	f.l.SetBalance(buyer, 300_000_000)

	w := f.do(t, http.MethodPost, "/api/purchases", map[string]any{"account": buyer, "game_id": "1"})
	require.Equal(t, http.StatusPaymentRequired, w.Code)

	res := decode[errorResponse](t, w)
	require.Equal(t, "insufficient_funds", res.Code)
	require.NotNil(t, res.Shortfall)
	require.Equal(t, uint64(299_000_000), res.Shortfall.Octas)
	require.Equal(t, "2.99 APT", res.Shortfall.Display)
	require.Equal(t, "5.99 APT", res.Required.Display)
	require.Equal(t, "3 APT", res.Available.Display)
}

func TestPurchaseOwnsAndTransfer(t *testing.T) {
	f := newAPI(t, buyer)
	f.l.AddGame(ledgertest.Game{Seller: devAddr, Title: "Hades", Description: "Roguelike", Price: 100_000_000, Active: true})
	f.l.SetBalance(buyer, 500_000_000)

	w := f.do(t, http.MethodPost, "/api/purchases", map[string]any{"account": buyer, "game_id": "1", "transferable": true})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.NotEmpty(t, decode[licenses.Purchased](t, w).Hash)

	w = f.do(t, http.MethodGet, "/api/accounts/"+buyer+"/owns/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, decode[map[string]any](t, w)[JSONKeyOwned])

	w = f.do(t, http.MethodGet, "/api/accounts/"+buyer+"/launch/1", nil)
	require.Equal(t, true, decode[map[string]any](t, w)[JSONKeyCanLaunch])

	w = f.do(t, http.MethodGet, "/api/accounts/"+buyer+"/licenses", nil)
	require.Equal(t, http.StatusOK, w.Code)
	views := decode[[]map[string]any](t, w)
	require.Len(t, views, 1)
	require.Equal(t, "Hades", views[0]["title"])
	require.Equal(t, true, views[0]["valid"])
	require.Equal(t, true, views[0]["listing_resolved"])

	w = f.do(t, http.MethodGet, "/api/accounts/"+buyer+"/balance", nil)
	require.Equal(t, "4 APT", decode[map[string]any](t, w)[JSONKeyDisplay])

	w = f.do(t, http.MethodPost, "/api/transfers", map[string]any{"account": buyer, "license_id": "1", "to": recipient})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodGet, "/api/accounts/"+recipient+"/games", nil)
	require.Equal(t, []any{"1"}, decode[map[string]any](t, w)[JSONKeyGameIDs])
}

func TestTransferNotTransferable(t *testing.T) {
	f := newAPI(t, buyer)
	f.l.AddGame(ledgertest.Game{Seller: devAddr, Title: "Hades", Description: "Roguelike", Active: true})
	f.l.GrantLicense(ledgertest.License{GameID: "1", Owner: buyer})

	w := f.do(t, http.MethodGet, "/api/accounts/"+buyer+"/licenses", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, "/api/transfers", map[string]any{"account": buyer, "license_id": "1", "to": recipient})
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "not_transferable", decode[errorResponse](t, w).Code)
	require.Zero(t, f.l.SubmissionsOf("transfer_license"))

	w = f.do(t, http.MethodPost, "/api/transfers", map[string]any{"account": buyer, "license_id": "one", "to": recipient})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPurchaseDeclinedIsSilent(t *testing.T) {
	f := newAPI(t, buyer)
	f.l.AddGame(ledgertest.Game{Seller: devAddr, Title: "Free", Description: "x", Active: true})
	f.s.Decline = true

	w := f.do(t, http.MethodPost, "/api/purchases", map[string]any{"account": buyer, "game_id": "1"})
	require.Equal(t, http.StatusConflict, w.Code)
	res := decode[errorResponse](t, w)
	require.Equal(t, "user_cancelled", res.Code)
	require.True(t, res.Silent)
	require.False(t, res.Retryable)
}
