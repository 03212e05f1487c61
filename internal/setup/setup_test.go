package setup

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	clientconfig "github.com/quantumauth-io/gamevault-client/cmd/gamevault-client/config"
	"github.com/quantumauth-io/gamevault-client/internal/constants"
	"github.com/quantumauth-io/gamevault-client/internal/helpers"
	"github.com/quantumauth-io/gamevault-client/internal/ledger"
	"github.com/quantumauth-io/gamevault-client/internal/ledger/ledgertest"
	"github.com/quantumauth-io/gamevault-client/internal/securefile"
	"github.com/quantumauth-io/gamevault-client/internal/signer"
)

const moduleAddr = "0xcafe"

func testConfig() *clientconfig.Config {
	return &clientconfig.Config{
		Ledger: clientconfig.LedgerSettings{ModuleAddress: moduleAddr},
		Server: clientconfig.ServerSettings{Host: "127.0.0.1", Port: "0"},
	}
}

type nopNode struct{}

func (nopNode) Account(context.Context, string) (ledger.AccountInfo, error) {
	return ledger.AccountInfo{}, nil
}

func (nopNode) EncodeSubmission(context.Context, any) ([]byte, error) { return []byte("m"), nil }

func (nopNode) SubmitTransaction(context.Context, any) (ledger.PendingTransaction, error) {
	return ledger.PendingTransaction{Hash: "0x1"}, nil
}

func prompter(input string) *helpers.Prompter {
	return &helpers.Prompter{In: strings.NewReader(input), Out: io.Discard}
}

func TestAssembleServesAPI(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := ledgertest.New(moduleAddr)
	l.AddGame(ledgertest.Game{Seller: "0xd1", Title: "Celeste", Description: "Climb", Active: true})

	svc, err := Assemble(l, l.Signer("0xb0b"), testConfig())
	require.NoError(t, err)
	require.NoError(t, svc.Close(context.Background()))

	req := httptest.NewRequest(http.MethodGet, "/api/listings", nil)
	req.RemoteAddr = "127.0.0.1:5000"
	req.Host = "127.0.0.1:6138"
	w := httptest.NewRecorder()
	svc.Handler("test").ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "Celeste")
}

func TestAssembleRejectsBadModule(t *testing.T) {
	cfg := testConfig()
	cfg.Ledger.ModuleAddress = "not-an-address"
	_, err := Assemble(ledgertest.New(moduleAddr), signer.Unavailable{}, cfg)
	require.Error(t, err)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, ln, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}), time.Second)
	}()

	res, err := http.Get("http://" + ln.Addr().String() + "/")
	require.NoError(t, err)
	_ = res.Body.Close()
	require.Equal(t, http.StatusNoContent, res.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestOpenSignerReadOnly(t *testing.T) {
	s, err := openSigner(nopNode{}, clientconfig.SignerSettings{ReadOnly: true}, prompter(""))
	require.NoError(t, err)
	require.False(t, signer.Ready(s))

	missing := filepath.Join(t.TempDir(), "none.json")
	s, err = openSigner(nopNode{}, clientconfig.SignerSettings{Keystore: missing}, prompter(""))
	require.NoError(t, err)
	require.False(t, signer.Ready(s))
}

func TestOpenSignerUnlocksKeystore(t *testing.T) {
	t.Setenv(constants.EnvKeystorePassword, "")
	path := filepath.Join(t.TempDir(), constants.KeystoreFile)
	ks := signer.Keystore{Path: path, KDF: securefile.FastKDF}
	addr, err := ks.Create([]byte("correct-horse"))
	require.NoError(t, err)

	settings := clientconfig.SignerSettings{Keystore: path}

	// no prompter means nobody can type the password
	s, err := openSigner(nopNode{}, settings, nil)
	require.NoError(t, err)
	require.False(t, signer.Ready(s))

	s, err = openSigner(nopNode{}, settings, prompter("correct-horse\n"))
	require.NoError(t, err)
	require.Equal(t, addr, s.Address())

	_, err = openSigner(nopNode{}, settings, prompter("wrong-horse\n"))
	require.ErrorIs(t, err, securefile.ErrInvalidPasswordOrCorrupt)
}

func TestConfirmWith(t *testing.T) {
	intent := ledger.TransactionIntent{
		Function:  "0xcafe::license::buy_game_license",
		Arguments: []any{"0x31", "0", false, "0x"},
	}
	require.Equal(t, "Sign buy_game_license(0x31, 0, false, 0x)? [y/N]: ", describeIntent(intent))

	ok, err := ConfirmWith(prompter("y\n"))(context.Background(), intent)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = ConfirmWith(prompter("\n"))(context.Background(), intent)
	require.NoError(t, err)
	require.False(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ConfirmWith(prompter("y\n"))(ctx, intent)
	require.ErrorIs(t, err, context.Canceled)
}

func TestHandlerServesStorefront(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>storefront</html>"), 0o600))

	cfg := testConfig()
	cfg.Server.UIDir = dir
	l := ledgertest.New(moduleAddr)
	svc, err := Assemble(l, signer.Unavailable{}, cfg)
	require.NoError(t, err)
	h := svc.Handler("test")

	req := httptest.NewRequest(http.MethodGet, "/library/1", nil)
	req.RemoteAddr = "127.0.0.1:5000"
	req.Host = "localhost:6138"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "storefront")

	req = httptest.NewRequest(http.MethodGet, "/library/1", nil)
	req.RemoteAddr = "10.1.2.3:5000"
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
}
