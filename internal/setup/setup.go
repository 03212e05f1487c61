package setup

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quantumauth-io/quantum-go-utils/log"

	clientconfig "github.com/quantumauth-io/gamevault-client/cmd/gamevault-client/config"
	clienthttp "github.com/quantumauth-io/gamevault-client/internal/http"
	"github.com/quantumauth-io/gamevault-client/internal/helpers"
	"github.com/quantumauth-io/gamevault-client/internal/httpui"
	"github.com/quantumauth-io/gamevault-client/internal/ledger"
	"github.com/quantumauth-io/gamevault-client/internal/licenses"
	"github.com/quantumauth-io/gamevault-client/internal/listings"
	"github.com/quantumauth-io/gamevault-client/internal/ownership"
	"github.com/quantumauth-io/gamevault-client/internal/registry"
	"github.com/quantumauth-io/gamevault-client/internal/signer"
	"github.com/quantumauth-io/gamevault-client/internal/tracing"
)

const defaultShutdownTimeout = 5 * time.Second

type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

type Options struct {
	// Prompter reads the keystore password and, when signer.confirm is on,
	// asks before each signature. Nil keeps the session read-only.
	Prompter *helpers.Prompter
}

// Services is one wired session: a ledger connection, at most one signer and
// the managers built on top of them.
type Services struct {
	Config   *clientconfig.Config
	Gateway  ledger.Gateway
	Signer   signer.Signer
	Registry *registry.Manager
	Listings *listings.Directory
	Licenses *licenses.Manager
	Tracing  *tracing.Provider
}

// Build connects to the configured node and unlocks the signer.
func Build(ctx context.Context, cfg *clientconfig.Config, opts Options) (*Services, error) {
	tp, err := tracing.NewProvider(ctx, cfg.Tracing)
	if err != nil {
		return nil, err
	}

	client, err := ledger.NewClient(ledger.Config{
		NodeURL:        cfg.Ledger.NodeURL,
		RequestTimeout: cfg.Ledger.RequestTimeout,
		ConfirmTimeout: cfg.Ledger.ConfirmTimeout,
		PollInterval:   cfg.Ledger.PollInterval,
		Tracer:         tp.Tracer(),
	})
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	s, err := openSigner(client, cfg.Signer, opts.Prompter)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	svc, err := Assemble(client, s, cfg)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}
	svc.Tracing = tp

	log.Info("ledger ready",
		"network", cfg.Ledger.Network,
		"node", client.NodeURL(),
		"module", cfg.Ledger.ModuleAddress,
		"signer", s.Address(),
	)
	return svc, nil
}

// Assemble wires the managers over an existing gateway and signer.
func Assemble(gw ledger.Gateway, s signer.Signer, cfg *clientconfig.Config) (*Services, error) {
	reg, err := registry.New(gw, s, cfg.Ledger.ModuleAddress)
	if err != nil {
		return nil, err
	}
	dir := listings.NewDirectory(reg)
	cache := ownership.New(ownership.Config{
		PositiveTTL:     cfg.Cache.PositiveTTL,
		NegativeTTL:     cfg.Cache.NegativeTTL,
		CleanupInterval: cfg.Cache.CleanupInterval,
	})
	lic := licenses.New(reg, dir, licenses.Config{
		Cache:        cache,
		KnowledgeTTL: cfg.Cache.KnowledgeTTL,
	})

	return &Services{
		Config:   cfg,
		Gateway:  gw,
		Signer:   s,
		Registry: reg,
		Listings: dir,
		Licenses: lic,
	}, nil
}

// Handler is the loopback API over these services, plus the storefront
// bundle when server.ui_dir is set.
func (s *Services) Handler(version string) http.Handler {
	rc := clienthttp.RouterConfig{AllowedOrigins: s.Config.Server.AllowedOrigins}
	if dir := s.Config.Server.UIDir; dir != "" {
		ui, err := httpui.Handler(os.DirFS(dir))
		if err != nil {
			log.Warn("storefront bundle not served", "dir", dir, "error", err)
		} else {
			rc.UI = ui
		}
	}
	return clienthttp.NewRouter(clienthttp.NewHandler(s.Registry, s.Listings, s.Licenses, version), rc)
}

// Close flushes traces.
func (s *Services) Close(ctx context.Context) error {
	if s.Tracing == nil {
		return nil
	}
	return s.Tracing.Shutdown(ctx)
}

// Run serves the API until ctx is cancelled.
func Run(ctx context.Context, cfg *clientconfig.Config, build BuildInfo, opts Options) error {
	log.Info("gamevault-client",
		"version", build.Version,
		"commit", build.Commit,
		"build_date", build.BuildDate,
	)

	svc, err := Build(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		if cerr := svc.Close(shutdownCtx); cerr != nil {
			log.Error("tracing shutdown failed", "error", cerr)
		}
	}()

	// Surface a missing registry at startup; serving continues either way.
	if info, err := svc.Registry.Describe(ctx); err != nil {
		log.Warn("registry status unknown", "error", err)
	} else if !info.Initialized {
		log.Warn("registry not initialized", "module", cfg.Ledger.ModuleAddress)
	}

	gin.SetMode(gin.ReleaseMode)

	listenAddr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}
	log.Info("HTTP server listening", "addr", ln.Addr().String())

	return Serve(ctx, ln, svc.Handler(build.Version), cfg.Server.ShutdownTimeout)
}

// Serve runs handler on ln and shuts down gracefully once ctx is done.
func Serve(ctx context.Context, ln net.Listener, handler http.Handler, shutdownTimeout time.Duration) error {
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if serr := server.Serve(ln); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", serr)
			serveErr <- serr
		}
		close(serveErr)
	}()

	// ---- graceful shutdown
	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if serr := server.Shutdown(shutdownCtx); serr != nil {
		log.Error("HTTP server shutdown failed", "error", serr)
		return serr
	}
	log.Info("HTTP server gracefully stopped")
	return nil
}
