package http

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// DefaultAllowedOrigins is the local UI dev server.
var DefaultAllowedOrigins = []string{
	"http://127.0.0.1:6137",
	"http://localhost:6137",
}

type RouterConfig struct {
	AllowedOrigins []string

	// UI, when set, answers every non-API path.
	UI http.Handler
}

func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	origins := uniqueOrigins(cfg.AllowedOrigins)
	if len(origins) == 0 {
		origins = DefaultAllowedOrigins
	}

	r := gin.New()
	r.Use(gin.Recovery(), withRequestID(), withRequestLog())
	r.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", RequestIDHeader},
		ExposeHeaders: []string{RequestIDHeader},
		MaxAge:        CORSMaxAge,
	}))
	r.Use(withLoopbackOnly())

	api := r.Group("/api")
	{
		api.GET("/health", h.Health)

		api.GET("/registry", h.RegistryStatus)
		api.POST("/registry/init", h.RegistryInit)

		api.GET("/listings", h.AllListings)
		api.POST("/listings", h.RegisterListing)
		api.GET("/listings/:gameId", h.GetListing)
		api.PATCH("/listings/:gameId", h.SetListingActive)
		api.GET("/sellers/:account/listings", h.SellerListings)

		api.GET("/accounts/:account/licenses", h.AccountLicenses)
		api.GET("/accounts/:account/games", h.OwnedGames)
		api.GET("/accounts/:account/owns/:gameId", h.OwnsLicense)
		api.GET("/accounts/:account/launch/:gameId", h.CanLaunch)
		api.GET("/accounts/:account/balance", h.Balance)

		api.POST("/purchases", h.Purchase)
		api.POST("/transfers", h.Transfer)
	}

	if cfg.UI != nil {
		r.NoRoute(gin.WrapH(cfg.UI))
	}

	return r
}
