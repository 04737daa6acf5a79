package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"learncode/internal/auth"
	"learncode/internal/catalog"
	"learncode/internal/config"
	"learncode/internal/coupon"
	"learncode/internal/logger"
	"learncode/internal/payment"
	"learncode/internal/purchase"
	"learncode/internal/session"
	"learncode/internal/user"
	"learncode/internal/wallet"
)

// Handlers groups the HTTP handlers the router mounts.
type Handlers struct {
	Users     *user.Handler
	Wallets   *wallet.Handler
	Catalog   *catalog.Handler
	Coupons   *coupon.Handler
	Payments  *payment.Handler
	Purchases *purchase.Handler
}

type Server struct {
	router  *gin.Engine
	http    *http.Server
	config  *config.Config
	limiter *RateLimiter
}

func New(cfg *config.Config, h Handlers, sessions session.Validator, database Pinger) *Server {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		RequestLoggingMiddleware(),
		MetricsMiddleware(),
		corsMiddleware(),
	)

	router.GET("/health", Health(database))
	router.GET("/metrics", Metrics())

	limiter := NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 3*time.Minute)
	limited := limiter.Middleware()

	public := router.Group("/auth")
	public.Use(limited)
	{
		public.POST("/register", h.Users.Register)
		public.POST("/login", h.Users.Login)
		public.POST("/oauth", h.Users.OAuth)
	}

	// Gateway callbacks are authenticated by their HMAC, not a bearer token.
	router.POST("/payments/webhook", h.Payments.Webhook)

	authMiddleware := auth.AuthMiddleware(cfg.JWTSecret, sessions)
	protected := router.Group("/")
	protected.Use(authMiddleware)
	{
		protected.POST("/auth/logout", h.Users.Logout)
		protected.POST("/auth/logout-all", h.Users.LogoutAll)
		protected.GET("/me", h.Users.GetMe)
		protected.GET("/me/sessions", h.Users.ListSessions)

		protected.GET("/wallet", h.Wallets.GetWallet)
		protected.GET("/wallet/transactions", h.Wallets.ListTransactions)
		protected.POST("/wallet/buy-video", h.Purchases.Buy)
		protected.GET("/purchases", h.Purchases.List)

		protected.GET("/items", h.Catalog.ListItems)
		protected.GET("/items/:itemID", h.Catalog.GetItem)
		protected.GET("/items/:itemID/access", h.Purchases.Access)

		protected.POST("/coupons/validate", limited, h.Coupons.Validate)

		protected.POST("/payments/initiate", limited, h.Payments.Initiate)
		protected.POST("/payments/confirm", h.Payments.Confirm)
		protected.GET("/payments", h.Payments.List)
	}

	admin := router.Group("/admin")
	admin.Use(authMiddleware, auth.RequireRole(auth.RoleAdmin))
	{
		admin.POST("/items", h.Catalog.CreateItem)
		admin.POST("/coupons", h.Coupons.Create)
		admin.GET("/coupons", h.Coupons.List)
		admin.PATCH("/coupons/:id/enable", h.Coupons.Enable)
		admin.PATCH("/coupons/:id/disable", h.Coupons.Disable)
		admin.POST("/wallets/:userID/top-up", h.Wallets.AdminTopUp)
		admin.POST("/payments/reconcile", h.Payments.AdminReconcile)
	}

	return &Server{
		router:  router,
		config:  cfg,
		limiter: limiter,
		http: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (s *Server) Router() http.Handler {
	return s.router
}

// Start serves until Shutdown is called, which is not reported as an error.
func (s *Server) Start() error {
	logger.Info("server starting", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// RunLimiterCleanup drops idle rate limiter buckets until ctx is done.
func (s *Server) RunLimiterCleanup(ctx context.Context) error {
	s.limiter.RunCleanup(ctx, time.Minute)
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Razorpay-Signature, X-Identity-Signature")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
