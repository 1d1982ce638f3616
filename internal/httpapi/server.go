// Package httpapi is the 4.I HTTP API surface (added): gin router wiring
// login/ws hand-off plus wallet/name/contract/subscription CRUD so that
// 4.F and 4.G have real callers. Grounded on the teacher's
// internal/http_api/server.go for the router/CORS/graceful-shutdown shape.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/reconnectedcc/kromer/internal/config"
	"github.com/reconnectedcc/kromer/internal/hub"
	"github.com/reconnectedcc/kromer/internal/ledger"
	"github.com/reconnectedcc/kromer/internal/scheduler"
	"github.com/reconnectedcc/kromer/internal/session"
	"github.com/reconnectedcc/kromer/internal/store"
	"github.com/reconnectedcc/kromer/internal/wstoken"
	"github.com/reconnectedcc/kromer/pkg/logger"
)

// ShutdownTimeout bounds how long Shutdown waits for in-flight requests.
const ShutdownTimeout = 10 * time.Second

// AddressDeriver mirrors session.AddressDeriver.
type AddressDeriver interface {
	DeriveAddress(privateKey string) (string, error)
}

// Server is the HTTP API server.
type Server struct {
	log    *logger.Logger
	router *gin.Engine
	cfg    *config.Config
	server *http.Server

	store    store.Store
	sessions *session.Registry
	tokens   *wstoken.Registry
	hub      *hub.Hub
	ledger   *ledger.Ledger
	signal   *scheduler.Signal
	deriver  AddressDeriver
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func New(
	cfg *config.Config,
	log *logger.Logger,
	st store.Store,
	sessions *session.Registry,
	tokens *wstoken.Registry,
	h *hub.Hub,
	l *ledger.Ledger,
	signal *scheduler.Signal,
	deriver AddressDeriver,
) *Server {
	if !cfg.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.Use(corsMiddleware())

	s := &Server{
		log:      log,
		router:   router,
		cfg:      cfg,
		store:    st,
		sessions: sessions,
		tokens:   tokens,
		hub:      h,
		ledger:   l,
		signal:   signal,
		deriver:  deriver,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.POST("/login", s.handleLogin)
	s.router.POST("/ws/start", s.handleWsStart)
	s.router.GET("/api/krist/ws/gateway/:token", s.handleWsGateway)

	v1 := s.router.Group("/api/v1")
	v1.GET("/wallets/:address", s.handleGetWallet)

	v1.GET("/names/:name", s.handleGetName)
	v1.POST("/names", s.handleCreateName)
	v1.PATCH("/names/:name", s.handleUpdateName)

	v1.POST("/contracts", s.handleCreateContract)
	v1.PATCH("/contracts/:id", s.handleUpdateContract)
	v1.POST("/contracts/:id/cancel", s.handleCancelContract)
	v1.POST("/contracts/:id/subscriptions", s.handleCreateSubscription)

	v1.DELETE("/subscriptions/:id", s.handleCancelSubscription)

	v1.POST("/transfers", s.handleTransfer)
}

// Start runs the HTTP server, blocking until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    s.cfg.ServerURL,
		Handler: s.router,
	}

	s.log.Info("starting HTTP server", "address", s.cfg.ServerURL)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	s.log.Info("shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}
