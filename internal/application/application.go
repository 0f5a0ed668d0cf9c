package application

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/ceejayvjose/ict-repair-system/internal/auth"
	"github.com/ceejayvjose/ict-repair-system/internal/config"
	"github.com/ceejayvjose/ict-repair-system/internal/database"
	"github.com/ceejayvjose/ict-repair-system/internal/feed"
	"github.com/ceejayvjose/ict-repair-system/internal/handler"
	"github.com/ceejayvjose/ict-repair-system/internal/router"
	"github.com/ceejayvjose/ict-repair-system/internal/service"
	"github.com/ceejayvjose/ict-repair-system/internal/session"
	"github.com/ceejayvjose/ict-repair-system/internal/verify"
)

// API wires the whole service together for the api command.
type API struct {
	cfg     *config.Config
	httpSrv *http.Server
	bridge  *feed.Bridge
	cache   *session.Cache
}

func NewAPI(cfg *config.Config) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := database.MigrateUp(cfg.DatabaseURL()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	bus := feed.NewBus()
	bridge := feed.NewBridge(bus, cfg.RedisAddr)

	ticketSvc := service.NewTicketService(db, bus, bridge)
	messageSvc := service.NewMessageService(db, bus, bridge)
	accountSvc := service.NewAccountService(db)

	bootCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := accountSvc.EnsureSeedAdmin(bootCtx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return nil, fmt.Errorf("seed admin: %w", err)
	}

	cache := session.New(ticketSvc, messageSvc, bus)
	if err := cache.Start(bootCtx); err != nil {
		return nil, fmt.Errorf("session cache: %w", err)
	}

	gate := verify.NewGate(cfg.VerifyTTL)
	authSvc := auth.NewService(accountSvc, cfg.JWTSecret, cfg.SessionTTL)

	mux := router.New(router.Deps{
		Tickets:      handler.NewTicketHandler(ticketSvc, ticketSvc, cache, gate),
		Messages:     handler.NewMessageHandler(messageSvc, messageSvc, ticketSvc, cache),
		Auth:         handler.NewAuthHandler(authSvc, gate),
		Verification: handler.NewVerificationHandler(gate),
		WS:           handler.NewWSHandler(bus),
		AuthService:  authSvc,
	})

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &API{cfg: cfg, httpSrv: httpSrv, bridge: bridge, cache: cache}, nil
}

// Run starts the HTTP server and the Redis bridge, blocks until ctx is
// cancelled, then shuts everything down in order.
func (a *API) Run(ctx context.Context) error {
	a.bridge.Run(ctx)

	host := a.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + a.cfg.HTTPPort
	log.Printf("HTTP server listening on %s", a.httpSrv.Addr)
	log.Printf("  Swagger UI:  %s/swagger", base)
	log.Printf("  Health:      %s/health", base)
	log.Printf("  API v1:      %s/api/v1/", base)
	log.Printf("  Change feed: ws://%s:%s/ws", host, a.cfg.HTTPPort)

	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	a.cache.Close()
	if err := a.bridge.Close(); err != nil {
		log.Printf("feed: bridge close: %v", err)
	}
	return nil
}
