package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"giralibros/internal/auth"
	"giralibros/internal/books"
	"giralibros/internal/exchange"
	"giralibros/internal/live"
	"giralibros/internal/mailer"
	"giralibros/internal/profile"
	"giralibros/pkg/database"
	"giralibros/pkg/utils"
)

func main() {
	utils.LoadEnv()

	cfg := database.DefaultConfig()
	db := database.MustOpen(cfg)
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("db migrate failed: %v", err)
	}

	srvCfg := utils.LoadServerConfig()

	router := gin.Default()

	// Optional: avoid “trusted all proxies” warning
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	// Start the live feed first (so you notice binding errors early)
	hub := live.NewHub()
	router.GET("/ws", live.WSHandler(hub))
	tcpSrv := live.NewServer(srvCfg.LiveAddr, hub)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "db": cfg.Path})
	})

	router.GET("/ready", func(c *gin.Context) {
		stats := hub.Stats()
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":      "not_ready",
				"db_error":    err.Error(),
				"tcp_clients": stats.TCPClients,
				"ws_clients":  stats.WSClients,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":      "ready",
			"db":          "ok",
			"tcp_clients": stats.TCPClients,
			"ws_clients":  stats.WSClients,
		})
	})

	router.GET("/debug", func(c *gin.Context) {
		stats := hub.Stats()
		c.JSON(http.StatusOK, gin.H{
			"db":          cfg.Path,
			"tcp_clients": stats.TCPClients,
			"ws_clients":  stats.WSClients,
		})
	})

	// Mailer: real SMTP when configured, log-only otherwise
	mailCfg := utils.LoadMailConfig()
	var mail mailer.Mailer
	if mailCfg.SMTPAddr != "" {
		mail = mailer.NewSMTP(mailCfg.SMTPAddr, mailCfg.SMTPUser, mailCfg.SMTPPass, mailCfg.From)
		log.Printf("mailer: smtp via %s", mailCfg.SMTPAddr)
	} else {
		mail = mailer.Log{}
		log.Println("mailer: log only (set GIRALIBROS_SMTP_ADDR for real delivery)")
	}

	// Auth
	authCfg := utils.LoadAuthConfig()
	tokenSvc := auth.TokenService{
		Secret:   []byte(authCfg.JWTSecret),
		Issuer:   authCfg.JWTIssuer,
		Duration: authCfg.JWTDuration,
	}
	authRepo := auth.NewRepo(db)
	authHandler := auth.NewHandler(authRepo, tokenSvc, mail, mailCfg.BaseURL)
	authHandler.RegisterRoutes(router.Group("/auth"))

	exCfg := utils.LoadExchangeConfig()
	requestWindow := time.Duration(exCfg.ExpiryWindowDays) * 24 * time.Hour

	// Everything below needs a logged-in, verified user.
	protected := router.Group("/")
	protected.Use(auth.AuthMiddleware(tokenSvc, authRepo))

	protected.GET("/users/me", func(c *gin.Context) {
		claims := auth.MustGetClaims(c)
		c.JSON(http.StatusOK, gin.H{
			"id":       claims.UserID,
			"username": claims.Username,
			"email":    claims.Email,
		})
	})

	// Catalog: listing, search, wanted matching, covers
	bookRepo := books.NewRepo(db)
	bookHandler := books.NewHandler(bookRepo, hub, utils.LoadCoverDir(), requestWindow)
	bookHandler.RegisterRoutes(protected)

	// Exchange admission and history
	exService := exchange.NewService(db, mail, exchange.Config{
		ExpiryWindowDays: exCfg.ExpiryWindowDays,
		DailyLimit:       exCfg.DailyLimit,
	})
	exRepo := exchange.NewRepo(db)
	exHandler := exchange.NewHandler(exService, exRepo, hub)
	exHandler.RegisterRoutes(protected)

	// Profiles and public shelves
	profRepo := profile.NewRepo(db)
	profHandler := profile.NewHandler(profRepo, authRepo, bookRepo, exRepo, requestWindow)
	profHandler.RegisterRoutes(protected)

	httpSrv := &http.Server{
		Addr:    srvCfg.HTTPAddr,
		Handler: router,
	}

	errCh := make(chan error, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := tcpSrv.Run(); err != nil {
			errCh <- err
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("HTTP API server listening on %s", srvCfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("shutdown signal received: %s", sig)
	case err := <-errCh:
		log.Printf("server error: %v", err)
	}

	log.Println("shutting down servers")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
	if err := tcpSrv.Close(); err != nil {
		log.Printf("tcp shutdown error: %v", err)
	}

	wg.Wait()
	log.Println("servers stopped")
}
