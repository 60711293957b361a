package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	encryptionHandler "github.com/hamodi15-code/SecureTalk/internal/handler/http/encryption"
	keysHandler "github.com/hamodi15-code/SecureTalk/internal/handler/http/keys"
	"github.com/hamodi15-code/SecureTalk/internal/crypto"
	"github.com/hamodi15-code/SecureTalk/internal/middleware"
	"github.com/hamodi15-code/SecureTalk/internal/repository/cockroach"
	encryptionService "github.com/hamodi15-code/SecureTalk/internal/service/encryption"
	keysService "github.com/hamodi15-code/SecureTalk/internal/service/keys"
	"github.com/hamodi15-code/SecureTalk/pkg/audit"
	"github.com/hamodi15-code/SecureTalk/pkg/database"
	"github.com/hamodi15-code/SecureTalk/pkg/env"
	"github.com/hamodi15-code/SecureTalk/pkg/jwt"
	"github.com/hamodi15-code/SecureTalk/pkg/logger"
	"github.com/hamodi15-code/SecureTalk/pkg/metrics"
)

func main() {
	logger.InitDefault()
	defer logger.Sync()

	jwtSecret := env.GetStringFromFile("JWT_SECRET", "")
	if jwtSecret == "" {
		logger.Fatal("JWT_SECRET environment variable is required")
	}
	if len(jwtSecret) < 32 {
		logger.Fatal("JWT_SECRET must be at least 32 characters")
	}
	jwtManager := jwt.NewManager(jwtSecret, 15*time.Minute)

	ctx := context.Background()

	pool, err := database.NewCockroachPool(ctx, database.CockroachConfigFromEnv())
	if err != nil {
		logger.Fatal("failed to connect to cockroachdb", zap.Error(err))
	}
	defer pool.Close()

	redisClient, err := database.NewRedisClient(ctx, database.RedisConfigFromEnv())
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	// Repositories
	conversationRepo := cockroach.NewConversationRepository(pool)
	keysRepo := cockroach.NewKeysRepository(pool)

	// Services
	auditor := audit.NewLogger(redisClient)
	provider := crypto.NewProvider()
	encryptionSvc := encryptionService.NewService(conversationRepo, provider, auditor)
	keysSvc := keysService.NewService(keysRepo, auditor)

	// Handlers
	encryptionHdlr := encryptionHandler.NewHandler(encryptionSvc)
	keysHdlr := keysHandler.NewHandler(keysSvc)

	// Background sweep of expired recoverable keys
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go keysSvc.RunSweeper(sweepCtx, env.GetDuration("KEY_SWEEP_INTERVAL", time.Hour))

	// Router
	gin.SetMode(env.GetString("GIN_MODE", gin.ReleaseMode))
	router := gin.New()
	_ = router.SetTrustedProxies(nil)

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware())
	router.Use(metrics.Middleware())
	router.Use(middleware.Timeout(env.GetDuration("REQUEST_TIMEOUT", 30*time.Second)))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "crypto-service",
			"time":    time.Now().UTC(),
		})
	})
	router.GET("/metrics", metrics.Handler())

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(jwtManager))
	{
		v1.POST("/encryption", encryptionHdlr.Dispatch)

		v1.PUT("/keys/public", keysHdlr.UploadPublicKey)
		v1.GET("/keys/public/:user_id", keysHdlr.GetPublicKey)
		v1.PUT("/keys/private", keysHdlr.UploadPrivateKey)
	}

	port := env.GetString("PORT", "8084")
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: router,
	}

	go func() {
		logger.Info("crypto service starting", zap.String("port", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}
