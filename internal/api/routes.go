package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"bioforge/internal/api/middleware"
	"bioforge/internal/auth"
	"bioforge/internal/config"
	"bioforge/internal/llm"
	"bioforge/internal/storage"
)

// RegisterRoutes 注册 API 路由，不包含 /api 前缀。
func RegisterRoutes(
	router *gin.Engine,
	cfg *config.Config,
	db *gorm.DB,
	completer *llm.Client,
	asynqClient *asynq.Client,
	authService *auth.AuthService,
	redisClient *redis.Client,
	logger *slog.Logger,
	storageClient *storage.Client,
) {
	bioHandler := NewBioHandler(
		db,
		completer,
		completer.Provider(),
		asynqClient,
		redisClient,
		logger,
		cfg.Limits.FreeDailyGenerations,
		cfg.Limits.AnonHourlyGenerations,
	)
	authHandler := NewAuthHandler(
		db,
		authService,
		redisClient,
		logger,
		cfg.Auth.LoginRatePerHour,
		cfg.Auth.LoginLockAttempts,
		time.Duration(cfg.Auth.LoginLockMinutes)*time.Minute,
		cfg.API.CookieDomain,
	)
	wsHandler := NewWsHandler(redisClient, authService, logger, cfg.API.Origins())
	assetHandler := NewAssetHandler(storageClient, logger, cfg.Clamd.Addr)
	authMiddleware := middleware.AuthMiddleware(authService)
	optionalAuth := middleware.OptionalAuthMiddleware(authService)
	premiumGate := middleware.RequirePremiumMiddleware()

	v1 := router.Group("/v1")
	{
		v1.GET("/ws", wsHandler.HandleConnection)

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authMiddleware, authHandler.Logout)
		}

		bioGroup := v1.Group("/bios")
		{
			// 生成接口对匿名放行（营销页试用），有会话则持久化。
			bioGroup.POST("/generate", optionalAuth, bioHandler.Generate)
			bioGroup.GET("", authMiddleware, bioHandler.ListBios)
			bioGroup.DELETE("/:id", authMiddleware, bioHandler.DeleteBio)
		}

		v1.GET("/me/stats", authMiddleware, bioHandler.GetUserStats)

		assetGroup := v1.Group("/assets")
		assetGroup.Use(authMiddleware, premiumGate)
		{
			assetGroup.POST("/upload", assetHandler.UploadAsset)
			assetGroup.GET("", assetHandler.ListAssets)
			assetGroup.GET("/view", assetHandler.GetAssetURL)
			assetGroup.DELETE("", assetHandler.DeleteAsset)
		}
	}
}
