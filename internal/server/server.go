package server

import (
	"context"
	"log"
	"net/http"

	"codearena/configs"
	"codearena/internal/dbs"
	"codearena/internal/handlers"
	"codearena/internal/logger"
	"codearena/internal/middlewares"
	"codearena/internal/repositories"
	"codearena/internal/services"
	"codearena/internal/workerpool"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func StartGinServer() {
	logger.InitLogger()
	defer logger.SyncLogger()

	config := configs.LoadConfig()

	db, err := dbs.Init(config)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := dbs.InitRedis(ctx, config); err != nil {
		log.Fatalf("Failed to initialize Redis: %v", err)
	}
	defer dbs.CloseRedis()

	cache := services.NewRedisCache(dbs.RedisClient)
	tokenService := services.NewTokenService(config.JWTSecret)

	challengeRepo := repositories.NewChallengeRepository(db, cache)
	contestRepo := repositories.NewContestRepository(db)
	scoringRepo := repositories.NewScoringRepository(db)
	userRepo := repositories.NewUserRepository(db, cache)

	executor, err := services.NewDockerExecutor(config.SandboxWorkDir, config.SandboxMarginMs, config.SandboxCompileBudgetMs)
	if err != nil {
		log.Fatalf("Failed to create sandbox executor: %v", err)
	}
	harness := services.NewTestHarness(executor)

	rankService := services.NewRankService(dbs.RedisClient, userRepo)
	scoringService := services.NewScoringService(scoringRepo, rankService, config.ScoringTimeout)

	rankPool := workerpool.NewRankWorkerPool(config.NumRankWorkers, dbs.RedisClient, rankService)
	if err := rankPool.Start(ctx); err != nil {
		log.Fatalf("Failed to start rank worker pool: %v", err)
	}
	defer rankPool.Stop()

	router := gin.New()
	router.Use(middlewares.ErrorHandlerMiddleware())

	// Cookie-based auth, so origins must be explicit and credentialed.
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = config.CORSOrigins
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	handlers.NewExecutionHandler(challengeRepo, harness, scoringService).RegisterRoutes(router, tokenService)
	handlers.NewChallengeHandler(challengeRepo).RegisterRoutes(router, tokenService)
	handlers.NewContestHandler(contestRepo).RegisterRoutes(router)
	handlers.NewUserHandler(userRepo, tokenService, rankService).RegisterRoutes(router)

	port := ":" + config.ServerPort
	log.Printf("Starting server on port %s", port)
	if err := router.Run(port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
