package main

import (
	"context"
	"log"

	"github.com/ROFL1ST/kuis-imk-sub000/config"
	"github.com/ROFL1ST/kuis-imk-sub000/controllers"
	"github.com/ROFL1ST/kuis-imk-sub000/database"
	"github.com/ROFL1ST/kuis-imk-sub000/middleware"
	"github.com/ROFL1ST/kuis-imk-sub000/services"
	"github.com/ROFL1ST/kuis-imk-sub000/utils"
	"github.com/ROFL1ST/kuis-imk-sub000/websocket"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// @title           Duel Coordination API
// @version         1.0
// @description     API server coordinating multiplayer quiz duels
// @host            localhost:8080
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	logger, err := utils.InitLogger()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize database
	database.Connect()
	database.Migrate()

	// Optional redis for multi-instance lobby fan-out
	var rdb *redis.Client
	if addr := config.RedisAddr(); addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.RedisPassword(),
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Fatal("Failed to connect to redis", zap.Error(err))
		}
		logger.Info("Connected to redis", zap.String("addr", addr))
	}

	// Start the lobby hub and the stale lobby sweeper. A host that stays
	// disconnected past the grace period is treated as having left.
	websocket.InitHub(rdb, logger)
	websocket.SetAbsenceHandler(services.HandleLobbyDisconnect)
	services.StartCleanup(logger)

	// Set up router
	router := gin.New()
	router.Use(gin.Recovery(), utils.RequestLogger(logger))

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Authentication routes
	auth := router.Group("/api")
	{
		auth.POST("/register", controllers.Register)
		auth.POST("/login", controllers.Login)
	}

	// Protected routes
	api := router.Group("/api")
	api.Use(middleware.JWTAuth())
	{
		api.GET("/challenges", controllers.ListChallenges)
		api.POST("/challenges", controllers.CreateChallenge)
		api.POST("/challenges/join", controllers.JoinByCode)
		api.GET("/challenges/:id", controllers.GetChallenge)
		api.POST("/challenges/:id/accept", controllers.AcceptChallenge)
		api.POST("/challenges/:id/refuse", controllers.RefuseChallenge)
		api.POST("/challenges/:id/leave", controllers.LeaveChallenge)
		api.PUT("/challenges/:id/settings", controllers.UpdateSettings)
		api.POST("/challenges/:id/start", controllers.StartChallenge)
		api.POST("/challenges/:id/room-code", controllers.GenerateRoomCode)
		api.POST("/challenges/:id/score", controllers.SubmitScore)
		api.POST("/challenges/:id/progress", controllers.ReportProgress)
	}

	// Lobby stream (token passed as query parameter, not header)
	router.GET("/challenges/:id/lobby-stream", websocket.HandleLobbyStream)

	// Start server
	port := config.Port()
	logger.Info("Server running", zap.String("port", port))
	if err := router.Run(":" + port); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
}
