// Package main runs the survey HTTP API with the live response feed and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/inquiro/backend/config"
	"github.com/inquiro/backend/internal/analytics"
	"github.com/inquiro/backend/internal/assistant"
	"github.com/inquiro/backend/internal/auth"
	"github.com/inquiro/backend/internal/emaillogs"
	"github.com/inquiro/backend/internal/exports"
	"github.com/inquiro/backend/internal/middleware"
	"github.com/inquiro/backend/internal/models"
	"github.com/inquiro/backend/internal/notify"
	"github.com/inquiro/backend/internal/questions"
	"github.com/inquiro/backend/internal/realtime"
	"github.com/inquiro/backend/internal/responses"
	"github.com/inquiro/backend/internal/surveys"
	"github.com/inquiro/backend/internal/tokens"
	"github.com/inquiro/backend/pkg/database"
	"github.com/inquiro/backend/pkg/queue"
	"github.com/inquiro/backend/pkg/redis"
	"github.com/inquiro/backend/pkg/response"
	"github.com/inquiro/backend/pkg/storage"
	"github.com/inquiro/backend/pkg/validate"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if err := validate.Register(); err != nil {
		logger.Fatal("register validators", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// Exports are streamed when S3 is not configured.
	var uploader exports.Uploader
	if cfg.AWS.Region != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ExportsBucket:        cfg.AWS.ExportsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			uploader = s3Client
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Surveys
	surveyService := surveys.NewService(surveys.NewRepository(pool), logger)
	surveyHandler := surveys.NewHandler(surveyService)

	// Questions
	questionService := questions.NewService(questions.NewRepository(pool), surveyService, logger)
	questionHandler := questions.NewHandler(questionService)

	// Responses (live feed + creator email after every submission)
	notifier := notify.New(hub, jobQueue, authRepo, notify.Config{
		EmailCreator: cfg.Notify.EmailCreatorOnResponse,
		AppBaseURL:   cfg.Notify.AppBaseURL,
	}, logger)
	responseRepo := responses.NewRepository(pool)
	responseService := responses.NewService(responseRepo, surveyService, notifier, logger)
	responseHandler := responses.NewHandler(responseService)

	// Survey tokens
	tokenService := tokens.NewService(tokens.NewRepository(pool), surveyService, responseService, logger)
	tokenHandler := tokens.NewHandler(tokenService)

	analyticsHandler := analytics.NewHandler(surveyService, responseRepo)
	exportHandler := exports.NewHandler(exports.NewService(surveyService, responseRepo, uploader, logger))
	emailLogsHandler := emaillogs.NewHandler(emaillogs.NewRepository(pool), surveyService)

	aiClient := assistant.NewClient(assistant.ClientConfig{
		APIKey:  cfg.AI.APIKey,
		BaseURL: cfg.AI.BaseURL,
		Model:   cfg.AI.Model,
		Timeout: cfg.AI.Timeout,
	}, nil)
	if !aiClient.Configured() {
		logger.Warn("OPENAI_API_KEY not set; survey generation disabled")
	}
	assistantHandler := assistant.NewHandler(assistant.NewService(aiClient, logger))

	authenticate := func(token string) (*models.Identity, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return nil, err
		}
		return claims.Identity(), nil
	}
	ownsSurvey := func(ctx context.Context, surveyID uuid.UUID, identity *models.Identity) error {
		_, err := surveyService.AssertOwnership(ctx, surveyID, identity)
		return err
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) {
		hctx := c.Request.Context()
		dbOK := pool.Ping(hctx) == nil
		redisOK := rdb.Healthy(hctx)
		status := http.StatusOK
		if !dbOK || !redisOK {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, response.Body{Success: status == http.StatusOK, Data: gin.H{"database": dbOK, "redis": redisOK}})
	})

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
		authGroup.GET("/me", middleware.JWT(jwtService), authHandler.Me)
	}

	// Everything else accepts anonymous callers; ownership and role checks live in the services.
	api := router.Group("")
	api.Use(middleware.OptionalJWT(jwtService))
	{
		// Surveys
		api.GET("/surveys", surveyHandler.ListPublic)
		api.GET("/surveys/my", surveyHandler.ListMine)
		api.GET("/surveys/count", surveyHandler.Count)
		api.POST("/surveys", surveyHandler.Create)
		api.GET("/surveys/:id", surveyHandler.GetByID)
		api.GET("/surveys/:id/public", surveyHandler.GetPublic)
		api.PUT("/surveys/:id", surveyHandler.Update)
		api.POST("/surveys/:id/publish", surveyHandler.Publish)
		api.DELETE("/surveys/:id", surveyHandler.Delete)
		api.GET("/surveys/:id/analytics", analyticsHandler.GetBySurvey)
		api.GET("/surveys/:id/emails", emailLogsHandler.ListBySurvey)

		// Questions
		api.GET("/questions/survey/:surveyId", questionHandler.ListBySurvey)
		api.POST("/questions/survey/:surveyId", questionHandler.Create)
		api.GET("/questions/:id", questionHandler.GetByID)
		api.PUT("/questions/:id", questionHandler.Update)
		api.DELETE("/questions/:id", questionHandler.Delete)
		api.POST("/questions/:id/options", questionHandler.AddOption)

		// Responses
		api.POST("/responses/submit", responseHandler.Submit)
		api.GET("/responses/survey/:surveyId", responseHandler.ListBySurvey)
		api.GET("/responses/survey/:surveyId/count", responseHandler.Count)
		api.GET("/responses/survey/:surveyId/has-responded", responseHandler.HasResponded)
		api.GET("/responses/survey/:surveyId/export", exportHandler.Export)
		api.GET("/responses/question/:questionId/answers", responseHandler.ListAnswersByQuestion)
		api.GET("/responses/:id", responseHandler.GetByID)

		// Survey tokens
		api.POST("/survey-tokens/survey/:surveyId", tokenHandler.Issue)
		api.GET("/survey-tokens/survey/:surveyId", tokenHandler.ListBySurvey)
		api.GET("/survey-tokens/:token/survey", tokenHandler.Resolve)
		api.POST("/survey-tokens/:token/respond", tokenHandler.Respond)
		api.PATCH("/survey-tokens/:token/deactivate", tokenHandler.Deactivate)

		// AI drafts
		api.POST("/ai/generate-survey", middleware.RequireRole(models.RoleCreator), assistantHandler.Generate)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, logger, authenticate, ownsSurvey))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
