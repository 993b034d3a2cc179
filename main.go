package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/hanfang-health/backend/ai"
	"github.com/hanfang-health/backend/cache"
	"github.com/hanfang-health/backend/config"
	"github.com/hanfang-health/backend/handlers"
	"github.com/hanfang-health/backend/middleware"
	"github.com/hanfang-health/backend/notify"
	"github.com/hanfang-health/backend/storage"
	"github.com/hanfang-health/backend/utils"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"
)

type App struct {
	Fiber        *fiber.App
	Postgres     *pgxpool.Pool
	Redis        *redis.Client
	Mongo        *mongo.Client
	MinioClient  *minio.Client
	AI           *ai.Client
	Orchestrator *notify.Orchestrator
	Errors       *storage.ErrorRecorder
	JWKS         *middleware.JWKSVerifier
	Ctx          context.Context
	Config       *config.Config
	Logger       *zap.Logger
}

// errorSink receives server-side failures for the admin dashboard.
type errorSink interface {
	Record(ctx context.Context, source, message, detail string) error
}

// newFiberErrorHandler logs every request error and records 5xx responses in
// system_errors. Recording is best-effort.
func newFiberErrorHandler(logger *zap.Logger, sink errorSink) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}
		logger.Error("request error",
			zap.Error(err),
			zap.String("path", c.Path()),
			zap.Int("status", code))

		if code >= fiber.StatusInternalServerError && sink != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			source := c.Method() + " " + c.Path()
			if recErr := sink.Record(ctx, source, err.Error(), ""); recErr != nil {
				logger.Warn("failed to record system error", zap.Error(recErr))
			}
			cancel()
		}

		return c.Status(code).JSON(handlers.NewErrorResponse("INTERNAL_ERROR", err.Error()))
	}
}

func NewApp() (*App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %v", err)
	}

	ctx := context.Background()

	var logger *zap.Logger
	if cfg.IsDevelopment() {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %v", err)
	}

	// Setup PostgreSQL connection with retry logic
	var pgPool *pgxpool.Pool
	maxRetries := 5

	poolConfig, err := pgxpool.ParseConfig(cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pool config: %v", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	for i := 0; i < maxRetries; i++ {
		pgPool, err = pgxpool.NewWithConfig(ctx, poolConfig)
		if err == nil {
			if err = pgPool.Ping(ctx); err == nil {
				break
			}
			pgPool.Close()
		}
		logger.Warn("failed to connect to postgres, retrying...",
			zap.Error(err),
			zap.Int("attempt", i+1))
		time.Sleep(time.Second * time.Duration(i+1))
	}
	if err != nil {
		return nil, fmt.Errorf("postgres connection failed after %d attempts: %v", maxRetries, err)
	}

	if err := storage.Bootstrap(ctx, pgPool, logger); err != nil {
		return nil, fmt.Errorf("schema bootstrap failed: %v", err)
	}

	// Setup Redis connection with retry logic
	redisOpt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis URL parsing failed: %v", err)
	}

	redisClient := redis.NewClient(redisOpt)
	for i := 0; i < maxRetries; i++ {
		_, err = redisClient.Ping(ctx).Result()
		if err == nil {
			break
		}
		logger.Warn("failed to connect to redis, retrying...",
			zap.Error(err),
			zap.Int("attempt", i+1))
		time.Sleep(time.Second * time.Duration(i+1))
	}
	if err != nil {
		return nil, fmt.Errorf("redis connection failed after %d attempts: %v", maxRetries, err)
	}

	// Setup MongoDB connection with retry logic
	var mongoClient *mongo.Client
	for i := 0; i < maxRetries; i++ {
		mongoClient, err = mongo.Connect(options.Client().ApplyURI(cfg.MongoDBURL))
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = mongoClient.Ping(pingCtx, readpref.Primary())
			cancel()
			if err == nil {
				break
			}
			_ = mongoClient.Disconnect(ctx)
		}
		logger.Warn("failed to connect to mongodb, retrying...",
			zap.Error(err),
			zap.Int("attempt", i+1))
		time.Sleep(time.Second * time.Duration(i+1))
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb connection failed after %d attempts: %v", maxRetries, err)
	}

	// Setup MinIO connection with retry logic
	var minioClient *minio.Client
	for i := 0; i < maxRetries; i++ {
		minioClient, err = minio.New(cfg.MinioEndpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
			Secure: cfg.MinioUseSSL,
		})
		if err != nil {
			logger.Warn("failed to create minio client, retrying...",
				zap.Error(err),
				zap.Int("attempt", i+1))
			time.Sleep(time.Second * time.Duration(i+1))
			continue
		}
		break
	}
	if err != nil {
		return nil, fmt.Errorf("minio connection failed after %d attempts: %v", maxRetries, err)
	}

	// Create required buckets
	requiredBuckets := []string{"profile-pics", "medical-reports"}
	for _, bucket := range requiredBuckets {
		exists, err := minioClient.BucketExists(ctx, bucket)
		if err != nil {
			if err.Error() == "Found" {
				logger.Info("bucket verified", zap.String("bucket", bucket))
				continue
			}
			logger.Error("failed to check bucket existence",
				zap.String("bucket", bucket),
				zap.Error(err))
			continue
		}
		if exists {
			logger.Info("bucket verified", zap.String("bucket", bucket))
			continue
		}
		err = minioClient.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
		if err != nil && !strings.Contains(err.Error(), "already exists") {
			logger.Error("failed to create bucket",
				zap.String("bucket", bucket),
				zap.Error(err))
		} else {
			logger.Info("bucket created", zap.String("bucket", bucket))
		}
	}

	aiClient, err := ai.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize AI client: %v", err)
	}

	syncInterval, err := time.ParseDuration(cfg.NotifySyncInterval)
	if err != nil {
		logger.Warn("invalid NOTIFY_SYNC_INTERVAL, using 30m",
			zap.String("value", cfg.NotifySyncInterval))
		syncInterval = 30 * time.Minute
	}
	orchestrator := notify.New(notify.Config{
		Logger:       logger,
		Store:        storage.NewNotificationStore(pgPool),
		Sink:         notify.NewRedisSink(redisClient),
		PrefsCache:   cache.NewCache(redisClient, "notify:prefs:"),
		SyncInterval: syncInterval,
	})
	if !orchestrator.Initialize(ctx) {
		logger.Warn("notification orchestrator disabled; notification endpoints will return 503")
	}

	errorRecorder := storage.NewErrorRecorder(pgPool)

	fiberApp := fiber.New(fiber.Config{
		ErrorHandler: newFiberErrorHandler(logger, errorRecorder),
		ReadTimeout:  time.Second * 30,
		WriteTimeout: time.Minute * 5, // consultation streaming holds the response open
		BodyLimit:    25 * 1024 * 1024,
	})

	fiberApp.Use(middleware.RecoveryMiddleware(logger))

	fiberApp.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		ExposeHeaders:    "Set-Cookie",
		MaxAge:           300,
	}))

	// Request logging middleware
	fiberApp.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		duration := time.Since(start)

		logger.Info("request completed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("ip", c.IP()),
			zap.Duration("duration", duration),
			zap.Int("status", c.Response().StatusCode()),
		)
		return err
	})

	return &App{
		Fiber:        fiberApp,
		Postgres:     pgPool,
		Redis:        redisClient,
		Mongo:        mongoClient,
		MinioClient:  minioClient,
		AI:           aiClient,
		Orchestrator: orchestrator,
		Errors:       errorRecorder,
		Ctx:          ctx,
		Config:       cfg,
		Logger:       logger,
	}, nil
}

func (a *App) setupRoutes() error {
	issuer := utils.NewTokenIssuer(a.Redis, a.Config.JWTSecret, 24*time.Hour)

	if a.Config.JWKSURL != "" {
		verifier, err := middleware.NewJWKSVerifier(a.Config.JWKSURL, a.Logger)
		if err != nil {
			a.Logger.Warn("JWKS verifier unavailable, external tokens will be rejected",
				zap.Error(err))
		} else {
			a.JWKS = verifier
		}
	}

	authMiddleware := middleware.NewAuthMiddleware(a.Logger, a.Redis, issuer, a.JWKS, "hanfang_session")

	authHandler, err := handlers.NewAuthHandler(a.Config, a.Redis, a.Logger, a.Postgres, issuer)
	if err != nil {
		return fmt.Errorf("failed to initialize auth handler: %v", err)
	}

	profileHandler := handlers.NewProfileHandler(a.Config, a.Logger, a.Postgres, a.MinioClient)
	familyHandler := handlers.NewFamilyHandler(a.Logger, a.Postgres)
	diagnosisHandler := handlers.NewDiagnosisHandler(a.Config, a.Logger, a.Mongo, utils.NewIDGenerator())
	reportHandler := handlers.NewReportHandler(a.Config, a.Logger, a.Postgres, a.MinioClient, a.AI)
	consultHandler := handlers.NewConsultHandler(a.Config, a.Logger, a.Postgres, a.AI)
	notificationHandler := handlers.NewNotificationHandler(a.Logger, a.Orchestrator)
	herbHandler := handlers.NewHerbHandler(a.Logger, a.Postgres, cache.NewCache(a.Redis, "herbs:"))
	adminHandler := handlers.NewAdminHandler(a.Config, a.Logger, a.Postgres, a.Redis,
		a.Mongo, a.MinioClient, a.Errors, a.Orchestrator)
	seedHandler := handlers.NewSeedHandler(a.Config, a.Logger, a.Postgres)

	requireAuth := authMiddleware.Handler()

	// Auth routes
	auth := a.Fiber.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Post("/logout", requireAuth, authHandler.Logout)
	auth.Get("/me", requireAuth, authHandler.Me)

	// Avatar downloads are public: the object name itself is the capability
	a.Fiber.Get("/api/media/profile-pics/:filename", profileHandler.GetProfilePic)

	api := a.Fiber.Group("/api", requireAuth)

	api.Get("/profile", profileHandler.GetProfile)
	api.Put("/profile", profileHandler.UpdateProfile)
	api.Post("/profile/picture", profileHandler.UploadProfilePic)

	family := api.Group("/family")
	family.Post("/", familyHandler.CreateFamilyMember)
	family.Get("/", familyHandler.ListFamilyMembers)
	family.Get("/:id", familyHandler.GetFamilyMember)
	family.Put("/:id", familyHandler.UpdateFamilyMember)
	family.Delete("/:id", familyHandler.DeleteFamilyMember)

	diagnosis := api.Group("/diagnosis")
	diagnosis.Post("/sessions", diagnosisHandler.CreateSession)
	diagnosis.Get("/sessions", diagnosisHandler.ListSessions)
	diagnosis.Get("/sessions/:id", diagnosisHandler.GetSession)
	diagnosis.Put("/sessions/:id", diagnosisHandler.UpdateSession)
	diagnosis.Delete("/sessions/:id", diagnosisHandler.DeleteSession)

	api.Get("/patients/:patientID/history",
		middleware.RequireRole(a.Logger, "doctor", "admin"),
		diagnosisHandler.GetPatientHistory)

	reports := api.Group("/reports")
	reports.Post("/", reportHandler.UploadReport)
	reports.Get("/", reportHandler.ListReports)
	reports.Get("/:id", reportHandler.GetReport)
	reports.Get("/:id/download", reportHandler.DownloadReport)
	reports.Delete("/:id", reportHandler.DeleteReport)
	reports.Post("/:id/chat", reportHandler.ChatWithReport)

	api.Post("/consult", consultHandler.Consult)

	notifications := api.Group("/notifications")
	notifications.Get("/preferences", notificationHandler.GetPreferences)
	notifications.Put("/preferences", notificationHandler.UpdatePreferences)
	notifications.Post("/show", notificationHandler.Show)
	notifications.Post("/schedule", notificationHandler.Schedule)
	notifications.Get("/scheduled", notificationHandler.ListScheduled)
	notifications.Delete("/schedule/:id", notificationHandler.Cancel)
	notifications.Post("/click", notificationHandler.HandleClick)
	notifications.Get("/history", notificationHandler.History)
	notifications.Post("/sync", notificationHandler.Sync)
	notifications.Post("/full-sync", notificationHandler.FullSync)

	herbs := api.Group("/herbs")
	herbs.Get("/", herbHandler.SearchHerbs)
	herbs.Get("/:id", herbHandler.GetHerb)

	admin := a.Fiber.Group("/admin", requireAuth, middleware.RequireRole(a.Logger, "admin"))
	admin.Get("/health", adminHandler.Health)
	admin.Get("/errors", adminHandler.ListErrors)
	admin.Delete("/errors", adminHandler.PruneErrors)
	admin.Get("/prompts", adminHandler.ListSystemPrompts)
	admin.Post("/prompts", adminHandler.CreateSystemPrompt)
	admin.Put("/prompts/:id", adminHandler.UpdateSystemPrompt)
	admin.Post("/prompts/:id/activate", adminHandler.ActivateSystemPrompt)
	admin.Delete("/prompts/:id", adminHandler.DeleteSystemPrompt)
	admin.Get("/settings", adminHandler.ListSettings)
	admin.Put("/settings/:key", adminHandler.UpsertSetting)
	admin.Post("/seed", seedHandler.Seed)

	return nil
}

func (a *App) Start() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if err := a.setupRoutes(); err != nil {
		return fmt.Errorf("failed to setup routes: %v", err)
	}

	go func() {
		if err := a.Fiber.Listen(":" + a.Config.ServerPort); err != nil {
			a.Logger.Fatal("failed to start server",
				zap.Error(err),
				zap.String("port", a.Config.ServerPort))
		}
	}()

	a.Logger.Info("server started",
		zap.String("port", a.Config.ServerPort),
		zap.String("environment", a.Config.Environment))

	<-sigChan
	a.Logger.Info("shutting down server...")

	a.Orchestrator.Shutdown()
	if a.JWKS != nil {
		a.JWKS.Shutdown()
	}
	if err := a.Fiber.Shutdown(); err != nil {
		a.Logger.Error("error during server shutdown", zap.Error(err))
	}
	a.Postgres.Close()
	if err := a.Redis.Close(); err != nil {
		a.Logger.Error("error closing redis connection", zap.Error(err))
	}
	if err := a.Mongo.Disconnect(a.Ctx); err != nil {
		a.Logger.Error("error closing mongodb connection", zap.Error(err))
	}
	if err := a.Logger.Sync(); err != nil {
		log.Printf("error syncing logger: %v", err)
	}

	return nil
}

func main() {
	app, err := NewApp()
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	if err := app.Start(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}
