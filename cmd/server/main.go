package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eco-moderation/internal/config"
	"eco-moderation/internal/gemini"
	"eco-moderation/internal/groq"
	"eco-moderation/internal/handler"
	"eco-moderation/internal/llm"
	"eco-moderation/internal/logger"
	"eco-moderation/internal/moderation"
	"eco-moderation/internal/notifier"
	"eco-moderation/internal/repository"
	"eco-moderation/internal/storage"
	"eco-moderation/internal/token"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Consumed links are remembered this long when links never expire
const defaultConsumedTTL = 30 * 24 * time.Hour

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yml"
	}

	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.Env, cfg.Log.Level)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	log.Info("Starting Eco moderation service...", zap.String("env", cfg.Env))

	missing := cfg.MissingSecrets()
	if len(missing) > 0 {
		log.Warn("Configuration incomplete, the webhook will refuse deliveries", zap.Strings("missing", missing))
	}

	opts := handler.Options{MissingSecrets: missing}

	// Initialize database
	var db *sqlx.DB
	if cfg.Database.URL != "" {
		db, err = repository.NewDB(cfg.Database.Type, cfg.Database.URL, log)
		if err != nil {
			log.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		if err := repository.MigrateDB(db, log); err != nil {
			log.Fatal("Failed to run migrations", zap.Error(err))
		}

		opts.Audios = repository.NewAudioRepository(db, log)
		opts.Logs = repository.NewModerationLogRepository(db, log)
	}

	// Redis is optional: it adds the in-flight lock and single-use links
	var rdb *redis.Client
	if cfg.RedisEnabled() {
		rdb = connectRedis(cfg, log)
		if rdb != nil {
			defer rdb.Close()
		}
	}

	if cfg.Links.Secret != "" {
		signer, err := newSigner(cfg)
		if err != nil {
			log.Fatal("Failed to initialize link signer", zap.Error(err))
		}
		opts.Signer = signer
	}

	if cfg.Links.SingleUse {
		if rdb == nil {
			log.Warn("links.single_use requires Redis, links stay reusable")
		} else {
			ttl := cfg.Links.MaxAge
			if ttl == 0 {
				ttl = defaultConsumedTTL
			}
			opts.Consumed = token.NewConsumedStore(rdb, ttl)
		}
	}

	if cfg.StorageEnabled() {
		blobs, err := storage.NewBlobStore(storage.BlobConfig{
			Endpoint:  cfg.Storage.Endpoint,
			Region:    cfg.Storage.Region,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
		}, log)
		if err != nil {
			log.Warn("Blob store unavailable, deleted ecos keep their audio object", zap.Error(err))
		} else {
			opts.Blobs = blobs
		}
	}

	if len(missing) == 0 {
		pipeline, closeProviders := buildPipeline(cfg, opts, rdb, log)
		defer closeProviders()
		opts.Pipeline = pipeline
	}

	// Initialize HTTP handler
	apiHandler := handler.NewHandler(opts, log)

	// Setup Gin router
	if cfg.Env != "local" && cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handler.RequestLogger(log))
	router.Use(handler.CORS())

	// Register routes
	apiHandler.RegisterRoutes(router)

	// Start server
	serverAddr := fmt.Sprintf(":%s", cfg.Server.Port)
	log.Info("Server starting", zap.String("address", serverAddr))

	// Graceful shutdown
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Eco moderation service is running",
		zap.String("port", cfg.Server.Port),
		zap.String("failure_policy", cfg.Moderation.FailurePolicy))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

func connectRedis(cfg *config.Config, log *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("Redis unreachable, running without it", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		client.Close()
		return nil
	}

	log.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))
	return client
}

func newSigner(cfg *config.Config) (token.Signer, error) {
	if cfg.Links.MaxAge > 0 {
		return token.NewExpiringSigner(cfg.Links.Secret, cfg.Links.MaxAge)
	}
	return token.NewDigestSigner(cfg.Links.Secret)
}

// buildPipeline wires providers, notifiers and the lock. The returned func releases provider clients.
func buildPipeline(cfg *config.Config, opts handler.Options, rdb *redis.Client, log *zap.Logger) (*moderation.Pipeline, func()) {
	closers := []func(){}
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	groqClient, err := groq.NewClient(groq.Config{
		APIKey:             cfg.Groq.APIKey,
		BaseURL:            cfg.Groq.BaseURL,
		TranscriptionModel: cfg.Groq.TranscriptionModel,
		ChatModel:          cfg.Groq.ChatModel,
		Language:           cfg.Groq.Language,
		Timeout:            cfg.Groq.Timeout,
		MaxElapsed:         cfg.Groq.MaxElapsed,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize Groq client", zap.Error(err))
	}

	classifiers := []llm.Classifier{
		llm.NewRateLimitedClassifier(groqClient, cfg.Groq.RequestsPerMinute),
	}

	// Gemini takes over when Groq runs out of quota
	if cfg.Gemini.APIKey != "" {
		geminiClient, err := gemini.NewClient(context.Background(), gemini.Config{
			APIKey:    cfg.Gemini.APIKey,
			ModelName: cfg.Gemini.ModelName,
		}, log)
		if err != nil {
			log.Warn("Failed to initialize Gemini fallback", zap.Error(err))
		} else {
			closers = append(closers, func() { geminiClient.Close() })
			classifiers = append(classifiers, llm.NewRateLimitedClassifier(geminiClient, cfg.Gemini.RequestsPerMinute))
		}
	}

	classifier, err := llm.NewChain(log, classifiers...)
	if err != nil {
		log.Fatal("Failed to build classifier chain", zap.Error(err))
	}

	links, err := notifier.NewLinkBuilder(cfg.Links.BaseURL, opts.Signer)
	if err != nil {
		log.Fatal("Invalid admin link configuration", zap.Error(err))
	}

	channels := []notifier.Notifier{}
	email, err := notifier.NewEmailNotifier(notifier.EmailConfig{
		APIKey: cfg.Resend.APIKey,
		From:   cfg.Resend.From,
		To:     cfg.Resend.To,
	}, links, log)
	if err != nil {
		log.Fatal("Failed to initialize email notifier", zap.Error(err))
	}
	channels = append(channels, email)

	if cfg.TelegramEnabled() {
		telegram, err := notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, links, log)
		if err != nil {
			log.Warn("Telegram notifications disabled", zap.Error(err))
		} else {
			channels = append(channels, telegram)
		}
	}

	deps := moderation.Dependencies{
		Audios:      opts.Audios,
		Logs:        opts.Logs,
		Fetcher:     storage.NewFetcher(cfg.Groq.Timeout, cfg.Storage.MaxAudioBytes, log),
		Transcriber: groqClient,
		Classifier:  classifier,
		Notifier:    notifier.NewMulti(log, channels...),
	}
	if rdb != nil {
		deps.Locker = repository.NewInflightLock(rdb, cfg.Moderation.LockTTL, log)
	}

	pipeline, err := moderation.NewPipeline(deps, cfg.Moderation.FailurePolicy, log)
	if err != nil {
		log.Fatal("Failed to build moderation pipeline", zap.Error(err))
	}

	log.Info("Moderation pipeline initialized",
		zap.String("classifier", classifier.Name()),
		zap.Int("notification_channels", len(channels)),
		zap.Bool("inflight_lock", deps.Locker != nil))

	return pipeline, closeAll
}
