package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_uuid "github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"streamchat/config"
	"streamchat/controller"
	"streamchat/lease"
	"streamchat/model"
	"streamchat/platform"
	"streamchat/service"
	"streamchat/storage"
)

var logger = platform.Logger

// CORSMiddleware ...
// CORS (Cross-Origin Resource Sharing)
func CORSMiddleware(origins []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"POST", "GET", "OPTIONS", "PUT", "DELETE"},
		AllowHeaders:     []string{"X-Requested-With", "Content-Type", "Origin", "Authorization", "Accept", "Accept-Encoding", "X-Client-Id"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-Id", "X-Client-Id"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	})
}

// RequestIDMiddleware ...
// Generate a unique ID and attach it to each request for future reference or use
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		uuid := _uuid.New()
		c.Writer.Header().Set("X-Request-Id", uuid.String())
		c.Set("requestId", uuid.String())
		c.Next()
	}
}

func LogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery
		if raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		latency := time.Since(start)
		logrus.Infof(
			" [%s] %d | %v | %s | %s | %s | %s ",
			c.GetString("requestId"),
			c.Writer.Status(),
			latency,
			c.ClientIP(),
			c.Request.Method,
			path,
			c.Request.UserAgent(),
		)
	}
}

func newLocker(ctx context.Context, addr string) lease.Locker {
	if addr == "" {
		return lease.NewMemoryLocker()
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warnf("[%s] redis %s unreachable, streams are leased per process: %s", "startup", addr, err)
		return lease.NewMemoryLocker()
	}
	return lease.NewRedisLocker(rdb)
}

func main() {
	fmt.Println("Server started...")

	//Load the .env file and the environment
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("invalid configuration: %s", err)
	}

	if err := platform.InitAppLogger(cfg.LogDir, "gin", logrus.InfoLevel); err != nil {
		logrus.Fatalf("failed to init logger: %s", err)
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	//init database
	db, err := platform.OpenDB(cfg.Database)
	if err != nil {
		logger.Fatalf("[%s] %s", "startup", err)
	}
	if err := model.InstallDB(db); err != nil {
		logger.Fatalf("[%s] failed to migrate database: %s", "startup", err)
	}
	store := model.NewStore(db)

	bucket, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		logger.Fatalf("[%s] %s", "startup", err)
	}

	tokens := service.NewTokenService(cfg.AccessKey)
	users := service.NewUserService(store, tokens)
	uploader := service.NewUploader(bucket, store)
	inference := service.NewInferenceService(
		platform.NewLLMClient(cfg.HuggingFace),
		cfg.HuggingFace,
		platform.NewTokenCounter("cl100k_base"),
	)
	chats := service.NewChatService(service.ChatServiceDeps{
		Store:     store,
		Generator: inference,
		Uploader:  uploader,
		Locker:    newLocker(ctx, cfg.RedisAddr),
		LeaseTTL:  cfg.StreamLeaseTTL,
	})

	r := gin.Default()
	r.Use(CORSMiddleware(cfg.CORSOrigins))
	r.Use(RequestIDMiddleware())
	r.Use(LogMiddleware())

	controller.Handlers{
		Auth:   controller.NewAuthController(tokens, users),
		Users:  controller.NewUserController(users),
		Chat:   controller.NewChatController(chats),
		Upload: controller.NewUploadController(uploader),
	}.Register(r)
	if local, ok := bucket.(*storage.LocalBucket); ok {
		r.Static("/files", local.Root)
	}

	sweeper, err := service.NewSweeper(chats, cfg.SweepSpec, cfg.IdleTimeout)
	if err != nil {
		logger.Fatalf("[%s] %s", "startup", err)
	}
	sweeper.Start()

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("[%s] %s", "server", err)
		}
	}()
	logger.Infof("[%s] listening on :%s, model %s", "startup", cfg.Port, cfg.HuggingFace.ModelID)

	<-ctx.Done()
	logger.Infof("[%s] shutting down", "server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	<-sweeper.Stop().Done()
	if err := chats.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("[%s] background work did not finish: %s", "server", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("[%s] %s", "server", err)
	}
	if closer, ok := bucket.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}
