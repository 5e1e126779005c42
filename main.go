package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/nasirkhansayyad132/advanced-school-management/docs"
	"github.com/nasirkhansayyad132/advanced-school-management/internal/attendance"
	"github.com/nasirkhansayyad132/advanced-school-management/internal/platform/auth"
	"github.com/nasirkhansayyad132/advanced-school-management/internal/platform/cache"
	"github.com/nasirkhansayyad132/advanced-school-management/internal/platform/config"
	"github.com/nasirkhansayyad132/advanced-school-management/internal/platform/db"
	"github.com/nasirkhansayyad132/advanced-school-management/internal/platform/logger"
	"github.com/nasirkhansayyad132/advanced-school-management/internal/platform/observability"
	"github.com/nasirkhansayyad132/advanced-school-management/internal/platform/requestid"
	"github.com/nasirkhansayyad132/advanced-school-management/internal/roster"
)

// dev モードでだけ読む名簿の初期データ
const seedPath = "config/seed.yaml"

// @title                       Attendance Sync API
// @version                     1.0
// @BasePath                    /api/v1
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	// 設定読み込み
	cfg, err := config.Load(config.DefaultPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Mode)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("starting", "mode", cfg.Mode, "version", cfg.Version, "db_driver", cfg.DB.Driver)

	secret := []byte(cfg.Auth.JWTSecret)
	if len(secret) == 0 {
		if cfg.Mode == "release" {
			log.Fatal("auth.jwt_secret (or JWT_SECRET) is required in release mode")
		}
		secret = []byte("dev-secret")
		log.Warn("using the built-in dev jwt secret")
	}

	ctx := context.Background()
	shutdownOTel := observability.InitOTel(ctx, log, cfg.Otel, cfg.Mode, cfg.Version)

	conn, dialect, err := db.Connect(cfg.DB)
	if err != nil {
		log.Fatal("db connect failed", "error", err)
	}
	defer conn.Close()
	if err := db.Migrate(ctx, conn, dialect); err != nil {
		log.Fatal("db migrate failed", "error", err)
	}
	log.Info("connected to DB", "dbname", cfg.DB.DBName, "path", cfg.DB.Path)

	rosterStore := roster.NewStore(conn, dialect)
	if cfg.Mode == "dev" {
		if _, err := os.Stat(seedPath); err == nil {
			fx, err := roster.LoadFixture(seedPath)
			if err != nil {
				log.Fatal("load seed failed", "error", err)
			}
			if err := rosterStore.Seed(ctx, fx); err != nil {
				log.Fatal("seed failed", "error", err)
			}
			log.Info("roster seeded", "classes", len(fx.Classes), "students", len(fx.Students))
		}
	}

	metrics := observability.NewMetrics()
	opts := []attendance.Option{
		attendance.WithLogger(log),
		attendance.WithMetrics(metrics),
		attendance.WithPolicy(attendance.NewPolicy(cfg.Attendance.EditWindow(), cfg.Attendance.PrivilegedRoles)),
		attendance.WithStrictReplay(cfg.Attendance.StrictReplay),
	}
	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedis(log, cfg.Redis.Addr, time.Duration(cfg.Redis.ReplayTTLSeconds)*time.Second)
		if err != nil {
			// キャッシュ無しでも台帳で判定できる
			log.Warn("redis unavailable, replay cache disabled", "error", err)
		} else {
			defer rc.Close()
			opts = append(opts, attendance.WithReplayCache(rc))
		}
	}
	svc := attendance.NewService(conn, dialect, rosterStore, opts...)

	if err := attendance.RegisterValidators(); err != nil {
		log.Fatal("register validators failed", "error", err)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(requestid.Middleware(), requestid.AccessLog(log, metrics), gin.Recovery())
	if cfg.Otel.Enabled {
		r.Use(otelgin.Middleware(observability.ServiceName))
	}
	_ = r.SetTrustedProxies(nil)

	if cfg.Mode == "dev" {
		origins := cfg.Server.AllowOrigin
		if len(origins) == 0 {
			origins = []string{"http://localhost:3000"}
		}
		// CORS（開発中のみ必要）
		r.Use(cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", attendance.HeaderIdempotencyKey, requestid.Header},
			ExposeHeaders:    []string{"Content-Length", requestid.Header},
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowCredentials: true,
		}))
		docs.SwaggerInfo.Version = cfg.Version
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// ヘルス（outbox の疎通確認にも使う）
	r.GET("/healthz", func(c *gin.Context) {
		if err := conn.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", metrics.Handler())

	// /api/v1
	api := r.Group("/api/v1", auth.RequireAuth(secret))
	attendance.RegisterRoutes(api, svc, cfg.Attendance.PrivilegedRoles...)
	roster.RegisterRoutes(api, rosterStore, cfg.IsPrivileged, log)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		var err error
		if cfg.Server.TLS {
			// TLS設定
			certFile := fmt.Sprintf("config/tls/%s/%s", cfg.Mode, cfg.Certificate.Cert)
			keyFile := fmt.Sprintf("config/tls/%s/%s", cfg.Mode, cfg.Certificate.Key)
			log.Info("listening", "addr", "https://"+cfg.Server.Addr)
			err = srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			log.Info("listening", "addr", "http://"+cfg.Server.Addr)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info("shutting down...")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error("server shutdown failed", "error", err)
	}
	if err := shutdownOTel(sctx); err != nil {
		log.Error("otel shutdown failed", "error", err)
	}
}
