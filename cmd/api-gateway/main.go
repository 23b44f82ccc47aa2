package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/vision-care-api/api/swagger"
	"github.com/noah-isme/vision-care-api/internal/app"
	"github.com/noah-isme/vision-care-api/internal/handler"
	internalmiddleware "github.com/noah-isme/vision-care-api/internal/middleware"
	"github.com/noah-isme/vision-care-api/internal/models"
	"github.com/noah-isme/vision-care-api/pkg/config"
	"github.com/noah-isme/vision-care-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/vision-care-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/vision-care-api/pkg/middleware/requestid"
)

const shutdownTimeout = 25 * time.Second

// @title Vision Care Fulfillment API
// @version 1.0.0
// @description Student fulfillment workflow engine: phase transitions and exclusive frame allocation.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := app.Build(ctx, cfg, logr)
	if err != nil {
		logr.Fatal("failed to build services", zap.Error(err))
	}
	defer container.Close() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(container.Metrics, "/metrics"))

	metricsHandler := handler.NewMetricsHandler(container.Metrics, container.Store)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	studentHandler := handler.NewStudentHandler(container.Transitions, container.Batch, container.History, container.Validator)
	frameHandler := handler.NewFrameHandler(container.Frames, container.Validator)

	api := r.Group(cfg.APIPrefix)
	api.Use(internalmiddleware.JWT(container.Auth))

	operators := internalmiddleware.RequireRoles(models.RoleAdmin, models.RoleOperator)
	admins := internalmiddleware.RequireRoles(models.RoleAdmin)

	students := api.Group("/students")
	students.POST("/batch-transitions", operators, studentHandler.BatchTransition)
	students.GET("/:id", studentHandler.Get)
	students.GET("/:id/history", studentHandler.History)
	students.POST("/:id/transitions", operators, studentHandler.Transition)

	frames := api.Group("/frames")
	frames.GET("", frameHandler.List)
	frames.GET("/:id", frameHandler.Get)
	frames.POST("", admins, frameHandler.Create)
	frames.POST("/:id/allocate", admins, frameHandler.Allocate)
	frames.POST("/:id/release", admins, frameHandler.Release)
	frames.PATCH("/:id/status", admins, frameHandler.ChangeStatus)
	frames.PATCH("/:id/size", admins, frameHandler.ChangeSize)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logr.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logr.Error("server shutdown failed", zap.Error(err))
		}
	}()

	logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
	logr.Info("server stopped")
}
