package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Abraxas-365/custodia/pkg/config"
	"github.com/Abraxas-365/custodia/pkg/errx"
	"github.com/Abraxas-365/custodia/pkg/iam/auth"
	"github.com/Abraxas-365/custodia/pkg/logx"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
)

func main() {
	logx.Info("starting custodia identity server")

	cfg := config.Load()
	container := NewContainer(cfg)
	defer container.Cleanup()

	app := fiber.New(fiber.Config{
		AppName:               "Custodia Identity API",
		DisableStartupMessage: true,
		ErrorHandler:          globalErrorHandler,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
	})

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	app.Use(requestid.New(requestid.Config{
		Header: "X-Request-ID",
		Generator: func() string {
			return uuid.NewString()
		},
	}))

	app.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.Server.CORSOrigins,
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-Request-ID",
		AllowMethods:  "GET, POST, PUT, DELETE, PATCH, HEAD, OPTIONS",
		ExposeHeaders: "X-Request-ID",
	}))

	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path} | ${ip} | ${reqHeader:X-Request-ID}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "Local",
	}))

	app.Get("/health", healthCheckHandler(container))

	// Token lifecycle: /auth/token, /auth/authorize, /auth/revoke, /auth/logout
	container.IAM.TokenHandlers.RegisterRoutes(app)
	logx.Info("token routes registered")

	// WebAuthn ceremonies: /webauthn/*
	container.IAM.WebauthnHandlers.RegisterRoutes(app, container.IAM.AuthMiddleware)
	logx.Info("webauthn routes registered")

	// Sample protected resource: the caller's own resolved identity.
	app.Get("/api/v1/me", container.IAM.AuthMiddleware.Require("profile", "read"), meHandler)

	app.Use(notFoundHandler)

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	go container.IAM.Sweeper.Run(sweepCtx)
	defer stopSweeper()

	startServer(app, cfg)
}

// ============================================================================
// Handlers
// ============================================================================

func healthCheckHandler(container *Container) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := container.DB.PingContext(c.UserContext()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "degraded",
				"error":  "database unreachable",
			})
		}
		return c.JSON(fiber.Map{"status": "healthy", "service": "custodia"})
	}
}

func meHandler(c *fiber.Ctx) error {
	ac, ok := auth.AuthContextFromFiber(c)
	if !ok {
		return c.SendStatus(fiber.StatusUnauthorized)
	}
	return c.JSON(ac)
}

func notFoundHandler(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "route not found",
		"path":  c.Path(),
	})
}

func globalErrorHandler(c *fiber.Ctx, err error) error {
	var custom *errx.Error
	if errx.As(err, &custom) {
		return c.Status(custom.HTTPStatus).JSON(custom.ToHTTPResponse())
	}

	var fiberErr *fiber.Error
	if errx.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(fiber.Map{"error": fiberErr.Message})
	}

	logx.WithError(err).Error("unhandled error")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
}

// ============================================================================
// Lifecycle
// ============================================================================

func startServer(app *fiber.App, cfg *config.Config) {
	addr := fmt.Sprintf(":%d", cfg.Server.Port)

	go func() {
		logx.WithField("addr", addr).Info("listening")
		if err := app.Listen(addr); err != nil {
			logx.Fatalf("server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logx.Info("shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logx.WithError(err).Error("graceful shutdown failed")
	}
}
