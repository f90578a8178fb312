package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/satriahrh/anamnesa/adapters/coze"
	"github.com/satriahrh/anamnesa/internal/audio"
	"github.com/satriahrh/anamnesa/internal/auth"
	"github.com/satriahrh/anamnesa/internal/config"
	"github.com/satriahrh/anamnesa/internal/gateway"
	"github.com/satriahrh/anamnesa/usecase"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	config.Load(logger)

	gatewayConfig := config.NewGatewayFromEnv(logger)
	if err := gatewayConfig.Validate(); err != nil {
		logger.Fatal("Invalid gateway configuration", zap.Error(err))
	}

	cozeClient, err := coze.NewClient(coze.NewClientConfigFromEnv(), logger)
	if err != nil {
		logger.Fatal("Invalid platform configuration", zap.Error(err))
	}

	authService, err := auth.NewService(gatewayConfig.JWTSecret, gatewayConfig.TokenTTL)
	if err != nil {
		logger.Fatal("Invalid auth configuration", zap.Error(err))
	}

	// Create Echo instance
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Each websocket client gets its own session; reply audio streams back
	// over the same connection as binary PCM frames.
	newSession := func(sink audio.Sink) gateway.Session {
		player := audio.NewPlayer(sink, clock.New(), logger)
		return usecase.NewChatSession(cozeClient, player, logger)
	}

	var voiceEcho gateway.VoiceEchoFactory
	if cozeClient.VoiceID() != "" {
		voiceEcho = func(text string) usecase.PrepareAttachments {
			return usecase.NewVoiceEchoPreparer(cozeClient, cozeClient, text, logger)
		}
	}

	hub := gateway.NewHub(newSession, voiceEcho, logger)
	go hub.Run()

	gateway.InitRoutes(e, hub, authService, cozeClient, cozeClient,
		gatewayConfig.AccessKey, gatewayConfig.TokenTTL, logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + gatewayConfig.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Gateway started", zap.String("port", gatewayConfig.Port))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
