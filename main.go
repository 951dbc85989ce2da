package main

import (
	"context"
	"log"
	"os"
	"time"

	"payment-service/internal/config"
	"payment-service/internal/database"
	"payment-service/internal/gateway"
	"payment-service/internal/handlers"
	"payment-service/internal/logger"
	"payment-service/internal/middleware"
	"payment-service/internal/services"
	"payment-service/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found in current directory, trying parent")
		if err := godotenv.Load("../.env"); err != nil {
			log.Println("No .env file found, using system environment variables")
		}
	}

	if mode := os.Getenv("GIN_MODE"); mode != "" {
		gin.SetMode(mode)
	}

	zlog, err := logger.NewLogger()
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zlog.Sync()

	cfg := config.Load()

	// Initialize Database
	database.Connect()
	database.Migrate()
	db := database.DB

	transactionStore := store.NewStore(db)

	// Gateway Client
	pesapal := gateway.NewClient(
		cfg.PesapalBaseURL,
		cfg.PesapalConsumerKey,
		cfg.PesapalConsumerSecret,
		cfg.GatewayTimeout,
	)

	// Register the IPN endpoint when no notification id was configured.
	if cfg.PesapalNotificationID == "" && cfg.PesapalCallbackURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		ipnID, err := pesapal.RegisterIPN(ctx, cfg.PesapalCallbackURL)
		cancel()
		if err != nil {
			zlog.Warnw("IPN registration failed, webhooks may not arrive", "error", err)
		} else {
			cfg.PesapalNotificationID = ipnID
			zlog.Infow("IPN registered", "notificationId", ipnID)
		}
	}

	// Redis/Asynq Client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer asynqClient.Close()

	eventSink := services.NewQueueEventSink(asynqClient)
	reconciler := services.NewReconciler(transactionStore, eventSink, zlog)
	paymentService := services.NewPaymentService(transactionStore, pesapal, reconciler, cfg, zlog)

	paymentHandler := handlers.NewPaymentHandler(paymentService, zlog)

	// Initialize Gin
	r := gin.Default()

	// Ping endpoint
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "Welcome to the payment service",
		})
	})

	// Gateway-facing endpoints: the gateway authenticates us, not the caller.
	r.GET("/payments/callback", paymentHandler.Callback)
	r.POST("/payments/callback", paymentHandler.Callback)
	r.GET("/payments/status/:order_tracking_id", paymentHandler.CheckStatus)

	// Caller-facing endpoints
	authed := r.Group("/payments", middleware.APIKeyAuth(cfg.APIKey))
	authed.POST("/initiate", paymentHandler.InitiatePayment)

	// Start Cron Scheduler for the pending-transaction sweep
	paymentService.StartScheduler()

	zlog.Infof("HTTP server starting on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server: ", err)
	}
}
