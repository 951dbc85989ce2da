package main

import (
	"log"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"payment-service/internal/config"
	"payment-service/internal/consumers"
	"payment-service/internal/database"
	"payment-service/internal/logger"
	"payment-service/internal/worker"
)

func main() {
	// Load env
	if err := godotenv.Load("../../.env"); err != nil {
		log.Println("No .env file found in ../../.env, trying .env")
		if err := godotenv.Load(".env"); err != nil {
			log.Println("No .env file found, using system env")
		}
	}

	zlog, err := logger.NewLogger()
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zlog.Sync()

	cfg := config.Load()

	// Connect DB
	database.Connect()
	db := database.DB

	mailer := &consumers.LogMailer{Log: zlog}
	processor := consumers.NewNotificationProcessor(db, mailer, zlog)

	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr}

	log.Println("Starting Asynq Worker...")
	worker.StartWorker(redisOpt, processor)
}
