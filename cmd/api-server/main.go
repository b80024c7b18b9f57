package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/rs/cors"

	"reviwa-server/internal/eventbus"
	"reviwa-server/internal/hub"
	"reviwa-server/internal/lifecycle"
	"reviwa-server/internal/mailer"
	"reviwa-server/internal/media"
	"reviwa-server/internal/store"
)

// App holds the application dependencies
type App struct {
	Store      *store.Store
	Lifecycle  *lifecycle.Service
	Hub        *hub.Hub
	EventBus   *eventbus.RedisEventBus
	Mailer     mailer.Notifier
	Router     *mux.Router
	InstanceID string
	StartedAt  time.Time
}

func main() {
	log.Println("Starting Reviwa API Server...")

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment")
	}
	cfg := loadConfig()

	db, err := connectDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to Postgres")

	st := store.New(db)
	if err := st.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}

	eventBus, err := eventbus.NewRedisEventBus(cfg.RedisHost, cfg.RedisPort)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer eventBus.Close()
	log.Println("Connected to Redis Event Bus")

	var mediaStore media.Store
	if cfg.S3.Configured() {
		s3Store, err := media.NewS3Store(context.Background(), cfg.S3)
		if err != nil {
			log.Fatalf("Failed to init media store: %v", err)
		}
		mediaStore = s3Store
		log.Println("Media store enabled")
	} else {
		log.Println("Media store disabled: missing S3 environment variables")
	}

	mailService := mailer.NewMailService()
	realtimeHub := hub.New()

	app := &App{
		Store: st,
		Lifecycle: &lifecycle.Service{
			Reports: st,
			Users:   st,
			Media:   mediaStore,
			Mailer:  mailService,
			Bus:     eventBus,
		},
		Hub:        realtimeHub,
		EventBus:   eventBus,
		Mailer:     mailService,
		Router:     mux.NewRouter(),
		InstanceID: cfg.InstanceID,
		StartedAt:  time.Now(),
	}

	setupRoutes(app)

	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	go startConsumer(consumerCtx, app)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{cfg.ClientOrigin},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      corsHandler.Handler(app.Router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("Reviwa API [%s] listening on port %s", cfg.InstanceID, cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	stopConsumer()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	server.Shutdown(ctx)
	log.Println("Server exited")
}

// Config holds application configuration
type Config struct {
	DBHost       string
	DBPort       string
	DBUser       string
	DBPassword   string
	DBName       string
	RedisHost    string
	RedisPort    string
	ServerPort   string
	InstanceID   string
	ClientOrigin string
	S3           media.Config
}

func loadConfig() Config {
	return Config{
		DBHost:       getEnv("DB_HOST", "localhost"),
		DBPort:       getEnv("DB_PORT", "5432"),
		DBUser:       getEnv("DB_USER", "postgres"),
		DBPassword:   getEnv("DB_PASSWORD", "postgres"),
		DBName:       getEnv("DB_NAME", "reviwa_db"),
		RedisHost:    getEnv("REDIS_HOST", "localhost"),
		RedisPort:    getEnv("REDIS_PORT", "6379"),
		ServerPort:   getEnv("SERVER_PORT", "8080"),
		InstanceID:   getEnv("INSTANCE_ID", "api-1"),
		ClientOrigin: getEnv("CLIENT_ORIGIN", "http://localhost:5173"),
		S3: media.Config{
			Bucket:    getEnv("S3_BUCKET", ""),
			Endpoint:  getEnv("S3_ENDPOINT", ""),
			Region:    getEnv("S3_REGION", ""),
			AccessKey: getEnv("S3_ACCESS_KEY", ""),
			SecretKey: getEnv("S3_SECRET_KEY", ""),
			PublicURL: getEnv("S3_PUBLIC_URL", ""),
		},
	}
}

func connectDB(cfg Config) (*sql.DB, error) {
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName)

	var db *sql.DB
	var err error

	for i := 0; i < 30; i++ {
		db, err = sql.Open("postgres", connStr)
		if err == nil {
			err = db.Ping()
			if err == nil {
				return db, nil
			}
		}
		log.Printf("Waiting for database... attempt %d/30", i+1)
		time.Sleep(2 * time.Second)
	}
	return nil, err
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
