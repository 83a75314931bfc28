package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"menu-orders/internal/cart"
	"menu-orders/internal/config"
	"menu-orders/internal/database"
	"menu-orders/internal/logger"
	"menu-orders/internal/messaging"
	"menu-orders/internal/query"
	"menu-orders/internal/router"
	"menu-orders/internal/services/notification"
	"menu-orders/internal/services/order"
)

func main() {
	// Parse command line flags
	var (
		mode       = flag.String("mode", "", "Service mode (order-service, notification-router)")
		configPath = flag.String("config", "config.yaml", "Path to the YAML config file")
		port       = flag.Int("port", 0, "HTTP port (overrides http.port)")
		device     = flag.String("device", "", "Device name (required for notification-router mode)")
		prefetch   = flag.Int("prefetch", 1, "RabbitMQ prefetch count")
	)
	flag.Parse()

	// Validate required mode flag
	if *mode == "" {
		fmt.Fprintf(os.Stderr, "Error: --mode flag is required\n")
		flag.Usage()
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.HTTP.Port = *port
	}

	// Create logger
	log := logger.New(*mode)
	requestID := logger.GenerateRequestID()

	log.Info("service_started", fmt.Sprintf("Starting %s", *mode), requestID, map[string]interface{}{
		"mode": *mode,
		"port": cfg.HTTP.Port,
	})

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("graceful_shutdown", "Received shutdown signal", requestID, nil)
		cancel()
	}()

	// Route to appropriate service
	switch *mode {
	case "order-service":
		if err := runOrderService(ctx, cfg, log); err != nil {
			log.Error("service_failed", "Order service failed", requestID, err, nil)
			os.Exit(1)
		}
	case "notification-router":
		if *device == "" {
			log.Error("validation_failed", "device is required for notification-router mode", requestID, nil, nil)
			os.Exit(1)
		}
		if err := runNotificationRouter(ctx, cfg, log, *device, *prefetch); err != nil {
			log.Error("service_failed", "Notification router failed", requestID, err, nil)
			os.Exit(1)
		}
	default:
		log.Error("validation_failed", fmt.Sprintf("Unknown mode: %s", *mode), requestID, nil, nil)
		os.Exit(1)
	}

	log.Info("service_stopped", "Service stopped gracefully", requestID, nil)
}

// runOrderService runs the cart and checkout API
func runOrderService(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	requestID := logger.GenerateRequestID()

	// Initialize database
	db, err := database.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	log.Info("db_connected", "Connected to PostgreSQL database", requestID, nil)

	if err := db.RunMigrations(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	redisClient, err := connectRedis(ctx, cfg)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	log.Info("redis_connected", "Connected to Redis", requestID, nil)

	// Initialize messaging
	conn, err := messaging.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	defer conn.Close()

	log.Info("rabbitmq_connected", "Connected to RabbitMQ", requestID, nil)

	publisher := messaging.NewPublisher(conn, log)
	queries := query.NewClient(query.NewRedisCache(redisClient, cfg.Redis.TTL), log)

	// Initialize service and handler
	service := order.NewService(db, queries, publisher, log)
	sessions := cart.NewSessions(service, log)
	handler := order.NewHandler(service, sessions, log, cfg.HTTP.RequestTimeout)

	// Setup HTTP server
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start HTTP server in goroutine
	go func() {
		log.Info("service_started", fmt.Sprintf("Order Service started on port %d", cfg.HTTP.Port), requestID, map[string]interface{}{
			"port": cfg.HTTP.Port,
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server_failed", "HTTP server failed", requestID, err, nil)
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	return server.Shutdown(shutdownCtx)
}

// runNotificationRouter listens for admin notifications and prints the
// detail route each one resolves to
func runNotificationRouter(ctx context.Context, cfg *config.Config, log *logger.Logger, device string, prefetch int) error {
	requestID := logger.GenerateRequestID()

	redisClient, err := connectRedis(ctx, cfg)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	conn, err := messaging.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	defer conn.Close()

	log.Info("rabbitmq_connected", "Connected to RabbitMQ", requestID, nil)

	queue, err := conn.BindDeviceQueue(device)
	if err != nil {
		return fmt.Errorf("failed to bind notification queue: %w", err)
	}

	consumer := messaging.NewConsumer(conn, log, queue, "notification-router-"+device, prefetch)
	launch := notification.NewRedisLaunchStore(redisClient, device, notification.DefaultConsumedTTL)
	source := notification.NewAMQPSource(consumer, launch, log)

	nav := router.New(router.NewConsoleNavigator(os.Stdout), router.DefaultRoutes, log)
	listener := notification.NewListener(source, nav, log)

	if err := listener.Mount(ctx); err != nil {
		return err
	}
	defer listener.Unmount()

	// targets resolved during cold start are held until the navigator is up
	nav.MarkReady()

	log.Info("service_started", "Notification router started", requestID, map[string]interface{}{
		"device": device,
	})

	<-ctx.Done()
	return nil
}

func connectRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}
