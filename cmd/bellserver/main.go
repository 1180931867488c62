// Command bellserver stores blog activity notifications and pushes them
// to signed-in members over Server-Sent Events.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nhle/blogbell/internal/hub"
	"github.com/nhle/blogbell/internal/ingest"
	"github.com/nhle/blogbell/internal/logging"
	"github.com/nhle/blogbell/internal/model"
	"github.com/nhle/blogbell/internal/server"
	"github.com/nhle/blogbell/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to bellserver.yaml (optional)")
	mintFor := flag.String("mint-token", "", "print a signed session token for this user id and exit")
	flag.Parse()

	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := model.LoadServerConfig(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	if *mintFor != "" {
		token, err := server.MintToken(cfg.JWT.Secret, cfg.JWT.Issuer, *mintFor, cfg.JWT.TTL())
		if err != nil {
			log.Fatalf("minting token: %v", err)
		}
		fmt.Println(token)
		return
	}

	logger, err := logging.New(cfg.Log.Level, "", cfg.Log.Development)
	if err != nil {
		log.Fatalf("building logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Errorw("bellserver stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *model.ServerConfig, logger *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	st, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	h := hub.New(cfg.Push.BufferSize, logger.Named("hub"))

	var publisher hub.Publisher = hub.NewLocalBroker(h)
	if cfg.Redis.Enabled() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connecting to redis %s: %w", cfg.Redis.Addr, err)
		}

		broker := hub.NewRedisBroker(client, cfg.Redis.Channel, h, logger.Named("redis"))
		go func() {
			if err := broker.Run(ctx); err != nil {
				logger.Errorw("redis fan-out stopped", "error", err)
			}
		}()
		publisher = broker
		logger.Infow("redis fan-out enabled", "addr", cfg.Redis.Addr, "channel", cfg.Redis.Channel)
	}

	activity := ingest.NewHandler(st, publisher, logger.Named("ingest"))

	if cfg.Kafka.Enabled() {
		consumer := ingest.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, activity, logger.Named("kafka"))
		defer consumer.Close()

		go func() {
			if err := consumer.Run(ctx); err != nil {
				logger.Errorw("activity consumer stopped", "error", err)
			}
		}()
		logger.Infow("kafka ingest enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	srv := server.New(cfg, st, h, activity, logger.Named("http"))
	logger.Infow("bellserver starting", "db", cfg.DBPath, "ping_interval", cfg.Push.PingInterval())
	return srv.Run(ctx)
}
