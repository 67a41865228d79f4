package main

import (
	"context"
	"crypto/tls"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/JimRearick/camp-snackbar-pos-sub001/api"
	"github.com/JimRearick/camp-snackbar-pos-sub001/events"
	"github.com/JimRearick/camp-snackbar-pos-sub001/ledger"
	"github.com/JimRearick/camp-snackbar-pos-sub001/storage"
)

func main() {
	_ = godotenv.Load()

	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.StandardLogger()

	store, err := storage.Open(envString("DB_DRIVER", storage.DriverSQLite), envString("DB_DSN", "file:snackbar.db"))
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer store.Close()

	hub := events.NewHub(events.Config{
		Workers:    envInt("STREAM_WORKERS", 4),
		QueueSize:  envInt("STREAM_QUEUE", 256),
		BufferSize: envInt("STREAM_BUFFER", 64),
	}, logger)
	defer hub.Close()

	// events reach local subscribers through the hub; with Redis configured
	// they also cross instances through the relay, and a Kafka sink can tee
	// the committed ledger feed into downstream reporting
	var pub events.Publisher = hub
	var deduper api.Deduper
	if redisConn := os.Getenv("REDIS_CONNECTION_STRING"); redisConn != "" {
		redisOpts, err := redis.ParseURL(redisConn)
		if err != nil {
			parts := strings.Split(redisConn, ",")
			redisOpts = &redis.Options{Addr: parts[0]}
			for _, p := range parts[1:] {
				kv := strings.SplitN(p, "=", 2)
				if len(kv) != 2 {
					continue
				}
				switch strings.ToLower(kv[0]) {
				case "password":
					redisOpts.Password = kv[1]
				case "ssl":
					if strings.ToLower(kv[1]) == "true" {
						redisOpts.TLSConfig = &tls.Config{}
					}
				}
			}
		}
		rc := redis.NewClient(redisOpts)
		relay := events.NewRelay(hub, rc, envString("EVENTS_CHANNEL", "pos-events"), logger)
		go relay.Run(context.Background())
		pub = relay
		deduper = api.NewRedisDeduper(rc, envDur("DEDUPER_TTL", 24*time.Hour))
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		sink := events.NewKafkaSink(strings.Split(brokers, ","), envString("KAFKA_TOPIC", "pos-ledger-events"), logger)
		defer sink.Close()
		pub = events.NewFanout(pub, sink)
	}

	svc := ledger.New(store, pub, ledger.Config{
		RetryAttempts: envInt("LEDGER_RETRY_ATTEMPTS", 5),
		RetryInitial:  envDur("LEDGER_RETRY_INITIAL", 25*time.Millisecond),
		RetryMax:      envDur("LEDGER_RETRY_MAX", 500*time.Millisecond),
	}, logger)

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, api.HeaderActorID, api.HeaderActorRole, api.HeaderIdempotencyKey},
	}))

	api.Register(e, api.Deps{
		Coordinator: svc,
		Directory:   store,
		Catalog:     store,
		Streamer:    hub,
		Publisher:   pub,
		Deduper:     deduper,
		Pinger:      store,
		Config: api.Config{
			PrepWarnAfter:   envDur("PREP_WARN_AFTER", 10*time.Minute),
			PrepUrgentAfter: envDur("PREP_URGENT_AFTER", 20*time.Minute),
		},
		Logger: logger,
	})

	e.Logger.Fatal(e.Start(":" + envString("PORT", "8080")))
}

func envString(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envInt(name string, fallback int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func envDur(name string, fallback time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
