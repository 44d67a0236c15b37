package main

import (
	"context"
	"log"
	"time"

	"github.com/caarlos0/env/v6"
	"go.uber.org/zap"

	"aura/internal/cache"
	"aura/internal/chat"
	"aura/internal/sentiment"
	"aura/internal/server"
	"aura/internal/storage"
	"aura/internal/storage/migrations"
)

type appConfig struct {
	Salt          string `env:"APP_SALT" envDefault:"a_very_secret_and_secure_salt_string"`
	AdminUsername string `env:"ADMIN_USERNAME" envDefault:"admin"`
	AdminPassword string `env:"ADMIN_PASSWORD" envDefault:"aura_admin_123"`
	RedisURL      string `env:"REDIS_URL"`
}

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("zap.NewDevelopment: %v", err)
	}
	defer logger.Sync()

	sugar := logger.Sugar()
	sugar.Info("Application is starting")

	httpCfg := server.EnvConfig{}
	if err := env.Parse(&httpCfg); err != nil {
		sugar.Fatalf("Cannot parse env config: %v", err)
	}

	dbCfg := storage.Config{}
	if err := env.Parse(&dbCfg); err != nil {
		sugar.Fatalf("Cannot parse db config: %v", err)
	}

	appCfg := appConfig{}
	if err := env.Parse(&appCfg); err != nil {
		sugar.Fatalf("Cannot parse app config: %v", err)
	}

	if err := migrations.Run(dbCfg.DSN()); err != nil {
		sugar.Fatalf("Cannot migrate db schema: %v", err)
	}

	store, err := storage.New(context.Background(), sugar, dbCfg, storage.ConnectionTimeout(30*time.Second))
	if err != nil {
		sugar.Fatalf("Cannot create Store instance: %v", err)
	}

	engineOpts := []chat.Option{
		chat.WithSalt(appCfg.Salt),
		chat.WithDefaultAdmin(appCfg.AdminUsername, appCfg.AdminPassword),
		chat.WithAnalyzer(sentiment.Score),
	}

	var redisCache *cache.Redis
	if appCfg.RedisURL != "" {
		redisCache, err = cache.NewRedis(context.Background(), appCfg.RedisURL)
		if err != nil {
			sugar.Fatalf("Cannot connect to redis: %v", err)
		}
		engineOpts = append(engineOpts, chat.WithCache(redisCache))
	}

	engine := chat.NewEngine(sugar, store, engineOpts...)

	if err := engine.EnsureAdmin(context.Background()); err != nil {
		sugar.Fatalf("Cannot seed default admin: %v", err)
	}

	serverOpts := []server.Option{
		server.WithEnvConfig(httpCfg),
		server.ReadTimeout(5 * time.Second),
		server.RegisterAfterShutdown(func() {
			sugar.Info("Closing store")
			store.Close()
			if redisCache != nil {
				if err := redisCache.Close(); err != nil {
					sugar.Errorf("Cannot close redis client: %v", err)
				}
			}
			sugar.Info("Store is closed")
		}),
	}

	srv, err := server.NewServer(sugar, engine, serverOpts...)
	if err != nil {
		sugar.Fatalf("Cannot create Server instance: %v", err)
	}

	if err := srv.Start(); err != nil {
		sugar.Fatalf("Cannot start http srv: %v", err)
	}
}
