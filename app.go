package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/choraleia/opengpt/pkg/auth"
	"github.com/choraleia/opengpt/pkg/completion"
	"github.com/choraleia/opengpt/pkg/config"
	"github.com/choraleia/opengpt/pkg/db"
	"github.com/choraleia/opengpt/pkg/event"
	"github.com/choraleia/opengpt/pkg/history"
	"github.com/choraleia/opengpt/pkg/utils"
)

// buildServices opens the configured stores and assembles the services.
// The returned cleanup closes every connection that was opened.
func buildServices(ctx context.Context, cfg *config.AppConfig) (_ Services, _ func(), err error) {
	logger := utils.GetLogger()
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	defer func() {
		if err != nil {
			cleanup()
		}
	}()

	var (
		store history.Store
		users auth.UserStore
	)

	switch cfg.Driver() {
	case "mongo":
		if cfg.Store.MongoURI == "" {
			return Services{}, nil, fmt.Errorf("store.mongo_uri is required for the mongo driver")
		}
		client, err := history.ConnectMongo(ctx, cfg.Store.MongoURI)
		if err != nil {
			return Services{}, nil, err
		}
		closers = append(closers, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(shutdownCtx)
		})
		mongoStore, err := history.NewMongoStore(ctx, client, cfg.MongoDatabase())
		if err != nil {
			return Services{}, nil, err
		}
		mongoUsers, err := auth.NewMongoUserStore(ctx, client, cfg.MongoDatabase())
		if err != nil {
			return Services{}, nil, err
		}
		store, users = mongoStore, mongoUsers
		logger.Info("Using MongoDB store", "database", cfg.MongoDatabase())
	default:
		gdb, err := db.Open(cfg.Driver(), cfg.DSN())
		if err != nil {
			return Services{}, nil, err
		}
		if sqlDB, err := gdb.DB(); err == nil {
			closers = append(closers, func() { _ = sqlDB.Close() })
		}
		store, users = history.NewGormStore(gdb), auth.NewGormUserStore(gdb)
		logger.Info("Using SQL store", "driver", cfg.Driver())
	}

	if addr := cfg.Cache.RedisAddr; addr != "" {
		rdb, err := history.NewRedisClient(ctx, addr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			// The cache is optional; serve straight from the store.
			logger.Warn("Redis unavailable, history cache disabled", "addr", addr, "error", err)
		} else {
			closers = append(closers, func() { _ = rdb.Close() })
			store = history.NewCachedStore(store, rdb, cfg.CacheTTL())
			logger.Info("History cache enabled", "addr", addr, "ttl", cfg.CacheTTL())
		}
	}

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret = uuid.NewString()
		logger.Warn("auth.jwt_secret is not set; using a random secret, sessions end on restart")
	}

	emitter := event.NewEmitter()

	repo := history.NewRepository(store)
	repo.SetEmitter(emitter)

	userService := auth.NewService(users, auth.NewTokens(secret, cfg.TokenTTL()))
	userService.SetEmitter(emitter)

	return Services{
		History:     repo,
		Users:       userService,
		Completions: completion.NewService(cfg),
		Emitter:     emitter,
	}, cleanup, nil
}
