package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"mentor-chat/internal/chat"
	"mentor-chat/internal/config"
	"mentor-chat/internal/db"
	"mentor-chat/internal/profile"
)

// backend is the storage side of the server for the configured driver.
type backend struct {
	store    chat.Store
	profiles profile.Source // nil for the memory driver
	closers  []func(context.Context) error
}

func (b *backend) Close(ctx context.Context) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](ctx); err != nil {
			log.Warn("close backend", "err", err)
		}
	}
}

// openBackend connects to the configured store. With migrate set the schema
// (Postgres tables, Mongo indexes) is created first.
func openBackend(ctx context.Context, cfg *config.Config, migrate bool) (*backend, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		database, err := db.NewDatabase(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		log.Info("Connected to PostgreSQL")
		if migrate {
			if err := database.AutoMigrate(ctx); err != nil {
				database.Close()
				return nil, err
			}
			log.Info("Database schema initialized")
		}
		return &backend{
			store:    chat.NewRepository(database.Conn),
			profiles: profile.NewRepository(database.Conn),
			closers:  []func(context.Context) error{func(context.Context) error { return database.Close() }},
		}, nil

	case config.DriverMongo:
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("connect to mongo: %w", err)
		}
		if err := client.Ping(ctx, nil); err != nil {
			client.Disconnect(ctx)
			return nil, fmt.Errorf("ping mongo: %w", err)
		}
		log.Info("Connected to MongoDB", "database", cfg.MongoDatabase)
		database := client.Database(cfg.MongoDatabase)
		store := chat.NewMongoRepository(database)
		profiles := profile.NewMongoRepository(database)
		if migrate {
			if err := store.EnsureIndexes(ctx); err != nil {
				client.Disconnect(ctx)
				return nil, fmt.Errorf("create chat indexes: %w", err)
			}
			if err := profiles.EnsureIndexes(ctx); err != nil {
				client.Disconnect(ctx)
				return nil, fmt.Errorf("create profile indexes: %w", err)
			}
			log.Info("Mongo indexes initialized")
		}
		return &backend{
			store:    store,
			profiles: profiles,
			closers:  []func(context.Context) error{client.Disconnect},
		}, nil

	case config.DriverMemory:
		log.Warn("Using in-memory store; nothing survives a restart")
		return &backend{store: chat.NewMemoryRepository()}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// profileCache picks Redis when configured, an in-process cache otherwise.
func profileCache(ctx context.Context, cfg *config.Config) (profile.Cache, func() error, error) {
	if cfg.RedisAddr == "" {
		cache, err := profile.NewLocalCache(10_000)
		if err != nil {
			return nil, nil, err
		}
		return cache, cache.Close, nil
	}
	cache, err := profile.NewRedisCache(ctx, cfg.RedisAddr)
	if err != nil {
		return nil, nil, err
	}
	log.Info("Connected to Redis", "addr", cfg.RedisAddr)
	return cache, cache.Close, nil
}
