// Package store provides the blob backends the progress tracker persists to
// and picks one from configuration.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.uber.org/zap"

	"github.com/example/lems/internal/platform/db"
	"github.com/example/lems/internal/platform/mongoconn"
	"github.com/example/lems/internal/progression"
	"github.com/example/lems/services/progress/internal/config"
)

var (
	_ progression.Store = (*Postgres)(nil)
	_ progression.Store = (*Redis)(nil)
	_ progression.Store = (*Mongo)(nil)
	_ progression.Store = (*Breaker)(nil)
)

type Options struct {
	Backend     string
	Production  bool
	DatabaseURL string
	RedisURL    string
	Mongo       mongoconn.Config
	Breaker     BreakerSettings
	Logger      *zap.Logger
}

// Backend is an opened store plus the hooks the service needs around it.
type Backend struct {
	progression.Store
	Name  string
	ping  func(context.Context) error
	close func(context.Context) error
}

// Ping checks connectivity; the memory backend is always ready.
func (b *Backend) Ping(ctx context.Context) error {
	if b.ping == nil {
		return nil
	}
	return b.ping(ctx)
}

func (b *Backend) Close(ctx context.Context) error {
	if b.close == nil {
		return nil
	}
	return b.close(ctx)
}

// Open connects the configured backend. Remote backends are wrapped in a
// circuit breaker. Production refuses the in-memory backend.
func Open(ctx context.Context, opts Options) (*Backend, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	switch opts.Backend {
	case "", config.BackendMemory:
		if opts.Production {
			return nil, errors.New("memory store is not allowed in production")
		}
		log.Warn("using in-memory progress store; data is lost on restart")
		return &Backend{Store: progression.NewMemoryStore(), Name: config.BackendMemory}, nil

	case config.BackendPostgres:
		pool, err := db.Open(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, err
		}
		pg := NewPostgres(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return &Backend{
			Store: NewBreaker("postgres", pg, opts.Breaker, log),
			Name:  config.BackendPostgres,
			ping:  pool.Ping,
			close: closePool(pool),
		}, nil

	case config.BackendRedis:
		rs, err := NewRedis(opts.RedisURL)
		if err != nil {
			return nil, err
		}
		if err := rs.Ping(ctx); err != nil {
			_ = rs.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		return &Backend{
			Store: NewBreaker("redis", rs, opts.Breaker, log),
			Name:  config.BackendRedis,
			ping:  rs.Ping,
			close: func(context.Context) error { return rs.Close() },
		}, nil

	case config.BackendMongo:
		client, database, err := mongoconn.Connect(ctx, opts.Mongo)
		if err != nil {
			return nil, err
		}
		return &Backend{
			Store: NewBreaker("mongo", NewMongo(database), opts.Breaker, log),
			Name:  config.BackendMongo,
			ping:  func(ctx context.Context) error { return client.Ping(ctx, nil) },
			close: disconnect(client),
		}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
}

func closePool(pool *pgxpool.Pool) func(context.Context) error {
	return func(context.Context) error {
		pool.Close()
		return nil
	}
}

func disconnect(client *mongo.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		return client.Disconnect(ctx)
	}
}
