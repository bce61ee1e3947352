package di

import (
	"context"
	"fmt"

	"parley/backend/internal/application/hub"
	"parley/backend/internal/application/presence"
	"parley/backend/internal/auth"
	"parley/backend/internal/config"
	pgstore "parley/backend/internal/infrastructure/postgres"
	redisrepo "parley/backend/internal/infrastructure/redis"
	"parley/backend/internal/logger"
	"parley/backend/internal/presentation/server"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Container struct {
	Config      *config.Config
	Logger      *zap.Logger
	RedisClient *redis.Client
	Store       *redisrepo.PresenceStore
	Broadcaster *redisrepo.Broadcaster
	DB          *gorm.DB
	Messages    *pgstore.MessageRepo
	Threads     *pgstore.ThreadRepo
	Verifier    *auth.Verifier
	Hub         *hub.Hub
	Engine      *presence.Engine
	Sweeper     *presence.Sweeper
	Server      *server.WsServer
}

// NewContainer wires the whole service. Both backing stores must be
// reachable; otherwise startup fails and no connections are accepted.
func NewContainer(ctx context.Context) (*Container, error) {
	c := &Container{}
	cfg, err := config.LoadFromFile("config.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	c.Config = cfg
	c.Logger = logger.NewLogger(cfg.LoggerConfig.Level)

	redisClient := redisrepo.NewRedisConnection(&cfg.RedisCfg)
	if redisClient == nil {
		return nil, fmt.Errorf("failed to create redis connection")
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	c.RedisClient = redisClient
	c.Logger.Info("Connected to Redis")
	c.Store = redisrepo.NewPresenceStore(redisClient)
	c.Broadcaster = redisrepo.NewBroadcaster(redisClient)

	db, err := pgstore.Connect(cfg.PostgresCfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres connect failed: %w", err)
	}
	if err := pgstore.Migrate(db); err != nil {
		return nil, fmt.Errorf("postgres migrate failed: %w", err)
	}
	c.DB = db
	c.Logger.Info("Connected to Postgres")
	c.Messages = pgstore.NewMessageRepo(db)
	c.Threads = pgstore.NewThreadRepo(db)

	c.Verifier = auth.NewVerifier(cfg.AuthCfg.Secret)
	c.Hub = hub.NewHub(c.Logger)
	c.Engine = presence.NewEngine(c.Store, c.Broadcaster, c.Hub, c.Messages, c.Threads, cfg.PresenceCfg.MemberTTL(), c.Logger)
	c.Sweeper = presence.NewSweeper(c.Store, c.Broadcaster, cfg.PresenceCfg.SweepInterval(), c.Logger)

	srvDsn := fmt.Sprintf("%s:%s", cfg.ServerCfg.Host, cfg.ServerCfg.Port)
	c.Server = server.NewWsServer(c.Hub, c.Engine, c.Store, c.Messages, c.Verifier, srvDsn, cfg.ServerCfg.AllowedOrigins, c.Logger)

	return c, nil
}

func (c *Container) Close() error {
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.Error("Failed to close Redis", zap.Error(err))
		}
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
	if c.Logger != nil {
		c.Logger.Sync()
	}
	return nil
}
