package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/storefront/storefront/backend/auth-service/handlers"
	"github.com/storefront/storefront/backend/auth-service/internal/auth"
	"github.com/storefront/storefront/backend/auth-service/internal/config"
	"github.com/storefront/storefront/backend/auth-service/internal/database"
	"github.com/storefront/storefront/backend/auth-service/internal/events"
	"github.com/storefront/storefront/backend/auth-service/internal/linking"
	"github.com/storefront/storefront/backend/auth-service/internal/observability"
	"github.com/storefront/storefront/backend/auth-service/internal/oidc"
	"github.com/storefront/storefront/backend/auth-service/internal/password"
	"github.com/storefront/storefront/backend/auth-service/internal/sessions"
	"github.com/storefront/storefront/backend/auth-service/internal/tokens"
	"github.com/storefront/storefront/backend/auth-service/internal/users"
	"github.com/storefront/storefront/backend/auth-service/pkg/logger"
	"github.com/storefront/storefront/backend/auth-service/pkg/metrics"
	"github.com/storefront/storefront/backend/auth-service/pkg/middleware"
	"go.mongodb.org/mongo-driver/mongo"
)

var startTime = time.Now()

// backends holds the lazily opened connections so each is dialled at most once.
type backends struct {
	cfg   *config.Config
	pg    *sql.DB
	mongo *mongo.Client
	redis *redis.Client
}

func (b *backends) postgres(ctx context.Context) (*sql.DB, error) {
	if b.pg != nil {
		return b.pg, nil
	}
	db, err := database.ConnectPostgres(ctx, b.cfg.Postgres.URL, b.cfg.Postgres.MaxOpenConns)
	if err != nil {
		return nil, err
	}
	if b.cfg.Postgres.RunMigrations {
		if err := database.RunMigrations(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		logger.Infof("postgres migrations applied")
	}
	b.pg = db
	return db, nil
}

func (b *backends) mongoDB(ctx context.Context) (*mongo.Database, error) {
	if b.mongo == nil {
		client, err := database.ConnectMongoWithRetry(ctx, b.cfg.MongoDB.URI, b.cfg.MongoDB.Timeout)
		if err != nil {
			return nil, err
		}
		b.mongo = client
	}
	return b.mongo.Database(b.cfg.MongoDB.Database), nil
}

func (b *backends) redisClient(ctx context.Context) (*redis.Client, error) {
	if b.redis != nil {
		return b.redis, nil
	}
	client, err := database.ConnectRedis(ctx, b.cfg.Redis)
	if err != nil {
		return nil, err
	}
	b.redis = client
	return client, nil
}

// readiness lists the dependencies /ready pings.
func (b *backends) readiness() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{}
	if b.pg != nil {
		checks["postgres"] = b.pg.PingContext
	}
	if b.mongo != nil {
		checks["mongodb"] = func(ctx context.Context) error { return b.mongo.Ping(ctx, nil) }
	}
	if b.redis != nil {
		checks["redis"] = func(ctx context.Context) error { return b.redis.Ping(ctx).Err() }
	}
	return checks
}

func (b *backends) close(ctx context.Context) {
	if b.pg != nil {
		_ = b.pg.Close()
	}
	if b.mongo != nil {
		_ = b.mongo.Disconnect(ctx)
	}
	if b.redis != nil {
		_ = b.redis.Close()
	}
}

func openUsers(ctx context.Context, b *backends) (users.UserRepository, error) {
	switch b.cfg.Storage.Users {
	case config.BackendPostgres:
		db, err := b.postgres(ctx)
		if err != nil {
			return nil, err
		}
		return users.NewPostgresUserRepository(db), nil
	case config.BackendMongo:
		mdb, err := b.mongoDB(ctx)
		if err != nil {
			return nil, err
		}
		repo := users.NewMongoUserRepository(mdb.Collection("users"), mdb.Collection("counters"))
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("mongo user indexes: %w", err)
		}
		return repo, nil
	case config.BackendMemory:
		logger.Warnf("USER_STORE=memory: accounts are lost on restart")
		return users.NewMemoryUserRepository(), nil
	}
	return nil, fmt.Errorf("unknown user store %q", b.cfg.Storage.Users)
}

func openSessions(ctx context.Context, b *backends) (sessions.Store, error) {
	switch b.cfg.Storage.Sessions {
	case config.BackendPostgres:
		db, err := b.postgres(ctx)
		if err != nil {
			return nil, err
		}
		return sessions.NewPostgresStore(db), nil
	case config.BackendMongo:
		mdb, err := b.mongoDB(ctx)
		if err != nil {
			return nil, err
		}
		store := sessions.NewMongoStore(mdb.Collection("refresh_tokens"))
		if err := store.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("mongo session indexes: %w", err)
		}
		return store, nil
	case config.BackendRedis:
		client, err := b.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		return sessions.NewRedisStore(client, "refresh:"), nil
	case config.BackendMemory:
		logger.Warnf("SESSION_STORE=memory: sessions are lost on restart")
		return sessions.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown session store %q", b.cfg.Storage.Sessions)
}

func openPublisher(cfg config.AMQPConfig) (events.Publisher, func()) {
	if cfg.URL == "" {
		return events.LogPublisher{}, func() {}
	}
	p, err := events.NewAMQPPublisher(cfg.URL, cfg.Queue)
	if err != nil {
		logger.Warnf("rabbitmq unavailable, logging events instead: %v", err)
		return events.LogPublisher{}, func() {}
	}
	logger.Infof("publishing auth events to queue %s", cfg.Queue)
	return p, func() { _ = p.Close() }
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		// logger is not configured yet; default level still prints fatals
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Init(cfg.Log.Level)
	logger.SetFormat(cfg.Log.Format)
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

	if err := observability.InitSentry(cfg.Sentry.DSN, cfg.Server.Environment); err != nil {
		logger.Warnf("sentry init failed: %v", err)
	}
	defer observability.FlushSentry()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := &backends{cfg: cfg}
	defer b.close(context.Background())

	userRepo, err := openUsers(ctx, b)
	if err != nil {
		logger.Fatalf("user store: %v", err)
	}
	store, err := openSessions(ctx, b)
	if err != nil {
		logger.Fatalf("session store: %v", err)
	}
	if p, ok := store.(sessions.Purger); ok {
		go sessions.NewJanitor(p, cfg.Storage.JanitorInterval).Run(ctx)
	}

	publisher, closePublisher := openPublisher(cfg.AMQP)
	defer closePublisher()

	codec, err := tokens.NewCodec(cfg.JWT)
	if err != nil {
		logger.Fatalf("token codec: %v", err)
	}
	hasher := password.NewHasher(cfg.Password.BcryptCost)

	userSvc := users.NewService(userRepo, hasher).WithPublisher(publisher)
	linker := linking.NewLinker(userRepo, cfg.Google.AllowedDomains).WithPublisher(publisher)
	authSvc := auth.NewService(userRepo, codec, hasher, store).WithLinker(linker).WithPublisher(publisher)

	h := handlers.NewAuthHandler(cfg, authSvc, userSvc)
	if cfg.Google.Enabled() {
		provider, err := oidc.NewGoogleProvider(ctx, cfg.Google)
		if err != nil {
			logger.Warnf("google sign-in disabled: %v", err)
		} else {
			h.WithProvider(provider)
		}
	}

	if cfg.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(observability.RequestLogging(), observability.Recover(), middleware.CORS(cfg.Server.AllowedOrigins))

	var limit []gin.HandlerFunc
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis {
			client, err := b.redisClient(ctx)
			if err != nil {
				logger.Fatalf("rate limiter: %v", err)
			}
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			limit = append(limit, middleware.RedisRateLimitMiddleware(client, "rl:auth", cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			limit = append(limit, middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	checks := b.readiness()
	r.GET("/ready", func(c *gin.Context) {
		pingCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		ready := true
		deps := map[string]bool{}
		for name, ping := range checks {
			ok := ping(pingCtx) == nil
			deps[name] = ok
			ready = ready && ok
		}
		status, code := "ready", http.StatusOK
		if !ready {
			status, code = "not_ready", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "deps": deps, "uptime": time.Since(startTime).String()})
	})

	h.Register(&r.RouterGroup, limit...)
	h.RegisterAPI(r.Group("/api/v1"), middleware.AuthMiddleware(codec))
	handlers.RegisterSwagger(r)

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("starting auth service on %s (users=%s sessions=%s google=%v)",
			srv.Addr, cfg.Storage.Users, cfg.Storage.Sessions, cfg.Google.Enabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("graceful shutdown failed: %v", err)
	}
}
