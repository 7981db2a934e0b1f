package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/permitflow/go-services/handlers"
	"github.com/permitflow/go-services/internal/authz"
	"github.com/permitflow/go-services/internal/config"
	"github.com/permitflow/go-services/internal/database"
	"github.com/permitflow/go-services/internal/directory"
	"github.com/permitflow/go-services/internal/oidc"
	permithandler "github.com/permitflow/go-services/internal/permit/handler"
	permitrepo "github.com/permitflow/go-services/internal/permit/repository"
	permitsvc "github.com/permitflow/go-services/internal/permit/service"
	"github.com/permitflow/go-services/internal/requirements"
	"github.com/permitflow/go-services/internal/sessions"
	"github.com/permitflow/go-services/internal/storage"
	"github.com/permitflow/go-services/internal/tokens"
	"github.com/permitflow/go-services/internal/users"
	"github.com/permitflow/go-services/pkg/logger"
	"github.com/permitflow/go-services/pkg/metrics"
	"github.com/permitflow/go-services/pkg/middleware"
)

var startTime = time.Now()

// chainVerifier accepts a token when any member verifier does. Locally issued
// HMAC tokens and Keycloak-issued tokens then pass the same auth middleware.
type chainVerifier []middleware.Verifier

func (cv chainVerifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	var err error
	for _, v := range cv {
		var t middleware.Token
		t, err = v.Verify(ctx, raw)
		if err == nil {
			return t, nil
		}
	}
	if err == nil {
		err = fmt.Errorf("no verifier configured")
	}
	return nil, err
}

func main() {
	// logging is controlled with LOG_LEVEL env: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: backend=%s keycloak=%v mongo=%v redis=%v", cfg.Storage.Backend, cfg.Keycloak.URL != "", cfg.MongoDB.URI != "", cfg.Redis.Host != "")

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), middleware.RequestID())

	// Lightweight CORS middleware for dev/test: set common headers and respond
	// to OPTIONS. Production deployments should front this with a stricter policy.
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Disposition")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	})

	ctx := context.Background()

	// Connect to Redis early so the token blacklist and the rate limiter can
	// use it. The service still runs without it.
	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Host + ":" + cfg.Redis.Port, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
			redisClient = nil
		} else {
			sessions.SetBlacklistClient(redisClient)
			logger.Infof("connected to Redis at %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		}
	}

	// Per-client rate limiter (per-user when authenticated, otherwise per-IP).
	// Redis-backed when available so the limit holds across replicas.
	if cfg.RateLimit.RequestsPerMinute > 0 {
		rps := float64(cfg.RateLimit.RequestsPerMinute) / 60
		if redisClient != nil {
			r.Use(middleware.RedisRateLimitMiddleware(redisClient, rps, cfg.RateLimit.Burst, time.Minute))
		} else {
			r.Use(middleware.RateLimitMiddleware(rps, cfg.RateLimit.Burst))
		}
	}

	// MongoDB backs permit storage (when selected), the directory, users,
	// sessions and the billing handoff. Retry with backoff to tolerate
	// container startup races.
	var mongoClient *mongo.Client
	if cfg.MongoDB.URI != "" {
		const maxAttempts = 5
		backoff := time.Second
		var errConn error
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			mongoClient, errConn = database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
			if errConn == nil {
				break
			}
			logger.Warnf("attempt %d/%d: failed to connect to MongoDB: %v", attempt, maxAttempts, errConn)
			if attempt < maxAttempts {
				time.Sleep(backoff)
				backoff *= 2
			}
		}
		if errConn != nil {
			logger.Warnf("could not connect to MongoDB after %d attempts: %v", maxAttempts, errConn)
			mongoClient = nil
		} else {
			defer func() { _ = mongoClient.Disconnect(ctx) }()
			logger.Infof("connected to MongoDB database %s", cfg.MongoDB.Database)
		}
	}

	// Permit package storage per STORAGE_BACKEND.
	var repo permitrepo.Repository
	switch cfg.Storage.Backend {
	case config.BackendMongo:
		if mongoClient == nil {
			logger.Fatalf("STORAGE_BACKEND=mongo but MongoDB is unreachable")
		}
		repo = permitrepo.NewMongoRepo(mongoClient.Database(cfg.MongoDB.Database))
	case config.BackendPostgres:
		db, err := database.ConnectPostgres(ctx, cfg.Postgres.DSN, database.PostgresOptions{
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			logger.Fatalf("failed to connect to Postgres: %v", err)
		}
		defer db.Close()
		pg := permitrepo.NewPostgresRepo(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatalf("failed to prepare Postgres schema: %v", err)
		}
		repo = pg
	default:
		repo = permitrepo.NewMemoryRepo()
		logger.Warnf("STORAGE_BACKEND=memory: packages are lost on restart")
	}

	// Document files go to MinIO when configured, otherwise to process memory.
	var files storage.DocumentStore
	if mcfg := storage.LoadMinIOConfig(); mcfg.Endpoint != "" {
		ms, err := storage.NewMinIOStorage(mcfg)
		if err != nil {
			logger.Fatalf("failed to connect to MinIO: %v", err)
		}
		files = ms
		logger.Infof("document files stored in MinIO bucket %s", mcfg.Bucket)
	} else {
		files = storage.NewMemoryStore()
		logger.Warnf("MINIO_ENDPOINT not set: document files held in memory")
	}

	// Checklist of required document categories, overridable per county and
	// permit type from a YAML file.
	checklist := requirements.Default()
	if cfg.Requirements.ChecklistFile != "" {
		checklist, err = requirements.LoadChecklist(cfg.Requirements.ChecklistFile)
		if err != nil {
			logger.Fatalf("failed to load checklist %s: %v", cfg.Requirements.ChecklistFile, err)
		}
	}

	authorizer := authz.NewRoleAuthorizer()

	svcOpts := permitsvc.Options{
		Repo:       repo,
		Files:      files,
		Checklist:  checklist,
		Authorizer: authorizer,
	}
	if mongoClient != nil {
		svcOpts.BillingMongoURI = cfg.MongoDB.URI
		svcOpts.BillingDatabase = cfg.MongoDB.Database
	}
	permitService := permitsvc.New(svcOpts)

	// Sessions prefer Redis; MongoDB provides the user store and the session
	// fallback.
	var userSvc *users.Service
	var sessionsSvc *sessions.Service
	if redisClient != nil {
		sessionsSvc = sessions.NewService(sessions.NewRedisRepository(redisClient, "session:"))
		logger.Infof("using Redis for session storage")
	}
	if mongoClient != nil {
		db := mongoClient.Database(cfg.MongoDB.Database)
		userSvc = users.NewService(users.NewMongoUserRepository(db.Collection("users")))
		if sessionsSvc == nil {
			sessionsSvc = sessions.NewService(sessions.NewMongoRepository(db.Collection("sessions")))
		}
	}

	// Operator-provisioned logins for password mode without Keycloak.
	var localUsers *users.LocalDirectory
	if cfg.Auth.UsersFile != "" {
		localUsers, err = users.LoadLocalDirectory(cfg.Auth.UsersFile)
		if err != nil {
			logger.Fatalf("failed to load users file %s: %v", cfg.Auth.UsersFile, err)
		}
		logger.Infof("loaded %d local users from %s", localUsers.Len(), cfg.Auth.UsersFile)
	}

	// Token verification: locally issued HMAC tokens always verify when a JWT
	// secret is set; Keycloak tokens verify via OIDC discovery when configured.
	var verifiers chainVerifier
	if cfg.JWT.Secret != "" {
		verifiers = append(verifiers, tokens.NewHMACVerifier(cfg.JWT.Secret))
	}
	if cfg.Keycloak.URL != "" && cfg.Keycloak.ClientID != "" {
		issuer := cfg.Keycloak.URL
		if cfg.Keycloak.Realm != "" {
			issuer = strings.TrimRight(cfg.Keycloak.URL, "/") + "/realms/" + cfg.Keycloak.Realm
		}
		ver, err := oidc.NewVerifier(ctx, issuer, cfg.Keycloak.ClientID)
		if err != nil {
			logger.Warnf("failed to initialize OIDC verifier: %v", err)
		} else {
			verifiers = append(verifiers, ver)
		}
	}
	if len(verifiers) == 0 && strings.ToLower(strings.TrimSpace(os.Getenv("ALLOW_INSECURE_TOKEN"))) == "true" {
		logger.Warnf("enabling insecure token verifier (integration mode)")
		verifiers = append(verifiers, oidc.NewInsecureVerifier())
	}
	var verifier middleware.Verifier
	if len(verifiers) > 0 {
		verifier = verifiers
	}

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// Readiness: 200 only when every configured dependency answers.
	r.GET("/ready", func(c *gin.Context) {
		ready := true
		deps := map[string]bool{}

		if cfg.MongoDB.URI != "" {
			ok := mongoClient != nil
			if ok {
				pctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
				ok = mongoClient.Ping(pctx, nil) == nil
				cancel()
			}
			deps["mongo"] = ok
			if !ok {
				ready = false
			}
		}
		if cfg.Redis.Host != "" {
			ok := redisClient != nil && redisClient.Ping(c.Request.Context()).Err() == nil
			deps["redis"] = ok
			if !ok {
				ready = false
			}
		}
		if cfg.Keycloak.URL != "" || cfg.JWT.Secret != "" {
			deps["verifier"] = verifier != nil
			if verifier == nil {
				ready = false
			}
		}
		deps["auth"] = sessionsSvc != nil

		if !ready {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "deps": deps, "uptime": time.Since(startTime).String()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "deps": deps, "uptime": time.Since(startTime).String()})
	})

	// Auth endpoints need a session store plus either a user store or the
	// local users file.
	if sessionsSvc != nil && (userSvc != nil || localUsers != nil) {
		h := handlers.NewAuthHandler(cfg, userSvc, sessionsSvc, localUsers)
		h.Register(r.Group("/"))
	} else {
		logger.Warnf("auth endpoints not registered: set REDIS_HOST or MONGODB_URI for session storage")
	}

	handlers.RegisterSwagger(r)

	api := r.Group("/api/v1")
	if verifier != nil {
		api.Use(middleware.AuthMiddleware(verifier))
	} else {
		logger.Warnf("no token verifier configured: API requests run as the development admin")
	}

	api.GET("/me", func(c *gin.Context) {
		if claims, ok := c.Get("claims"); ok && userSvc != nil {
			if cm, ok2 := claims.(map[string]interface{}); ok2 {
				if u, err := userSvc.UpsertFromClaims(c.Request.Context(), cm); err == nil && u != nil {
					c.JSON(http.StatusOK, gin.H{"user": u})
					return
				}
			}
		}
		c.JSON(http.StatusOK, gin.H{"user": middleware.Identity(c)})
	})

	permithandler.NewPermitHandler(permitService).Register(api)

	var dirRepo directory.Repository
	if mongoClient != nil {
		dirRepo = directory.NewMongoRepo(mongoClient.Database(cfg.MongoDB.Database))
	} else {
		dirRepo = directory.NewMemoryRepo()
	}
	directory.RegisterDirectoryRoutes(api, dirRepo, authorizer)

	// Expose Prometheus metrics
	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.Infof("starting permit service on %s (backend=%s)", addr, cfg.Storage.Backend)
	if err := r.Run(addr); err != nil {
		logger.Fatalf("server failed: %v", err)
	}
}
