package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/grvbrk/vidcatalog_server/internal/auth"
	"github.com/grvbrk/vidcatalog_server/internal/catalog"
	"github.com/grvbrk/vidcatalog_server/internal/config"
	"github.com/grvbrk/vidcatalog_server/internal/handlers"
	"github.com/grvbrk/vidcatalog_server/internal/middlewares"
	"github.com/grvbrk/vidcatalog_server/internal/observability"
	"github.com/grvbrk/vidcatalog_server/internal/storage"
	"github.com/grvbrk/vidcatalog_server/internal/store"
	"github.com/grvbrk/vidcatalog_server/migrations"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

type Application struct {
	Config            *config.Config
	Logger            *zap.Logger
	Metrics           *observability.Metrics
	Tracer            *trace.TracerProvider
	Catalog           *catalog.Service
	MiddlewareHandler *middlewares.MiddlewareHandler
	VideoHandler      *handlers.VideoHandler
	UserHandler       *handlers.UserHandler

	db          *sql.DB
	redisClient *redis.Client
	chConn      driver.Conn
}

// New assembles the request layer around an already built service.
func New(cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics, svc *catalog.Service) *Application {
	return &Application{
		Config:            cfg,
		Logger:            logger,
		Metrics:           metrics,
		Catalog:           svc,
		MiddlewareHandler: middlewares.NewMiddlewareHandler(logger, svc, metrics),
		VideoHandler:      handlers.NewVideoHandler(svc, logger, cfg.MaxUploadBytes, cfg.MaxConcurrentUploads),
		UserHandler:       handlers.NewUserHandler(logger),
	}
}

// NewApplication connects every configured backend and builds the service.
func NewApplication(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Application, error) {
	a := Application{Logger: logger}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	resolver, err := newResolver(cfg, awsCfg)
	if err != nil {
		return nil, err
	}

	videos, err := a.newVideoStore(ctx, cfg, awsCfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	objects, err := newObjectStore(ctx, cfg, awsCfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	metrics := observability.NewMetrics()
	opts := []catalog.Option{catalog.WithDefaultPageSize(cfg.DefaultPageSize)}

	if cfg.RedisURL != "" {
		a.redisClient, err = store.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		opts = append(opts, catalog.WithTitleLock(store.NewRedisTitleLock(a.redisClient, cfg.TitleLockTTL)))
		logger.Info("redis title lock enabled")
	}

	var sink store.EventSink = store.NoopEventSink{}
	if cfg.ClickhouseURL != "" {
		chCfg := store.ClickhouseConfig{
			Addr:     cfg.ClickhouseURL,
			Database: cfg.ClickhouseDatabase,
			Username: cfg.ClickhouseUsername,
			Password: cfg.ClickhousePassword,
		}
		a.chConn, err = store.ConnectClickhouse(ctx, chCfg, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := migrateClickhouse(chCfg); err != nil {
			a.Close()
			return nil, err
		}
		logger.Info("clickhouse migrated")
		sink = store.NewClickhouseEventSink(a.chConn)
		logger.Info("clickhouse event sink enabled")
	}
	opts = append(opts, catalog.WithEventSink(metrics.CountEvents(sink)))

	svc := catalog.NewService(videos, objects, resolver, logger, opts...)

	app := New(cfg, logger, metrics, svc)
	app.db, app.redisClient, app.chConn = a.db, a.redisClient, a.chConn

	if cfg.TracingEnabled {
		app.Tracer, err = observability.InitTracerProvider(logger)
		if err != nil {
			app.Close()
			return nil, err
		}
	}

	return app, nil
}

func migrateClickhouse(cfg store.ClickhouseConfig) error {
	db := store.OpenClickhouseDB(cfg)
	defer db.Close()
	if err := store.MigrateClickhouse(db, migrations.ClickhouseFS, "clickhouse"); err != nil {
		return fmt.Errorf("clickhouse migration failed: %w", err)
	}
	return nil
}

func newResolver(cfg *config.Config, awsCfg aws.Config) (auth.Resolver, error) {
	switch cfg.IdentityProvider {
	case config.IdentityCognito:
		return auth.NewCognitoResolver(cognitoidentityprovider.NewFromConfig(awsCfg)), nil
	case config.IdentityUserInfo:
		return auth.NewUserInfoResolver(cfg.UserInfoURL, nil), nil
	}
	return nil, fmt.Errorf("unknown identity provider %q", cfg.IdentityProvider)
}

func (a *Application) newVideoStore(ctx context.Context, cfg *config.Config, awsCfg aws.Config, logger *zap.Logger) (store.VideoStore, error) {
	switch cfg.MetadataBackend {
	case config.MetadataDynamoDB:
		return store.NewDynamoVideoStore(dynamodb.NewFromConfig(awsCfg), cfg.DynamoDBTableName)
	case config.MetadataPostgres:
		db, err := store.ConnectPGDB(ctx, cfg.DBURL, logger)
		if err != nil {
			return nil, err
		}
		a.db = db
		if err := store.MigrateFS(db, migrations.FS, "."); err != nil {
			return nil, fmt.Errorf("postgres migration failed: %w", err)
		}
		logger.Info("database migrated")
		return store.NewPostgresVideoStore(db), nil
	case config.MetadataMemory:
		logger.Warn("using in-memory metadata store; records are lost on restart")
		return store.NewMemoryVideoStore(), nil
	}
	return nil, fmt.Errorf("unknown metadata backend %q", cfg.MetadataBackend)
}

func newObjectStore(ctx context.Context, cfg *config.Config, awsCfg aws.Config, logger *zap.Logger) (storage.ObjectStore, error) {
	switch cfg.ObjectBackend {
	case config.ObjectS3:
		return storage.NewS3ObjectStore(s3.NewFromConfig(awsCfg), cfg.S3BucketName, logger)
	case config.ObjectMinio:
		return storage.NewMinioObjectStore(ctx, storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.S3BucketName,
			UseSSL:    cfg.MinioUseSSL,
		})
	case config.ObjectFS:
		return storage.NewFSObjectStore(cfg.FSRoot, cfg.S3BucketName)
	}
	return nil, fmt.Errorf("unknown object backend %q", cfg.ObjectBackend)
}

// Close releases backend connections. The tracer is shut down by the caller
// so it can flush with its own deadline.
func (a *Application) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil && a.Logger != nil {
			a.Logger.Error("failed to close postgres", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil && a.Logger != nil {
			a.Logger.Error("failed to close redis", zap.Error(err))
		}
	}
	if a.chConn != nil {
		if err := a.chConn.Close(); err != nil && a.Logger != nil {
			a.Logger.Error("failed to close clickhouse", zap.Error(err))
		}
	}
}
