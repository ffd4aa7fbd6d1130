package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/face-search/internal/config"
	"github.com/kozaktomas/face-search/internal/constants"
	"github.com/kozaktomas/face-search/internal/database"
	"github.com/kozaktomas/face-search/internal/database/postgres"
	"github.com/kozaktomas/face-search/internal/database/redis"
	"github.com/kozaktomas/face-search/internal/database/sqlite"
	"github.com/kozaktomas/face-search/internal/detector"
	"github.com/kozaktomas/face-search/internal/faceindex"
)

// Store kinds accepted in INDEX_STORE / --store.
const (
	storeFile     = "file"
	storeSQLite   = "sqlite"
	storePostgres = "postgres"
	storeRedis    = "redis"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openStore opens the face index repository selected by kind.
func openStore(ctx context.Context, kind string, cfg *config.Config, log logrus.FieldLogger) (database.Repository, io.Closer, error) {
	switch kind {
	case "", storeFile:
		log.WithField("path", cfg.Index.Path).Debug("using file store")
		return database.NewFileRepository(cfg.Index.Path), nopCloser{}, nil
	case storeSQLite:
		repo, err := sqlite.Open(cfg.SQLite.Path, log)
		if err != nil {
			return nil, nil, err
		}
		log.WithField("path", cfg.SQLite.Path).Debug("using sqlite store")
		return repo, repo, nil
	case storePostgres:
		if cfg.Database.URL == "" {
			return nil, nil, fmt.Errorf("DATABASE_URL environment variable is required for the %s store", storePostgres)
		}
		pool, err := postgres.Open(ctx, &cfg.Database, log)
		if err != nil {
			return nil, nil, err
		}
		log.Debug("using postgres store")
		return postgres.NewRepository(pool), pool, nil
	case storeRedis:
		repo, err := redis.New(ctx, cfg.Redis, log)
		if err != nil {
			return nil, nil, err
		}
		log.WithField("key", cfg.Redis.Key).Debug("using redis store")
		return repo, repo, nil
	default:
		return nil, nil, fmt.Errorf("unknown index store %q (want file, sqlite, postgres or redis)", kind)
	}
}

// app bundles the face index with the resources it holds open.
type app struct {
	cfg    *config.Config
	log    *logrus.Logger
	index  *faceindex.Index
	closer io.Closer
}

func (a *app) Close() {
	if err := a.closer.Close(); err != nil {
		a.log.WithError(err).Warn("failed to close index store")
	}
}

// newApp builds the detector pipeline and face index and loads the persisted
// snapshot. store overrides the configured store kind when non-empty.
func newApp(ctx context.Context, store string) (*app, error) {
	cfg, log := loadConfig()
	if store == "" {
		store = cfg.Index.Store
	}

	repo, closer, err := openStore(ctx, store, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open index store: %w", err)
	}

	client := detector.NewClient(cfg.Detector.URL, cfg.Detector.Timeout)
	pipeline := detector.NewPipeline(client, detector.OptionsFromConfig(cfg.Detection, cfg.Matching), log)

	maxNeighbors := cfg.Index.MaxResults
	if maxNeighbors <= 0 {
		maxNeighbors = constants.DefaultTopN
	}
	index := faceindex.New(repo, pipeline,
		faceindex.WithLogger(log),
		faceindex.WithMatchConfig(cfg.MatchConfig()),
		faceindex.WithVectorIndex(cfg.Index.MinQuality, maxNeighbors, cfg.Index.VectorPath),
	)
	if err := index.Load(ctx); err != nil {
		_ = closer.Close()
		return nil, err
	}

	return &app{cfg: cfg, log: log, index: index, closer: closer}, nil
}
