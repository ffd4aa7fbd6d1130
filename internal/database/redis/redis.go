// Package redis stores the face index snapshot under a single Redis key.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/face-search/internal/config"
	"github.com/kozaktomas/face-search/internal/database"
)

// Repository implements database.Repository on Redis.
type Repository struct {
	client *redis.Client
	key    string
	log    logrus.FieldLogger
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg config.RedisConfig, log logrus.FieldLogger) (*Repository, error) {
	if log == nil {
		discard := logrus.New()
		discard.SetLevel(logrus.PanicLevel)
		log = discard
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Address, err)
	}
	log.WithField("address", cfg.Address).Debug("connected to redis")

	return NewWithClient(client, cfg.Key, log), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, key string, log logrus.FieldLogger) *Repository {
	if log == nil {
		discard := logrus.New()
		discard.SetLevel(logrus.PanicLevel)
		log = discard
	}
	return &Repository{client: client, key: key, log: log}
}

// Close closes the client.
func (r *Repository) Close() error {
	return r.client.Close()
}

// Load reads and decodes the snapshot.
func (r *Repository) Load(ctx context.Context) (*database.Snapshot, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		r.log.WithField("key", r.key).Debug("no snapshot stored")
		return nil, database.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting snapshot %s: %w", r.key, err)
	}
	return database.DecodeSnapshot(data)
}

// Save encodes and stores the snapshot without expiry.
func (r *Repository) Save(ctx context.Context, s *database.Snapshot) error {
	data, err := database.EncodeSnapshot(s)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("setting snapshot %s: %w", r.key, err)
	}
	r.log.WithFields(logrus.Fields{"key": r.key, "bytes": len(data)}).Debug("saved snapshot")
	return nil
}
