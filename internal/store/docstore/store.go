// Package docstore is the document Connector, backed by MongoDB. Foreign
// keys are plain document fields and join models are collections of pair
// documents guarded by a unique compound index. Transactions need a replica
// set or a sharded cluster.
package docstore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/teodevgroup/teo-sub005/internal/config"
	"github.com/teodevgroup/teo-sub005/internal/schema"
	"github.com/teodevgroup/teo-sub005/internal/store"
)

// countersCollection holds one sequence document per auto-increment model.
const countersCollection = "_counters"

type Store struct {
	client *mongo.Client
	db     *mongo.Database
	log    *zap.Logger
}

// Open connects using the database section of the configuration.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (*Store, error) {
	opts := options.Client().ApplyURI(cfg.DSN())
	if cfg.User != "" && cfg.URI == "" {
		opts.SetAuth(options.Credential{Username: cfg.User, Password: cfg.Password})
	}
	if cfg.PoolSize > 0 {
		opts.SetMaxPoolSize(uint64(cfg.PoolSize))
	}
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping: %w", err)
	}
	return New(client, cfg.Name, log), nil
}

// New wraps a connected client, using database name.
func New(client *mongo.Client, name string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{client: client, db: client.Database(name), log: log.Named("docstore")}
}

func (s *Store) Name() string {
	return "mongodb"
}

func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

// Drop removes the whole database, counters included.
func (s *Store) Drop(ctx context.Context) error {
	return s.db.Drop(ctx)
}

// Begin starts a session with an open transaction.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	sess, err := s.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	if err := sess.StartTransaction(); err != nil {
		sess.EndSession(ctx)
		return nil, fmt.Errorf("start transaction: %w", err)
	}
	return &Tx{store: s, sess: sess}, nil
}

// Migrate creates the unique indexes of every model.
func (s *Store) Migrate(ctx context.Context, g *schema.Graph) error {
	for _, m := range g.Models() {
		var models []mongo.IndexModel
		for _, key := range m.UniqueKeys() {
			if isIDKey(m, key) {
				continue
			}
			models = append(models, uniqueIndex(m, key))
		}
		if len(models) == 0 {
			continue
		}
		names, err := s.db.Collection(m.Table).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("create indexes on %s: %w", m.Table, err)
		}
		s.log.Debug("indexes ready", zap.String("collection", m.Table), zap.Strings("indexes", names))
	}
	return nil
}

var _ store.Connector = (*Store)(nil)
