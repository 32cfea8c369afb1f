/*
Package mongostore reads and writes moderation records kept in MongoDB by earlier versions of the
chat service: LoungeMute documents and the legacy ChatBan documents.
*/
package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"loungechat/internal/pkg/logx"
)

// MongoDB represents a MongoDB connection
type MongoDB struct {
	client   *mongo.Client
	database *mongo.Database
	config   *MongoConfig
}

// MongoConfig holds MongoDB configuration
type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
	PingTimeout    time.Duration
	MaxPoolSize    uint64
	MinPoolSize    uint64
}

// DefaultMongoConfig returns default MongoDB configuration
func DefaultMongoConfig() *MongoConfig {
	return &MongoConfig{
		URI:            "mongodb://localhost:27017",
		Database:       "W3Champions-Chat-Service",
		ConnectTimeout: 10 * time.Second,
		PingTimeout:    5 * time.Second,
		MaxPoolSize:    50,
		MinPoolSize:    2,
	}
}

// NewMongoDB creates a new MongoDB connection
func NewMongoDB(ctx context.Context, config *MongoConfig) (*MongoDB, error) {
	if config == nil {
		config = DefaultMongoConfig()
	}

	clientOptions := options.Client().
		ApplyURI(config.URI).
		SetConnectTimeout(config.ConnectTimeout).
		SetMaxPoolSize(config.MaxPoolSize).
		SetMinPoolSize(config.MinPoolSize)

	connectCtx, cancel := context.WithTimeout(ctx, config.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, config.PingTimeout)
	defer pingCancel()

	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logx.Info("Connected to MongoDB", "database", config.Database)

	return &MongoDB{
		client:   client,
		database: client.Database(config.Database),
		config:   config,
	}, nil
}

// GetCollection returns a collection
func (m *MongoDB) GetCollection(name string) *mongo.Collection {
	return m.database.Collection(name)
}

// CreateIndexes creates the lookup indexes of the moderation collections.
func (m *MongoDB) CreateIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	mutes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "battleTag", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "endDate", Value: 1}}},
	}
	if _, err := m.GetCollection(LoungeMuteCollection).Indexes().CreateMany(ctx, mutes); err != nil {
		return fmt.Errorf("failed to create mute indexes: %w", err)
	}

	bans := []mongo.IndexModel{
		{Keys: bson.D{{Key: "BattleTag", Value: 1}}},
	}
	if _, err := m.GetCollection(ChatBanCollection).Indexes().CreateMany(ctx, bans); err != nil {
		return fmt.Errorf("failed to create ban indexes: %w", err)
	}

	return nil
}

// HealthCheck performs a health check on the MongoDB connection
func (m *MongoDB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.config.PingTimeout)
	defer cancel()

	if err := m.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("MongoDB health check failed: %w", err)
	}
	return nil
}

// Close closes the MongoDB connection
func (m *MongoDB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := m.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from MongoDB: %w", err)
	}

	logx.Info("Disconnected from MongoDB")
	return nil
}
