package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mamadbah2/mouldtrack/internal/config"
	"github.com/mamadbah2/mouldtrack/internal/domain/models"
)

// Repository defines the interface for batch snapshot storage.
type Repository interface {
	SaveSnapshot(ctx context.Context, snapshot models.BatchSnapshot) error
	History(ctx context.Context, kind models.UnitKind, unitID string, limit int64) ([]models.BatchSnapshot, error)
}

// MongoDBRepository implements the Repository interface for MongoDB.
type MongoDBRepository struct {
	client   *mongo.Client
	dbName   string
	collName string
}

// NewMongoDBRepository creates a new MongoDB repository.
func NewMongoDBRepository(ctx context.Context, cfg config.MongoDBConfig) (*MongoDBRepository, error) {
	clientOptions := options.Client().ApplyURI(cfg.URI)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &MongoDBRepository{
		client:   client,
		dbName:   cfg.DBName,
		collName: cfg.Collection,
	}, nil
}

func (r *MongoDBRepository) collection() *mongo.Collection {
	return r.client.Database(r.dbName).Collection(r.collName)
}

// SaveSnapshot archives one confirmed batch save.
func (r *MongoDBRepository) SaveSnapshot(ctx context.Context, snapshot models.BatchSnapshot) error {
	_, err := r.collection().InsertOne(ctx, snapshot)
	if err != nil {
		return fmt.Errorf("failed to insert batch snapshot: %w", err)
	}
	return nil
}

// History returns the newest snapshots of one unit first.
func (r *MongoDBRepository) History(ctx context.Context, kind models.UnitKind, unitID string, limit int64) ([]models.BatchSnapshot, error) {
	filter := bson.M{"unit_kind": string(kind), "unit_id": unitID}
	opts := options.Find().SetSort(bson.D{{Key: "saved_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cursor, err := r.collection().Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query batch snapshots: %w", err)
	}
	defer cursor.Close(ctx)

	var snapshots []models.BatchSnapshot
	if err := cursor.All(ctx, &snapshots); err != nil {
		return nil, fmt.Errorf("failed to decode batch snapshots: %w", err)
	}
	return snapshots, nil
}

// Close closes the MongoDB connection.
func (r *MongoDBRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}
