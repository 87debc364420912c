package sync

import (
	"context"
	"errors"
	"time"

	"pipeline-crm/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type SettingRepository interface {
	// GetByProvider returns (nil, nil) when the provider has no configuration.
	GetByProvider(ctx context.Context, provider string) (*ConnectorSetting, error)
	List(ctx context.Context) ([]ConnectorSetting, error)
	ListActive(ctx context.Context) ([]ConnectorSetting, error)
	// Upsert merges the given fields into the provider's row, creating it
	// when absent, and returns the stored document.
	Upsert(ctx context.Context, provider string, updates map[string]interface{}) (*ConnectorSetting, error)
}

type LogRepository interface {
	Create(ctx context.Context, entry *SyncLog) error
	// List returns recent entries newest first, optionally filtered by provider.
	List(ctx context.Context, provider string, limit int64) ([]SyncLog, error)
}

type SettingRepositoryImpl struct {
	collection *mongo.Collection
}

func NewSettingRepository(db *database.MongodbDB) SettingRepository {
	return &SettingRepositoryImpl{
		collection: db.DB.Collection("connector_settings"),
	}
}

func (r *SettingRepositoryImpl) GetByProvider(ctx context.Context, provider string) (*ConnectorSetting, error) {
	var setting ConnectorSetting
	err := r.collection.FindOne(ctx, bson.M{"provider": provider}).Decode(&setting)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &setting, nil
}

func (r *SettingRepositoryImpl) List(ctx context.Context) ([]ConnectorSetting, error) {
	opts := options.Find().SetSort(bson.D{{Key: "provider", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var settings []ConnectorSetting
	if err = cursor.All(ctx, &settings); err != nil {
		return nil, err
	}

	return settings, nil
}

func (r *SettingRepositoryImpl) ListActive(ctx context.Context) ([]ConnectorSetting, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"is_active": true})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var settings []ConnectorSetting
	if err = cursor.All(ctx, &settings); err != nil {
		return nil, err
	}

	return settings, nil
}

func (r *SettingRepositoryImpl) Upsert(ctx context.Context, provider string, updates map[string]interface{}) (*ConnectorSetting, error) {
	updates["updated_at"] = time.Now()

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	update := bson.M{
		"$set":         updates,
		"$setOnInsert": bson.M{"provider": provider, "created_at": time.Now()},
	}

	var setting ConnectorSetting
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"provider": provider}, update, opts).Decode(&setting)
	if err != nil {
		return nil, err
	}

	return &setting, nil
}

type LogRepositoryImpl struct {
	collection *mongo.Collection
}

func NewLogRepository(db *database.MongodbDB) LogRepository {
	return &LogRepositoryImpl{
		collection: db.DB.Collection("sync_logs"),
	}
}

func (r *LogRepositoryImpl) Create(ctx context.Context, entry *SyncLog) error {
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}

	_, err := r.collection.InsertOne(ctx, entry)
	return err
}

func (r *LogRepositoryImpl) List(ctx context.Context, provider string, limit int64) ([]SyncLog, error) {
	if limit <= 0 {
		limit = 50
	}

	filter := bson.M{}
	if provider != "" {
		filter["provider"] = provider
	}

	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}}).SetLimit(limit)
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var logs []SyncLog
	if err = cursor.All(ctx, &logs); err != nil {
		return nil, err
	}

	return logs, nil
}
