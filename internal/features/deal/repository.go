package deal

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

// ErrNotFound is returned when a deal id does not exist.
var ErrNotFound = errors.New("deal not found")

type DealRepository interface {
	List(ctx context.Context, filters Filters) ([]Deal, error)
	GetByID(ctx context.Context, id string) (*Deal, error)
	// GetByClient returns (nil, nil) when no deal matches the client name.
	GetByClient(ctx context.Context, client string) (*Deal, error)
	Insert(ctx context.Context, d *Deal) error
	InsertMany(ctx context.Context, deals []Deal) (int, error)
	Update(ctx context.Context, id string, d *Deal) error
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

type DealRepositoryImpl struct {
	collection *mongo.Collection
}

func NewDealRepository(db *database.MongodbDB) DealRepository {
	return &DealRepositoryImpl{
		collection: db.DB.Collection("deals"),
	}
}

func buildFilter(filters Filters) bson.M {
	filter := bson.M{}
	if len(filters.Statuses) > 0 {
		filter["status"] = bson.M{"$in": filters.Statuses}
	}
	if len(filters.Sectors) > 0 {
		filter["sector"] = bson.M{"$in": filters.Sectors}
	}
	if len(filters.Assignees) > 0 {
		filter["assignee"] = bson.M{"$in": filters.Assignees}
	}
	if filters.DateFrom != "" || filters.DateTo != "" {
		dateRange := bson.M{}
		if filters.DateFrom != "" {
			dateRange["$gte"] = filters.DateFrom
		}
		if filters.DateTo != "" {
			dateRange["$lte"] = filters.DateTo
		}
		filter["due_date"] = dateRange
	}
	if filters.Search != "" {
		filter["client"] = bson.M{"$regex": primitive.Regex{Pattern: filters.Search, Options: "i"}}
	}
	return filter
}

func (r *DealRepositoryImpl) List(ctx context.Context, filters Filters) ([]Deal, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, buildFilter(filters), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var deals []Deal
	if err = cursor.All(ctx, &deals); err != nil {
		return nil, err
	}

	return deals, nil
}

func (r *DealRepositoryImpl) GetByID(ctx context.Context, id string) (*Deal, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	var d Deal
	err = r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &d, nil
}

func (r *DealRepositoryImpl) GetByClient(ctx context.Context, client string) (*Deal, error) {
	var d Deal
	err := r.collection.FindOne(ctx, bson.M{"client": client}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &d, nil
}

func (r *DealRepositoryImpl) Insert(ctx context.Context, d *Deal) error {
	if d.ID.IsZero() {
		d.ID = primitive.NewObjectID()
	}
	now := time.Now()
	d.CreatedAt = now
	d.UpdatedAt = now

	_, err := r.collection.InsertOne(ctx, d)
	return err
}

func (r *DealRepositoryImpl) InsertMany(ctx context.Context, deals []Deal) (int, error) {
	if len(deals) == 0 {
		return 0, nil
	}

	now := time.Now()
	docs := make([]interface{}, 0, len(deals))
	for i := range deals {
		if deals[i].ID.IsZero() {
			deals[i].ID = primitive.NewObjectID()
		}
		deals[i].CreatedAt = now
		deals[i].UpdatedAt = now
		docs = append(docs, deals[i])
	}

	res, err := r.collection.InsertMany(ctx, docs)
	if err != nil {
		return 0, err
	}
	return len(res.InsertedIDs), nil
}

func (r *DealRepositoryImpl) Update(ctx context.Context, id string, d *Deal) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}

	d.UpdatedAt = time.Now()
	updates := bson.M{
		"client":         d.Client,
		"status":         d.Status,
		"amount":         d.Amount,
		"probability":    d.Probability,
		"weighted_value": d.WeightedValue,
		"sector":         d.Sector,
		"due_date":       d.DueDate,
		"assignee":       d.Assignee,
		"notes":          d.Notes,
		"updated_at":     d.UpdatedAt,
	}

	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": updates})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *DealRepositoryImpl) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}

	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *DealRepositoryImpl) Clear(ctx context.Context) error {
	_, err := r.collection.DeleteMany(ctx, bson.M{})
	return err
}
