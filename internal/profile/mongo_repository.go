package profile

import (
	"context"
	"errors"
	"regexp"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"mentor-chat/internal/chat"
)

const profilesCollection = "profiles"

// MongoRepository reads profiles from the "profiles" collection.
type MongoRepository struct {
	profiles *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{profiles: db.Collection(profilesCollection)}
}

func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.profiles.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "identity", Value: 1}, {Key: "role", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (r *MongoRepository) ResolveProfile(ctx context.Context, identity string, role chat.Role) (*chat.Profile, error) {
	var rec Record
	err := r.profiles.FindOne(ctx, bson.D{{Key: "identity", Value: identity}, {Key: "role", Value: role}}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec.Profile(), nil
}

func (r *MongoRepository) Upsert(ctx context.Context, rec Record) error {
	_, err := r.profiles.UpdateOne(ctx,
		bson.D{{Key: "identity", Value: rec.Identity}, {Key: "role", Value: rec.Role}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "name", Value: rec.Name}, {Key: "department", Value: rec.Department}}}},
		options.UpdateOne().SetUpsert(true),
	)
	return err
}

func (r *MongoRepository) Search(ctx context.Context, query string, role chat.Role) ([]Record, error) {
	filter := bson.D{
		{Key: "role", Value: role},
		{Key: "name", Value: bson.Regex{Pattern: regexp.QuoteMeta(query), Options: "i"}},
	}
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "identity", Value: 1}}).SetLimit(searchLimit)
	cur, err := r.profiles.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var records []Record
	if err := cur.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}
