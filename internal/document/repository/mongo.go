package repository

import (
	"context"
	"errors"
	"time"

	"github.com/docvault/docvault/backend/go-services/internal/document"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepo implements Store on a MongoDB collection. Subscriptions use a
// change stream, which requires the server to run as a replica set.
type MongoRepo struct {
	col *mongo.Collection
}

func NewMongoRepo(col *mongo.Collection) *MongoRepo {
	idx := []mongo.IndexModel{
		{Keys: bson.D{{Key: "ownerId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	}
	// index creation is best-effort; queries still work without them
	_, _ = col.Indexes().CreateMany(context.Background(), idx)
	return &MongoRepo{col: col}
}

// visibleTo selects documents owned by userID or listing userID as a member.
func visibleTo(userID string) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"ownerId": userID},
		bson.M{"members." + userID: bson.M{"$exists": true}},
	}}
}

func (m *MongoRepo) query(ctx context.Context, userID string) ([]*document.Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cur, err := m.col.Find(ctx, visibleTo(userID), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*document.Document{}
	for cur.Next(ctx) {
		var d document.Document
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, cur.Err()
}

// Subscribe emits the current collection, then re-queries after every change
// event on the collection. Watch or query failures are delivered as a final
// Snapshot with Err set.
func (m *MongoRepo) Subscribe(ctx context.Context, userID string) (<-chan Snapshot, error) {
	stream, err := m.col.Watch(ctx, mongo.Pipeline{})
	if err != nil {
		return nil, err
	}
	ch := make(chan Snapshot, 1)
	go func() {
		defer close(ch)
		defer stream.Close(context.Background())

		emit := func() bool {
			docs, err := m.query(ctx, userID)
			if err != nil {
				if ctx.Err() == nil {
					offer(ch, Snapshot{Err: err})
				}
				return false
			}
			offer(ch, Snapshot{Documents: docs})
			return true
		}
		if !emit() {
			return
		}
		for stream.Next(ctx) {
			if !emit() {
				return
			}
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			offer(ch, Snapshot{Err: err})
		}
	}()
	return ch, nil
}

func (m *MongoRepo) Create(ctx context.Context, doc *document.Document) (string, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = doc.CreatedAt
	}
	if _, err := m.col.InsertOne(ctx, doc); err != nil {
		return "", err
	}
	return doc.ID, nil
}

func (m *MongoRepo) Get(ctx context.Context, id string) (*document.Document, error) {
	var d document.Document
	err := m.col.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// Patch applies the partial record with $set/$unset so concurrent writers
// touching different fields do not overwrite each other.
func (m *MongoRepo) Patch(ctx context.Context, id string, p document.Patch) error {
	res, err := m.col.UpdateOne(ctx, bson.M{"_id": id}, patchUpdate(p, time.Now().UTC()))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoRepo) Delete(ctx context.Context, id string) error {
	res, err := m.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// patchUpdate translates a Patch into a Mongo update document.
func patchUpdate(p document.Patch, now time.Time) bson.M {
	set := bson.M{"updatedAt": now}
	unset := bson.M{}
	if p.Title != nil {
		set["title"] = *p.Title
	}
	if p.Description != nil {
		set["description"] = *p.Description
	}
	if p.Category != nil {
		set["category"] = *p.Category
	}
	if p.Tags != nil {
		set["tags"] = *p.Tags
	}
	if p.Type != nil {
		set["type"] = *p.Type
	}
	if p.IsFavorite != nil {
		set["isFavorite"] = *p.IsFavorite
	}
	if p.Content != nil {
		set["content"] = *p.Content
	}
	if p.FileType != nil {
		set["fileType"] = *p.FileType
	}
	if p.StoragePath != nil {
		set["storagePath"] = *p.StoragePath
	}
	if p.Status != nil {
		set["status"] = *p.Status
	}
	if p.Members != nil {
		set["members"] = *p.Members
	}
	if p.ReminderDate != nil {
		set["reminderDate"] = *p.ReminderDate
	}
	if p.ClearReminder {
		delete(set, "reminderDate")
		unset["reminderDate"] = ""
	}
	if p.TrashedAt != nil {
		set["trashedAt"] = *p.TrashedAt
	}
	if p.ClearTrashedAt {
		delete(set, "trashedAt")
		unset["trashedAt"] = ""
	}
	upd := bson.M{"$set": set}
	if len(unset) > 0 {
		upd["$unset"] = unset
	}
	return upd
}
