package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"studysync/internal/model"
)

type CallRepo interface {
	Create(ctx context.Context, call *model.CallRecord) error
	GetByID(ctx context.Context, id string) (*model.CallRecord, error)
	GetActiveByGroup(ctx context.Context, groupID string) (*model.CallRecord, error)
	AddParticipant(ctx context.Context, id, userID string) error
	RemoveParticipant(ctx context.Context, id, userID string) error
	End(ctx context.Context, id string, endTime time.Time) error
	EndActiveByGroup(ctx context.Context, groupID string, endTime time.Time) error
}

type callRepo struct {
	collection *mongo.Collection
}

func NewCallRepo(db *mongo.Database) CallRepo {
	return &callRepo{
		collection: db.Collection("calls"),
	}
}

func (r *callRepo) Create(ctx context.Context, call *model.CallRecord) error {
	_, err := r.collection.InsertOne(ctx, call)
	return err
}

func (r *callRepo) GetByID(ctx context.Context, id string) (*model.CallRecord, error) {
	var call model.CallRecord
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&call)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &call, nil
}

func (r *callRepo) GetActiveByGroup(ctx context.Context, groupID string) (*model.CallRecord, error) {
	var call model.CallRecord
	err := r.collection.FindOne(ctx, bson.M{"groupId": groupID, "status": model.CallActive}).Decode(&call)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &call, nil
}

// AddParticipant records durable call membership. $addToSet keeps rejoins from
// duplicating the identity in the participant list.
func (r *callRepo) AddParticipant(ctx context.Context, id, userID string) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$addToSet": bson.M{"participants": userID}},
	)
	return err
}

func (r *callRepo) RemoveParticipant(ctx context.Context, id, userID string) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$pull": bson.M{"participants": userID}},
	)
	return err
}

func (r *callRepo) End(ctx context.Context, id string, endTime time.Time) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"status": model.CallEnded, "endTime": endTime}},
	)
	return err
}

// EndActiveByGroup force-ends whatever call is still marked active for the
// group. Used by supersession so the one-active-call-per-group invariant holds
// even across process restarts that lost the in-memory entry.
func (r *callRepo) EndActiveByGroup(ctx context.Context, groupID string, endTime time.Time) error {
	_, err := r.collection.UpdateMany(ctx,
		bson.M{"groupId": groupID, "status": model.CallActive},
		bson.M{"$set": bson.M{"status": model.CallEnded, "endTime": endTime}},
	)
	return err
}
