package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"studysync/internal/model"
)

type GroupRepo interface {
	Create(ctx context.Context, group *model.Group) error
	GetByID(ctx context.Context, id string) (*model.Group, error)
	GetByCode(ctx context.Context, code string) (*model.Group, error)
	GetByMember(ctx context.Context, userID string) ([]*model.Group, error)
	AddMember(ctx context.Context, id, userID string) error
}

type groupRepo struct {
	collection *mongo.Collection
}

func NewGroupRepo(db *mongo.Database) GroupRepo {
	return &groupRepo{
		collection: db.Collection("groups"),
	}
}

func (r *groupRepo) Create(ctx context.Context, group *model.Group) error {
	_, err := r.collection.InsertOne(ctx, group)
	return err
}

func (r *groupRepo) GetByID(ctx context.Context, id string) (*model.Group, error) {
	var group model.Group
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&group)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &group, nil
}

func (r *groupRepo) GetByCode(ctx context.Context, code string) (*model.Group, error) {
	var group model.Group
	err := r.collection.FindOne(ctx, bson.M{"code": code}).Decode(&group)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &group, nil
}

func (r *groupRepo) GetByMember(ctx context.Context, userID string) ([]*model.Group, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"members": userID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var groups []*model.Group
	if err = cursor.All(ctx, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// AddMember is idempotent: $addToSet never duplicates an existing member.
func (r *groupRepo) AddMember(ctx context.Context, id, userID string) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$addToSet": bson.M{"members": userID}},
	)
	return err
}
