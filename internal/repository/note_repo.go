package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"studysync/internal/model"
)

type NoteRepo interface {
	GetByGroup(ctx context.Context, groupID string) (*model.Note, error)
	Upsert(ctx context.Context, note *model.Note) error
}

type noteRepo struct {
	collection *mongo.Collection
}

func NewNoteRepo(db *mongo.Database) NoteRepo {
	return &noteRepo{
		collection: db.Collection("notes"),
	}
}

func (r *noteRepo) GetByGroup(ctx context.Context, groupID string) (*model.Note, error) {
	var note model.Note
	err := r.collection.FindOne(ctx, bson.M{"groupId": groupID}).Decode(&note)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &note, nil
}

// Upsert replaces the group's note, creating it on first write. There is
// exactly one note per group.
func (r *noteRepo) Upsert(ctx context.Context, note *model.Note) error {
	opts := options.Replace().SetUpsert(true)
	_, err := r.collection.ReplaceOne(ctx, bson.M{"groupId": note.GroupID}, note, opts)
	return err
}
