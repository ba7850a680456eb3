package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"studysync/internal/model"
)

type QuestionRepo interface {
	Create(ctx context.Context, q *model.Question) error
	GetByID(ctx context.Context, id string) (*model.Question, error)
	GetByGroup(ctx context.Context, groupID string) ([]*model.Question, error)
	SetAnswer(ctx context.Context, id, answer, answeredBy string, answeredAt time.Time) (bool, error)
}

type questionRepo struct {
	collection *mongo.Collection
}

func NewQuestionRepo(db *mongo.Database) QuestionRepo {
	return &questionRepo{
		collection: db.Collection("questions"),
	}
}

func (r *questionRepo) Create(ctx context.Context, q *model.Question) error {
	_, err := r.collection.InsertOne(ctx, q)
	return err
}

func (r *questionRepo) GetByID(ctx context.Context, id string) (*model.Question, error) {
	var q model.Question
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&q)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &q, nil
}

func (r *questionRepo) GetByGroup(ctx context.Context, groupID string) ([]*model.Question, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"groupId": groupID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var questions []*model.Question
	if err = cursor.All(ctx, &questions); err != nil {
		return nil, err
	}
	return questions, nil
}

// SetAnswer sets the write-once answer sub-record. The filter only matches a
// question that is still unanswered, so a second answer never overwrites the
// first; the bool result reports whether this call won the write.
func (r *questionRepo) SetAnswer(ctx context.Context, id, answer, answeredBy string, answeredAt time.Time) (bool, error) {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "answeredBy": bson.M{"$exists": false}},
		bson.M{"$set": bson.M{
			"answer":     answer,
			"answeredBy": answeredBy,
			"answeredAt": answeredAt,
		}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}
