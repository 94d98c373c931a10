package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"civicportal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const IssueCollection = "issues"

type MongoIssueRepository struct {
	collection *mongo.Collection
	timeout    time.Duration
}

func NewMongoIssueRepository(db *mongo.Database, timeout time.Duration) *MongoIssueRepository {
	return &MongoIssueRepository{collection: db.Collection(IssueCollection), timeout: timeout}
}

// EnsureIndexes creates the collection indexes.
func (r *MongoIssueRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return models.EnsureIssueIndexes(ctx, r.collection)
}

func (r *MongoIssueRepository) Create(ctx context.Context, issue *models.Issue) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if issue.ID.IsZero() {
		issue.ID = primitive.NewObjectID()
	}
	if _, err := r.collection.InsertOne(ctx, issue); err != nil {
		return fmt.Errorf("insert issue: %w", err)
	}
	return nil
}

func (r *MongoIssueRepository) FindByID(ctx context.Context, id string) (*models.Issue, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var issue models.Issue
	err = r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&issue)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find issue %s: %w", id, err)
	}
	return &issue, nil
}

func (r *MongoIssueRepository) List(ctx context.Context, filter IssueFilter) ([]models.Issue, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := bson.M{}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if !filter.UserID.IsZero() {
		query["userId"] = filter.UserID
	}

	findOptions := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})

	cursor, err := r.collection.Find(ctx, query, findOptions)
	if err != nil {
		return nil, fmt.Errorf("find issues: %w", err)
	}
	defer cursor.Close(ctx)

	issues := make([]models.Issue, 0)
	if err := cursor.All(ctx, &issues); err != nil {
		return nil, fmt.Errorf("decode issues: %w", err)
	}
	return issues, nil
}

func (r *MongoIssueRepository) UpdateStatus(ctx context.Context, id string, status models.IssueStatus, updatedAt time.Time) (*models.Issue, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	update := bson.M{"$set": bson.M{"status": status, "updatedAt": updatedAt}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var issue models.Issue
	err = r.collection.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update, opts).Decode(&issue)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update issue %s status: %w", id, err)
	}
	return &issue, nil
}

func (r *MongoIssueRepository) Delete(ctx context.Context, id string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete issue %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}
