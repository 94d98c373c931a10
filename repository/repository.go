// Package repository persists issues and users in the document store.
package repository

import (
	"context"
	"time"

	"civicportal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

//go:generate mockgen -source=repository.go -destination=mocks/repository.go -package=mocks

// IssueFilter narrows an issue listing. Zero fields do not filter.
type IssueFilter struct {
	Status models.IssueStatus
	UserID primitive.ObjectID
}

// IssueRepository stores Issue records. Listings are ordered newest first.
type IssueRepository interface {
	Create(ctx context.Context, issue *models.Issue) error
	FindByID(ctx context.Context, id string) (*models.Issue, error)
	List(ctx context.Context, filter IssueFilter) ([]models.Issue, error)
	UpdateStatus(ctx context.Context, id string, status models.IssueStatus, updatedAt time.Time) (*models.Issue, error)
	Delete(ctx context.Context, id string) error
}

// UserRepository stores User records.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
	UpdateRole(ctx context.Context, id string, role models.Role, updatedAt time.Time) (*models.User, error)
}

// parseID converts a hex id; malformed ids cannot match any record.
func parseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, models.ErrNotFound
	}
	return oid, nil
}

var (
	_ IssueRepository = (*MongoIssueRepository)(nil)
	_ IssueRepository = (*MemoryIssueRepository)(nil)
	_ UserRepository  = (*MongoUserRepository)(nil)
	_ UserRepository  = (*MemoryUserRepository)(nil)
)
