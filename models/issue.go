package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IssueStatus enum
type IssueStatus string

const (
	StatusOpen       IssueStatus = "open"
	StatusInProgress IssueStatus = "in progress"
	StatusResolved   IssueStatus = "resolved"
	StatusClosed     IssueStatus = "closed"
)

// IssueStatuses lists every status in workflow order.
var IssueStatuses = []IssueStatus{StatusOpen, StatusInProgress, StatusResolved, StatusClosed}

// Valid reports whether s is one of the enumerated statuses.
func (s IssueStatus) Valid() bool {
	for _, v := range IssueStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// ParseIssueStatus normalizes case and surrounding spaces and rejects unknown values.
func ParseIssueStatus(raw string) (IssueStatus, error) {
	s := IssueStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", NewValidationError("status", "must be one of open, in progress, resolved, closed")
	}
	return s, nil
}

// Categories offered by the report form. The API accepts any non-empty category.
var Categories = []string{
	"Roads",
	"Utilities",
	"Public Safety",
	"Sanitation",
	"Parks",
	"Street Lighting",
	"Other",
}

// Issue represents a civic issue reported by a citizen
type Issue struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Title       string             `bson:"title" json:"title"`
	Description string             `bson:"description" json:"description"`
	Category    string             `bson:"category" json:"category"`
	Location    string             `bson:"location" json:"location"`
	Image       string             `bson:"image" json:"image"`
	Status      IssueStatus        `bson:"status" json:"status"`
	UserID      primitive.ObjectID `bson:"userId" json:"userId"`
	UserName    string             `bson:"userName" json:"userName"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// OwnedBy reports whether the issue was reported by userID.
func (i *Issue) OwnedBy(userID primitive.ObjectID) bool {
	return !userID.IsZero() && i.UserID == userID
}
