package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"civicportal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryIssueRepository keeps issues in process memory. It backs DB_DRIVER=memory and tests.
type MemoryIssueRepository struct {
	mu     sync.RWMutex
	issues []models.Issue
}

func NewMemoryIssueRepository() *MemoryIssueRepository {
	return &MemoryIssueRepository{}
}

func (r *MemoryIssueRepository) Create(_ context.Context, issue *models.Issue) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if issue.ID.IsZero() {
		issue.ID = primitive.NewObjectID()
	}
	r.issues = append(r.issues, *issue)
	return nil
}

func (r *MemoryIssueRepository) FindByID(_ context.Context, id string) (*models.Issue, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if i := r.indexOf(oid); i >= 0 {
		issue := r.issues[i]
		return &issue, nil
	}
	return nil, models.ErrNotFound
}

func (r *MemoryIssueRepository) List(_ context.Context, filter IssueFilter) ([]models.Issue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Walk newest insertion first so equal timestamps still list newest first.
	out := make([]models.Issue, 0, len(r.issues))
	for i := len(r.issues) - 1; i >= 0; i-- {
		issue := r.issues[i]
		if filter.Status != "" && issue.Status != filter.Status {
			continue
		}
		if !filter.UserID.IsZero() && issue.UserID != filter.UserID {
			continue
		}
		out = append(out, issue)
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})
	return out, nil
}

func (r *MemoryIssueRepository) UpdateStatus(_ context.Context, id string, status models.IssueStatus, updatedAt time.Time) (*models.Issue, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(oid)
	if i < 0 {
		return nil, models.ErrNotFound
	}
	r.issues[i].Status = status
	r.issues[i].UpdatedAt = updatedAt
	issue := r.issues[i]
	return &issue, nil
}

func (r *MemoryIssueRepository) Delete(_ context.Context, id string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(oid)
	if i < 0 {
		return models.ErrNotFound
	}
	r.issues = append(r.issues[:i], r.issues[i+1:]...)
	return nil
}

func (r *MemoryIssueRepository) indexOf(id primitive.ObjectID) int {
	for i := range r.issues {
		if r.issues[i].ID == id {
			return i
		}
	}
	return -1
}

// MemoryUserRepository keeps users in process memory.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[primitive.ObjectID]models.User
	order []primitive.ObjectID
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[primitive.ObjectID]models.User)}
}

func (r *MemoryUserRepository) Create(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Email == user.Email {
			return models.ErrConflict
		}
	}
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	r.users[user.ID] = *user
	r.order = append(r.order, user.ID)
	return nil
}

func (r *MemoryUserRepository) FindByID(_ context.Context, id string) (*models.User, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[oid]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &u, nil
}

func (r *MemoryUserRepository) FindByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *MemoryUserRepository) List(_ context.Context) ([]models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.User, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.users[id])
	}
	return out, nil
}

func (r *MemoryUserRepository) UpdateRole(_ context.Context, id string, role models.Role, updatedAt time.Time) (*models.User, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[oid]
	if !ok {
		return nil, models.ErrNotFound
	}
	u.Role = role
	u.UpdatedAt = updatedAt
	r.users[oid] = u
	return &u, nil
}
