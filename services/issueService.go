package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"civicportal/models"
	"civicportal/policy"
	"civicportal/repository"
	"civicportal/storage"
)

const (
	maxTitleLen       = 200
	maxDescriptionLen = 2000
	maxLocationLen    = 200
	maxCategoryLen    = 100
)

// ImageStore accepts and removes issue photos.
type ImageStore interface {
	Accept(ctx context.Context, up storage.Upload) (string, error)
	Remove(ctx context.Context, urlPath string) error
}

// IssueService implements the issue operations. Every method receives the caller explicitly.
type IssueService struct {
	issues repository.IssueRepository
	images ImageStore
	logger *slog.Logger
	now    func() time.Time
}

func NewIssueService(issues repository.IssueRepository, images ImageStore, logger *slog.Logger) *IssueService {
	return &IssueService{issues: issues, images: images, logger: logger, now: time.Now}
}

// CreateIssueInput is a citizen submission. Image is optional.
type CreateIssueInput struct {
	Title       string
	Description string
	Category    string
	Location    string
	Image       *storage.Upload
}

func (in *CreateIssueInput) normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Category = strings.TrimSpace(in.Category)
	in.Location = strings.TrimSpace(in.Location)

	verr := &models.ValidationError{}
	checkText(verr, "title", in.Title, maxTitleLen)
	checkText(verr, "description", in.Description, maxDescriptionLen)
	checkText(verr, "category", in.Category, maxCategoryLen)
	checkText(verr, "location", in.Location, maxLocationLen)
	return verr.OrNil()
}

func checkText(verr *models.ValidationError, field, value string, max int) {
	switch {
	case value == "":
		verr.Add(field, "is required")
	case utf8.RuneCountInString(value) > max:
		verr.Add(field, fmt.Sprintf("must be at most %d characters", max))
	}
}

// CreateIssue stores a new open issue owned by actor.
func (s *IssueService) CreateIssue(ctx context.Context, actor models.AuthUser, in CreateIssueInput) (*models.Issue, error) {
	if err := policy.Authorize(actor, policy.ActionCreateIssue, nil); err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}

	var image string
	if in.Image != nil {
		stored, err := s.images.Accept(ctx, *in.Image)
		if err != nil {
			return nil, err
		}
		image = stored
	}

	now := s.timestamp()
	issue := &models.Issue{
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		Location:    in.Location,
		Image:       image,
		Status:      models.StatusOpen,
		UserID:      actor.ID,
		UserName:    actor.Name,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.issues.Create(ctx, issue); err != nil {
		s.removeImage(ctx, image)
		return nil, fmt.Errorf("create issue: %w", err)
	}

	s.logger.InfoContext(ctx, "issue created",
		slog.String("issue_id", issue.ID.Hex()),
		slog.String("user_id", actor.ID.Hex()),
		slog.Bool("has_image", image != ""))
	return issue, nil
}

// ListIssues returns every issue newest first, optionally with an exact status match.
// An empty status or "all" disables the filter.
func (s *IssueService) ListIssues(ctx context.Context, actor models.AuthUser, status string) ([]models.Issue, error) {
	if err := policy.Authorize(actor, policy.ActionReadIssues, nil); err != nil {
		return nil, err
	}

	filter := repository.IssueFilter{}
	if status = strings.TrimSpace(status); status != "" && status != "all" {
		filter.Status = models.IssueStatus(status)
	}
	return s.issues.List(ctx, filter)
}

// ListMyIssues returns the issues reported by actor, newest first.
func (s *IssueService) ListMyIssues(ctx context.Context, actor models.AuthUser) ([]models.Issue, error) {
	if err := policy.Authorize(actor, policy.ActionReadIssues, nil); err != nil {
		return nil, err
	}
	return s.issues.List(ctx, repository.IssueFilter{UserID: actor.ID})
}

func (s *IssueService) GetIssue(ctx context.Context, actor models.AuthUser, id string) (*models.Issue, error) {
	if err := policy.Authorize(actor, policy.ActionReadIssues, nil); err != nil {
		return nil, err
	}
	return s.issues.FindByID(ctx, id)
}

// UpdateStatus sets the status of an issue. Any enumerated status may follow any other.
func (s *IssueService) UpdateStatus(ctx context.Context, actor models.AuthUser, id, rawStatus string) (*models.Issue, error) {
	if err := policy.Authorize(actor, policy.ActionUpdateStatus, nil); err != nil {
		return nil, err
	}
	status, err := models.ParseIssueStatus(rawStatus)
	if err != nil {
		return nil, err
	}

	issue, err := s.issues.UpdateStatus(ctx, id, status, s.timestamp())
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "issue status updated",
		slog.String("issue_id", id),
		slog.String("status", string(status)),
		slog.String("admin_id", actor.ID.Hex()))
	return issue, nil
}

// DeleteIssue permanently removes an issue owned by actor, or any issue when actor is admin.
func (s *IssueService) DeleteIssue(ctx context.Context, actor models.AuthUser, id string) error {
	if !actor.Authenticated() {
		return models.ErrUnauthorized
	}

	issue, err := s.issues.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := policy.Authorize(actor, policy.ActionDeleteIssue, issue); err != nil {
		return err
	}

	if err := s.issues.Delete(ctx, id); err != nil {
		return err
	}
	s.removeImage(ctx, issue.Image)

	s.logger.InfoContext(ctx, "issue deleted",
		slog.String("issue_id", id),
		slog.String("user_id", actor.ID.Hex()))
	return nil
}

func (s *IssueService) removeImage(ctx context.Context, image string) {
	if image == "" {
		return
	}
	if err := s.images.Remove(ctx, image); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.WarnContext(ctx, "failed to remove issue image",
			slog.String("image", image),
			slog.Any("error", err))
	}
}

// timestamp truncates to milliseconds, the precision the document store keeps.
func (s *IssueService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}
