// Package policy holds the single authorization rule set for issues and accounts.
package policy

import "civicportal/models"

type Action string

const (
	ActionCreateIssue  Action = "issue:create"
	ActionReadIssues   Action = "issue:read"
	ActionUpdateStatus Action = "issue:update-status"
	ActionDeleteIssue  Action = "issue:delete"
	ActionManageUsers  Action = "user:manage"
	ActionAdminArea    Action = "admin"
)

// Authorize decides whether actor may perform action, optionally on issue.
// It returns nil, models.ErrUnauthorized or models.ErrForbidden.
func Authorize(actor models.AuthUser, action Action, issue *models.Issue) error {
	if !actor.Authenticated() {
		return models.ErrUnauthorized
	}

	switch action {
	case ActionCreateIssue, ActionReadIssues:
		return nil
	case ActionUpdateStatus, ActionManageUsers, ActionAdminArea:
		if actor.IsAdmin() {
			return nil
		}
	case ActionDeleteIssue:
		if actor.IsAdmin() || (issue != nil && issue.OwnedBy(actor.ID)) {
			return nil
		}
	}
	return models.ErrForbidden
}
