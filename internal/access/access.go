// Package access holds the role rules applied by every task-scoped route.
// The rules are pure functions over (role, user id, task assignee) so the
// same decision is made everywhere instead of being re-derived per handler.
package access

import (
	"taskdesk/internal/domain"
)

// ForbiddenError indicates an authenticated actor lacks rights for an
// operation. Handlers map it to 403.
type ForbiddenError struct {
	Reason string
}

func (e ForbiddenError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return "Access denied"
}

// Denied is the uniform per-task rejection.
func Denied() error { return ForbiddenError{} }

// AdminRequired is the rejection for admin-only operations.
func AdminRequired() error { return ForbiddenError{Reason: "Admin access required"} }

// CanViewTask reports whether the actor may read the task. Admins see
// everything; employees only their own assignments.
func CanViewTask(role, userID string, task domain.Task) bool {
	if role == domain.RoleAdmin {
		return true
	}
	return role == domain.RoleEmployee && task.AssigneeID == userID
}

// CanUpdateStatus reports whether the actor may change the task's status.
// Same population as view: admin, or the assignee.
func CanUpdateStatus(role, userID string, task domain.Task) bool {
	return CanViewTask(role, userID, task)
}

// CanUpdatePriority is admin-only.
func CanUpdatePriority(role string) bool {
	return role == domain.RoleAdmin
}

// CanDeleteTask is admin-only.
func CanDeleteTask(role string) bool {
	return role == domain.RoleAdmin
}

// CanModifySteps covers creating action steps, toggling their completion,
// and appending step or progress notes.
func CanModifySteps(role, userID string, task domain.Task) bool {
	return CanViewTask(role, userID, task)
}

// CanDeleteStep is admin-only; assignees may complete steps but never
// remove them.
func CanDeleteStep(role string) bool {
	return role == domain.RoleAdmin
}

// CanUpdateUser allows self-service profile edits plus admin override.
func CanUpdateUser(role, userID, targetID string) bool {
	return userID == targetID || role == domain.RoleAdmin
}

// CanCreateReport is admin-only; reports span the entire task set.
func CanCreateReport(role string) bool {
	return role == domain.RoleAdmin
}
