package server

import (
	"taskdesk/internal/domain"
)

// Request payloads

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CreateTaskRequest struct {
	Title       string   `json:"title"`
	Description *string  `json:"description,omitempty"`
	Priority    *string  `json:"priority,omitempty" enum:"low,medium,high"`
	DueDate     string   `json:"due_date" format:"date-time"`
	AssigneeID  string   `json:"assignee_id"`
	ActionSteps []string `json:"action_steps,omitempty"`
}

type UpdateTaskRequest struct {
	Status   *string `json:"status,omitempty" enum:"todo,in-progress,completed"`
	Priority *string `json:"priority,omitempty" enum:"low,medium,high"`
}

type CreateActionStepRequest struct {
	Title string `json:"title"`
}

type UpdateActionStepRequest struct {
	Completed *bool `json:"completed"`
}

type NoteRequest struct {
	Content string `json:"content"`
}

type UpdateUserRequest struct {
	Name     *string `json:"name,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Location *string `json:"location,omitempty"`
}

type CreateReportRequest struct {
	Summary string `json:"summary"`
}

type CreateAPIKeyRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
}

// Response payloads

type AuthResponse struct {
	Message string       `json:"message"`
	User    UserResponse `json:"user"`
	Token   string       `json:"token"`
}

type UserResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role" enum:"ADMIN,EMPLOYEE"`
	Phone     string `json:"phone,omitempty"`
	Location  string `json:"location,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

func userResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		Phone:     u.Phone,
		Location:  u.Location,
		CreatedAt: u.CreatedAt,
	}
}

func mapUsers(users []domain.User) []UserResponse {
	res := []UserResponse{}
	for _, u := range users {
		res = append(res, userResponse(u))
	}
	return res
}

type TaskEnvelope struct {
	Message string      `json:"message,omitempty"`
	Task    domain.Task `json:"task"`
}

type TaskListResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

type StepEnvelope struct {
	Message    string            `json:"message,omitempty"`
	ActionStep domain.ActionStep `json:"action_step"`
}

type StepNoteEnvelope struct {
	Message string          `json:"message,omitempty"`
	Note    domain.StepNote `json:"note"`
}

type ProgressNoteEnvelope struct {
	Message string              `json:"message,omitempty"`
	Note    domain.ProgressNote `json:"note"`
}

type UserEnvelope struct {
	Message string       `json:"message,omitempty"`
	User    UserResponse `json:"user"`
}

type UserListResponse struct {
	Users []UserResponse `json:"users"`
}

type ReportEnvelope struct {
	Message string              `json:"message,omitempty"`
	Report  domain.WeeklyReport `json:"report"`
}

type ReportListResponse struct {
	Reports []domain.WeeklyReport `json:"reports"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
	// Key is present only in the creation response.
	Key string `json:"key,omitempty"`
}

type APIKeyListResponse struct {
	Keys []APIKeyResponse `json:"keys"`
}

type actionSummaryBody struct {
	Summary domain.ActionSummary `json:"summary"`
}

type EventListResponse struct {
	Events     []domain.Event `json:"events"`
	NextCursor int64          `json:"next_cursor,omitempty"`
}
