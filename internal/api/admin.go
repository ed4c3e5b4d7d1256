package api

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/rkvalley/campus/internal/gateway"
	"github.com/rkvalley/campus/internal/model"
)

// UserRequest is the body of POST /admin/users.
type UserRequest struct {
	Name      string     `json:"name" validate:"required"`
	Email     string     `json:"email" validate:"required,email"`
	Username  string     `json:"username" validate:"required"`
	Password  string     `json:"password" validate:"required"`
	Role      model.Role `json:"role" validate:"required,oneof=Student Faculty Admin"`
	ClassName string     `json:"className,omitempty"`
}

// UserUpdate is the body of PUT /admin/users/:id. Empty fields are left
// unchanged by the backend.
type UserUpdate struct {
	Name      string     `json:"name,omitempty"`
	Email     string     `json:"email,omitempty" validate:"omitempty,email"`
	Username  string     `json:"username,omitempty"`
	Password  string     `json:"password,omitempty"`
	Role      model.Role `json:"role,omitempty" validate:"omitempty,oneof=Student Faculty Admin"`
	ClassName string     `json:"className,omitempty"`
}

// Users lists every account.
func (c *Client) Users(ctx context.Context) (json.RawMessage, error) {
	return c.getRaw(ctx, "/admin/users")
}

// CreateUser adds an account.
func (c *Client) CreateUser(ctx context.Context, req UserRequest) (json.RawMessage, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	return c.postRaw(ctx, "/admin/users", req)
}

// UpdateUser changes an account.
func (c *Client) UpdateUser(ctx context.Context, id string, req UserUpdate) (json.RawMessage, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	var out json.RawMessage
	if err := c.rq.PutJSON(ctx, "/admin/users/"+seg(id), req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteUser removes an account.
func (c *Client) DeleteUser(ctx context.Context, id string) (json.RawMessage, error) {
	return c.deleteRaw(ctx, "/admin/users/"+seg(id))
}

// DashboardStats returns the admin dashboard counters.
func (c *Client) DashboardStats(ctx context.Context) (json.RawMessage, error) {
	return c.getRaw(ctx, "/admin/dashboard-stats")
}

// StudentsAttendance returns attendance for every student.
func (c *Client) StudentsAttendance(ctx context.Context) (json.RawMessage, error) {
	return c.getRaw(ctx, "/admin/students-attendance")
}

// AllFacultyFeedback returns feedback for every faculty member.
func (c *Client) AllFacultyFeedback(ctx context.Context) (json.RawMessage, error) {
	return c.getRaw(ctx, "/admin/faculty-feedback")
}

// UploadProfilePic replaces a user's picture and returns its stored path.
func (c *Client) UploadProfilePic(ctx context.Context, userID string, file gateway.File) (string, error) {
	raw, err := c.multipartRaw(ctx, "/admin/users/"+seg(userID)+"/profile-pic", nil, withField(&file, "profilePic"))
	if err != nil {
		return "", err
	}
	var resp struct {
		ProfilePic string `json:"profilePic"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", errors.Wrap(err, "api: decode profile picture response")
	}
	return resp.ProfilePic, nil
}
