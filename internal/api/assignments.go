package api

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rkvalley/campus/internal/gateway"
)

// AssignmentRequest is the form of POST /assignments.
type AssignmentRequest struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	ClassName   string `json:"className" validate:"required"`
}

// SubmissionRequest is the form of POST /submissions.
type SubmissionRequest struct {
	AssignmentID string `json:"assignmentId" validate:"required"`
	StudentID    string `json:"studentId" validate:"required"`
}

// GradeRequest is the body of PATCH /submissions/:id/grade.
type GradeRequest struct {
	Marks    int    `json:"marks" validate:"min=0"`
	Feedback string `json:"feedback"`
}

// StudentAssignments lists assignments for the logged-in student.
func (c *Client) StudentAssignments(ctx context.Context) (json.RawMessage, error) {
	return c.getRaw(ctx, "/assignments/student")
}

// TeacherAssignments lists assignments created by the logged-in faculty.
func (c *Client) TeacherAssignments(ctx context.Context) (json.RawMessage, error) {
	return c.getRaw(ctx, "/assignments/teacher")
}

// ClassAssignments lists assignments for a class.
func (c *Client) ClassAssignments(ctx context.Context, className string) (json.RawMessage, error) {
	return c.getRaw(ctx, "/assignments/class/"+seg(className))
}

// Assignment fetches one assignment.
func (c *Client) Assignment(ctx context.Context, id string) (json.RawMessage, error) {
	return c.getRaw(ctx, "/assignments/"+seg(id))
}

// CreateAssignment publishes an assignment with an optional attachment.
func (c *Client) CreateAssignment(ctx context.Context, req AssignmentRequest, file *gateway.File) (json.RawMessage, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	fields := map[string]string{
		"title":       req.Title,
		"description": req.Description,
		"className":   req.ClassName,
	}
	return c.multipartRaw(ctx, "/assignments", fields, withField(file, "file"))
}

// Submit uploads a student's work for an assignment.
func (c *Client) Submit(ctx context.Context, req SubmissionRequest, file gateway.File) (json.RawMessage, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	fields := map[string]string{
		"assignmentId": req.AssignmentID,
		"studentId":    req.StudentID,
		"submittedAt":  time.Now().UTC().Format(time.RFC3339),
	}
	return c.multipartRaw(ctx, "/submissions", fields, withField(&file, "file"))
}

// Submissions lists submissions for an assignment.
func (c *Client) Submissions(ctx context.Context, assignmentID string) (json.RawMessage, error) {
	return c.getRaw(ctx, "/submissions/"+seg(assignmentID))
}

// Grade records marks and feedback for a submission.
func (c *Client) Grade(ctx context.Context, submissionID string, req GradeRequest) (json.RawMessage, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	var out json.RawMessage
	if err := c.rq.PatchJSON(ctx, "/submissions/"+seg(submissionID)+"/grade", req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func withField(f *gateway.File, field string) *gateway.File {
	if f == nil {
		return nil
	}
	cp := *f
	cp.Field = field
	return &cp
}

func boolField(b bool) string { return strconv.FormatBool(b) }
