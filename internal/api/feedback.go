package api

import (
	"context"
	"encoding/json"
	"strings"
)

// FeedbackRequest is the body of POST /feedback/submit.
type FeedbackRequest struct {
	FacultyID   string `json:"facultyId" validate:"required"`
	Subject     string `json:"subject" validate:"required"`
	Rating      int    `json:"rating" validate:"min=1,max=5"`
	Comments    string `json:"comments" validate:"required"`
	IsAnonymous bool   `json:"isAnonymous"`
}

// SubmitFeedback sends a student's feedback about a faculty member.
func (c *Client) SubmitFeedback(ctx context.Context, req FeedbackRequest) (json.RawMessage, error) {
	req.Subject = strings.TrimSpace(req.Subject)
	req.Comments = strings.TrimSpace(req.Comments)
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	return c.postRaw(ctx, "/feedback/submit", req)
}

// FacultyFeedback lists feedback received by a faculty member.
func (c *Client) FacultyFeedback(ctx context.Context, facultyID string) (json.RawMessage, error) {
	return c.getRaw(ctx, "/feedback/faculty/"+seg(facultyID))
}
