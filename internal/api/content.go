package api

import (
	"context"
	"encoding/json"

	"github.com/rkvalley/campus/internal/gateway"
)

// ContentRequest is the form of POST /content.
type ContentRequest struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	ClassName   string `json:"className" validate:"required"`
	IsImportant bool   `json:"isImportant"`
	Tags        string `json:"tags"`
}

// ShareContent publishes study material to a class.
func (c *Client) ShareContent(ctx context.Context, req ContentRequest, file *gateway.File) (json.RawMessage, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	fields := map[string]string{
		"title":       req.Title,
		"description": req.Description,
		"className":   req.ClassName,
		"isImportant": boolField(req.IsImportant),
		"tags":        req.Tags,
	}
	return c.multipartRaw(ctx, "/content", fields, withField(file, "file"))
}

// StudentContent lists material shared with the logged-in student.
func (c *Client) StudentContent(ctx context.Context) (json.RawMessage, error) {
	return c.getRaw(ctx, "/content/student")
}

// FacultyContent lists material shared by the logged-in faculty member.
func (c *Client) FacultyContent(ctx context.Context) (json.RawMessage, error) {
	return c.getRaw(ctx, "/content/faculty")
}

// DeleteContent removes shared material.
func (c *Client) DeleteContent(ctx context.Context, id string) (json.RawMessage, error) {
	return c.deleteRaw(ctx, "/content/"+seg(id))
}
