package api

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/rkvalley/campus/internal/model"
)

// ChatUsers lists the users one can chat with. The backend has answered with
// {"data": [...]}, {"users": [...]} and a bare array over time; all three are
// accepted.
func (c *Client) ChatUsers(ctx context.Context) ([]model.Identity, error) {
	raw, err := c.getRaw(ctx, "/users/chat/users")
	if err != nil {
		return nil, err
	}
	return decodeUserList(raw)
}

// Faculties lists faculty members, for the feedback form.
func (c *Client) Faculties(ctx context.Context) ([]model.Identity, error) {
	raw, err := c.getRaw(ctx, "/users/faculties/all")
	if err != nil {
		return nil, err
	}
	return decodeUserList(raw)
}

func decodeUserList(raw json.RawMessage) ([]model.Identity, error) {
	trimmed := bytes.TrimSpace(raw)
	users := []model.Identity{}
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return users, nil
	}
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &users); err != nil {
			return nil, errors.Wrap(err, "api: decode user list")
		}
		return users, nil
	}

	var wrapped struct {
		Data      []model.Identity `json:"data"`
		Users     []model.Identity `json:"users"`
		Faculties []model.Identity `json:"faculties"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, errors.Wrap(err, "api: decode user list")
	}
	switch {
	case wrapped.Data != nil:
		return wrapped.Data, nil
	case wrapped.Users != nil:
		return wrapped.Users, nil
	case wrapped.Faculties != nil:
		return wrapped.Faculties, nil
	}
	return users, nil
}
