// Package api wraps the campus REST endpoints. Every call goes through the
// gateway, so it carries the session credential and is subject to the 401
// logout rule. Payloads the client does not interpret are returned as raw JSON.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/rkvalley/campus/internal/gateway"
	"github.com/rkvalley/campus/internal/logging"
	"github.com/rkvalley/campus/internal/model"
)

// ErrAuthenticationFailed is returned when the backend rejects a login or an
// OTP. The session is left untouched.
var ErrAuthenticationFailed = errors.New("api: authentication failed")

// Requester is the gateway surface the client uses.
type Requester interface {
	GetJSON(ctx context.Context, path string, out interface{}) error
	PostJSON(ctx context.Context, path string, in, out interface{}) error
	PutJSON(ctx context.Context, path string, in, out interface{}) error
	PatchJSON(ctx context.Context, path string, in, out interface{}) error
	Delete(ctx context.Context, path string, out interface{}) error
	PostMultipart(ctx context.Context, path string, fields map[string]string, files []gateway.File, out interface{}) error
}

// SessionWriter receives the identity and credential after a successful login.
type SessionWriter interface {
	Login(ctx context.Context, identity model.Identity, credential string) error
}

// Client is the typed REST surface.
type Client struct {
	rq       Requester
	sessions SessionWriter
	logger   *zap.Logger
}

// New returns a Client sending through rq and logging in through sessions.
func New(rq Requester, sessions SessionWriter, logger *zap.Logger) *Client {
	return &Client{
		rq:       rq,
		sessions: sessions,
		logger:   logging.OrNop(logger).Named("api"),
	}
}

func (c *Client) getRaw(ctx context.Context, path string) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.rq.GetJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) postRaw(ctx context.Context, path string, in interface{}) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.rq.PostJSON(ctx, path, in, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) deleteRaw(ctx context.Context, path string) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.rq.Delete(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) multipartRaw(ctx context.Context, path string, fields map[string]string, file *gateway.File) (json.RawMessage, error) {
	var files []gateway.File
	if file != nil {
		files = append(files, *file)
	}
	var out json.RawMessage
	if err := c.rq.PostMultipart(ctx, path, fields, files, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// seg escapes one path segment.
func seg(s string) string { return url.PathEscape(s) }

// isRejection reports whether err is the backend refusing credentials rather
// than a transport or server failure.
func isRejection(err error) bool {
	var se *gateway.StatusError
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}
