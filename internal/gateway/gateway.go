// Package gateway issues REST requests to the campus backend on behalf of the
// current session. Every request carries the session's bearer credential, and
// any 401 answer ends the session and navigates the client to the login route.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/rkvalley/campus/internal/logging"
	"github.com/rkvalley/campus/internal/metrics"
)

// LoginRoute is where the client is sent after the backend rejects its
// credential.
const LoginRoute = "/login"

// RequestIDHeader carries a per-request UUID for correlating client and
// server logs.
const RequestIDHeader = "X-Request-ID"

// ErrUnauthorized is matched by every error produced from a 401 response.
var ErrUnauthorized = errors.New("gateway: unauthorized")

// CredentialSource is the part of the session store the gateway needs.
type CredentialSource interface {
	Credential() string
	Logout(ctx context.Context) error
}

// Navigator moves the client to another route.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

// Navigate calls f(path).
func (f NavigatorFunc) Navigate(path string) { f(path) }

// StatusError is returned for every non-2xx response.
type StatusError struct {
	Method  string
	Path    string
	Code    int
	Message string // backend "message" field, if any
	Body    []byte
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Code)
	}
	return fmt.Sprintf("gateway: %s %s: %d %s", e.Method, e.Path, e.Code, msg)
}

// Unwrap lets errors.Is(err, ErrUnauthorized) match 401 responses.
func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// Response is a successful backend answer. Body is opaque JSON.
type Response struct {
	Code   int
	Header http.Header
	Body   []byte
}

// Decode unmarshals the body into v.
func (r *Response) Decode(v interface{}) error {
	if v == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return errors.Wrap(err, "gateway: decode response")
	}
	return nil
}

// File is one file part of a multipart request.
type File struct {
	Field   string
	Name    string
	Content io.Reader
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Gateway) { g.logger = logging.OrNop(l).Named("gateway") }
}

// Gateway is the single path for authenticated REST traffic.
type Gateway struct {
	baseURL  string
	sessions CredentialSource
	nav      Navigator
	client   *http.Client
	logger   *zap.Logger
}

// New returns a Gateway for baseURL (for example http://localhost:5000/api).
// nav may be nil when the caller has nowhere to navigate.
func New(baseURL string, sessions CredentialSource, nav Navigator, opts ...Option) *Gateway {
	g := &Gateway{
		baseURL:  strings.TrimRight(baseURL, "/"),
		sessions: sessions,
		nav:      nav,
		client:   http.DefaultClient,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// BaseURL returns the URL every request path is appended to.
func (g *Gateway) BaseURL() string { return g.baseURL }

// Do sends one request. The credential is read at send time, so a login or
// logout between two calls is always observed.
func (g *Gateway) Do(ctx context.Context, method, path string, body io.Reader, contentType string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return nil, errors.Wrapf(err, "gateway: build %s %s", method, path)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	reqID := uuid.NewString()
	req.Header.Set(RequestIDHeader, reqID)
	if token := g.sessions.Credential(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		metrics.HTTPRequests.WithLabelValues(method, "error").Inc()
		g.logger.Warn("request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("request_id", reqID),
			zap.Error(err))
		return nil, errors.Wrapf(err, "gateway: %s %s", method, path)
	}
	defer resp.Body.Close()

	metrics.HTTPRequests.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "gateway: read %s %s", method, path)
	}

	g.logger.Debug("response",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.String("request_id", reqID))

	if resp.StatusCode == http.StatusUnauthorized {
		g.forceLogout(ctx, method, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			Method:  method,
			Path:    path,
			Code:    resp.StatusCode,
			Message: backendMessage(raw),
			Body:    raw,
		}
	}
	return &Response{Code: resp.StatusCode, Header: resp.Header, Body: raw}, nil
}

// forceLogout ends the session regardless of which endpoint answered 401.
func (g *Gateway) forceLogout(ctx context.Context, method, path string) {
	metrics.ForcedLogouts.Inc()
	g.logger.Info("credential rejected, logging out",
		zap.String("method", method),
		zap.String("path", path))
	if err := g.sessions.Logout(context.WithoutCancel(ctx)); err != nil {
		g.logger.Warn("logout after 401", zap.Error(err))
	}
	if g.nav != nil {
		g.nav.Navigate(LoginRoute)
	}
}

func backendMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	return payload.Error
}

func (g *Gateway) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrapf(err, "gateway: encode %s %s", method, path)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}
	resp, err := g.Do(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

// GetJSON sends a GET and decodes the answer into out (which may be nil).
func (g *Gateway) GetJSON(ctx context.Context, path string, out interface{}) error {
	return g.doJSON(ctx, http.MethodGet, path, nil, out)
}

// PostJSON sends in as a JSON body and decodes the answer into out.
func (g *Gateway) PostJSON(ctx context.Context, path string, in, out interface{}) error {
	return g.doJSON(ctx, http.MethodPost, path, in, out)
}

// PutJSON sends in as a JSON body with PUT.
func (g *Gateway) PutJSON(ctx context.Context, path string, in, out interface{}) error {
	return g.doJSON(ctx, http.MethodPut, path, in, out)
}

// PatchJSON sends in as a JSON body with PATCH.
func (g *Gateway) PatchJSON(ctx context.Context, path string, in, out interface{}) error {
	return g.doJSON(ctx, http.MethodPatch, path, in, out)
}

// Delete sends a DELETE.
func (g *Gateway) Delete(ctx context.Context, path string, out interface{}) error {
	return g.doJSON(ctx, http.MethodDelete, path, nil, out)
}

// PostMultipart sends form fields and files as multipart/form-data.
func (g *Gateway) PostMultipart(ctx context.Context, path string, fields map[string]string, files []File, out interface{}) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return errors.Wrapf(err, "gateway: field %s", k)
		}
	}
	for _, f := range files {
		part, err := w.CreateFormFile(f.Field, f.Name)
		if err != nil {
			return errors.Wrapf(err, "gateway: file part %s", f.Field)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return errors.Wrapf(err, "gateway: copy %s", f.Name)
		}
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, "gateway: close multipart body")
	}

	resp, err := g.Do(ctx, http.MethodPost, path, &buf, w.FormDataContentType())
	if err != nil {
		return err
	}
	return resp.Decode(out)
}
