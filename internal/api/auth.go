package api

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/rkvalley/campus/internal/gateway"
	"github.com/rkvalley/campus/internal/model"
)

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest is the form of POST /auth/register.
type RegisterRequest struct {
	Name      string     `json:"name" validate:"required"`
	Username  string     `json:"username" validate:"required"`
	Email     string     `json:"email" validate:"required,email"`
	Password  string     `json:"password" validate:"required"`
	Role      model.Role `json:"role" validate:"required,oneof=Student Faculty Admin"`
	ClassName string     `json:"className"`
}

// VerifyRequest is the body of POST /auth/verify-otp.
type VerifyRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
}

type authResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Token   string         `json:"token"`
	User    model.Identity `json:"user"`
}

// Login authenticates and stores the resulting session. A rejected login
// returns ErrAuthenticationFailed and leaves the session as it was.
func (c *Client) Login(ctx context.Context, req LoginRequest) (model.Identity, error) {
	if err := validateRequest(req); err != nil {
		return model.Identity{}, err
	}
	var resp authResponse
	if err := c.rq.PostJSON(ctx, "/auth/login", req, &resp); err != nil {
		if isRejection(err) {
			return model.Identity{}, errors.Wrap(ErrAuthenticationFailed, err.Error())
		}
		return model.Identity{}, err
	}
	return c.establish(ctx, resp)
}

// Register creates an account. The backend then emails an OTP that VerifyOTP
// consumes; no session is created here.
func (c *Client) Register(ctx context.Context, req RegisterRequest, profilePic *gateway.File) (userID string, err error) {
	if err := validateRequest(req); err != nil {
		return "", err
	}
	fields := map[string]string{
		"name":     req.Name,
		"username": req.Username,
		"email":    req.Email,
		"password": req.Password,
		"role":     string(req.Role),
	}
	if req.ClassName != "" {
		fields["className"] = req.ClassName
	}
	if profilePic != nil {
		f := *profilePic
		f.Field = "profilePic"
		profilePic = &f
	}
	raw, err := c.multipartRaw(ctx, "/auth/register", fields, profilePic)
	if err != nil {
		return "", err
	}
	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		UserID  string `json:"userId"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", errors.Wrap(err, "api: decode register response")
	}
	if !resp.Success {
		return "", errors.Errorf("api: registration refused: %s", resp.Message)
	}
	return resp.UserID, nil
}

// VerifyOTP confirms a registration and logs the new user in.
func (c *Client) VerifyOTP(ctx context.Context, req VerifyRequest) (model.Identity, error) {
	if err := validateRequest(req); err != nil {
		return model.Identity{}, err
	}
	var resp authResponse
	if err := c.rq.PostJSON(ctx, "/auth/verify-otp", req, &resp); err != nil {
		if isRejection(err) {
			return model.Identity{}, errors.Wrap(ErrAuthenticationFailed, err.Error())
		}
		return model.Identity{}, err
	}
	if !resp.Success {
		return model.Identity{}, errors.Wrap(ErrAuthenticationFailed, resp.Message)
	}
	return c.establish(ctx, resp)
}

// ResendOTP asks the backend to mail a fresh code.
func (c *Client) ResendOTP(ctx context.Context, email string) error {
	req := struct {
		Email string `json:"email" validate:"required,email"`
	}{email}
	if err := validateRequest(req); err != nil {
		return err
	}
	return c.rq.PostJSON(ctx, "/auth/resend-otp", req, nil)
}

func (c *Client) establish(ctx context.Context, resp authResponse) (model.Identity, error) {
	if resp.Token == "" || resp.User.IsZero() {
		return model.Identity{}, errors.Wrap(ErrAuthenticationFailed, "response carries no session")
	}
	if err := c.sessions.Login(ctx, resp.User, resp.Token); err != nil {
		return model.Identity{}, err
	}
	c.logger.Info("authenticated",
		zap.String("user_id", resp.User.ID),
		zap.String("role", string(resp.User.Role)))
	return resp.User, nil
}
