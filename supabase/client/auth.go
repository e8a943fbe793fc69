package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// AuthClient handles Supabase Auth (GoTrue) calls. Sessions are returned to the
// caller; persisting the access token is the caller's concern.
type AuthClient struct {
	client *Client
}

// Auth returns the auth API of the project.
func (c *Client) Auth() *AuthClient {
	return &AuthClient{client: c}
}

// User is the identity record returned by the auth API.
type User struct {
	ID           string         `json:"id"`
	Aud          string         `json:"aud"`
	Role         string         `json:"role"`
	Email        string         `json:"email"`
	LastSignInAt *time.Time     `json:"last_sign_in_at,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Session is an authenticated session.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user,omitempty"`
}

// SignUpRequest registers a new account.
type SignUpRequest struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Data     map[string]any `json:"data,omitempty"`
}

func (a *AuthClient) url(path string) string {
	return a.client.baseURL + "/auth/v1" + path
}

// SignUp creates a new user.
func (a *AuthClient) SignUp(ctx context.Context, req SignUpRequest) (*Session, error) {
	if req.Email == "" || req.Password == "" {
		return nil, errors.New("email and password are required")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := a.client.request(ctx, "POST", a.url("/signup"), body, nil, "auth/signup")
	if err != nil {
		return nil, err
	}

	var session Session
	if err := resp.JSON(&session); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &session, nil
}

// SignIn authenticates a user with email and password.
func (a *AuthClient) SignIn(ctx context.Context, email, password string) (*Session, error) {
	body, err := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := a.client.request(ctx, "POST", a.url("/token?grant_type=password"), body, nil, "auth/token")
	if err != nil {
		return nil, err
	}

	var session Session
	if err := resp.JSON(&session); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if session.AccessToken == "" {
		return nil, errors.New("sign in returned no access token")
	}
	return &session, nil
}

// GetUser retrieves the user that owns accessToken.
func (a *AuthClient) GetUser(ctx context.Context, accessToken string) (*User, error) {
	resp, err := a.client.request(WithAccessToken(ctx, accessToken), "GET", a.url("/user"), nil, nil, "auth/user")
	if err != nil {
		return nil, err
	}

	var user User
	if err := resp.JSON(&user); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &user, nil
}

// SignOut revokes the session behind accessToken.
func (a *AuthClient) SignOut(ctx context.Context, accessToken string) error {
	_, err := a.client.request(WithAccessToken(ctx, accessToken), "POST", a.url("/logout"), nil, nil, "auth/logout")
	return err
}
