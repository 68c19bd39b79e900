package authprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/qfolders/qfolders/internal/common"
)

// GoTrue is a client for the hosted auth REST API (/auth/v1).
type GoTrue struct {
	baseURL string
	anonKey string
	client  *http.Client
	now     func() time.Time
}

// NewGoTrue returns a client for the project at projectURL. The timeout
// bounds a single HTTP exchange.
func NewGoTrue(projectURL, anonKey string, timeout time.Duration) *GoTrue {
	return &GoTrue{
		baseURL: strings.TrimRight(projectURL, "/") + "/auth/v1",
		anonKey: anonKey,
		client:  &http.Client{Timeout: timeout},
		now:     time.Now,
	}
}

type sessionResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// apiError covers both the legacy OAuth-style and the current error bodies.
type apiError struct {
	Status           int    `json:"-"`
	Code             string `json:"error_code"`
	Kind             string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (e *apiError) Error() string {
	msg := e.Msg
	for _, s := range []string{e.Message, e.ErrorDescription, e.Kind} {
		if msg == "" {
			msg = s
		}
	}
	if e.Code != "" {
		return fmt.Sprintf("auth api %d %s: %s", e.Status, e.Code, msg)
	}
	return fmt.Sprintf("auth api %d: %s", e.Status, msg)
}

func (e *apiError) is(codes ...string) bool {
	for _, c := range codes {
		if e.Code == c || e.Kind == c {
			return true
		}
	}
	return false
}

func (e *apiError) clientSide() bool {
	return e.Status >= 400 && e.Status < 500 && e.Status != http.StatusTooManyRequests
}

func (g *GoTrue) SignIn(ctx context.Context, email, password string) (*Tokens, error) {
	var out sessionResponse
	err := g.do(ctx, http.MethodPost, "/token", url.Values{"grant_type": {"password"}}, "",
		map[string]string{"email": email, "password": password}, &out)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.clientSide() {
			return nil, fmt.Errorf("%w: %v", common.ErrInvalidCredentials, apiErr)
		}
		return nil, unavailable(err)
	}
	return g.tokens(&out), nil
}

func (g *GoTrue) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	var out sessionResponse
	err := g.do(ctx, http.MethodPost, "/token", url.Values{"grant_type": {"refresh_token"}}, "",
		map[string]string{"refresh_token": refreshToken}, &out)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.clientSide() {
			if apiErr.is("refresh_token_not_found", "refresh_token_already_used", "session_expired") {
				return nil, fmt.Errorf("%w: %v", common.ErrRefreshTokenExpired, apiErr)
			}
			return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, apiErr)
		}
		return nil, unavailable(err)
	}
	return g.tokens(&out), nil
}

func (g *GoTrue) SignUp(ctx context.Context, email, password, redirectURL string) error {
	err := g.do(ctx, http.MethodPost, "/signup", redirectQuery(redirectURL), "",
		map[string]string{"email": email, "password": password}, nil)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.clientSide() {
			if apiErr.is("user_already_exists", "email_exists") {
				return fmt.Errorf("%w: %v", common.ErrorAlreadyExists, apiErr)
			}
			return fmt.Errorf("%w: %v", common.ErrorValidation, apiErr)
		}
		return unavailable(err)
	}
	return nil
}

func (g *GoTrue) ResendConfirmation(ctx context.Context, email, redirectURL string) error {
	err := g.do(ctx, http.MethodPost, "/resend", redirectQuery(redirectURL), "",
		map[string]string{"type": "signup", "email": email}, nil)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.clientSide() {
			return fmt.Errorf("%w: %v", common.ErrorValidation, apiErr)
		}
		return unavailable(err)
	}
	return nil
}

// SignOut revokes the refresh tokens of the session owning accessToken.
func (g *GoTrue) SignOut(ctx context.Context, accessToken string) error {
	err := g.do(ctx, http.MethodPost, "/logout", nil, accessToken, nil, nil)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.clientSide() {
			return fmt.Errorf("%w: %v", common.ErrInvalidToken, apiErr)
		}
		return unavailable(err)
	}
	return nil
}

func (g *GoTrue) tokens(s *sessionResponse) *Tokens {
	t := &Tokens{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		UserID:       s.User.ID,
		Email:        s.User.Email,
	}
	switch {
	case s.ExpiresAt > 0:
		t.ExpiresAt = time.Unix(s.ExpiresAt, 0)
	case s.ExpiresIn > 0:
		t.ExpiresAt = g.now().Add(time.Duration(s.ExpiresIn) * time.Second)
	}
	return t
}

// do sends one JSON request. bearer overrides the anon key in the
// Authorization header when set. Non-2xx responses come back as *apiError.
func (g *GoTrue) do(ctx context.Context, method, path string, query url.Values, bearer string, in any, out any) error {
	u := g.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if bearer == "" {
		bearer = g.anonKey
	}
	req.Header.Set("apikey", g.anonKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &apiError{Status: resp.StatusCode}
		_ = json.Unmarshal(payload, apiErr)
		return apiErr
	}

	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("decode auth response: %w", err)
		}
	}
	return nil
}

func redirectQuery(redirectURL string) url.Values {
	if redirectURL == "" {
		return nil
	}
	return url.Values{"redirect_to": {redirectURL}}
}

// unavailable wraps transport failures and server-side errors. A cancelled
// caller context is returned as is.
func unavailable(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", common.ErrAuthProviderUnavailable, err)
}
