package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rostermark/kiosk/internal/kiosk/kioskerr"
	"github.com/rostermark/kiosk/internal/kiosk/models"
	"github.com/rostermark/kiosk/internal/logging"
)

// idempotencyKeyHeader carries the intent id on attendance marks so the
// backend can deduplicate retried requests.
const idempotencyKeyHeader = "Idempotency-Key"

// HTTPClient implements Client over the backend's JSON API. It holds the
// active token pair and transparently refreshes it once when an
// authenticated request comes back 401, replaying the request with the new
// token.
type HTTPClient struct {
	baseURL string
	hc      *http.Client
	log     logging.Logger

	mu           sync.Mutex
	primaryToken string
	refreshToken string
	onRefresh    func(models.Session)
}

// NewHTTPClient builds a client for the backend at baseURL. timeout bounds
// every request end to end.
func NewHTTPClient(baseURL string, timeout time.Duration, log logging.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		hc:      &http.Client{Timeout: timeout},
		log:     log,
	}
}

// SetTokens installs the token pair used for authenticated requests.
// The session manager calls this after login, resume and logout (with empty
// strings).
func (c *HTTPClient) SetTokens(primary, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.primaryToken = primary
	c.refreshToken = refresh
}

// OnTokenRefresh registers a callback invoked whenever the client refreshes
// the token pair on its own, so the caller can persist the new session.
func (c *HTTPClient) OnTokenRefresh(fn func(models.Session)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRefresh = fn
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}

// sessionFromTokens converts a token response into a Session. When the
// response carries no expiry, the access token's JWT exp claim is used if it
// parses; otherwise the expiry stays unknown.
func sessionFromTokens(tr tokenResponse, fallbackRefresh string) models.Session {
	s := models.Session{
		PrimaryToken: tr.AccessToken,
		RefreshToken: tr.RefreshToken,
	}
	if s.RefreshToken == "" {
		s.RefreshToken = fallbackRefresh
	}
	if tr.ExpiresAt > 0 {
		s.ExpiresAt = time.Unix(tr.ExpiresAt, 0)
		return s
	}
	if claims, err := parseExpiry(tr.AccessToken); err == nil && claims != nil {
		s.ExpiresAt = claims.Time
	}
	return s
}

func parseExpiry(token string) (*jwt.NumericDate, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, err
	}
	return claims.GetExpirationTime()
}

// Login performs the staff primary login.
func (c *HTTPClient) Login(ctx context.Context, creds Credentials) (models.Session, error) {
	body := map[string]string{"username": creds.Username, "password": creds.Password}

	resp, err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/login", "", body)
	if err != nil {
		return models.Session{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return models.Session{}, kioskerr.ErrInvalidCredentials
	default:
		return models.Session{}, classifyStatus(resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return models.Session{}, fmt.Errorf("decode login response: %w", err)
	}

	session := sessionFromTokens(tr, "")
	c.SetTokens(session.PrimaryToken, session.RefreshToken)
	return session, nil
}

// Refresh exchanges the refresh token for a new token pair. An empty
// refresh_token in the response means the backend kept the old one valid.
func (c *HTTPClient) Refresh(ctx context.Context, refreshToken string) (models.Session, error) {
	if refreshToken == "" {
		return models.Session{}, kioskerr.ErrSessionExpired
	}
	body := map[string]string{"refresh_token": refreshToken}

	resp, err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/refresh", "", body)
	if err != nil {
		return models.Session{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return models.Session{}, kioskerr.ErrSessionExpired
	default:
		return models.Session{}, classifyStatus(resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return models.Session{}, fmt.Errorf("decode refresh response: %w", err)
	}

	session := sessionFromTokens(tr, refreshToken)
	c.SetTokens(session.PrimaryToken, session.RefreshToken)
	return session, nil
}

// FetchRoster returns the member list and presence flags for a program+date.
func (c *HTTPClient) FetchRoster(ctx context.Context, programID, date string) ([]RosterMember, error) {
	path := fmt.Sprintf("/api/v1/programs/%s/roster?date=%s",
		url.PathEscape(programID), url.QueryEscape(date))

	var out struct {
		Members []RosterMember `json:"members"`
	}
	if err := c.doAuthed(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Members, nil
}

// MarkAttendance records a check-in/out. The intent id rides along both in
// the body and as an idempotency key header.
func (c *HTTPClient) MarkAttendance(ctx context.Context, req MarkRequest) (MarkResult, error) {
	path := fmt.Sprintf("/api/v1/programs/%s/members/%s/attendance",
		url.PathEscape(req.ProgramID), url.PathEscape(req.MemberID))
	body := map[string]string{
		"action":    string(req.Action),
		"date":      req.Date,
		"intent_id": req.IntentID,
	}
	headers := map[string]string{idempotencyKeyHeader: req.IntentID}

	var out MarkResult
	if err := c.doAuthed(ctx, http.MethodPut, path, headers, body, &out); err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			// business rejection: member not eligible, bad date, etc.
			return MarkResult{}, fmt.Errorf("%w: status %d", kioskerr.ErrIntentRejected, se.Code)
		}
		return MarkResult{}, err
	}
	return out, nil
}

// Ping probes backend liveness without authentication.
func (c *HTTPClient) Ping(ctx context.Context) error {
	resp, err := c.doJSON(ctx, http.MethodGet, "/healthz", "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return classifyStatus(resp.StatusCode)
	}
	return nil
}

// doAuthed performs an authenticated JSON request and decodes a 200 response
// into out. On a 401 it refreshes the token pair once and replays the
// request; a second 401 surfaces as ErrSessionExpired.
func (c *HTTPClient) doAuthed(ctx context.Context, method, path string, headers map[string]string, body, out any) error {
	c.mu.Lock()
	token := c.primaryToken
	refresh := c.refreshToken
	c.mu.Unlock()

	if token == "" {
		return kioskerr.ErrNoSession
	}

	resp, err := c.doJSONWithHeaders(ctx, method, path, token, headers, body)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		_ = resp.Body.Close()

		session, err := c.Refresh(ctx, refresh)
		if err != nil {
			return err
		}
		if fn := c.refreshCallback(); fn != nil {
			fn(session)
		}
		c.log.Info(ctx, "token pair refreshed after 401", "path", path)

		resp, err = c.doJSONWithHeaders(ctx, method, path, session.PrimaryToken, headers, body)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			_ = resp.Body.Close()
			return kioskerr.ErrSessionExpired
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return classifyStatus(resp.StatusCode)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *HTTPClient) refreshCallback() func(models.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onRefresh
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path, token string, body any) (*http.Response, error) {
	return c.doJSONWithHeaders(ctx, method, path, token, nil, body)
}

func (c *HTTPClient) doJSONWithHeaders(ctx context.Context, method, path, token string, headers map[string]string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kioskerr.ErrUnreachable, err)
	}
	return resp, nil
}

// StatusError is an unexpected non-transport response status. Endpoints map
// it onto the error taxonomy where the status has a business meaning.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// classifyStatus maps non-200 statuses: retryable transport-class failures
// become ErrUnreachable, everything else a StatusError.
func classifyStatus(code int) error {
	switch {
	case code >= 500, code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", kioskerr.ErrUnreachable, code)
	default:
		return &StatusError{Code: code}
	}
}
